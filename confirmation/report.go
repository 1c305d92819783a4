package confirmation

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// AssetVolume aggregates the successful confirmed volume for one asset
// within a report window.
type AssetVolume struct {
	Asset            string `json:"asset"`
	SuccessfulVolume string `json:"successfulVolume"`
	SuccessCount     int    `json:"successCount"`
	FailureCount     int    `json:"failureCount"`
}

// UserVolume aggregates per-account activity within a report window.
type UserVolume struct {
	Account      string `json:"account"`
	SuccessCount int    `json:"successCount"`
	FailureCount int    `json:"failureCount"`
}

// RegulatoryReport is the output of GenerateRegulatoryReport, deterministic
// given identical input.
type RegulatoryReport struct {
	RouterID  string        `json:"routerId"`
	From      time.Time     `json:"from"`
	To        time.Time     `json:"to"`
	ByAsset   []AssetVolume `json:"byAsset"`
	ByAccount []UserVolume  `json:"byAccount"`
}

// GenerateRegulatoryReport scans this router's confirmations whose
// timestamp falls in [from, to], aggregates by user and asset, and computes
// per-asset successful-volume.
func (s *Store) GenerateRegulatoryReport(ctx context.Context, from, to time.Time) (*RegulatoryReport, error) {
	all, err := s.kv.HGetAll(ctx, fmt.Sprintf(keyConfirmations, s.routerID))
	if err != nil {
		return nil, fmt.Errorf("scan confirmations: %w", err)
	}

	assetVolume := map[string]decimal.Decimal{}
	assetSuccess := map[string]int{}
	assetFailure := map[string]int{}
	userSuccess := map[string]int{}
	userFailure := map[string]int{}

	for _, blob := range all {
		var r Record
		if err := json.Unmarshal([]byte(blob), &r); err != nil {
			continue
		}
		if r.Timestamp.Before(from) || r.Timestamp.After(to) {
			continue
		}
		switch r.Status {
		case StatusConfirmed:
			assetSuccess[r.Metadata.Asset]++
			userSuccess[r.Metadata.FromAccount]++
			amt, err := decimal.NewFromString(r.Metadata.Amount)
			if err == nil {
				assetVolume[r.Metadata.Asset] = assetVolume[r.Metadata.Asset].Add(amt)
			}
		case StatusFailed, StatusRolledBack:
			assetFailure[r.Metadata.Asset]++
			userFailure[r.Metadata.FromAccount]++
		}
	}

	rep := &RegulatoryReport{RouterID: s.routerID, From: from, To: to}
	for asset := range mergeKeys(assetSuccess, assetFailure) {
		rep.ByAsset = append(rep.ByAsset, AssetVolume{
			Asset:            asset,
			SuccessfulVolume: assetVolume[asset].String(),
			SuccessCount:     assetSuccess[asset],
			FailureCount:     assetFailure[asset],
		})
	}
	sort.Slice(rep.ByAsset, func(i, j int) bool { return rep.ByAsset[i].Asset < rep.ByAsset[j].Asset })

	for account := range mergeKeys(userSuccess, userFailure) {
		rep.ByAccount = append(rep.ByAccount, UserVolume{
			Account:      account,
			SuccessCount: userSuccess[account],
			FailureCount: userFailure[account],
		})
	}
	sort.Slice(rep.ByAccount, func(i, j int) bool { return rep.ByAccount[i].Account < rep.ByAccount[j].Account })

	return rep, nil
}

func mergeKeys(a, b map[string]int) map[string]struct{} {
	out := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		out[k] = struct{}{}
	}
	for k := range b {
		out[k] = struct{}{}
	}
	return out
}

// MarshalCSV writes the report's per-asset volumes as CSV, the format the
// regulatory export pipeline (outside this module's scope) consumes.
func (r *RegulatoryReport) MarshalCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()
	if err := cw.Write([]string{"asset", "successful_volume", "success_count", "failure_count"}); err != nil {
		return err
	}
	for _, av := range r.ByAsset {
		if err := cw.Write([]string{av.Asset, av.SuccessfulVolume, fmt.Sprint(av.SuccessCount), fmt.Sprint(av.FailureCount)}); err != nil {
			return err
		}
	}
	return nil
}
