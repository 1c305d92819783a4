package ledger

import "fmt"

// Asset is a symbolic, decimal-aware fungible token identity. Created by an
// adapter at CreateAsset time; never deleted.
type Asset struct {
	ID              string            `json:"id"`
	FinID           FinID             `json:"finId"`
	Symbol          string            `json:"symbol"`
	Name            string            `json:"name"`
	Decimals        uint8             `json:"decimals"`
	TotalSupply     Amount            `json:"totalSupply"`
	LedgerID        string            `json:"ledgerId"`
	ContractAddress string            `json:"contractAddress,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

func (a Asset) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("asset: empty id")
	}
	if a.Decimals > 38 {
		return fmt.Errorf("asset: decimals %d out of range [0,38]", a.Decimals)
	}
	if a.LedgerID == "" {
		return fmt.Errorf("asset: empty ledgerId")
	}
	return nil
}

// AssetSpec is what a caller hands to Adapter.CreateAsset; it omits fields
// the adapter itself assigns (ID, TotalSupply bookkeeping).
type AssetSpec struct {
	FinID           FinID
	Symbol          string
	Name            string
	Decimals        uint8
	LedgerID        string
	ContractAddress string
	Metadata        map[string]string
}
