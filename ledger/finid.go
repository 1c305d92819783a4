// Package ledger defines the core data model shared by every ledger adapter
// and by the router's own subsystems: identities, assets, accounts, amounts
// and the capability interface a concrete ledger integration must implement.
package ledger

import "fmt"

// Kind distinguishes the three things a FinID can name.
type Kind string

const (
	KindInstitution Kind = "institution"
	KindAsset       Kind = "asset"
	KindAccount     Kind = "account"
)

// FinID is an opaque, domain-scoped identity handle. It is immutable once
// issued: callers must treat every field as read-only after construction.
type FinID struct {
	ID     string `json:"id"`
	Kind   Kind   `json:"kind"`
	Domain string `json:"domain"`
}

// String renders the canonical "domain:kind:id" form used in logs and
// signed message payloads.
func (f FinID) String() string {
	return fmt.Sprintf("%s:%s:%s", f.Domain, f.Kind, f.ID)
}

// Empty reports whether f is the zero value.
func (f FinID) Empty() bool {
	return f.ID == "" && f.Kind == "" && f.Domain == ""
}

func (f FinID) Validate() error {
	if f.ID == "" {
		return fmt.Errorf("finid: empty id")
	}
	switch f.Kind {
	case KindInstitution, KindAsset, KindAccount:
	default:
		return fmt.Errorf("finid: invalid kind %q", f.Kind)
	}
	if f.Domain == "" {
		return fmt.Errorf("finid: empty domain")
	}
	return nil
}
