package ledger

import (
	"math/big"
)

// Amount is a non-negative 128-bit-class integer. It wraps math/big.Int and
// enforces non-negativity at every constructor and mutator, so call sites
// never see a negative balance or reservation.
type Amount struct {
	v big.Int
}

// NewAmount builds an Amount from a non-negative int64. Negative values
// produce the zero Amount; callers that need to distinguish that from a
// genuine zero should validate upstream (amounts are never negative in this
// domain, so there is nothing legitimate to distinguish).
func NewAmount(v int64) Amount {
	if v < 0 {
		v = 0
	}
	var a Amount
	a.v.SetInt64(v)
	return a
}

// AmountFromBigInt copies b into a new Amount, clamping negative values to
// zero.
func AmountFromBigInt(b *big.Int) Amount {
	var a Amount
	if b == nil || b.Sign() < 0 {
		return a
	}
	a.v.Set(b)
	return a
}

// AmountFromString parses a base-10 non-negative integer string.
func AmountFromString(s string) (Amount, bool) {
	var a Amount
	if _, ok := a.v.SetString(s, 10); !ok || a.v.Sign() < 0 {
		return Amount{}, false
	}
	return a, true
}

func (a Amount) BigInt() *big.Int { return new(big.Int).Set(&a.v) }

func (a Amount) String() string { return a.v.String() }

func (a Amount) IsZero() bool { return a.v.Sign() == 0 }

func (a Amount) Sign() int { return a.v.Sign() }

func (a Amount) Cmp(b Amount) int { return a.v.Cmp(&b.v) }

func (a Amount) LessThan(b Amount) bool { return a.Cmp(b) < 0 }

func (a Amount) GreaterThan(b Amount) bool { return a.Cmp(b) > 0 }

func (a Amount) Add(b Amount) Amount {
	var r Amount
	r.v.Add(&a.v, &b.v)
	return r
}

// Sub subtracts b from a, clamping at zero. Callers check availability
// before subtracting, so a clamped result never hides a real shortfall.
func (a Amount) Sub(b Amount) Amount {
	var r Amount
	r.v.Sub(&a.v, &b.v)
	if r.v.Sign() < 0 {
		r.v.SetInt64(0)
	}
	return r
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.v.String() + `"`), nil
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, ok := a.v.SetString(s, 10)
	if !ok {
		return &Error{Code: ErrCodeStore, Msg: "amount: invalid integer literal " + s}
	}
	a.v = *parsed
	if a.v.Sign() < 0 {
		a.v.SetInt64(0)
	}
	return nil
}
