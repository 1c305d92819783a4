package ledger

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAmountArithmetic(t *testing.T) {
	a := NewAmount(100)
	b := NewAmount(40)

	require.Equal(t, "60", a.Sub(b).String())
	require.Equal(t, "140", a.Add(b).String())
	require.True(t, b.LessThan(a))
	require.False(t, a.LessThan(b))
}

func TestAmountSubClampsAtZero(t *testing.T) {
	a := NewAmount(5)
	b := NewAmount(10)
	require.True(t, a.Sub(b).IsZero())
}

func TestAmountJSONRoundTrip(t *testing.T) {
	a := NewAmount(123456789)
	data, err := json.Marshal(a)
	require.NoError(t, err)
	require.Equal(t, `"123456789"`, string(data))

	var back Amount
	require.NoError(t, json.Unmarshal(data, &back))
	require.Equal(t, 0, a.Cmp(back))
}

func TestAmountFromStringRejectsNegative(t *testing.T) {
	_, ok := AmountFromString("-1")
	require.False(t, ok)
}
