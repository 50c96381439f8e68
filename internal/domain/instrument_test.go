package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInstrument_AddInvalidTicker(t *testing.T) {
	inst := NewInstrument("Apple", KindStock)

	assert.True(t, inst.AddInvalidTicker("AAPL.X"))
	assert.False(t, inst.AddInvalidTicker("AAPL.X"))
	assert.False(t, inst.AddInvalidTicker(""))
	assert.True(t, inst.AddInvalidTicker("APL"))

	assert.Equal(t, []string{"AAPL.X", "APL"}, inst.InvalidTickers)
	assert.True(t, inst.IsInvalidTicker("APL"))
	assert.False(t, inst.IsInvalidTicker("AAPL"))
}

func TestInstrument_ResolveTicker(t *testing.T) {
	testCases := []struct {
		name        string
		ticker      string
		pending     string
		invalid     []string
		wantTicker  string
		wantPending bool
		wantOK      bool
	}{
		{"confirmed wins", "AAPL", "APL", nil, "AAPL", false, true},
		{"pending used", "", "XYZ", nil, "XYZ", true, true},
		{"pending invalidated", "", "XYZ", []string{"XYZ"}, "", false, false},
		{"nothing", "", "", nil, "", false, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			inst := NewInstrument("X", KindStock)
			inst.Ticker = tc.ticker
			inst.PendingTicker = tc.pending
			for _, bad := range tc.invalid {
				inst.AddInvalidTicker(bad)
			}

			ticker, pending, ok := inst.ResolveTicker()
			assert.Equal(t, tc.wantTicker, ticker)
			assert.Equal(t, tc.wantPending, pending)
			assert.Equal(t, tc.wantOK, ok)
		})
	}
}

func TestInstrument_UpToDate(t *testing.T) {
	inst := NewInstrument("DAX", KindIndex)
	inst.UpdatedAt = time.Date(2024, 5, 2, 23, 0, 0, 0, time.UTC)

	assert.True(t, inst.UpToDate(time.Date(2024, 5, 2, 1, 0, 0, 0, time.UTC)))
	assert.False(t, inst.UpToDate(time.Date(2024, 5, 3, 0, 30, 0, 0, time.UTC)))

	inst.UpdatedAt = time.Time{}
	assert.False(t, inst.UpToDate(time.Now()))
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("stock")
	assert.NoError(t, err)
	assert.Equal(t, KindStock, k)

	k, err = ParseKind("F")
	assert.NoError(t, err)
	assert.Equal(t, KindForex, k)

	_, err = ParseKind("bond")
	assert.Error(t, err)

	assert.True(t, NewKindSet(KindStock, KindIndex).Contains(KindIndex))
	assert.False(t, NewKindSet(KindStock).Contains(KindCrypto))
}

func TestMembershipDiff(t *testing.T) {
	added, removed := MembershipDiff([]string{"A", "B", "C"}, []string{"B", "C", "D"})
	assert.Equal(t, []string{"D"}, added)
	assert.Equal(t, []string{"A"}, removed)

	added, removed = MembershipDiff([]string{"A", "B"}, []string{"B", "A"})
	assert.Empty(t, added)
	assert.Empty(t, removed)
}

func TestInstrument_IsValid(t *testing.T) {
	inst := NewInstrument("Apple", KindStock)
	assert.True(t, inst.IsValid())

	inst.Kind = ""
	assert.False(t, inst.IsValid())

	inst = NewInstrument("", KindIndex)
	assert.False(t, inst.IsValid())
}
