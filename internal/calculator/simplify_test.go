package calculator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/settleup/internal/models"
	"github.com/mmynk/settleup/internal/money"
)

// applyTransfers replays transfers as payments and returns the resulting nets.
func applyTransfers(l *Ledger, members []string, transfers []Transfer) map[string]money.Money {
	nets := make(map[string]money.Money, len(members))
	for _, member := range members {
		nets[member] = l.Net(member)
	}
	for _, tr := range transfers {
		nets[tr.From] = nets[tr.From].Add(tr.Amount)
		nets[tr.To] = nets[tr.To].Sub(tr.Amount)
	}
	return nets
}

func TestSuggestMinimal(t *testing.T) {
	tests := []struct {
		name   string
		shares []models.OpenShare
		roster []string
		want   []Transfer
	}{
		{
			name:   "nothing open",
			roster: []string{"a", "b"},
		},
		{
			name: "one creditor two debtors",
			shares: []models.OpenShare{
				share("b", "a", "25.00"),
				share("c", "a", "15.00"),
			},
			roster: []string{"a", "b", "c"},
			want: []Transfer{
				{From: "b", To: "a", Amount: m("25.00")},
				{From: "c", To: "a", Amount: m("15.00")},
			},
		},
		{
			name: "chain collapses to a single transfer",
			shares: []models.OpenShare{
				share("a", "b", "10.00"),
				share("b", "c", "10.00"),
			},
			roster: []string{"a", "b", "c"},
			want: []Transfer{
				{From: "a", To: "c", Amount: m("10.00")},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLedger(tt.shares)
			assert.Equal(t, tt.want, SuggestMinimal(l, tt.roster))
		})
	}
}

func TestSuggestMinimalZeroesBalances(t *testing.T) {
	roster := []string{"a", "b", "c", "d", "e"}
	l := NewLedger([]models.OpenShare{
		share("b", "a", "33.34"),
		share("c", "a", "33.33"),
		share("a", "d", "12.01"),
		share("e", "b", "7.50"),
		share("d", "c", "19.99"),
		share("e", "d", "0.01"),
	})

	transfers := SuggestMinimal(l, roster)
	require.LessOrEqual(t, len(transfers), len(roster)-1)

	for member, net := range applyTransfers(l, roster, transfers) {
		assert.True(t, net.IsZero(), "%s left with %s", member, net)
	}
	for _, tr := range transfers {
		assert.True(t, tr.Amount.IsPositive())
		assert.NotEqual(t, tr.From, tr.To)
	}
}

func TestSuggestMinimalIncludesFormerMembers(t *testing.T) {
	l := NewLedger([]models.OpenShare{share("gone", "a", "5.00")})
	transfers := SuggestMinimal(l, []string{"a"})
	assert.Equal(t, []Transfer{{From: "gone", To: "a", Amount: m("5.00")}}, transfers)
}

func TestSuggestPairwise(t *testing.T) {
	l := NewLedger([]models.OpenShare{
		share("a", "b", "10.00"),
		share("b", "c", "10.00"),
		share("c", "a", "2.00"),
		share("a", "c", "2.005"),
	})

	got := SuggestPairwise(l, []string{"a", "b", "c"})
	// a/c nets to under a cent and is skipped.
	assert.Equal(t, []Transfer{
		{From: "a", To: "b", Amount: m("10.00")},
		{From: "b", To: "c", Amount: m("10.00")},
	}, got)
}

func TestSuggestPairwiseMatchesPairwise(t *testing.T) {
	roster := []string{"a", "b", "c", "d"}
	l := NewLedger([]models.OpenShare{
		share("a", "b", "4.00"),
		share("b", "a", "1.50"),
		share("c", "d", "9.99"),
		share("d", "a", "3.00"),
	})

	for _, tr := range SuggestPairwise(l, roster) {
		assert.Equal(t, tr.Amount, l.Pairwise(tr.From, tr.To))
	}
}
