package calculator

import (
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mmynk/settleup/internal/models"
	"github.com/mmynk/settleup/internal/money"
)

func m(s string) money.Money { return money.MustParse(s) }

func pct(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sumObligations(obligations []models.Obligation) money.Money {
	var total money.Money
	for _, o := range obligations {
		total = total.Add(o.Amount)
	}
	return total
}

func byMember(obligations []models.Obligation) map[string]models.Obligation {
	out := make(map[string]models.Obligation, len(obligations))
	for _, o := range obligations {
		out[o.OwedBy] = o
	}
	return out
}

func TestCalculateSplit(t *testing.T) {
	roster := []string{"Alice", "Bob", "Charlie"}

	tests := []struct {
		name         string
		req          SplitRequest
		wantErr      bool
		validateFunc func(t *testing.T, obligations []models.Obligation)
	}{
		{
			name: "equal three-way split gives remainder to first member",
			req: SplitRequest{
				Amount: m("100.00"),
				PaidBy: "Alice",
				Policy: models.SplitEqual,
				Roster: roster,
			},
			validateFunc: func(t *testing.T, obligations []models.Obligation) {
				want := []string{"33.34", "33.33", "33.33"}
				if len(obligations) != 3 {
					t.Fatalf("got %d obligations, want 3", len(obligations))
				}
				for i, o := range obligations {
					if o.OwedBy != roster[i] {
						t.Errorf("obligation %d owed by %s, want %s", i, o.OwedBy, roster[i])
					}
					if o.Amount.String() != want[i] {
						t.Errorf("%s owes %s, want %s", o.OwedBy, o.Amount, want[i])
					}
				}
				if got := sumObligations(obligations); got != m("100.00") {
					t.Errorf("sum = %s, want 100.00", got)
				}
			},
		},
		{
			name: "payer share is pre-settled",
			req: SplitRequest{
				Amount: m("90.00"),
				PaidBy: "Bob",
				Policy: models.SplitEqual,
				Roster: roster,
			},
			validateFunc: func(t *testing.T, obligations []models.Obligation) {
				shares := byMember(obligations)
				bob := shares["Bob"]
				if !bob.Settled || bob.SettledWith != "Bob" {
					t.Errorf("payer share settled=%v with=%q, want settled with Bob", bob.Settled, bob.SettledWith)
				}
				if shares["Alice"].Settled || shares["Charlie"].Settled {
					t.Error("non-payer shares must start unsettled")
				}
			},
		},
		{
			name: "equal split over participant subset",
			req: SplitRequest{
				Amount:       m("10.00"),
				PaidBy:       "Alice",
				Policy:       models.SplitEqual,
				Roster:       roster,
				Participants: []string{"Bob", "Charlie"},
			},
			validateFunc: func(t *testing.T, obligations []models.Obligation) {
				shares := byMember(obligations)
				if _, ok := shares["Alice"]; ok {
					t.Error("Alice was not a participant")
				}
				if shares["Bob"].Amount != m("5.00") || shares["Charlie"].Amount != m("5.00") {
					t.Errorf("unexpected shares: %+v", shares)
				}
			},
		},
		{
			name: "equal split drops zero shares",
			req: SplitRequest{
				Amount: m("0.02"),
				PaidBy: "Alice",
				Policy: models.SplitEqual,
				Roster: roster,
			},
			validateFunc: func(t *testing.T, obligations []models.Obligation) {
				if len(obligations) != 2 {
					t.Fatalf("got %d obligations, want 2", len(obligations))
				}
				if _, ok := byMember(obligations)["Charlie"]; ok {
					t.Error("Charlie's zero share should be dropped")
				}
			},
		},
		{
			name: "unequal split accepted",
			req: SplitRequest{
				Amount: m("50.00"),
				PaidBy: "Alice",
				Policy: models.SplitUnequal,
				Roster: roster,
				Shares: []Share{
					{MemberID: "Alice", Amount: m("10.00")},
					{MemberID: "Bob", Amount: m("25.00")},
					{MemberID: "Charlie", Amount: m("15.00")},
				},
			},
			validateFunc: func(t *testing.T, obligations []models.Obligation) {
				shares := byMember(obligations)
				if shares["Bob"].Amount != m("25.00") {
					t.Errorf("Bob owes %s, want 25.00", shares["Bob"].Amount)
				}
				if shares["Bob"].Percentage.Valid {
					t.Error("unequal split must not record percentages")
				}
			},
		},
		{
			name: "unequal split at exactly one cent off is accepted",
			req: SplitRequest{
				Amount: m("50.00"),
				PaidBy: "Alice",
				Policy: models.SplitUnequal,
				Roster: roster,
				Shares: []Share{
					{MemberID: "Bob", Amount: m("25.00")},
					{MemberID: "Charlie", Amount: m("25.01")},
				},
			},
		},
		{
			name: "unequal split two cents off is rejected",
			req: SplitRequest{
				Amount: m("50.00"),
				PaidBy: "Alice",
				Policy: models.SplitUnequal,
				Roster: roster,
				Shares: []Share{
					{MemberID: "Bob", Amount: m("25.00")},
					{MemberID: "Charlie", Amount: m("24.98")},
				},
			},
			wantErr: true,
		},
		{
			name: "unequal split with outsider is rejected",
			req: SplitRequest{
				Amount: m("20.00"),
				PaidBy: "Alice",
				Policy: models.SplitUnequal,
				Roster: roster,
				Shares: []Share{
					{MemberID: "Mallory", Amount: m("20.00")},
				},
			},
			wantErr: true,
		},
		{
			name: "unequal split with duplicate member is rejected",
			req: SplitRequest{
				Amount: m("20.00"),
				PaidBy: "Alice",
				Policy: models.SplitUnequal,
				Roster: roster,
				Shares: []Share{
					{MemberID: "Bob", Amount: m("10.00")},
					{MemberID: "Bob", Amount: m("10.00")},
				},
			},
			wantErr: true,
		},
		{
			name: "unequal split with negative amount is rejected",
			req: SplitRequest{
				Amount: m("20.00"),
				PaidBy: "Alice",
				Policy: models.SplitUnequal,
				Roster: roster,
				Shares: []Share{
					{MemberID: "Bob", Amount: m("30.00")},
					{MemberID: "Charlie", Amount: m("-10.00")},
				},
			},
			wantErr: true,
		},
		{
			name: "percentage split records percentages",
			req: SplitRequest{
				Amount: m("200.00"),
				PaidBy: "Alice",
				Policy: models.SplitPercentage,
				Roster: roster,
				Shares: []Share{
					{MemberID: "Alice", Percentage: pct("50")},
					{MemberID: "Bob", Percentage: pct("30")},
					{MemberID: "Charlie", Percentage: pct("20")},
				},
			},
			validateFunc: func(t *testing.T, obligations []models.Obligation) {
				shares := byMember(obligations)
				if shares["Bob"].Amount != m("60.00") {
					t.Errorf("Bob owes %s, want 60.00", shares["Bob"].Amount)
				}
				if !shares["Bob"].Percentage.Valid || !shares["Bob"].Percentage.Decimal.Equal(pct("30")) {
					t.Errorf("Bob percentage = %v, want 30", shares["Bob"].Percentage)
				}
			},
		},
		{
			name: "percentage split rounding residual keeps sum exact",
			req: SplitRequest{
				Amount: m("10.00"),
				PaidBy: "Alice",
				Policy: models.SplitPercentage,
				Roster: roster,
				Shares: []Share{
					{MemberID: "Alice", Percentage: pct("33.33")},
					{MemberID: "Bob", Percentage: pct("33.33")},
					{MemberID: "Charlie", Percentage: pct("33.34")},
				},
			},
			validateFunc: func(t *testing.T, obligations []models.Obligation) {
				// 3.333 + 3.333 + 3.334 rounds to 3.33 each; the missing cent goes to Alice.
				shares := byMember(obligations)
				if shares["Alice"].Amount != m("3.34") {
					t.Errorf("Alice owes %s, want 3.34", shares["Alice"].Amount)
				}
				if got := sumObligations(obligations); got != m("10.00") {
					t.Errorf("sum = %s, want 10.00", got)
				}
			},
		},
		{
			name: "percentages at 99.99 accepted",
			req: SplitRequest{
				Amount: m("100.00"),
				PaidBy: "Alice",
				Policy: models.SplitPercentage,
				Roster: roster,
				Shares: []Share{
					{MemberID: "Bob", Percentage: pct("49.99")},
					{MemberID: "Charlie", Percentage: pct("50")},
				},
			},
		},
		{
			name: "percentages at 99.98 rejected",
			req: SplitRequest{
				Amount: m("100.00"),
				PaidBy: "Alice",
				Policy: models.SplitPercentage,
				Roster: roster,
				Shares: []Share{
					{MemberID: "Bob", Percentage: pct("49.98")},
					{MemberID: "Charlie", Percentage: pct("50")},
				},
			},
			wantErr: true,
		},
		{
			name: "percentage over 100 for one member rejected",
			req: SplitRequest{
				Amount: m("100.00"),
				PaidBy: "Alice",
				Policy: models.SplitPercentage,
				Roster: roster,
				Shares: []Share{
					{MemberID: "Bob", Percentage: pct("150")},
					{MemberID: "Charlie", Percentage: pct("-50")},
				},
			},
			wantErr: true,
		},
		{
			name: "unequal shares that wrap around to the total are rejected",
			req: SplitRequest{
				Amount: m("1.00"),
				PaidBy: "Alice",
				Policy: models.SplitUnequal,
				Roster: roster,
				Shares: []Share{
					{MemberID: "Bob", Amount: money.FromMinor(1 << 62)},
					{MemberID: "Charlie", Amount: money.FromMinor(1<<62 + 100)},
				},
			},
			wantErr: true,
		},
		{
			name: "unequal share larger than the total is rejected",
			req: SplitRequest{
				Amount: m("10.00"),
				PaidBy: "Alice",
				Policy: models.SplitUnequal,
				Roster: roster,
				Shares: []Share{
					{MemberID: "Bob", Amount: m("10.02")},
					{MemberID: "Charlie", Amount: m("0.00")},
				},
			},
			wantErr: true,
		},
		{
			name: "percentage shares that overflow the amount are rejected",
			req: SplitRequest{
				Amount: money.FromMinor(math.MaxInt64),
				PaidBy: "Alice",
				Policy: models.SplitPercentage,
				Roster: roster,
				Shares: []Share{
					{MemberID: "Bob", Percentage: pct("50.005")},
					{MemberID: "Charlie", Percentage: pct("50.005")},
				},
			},
			wantErr: true,
		},
		{
			name:    "zero amount rejected",
			req:     SplitRequest{Amount: money.Zero, PaidBy: "Alice", Policy: models.SplitEqual, Roster: roster},
			wantErr: true,
		},
		{
			name:    "payer outside roster rejected",
			req:     SplitRequest{Amount: m("10"), PaidBy: "Mallory", Policy: models.SplitEqual, Roster: roster},
			wantErr: true,
		},
		{
			name:    "empty roster rejected",
			req:     SplitRequest{Amount: m("10"), PaidBy: "Alice", Policy: models.SplitEqual},
			wantErr: true,
		},
		{
			name:    "unknown policy rejected",
			req:     SplitRequest{Amount: m("10"), PaidBy: "Alice", Policy: "shares", Roster: roster},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obligations, err := CalculateSplit(tt.req)
			if (err != nil) != tt.wantErr {
				t.Errorf("CalculateSplit() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				if !errors.Is(err, models.ErrValidation) {
					t.Errorf("error %v should be a validation error", err)
				}
				return
			}
			if tt.validateFunc != nil {
				tt.validateFunc(t, obligations)
			}
		})
	}
}

func TestEqualSplitSumIsExact(t *testing.T) {
	roster := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k"}
	for minor := int64(1); minor <= 5000; minor += 13 {
		for n := 1; n <= len(roster); n++ {
			amount := money.FromMinor(minor)
			obligations, err := CalculateSplit(SplitRequest{
				Amount: amount,
				PaidBy: "a",
				Policy: models.SplitEqual,
				Roster: roster[:n],
			})
			if err != nil {
				t.Fatalf("CalculateSplit(%s over %d): %v", amount, n, err)
			}
			if got := sumObligations(obligations); got != amount {
				t.Fatalf("equal split of %s over %d sums to %s", amount, n, got)
			}
		}
	}
}

func TestUnequalSplitNeverExceedsAmount(t *testing.T) {
	roster := []string{"a", "b", "c"}
	amount := m("1.00")
	huge := money.FromMinor(math.MaxInt64 / 2)
	_, err := CalculateSplit(SplitRequest{
		Amount: amount,
		PaidBy: "a",
		Policy: models.SplitUnequal,
		Roster: roster,
		Shares: []Share{
			{MemberID: "a", Amount: huge},
			{MemberID: "b", Amount: huge},
			{MemberID: "c", Amount: money.FromMinor(102)},
		},
	})
	if !errors.Is(err, models.ErrValidation) {
		t.Fatalf("CalculateSplit() error = %v, want validation error", err)
	}
}

func TestPercentageSplitSumIsExact(t *testing.T) {
	roster := []string{"a", "b", "c", "d", "e", "f", "g"}
	shares := make([]Share, len(roster))
	// 7 × 14.2857 = 99.9999, inside the tolerance.
	for i, id := range roster {
		shares[i] = Share{MemberID: id, Percentage: pct("14.2857")}
	}
	for _, amount := range []string{"1.00", "10.00", "99.99", "1234.56"} {
		obligations, err := CalculateSplit(SplitRequest{
			Amount: m(amount),
			PaidBy: "a",
			Policy: models.SplitPercentage,
			Roster: roster,
			Shares: shares,
		})
		if err != nil {
			t.Fatalf("CalculateSplit(%s): %v", amount, err)
		}
		if got := sumObligations(obligations); got != m(amount) {
			t.Errorf("percentage split of %s sums to %s", amount, got)
		}
	}
}
