package calculator

import (
	"sort"

	"github.com/mmynk/settleup/internal/money"
)

// Transfer is a suggested payment from one member to another.
type Transfer struct {
	From   string      `json:"from"`   // Person who owes
	To     string      `json:"to"`     // Person who is owed
	Amount money.Money `json:"amount"` // Always positive
}

// SuggestPairwise lists every genuine bilateral debt in the group.
//
// Algorithm: for every unordered pair (a, b) of roster members, take
// Pairwise(a, b); when |net| is more than one cent, suggest |net| flowing in
// the net's direction. O(m²) over the roster, independent of settlement
// order. Each suggestion is exactly what a Settle call between the two
// members will accept. Results are sorted largest first.
func SuggestPairwise(l *Ledger, roster []string) []Transfer {
	var transfers []Transfer
	for i := 0; i < len(roster); i++ {
		for j := i + 1; j < len(roster); j++ {
			a, b := roster[i], roster[j]
			net := l.Pairwise(a, b)
			if net.Within(money.Zero, money.Cent) {
				continue
			}
			if net.IsPositive() {
				transfers = append(transfers, Transfer{From: a, To: b, Amount: net})
			} else {
				transfers = append(transfers, Transfer{From: b, To: a, Amount: net.Neg()})
			}
		}
	}
	sortTransfers(transfers)
	return transfers
}

// balanceEntry is a creditor or debtor with what is still outstanding.
type balanceEntry struct {
	member    string
	remaining money.Money
}

// SuggestMinimal computes a small set of transfers that zeroes every net
// balance.
//
// Algorithm (greedy matching):
//   - split members into creditors (net > 0) and debtors (net < 0, as magnitude)
//   - sort both descending
//   - match the largest creditor with the largest debtor, transfer the
//     smaller of the two remainders, advance whichever side reaches zero
//
// Amounts are integer cents, so the remainders reach exactly zero and the
// result has at most m-1 transfers for m members with non-zero balances.
// A suggested transfer need not match a real bilateral debt.
func SuggestMinimal(l *Ledger, roster []string) []Transfer {
	members := unionMembers(roster, l.Members())

	var creditors, debtors []balanceEntry
	for _, m := range members {
		net := l.Net(m)
		switch {
		case net.IsPositive():
			creditors = append(creditors, balanceEntry{member: m, remaining: net})
		case net.IsNegative():
			debtors = append(debtors, balanceEntry{member: m, remaining: net.Neg()})
		}
	}
	sortEntries(creditors)
	sortEntries(debtors)

	var transfers []Transfer
	i, j := 0, 0
	for i < len(creditors) && j < len(debtors) {
		creditor := &creditors[i]
		debtor := &debtors[j]

		amount := creditor.remaining.Min(debtor.remaining)
		transfers = append(transfers, Transfer{From: debtor.member, To: creditor.member, Amount: amount})

		creditor.remaining = creditor.remaining.Sub(amount)
		debtor.remaining = debtor.remaining.Sub(amount)

		if creditor.remaining.IsZero() {
			i++
		}
		if debtor.remaining.IsZero() {
			j++
		}
	}
	return transfers
}

// unionMembers keeps roster order and appends ledger members that have
// since left the roster.
func unionMembers(roster, extra []string) []string {
	seen := make(map[string]bool, len(roster))
	out := make([]string, 0, len(roster)+len(extra))
	for _, m := range roster {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	for _, m := range extra {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

func sortEntries(entries []balanceEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].remaining.Cmp(entries[j].remaining) > 0
	})
}

func sortTransfers(ts []Transfer) {
	sort.SliceStable(ts, func(i, j int) bool {
		if c := ts[i].Amount.Cmp(ts[j].Amount); c != 0 {
			return c > 0
		}
		if ts[i].From != ts[j].From {
			return ts[i].From < ts[j].From
		}
		return ts[i].To < ts[j].To
	})
}
