package calculator

import (
	"sort"

	"github.com/mmynk/settleup/internal/models"
	"github.com/mmynk/settleup/internal/money"
)

// Ledger is a read model over a group's unsettled obligations.
//
// It is built once from a snapshot of open shares and answers every balance
// question from memory, so a whole group costs one query instead of one
// aggregate per member pair. A Ledger is immutable after NewLedger and safe
// for concurrent reads.
type Ledger struct {
	// owes[debtor][creditor] = total unsettled amount debtor owes creditor
	owes map[string]map[string]money.Money
	net  map[string]money.Money
}

// NewLedger folds open shares into per-pair and per-member totals.
//
// Algorithm:
//   - a share owed by the payer to themself is ignored
//   - every other share adds to owes[owedBy][paidBy]
//   - net[paidBy] += amount, net[owedBy] -= amount
func NewLedger(shares []models.OpenShare) *Ledger {
	l := &Ledger{
		owes: make(map[string]map[string]money.Money),
		net:  make(map[string]money.Money),
	}
	for _, s := range shares {
		if s.OwedBy == s.PaidBy {
			continue
		}
		if _, exists := l.owes[s.OwedBy]; !exists {
			l.owes[s.OwedBy] = make(map[string]money.Money)
		}
		l.owes[s.OwedBy][s.PaidBy] = l.owes[s.OwedBy][s.PaidBy].Add(s.Amount)
		l.net[s.PaidBy] = l.net[s.PaidBy].Add(s.Amount)
		l.net[s.OwedBy] = l.net[s.OwedBy].Sub(s.Amount)
	}
	return l
}

// Net returns the member's overall position. Positive means the group owes
// the member; negative means the member owes the group.
func (l *Ledger) Net(member string) money.Money {
	return l.net[member]
}

// Owes returns the gross unsettled amount debtor owes creditor, ignoring
// anything owed the other way.
func (l *Ledger) Owes(debtor, creditor string) money.Money {
	return l.owes[debtor][creditor]
}

// Pairwise returns what a owes b minus what b owes a. Positive means a owes b.
// Pairwise(a, b) is always -Pairwise(b, a).
func (l *Ledger) Pairwise(a, b string) money.Money {
	return l.Owes(a, b).Sub(l.Owes(b, a))
}

// Members returns every member with an open position, sorted by ID.
func (l *Ledger) Members() []string {
	seen := make(map[string]bool)
	for debtor, creditors := range l.owes {
		seen[debtor] = true
		for creditor := range creditors {
			seen[creditor] = true
		}
	}
	members := make([]string, 0, len(seen))
	for m := range seen {
		members = append(members, m)
	}
	sort.Strings(members)
	return members
}

// Counterparties returns everyone member has an open position with, in
// either direction, sorted by ID.
func (l *Ledger) Counterparties(member string) []string {
	seen := make(map[string]bool)
	for creditor := range l.owes[member] {
		seen[creditor] = true
	}
	for debtor, creditors := range l.owes {
		if _, ok := creditors[member]; ok {
			seen[debtor] = true
		}
	}
	out := make([]string, 0, len(seen))
	for m := range seen {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Counterparty is one side of a member's breakdown.
type Counterparty struct {
	MemberID string      `json:"member_id"`
	Amount   money.Money `json:"amount"`
}

// MemberBreakdown splits a member's position into who owes them and whom
// they owe, using gross (not netted) amounts per counterparty.
type MemberBreakdown struct {
	Net      money.Money
	OwedToMe money.Money
	IOwe     money.Money
	OweMe    []Counterparty
	IOweTo   []Counterparty
}

// Breakdown reports member's gross positions against every counterparty,
// largest first.
func (l *Ledger) Breakdown(member string) MemberBreakdown {
	b := MemberBreakdown{Net: l.Net(member)}
	for creditor, amount := range l.owes[member] {
		b.IOweTo = append(b.IOweTo, Counterparty{MemberID: creditor, Amount: amount})
		b.IOwe = b.IOwe.Add(amount)
	}
	for debtor, creditors := range l.owes {
		if amount, ok := creditors[member]; ok {
			b.OweMe = append(b.OweMe, Counterparty{MemberID: debtor, Amount: amount})
			b.OwedToMe = b.OwedToMe.Add(amount)
		}
	}
	SortCounterparties(b.OweMe)
	SortCounterparties(b.IOweTo)
	return b
}

// Positions reports member's non-zero pairwise nets against each of the
// other members. Positive amounts are what member owes; negative amounts are
// owed to member.
func (l *Ledger) Positions(member string, others []string) []Counterparty {
	var out []Counterparty
	for _, other := range others {
		if other == member {
			continue
		}
		net := l.Pairwise(member, other)
		if net.Within(money.Zero, money.Cent) {
			continue
		}
		out = append(out, Counterparty{MemberID: other, Amount: net})
	}
	return out
}

// SortCounterparties orders by amount, largest first, then by member ID.
func SortCounterparties(cs []Counterparty) {
	sort.Slice(cs, func(i, j int) bool {
		if c := cs[i].Amount.Cmp(cs[j].Amount); c != 0 {
			return c > 0
		}
		return cs[i].MemberID < cs[j].MemberID
	})
}
