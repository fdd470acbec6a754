// Package memory provides an in-process implementation of storage.Store for
// tests and single-node demos.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mmynk/settleup/internal/ids"
	"github.com/mmynk/settleup/internal/models"
	"github.com/mmynk/settleup/internal/storage"
)

// Ensure Store implements storage.Store
var _ storage.Store = (*Store)(nil)

// Store keeps everything in maps behind one lock. Transactions hold the
// write lock for their whole duration and buffer their writes until commit.
type Store struct {
	mu          sync.RWMutex
	members     map[string]models.Member
	groups      map[string]*models.Group
	expenses    map[string]*models.Expense
	settlements map[string]*models.Settlement
}

// New creates an empty store.
func New() *Store {
	return &Store{
		members:     make(map[string]models.Member),
		groups:      make(map[string]*models.Group),
		expenses:    make(map[string]*models.Expense),
		settlements: make(map[string]*models.Settlement),
	}
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

func (s *Store) CreateMember(_ context.Context, member *models.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if member.ID == "" {
		member.ID = ids.New()
	}
	if _, exists := s.members[member.ID]; exists {
		return &models.ValidationError{Field: "id", Reason: "member " + member.ID + " already exists"}
	}
	s.members[member.ID] = *member
	return nil
}

func (s *Store) CreateGroup(_ context.Context, group *models.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if group.ID == "" {
		group.ID = ids.New()
	}
	if group.CreatedAt.IsZero() {
		group.CreatedAt = time.Now().UTC()
	}
	roster := make([]models.Member, len(group.Members))
	for i, m := range group.Members {
		stored, ok := s.members[m.ID]
		if !ok {
			return &models.NotFoundError{Kind: "member", ID: m.ID}
		}
		roster[i] = stored
	}
	g := *group
	g.Members = roster
	s.groups[g.ID] = &g
	return nil
}

func (s *Store) GetGroup(_ context.Context, groupID string) (*models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[groupID]
	if !ok {
		return nil, &models.NotFoundError{Kind: "group", ID: groupID}
	}
	out := *g
	out.Members = append([]models.Member(nil), g.Members...)
	return &out, nil
}

func (s *Store) CreateExpense(_ context.Context, expense *models.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[expense.GroupID]; !ok {
		return &models.NotFoundError{Kind: "group", ID: expense.GroupID}
	}
	if expense.ID == "" {
		expense.ID = ids.New()
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now().UTC()
	}
	seen := make(map[string]bool, len(expense.Obligations))
	for i := range expense.Obligations {
		o := &expense.Obligations[i]
		if seen[o.OwedBy] {
			return &models.ValidationError{Field: "obligations", Reason: "member " + o.OwedBy + " listed more than once"}
		}
		seen[o.OwedBy] = true
		if o.ID == "" {
			o.ID = ids.New()
		}
		o.ExpenseID = expense.ID
		if o.Settled && o.SettledAt == nil {
			at := expense.CreatedAt
			o.SettledAt = &at
		}
	}
	s.expenses[expense.ID] = cloneExpense(expense)
	return nil
}

func (s *Store) GetExpense(_ context.Context, expenseID string) (*models.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.expenses[expenseID]
	if !ok {
		return nil, &models.NotFoundError{Kind: "expense", ID: expenseID}
	}
	return cloneExpense(e), nil
}

func (s *Store) ListExpensesByGroup(_ context.Context, groupID string) ([]*models.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Expense
	for _, e := range s.expenses {
		if e.GroupID == groupID {
			out = append(out, cloneExpense(e))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) UpdateExpenseDetails(_ context.Context, expenseID, description, category string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[expenseID]
	if !ok {
		return &models.NotFoundError{Kind: "expense", ID: expenseID}
	}
	e.Description = description
	e.Category = category
	return nil
}

func (s *Store) DeleteExpense(_ context.Context, expenseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.expenses[expenseID]; !ok {
		return &models.NotFoundError{Kind: "expense", ID: expenseID}
	}
	delete(s.expenses, expenseID)
	return nil
}

func (s *Store) ListOpenShares(_ context.Context, groupID string) ([]models.OpenShare, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.openShares(groupID, nil), nil
}

// openShares walks expenses oldest first. Obligations in pending are treated
// as already settled.
func (s *Store) openShares(groupID string, pending map[string]settledMark) []models.OpenShare {
	var expenses []*models.Expense
	for _, e := range s.expenses {
		if e.GroupID == groupID {
			expenses = append(expenses, e)
		}
	}
	sort.Slice(expenses, func(i, j int) bool {
		if !expenses[i].CreatedAt.Equal(expenses[j].CreatedAt) {
			return expenses[i].CreatedAt.Before(expenses[j].CreatedAt)
		}
		return expenses[i].ID < expenses[j].ID
	})

	var shares []models.OpenShare
	for _, e := range expenses {
		for _, o := range e.Obligations {
			if o.Settled {
				continue
			}
			if _, ok := pending[o.ID]; ok {
				continue
			}
			shares = append(shares, models.OpenShare{
				ObligationID: o.ID,
				ExpenseID:    e.ID,
				Description:  e.Description,
				OwedBy:       o.OwedBy,
				PaidBy:       e.PaidBy,
				Amount:       o.Amount,
			})
		}
	}
	return shares
}

func (s *Store) GetSettlement(_ context.Context, settlementID string) (*models.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.settlements[settlementID]
	if !ok {
		return nil, &models.NotFoundError{Kind: "settlement", ID: settlementID}
	}
	out := *st
	return &out, nil
}

func (s *Store) ListSettlementsByGroup(_ context.Context, groupID string) ([]*models.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Settlement
	for _, st := range s.settlements {
		if st.GroupID == groupID {
			cp := *st
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SettledAt.Equal(out[j].SettledAt) {
			return out[i].SettledAt.Before(out[j].SettledAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// WithinTx serializes transactions behind the store lock and applies the
// buffered writes only when fn succeeds.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{s: s, pending: make(map[string]settledMark)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

type settledMark struct {
	with string
	at   time.Time
}

// memTx implements storage.Tx. The store lock is held by WithinTx.
type memTx struct {
	s           *Store
	pending     map[string]settledMark
	settlements []*models.Settlement
}

func (t *memTx) ListOpenShares(_ context.Context, groupID string) ([]models.OpenShare, error) {
	return t.s.openShares(groupID, t.pending), nil
}

func (t *memTx) MarkSettled(_ context.Context, obligationIDs []string, settledWith string, at time.Time) (int64, error) {
	want := make(map[string]bool, len(obligationIDs))
	for _, id := range obligationIDs {
		want[id] = true
	}
	var n int64
	for _, e := range t.s.expenses {
		for _, o := range e.Obligations {
			if !want[o.ID] || o.Settled {
				continue
			}
			if _, ok := t.pending[o.ID]; ok {
				continue
			}
			t.pending[o.ID] = settledMark{with: settledWith, at: at}
			n++
		}
	}
	return n, nil
}

func (t *memTx) CreateSettlement(_ context.Context, settlement *models.Settlement) error {
	if settlement.SettledAt.IsZero() {
		settlement.SettledAt = time.Now().UTC()
	}
	if settlement.ID == "" {
		settlement.ID = ids.NewSortable(settlement.SettledAt)
	}
	cp := *settlement
	t.settlements = append(t.settlements, &cp)
	return nil
}

func (t *memTx) commit() {
	for _, e := range t.s.expenses {
		for i := range e.Obligations {
			o := &e.Obligations[i]
			mark, ok := t.pending[o.ID]
			if !ok {
				continue
			}
			at := mark.at
			o.Settled = true
			o.SettledAt = &at
			o.SettledWith = mark.with
		}
	}
	for _, st := range t.settlements {
		t.s.settlements[st.ID] = st
	}
}

func cloneExpense(e *models.Expense) *models.Expense {
	out := *e
	out.Obligations = make([]models.Obligation, len(e.Obligations))
	for i, o := range e.Obligations {
		if o.SettledAt != nil {
			at := *o.SettledAt
			o.SettledAt = &at
		}
		out.Obligations[i] = o
	}
	return &out
}
