package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/settleup/internal/calculator"
	"github.com/mmynk/settleup/internal/events"
	"github.com/mmynk/settleup/internal/models"
	"github.com/mmynk/settleup/internal/money"
	"github.com/mmynk/settleup/internal/storage"
	"github.com/mmynk/settleup/internal/storage/memory"
	"github.com/mmynk/settleup/internal/storage/sqlite"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func m(s string) money.Money { return money.MustParse(s) }

type fixture struct {
	svc      *LedgerService
	recorder *events.Recorder
	group    *models.Group
	a, b, c  string
}

func newFixture(t *testing.T, store storage.Store) *fixture {
	t.Helper()
	ctx := context.Background()
	rec := &events.Recorder{}
	svc := NewLedgerService(store, WithClock(func() time.Time { return fixedNow }), WithPublisher(rec))

	var ids []string
	for _, name := range []string{"Alice", "Bob", "Charlie"} {
		member, err := svc.CreateMember(ctx, name)
		require.NoError(t, err)
		ids = append(ids, member.ID)
	}
	group, err := svc.CreateGroup(ctx, "Roommates", ids)
	require.NoError(t, err)

	return &fixture{svc: svc, recorder: rec, group: group, a: ids[0], b: ids[1], c: ids[2]}
}

func (f *fixture) expense(t *testing.T, paidBy, amount string, shares map[string]string) *models.Expense {
	t.Helper()
	req := CreateExpenseRequest{
		GroupID: f.group.ID,
		PaidBy:  paidBy,
		Amount:  m(amount),
		Policy:  models.SplitUnequal,
	}
	for _, id := range f.group.MemberIDs() {
		if a, ok := shares[id]; ok {
			req.Shares = append(req.Shares, calculator.Share{MemberID: id, Amount: m(a)})
		}
	}
	e, err := f.svc.CreateExpense(context.Background(), req)
	require.NoError(t, err)
	return e
}

func TestCreateExpenseEqualSplit(t *testing.T) {
	f := newFixture(t, memory.New())
	ctx := context.Background()

	e, err := f.svc.CreateExpense(ctx, CreateExpenseRequest{
		GroupID: f.group.ID,
		PaidBy:  f.a,
		Amount:  m("100.00"),
		Policy:  models.SplitEqual,
	})
	require.NoError(t, err)

	require.Len(t, e.Obligations, 3)
	assert.Equal(t, m("33.34"), e.Obligations[0].Amount)
	assert.Equal(t, m("33.33"), e.Obligations[1].Amount)
	assert.Equal(t, m("33.33"), e.Obligations[2].Amount)
	assert.True(t, e.Obligations[0].Settled)
	assert.Equal(t, fixedNow, *e.Obligations[0].SettledAt)
	assert.Equal(t, "Roommates split (equal) paid by Alice", e.Description)

	net, err := f.svc.NetBalance(ctx, f.group.ID, f.a)
	require.NoError(t, err)
	assert.Equal(t, m("66.66"), net)

	got, err := f.svc.GetExpense(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.Obligations, got.Obligations)

	msgs := f.recorder.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, events.ExpenseCreated, msgs[0].Type)
	assert.Equal(t, e.ID, msgs[0].ExpenseID)
}

func TestCreateExpensePercentage(t *testing.T) {
	f := newFixture(t, memory.New())

	e, err := f.svc.CreateExpense(context.Background(), CreateExpenseRequest{
		GroupID:     f.group.ID,
		PaidBy:      f.b,
		Amount:      m("80.00"),
		Policy:      models.SplitPercentage,
		Description: "Utilities",
		Shares: []calculator.Share{
			{MemberID: f.a, Percentage: decimal.NewFromInt(25)},
			{MemberID: f.b, Percentage: decimal.NewFromInt(25)},
			{MemberID: f.c, Percentage: decimal.NewFromInt(50)},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Utilities", e.Description)
	assert.Equal(t, m("40.00"), e.Obligations[2].Amount)
}

func TestCreateExpenseRejects(t *testing.T) {
	f := newFixture(t, memory.New())
	ctx := context.Background()

	tests := []struct {
		name   string
		req    CreateExpenseRequest
		target error
	}{
		{
			name:   "unknown group",
			req:    CreateExpenseRequest{GroupID: "missing", PaidBy: f.a, Amount: m("10"), Policy: models.SplitEqual},
			target: models.ErrNotFound,
		},
		{
			name:   "unknown policy",
			req:    CreateExpenseRequest{GroupID: f.group.ID, PaidBy: f.a, Amount: m("10"), Policy: "itemized"},
			target: models.ErrValidation,
		},
		{
			name:   "payer outside group",
			req:    CreateExpenseRequest{GroupID: f.group.ID, PaidBy: "mallory", Amount: m("10"), Policy: models.SplitEqual},
			target: models.ErrValidation,
		},
		{
			name: "unequal sum off by two cents",
			req: CreateExpenseRequest{
				GroupID: f.group.ID, PaidBy: f.a, Amount: m("10"), Policy: models.SplitUnequal,
				Shares: []calculator.Share{{MemberID: f.b, Amount: m("9.98")}},
			},
			target: models.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateExpense(ctx, tt.req)
			assert.ErrorIs(t, err, tt.target)
		})
	}

	expenses, err := f.svc.ListExpenses(ctx, f.group.ID)
	require.NoError(t, err)
	assert.Empty(t, expenses)
	assert.Empty(t, f.recorder.Messages())
}

func TestSettleOffsetScenario(t *testing.T) {
	f := newFixture(t, memory.New())
	ctx := context.Background()

	// A owes B 50.00 on X; B owes A 20.00 on Y.
	x := f.expense(t, f.b, "100.00", map[string]string{f.a: "50.00", f.b: "50.00"})
	y := f.expense(t, f.a, "40.00", map[string]string{f.a: "20.00", f.b: "20.00"})

	net, err := f.svc.PairwiseNet(ctx, f.group.ID, f.a, f.b)
	require.NoError(t, err)
	assert.Equal(t, m("30.00"), net)

	reverse, err := f.svc.PairwiseNet(ctx, f.group.ID, f.b, f.a)
	require.NoError(t, err)
	assert.Equal(t, m("-30.00"), reverse)

	res, err := f.svc.Settle(ctx, SettleRequest{GroupID: f.group.ID, From: f.a, To: f.b, Amount: m("30.00"), Notes: " venmo "})
	require.NoError(t, err)
	assert.Equal(t, m("30.00"), res.Settlement.Amount)
	assert.Equal(t, "venmo", res.Settlement.Notes)
	assert.Equal(t, fixedNow, res.Settlement.SettledAt)
	require.Len(t, res.Discharged, 2)
	kinds := map[string]models.DischargeKind{}
	for _, d := range res.Discharged {
		kinds[d.ExpenseID] = d.Kind
	}
	assert.Equal(t, models.DischargePaid, kinds[x.ID])
	assert.Equal(t, models.DischargeOffset, kinds[y.ID])

	net, err = f.svc.PairwiseNet(ctx, f.group.ID, f.a, f.b)
	require.NoError(t, err)
	assert.True(t, net.IsZero())

	gotX, err := f.svc.GetExpense(ctx, x.ID)
	require.NoError(t, err)
	assert.True(t, gotX.Obligations[0].Settled)
	assert.Equal(t, f.b, gotX.Obligations[0].SettledWith)
	gotY, err := f.svc.GetExpense(ctx, y.ID)
	require.NoError(t, err)
	assert.True(t, gotY.Obligations[1].Settled)
	assert.Equal(t, f.a, gotY.Obligations[1].SettledWith)

	_, err = f.svc.Settle(ctx, SettleRequest{GroupID: f.group.ID, From: f.a, To: f.b, Amount: m("30.00")})
	var nothing *models.NothingOwedError
	require.ErrorAs(t, err, &nothing)
	assert.True(t, nothing.Reverse.IsZero())

	history, err := f.svc.ListSettlements(ctx, f.group.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, res.Settlement.ID, history[0].ID)

	msgs := f.recorder.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, events.SettlementRecorded, msgs[2].Type)
	assert.Equal(t, m("30.00"), msgs[2].Amount)
}

func TestSettleRejections(t *testing.T) {
	f := newFixture(t, memory.New())
	ctx := context.Background()
	f.expense(t, f.b, "60.00", map[string]string{f.a: "30.00", f.b: "30.00"})

	t.Run("amount mismatch reports expected", func(t *testing.T) {
		_, err := f.svc.Settle(ctx, SettleRequest{GroupID: f.group.ID, From: f.a, To: f.b, Amount: m("25.00")})
		var mismatch *models.AmountMismatchError
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, m("30.00"), mismatch.Expected)
		assert.Equal(t, m("25.00"), mismatch.Provided)
	})

	t.Run("wrong direction reports reverse", func(t *testing.T) {
		_, err := f.svc.Settle(ctx, SettleRequest{GroupID: f.group.ID, From: f.b, To: f.a, Amount: m("30.00")})
		var nothing *models.NothingOwedError
		require.ErrorAs(t, err, &nothing)
		assert.Equal(t, m("30.00"), nothing.Reverse)
	})

	t.Run("no debt between pair", func(t *testing.T) {
		_, err := f.svc.Settle(ctx, SettleRequest{GroupID: f.group.ID, From: f.c, To: f.a, Amount: m("1.00")})
		assert.ErrorIs(t, err, models.ErrNothingOwed)
	})

	validation := []struct {
		name string
		req  SettleRequest
	}{
		{"self", SettleRequest{GroupID: f.group.ID, From: f.a, To: f.a, Amount: m("1")}},
		{"zero amount", SettleRequest{GroupID: f.group.ID, From: f.a, To: f.b, Amount: money.Zero}},
		{"negative amount", SettleRequest{GroupID: f.group.ID, From: f.a, To: f.b, Amount: m("-30")}},
		{"outsider", SettleRequest{GroupID: f.group.ID, From: "mallory", To: f.b, Amount: m("30")}},
	}
	for _, tt := range validation {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Settle(ctx, tt.req)
			assert.ErrorIs(t, err, models.ErrValidation)
		})
	}

	t.Run("unknown group", func(t *testing.T) {
		_, err := f.svc.Settle(ctx, SettleRequest{GroupID: "missing", From: f.a, To: f.b, Amount: m("30")})
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("within one cent settles the exact net", func(t *testing.T) {
		res, err := f.svc.Settle(ctx, SettleRequest{GroupID: f.group.ID, From: f.a, To: f.b, Amount: m("30.01")})
		require.NoError(t, err)
		assert.Equal(t, m("30.00"), res.Settlement.Amount)
	})
}

// failingTx fails the settlement insert after obligations were marked.
type failingTx struct{ storage.Tx }

func (failingTx) CreateSettlement(context.Context, *models.Settlement) error {
	return errors.New("disk full")
}

// racingTx reports one row fewer than requested, as if a concurrent
// settlement had already discharged it.
type racingTx struct{ storage.Tx }

func (r racingTx) MarkSettled(ctx context.Context, ids []string, with string, at time.Time) (int64, error) {
	n, err := r.Tx.MarkSettled(ctx, ids, with, at)
	if n > 0 {
		n--
	}
	return n, err
}

type wrappedStore struct {
	*memory.Store
	wrap func(storage.Tx) storage.Tx
}

func (w wrappedStore) WithinTx(ctx context.Context, fn func(context.Context, storage.Tx) error) error {
	return w.Store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return fn(ctx, w.wrap(tx))
	})
}

func TestSettleIsAllOrNothing(t *testing.T) {
	tests := []struct {
		name string
		wrap func(storage.Tx) storage.Tx
	}{
		{"settlement insert fails", func(tx storage.Tx) storage.Tx { return failingTx{tx} }},
		{"concurrent discharge detected", func(tx storage.Tx) storage.Tx { return racingTx{tx} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := wrappedStore{Store: memory.New(), wrap: tt.wrap}
			f := newFixture(t, store)
			ctx := context.Background()
			f.expense(t, f.b, "60.00", map[string]string{f.a: "30.00", f.b: "30.00"})

			_, err := f.svc.Settle(ctx, SettleRequest{GroupID: f.group.ID, From: f.a, To: f.b, Amount: m("30.00")})
			require.ErrorIs(t, err, models.ErrAtomicity)

			net, err := f.svc.PairwiseNet(ctx, f.group.ID, f.a, f.b)
			require.NoError(t, err)
			assert.Equal(t, m("30.00"), net, "nothing may persist after a failed settle")

			history, err := f.svc.ListSettlements(ctx, f.group.ID)
			require.NoError(t, err)
			assert.Empty(t, history)
		})
	}
}

func TestConcurrentSettleDischargesOnce(t *testing.T) {
	store, err := sqlite.New(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	f := newFixture(t, store)
	ctx := context.Background()
	f.expense(t, f.b, "90.00", map[string]string{f.a: "45.00", f.b: "45.00"})

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []error
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Settle(ctx, SettleRequest{GroupID: f.group.ID, From: f.a, To: f.b, Amount: m("45.00")})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			failures = append(failures, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	for _, err := range failures {
		assert.True(t, errors.Is(err, models.ErrNothingOwed) || errors.Is(err, models.ErrAtomicity), "unexpected error: %v", err)
	}

	history, err := f.svc.ListSettlements(ctx, f.group.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestSuggestions(t *testing.T) {
	f := newFixture(t, memory.New())
	ctx := context.Background()

	// Nets: A +40, B -25, C -15.
	f.expense(t, f.a, "40.00", map[string]string{f.b: "25.00", f.c: "15.00"})

	minimal, err := f.svc.SuggestMinimal(ctx, f.group.ID)
	require.NoError(t, err)
	assert.Equal(t, []calculator.Transfer{
		{From: f.b, To: f.a, Amount: m("25.00")},
		{From: f.c, To: f.a, Amount: m("15.00")},
	}, minimal)

	pairwise, err := f.svc.SuggestPairwise(ctx, f.group.ID)
	require.NoError(t, err)
	assert.Equal(t, minimal, pairwise)

	for _, tr := range pairwise {
		_, err := f.svc.Settle(ctx, SettleRequest{GroupID: f.group.ID, From: tr.From, To: tr.To, Amount: tr.Amount})
		require.NoError(t, err)
	}
	after, err := f.svc.SuggestMinimal(ctx, f.group.ID)
	require.NoError(t, err)
	assert.Empty(t, after)

	_, err = f.svc.SuggestMinimal(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMemberSummaryAndPositions(t *testing.T) {
	f := newFixture(t, memory.New())
	ctx := context.Background()

	f.expense(t, f.a, "90.00", map[string]string{f.a: "30.00", f.b: "30.00", f.c: "30.00"})
	f.expense(t, f.b, "20.00", map[string]string{f.a: "10.00", f.b: "10.00"})
	f.expense(t, f.c, "50.00", map[string]string{f.a: "50.00"})

	summary, err := f.svc.MemberSummary(ctx, f.group.ID, f.a)
	require.NoError(t, err)
	assert.Equal(t, m("0.00"), summary.Net)
	assert.Equal(t, m("60.00"), summary.OwedToMe)
	assert.Equal(t, m("60.00"), summary.IOwe)
	assert.Len(t, summary.OweMe, 2)
	assert.Equal(t, []calculator.Counterparty{
		{MemberID: f.c, Amount: m("50.00")},
		{MemberID: f.b, Amount: m("10.00")},
	}, summary.IOweTo)

	positions, err := f.svc.MemberPositions(ctx, f.group.ID, f.a)
	require.NoError(t, err)
	assert.Equal(t, []calculator.Counterparty{{MemberID: f.c, Amount: m("20.00")}}, positions.IOwe)
	assert.Equal(t, []calculator.Counterparty{{MemberID: f.b, Amount: m("20.00")}}, positions.OwesMe)
	assert.Equal(t, m("20.00"), positions.TotalIOwe)
	assert.Equal(t, m("20.00"), positions.TotalOwedToMe)

	_, err = f.svc.MemberSummary(ctx, f.group.ID, "mallory")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestExpenseLifecycle(t *testing.T) {
	f := newFixture(t, memory.New())
	ctx := context.Background()
	e := f.expense(t, f.a, "30.00", map[string]string{f.b: "15.00", f.c: "15.00"})

	t.Run("only the payer may edit", func(t *testing.T) {
		_, err := f.svc.UpdateExpenseDetails(ctx, f.b, e.ID, "Dinner", "food")
		assert.ErrorIs(t, err, models.ErrPermissionDenied)

		updated, err := f.svc.UpdateExpenseDetails(ctx, f.a, e.ID, "Dinner", "food")
		require.NoError(t, err)
		assert.Equal(t, "Dinner", updated.Description)
		assert.Equal(t, "food", updated.Category)
		assert.Equal(t, m("30.00"), updated.Amount)

		_, err = f.svc.UpdateExpenseDetails(ctx, f.a, e.ID, "  ", "food")
		assert.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("only the payer may delete", func(t *testing.T) {
		assert.ErrorIs(t, f.svc.DeleteExpense(ctx, f.c, e.ID), models.ErrPermissionDenied)

		require.NoError(t, f.svc.DeleteExpense(ctx, f.a, e.ID))
		_, err := f.svc.GetExpense(ctx, e.ID)
		assert.ErrorIs(t, err, models.ErrNotFound)

		net, err := f.svc.NetBalance(ctx, f.group.ID, f.a)
		require.NoError(t, err)
		assert.True(t, net.IsZero(), "deleting an expense removes its obligations")

		msgs := f.recorder.Messages()
		assert.Equal(t, events.ExpenseDeleted, msgs[len(msgs)-1].Type)
	})

	t.Run("missing expense", func(t *testing.T) {
		assert.ErrorIs(t, f.svc.DeleteExpense(ctx, f.a, "missing"), models.ErrNotFound)
	})
}

func TestCreateGroupValidation(t *testing.T) {
	svc := NewLedgerService(memory.New())
	ctx := context.Background()

	_, err := svc.CreateGroup(ctx, "", []string{"a"})
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = svc.CreateGroup(ctx, "Trip", nil)
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = svc.CreateGroup(ctx, "Trip", []string{"a", "a"})
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = svc.CreateGroup(ctx, "Trip", []string{"ghost"})
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = svc.CreateMember(ctx, " ")
	assert.ErrorIs(t, err, models.ErrValidation)
}
