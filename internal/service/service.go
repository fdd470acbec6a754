// Package service implements the ledger engine: expense recording, balance
// queries, settlement and debt simplification over a storage.Store.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mmynk/settleup/internal/events"
	"github.com/mmynk/settleup/internal/metrics"
	"github.com/mmynk/settleup/internal/models"
	"github.com/mmynk/settleup/internal/storage"
)

// LedgerService is stateless; every call reads from and writes to the store.
type LedgerService struct {
	store     storage.Store
	now       func() time.Time
	publisher events.Publisher
	metrics   *metrics.Metrics
}

// Option configures a LedgerService.
type Option func(*LedgerService)

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *LedgerService) { s.now = now }
}

// WithPublisher sends domain events after each committed write.
func WithPublisher(p events.Publisher) Option {
	return func(s *LedgerService) { s.publisher = p }
}

// WithMetrics records counters for expenses and settlements.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *LedgerService) { s.metrics = m }
}

// NewLedgerService creates a new LedgerService with the given storage backend.
func NewLedgerService(store storage.Store, opts ...Option) *LedgerService {
	s := &LedgerService{
		store:     store,
		now:       func() time.Time { return time.Now().UTC() },
		publisher: events.Noop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// publish is fire-and-forget: the write already committed.
func (s *LedgerService) publish(ctx context.Context, msg *events.Message) {
	if err := s.publisher.Publish(ctx, msg); err != nil {
		slog.WarnContext(ctx, "Failed to publish event", "type", msg.Type, "group_id", msg.GroupID, "error", err)
	}
}

// asAtomicity wraps storage failures of a transactional write. Domain errors
// raised inside the transaction pass through unchanged.
func asAtomicity(op string, err error) error {
	if isDomainError(err) {
		return err
	}
	return &models.AtomicityError{Op: op, Err: err}
}

func isDomainError(err error) bool {
	for _, target := range []error{
		models.ErrValidation,
		models.ErrNotFound,
		models.ErrNothingOwed,
		models.ErrAmountMismatch,
		models.ErrAtomicity,
		models.ErrPermissionDenied,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// requireMember fails with a NotFoundError when memberID is not on the roster.
func requireMember(group *models.Group, memberID string) error {
	if !group.HasMember(memberID) {
		return &models.NotFoundError{Kind: "member", ID: memberID}
	}
	return nil
}
