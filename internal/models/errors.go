package models

import (
	"errors"
	"fmt"

	"github.com/mmynk/settleup/internal/money"
)

// Sentinel errors. Every typed error below matches exactly one of these
// with errors.Is, so callers can branch without type assertions.
var (
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = errors.New("not found")
	ErrNothingOwed      = errors.New("nothing owed")
	ErrAmountMismatch   = errors.New("amount does not match outstanding balance")
	ErrAtomicity        = errors.New("atomic write failed")
	ErrPermissionDenied = errors.New("permission denied")
)

// ValidationError reports malformed or out-of-roster input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError reports a missing expense, member or group.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NothingOwedError is returned when From does not owe To anything.
// Reverse holds what To owes From, when the debt runs the other way.
type NothingOwedError struct {
	From    string
	To      string
	Reverse money.Money
}

func (e *NothingOwedError) Error() string {
	if e.Reverse.IsPositive() {
		return fmt.Sprintf("%s does not owe %s; %s owes %s %s", e.From, e.To, e.To, e.From, e.Reverse)
	}
	return fmt.Sprintf("no outstanding balance between %s and %s", e.From, e.To)
}

func (e *NothingOwedError) Is(target error) bool { return target == ErrNothingOwed }

// AmountMismatchError is returned when a settle-up amount differs from the
// pairwise net by more than one cent.
type AmountMismatchError struct {
	Expected money.Money
	Provided money.Money
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("amount should be %s (the net amount between the two members), got %s", e.Expected, e.Provided)
}

func (e *AmountMismatchError) Is(target error) bool { return target == ErrAmountMismatch }

// AtomicityError reports a transactional write that could not complete.
// Nothing was persisted, so the operation is safe to retry.
type AtomicityError struct {
	Op  string
	Err error
}

func (e *AtomicityError) Error() string {
	if e.Err == nil {
		return e.Op + ": atomic write failed"
	}
	return fmt.Sprintf("%s: atomic write failed: %v", e.Op, e.Err)
}

func (e *AtomicityError) Is(target error) bool { return target == ErrAtomicity }

func (e *AtomicityError) Unwrap() error { return e.Err }

// PermissionError is returned when a member acts on something they do not own.
type PermissionError struct {
	MemberID string
	Action   string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("member %s may not %s", e.MemberID, e.Action)
}

func (e *PermissionError) Is(target error) bool { return target == ErrPermissionDenied }
