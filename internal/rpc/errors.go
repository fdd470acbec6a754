package rpc

import (
	"errors"

	"connectrpc.com/connect"

	"github.com/mmynk/settleup/internal/models"
)

// Error metadata keys carrying the amount a client should retry with.
const (
	ExpectedAmountKey = "Expected-Amount"
	ReverseAmountKey  = "Reverse-Amount"
)

// toConnectError maps ledger errors onto Connect codes.
func toConnectError(err error) error {
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return connectErr
	}

	code := connect.CodeInternal
	switch {
	case errors.Is(err, models.ErrValidation):
		code = connect.CodeInvalidArgument
	case errors.Is(err, models.ErrNotFound):
		code = connect.CodeNotFound
	case errors.Is(err, models.ErrNothingOwed), errors.Is(err, models.ErrAmountMismatch):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, models.ErrAtomicity):
		code = connect.CodeAborted
	case errors.Is(err, models.ErrPermissionDenied):
		code = connect.CodePermissionDenied
	}
	out := connect.NewError(code, err)

	var mismatch *models.AmountMismatchError
	if errors.As(err, &mismatch) {
		out.Meta().Set(ExpectedAmountKey, mismatch.Expected.String())
	}
	var nothing *models.NothingOwedError
	if errors.As(err, &nothing) && nothing.Reverse.IsPositive() {
		out.Meta().Set(ReverseAmountKey, nothing.Reverse.String())
	}
	return out
}
