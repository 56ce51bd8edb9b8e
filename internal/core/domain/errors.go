package domain

import "errors"

var (
	// ErrStatusUndefined is thrown when no status rule matches the accumulated
	// facts, which indicates a corrupted or adversarial record.
	ErrStatusUndefined = errors.New("trade status cannot be derived from accumulated facts")
	// ErrRoleUndeterminable is thrown when the local profile matches no party
	// of the trade, or the trade lacks the facts to tell the parties apart.
	ErrRoleUndeterminable = errors.New("trade role cannot be determined for profile")
	// ErrAmountOutOfBounds is thrown when the fiat payment amount falls outside
	// the offer's bounds or the per-currency cap.
	ErrAmountOutOfBounds = errors.New("payment amount outside offer bounds")
	// ErrTradeNotFound ...
	ErrTradeNotFound = errors.New("trade not found")
	// ErrTradeTerminal is thrown when attempting to update a trade that
	// already reached COMPLETED or CANCELED.
	ErrTradeTerminal = errors.New("trade is terminal and read-only")
	// ErrPaymentDetailNotFound ...
	ErrPaymentDetailNotFound = errors.New("no payment details for currency and method")
)
