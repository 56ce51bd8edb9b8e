package escrow

import "errors"

var (
	// ErrNoMatchingFundingOutput is thrown when no output of the funding
	// transaction pays exactly amount+fee to the escrow address.
	ErrNoMatchingFundingOutput = errors.New("no funding output matching escrow address and amount")
	// ErrMissingSignatures is thrown when fewer than two signatures are
	// provided to spend from the escrow.
	ErrMissingSignatures = errors.New("spending from escrow requires exactly two signatures")
	// ErrNullPubKey ...
	ErrNullPubKey = errors.New("public key must not be null")
	// ErrNullFundingTx ...
	ErrNullFundingTx = errors.New("funding transaction must not be null")
	// ErrNullPayoutAddress ...
	ErrNullPayoutAddress = errors.New("payout address must not be null")
	// ErrNonPositiveAmount ...
	ErrNonPositiveAmount = errors.New("amount must be positive")
	// ErrInvalidSignature is thrown when the assembled transaction does not
	// verify against the connected funding output.
	ErrInvalidSignature = errors.New("invalid signature for escrow input")
)
