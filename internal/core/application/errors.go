package application

import "errors"

var (
	// ErrOfferIsMine is thrown when trying to take an own offer.
	ErrOfferIsMine = errors.New("cannot take own offer")
	// ErrOfferNotMine is thrown when asked to accept a trade on an offer made
	// by somebody else.
	ErrOfferNotMine = errors.New("offer was not made by this profile")
	// ErrInsufficientFunds ...
	ErrInsufficientFunds = errors.New("wallet balance cannot cover trade amount plus fee")
	// ErrMalformedSnapshot is thrown when a received snapshot lacks the facts
	// needed to seed a trade record.
	ErrMalformedSnapshot = errors.New("snapshot lacks offer or trade request")
	// ErrEscrowAddressMismatch is thrown when a received acceptance carries an
	// escrow address that does not match the one derived from the keys.
	ErrEscrowAddressMismatch = errors.New("escrow address does not match derived address")
	// ErrMissingCounterpartySignature is thrown when finalizing a payout
	// without the counterparty's previously recorded signature.
	ErrMissingCounterpartySignature = errors.New("counterparty signature not recorded")
)
