package relay

import "errors"

var (
	// ErrRelayProtocol is returned when the relay violates its contract, by
	// not increasing the version or by altering the stored payloads.
	ErrRelayProtocol = errors.New("relay violated the protocol contract")
	// ErrNotRecipient is returned when no payload of a snapshot decrypts
	// with the local key.
	ErrNotRecipient = errors.New("not a recipient of the snapshot")
	// ErrUnexpectedSigner is returned when a snapshot is signed by a key
	// other than the one its newest fact requires.
	ErrUnexpectedSigner = errors.New("snapshot signed by unexpected party")
	// ErrMalformedContent is returned when a decrypted snapshot does not
	// parse into a trade.
	ErrMalformedContent = errors.New("malformed snapshot content")
)
