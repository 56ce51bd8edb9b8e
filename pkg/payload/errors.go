package payload

import "errors"

var (
	// ErrNullContent ...
	ErrNullContent = errors.New("content must not be null")
	// ErrNullPubKey ...
	ErrNullPubKey = errors.New("public key must not be null")
	// ErrInvalidCypherText is thrown when a ciphertext is malformed beyond
	// any attempt at decryption.
	ErrInvalidCypherText = errors.New("cypher text is not valid")
	// ErrDecryptionFailed is thrown when a ciphertext does not open with the
	// local private key. It usually means the payload is addressed to a
	// different recipient and must be discarded silently.
	ErrDecryptionFailed = errors.New("cypher text cannot be decrypted with this key")
	// ErrInvalidSignature is thrown when the embedded signature does not
	// verify against the signer's public key.
	ErrInvalidSignature = errors.New("signature verification failed")
)
