package payload

import (
	"crypto/sha256"
	"encoding/json"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// Signed is the plaintext envelope exchanged through the relay: the snapshot
// content, the signer's identity key and a DER signature over the content
// hash.
type Signed struct {
	Content      []byte `json:"content"`
	SignerPubKey []byte `json:"signerPubKey"`
	Signature    []byte `json:"signature"`
}

// Hash returns the content hash signatures are computed over.
func Hash(content []byte) []byte {
	h := sha256.Sum256(content)
	return h[:]
}

// Sign signs the content hash with the given identity key and returns the
// envelope ready for encryption.
func Sign(content []byte, privKey *btcec.PrivateKey) (*Signed, error) {
	if len(content) <= 0 {
		return nil, ErrNullContent
	}

	sig := ecdsa.Sign(privKey, Hash(content))
	return &Signed{
		Content:      content,
		SignerPubKey: privKey.PubKey().SerializeCompressed(),
		Signature:    sig.Serialize(),
	}, nil
}

// Verify checks the embedded signature against the embedded signer key.
// Callers must separately check that the signer key is the party expected to
// have signed the newest fact.
func (s *Signed) Verify() error {
	pubKey, err := btcec.ParsePubKey(s.SignerPubKey)
	if err != nil {
		return ErrInvalidSignature
	}
	sig, err := ecdsa.ParseDERSignature(s.Signature)
	if err != nil {
		return ErrInvalidSignature
	}
	if !sig.Verify(Hash(s.Content), pubKey) {
		return ErrInvalidSignature
	}
	return nil
}

// Marshal serializes the envelope for encryption.
func (s *Signed) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// Unmarshal parses a decrypted envelope.
func Unmarshal(data []byte) (*Signed, error) {
	var s Signed
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, ErrInvalidCypherText
	}
	return &s, nil
}
