package payload

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/crypto/hkdf"
)

var hkdfInfo = []byte("escrowd/payload/v1")

const pubKeyLen = 33

// deriveKey stretches the ECDH shared secret into an AES-256 key.
func deriveKey(secret []byte) ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, hkdfInfo), key); err != nil {
		return nil, err
	}
	return key, nil
}

// Encrypt encrypts the plaintext to a single recipient key using an
// ephemeral ECDH exchange and AES-GCM. The ephemeral public key and nonce
// are prepended so the recipient can reconstruct the shared secret.
func Encrypt(plainText, recipientPubKey []byte) (string, error) {
	if len(plainText) <= 0 {
		return "", ErrNullContent
	}
	recipient, err := btcec.ParsePubKey(recipientPubKey)
	if err != nil {
		return "", ErrNullPubKey
	}

	ephemeral, err := btcec.NewPrivateKey()
	if err != nil {
		return "", err
	}
	key, err := deriveKey(btcec.GenerateSharedSecret(ephemeral, recipient))
	if err != nil {
		return "", err
	}

	blockCipher, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(blockCipher)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	out := ephemeral.PubKey().SerializeCompressed()
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, plainText, nil)

	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt opens a ciphertext with the local private key. ErrDecryptionFailed
// means the payload was encrypted to a different recipient.
func Decrypt(cypherText string, privKey *btcec.PrivateKey) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(cypherText)
	if err != nil {
		return nil, ErrInvalidCypherText
	}
	if len(data) <= pubKeyLen {
		return nil, ErrInvalidCypherText
	}

	ephemeralPub, err := btcec.ParsePubKey(data[:pubKeyLen])
	if err != nil {
		return nil, ErrInvalidCypherText
	}
	key, err := deriveKey(btcec.GenerateSharedSecret(privKey, ephemeralPub))
	if err != nil {
		return nil, err
	}

	blockCipher, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(blockCipher)
	if err != nil {
		return nil, err
	}

	data = data[pubKeyLen:]
	if len(data) <= gcm.NonceSize() {
		return nil, ErrInvalidCypherText
	}
	nonce, text := data[:gcm.NonceSize()], data[gcm.NonceSize():]

	plainText, err := gcm.Open(nil, nonce, text, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plainText, nil
}
