package dbbadger

import (
	"encoding/hex"
	"errors"

	"github.com/timshannon/badgerhold/v4"

	"github.com/btcescrow/escrowd/internal/core/ports"
)

// ErrKeyNotFound is returned when no private key is stored for a public key.
var ErrKeyNotFound = errors.New("key not found")

type keyPairRecord struct {
	PubKey  []byte `json:"pubKey"`
	PrivKey []byte `json:"privKey"`
}

type keyStoreImpl struct {
	db *DbManager
}

// NewKeyStoreImpl returns a badger backed escrow key store.
func NewKeyStoreImpl(db *DbManager) ports.KeyStore {
	return keyStoreImpl{db: db}
}

func (k keyStoreImpl) StoreKeyPair(pubKey, privKey []byte) error {
	return k.db.KeyStore.Upsert(hex.EncodeToString(pubKey), keyPairRecord{
		PubKey:  pubKey,
		PrivKey: privKey,
	})
}

func (k keyStoreImpl) GetPrivKey(pubKey []byte) ([]byte, error) {
	var record keyPairRecord
	err := k.db.KeyStore.Get(hex.EncodeToString(pubKey), &record)
	if err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	return record.PrivKey, nil
}
