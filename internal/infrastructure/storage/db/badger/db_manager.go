package dbbadger

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v3"
	"github.com/timshannon/badgerhold/v4"
)

// DbManager holds all the badgerhold stores in a single data structure.
type DbManager struct {
	TradeStore   *badgerhold.Store
	PaymentStore *badgerhold.Store
	KeyStore     *badgerhold.Store
}

// NewDbManager opens (or creates if not exists) the badger stores on disk.
// It expects a base data dir and an optional logger, and creates a dedicated
// directory per store.
func NewDbManager(baseDbDir string, logger badger.Logger) (*DbManager, error) {
	tradeDb, err := createDb(baseDbDir+"/trade", logger)
	if err != nil {
		return nil, fmt.Errorf("opening trade db: %w", err)
	}

	paymentDb, err := createDb(baseDbDir+"/payment", logger)
	if err != nil {
		return nil, fmt.Errorf("opening payment db: %w", err)
	}

	keyDb, err := createDb(baseDbDir+"/key", logger)
	if err != nil {
		return nil, fmt.Errorf("opening key db: %w", err)
	}

	return &DbManager{
		TradeStore:   tradeDb,
		PaymentStore: paymentDb,
		KeyStore:     keyDb,
	}, nil
}

// Close closes all the stores.
func (d *DbManager) Close() error {
	for _, store := range []*badgerhold.Store{
		d.TradeStore, d.PaymentStore, d.KeyStore,
	} {
		if err := store.Close(); err != nil {
			return err
		}
	}
	return nil
}

// JSONEncode is a custom JSON based encoder for badger
func JSONEncode(value interface{}) ([]byte, error) {
	var buff bytes.Buffer

	en := json.NewEncoder(&buff)

	err := en.Encode(value)
	if err != nil {
		return nil, err
	}

	return buff.Bytes(), nil
}

// JSONDecode is a custom JSON based decoder for badger
func JSONDecode(data []byte, value interface{}) error {
	var buff bytes.Buffer
	de := json.NewDecoder(&buff)

	_, err := buff.Write(data)
	if err != nil {
		return err
	}

	return de.Decode(value)
}

func createDb(dbDir string, logger badger.Logger) (db *badgerhold.Store, err error) {
	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger

	db, err = badgerhold.Open(badgerhold.Options{
		Encoder:          JSONEncode,
		Decoder:          JSONDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})

	return
}
