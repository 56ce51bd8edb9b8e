package dbbadger

import (
	"context"
	"errors"
	"sync"

	"github.com/dgraph-io/badger/v3"
	"github.com/timshannon/badgerhold/v4"

	"github.com/btcescrow/escrowd/internal/core/domain"
)

const (
	TradeBadgerholdKeyPrefix = "bh_tradeRecord"
)

//badgerhold internal implementation adds prefix to the key
var tradeTablePrefixKey = []byte(TradeBadgerholdKeyPrefix)

type tradeRepositoryImpl struct {
	db *DbManager

	// one mutex per trade id, serializing UpdateTrade closures
	locks sync.Map
}

// NewTradeRepositoryImpl returns a badger backed TradeRepository.
func NewTradeRepositoryImpl(db *DbManager) domain.TradeRepository {
	return &tradeRepositoryImpl{db: db}
}

func (t *tradeRepositoryImpl) GetTrade(
	ctx context.Context, id string,
) (*domain.Trade, error) {
	return t.getTrade(id)
}

func (t *tradeRepositoryImpl) GetAllTrades(
	ctx context.Context,
) ([]*domain.Trade, error) {
	return t.getAllTrades(), nil
}

func (t *tradeRepositoryImpl) AddTrade(
	ctx context.Context, trade *domain.Trade,
) error {
	err := t.db.TradeStore.Insert(trade.Id, toTradeRecord(trade))
	if err != nil && err != badgerhold.ErrKeyExists {
		return err
	}
	return nil
}

func (t *tradeRepositoryImpl) UpdateTrade(
	ctx context.Context,
	id string,
	updateFn func(t *domain.Trade) (*domain.Trade, error),
) (*domain.Trade, error) {
	lock := t.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	currentTrade, err := t.getTrade(id)
	if err != nil {
		return nil, err
	}

	updatedTrade, err := updateFn(currentTrade)
	if err != nil {
		return nil, err
	}

	if err := t.db.TradeStore.Update(id, toTradeRecord(updatedTrade)); err != nil {
		return nil, err
	}
	return updatedTrade, nil
}

func (t *tradeRepositoryImpl) DeleteTrade(
	ctx context.Context, id string,
) error {
	err := t.db.TradeStore.Delete(id, tradeRecord{})
	if errors.Is(err, badgerhold.ErrNotFound) {
		return domain.ErrTradeNotFound
	}
	return err
}

func (t *tradeRepositoryImpl) lockFor(id string) *sync.Mutex {
	lock, _ := t.locks.LoadOrStore(id, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

func (t *tradeRepositoryImpl) getTrade(id string) (*domain.Trade, error) {
	var record tradeRecord
	if err := t.db.TradeStore.Get(id, &record); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, domain.ErrTradeNotFound
		}
		return nil, err
	}
	return record.toTrade(), nil
}

func (t *tradeRepositoryImpl) getAllTrades() []*domain.Trade {
	trades := make([]*domain.Trade, 0)

	t.db.TradeStore.Badger().View(func(tx *badger.Txn) error {
		iter := badger.DefaultIteratorOptions
		iter.PrefetchValues = true
		it := tx.NewIterator(iter)
		defer it.Close()

		for it.Seek(tradeTablePrefixKey); it.ValidForPrefix(tradeTablePrefixKey); it.Next() {
			item := it.Item()
			data, _ := item.ValueCopy(nil)
			var record tradeRecord
			if err := JSONDecode(data, &record); err == nil && record.Trade != nil {
				trades = append(trades, record.toTrade())
			}
		}
		return nil
	})
	return trades
}
