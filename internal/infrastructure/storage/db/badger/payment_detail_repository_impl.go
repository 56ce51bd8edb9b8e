package dbbadger

import (
	"context"
	"errors"

	"github.com/timshannon/badgerhold/v4"

	"github.com/btcescrow/escrowd/internal/core/domain"
)

type paymentDetailRecord struct {
	Key    string `json:"key"`
	Detail string `json:"detail"`
}

type paymentDetailRepositoryImpl struct {
	db *DbManager
}

// NewPaymentDetailRepositoryImpl returns a badger backed
// PaymentDetailRepository.
func NewPaymentDetailRepositoryImpl(db *DbManager) domain.PaymentDetailRepository {
	return paymentDetailRepositoryImpl{db: db}
}

func (p paymentDetailRepositoryImpl) GetPaymentDetail(
	ctx context.Context, currencyCode, method string,
) (string, error) {
	var record paymentDetailRecord
	err := p.db.PaymentStore.Get(paymentDetailKey(currencyCode, method), &record)
	if err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return "", domain.ErrPaymentDetailNotFound
		}
		return "", err
	}
	return record.Detail, nil
}

func (p paymentDetailRepositoryImpl) AddPaymentDetail(
	ctx context.Context, currencyCode, method, detail string,
) error {
	key := paymentDetailKey(currencyCode, method)
	return p.db.PaymentStore.Upsert(key, paymentDetailRecord{
		Key:    key,
		Detail: detail,
	})
}

func paymentDetailKey(currencyCode, method string) string {
	return currencyCode + "/" + method
}
