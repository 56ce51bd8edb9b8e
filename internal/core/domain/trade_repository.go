package domain

import "context"

// TradeRepository is the persistence boundary for trades. Update runs the
// given closure against the current record and persists its result in a
// single unit: it is the synchronization point that serializes all mutation
// of one trade id.
type TradeRepository interface {
	GetTrade(ctx context.Context, id string) (*Trade, error)
	GetAllTrades(ctx context.Context) ([]*Trade, error)
	AddTrade(ctx context.Context, trade *Trade) error
	UpdateTrade(
		ctx context.Context, id string,
		updateFn func(t *Trade) (*Trade, error),
	) (*Trade, error)
	DeleteTrade(ctx context.Context, id string) error
}

// PaymentDetailRepository stores the local party's payment instructions per
// fiat currency and payment method. Only the seller reads it, to assemble
// the payment request when funding the escrow.
type PaymentDetailRepository interface {
	GetPaymentDetail(ctx context.Context, currencyCode, method string) (string, error)
	AddPaymentDetail(ctx context.Context, currencyCode, method, detail string) error
}
