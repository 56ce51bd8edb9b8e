package ports

import (
	"context"

	"github.com/btcescrow/escrowd/internal/core/domain"
)

// RelayResource is one trade snapshot as stored by the relay. The relay is
// dumb: it only assigns the monotonically increasing version and hands the
// opaque ciphertexts back. Each payload entry is the same signed snapshot
// encrypted to one recipient.
type RelayResource struct {
	Id        string   `json:"id"`
	OfferId   string   `json:"offerId"`
	Version   int64    `json:"version"`
	Arbitrate bool     `json:"arbitrate"`
	Payloads  []string `json:"payloads"`
}

// RelayTransport is the raw HTTP boundary to the relay. Network errors are
// retried with bounded backoff by the implementation before surfacing.
type RelayTransport interface {
	Put(ctx context.Context, resource RelayResource) (*RelayResource, error)
	Get(ctx context.Context, tradeId string, sinceVersion int64) ([]RelayResource, error)
	GetByOfferId(ctx context.Context, offerId string) ([]RelayResource, error)
	GetArbitrate(ctx context.Context, sinceVersion int64) ([]RelayResource, error)
}

// RelayClient is the trade-aware relay boundary consumed by the coordinator:
// it signs, encrypts per recipient and uploads outgoing snapshots, and
// decrypts and signature-checks incoming ones. Snapshots that fail to
// decrypt (addressed to somebody else) or whose signature does not match the
// expected signer are silently dropped, never trusted.
type RelayClient interface {
	Put(ctx context.Context, trade *domain.Trade) (*domain.Trade, error)
	Get(ctx context.Context, tradeId string, sinceVersion int64) ([]*domain.Trade, error)
	GetByOfferId(ctx context.Context, offerId string) ([]*domain.Trade, error)
	GetArbitrate(ctx context.Context, sinceVersion int64) ([]*domain.Trade, error)
}
