package dbbadger

import "github.com/btcescrow/escrowd/internal/core/domain"

// tradeRecord is the storage shape of a trade. The domain type hides the
// relay version, the offer ownership flag, the pending upload marker and the
// locally observed transactions from its JSON form because they are not part
// of the signed snapshot; the store must keep them, so they get explicit
// fields here.
type tradeRecord struct {
	Trade          *domain.Trade              `json:"trade"`
	Version        int64                      `json:"version"`
	OfferMine      bool                       `json:"offerMine"`
	PendingPublish bool                       `json:"pendingPublish,omitempty"`
	FundingTx      *domain.TransactionWithAmt `json:"fundingTx,omitempty"`
	PayoutTx       *domain.TransactionWithAmt `json:"payoutTx,omitempty"`
}

func toTradeRecord(t *domain.Trade) tradeRecord {
	return tradeRecord{
		Trade:          t,
		Version:        t.Version,
		OfferMine:      t.Offer != nil && t.Offer.IsMine,
		PendingPublish: t.PendingPublish,
		FundingTx:      t.FundingTx,
		PayoutTx:       t.PayoutTx,
	}
}

func (r tradeRecord) toTrade() *domain.Trade {
	t := r.Trade
	t.Version = r.Version
	if t.Offer != nil {
		t.Offer.IsMine = r.OfferMine
	}
	t.PendingPublish = r.PendingPublish
	t.FundingTx = r.FundingTx
	t.PayoutTx = r.PayoutTx
	return t
}
