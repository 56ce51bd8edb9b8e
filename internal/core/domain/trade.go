package domain

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ArbitrateReason is the reason a party opened a dispute.
type ArbitrateReason string

const (
	ArbitrateReasonNoBtc     ArbitrateReason = "NO_BTC"
	ArbitrateReasonNoPayment ArbitrateReason = "NO_PAYMENT"
)

// CancelReason qualifies a CancelCompleted fact.
type CancelReason string

const (
	CancelReasonSellerCancelUnfunded CancelReason = "SELLER_CANCEL_UNFUNDED"
	CancelReasonBuyerCancelUnfunded  CancelReason = "BUYER_CANCEL_UNFUNDED"
	CancelReasonBuyerCancelFunded    CancelReason = "BUYER_CANCEL_FUNDED"
)

// PayoutReason qualifies a PayoutCompleted fact.
type PayoutReason string

const (
	PayoutReasonSellerBuyerPayout      PayoutReason = "SELLER_BUYER_PAYOUT"
	PayoutReasonBuyerSellerRefund      PayoutReason = "BUYER_SELLER_REFUND"
	PayoutReasonArbitratorSellerRefund PayoutReason = "ARBITRATOR_SELLER_REFUND"
	PayoutReasonArbitratorBuyerPayout  PayoutReason = "ARBITRATOR_BUYER_PAYOUT"
)

// TradeRequest is the fact added by the taker when taking an offer.
type TradeRequest struct {
	TakerProfilePubKey []byte          `json:"takerProfilePubKey"`
	TakerEscrowPubKey  []byte          `json:"takerEscrowPubKey"`
	BtcAmount          decimal.Decimal `json:"btcAmount"`
	PaymentAmount      decimal.Decimal `json:"paymentAmount"`
}

// TradeAcceptance is the fact added by the maker when accepting a trade
// request. The escrow address is a pure function of the three escrow keys,
// recomputed by every party rather than trusted.
type TradeAcceptance struct {
	ArbitratorPubKey  []byte `json:"arbitratorPubKey"`
	MakerEscrowPubKey []byte `json:"makerEscrowPubKey"`
	EscrowAddress     string `json:"escrowAddress"`
}

// PaymentRequest is the fact added by the seller once the escrow address has
// been funded. It carries the payment instructions for the buyer together
// with the seller's half of a possible refund.
type PaymentRequest struct {
	FundingTxHash     string         `json:"fundingTxHash"`
	PaymentDetails    string         `json:"paymentDetails"`
	RefundAddress     string         `json:"refundAddress"`
	RefundTxSignature []byte         `json:"refundTxSignature"`
	TxFeePerKb        btcutil.Amount `json:"txFeePerKb"`
}

// PayoutRequest is the fact added by the buyer after sending the fiat
// payment. It carries the buyer's half of the escrow payout.
type PayoutRequest struct {
	PaymentReference  string `json:"paymentReference"`
	PayoutAddress     string `json:"payoutAddress"`
	PayoutTxSignature []byte `json:"payoutTxSignature"`
}

// ArbitrateRequest is the fact added by buyer or seller to open a dispute.
type ArbitrateRequest struct {
	Reason ArbitrateReason `json:"reason"`
}

// CancelCompleted is the fact recording a cancelation. RefundTxHash is only
// set when the escrow was already funded and a refund had to be broadcast.
type CancelCompleted struct {
	Reason       CancelReason `json:"reason"`
	RefundTxHash string       `json:"refundTxHash,omitempty"`
}

// PayoutCompleted is the fact recording the broadcast of the escrow-spending
// transaction.
type PayoutCompleted struct {
	PayoutTxHash string       `json:"payoutTxHash"`
	Reason       PayoutReason `json:"reason"`
}

// TransactionWithAmt is the result of an on-chain lookup for a transaction
// relevant to a trade. It is attached locally by the chain watcher and never
// exchanged through the relay.
type TransactionWithAmt struct {
	TxHash string         `json:"txHash"`
	Amount btcutil.Amount `json:"amount"`
	Depth  uint32         `json:"depth"`
}

// Confirmed returns whether the transaction reached confirmation depth.
func (t *TransactionWithAmt) Confirmed() bool {
	return t != nil && t.Depth > 0
}

// Trade is the immutable snapshot of one trade's accumulated facts. Facts
// only ever accumulate: no handler removes a previously accepted fact, and
// handlers return a new Trade built from the old one instead of mutating it.
//
// Version is assigned by the relay on each accepted round-trip. Like the
// locally attached transactions it is not part of the signed snapshot
// content, hence the "-" json tags.
type Trade struct {
	Id      string `json:"id"`
	Version int64  `json:"-"`

	Offer            *Offer            `json:"offer,omitempty"`
	TradeRequest     *TradeRequest     `json:"tradeRequest,omitempty"`
	Acceptance       *TradeAcceptance  `json:"tradeAcceptance,omitempty"`
	PaymentRequest   *PaymentRequest   `json:"paymentRequest,omitempty"`
	PayoutRequest    *PayoutRequest    `json:"payoutRequest,omitempty"`
	ArbitrateRequest *ArbitrateRequest `json:"arbitrateRequest,omitempty"`
	CancelCompleted  *CancelCompleted  `json:"cancelCompleted,omitempty"`
	PayoutCompleted  *PayoutCompleted  `json:"payoutCompleted,omitempty"`

	FundingTx *TransactionWithAmt `json:"-"`
	PayoutTx  *TransactionWithAmt `json:"-"`

	// PendingPublish marks a locally persisted fact whose relay upload has
	// not been acknowledged yet. The coordinator republishes such records
	// and clears the flag once the relay accepts the snapshot.
	PendingPublish bool `json:"-"`
}

// NewTrade returns a trade with a fresh random id, seeded with the offer and
// the taker's trade request.
func NewTrade(offer Offer, request TradeRequest) *Trade {
	return &Trade{
		Id:           uuid.New().String(),
		Offer:        &offer,
		TradeRequest: &request,
	}
}

// SeedTrade reconstructs a minimal trade from the first received snapshot,
// used by the maker (or the arbitrator) who has no local record yet.
func SeedTrade(id string, offer Offer, request TradeRequest) *Trade {
	return &Trade{
		Id:           id,
		Offer:        &offer,
		TradeRequest: &request,
	}
}

// Fact structs are write-once, so a shallow copy is enough to guarantee
// copy-on-write semantics.
func (t *Trade) clone() *Trade {
	c := *t
	return &c
}

// WithVersion returns a copy of the trade at the relay-assigned version.
func (t *Trade) WithVersion(version int64) *Trade {
	c := t.clone()
	c.Version = version
	return c
}

// WithPendingPublish returns a copy of the trade with the pending relay
// upload marker set or cleared.
func (t *Trade) WithPendingPublish(pending bool) *Trade {
	c := t.clone()
	c.PendingPublish = pending
	return c
}

// WithAcceptance returns a copy of the trade with the acceptance fact added.
func (t *Trade) WithAcceptance(a TradeAcceptance) *Trade {
	c := t.clone()
	c.Acceptance = &a
	return c
}

// WithPaymentRequest returns a copy of the trade with the payment request
// fact added.
func (t *Trade) WithPaymentRequest(p PaymentRequest) *Trade {
	c := t.clone()
	c.PaymentRequest = &p
	return c
}

// WithPayoutRequest returns a copy of the trade with the payout request fact
// added.
func (t *Trade) WithPayoutRequest(p PayoutRequest) *Trade {
	c := t.clone()
	c.PayoutRequest = &p
	return c
}

// WithArbitrateRequest returns a copy of the trade with the dispute fact
// added.
func (t *Trade) WithArbitrateRequest(a ArbitrateRequest) *Trade {
	c := t.clone()
	c.ArbitrateRequest = &a
	return c
}

// WithCancelCompleted returns a copy of the trade with the cancelation fact
// added.
func (t *Trade) WithCancelCompleted(cc CancelCompleted) *Trade {
	c := t.clone()
	c.CancelCompleted = &cc
	return c
}

// WithPayoutCompleted returns a copy of the trade with the payout broadcast
// fact added.
func (t *Trade) WithPayoutCompleted(pc PayoutCompleted) *Trade {
	c := t.clone()
	c.PayoutCompleted = &pc
	return c
}

// WithFundingTx returns a copy of the trade with the looked-up funding
// transaction attached.
func (t *Trade) WithFundingTx(tx TransactionWithAmt) *Trade {
	c := t.clone()
	c.FundingTx = &tx
	return c
}

// WithPayoutTx returns a copy of the trade with the looked-up payout (or
// refund) transaction attached.
func (t *Trade) WithPayoutTx(tx TransactionWithAmt) *Trade {
	c := t.clone()
	c.PayoutTx = &tx
	return c
}

// EscrowAddress returns the escrow address recorded in the acceptance, if
// any.
func (t *Trade) EscrowAddress() string {
	if t.Acceptance == nil {
		return ""
	}
	return t.Acceptance.EscrowAddress
}

// FundingTxHash returns the hash of the transaction funding the escrow, if
// known.
func (t *Trade) FundingTxHash() string {
	if t.PaymentRequest == nil {
		return ""
	}
	return t.PaymentRequest.FundingTxHash
}

// SpendingTxHash returns the hash of the transaction spending the escrow,
// either the payout or the refund of a canceled funded trade.
func (t *Trade) SpendingTxHash() string {
	if t.PayoutCompleted != nil {
		return t.PayoutCompleted.PayoutTxHash
	}
	if t.CancelCompleted != nil {
		return t.CancelCompleted.RefundTxHash
	}
	return ""
}

// SpendingAddress returns the address the escrow-spending transaction pays
// to, or "" when the trade is not being spent.
func (t *Trade) SpendingAddress() string {
	if t.PayoutCompleted != nil {
		switch t.PayoutCompleted.Reason {
		case PayoutReasonSellerBuyerPayout, PayoutReasonArbitratorBuyerPayout:
			if t.PayoutRequest != nil {
				return t.PayoutRequest.PayoutAddress
			}
			return ""
		}
	}
	// refunds, by any path, always pay the seller's refund address
	if t.PaymentRequest == nil {
		return ""
	}
	return t.PaymentRequest.RefundAddress
}

// BtcAmount returns the traded bitcoin amount in satoshis.
func (t *Trade) BtcAmount() btcutil.Amount {
	if t.TradeRequest == nil {
		return 0
	}
	sat := t.TradeRequest.BtcAmount.Mul(decimal.NewFromInt(btcutil.SatoshiPerBitcoin))
	return btcutil.Amount(sat.IntPart())
}
