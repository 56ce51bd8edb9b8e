package domain_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/btcescrow/escrowd/internal/core/domain"
)

var (
	makerProfileKey = []byte("maker-profile-key")
	takerProfileKey = []byte("taker-profile-key")
	arbitratorKey   = []byte("arbitrator-key")
	makerEscrowKey  = []byte("maker-escrow-key")
	takerEscrowKey  = []byte("taker-escrow-key")

	escrowAddress = "2NBMEXm5wg1nXz1aLJrLzjUdW2qCQHcsLJy"
	refundAddress = "tb1qrefund"
	payoutAddress = "tb1qpayout"
)

func newSellOffer() domain.Offer {
	return domain.Offer{
		Id:                 "offer-1",
		Type:               domain.OfferTypeSell,
		MakerProfilePubKey: makerProfileKey,
		CurrencyCode:       "USD",
		PaymentMethod:      "SEPA",
		Price:              decimal.NewFromInt(50000),
		MinAmount:          decimal.NewFromInt(10),
		MaxAmount:          decimal.NewFromInt(500),
	}
}

func newBuyOffer() domain.Offer {
	offer := newSellOffer()
	offer.Type = domain.OfferTypeBuy
	return offer
}

func newTradeCreated() *domain.Trade {
	return domain.NewTrade(newSellOffer(), domain.TradeRequest{
		TakerProfilePubKey: takerProfileKey,
		TakerEscrowPubKey:  takerEscrowKey,
		BtcAmount:          decimal.NewFromFloat(0.002),
		PaymentAmount:      decimal.NewFromInt(100),
	})
}

func newTradeAccepted() *domain.Trade {
	return newTradeCreated().WithAcceptance(domain.TradeAcceptance{
		ArbitratorPubKey:  arbitratorKey,
		MakerEscrowPubKey: makerEscrowKey,
		EscrowAddress:     escrowAddress,
	})
}

func newTradeFunding() *domain.Trade {
	return newTradeAccepted().WithPaymentRequest(domain.PaymentRequest{
		FundingTxHash:     "aa00",
		PaymentDetails:    "IBAN DE00 0000",
		RefundAddress:     refundAddress,
		RefundTxSignature: []byte("refund-sig"),
	})
}

func newTradeFunded() *domain.Trade {
	return newTradeFunding().WithFundingTx(domain.TransactionWithAmt{
		TxHash: "aa00", Amount: 206800, Depth: 1,
	})
}

func newTradePaid() *domain.Trade {
	return newTradeFunded().WithPayoutRequest(domain.PayoutRequest{
		PaymentReference:  "invoice 42",
		PayoutAddress:     payoutAddress,
		PayoutTxSignature: []byte("payout-sig"),
	})
}

func newTradeCompleting() *domain.Trade {
	return newTradePaid().WithPayoutCompleted(domain.PayoutCompleted{
		PayoutTxHash: "bb00",
		Reason:       domain.PayoutReasonSellerBuyerPayout,
	})
}

func newTradeCompleted() *domain.Trade {
	return newTradeCompleting().WithPayoutTx(domain.TransactionWithAmt{
		TxHash: "bb00", Amount: 200000, Depth: 1,
	})
}

func TestSpendingHashAndAddress(t *testing.T) {
	t.Run("payout", func(t *testing.T) {
		trade := newTradeCompleting()
		require.Equal(t, "bb00", trade.SpendingTxHash())
		require.Equal(t, payoutAddress, trade.SpendingAddress())
	})

	t.Run("funded_cancel_refund", func(t *testing.T) {
		trade := newTradeFunded().WithCancelCompleted(domain.CancelCompleted{
			Reason:       domain.CancelReasonBuyerCancelFunded,
			RefundTxHash: "cc00",
		})
		require.Equal(t, "cc00", trade.SpendingTxHash())
		require.Equal(t, refundAddress, trade.SpendingAddress())
	})

	t.Run("arbitrator_refund", func(t *testing.T) {
		trade := newTradePaid().WithPayoutCompleted(domain.PayoutCompleted{
			PayoutTxHash: "dd00",
			Reason:       domain.PayoutReasonArbitratorSellerRefund,
		})
		require.Equal(t, "dd00", trade.SpendingTxHash())
		require.Equal(t, refundAddress, trade.SpendingAddress())
	})
}

func TestWithFactsDoNotMutateReceiver(t *testing.T) {
	trade := newTradeCreated()
	updated := trade.WithAcceptance(domain.TradeAcceptance{
		ArbitratorPubKey:  arbitratorKey,
		MakerEscrowPubKey: makerEscrowKey,
		EscrowAddress:     escrowAddress,
	})

	require.Nil(t, trade.Acceptance)
	require.NotNil(t, updated.Acceptance)
	require.Equal(t, trade.Id, updated.Id)
}

func TestBtcAmount(t *testing.T) {
	trade := newTradeCreated()
	require.EqualValues(t, 200000, trade.BtcAmount())
}
