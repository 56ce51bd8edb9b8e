package application

import (
	"context"

	"github.com/btcescrow/escrowd/internal/core/domain"
	"github.com/btcescrow/escrowd/pkg/escrow"
)

// sendPayment is the buyer-only operation moving a FUNDED trade to PAID: it
// records the fiat payment reference and hands the seller the buyer's half
// of the payout.
func (p *protocol) sendPayment(
	ctx context.Context, local *domain.Trade, paymentReference string,
) (*domain.Trade, error) {
	fundingTxBytes, err := p.wallet.GetRawTransaction(ctx, local.FundingTxHash())
	if err != nil {
		return nil, err
	}
	payoutAddress, err := p.wallet.FreshDepositAddress(ctx)
	if err != nil {
		return nil, err
	}

	buyerKey, err := p.wallet.EscrowPrivKey(ctx, local.BuyerEscrowPubKey())
	if err != nil {
		return nil, err
	}
	payoutSig, err := escrow.Sign(
		p.payoutTxOpts(local, fundingTxBytes, payoutAddress), buyerKey,
	)
	if err != nil {
		return nil, err
	}

	return local.WithPayoutRequest(domain.PayoutRequest{
		PaymentReference:  paymentReference,
		PayoutAddress:     payoutAddress,
		PayoutTxSignature: payoutSig,
	}), nil
}

// cancelFundedTrade is the buyer-side (or arbitrator-on-buyer's-behalf)
// operation abandoning a funded trade: it combines the buyer's signature
// with the seller's pre-signed refund and broadcasts the refund back to the
// seller. The trade stays CANCELING until the refund confirms.
func (p *protocol) cancelFundedTrade(
	ctx context.Context, local *domain.Trade,
) (*domain.Trade, error) {
	if local.PaymentRequest == nil || len(local.PaymentRequest.RefundTxSignature) == 0 {
		return nil, ErrMissingCounterpartySignature
	}

	fundingTxBytes, err := p.wallet.GetRawTransaction(ctx, local.FundingTxHash())
	if err != nil {
		return nil, err
	}
	opts := p.payoutTxOpts(local, fundingTxBytes, local.PaymentRequest.RefundAddress)

	buyerKey, err := p.wallet.EscrowPrivKey(ctx, local.BuyerEscrowPubKey())
	if err != nil {
		return nil, err
	}
	buyerSig, err := escrow.Sign(opts, buyerKey)
	if err != nil {
		return nil, err
	}

	// Redeem script order is (arbitrator, seller, buyer).
	txBytes, txHash, err := escrow.FinalizePayout(escrow.FinalizePayoutOpts{
		PayoutTxOpts: opts,
		Signatures:   [][]byte{local.PaymentRequest.RefundTxSignature, buyerSig},
	})
	if err != nil {
		return nil, err
	}
	if _, err := p.wallet.Broadcast(ctx, escrow.TxHex(txBytes)); err != nil {
		return nil, err
	}

	return local.WithCancelCompleted(domain.CancelCompleted{
		Reason:       domain.CancelReasonBuyerCancelFunded,
		RefundTxHash: txHash,
	}), nil
}
