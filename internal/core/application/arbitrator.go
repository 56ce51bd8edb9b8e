package application

import (
	"context"

	"github.com/btcescrow/escrowd/internal/core/domain"
	"github.com/btcescrow/escrowd/pkg/escrow"
)

// refundSeller is the arbitrator-only resolution sending the escrow back to
// the seller: the arbitrator's signature is combined with the seller's
// pre-signed refund recorded in the payment request.
func (p *protocol) refundSeller(
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

	arbitratorKey, err := p.wallet.EscrowPrivKey(ctx, local.ArbitratorPubKey())
	if err != nil {
		return nil, err
	}
	arbitratorSig, err := escrow.Sign(opts, arbitratorKey)
	if err != nil {
		return nil, err
	}

	// Redeem script order is (arbitrator, seller, buyer).
	txBytes, txHash, err := escrow.FinalizePayout(escrow.FinalizePayoutOpts{
		PayoutTxOpts: opts,
		Signatures:   [][]byte{arbitratorSig, local.PaymentRequest.RefundTxSignature},
	})
	if err != nil {
		return nil, err
	}
	if _, err := p.wallet.Broadcast(ctx, escrow.TxHex(txBytes)); err != nil {
		return nil, err
	}

	return local.WithPayoutCompleted(domain.PayoutCompleted{
		PayoutTxHash: txHash,
		Reason:       domain.PayoutReasonArbitratorSellerRefund,
	}), nil
}

// payoutBuyer is the arbitrator-only resolution releasing the escrow to the
// buyer, combining the arbitrator's signature with the buyer's recorded
// payout signature.
func (p *protocol) payoutBuyer(
	ctx context.Context, local *domain.Trade,
) (*domain.Trade, error) {
	if local.PayoutRequest == nil || len(local.PayoutRequest.PayoutTxSignature) == 0 {
		return nil, ErrMissingCounterpartySignature
	}

	fundingTxBytes, err := p.wallet.GetRawTransaction(ctx, local.FundingTxHash())
	if err != nil {
		return nil, err
	}
	opts := p.payoutTxOpts(local, fundingTxBytes, local.PayoutRequest.PayoutAddress)

	arbitratorKey, err := p.wallet.EscrowPrivKey(ctx, local.ArbitratorPubKey())
	if err != nil {
		return nil, err
	}
	arbitratorSig, err := escrow.Sign(opts, arbitratorKey)
	if err != nil {
		return nil, err
	}

	// Redeem script order is (arbitrator, seller, buyer).
	txBytes, txHash, err := escrow.FinalizePayout(escrow.FinalizePayoutOpts{
		PayoutTxOpts: opts,
		Signatures:   [][]byte{arbitratorSig, local.PayoutRequest.PayoutTxSignature},
	})
	if err != nil {
		return nil, err
	}
	if _, err := p.wallet.Broadcast(ctx, escrow.TxHex(txBytes)); err != nil {
		return nil, err
	}

	return local.WithPayoutCompleted(domain.PayoutCompleted{
		PayoutTxHash: txHash,
		Reason:       domain.PayoutReasonArbitratorBuyerPayout,
	}), nil
}
