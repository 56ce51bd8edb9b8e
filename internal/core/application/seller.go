package application

import (
	"context"

	"github.com/btcescrow/escrowd/internal/core/domain"
	"github.com/btcescrow/escrowd/pkg/escrow"
)

// payoutTxOpts assembles the escrow-spending transaction description shared
// by every signing party. The fee rate recorded in the payment request wins
// over the local default so that all parties reproduce the same sighash.
func (p *protocol) payoutTxOpts(
	t *domain.Trade, fundingTxBytes []byte, payoutAddress string,
) escrow.PayoutTxOpts {
	feePerKb := p.feePerKb
	if t.PaymentRequest != nil && t.PaymentRequest.TxFeePerKb > 0 {
		feePerKb = t.PaymentRequest.TxFeePerKb
	}
	return escrow.PayoutTxOpts{
		Amount:         t.BtcAmount(),
		Fee:            escrow.PayoutFee(feePerKb),
		FundingTxBytes: fundingTxBytes,
		ArbitratorKey:  t.ArbitratorPubKey(),
		SellerKey:      t.SellerEscrowPubKey(),
		BuyerKey:       t.BuyerEscrowPubKey(),
		PayoutAddress:  payoutAddress,
		Params:         p.params,
	}
}

// fundEscrow is the seller-only operation moving an ACCEPTED trade to
// FUNDING: it pays amount+fee into the escrow address, picks a refund
// address and pre-signs the refund so buyer or arbitrator can later release
// the funds back without the seller online.
func (p *protocol) fundEscrow(
	ctx context.Context, local *domain.Trade, paymentDetails string,
) (*domain.Trade, error) {
	fee := escrow.PayoutFee(p.feePerKb)
	fundingTxBytes, fundingTxHash, err := p.wallet.Fund(
		ctx, local.EscrowAddress(), local.BtcAmount()+fee,
	)
	if err != nil {
		return nil, err
	}

	refundAddress, err := p.wallet.FreshDepositAddress(ctx)
	if err != nil {
		return nil, err
	}
	sellerKey, err := p.wallet.EscrowPrivKey(ctx, local.SellerEscrowPubKey())
	if err != nil {
		return nil, err
	}
	refundSig, err := escrow.Sign(
		p.payoutTxOpts(local, fundingTxBytes, refundAddress), sellerKey,
	)
	if err != nil {
		return nil, err
	}

	return local.WithPaymentRequest(domain.PaymentRequest{
		FundingTxHash:     fundingTxHash,
		PaymentDetails:    paymentDetails,
		RefundAddress:     refundAddress,
		RefundTxSignature: refundSig,
		TxFeePerKb:        p.feePerKb,
	}), nil
}

// paymentReceived is the seller-only operation resolving a PAID trade: the
// seller confirms the fiat arrived, combines its own signature with the
// buyer's recorded one and broadcasts the payout.
func (p *protocol) paymentReceived(
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

	sellerKey, err := p.wallet.EscrowPrivKey(ctx, local.SellerEscrowPubKey())
	if err != nil {
		return nil, err
	}
	sellerSig, err := escrow.Sign(opts, sellerKey)
	if err != nil {
		return nil, err
	}

	// Redeem script order is (arbitrator, seller, buyer).
	txBytes, txHash, err := escrow.FinalizePayout(escrow.FinalizePayoutOpts{
		PayoutTxOpts: opts,
		Signatures:   [][]byte{sellerSig, local.PayoutRequest.PayoutTxSignature},
	})
	if err != nil {
		return nil, err
	}
	if _, err := p.wallet.Broadcast(ctx, escrow.TxHex(txBytes)); err != nil {
		return nil, err
	}

	return local.WithPayoutCompleted(domain.PayoutCompleted{
		PayoutTxHash: txHash,
		Reason:       domain.PayoutReasonSellerBuyerPayout,
	}), nil
}

// sellerCanFund reports whether the wallet can cover the escrow deposit.
func (p *protocol) sellerCanFund(ctx context.Context, t *domain.Trade) (bool, error) {
	balance, err := p.wallet.Balance(ctx)
	if err != nil {
		return false, err
	}
	return balance >= t.BtcAmount()+escrow.PayoutFee(p.feePerKb), nil
}
