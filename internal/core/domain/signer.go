package domain

// ExpectedSigner returns the identity key that must have signed a snapshot
// for its newest fact to be trusted. Facts are checked in reverse order of
// accumulation, so the fact that advanced the trade determines the signer.
func (t *Trade) ExpectedSigner() ([]byte, error) {
	switch {
	case t.PayoutCompleted != nil:
		switch t.PayoutCompleted.Reason {
		case PayoutReasonSellerBuyerPayout:
			return t.SellerProfilePubKey(), nil
		case PayoutReasonBuyerSellerRefund:
			return t.BuyerProfilePubKey(), nil
		case PayoutReasonArbitratorSellerRefund, PayoutReasonArbitratorBuyerPayout:
			return t.ArbitratorPubKey(), nil
		}
	case t.CancelCompleted != nil:
		switch t.CancelCompleted.Reason {
		case CancelReasonBuyerCancelUnfunded, CancelReasonBuyerCancelFunded:
			return t.BuyerProfilePubKey(), nil
		case CancelReasonSellerCancelUnfunded:
			return t.SellerProfilePubKey(), nil
		}
	case t.ArbitrateRequest != nil:
		switch t.ArbitrateRequest.Reason {
		case ArbitrateReasonNoBtc:
			return t.BuyerProfilePubKey(), nil
		case ArbitrateReasonNoPayment:
			return t.SellerProfilePubKey(), nil
		}
	case t.PayoutRequest != nil:
		return t.BuyerProfilePubKey(), nil
	case t.PaymentRequest != nil:
		return t.SellerProfilePubKey(), nil
	case t.Acceptance != nil:
		if t.Offer != nil {
			return t.Offer.MakerProfilePubKey, nil
		}
	case t.TradeRequest != nil:
		return t.TradeRequest.TakerProfilePubKey, nil
	}
	return nil, ErrRoleUndeterminable
}
