package domain

// TradeStatus is the derived lifecycle stage of a trade. The numeric order
// follows the lifecycle so that statuses can be compared.
type TradeStatus int

const (
	TradeStatusCreated TradeStatus = iota
	TradeStatusAccepted
	TradeStatusFunding
	TradeStatusFunded
	TradeStatusPaid
	TradeStatusArbitrating
	TradeStatusCompleting
	TradeStatusCompleted
	TradeStatusCanceling
	TradeStatusCanceled
)

func (s TradeStatus) String() string {
	switch s {
	case TradeStatusCreated:
		return "CREATED"
	case TradeStatusAccepted:
		return "ACCEPTED"
	case TradeStatusFunding:
		return "FUNDING"
	case TradeStatusFunded:
		return "FUNDED"
	case TradeStatusPaid:
		return "PAID"
	case TradeStatusArbitrating:
		return "ARBITRATING"
	case TradeStatusCompleting:
		return "COMPLETING"
	case TradeStatusCompleted:
		return "COMPLETED"
	case TradeStatusCanceling:
		return "CANCELING"
	case TradeStatusCanceled:
		return "CANCELED"
	default:
		return "UNDEFINED"
	}
}

// Terminal returns whether a trade in this status is read-only.
func (s TradeStatus) Terminal() bool {
	return s == TradeStatusCompleted || s == TradeStatusCanceled
}

// Status derives the trade status from the accumulated facts. It is a pure
// function of the trade value: rules are evaluated in fixed precedence order
// and later rules override earlier ones, so the status never decreases as
// facts accumulate.
func (t *Trade) Status() (TradeStatus, error) {
	defined := false
	var status TradeStatus

	if t.Offer != nil && t.TradeRequest != nil {
		status, defined = TradeStatusCreated, true
	}
	if defined && t.Acceptance != nil {
		status = TradeStatusAccepted
	}
	if defined && t.Acceptance != nil && t.PaymentRequest != nil {
		status = TradeStatusFunding
	}
	if status == TradeStatusFunding && t.FundingTx.Confirmed() {
		status = TradeStatusFunded
	}
	if status == TradeStatusFunded && t.PayoutRequest != nil {
		status = TradeStatusPaid
	}
	if defined && t.CancelCompleted != nil &&
		t.CancelCompleted.Reason == CancelReasonBuyerCancelFunded &&
		t.FundingTx.Confirmed() {
		status = TradeStatusCanceling
	}
	if defined && t.ArbitrateRequest != nil {
		status = TradeStatusArbitrating
	}
	if defined && t.PayoutCompleted != nil && t.PayoutCompleted.PayoutTxHash != "" {
		status = TradeStatusCompleting
	}
	if status == TradeStatusCompleting && t.PayoutTx.Confirmed() {
		status = TradeStatusCompleted
	}
	if (status == TradeStatusCreated || status == TradeStatusAccepted) &&
		t.CancelCompleted != nil &&
		(t.CancelCompleted.Reason == CancelReasonSellerCancelUnfunded ||
			t.CancelCompleted.Reason == CancelReasonBuyerCancelUnfunded) {
		status = TradeStatusCanceled
	}
	if status == TradeStatusCanceling && t.PayoutTx.Confirmed() {
		status = TradeStatusCanceled
	}

	if !defined {
		return 0, ErrStatusUndefined
	}
	return status, nil
}
