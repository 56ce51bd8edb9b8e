package application

import (
	"bytes"
	"context"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	log "github.com/sirupsen/logrus"

	"github.com/btcescrow/escrowd/internal/core/domain"
	"github.com/btcescrow/escrowd/internal/core/ports"
	"github.com/btcescrow/escrowd/pkg/escrow"
)

// handlerKey selects the protocol handler for one reconciliation pass: the
// LOCAL record's status, never the snapshot's, paired with the local role.
// Keying the table this way makes the transition matrix explicit and
// guarantees exactly one transition attempt per pass.
type handlerKey struct {
	status domain.TradeStatus
	role   domain.Role
}

// A protocolHandler inspects a received snapshot and returns the new local
// record, or nil when nothing in the snapshot can be trusted at this point.
// The publish flag requests a push of the result to the relay.
type protocolHandler func(
	ctx context.Context, p *protocol, local, received *domain.Trade,
) (*domain.Trade, bool, error)

// protocol bundles what every role handler needs: wallet access for keys,
// balances and address watching, plus the local identity.
type protocol struct {
	wallet           ports.WalletService
	profilePubKey    []byte
	arbitratorPubKey []byte
	params           *chaincfg.Params
	feePerKb         btcutil.Amount
}

func newProtocol(
	wallet ports.WalletService,
	profilePubKey, arbitratorPubKey []byte,
	params *chaincfg.Params,
	feePerKb btcutil.Amount,
) *protocol {
	return &protocol{
		wallet:           wallet,
		profilePubKey:    profilePubKey,
		arbitratorPubKey: arbitratorPubKey,
		params:           params,
		feePerKb:         feePerKb,
	}
}

// handlers is the closed transition matrix of the protocol. Statuses missing
// a (status, role) entry are terminal or advance only through chain
// confirmations, and reconciliation leaves them untouched.
var handlers = map[handlerKey]protocolHandler{
	{domain.TradeStatusCreated, domain.RoleBuyer}:  handleCreated,
	{domain.TradeStatusCreated, domain.RoleSeller}: handleCreated,

	{domain.TradeStatusAccepted, domain.RoleBuyer}:  handleAcceptedBuyer,
	{domain.TradeStatusAccepted, domain.RoleSeller}: handleAcceptedSeller,

	{domain.TradeStatusFunding, domain.RoleBuyer}:  handleFundingBuyer,
	{domain.TradeStatusFunding, domain.RoleSeller}: handleFundingSeller,

	{domain.TradeStatusFunded, domain.RoleBuyer}:  handleFundedBuyer,
	{domain.TradeStatusFunded, domain.RoleSeller}: handleFundedSeller,

	{domain.TradeStatusPaid, domain.RoleBuyer}:  handlePaidBuyer,
	{domain.TradeStatusPaid, domain.RoleSeller}: handlePaidSeller,

	{domain.TradeStatusArbitrating, domain.RoleBuyer}:      handleArbitratingParty,
	{domain.TradeStatusArbitrating, domain.RoleSeller}:     handleArbitratingParty,
	{domain.TradeStatusArbitrating, domain.RoleArbitrator}: handleArbitratingArbitrator,

	// an arbitrator first hears of a trade through a disputed snapshot and
	// merges its way up from a bare seeded record
	{domain.TradeStatusCreated, domain.RoleArbitrator}:  handleArbitratingArbitrator,
	{domain.TradeStatusAccepted, domain.RoleArbitrator}: handleArbitratingArbitrator,
	{domain.TradeStatusFunding, domain.RoleArbitrator}:  handleArbitratingArbitrator,
	{domain.TradeStatusFunded, domain.RoleArbitrator}:   handleArbitratingArbitrator,
	{domain.TradeStatusPaid, domain.RoleArbitrator}:     handleArbitratingArbitrator,
}

// dispatch selects and runs the handler for the local record.
func dispatch(
	ctx context.Context, p *protocol, local, received *domain.Trade,
) (*domain.Trade, bool, error) {
	status, err := local.Status()
	if err != nil {
		return nil, false, err
	}
	role, err := local.RoleFor(p.profilePubKey, p.arbitratorPubKey)
	if err != nil {
		return nil, false, err
	}

	handler, ok := handlers[handlerKey{status, role}]
	if !ok {
		log.WithFields(log.Fields{
			"trade":  local.Id,
			"status": status.String(),
			"role":   string(role),
		}).Debug("no protocol handler for status, skipping snapshot")
		return nil, false, nil
	}
	return handler(ctx, p, local, received)
}

// isMaker returns whether the local profile made the trade's offer.
func (p *protocol) isMaker(t *domain.Trade) bool {
	return t.Offer != nil && bytes.Equal(p.profilePubKey, t.Offer.MakerProfilePubKey)
}

// escrowAddress derives the escrow address from the trade's three keys. It
// never trusts the address carried by a snapshot.
func (p *protocol) escrowAddress(t *domain.Trade) (string, error) {
	return escrow.Address(
		t.ArbitratorPubKey(), t.SellerEscrowPubKey(), t.BuyerEscrowPubKey(), p.params,
	)
}

// adoptUnfundedCancel copies a counterparty's unfunded cancelation forward.
func adoptUnfundedCancel(local, received *domain.Trade) *domain.Trade {
	if received.CancelCompleted == nil || local.CancelCompleted != nil {
		return nil
	}
	switch received.CancelCompleted.Reason {
	case domain.CancelReasonSellerCancelUnfunded, domain.CancelReasonBuyerCancelUnfunded:
		return local.WithCancelCompleted(*received.CancelCompleted)
	}
	return nil
}

// adoptFundedCancel copies the buyer's funded cancelation forward.
func adoptFundedCancel(local, received *domain.Trade) *domain.Trade {
	if received.CancelCompleted == nil || local.CancelCompleted != nil {
		return nil
	}
	if received.CancelCompleted.Reason != domain.CancelReasonBuyerCancelFunded {
		return nil
	}
	return local.WithCancelCompleted(*received.CancelCompleted)
}

// adoptArbitrateRequest copies a dispute forward.
func adoptArbitrateRequest(local, received *domain.Trade) *domain.Trade {
	if received.ArbitrateRequest == nil || local.ArbitrateRequest != nil {
		return nil
	}
	return local.WithArbitrateRequest(*received.ArbitrateRequest)
}

// handleCreated reconciles a snapshot against a CREATED record. The taking
// side adopts a valid acceptance after re-deriving the escrow address; the
// making side never trusts a received acceptance and instead computes its
// own, which includes the wallet balance check a seller must pass before
// committing to fund.
func handleCreated(
	ctx context.Context, p *protocol, local, received *domain.Trade,
) (*domain.Trade, bool, error) {
	if updated := adoptUnfundedCancel(local, received); updated != nil {
		return updated, false, nil
	}

	if p.isMaker(local) {
		return acceptTrade(ctx, p, local)
	}

	if received.Acceptance == nil {
		return nil, false, nil
	}
	candidate := local.WithAcceptance(*received.Acceptance)
	derived, err := p.escrowAddress(candidate)
	if err != nil {
		return nil, false, err
	}
	if derived != received.Acceptance.EscrowAddress {
		return nil, false, ErrEscrowAddressMismatch
	}
	if err := p.wallet.WatchAddress(ctx, derived); err != nil {
		return nil, false, err
	}
	return candidate, false, nil
}

// acceptTrade independently computes the maker's acceptance: own fresh
// escrow key, the configured arbitrator and the derived address. A seller
// additionally proves it can fund the escrow before accepting.
func acceptTrade(
	ctx context.Context, p *protocol, local *domain.Trade,
) (*domain.Trade, bool, error) {
	if local.Offer.Type == domain.OfferTypeSell {
		canFund, err := p.sellerCanFund(ctx, local)
		if err != nil {
			return nil, false, err
		}
		if !canFund {
			return nil, false, ErrInsufficientFunds
		}
	}

	escrowKey, err := p.wallet.FreshEscrowKey(ctx)
	if err != nil {
		return nil, false, err
	}
	candidate := local.WithAcceptance(domain.TradeAcceptance{
		ArbitratorPubKey:  p.arbitratorPubKey,
		MakerEscrowPubKey: escrowKey,
	})
	address, err := p.escrowAddress(candidate)
	if err != nil {
		return nil, false, err
	}
	acceptance := *candidate.Acceptance
	acceptance.EscrowAddress = address
	candidate = local.WithAcceptance(acceptance)

	if err := p.wallet.WatchAddress(ctx, address); err != nil {
		return nil, false, err
	}
	return candidate, true, nil
}

func handleAcceptedBuyer(
	_ context.Context, p *protocol, local, received *domain.Trade,
) (*domain.Trade, bool, error) {
	if updated := adoptUnfundedCancel(local, received); updated != nil {
		return updated, false, nil
	}
	if updated := adoptArbitrateRequest(local, received); updated != nil {
		return updated, false, nil
	}
	if received.PaymentRequest != nil && local.PaymentRequest == nil {
		return local.WithPaymentRequest(*received.PaymentRequest), false, nil
	}
	return nil, false, nil
}

func handleAcceptedSeller(
	_ context.Context, p *protocol, local, received *domain.Trade,
) (*domain.Trade, bool, error) {
	if updated := adoptUnfundedCancel(local, received); updated != nil {
		return updated, false, nil
	}
	if updated := adoptArbitrateRequest(local, received); updated != nil {
		return updated, false, nil
	}
	return nil, false, nil
}

func handleFundingBuyer(
	_ context.Context, p *protocol, local, received *domain.Trade,
) (*domain.Trade, bool, error) {
	if updated := adoptArbitrateRequest(local, received); updated != nil {
		return updated, false, nil
	}
	return nil, false, nil
}

func handleFundingSeller(
	_ context.Context, p *protocol, local, received *domain.Trade,
) (*domain.Trade, bool, error) {
	if updated := adoptFundedCancel(local, received); updated != nil {
		return updated, false, nil
	}
	if updated := adoptArbitrateRequest(local, received); updated != nil {
		return updated, false, nil
	}
	return nil, false, nil
}

func handleFundedBuyer(
	_ context.Context, p *protocol, local, received *domain.Trade,
) (*domain.Trade, bool, error) {
	if updated := adoptArbitrateRequest(local, received); updated != nil {
		return updated, false, nil
	}
	return nil, false, nil
}

func handleFundedSeller(
	_ context.Context, p *protocol, local, received *domain.Trade,
) (*domain.Trade, bool, error) {
	if updated := adoptFundedCancel(local, received); updated != nil {
		return updated, false, nil
	}
	if updated := adoptArbitrateRequest(local, received); updated != nil {
		return updated, false, nil
	}
	if received.PayoutRequest != nil && local.PayoutRequest == nil {
		return local.WithPayoutRequest(*received.PayoutRequest), false, nil
	}
	return nil, false, nil
}

func handlePaidBuyer(
	_ context.Context, p *protocol, local, received *domain.Trade,
) (*domain.Trade, bool, error) {
	if updated := adoptArbitrateRequest(local, received); updated != nil {
		return updated, false, nil
	}
	if received.PayoutCompleted != nil && local.PayoutCompleted == nil &&
		received.PayoutCompleted.Reason == domain.PayoutReasonSellerBuyerPayout {
		return local.WithPayoutCompleted(*received.PayoutCompleted), false, nil
	}
	return nil, false, nil
}

func handlePaidSeller(
	_ context.Context, p *protocol, local, received *domain.Trade,
) (*domain.Trade, bool, error) {
	if updated := adoptArbitrateRequest(local, received); updated != nil {
		return updated, false, nil
	}
	return nil, false, nil
}

// handleArbitratingParty lets buyer and seller adopt the arbitrator's
// resolution once it lands.
func handleArbitratingParty(
	_ context.Context, p *protocol, local, received *domain.Trade,
) (*domain.Trade, bool, error) {
	if received.PayoutCompleted == nil || local.PayoutCompleted != nil {
		return nil, false, nil
	}
	switch received.PayoutCompleted.Reason {
	case domain.PayoutReasonArbitratorSellerRefund, domain.PayoutReasonArbitratorBuyerPayout:
		return local.WithPayoutCompleted(*received.PayoutCompleted), false, nil
	}
	return nil, false, nil
}

// handleArbitratingArbitrator merges every fact the arbitrator is missing.
// Signature verification already happened in the relay client against the
// signer table, so each snapshot's newest fact is trustworthy here; watching
// the escrow address lets the arbitrator confirm funding on its own.
func handleArbitratingArbitrator(
	ctx context.Context, p *protocol, local, received *domain.Trade,
) (*domain.Trade, bool, error) {
	updated := local
	changed := false

	if local.Acceptance == nil && received.Acceptance != nil {
		updated = updated.WithAcceptance(*received.Acceptance)
		derived, err := p.escrowAddress(updated)
		if err != nil {
			return nil, false, err
		}
		if derived != received.Acceptance.EscrowAddress {
			return nil, false, ErrEscrowAddressMismatch
		}
		if err := p.wallet.WatchAddress(ctx, derived); err != nil {
			return nil, false, err
		}
		changed = true
	}
	if updated.PaymentRequest == nil && received.PaymentRequest != nil {
		updated = updated.WithPaymentRequest(*received.PaymentRequest)
		changed = true
	}
	if updated.PayoutRequest == nil && received.PayoutRequest != nil {
		updated = updated.WithPayoutRequest(*received.PayoutRequest)
		changed = true
	}
	if updated.ArbitrateRequest == nil && received.ArbitrateRequest != nil {
		updated = updated.WithArbitrateRequest(*received.ArbitrateRequest)
		changed = true
	}
	if updated.CancelCompleted == nil && received.CancelCompleted != nil {
		updated = updated.WithCancelCompleted(*received.CancelCompleted)
		changed = true
	}
	if updated.PayoutCompleted == nil && received.PayoutCompleted != nil {
		updated = updated.WithPayoutCompleted(*received.PayoutCompleted)
		changed = true
	}

	if !changed {
		return nil, false, nil
	}
	return updated, false, nil
}
