package domain

import "bytes"

// Role is the part a party plays in a trade.
type Role string

const (
	RoleBuyer      Role = "BUYER"
	RoleSeller     Role = "SELLER"
	RoleArbitrator Role = "ARBITRATOR"
)

// RoleFor computes the role the given profile identity plays in the trade.
// For a SELL offer the maker is the seller and the taker the buyer, for a
// BUY offer the sides swap. A profile matching neither party but matching
// the arbitrator key is the arbitrator. Exactly one role must be computable,
// otherwise the record is invalid.
func (t *Trade) RoleFor(profilePubKey, arbitratorPubKey []byte) (Role, error) {
	if t.Offer == nil || t.TradeRequest == nil {
		return "", ErrRoleUndeterminable
	}

	maker := bytes.Equal(profilePubKey, t.Offer.MakerProfilePubKey)
	taker := bytes.Equal(profilePubKey, t.TradeRequest.TakerProfilePubKey)

	arbKey := arbitratorPubKey
	if t.Acceptance != nil {
		arbKey = t.Acceptance.ArbitratorPubKey
	}
	arbitrator := len(arbKey) > 0 && bytes.Equal(profilePubKey, arbKey)

	switch {
	case maker && t.Offer.Type == OfferTypeSell:
		return RoleSeller, nil
	case maker && t.Offer.Type == OfferTypeBuy:
		return RoleBuyer, nil
	case taker && t.Offer.Type == OfferTypeSell:
		return RoleBuyer, nil
	case taker && t.Offer.Type == OfferTypeBuy:
		return RoleSeller, nil
	case arbitrator:
		return RoleArbitrator, nil
	}
	return "", ErrRoleUndeterminable
}

// BuyerProfilePubKey returns the buyer's identity key.
func (t *Trade) BuyerProfilePubKey() []byte {
	if t.Offer == nil || t.TradeRequest == nil {
		return nil
	}
	if t.Offer.Type == OfferTypeSell {
		return t.TradeRequest.TakerProfilePubKey
	}
	return t.Offer.MakerProfilePubKey
}

// SellerProfilePubKey returns the seller's identity key.
func (t *Trade) SellerProfilePubKey() []byte {
	if t.Offer == nil || t.TradeRequest == nil {
		return nil
	}
	if t.Offer.Type == OfferTypeSell {
		return t.Offer.MakerProfilePubKey
	}
	return t.TradeRequest.TakerProfilePubKey
}

// BuyerEscrowPubKey returns the buyer's escrow key, one of the three keys of
// the multisig redeem script.
func (t *Trade) BuyerEscrowPubKey() []byte {
	if t.Offer == nil || t.TradeRequest == nil {
		return nil
	}
	if t.Offer.Type == OfferTypeSell {
		return t.TradeRequest.TakerEscrowPubKey
	}
	if t.Acceptance == nil {
		return nil
	}
	return t.Acceptance.MakerEscrowPubKey
}

// SellerEscrowPubKey returns the seller's escrow key, one of the three keys
// of the multisig redeem script.
func (t *Trade) SellerEscrowPubKey() []byte {
	if t.Offer == nil || t.TradeRequest == nil {
		return nil
	}
	if t.Offer.Type == OfferTypeBuy {
		return t.TradeRequest.TakerEscrowPubKey
	}
	if t.Acceptance == nil {
		return nil
	}
	return t.Acceptance.MakerEscrowPubKey
}

// ArbitratorPubKey returns the arbitrator's key recorded in the acceptance.
func (t *Trade) ArbitratorPubKey() []byte {
	if t.Acceptance == nil {
		return nil
	}
	return t.Acceptance.ArbitratorPubKey
}
