package relay

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/btcsuite/btcd/btcec/v2"
	log "github.com/sirupsen/logrus"

	"github.com/btcescrow/escrowd/internal/core/domain"
	"github.com/btcescrow/escrowd/internal/core/ports"
	"github.com/btcescrow/escrowd/pkg/payload"
)

type client struct {
	transport        ports.RelayTransport
	privKey          *btcec.PrivateKey
	pubKey           []byte
	arbitratorPubKey []byte
}

// NewClient returns the trade-aware relay boundary. Outgoing snapshots are
// signed with the local identity key and encrypted once per recipient;
// incoming ones are decrypted, signature-checked and matched against the
// signer the newest fact requires.
func NewClient(
	transport ports.RelayTransport,
	privKey *btcec.PrivateKey,
	arbitratorPubKey []byte,
) ports.RelayClient {
	return &client{
		transport:        transport,
		privKey:          privKey,
		pubKey:           privKey.PubKey().SerializeCompressed(),
		arbitratorPubKey: arbitratorPubKey,
	}
}

func (c *client) Put(ctx context.Context, trade *domain.Trade) (*domain.Trade, error) {
	content, err := json.Marshal(trade)
	if err != nil {
		return nil, err
	}
	signed, err := payload.Sign(content, c.privKey)
	if err != nil {
		return nil, err
	}
	signedBytes, err := signed.Marshal()
	if err != nil {
		return nil, err
	}

	recipients := c.recipients(trade)
	payloads := make([]string, 0, len(recipients))
	for _, recipient := range recipients {
		cypherText, err := payload.Encrypt(signedBytes, recipient)
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, cypherText)
	}

	resource := ports.RelayResource{
		Id:        trade.Id,
		OfferId:   trade.Offer.Id,
		Version:   trade.Version,
		Arbitrate: trade.ArbitrateRequest != nil,
		Payloads:  payloads,
	}
	accepted, err := c.transport.Put(ctx, resource)
	if err != nil {
		return nil, err
	}

	// The relay must assign a strictly higher version and echo the payloads
	// untouched. Anything else means the relay is lying and cannot be used.
	if accepted.Version <= trade.Version {
		return nil, ErrRelayProtocol
	}
	if len(accepted.Payloads) != len(payloads) {
		return nil, ErrRelayProtocol
	}
	for i, cypherText := range accepted.Payloads {
		if cypherText != payloads[i] {
			return nil, ErrRelayProtocol
		}
	}

	return trade.WithVersion(accepted.Version), nil
}

func (c *client) Get(
	ctx context.Context, tradeId string, sinceVersion int64,
) ([]*domain.Trade, error) {
	resources, err := c.transport.Get(ctx, tradeId, sinceVersion)
	if err != nil {
		return nil, err
	}
	return c.decodeAll(resources), nil
}

func (c *client) GetByOfferId(
	ctx context.Context, offerId string,
) ([]*domain.Trade, error) {
	resources, err := c.transport.GetByOfferId(ctx, offerId)
	if err != nil {
		return nil, err
	}
	return c.decodeAll(resources), nil
}

func (c *client) GetArbitrate(
	ctx context.Context, sinceVersion int64,
) ([]*domain.Trade, error) {
	resources, err := c.transport.GetArbitrate(ctx, sinceVersion)
	if err != nil {
		return nil, err
	}
	return c.decodeAll(resources), nil
}

// recipients returns the identity keys a snapshot is encrypted to: every
// trade participant except the sender, plus the arbitrator once a dispute is
// open.
func (c *client) recipients(trade *domain.Trade) [][]byte {
	candidates := make([][]byte, 0, 3)
	if trade.Offer != nil {
		candidates = append(candidates, trade.Offer.MakerProfilePubKey)
	}
	if trade.TradeRequest != nil {
		candidates = append(candidates, trade.TradeRequest.TakerProfilePubKey)
	}
	if trade.ArbitrateRequest != nil {
		arbKey := trade.ArbitratorPubKey()
		if arbKey == nil {
			arbKey = c.arbitratorPubKey
		}
		candidates = append(candidates, arbKey)
	}

	recipients := make([][]byte, 0, len(candidates))
	for _, candidate := range candidates {
		if len(candidate) == 0 || bytes.Equal(candidate, c.pubKey) {
			continue
		}
		duplicate := false
		for _, recipient := range recipients {
			if bytes.Equal(recipient, candidate) {
				duplicate = true
				break
			}
		}
		if !duplicate {
			recipients = append(recipients, candidate)
		}
	}
	return recipients
}

func (c *client) decodeAll(resources []ports.RelayResource) []*domain.Trade {
	trades := make([]*domain.Trade, 0, len(resources))
	for _, resource := range resources {
		trade, err := c.decode(resource)
		if err != nil {
			// not being a recipient is the normal case on shared feeds
			if err == ErrNotRecipient {
				log.WithField("trade", resource.Id).Debug("skipping foreign snapshot")
			} else {
				log.WithError(err).WithField("trade", resource.Id).
					Warn("discarding snapshot")
			}
			continue
		}
		trades = append(trades, trade)
	}
	return trades
}

func (c *client) decode(resource ports.RelayResource) (*domain.Trade, error) {
	var signedBytes []byte
	for _, cypherText := range resource.Payloads {
		plain, err := payload.Decrypt(cypherText, c.privKey)
		if err == nil {
			signedBytes = plain
			break
		}
	}
	if signedBytes == nil {
		return nil, ErrNotRecipient
	}

	signed, err := payload.Unmarshal(signedBytes)
	if err != nil {
		return nil, err
	}
	if err := signed.Verify(); err != nil {
		return nil, err
	}

	trade := &domain.Trade{}
	if err := json.Unmarshal(signed.Content, trade); err != nil {
		return nil, ErrMalformedContent
	}
	if trade.Id != resource.Id {
		return nil, ErrMalformedContent
	}

	expectedSigner, err := trade.ExpectedSigner()
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(expectedSigner, signed.SignerPubKey) {
		return nil, ErrUnexpectedSigner
	}

	trade.Version = resource.Version
	return trade, nil
}
