package application

import (
	"bytes"
	"context"
	"errors"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/btcescrow/escrowd/internal/core/domain"
	"github.com/btcescrow/escrowd/internal/core/ports"
	"github.com/btcescrow/escrowd/pkg/poller"
)

// TradeObserver is notified after a trade record changed and was persisted.
type TradeObserver func(trade *domain.Trade)

// TradeServiceOpts groups the collaborators of the coordinator.
type TradeServiceOpts struct {
	TradeRepo        domain.TradeRepository
	PaymentRepo      domain.PaymentDetailRepository
	Wallet           ports.WalletService
	Relay            ports.RelayClient
	Poller           poller.Service
	Params           *chaincfg.Params
	ProfilePubKey    []byte
	ArbitratorPubKey []byte
	Arbitrator       bool
	FeePerKb         btcutil.Amount
}

// TradeService coordinates all trade operations: it reconciles local records
// against relay snapshots, runs the role protocol, persists results and
// pushes authorized updates back to the relay. All mutation of one trade id
// funnels through the repository's update closure, which serializes it.
type TradeService struct {
	tradeRepo   domain.TradeRepository
	paymentRepo domain.PaymentDetailRepository
	relay       ports.RelayClient
	feedPoller  poller.Service
	proto       *protocol
	arbitrator  bool

	observers []TradeObserver
	obsMtx    sync.RWMutex
}

// NewTradeService returns a coordinator ready to be started.
func NewTradeService(opts TradeServiceOpts) *TradeService {
	return &TradeService{
		tradeRepo:   opts.TradeRepo,
		paymentRepo: opts.PaymentRepo,
		relay:       opts.Relay,
		feedPoller:  opts.Poller,
		arbitrator:  opts.Arbitrator,
		proto: newProtocol(
			opts.Wallet, opts.ProfilePubKey, opts.ArbitratorPubKey,
			opts.Params, opts.FeePerKb,
		),
	}
}

// ObserveTrades registers an observer for persisted trade changes.
func (s *TradeService) ObserveTrades(observer TradeObserver) {
	s.obsMtx.Lock()
	defer s.obsMtx.Unlock()
	s.observers = append(s.observers, observer)
}

func (s *TradeService) notify(trade *domain.Trade) {
	s.obsMtx.RLock()
	defer s.obsMtx.RUnlock()
	for _, observer := range s.observers {
		observer(trade)
	}
}

// GetTrade returns one stored trade.
func (s *TradeService) GetTrade(ctx context.Context, tradeId string) (*domain.Trade, error) {
	return s.tradeRepo.GetTrade(ctx, tradeId)
}

// ListTrades returns all stored trades.
func (s *TradeService) ListTrades(ctx context.Context) ([]*domain.Trade, error) {
	return s.tradeRepo.GetAllTrades(ctx)
}

// AddPaymentDetail stores local payment instructions for a currency/method
// pair, consumed later by FundEscrow.
func (s *TradeService) AddPaymentDetail(
	ctx context.Context, currencyCode, method, detail string,
) error {
	return s.paymentRepo.AddPaymentDetail(ctx, currencyCode, method, detail)
}

// Start republishes records whose last relay upload was never acknowledged,
// registers the relay feeds and consumes poller events until the context is
// done. An arbitrator watches the single global arbitration feed; every
// other party watches one feed per stored trade.
func (s *TradeService) Start(ctx context.Context) error {
	trades, err := s.tradeRepo.GetAllTrades(ctx)
	if err != nil {
		return err
	}
	for _, trade := range trades {
		// uploads that never got acknowledged before the last shutdown
		if trade.PendingPublish {
			if _, err := s.push(ctx, trade); err != nil {
				log.WithError(err).WithField(
					"trade", trade.Id,
				).Warn("republish failed, retrying on the next pass")
			}
		}
		if !s.arbitrator {
			s.watchTradeFeed(trade.Id)
		}
	}
	if s.arbitrator {
		s.feedPoller.AddObservable(&poller.ArbitrateFeedObservable{
			SinceVersion: s.maxStoredVersion,
		})
	}

	go s.feedPoller.Start()

	for {
		select {
		case <-ctx.Done():
			s.feedPoller.Stop()
			return ctx.Err()
		case event := <-s.feedPoller.GetEventChannel():
			switch e := event.(type) {
			case poller.SnapshotsEvent:
				for _, snapshot := range e.Snapshots {
					if err := s.Reconcile(ctx, snapshot); err != nil {
						log.WithError(err).WithField(
							"trade", snapshot.Id,
						).Warn("dropping snapshot")
					}
				}
			case poller.QuitEvent:
				return nil
			}
		}
	}
}

func (s *TradeService) watchTradeFeed(tradeId string) {
	s.feedPoller.AddObservable(&poller.TradeFeedObservable{
		TradeId: tradeId,
		// storedVersion-1 makes the relay return everything from the stored
		// version on, so a lost update is re-delivered.
		SinceVersion: func() int64 {
			trade, err := s.tradeRepo.GetTrade(context.Background(), tradeId)
			if err != nil {
				return -1
			}
			return trade.Version - 1
		},
	})
}

func (s *TradeService) maxStoredVersion() int64 {
	trades, err := s.tradeRepo.GetAllTrades(context.Background())
	if err != nil {
		return -1
	}
	max := int64(-1)
	for _, trade := range trades {
		if trade.Version > max {
			max = trade.Version
		}
	}
	return max
}

// CreateTrade takes a counterparty's offer: it validates the amount bounds,
// issues a fresh escrow key and persists and publishes the trade request.
func (s *TradeService) CreateTrade(
	ctx context.Context, offer domain.Offer, btcAmount decimal.Decimal,
) (*domain.Trade, error) {
	if offer.IsMine {
		return nil, ErrOfferIsMine
	}
	if err := offer.ValidateAmount(btcAmount); err != nil {
		return nil, err
	}

	escrowKey, err := s.proto.wallet.FreshEscrowKey(ctx)
	if err != nil {
		return nil, err
	}
	trade := domain.NewTrade(offer, domain.TradeRequest{
		TakerProfilePubKey: s.proto.profilePubKey,
		TakerEscrowPubKey:  escrowKey,
		BtcAmount:          btcAmount,
		PaymentAmount:      offer.PaymentAmount(btcAmount),
	}).WithPendingPublish(true)

	if err := s.tradeRepo.AddTrade(ctx, trade); err != nil {
		return nil, err
	}
	trade, err = s.push(ctx, trade)
	if err != nil {
		return nil, err
	}
	s.watchTradeFeed(trade.Id)
	s.notify(trade)

	log.WithFields(log.Fields{
		"trade": trade.Id, "offer": offer.Id,
	}).Info("trade created")
	return trade, nil
}

// FundEscrow is the seller operation funding an accepted trade's escrow
// address and publishing the payment request.
func (s *TradeService) FundEscrow(ctx context.Context, tradeId string) (*domain.Trade, error) {
	return s.mutate(ctx, tradeId, domain.RoleSeller,
		func(status domain.TradeStatus) bool { return status == domain.TradeStatusAccepted },
		func(ctx context.Context, t *domain.Trade) (*domain.Trade, error) {
			detail, err := s.paymentRepo.GetPaymentDetail(
				ctx, t.Offer.CurrencyCode, t.Offer.PaymentMethod,
			)
			if err != nil {
				return nil, err
			}
			return s.proto.fundEscrow(ctx, t, detail)
		},
	)
}

// BuyerSendPayment is the buyer operation recording the fiat payment and
// publishing the payout request.
func (s *TradeService) BuyerSendPayment(
	ctx context.Context, tradeId, paymentReference string,
) (*domain.Trade, error) {
	return s.mutate(ctx, tradeId, domain.RoleBuyer,
		func(status domain.TradeStatus) bool { return status == domain.TradeStatusFunded },
		func(ctx context.Context, t *domain.Trade) (*domain.Trade, error) {
			return s.proto.sendPayment(ctx, t, paymentReference)
		},
	)
}

// SellerPaymentReceived is the seller operation confirming the fiat arrived
// and broadcasting the payout to the buyer.
func (s *TradeService) SellerPaymentReceived(
	ctx context.Context, tradeId string,
) (*domain.Trade, error) {
	return s.mutate(ctx, tradeId, domain.RoleSeller,
		func(status domain.TradeStatus) bool { return status == domain.TradeStatusPaid },
		s.proto.paymentReceived,
	)
}

// RequestArbitrate opens a dispute. The reason is fixed by role: a seller
// disputes a missing payment, a buyer missing bitcoin.
func (s *TradeService) RequestArbitrate(ctx context.Context, tradeId string) (*domain.Trade, error) {
	trade, err := s.tradeRepo.GetTrade(ctx, tradeId)
	if err != nil {
		return nil, err
	}
	role, err := trade.RoleFor(s.proto.profilePubKey, s.proto.arbitratorPubKey)
	if err != nil {
		return nil, err
	}
	if role == domain.RoleArbitrator {
		return trade, nil
	}
	reason := domain.ArbitrateReasonNoBtc
	if role == domain.RoleSeller {
		reason = domain.ArbitrateReasonNoPayment
	}

	return s.mutate(ctx, tradeId, role,
		func(status domain.TradeStatus) bool {
			return status > domain.TradeStatusCreated && status < domain.TradeStatusArbitrating
		},
		func(_ context.Context, t *domain.Trade) (*domain.Trade, error) {
			return t.WithArbitrateRequest(domain.ArbitrateRequest{Reason: reason}), nil
		},
	)
}

// ArbitratorRefundSeller resolves a dispute by sending the escrow back to
// the seller.
func (s *TradeService) ArbitratorRefundSeller(
	ctx context.Context, tradeId string,
) (*domain.Trade, error) {
	return s.mutate(ctx, tradeId, domain.RoleArbitrator,
		func(status domain.TradeStatus) bool { return status == domain.TradeStatusArbitrating },
		s.proto.refundSeller,
	)
}

// ArbitratorPayoutBuyer resolves a dispute by releasing the escrow to the
// buyer.
func (s *TradeService) ArbitratorPayoutBuyer(
	ctx context.Context, tradeId string,
) (*domain.Trade, error) {
	return s.mutate(ctx, tradeId, domain.RoleArbitrator,
		func(status domain.TradeStatus) bool { return status == domain.TradeStatusArbitrating },
		s.proto.payoutBuyer,
	)
}

// CancelTrade abandons a trade. Before the escrow is funded this is an
// instant cancelation needing no transaction; once funded only the buyer can
// cancel, by broadcasting the pre-signed refund back to the seller.
func (s *TradeService) CancelTrade(ctx context.Context, tradeId string) (*domain.Trade, error) {
	trade, err := s.tradeRepo.GetTrade(ctx, tradeId)
	if err != nil {
		return nil, err
	}
	role, err := trade.RoleFor(s.proto.profilePubKey, s.proto.arbitratorPubKey)
	if err != nil {
		return nil, err
	}

	switch role {
	case domain.RoleSeller:
		return s.mutate(ctx, tradeId, role,
			func(status domain.TradeStatus) bool {
				return status == domain.TradeStatusCreated || status == domain.TradeStatusAccepted
			},
			func(_ context.Context, t *domain.Trade) (*domain.Trade, error) {
				return t.WithCancelCompleted(domain.CancelCompleted{
					Reason: domain.CancelReasonSellerCancelUnfunded,
				}), nil
			},
		)
	case domain.RoleBuyer:
		return s.mutate(ctx, tradeId, role,
			func(status domain.TradeStatus) bool {
				switch status {
				case domain.TradeStatusCreated, domain.TradeStatusAccepted,
					domain.TradeStatusFunding, domain.TradeStatusFunded:
					return true
				}
				return false
			},
			func(ctx context.Context, t *domain.Trade) (*domain.Trade, error) {
				status, err := t.Status()
				if err != nil {
					return nil, err
				}
				if status == domain.TradeStatusCreated || status == domain.TradeStatusAccepted {
					return t.WithCancelCompleted(domain.CancelCompleted{
						Reason: domain.CancelReasonBuyerCancelUnfunded,
					}), nil
				}
				return s.proto.cancelFundedTrade(ctx, t)
			},
		)
	}
	return trade, nil
}

// mutate runs one local operation under the shared pattern: read, filter on
// role and status (a filter miss is a silent no-op), apply, persist, push,
// notify.
func (s *TradeService) mutate(
	ctx context.Context,
	tradeId string,
	requiredRole domain.Role,
	statusOk func(domain.TradeStatus) bool,
	op func(context.Context, *domain.Trade) (*domain.Trade, error),
) (*domain.Trade, error) {
	changed := false
	updated, err := s.tradeRepo.UpdateTrade(ctx, tradeId,
		func(t *domain.Trade) (*domain.Trade, error) {
			t = s.attachTransactions(ctx, t)
			status, err := t.Status()
			if err != nil {
				return nil, err
			}
			role, err := t.RoleFor(s.proto.profilePubKey, s.proto.arbitratorPubKey)
			if err != nil {
				return nil, err
			}
			if role != requiredRole || !statusOk(status) {
				log.WithFields(log.Fields{
					"trade":  t.Id,
					"status": status.String(),
					"role":   string(role),
				}).Debug("operation precondition not met, skipping")
				return t, nil
			}

			nt, err := op(ctx, t)
			if err != nil {
				return nil, err
			}
			changed = true
			return nt.WithPendingPublish(true), nil
		},
	)
	if err != nil {
		return nil, err
	}

	// PendingPublish may also be a leftover of an earlier failed upload, so
	// republish even when the precondition filter skipped the operation.
	if updated.PendingPublish {
		if updated, err = s.push(ctx, updated); err != nil {
			return nil, err
		}
	}
	if changed {
		s.notify(updated)
	}
	return updated, nil
}

// push uploads the trade to the relay and records the relay-assigned
// version.
func (s *TradeService) push(ctx context.Context, trade *domain.Trade) (*domain.Trade, error) {
	accepted, err := s.relay.Put(ctx, trade)
	if err != nil {
		return nil, err
	}
	return s.tradeRepo.UpdateTrade(ctx, trade.Id,
		func(t *domain.Trade) (*domain.Trade, error) {
			return t.WithVersion(accepted.Version).WithPendingPublish(false), nil
		},
	)
}

// Reconcile merges one received snapshot into the local record: resolve the
// local role, seed a record if none exists, attach on-chain transactions,
// dispatch to the handler selected by the LOCAL status, persist and notify.
// Applying the same snapshot twice yields no further change.
func (s *TradeService) Reconcile(ctx context.Context, received *domain.Trade) error {
	if received.Offer == nil || received.TradeRequest == nil {
		return ErrMalformedSnapshot
	}

	if _, err := s.tradeRepo.GetTrade(ctx, received.Id); err != nil {
		if !errors.Is(err, domain.ErrTradeNotFound) {
			return err
		}
		seed, err := s.seedTrade(received)
		if err != nil {
			return err
		}
		if err := s.tradeRepo.AddTrade(ctx, seed); err != nil {
			return err
		}
		if !s.arbitrator {
			s.watchTradeFeed(seed.Id)
		}
	}

	updated, err := s.tradeRepo.UpdateTrade(ctx, received.Id,
		func(t *domain.Trade) (*domain.Trade, error) {
			t = s.attachTransactions(ctx, t)

			status, err := t.Status()
			if err != nil {
				return nil, err
			}
			if !status.Terminal() {
				nt, pub, err := dispatch(ctx, s.proto, t, received)
				if err != nil {
					return nil, err
				}
				if nt != nil {
					t = nt
					if pub {
						t = t.WithPendingPublish(true)
					}
				}
			}
			if received.Version > t.Version {
				t = t.WithVersion(received.Version)
			}
			return t, nil
		},
	)
	if err != nil {
		return err
	}

	// the marker survives a failed upload, so the next pass over this trade
	// retries the push until the relay acknowledges it
	if updated.PendingPublish {
		if updated, err = s.push(ctx, updated); err != nil {
			return err
		}
	}
	s.notify(updated)
	return nil
}

// seedTrade reconstructs the minimal local record from the first snapshot of
// a trade this profile participates in.
func (s *TradeService) seedTrade(received *domain.Trade) (*domain.Trade, error) {
	offer := *received.Offer
	offer.IsMine = bytes.Equal(s.proto.profilePubKey, offer.MakerProfilePubKey)

	seed := domain.SeedTrade(received.Id, offer, *received.TradeRequest)
	if _, err := seed.RoleFor(s.proto.profilePubKey, s.proto.arbitratorPubKey); err != nil {
		// arbitrators may only learn their involvement from the acceptance
		if s.arbitrator && received.Acceptance != nil &&
			bytes.Equal(s.proto.profilePubKey, received.Acceptance.ArbitratorPubKey) {
			return seed, nil
		}
		return nil, err
	}
	return seed, nil
}

// attachTransactions refreshes the locally observed funding and payout
// transactions. Lookup failures only mean the transaction is not visible
// yet; the status simply stays where it is until a later pass.
func (s *TradeService) attachTransactions(ctx context.Context, t *domain.Trade) *domain.Trade {
	if hash := t.FundingTxHash(); hash != "" && t.EscrowAddress() != "" {
		tx, err := s.proto.wallet.GetTransaction(ctx, hash, t.EscrowAddress())
		if err == nil {
			t = t.WithFundingTx(*tx)
		} else {
			log.WithError(err).WithField("tx", hash).Debug("funding tx not visible yet")
		}
	}

	if hash := t.SpendingTxHash(); hash != "" {
		if address := t.SpendingAddress(); address != "" {
			tx, err := s.proto.wallet.GetTransaction(ctx, hash, address)
			if err == nil {
				t = t.WithPayoutTx(*tx)
			} else {
				log.WithError(err).WithField("tx", hash).Debug("payout tx not visible yet")
			}
		}
	}
	return t
}
