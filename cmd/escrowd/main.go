package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/btcescrow/escrowd/config"
	"github.com/btcescrow/escrowd/internal/core/application"
	"github.com/btcescrow/escrowd/internal/core/domain"
	"github.com/btcescrow/escrowd/internal/infrastructure/relay"
	dbbadger "github.com/btcescrow/escrowd/internal/infrastructure/storage/db/badger"
	"github.com/btcescrow/escrowd/internal/infrastructure/wallet"
	"github.com/btcescrow/escrowd/pkg/poller"
)

func main() {
	app := cli.NewApp()

	app.Version = "0.1.0"
	app.Name = "escrowd"
	app.Usage = "non-custodial fiat to bitcoin escrow trading daemon"
	app.Commands = []*cli.Command{
		&daemonCmd,
		&addPaymentDetailCmd,
	}

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("exiting")
	}
}

var daemonCmd = cli.Command{
	Name:   "daemon",
	Usage:  "run the trading daemon",
	Action: runDaemon,
}

var addPaymentDetailCmd = cli.Command{
	Name:      "add-payment-detail",
	Usage:     "store payment instructions for a currency and payment method (daemon must be stopped)",
	ArgsUsage: "<currency> <method> <detail>",
	Action:    addPaymentDetail,
}

func runDaemon(_ *cli.Context) error {
	log.SetLevel(log.Level(config.GetInt(config.LogLevelKey)))

	profileWIF := config.GetString(config.ProfileWIFKey)
	if profileWIF == "" {
		return fmt.Errorf("%s must be set", config.ProfileWIFKey)
	}
	wif, err := btcutil.DecodeWIF(profileWIF)
	if err != nil {
		return fmt.Errorf("decoding profile wif: %w", err)
	}
	privKey := wif.PrivKey

	arbitratorPubKey, err := hex.DecodeString(
		config.GetString(config.ArbitratorPubKeyKey),
	)
	if err != nil {
		return fmt.Errorf("decoding arbitrator pubkey: %w", err)
	}
	isArbitrator := config.GetBool(config.ArbitratorEnabledKey)
	if isArbitrator {
		arbitratorPubKey = privKey.PubKey().SerializeCompressed()
	}

	db, err := openDb()
	if err != nil {
		return err
	}
	defer db.Close()

	params := config.GetNetwork()
	feePerKb := btcutil.Amount(config.GetInt(config.FeePerKbKey))

	walletSvc, err := wallet.NewService(wallet.ServiceOpts{
		EsploraURL: config.GetString(config.ExplorerEndpointKey),
		WalletWIF:  profileWIF,
		KeyStore:   dbbadger.NewKeyStoreImpl(db),
		Params:     params,
		FeePerKb:   feePerKb,
	})
	if err != nil {
		return fmt.Errorf("starting wallet: %w", err)
	}

	relayEndpoint := config.GetString(config.RelayEndpointKey)
	if relayEndpoint == "" {
		return fmt.Errorf("%s must be set", config.RelayEndpointKey)
	}
	relaySvc := relay.NewClient(
		relay.NewTransport(relayEndpoint), privKey, arbitratorPubKey,
	)

	feedPoller := poller.NewService(poller.Opts{
		RelaySvc: relaySvc,
		Interval: time.Duration(config.GetInt(config.PollIntervalKey)) *
			time.Millisecond,
		RequestsPerSecond: config.GetInt(config.PollLimitKey),
		ErrorHandler: func(err error) {
			log.WithError(err).Warn("relay feed error")
		},
	})

	tradeSvc := application.NewTradeService(application.TradeServiceOpts{
		TradeRepo:        dbbadger.NewTradeRepositoryImpl(db),
		PaymentRepo:      dbbadger.NewPaymentDetailRepositoryImpl(db),
		Wallet:           walletSvc,
		Relay:            relaySvc,
		Poller:           feedPoller,
		Params:           params,
		ProfilePubKey:    privKey.PubKey().SerializeCompressed(),
		ArbitratorPubKey: arbitratorPubKey,
		Arbitrator:       isArbitrator,
		FeePerKb:         feePerKb,
	})
	tradeSvc.ObserveTrades(func(trade *domain.Trade) {
		status, err := trade.Status()
		if err != nil {
			return
		}
		log.WithFields(log.Fields{
			"trade": trade.Id, "status": status.String(),
		}).Info("trade updated")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return tradeSvc.Start(gctx)
	})
	g.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
		select {
		case <-gctx.Done():
			return nil
		case <-sigChan:
			log.Debug("shutdown signal received")
			cancel()
			return nil
		}
	})

	log.Info("daemon started")
	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	log.Debug("exiting")
	return nil
}

func addPaymentDetail(ctx *cli.Context) error {
	if ctx.NArg() != 3 {
		return cli.ShowSubcommandHelp(ctx)
	}

	db, err := openDb()
	if err != nil {
		return err
	}
	defer db.Close()

	repo := dbbadger.NewPaymentDetailRepositoryImpl(db)
	return repo.AddPaymentDetail(
		context.Background(),
		ctx.Args().Get(0), ctx.Args().Get(1), ctx.Args().Get(2),
	)
}

func openDb() (*dbbadger.DbManager, error) {
	dbDir := path.Join(config.GetDatadir(), config.DbLocation)
	db, err := dbbadger.NewDbManager(dbDir, nil)
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}
	return db, nil
}
