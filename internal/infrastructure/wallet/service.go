package wallet

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	log "github.com/sirupsen/logrus"

	"github.com/btcescrow/escrowd/internal/core/domain"
	"github.com/btcescrow/escrowd/internal/core/ports"
)

const (
	p2wpkhInputSize  = 68
	p2wpkhOutputSize = 31
	txOverhead       = 10

	// outputs below this are nonstandard and never relayed
	dustLimit = 546
)

// ServiceOpts groups the dependencies of the wallet service.
type ServiceOpts struct {
	EsploraURL string
	WalletWIF  string
	KeyStore   ports.KeyStore
	Params     *chaincfg.Params
	FeePerKb   btcutil.Amount
}

type service struct {
	esplora  *esploraClient
	keyStore ports.KeyStore
	privKey  *btcec.PrivateKey
	address  btcutil.Address
	params   *chaincfg.Params
	feePerKb btcutil.Amount
}

// NewService returns a single-key esplora backed wallet. The wallet key is
// the funding source and the deposit destination; escrow keys are generated
// per trade and kept in the key store.
func NewService(opts ServiceOpts) (ports.WalletService, error) {
	wif, err := btcutil.DecodeWIF(opts.WalletWIF)
	if err != nil {
		return nil, fmt.Errorf("decoding wallet wif: %w", err)
	}
	pubKeyHash := btcutil.Hash160(wif.PrivKey.PubKey().SerializeCompressed())
	address, err := btcutil.NewAddressWitnessPubKeyHash(pubKeyHash, opts.Params)
	if err != nil {
		return nil, err
	}

	esplora, err := newEsploraClient(opts.EsploraURL)
	if err != nil {
		return nil, err
	}

	return &service{
		esplora:  esplora,
		keyStore: opts.KeyStore,
		privKey:  wif.PrivKey,
		address:  address,
		params:   opts.Params,
		feePerKb: opts.FeePerKb,
	}, nil
}

func (s *service) Balance(ctx context.Context) (btcutil.Amount, error) {
	utxos, err := s.confirmedUtxos(ctx)
	if err != nil {
		return 0, err
	}
	total := int64(0)
	for _, utxo := range utxos {
		total += utxo.Value
	}
	return btcutil.Amount(total), nil
}

func (s *service) FreshEscrowKey(ctx context.Context) ([]byte, error) {
	privKey, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	pubKey := privKey.PubKey().SerializeCompressed()
	if err := s.keyStore.StoreKeyPair(pubKey, privKey.Serialize()); err != nil {
		return nil, err
	}
	return pubKey, nil
}

func (s *service) EscrowPrivKey(ctx context.Context, pubKey []byte) (*btcec.PrivateKey, error) {
	// the arbitrator signs escrows with its identity key, which never went
	// through FreshEscrowKey
	if bytes.Equal(pubKey, s.privKey.PubKey().SerializeCompressed()) {
		return s.privKey, nil
	}

	privKeyBytes, err := s.keyStore.GetPrivKey(pubKey)
	if err != nil {
		return nil, err
	}
	privKey, _ := btcec.PrivKeyFromBytes(privKeyBytes)
	return privKey, nil
}

func (s *service) FreshDepositAddress(ctx context.Context) (string, error) {
	return s.address.EncodeAddress(), nil
}

// WatchAddress is a no-op: an esplora backend is queried by address on
// demand, there is no subscription to set up.
func (s *service) WatchAddress(ctx context.Context, address string) error {
	log.WithField("address", address).Debug("watching address")
	return nil
}

func (s *service) GetTransaction(
	ctx context.Context, txHash, address string,
) (*domain.TransactionWithAmt, error) {
	tx, err := s.esplora.getTx(ctx, txHash)
	if err != nil {
		return nil, err
	}

	amount := int64(0)
	for _, vout := range tx.Vout {
		if vout.ScriptPubKeyAddress == address {
			amount += vout.Value
		}
	}

	depth := uint32(0)
	if tx.Status.Confirmed {
		tip, err := s.esplora.tipHeight(ctx)
		if err != nil {
			return nil, err
		}
		if tip >= tx.Status.BlockHeight {
			depth = uint32(tip - tx.Status.BlockHeight + 1)
		}
	}

	return &domain.TransactionWithAmt{
		TxHash: txHash,
		Amount: btcutil.Amount(amount),
		Depth:  depth,
	}, nil
}

func (s *service) GetRawTransaction(ctx context.Context, txHash string) ([]byte, error) {
	return s.esplora.getRawTx(ctx, txHash)
}

func (s *service) Fund(
	ctx context.Context, address string, amount btcutil.Amount,
) (txBytes []byte, txHash string, err error) {
	receiver, err := btcutil.DecodeAddress(address, s.params)
	if err != nil {
		return nil, "", err
	}

	selected, changeAmount, err := s.selectUtxos(ctx, int64(amount))
	if err != nil {
		return nil, "", err
	}

	tx, err := s.prepareTx(selected, receiver, int64(amount), changeAmount)
	if err != nil {
		return nil, "", err
	}
	if err := s.sign(tx, selected); err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, "", err
	}
	hash, err := s.esplora.broadcast(ctx, hex.EncodeToString(buf.Bytes()))
	if err != nil {
		return nil, "", err
	}

	log.WithFields(log.Fields{
		"tx": hash, "address": address, "amount": amount,
	}).Debug("funding broadcast")
	return buf.Bytes(), hash, nil
}

func (s *service) Broadcast(ctx context.Context, txHex string) (string, error) {
	return s.esplora.broadcast(ctx, txHex)
}

func (s *service) confirmedUtxos(ctx context.Context) ([]esploraUtxo, error) {
	utxos, err := s.esplora.getUtxos(ctx, s.address.EncodeAddress())
	if err != nil {
		return nil, err
	}

	confirmed := make([]esploraUtxo, 0, len(utxos))
	for _, utxo := range utxos {
		if utxo.Status.Confirmed {
			confirmed = append(confirmed, utxo)
		}
	}
	sort.Slice(confirmed, func(i, j int) bool {
		return confirmed[i].Value > confirmed[j].Value
	})
	return confirmed, nil
}

// selectUtxos picks confirmed coins largest-first until they cover the
// amount plus the fee of the resulting transaction.
func (s *service) selectUtxos(
	ctx context.Context, amountToSend int64,
) (selected []esploraUtxo, changeAmount int64, err error) {
	confirmed, err := s.confirmedUtxos(ctx)
	if err != nil {
		return nil, 0, err
	}

	var totalSelected, fee int64
	for _, utxo := range confirmed {
		selected = append(selected, utxo)
		totalSelected += utxo.Value

		fee = s.txFee(len(selected), 2)
		if totalSelected >= amountToSend+fee {
			changeAmount = totalSelected - amountToSend - fee
			// dust change would make the transaction nonstandard, fold it
			// into the fee instead
			if changeAmount < dustLimit {
				changeAmount = 0
			}
			return selected, changeAmount, nil
		}
	}

	return nil, 0, fmt.Errorf(
		"insufficient funds: have %d satoshis, need %d satoshis",
		totalSelected, amountToSend+fee,
	)
}

func (s *service) txFee(numInputs, numOutputs int) int64 {
	txSize := txOverhead + numInputs*p2wpkhInputSize + numOutputs*p2wpkhOutputSize
	return int64(s.feePerKb) * int64(txSize) / 1000
}

func (s *service) prepareTx(
	utxos []esploraUtxo,
	receiver btcutil.Address,
	amountToSend, changeAmount int64,
) (*wire.MsgTx, error) {
	tx := wire.NewMsgTx(2)

	for _, utxo := range utxos {
		hash, err := chainhash.NewHashFromStr(utxo.TxId)
		if err != nil {
			return nil, err
		}
		tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(hash, utxo.Vout), nil, nil))
	}

	receiverScript, err := txscript.PayToAddrScript(receiver)
	if err != nil {
		return nil, err
	}
	tx.AddTxOut(wire.NewTxOut(amountToSend, receiverScript))

	if changeAmount > 0 {
		changeScript, err := txscript.PayToAddrScript(s.address)
		if err != nil {
			return nil, err
		}
		tx.AddTxOut(wire.NewTxOut(changeAmount, changeScript))
	}

	return tx, nil
}

func (s *service) sign(tx *wire.MsgTx, utxos []esploraUtxo) error {
	prevOutScript, err := txscript.PayToAddrScript(s.address)
	if err != nil {
		return err
	}

	for i, utxo := range utxos {
		prevOuts := txscript.NewCannedPrevOutputFetcher(prevOutScript, utxo.Value)
		witness, err := txscript.WitnessSignature(
			tx,
			txscript.NewTxSigHashes(tx, prevOuts),
			i,
			utxo.Value,
			prevOutScript,
			txscript.SigHashAll,
			s.privKey,
			true,
		)
		if err != nil {
			return fmt.Errorf("signing input %d: %w", i, err)
		}
		tx.TxIn[i].Witness = witness
	}
	return nil
}
