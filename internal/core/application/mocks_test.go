package application

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/btcescrow/escrowd/internal/core/domain"
	"github.com/btcescrow/escrowd/pkg/poller"
)

type inMemoryTradeRepo struct {
	mtx    sync.Mutex
	trades map[string]*domain.Trade
}

func newInMemoryTradeRepo() *inMemoryTradeRepo {
	return &inMemoryTradeRepo{trades: map[string]*domain.Trade{}}
}

func (r *inMemoryTradeRepo) GetTrade(_ context.Context, id string) (*domain.Trade, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	trade, ok := r.trades[id]
	if !ok {
		return nil, domain.ErrTradeNotFound
	}
	return trade, nil
}

func (r *inMemoryTradeRepo) GetAllTrades(_ context.Context) ([]*domain.Trade, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	trades := make([]*domain.Trade, 0, len(r.trades))
	for _, trade := range r.trades {
		trades = append(trades, trade)
	}
	return trades, nil
}

func (r *inMemoryTradeRepo) AddTrade(_ context.Context, trade *domain.Trade) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if _, ok := r.trades[trade.Id]; !ok {
		r.trades[trade.Id] = trade
	}
	return nil
}

func (r *inMemoryTradeRepo) UpdateTrade(
	_ context.Context, id string,
	updateFn func(t *domain.Trade) (*domain.Trade, error),
) (*domain.Trade, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	trade, ok := r.trades[id]
	if !ok {
		return nil, domain.ErrTradeNotFound
	}
	updated, err := updateFn(trade)
	if err != nil {
		return nil, err
	}
	r.trades[id] = updated
	return updated, nil
}

func (r *inMemoryTradeRepo) DeleteTrade(_ context.Context, id string) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	delete(r.trades, id)
	return nil
}

type inMemoryPaymentRepo struct {
	details map[string]string
}

func newInMemoryPaymentRepo() *inMemoryPaymentRepo {
	return &inMemoryPaymentRepo{details: map[string]string{}}
}

func (r *inMemoryPaymentRepo) GetPaymentDetail(
	_ context.Context, currencyCode, method string,
) (string, error) {
	detail, ok := r.details[currencyCode+"/"+method]
	if !ok {
		return "", domain.ErrPaymentDetailNotFound
	}
	return detail, nil
}

func (r *inMemoryPaymentRepo) AddPaymentDetail(
	_ context.Context, currencyCode, method, detail string,
) error {
	r.details[currencyCode+"/"+method] = detail
	return nil
}

// mockWallet keeps escrow keys, watched addresses and a fake chain of
// transactions in memory. Fund builds a real serialized transaction so the
// escrow signing paths operate on genuine sighashes.
type mockWallet struct {
	mtx sync.Mutex

	params  *chaincfg.Params
	balance btcutil.Amount

	keys      map[string]*btcec.PrivateKey
	rawTxs    map[string][]byte
	chainTxs  map[string]*domain.TransactionWithAmt
	watched   []string
	broadcast []string

	depositAddress string
}

func newMockWallet(params *chaincfg.Params, balance btcutil.Amount) *mockWallet {
	priv, _ := btcec.NewPrivateKey()
	addr, _ := btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(priv.PubKey().SerializeCompressed()), params,
	)
	return &mockWallet{
		params:         params,
		balance:        balance,
		keys:           map[string]*btcec.PrivateKey{},
		rawTxs:         map[string][]byte{},
		chainTxs:       map[string]*domain.TransactionWithAmt{},
		depositAddress: addr.EncodeAddress(),
	}
}

func (w *mockWallet) Balance(_ context.Context) (btcutil.Amount, error) {
	return w.balance, nil
}

func (w *mockWallet) FreshEscrowKey(_ context.Context) ([]byte, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	pub := priv.PubKey().SerializeCompressed()
	w.mtx.Lock()
	defer w.mtx.Unlock()
	w.keys[hex.EncodeToString(pub)] = priv
	return pub, nil
}

func (w *mockWallet) EscrowPrivKey(_ context.Context, pubKey []byte) (*btcec.PrivateKey, error) {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	priv, ok := w.keys[hex.EncodeToString(pubKey)]
	if !ok {
		return nil, fmt.Errorf("unknown escrow key")
	}
	return priv, nil
}

// addEscrowKey registers an externally generated keypair, used to model the
// arbitrator identity key.
func (w *mockWallet) addEscrowKey(priv *btcec.PrivateKey) []byte {
	pub := priv.PubKey().SerializeCompressed()
	w.mtx.Lock()
	defer w.mtx.Unlock()
	w.keys[hex.EncodeToString(pub)] = priv
	return pub
}

func (w *mockWallet) FreshDepositAddress(_ context.Context) (string, error) {
	return w.depositAddress, nil
}

func (w *mockWallet) WatchAddress(_ context.Context, address string) error {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	w.watched = append(w.watched, address)
	return nil
}

func (w *mockWallet) GetTransaction(
	_ context.Context, txHash, _ string,
) (*domain.TransactionWithAmt, error) {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	tx, ok := w.chainTxs[txHash]
	if !ok {
		return nil, fmt.Errorf("tx not found")
	}
	return tx, nil
}

func (w *mockWallet) GetRawTransaction(_ context.Context, txHash string) ([]byte, error) {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	raw, ok := w.rawTxs[txHash]
	if !ok {
		return nil, fmt.Errorf("raw tx not found")
	}
	return raw, nil
}

func (w *mockWallet) Fund(
	_ context.Context, address string, amount btcutil.Amount,
) ([]byte, string, error) {
	addr, err := btcutil.DecodeAddress(address, w.params)
	if err != nil {
		return nil, "", err
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, "", err
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	prevHash := chainhash.Hash{0xab}
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&prevHash, 0), nil, nil))
	tx.AddTxOut(wire.NewTxOut(int64(amount), script))

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, "", err
	}
	hash := tx.TxHash().String()

	w.mtx.Lock()
	defer w.mtx.Unlock()
	w.rawTxs[hash] = buf.Bytes()
	return buf.Bytes(), hash, nil
}

func (w *mockWallet) Broadcast(_ context.Context, txHex string) (string, error) {
	raw, err := hex.DecodeString(txHex)
	if err != nil {
		return "", err
	}
	var tx wire.MsgTx
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return "", err
	}
	hash := tx.TxHash().String()

	w.mtx.Lock()
	defer w.mtx.Unlock()
	w.broadcast = append(w.broadcast, hash)
	w.rawTxs[hash] = raw
	return hash, nil
}

// addRawTx makes a transaction fetchable, modeling a party whose wallet can
// resolve a counterparty's broadcast through its own explorer.
func (w *mockWallet) addRawTx(txHash string, raw []byte) {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	w.rawTxs[txHash] = raw
}

// confirm marks a transaction as visible on-chain with the given depth.
func (w *mockWallet) confirm(txHash string, amount btcutil.Amount, depth uint32) {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	w.chainTxs[txHash] = &domain.TransactionWithAmt{
		TxHash: txHash, Amount: amount, Depth: depth,
	}
}

// mockRelay assigns increasing versions and records every accepted snapshot.
// A put error can be injected to model an unreachable relay.
type mockRelay struct {
	mtx     sync.Mutex
	version int64
	puts    []*domain.Trade
	putErr  error
}

func (r *mockRelay) Put(_ context.Context, trade *domain.Trade) (*domain.Trade, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if r.putErr != nil {
		return nil, r.putErr
	}
	r.version++
	accepted := trade.WithVersion(r.version)
	r.puts = append(r.puts, accepted)
	return accepted, nil
}

func (r *mockRelay) setPutErr(err error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.putErr = err
}

func (r *mockRelay) Get(_ context.Context, _ string, _ int64) ([]*domain.Trade, error) {
	return nil, nil
}

func (r *mockRelay) GetByOfferId(_ context.Context, _ string) ([]*domain.Trade, error) {
	return nil, nil
}

func (r *mockRelay) GetArbitrate(_ context.Context, _ int64) ([]*domain.Trade, error) {
	return nil, nil
}

func (r *mockRelay) putCount() int {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return len(r.puts)
}

// mockPoller only records registered feeds.
type mockPoller struct {
	mtx         sync.Mutex
	observables []poller.Observable
}

func (p *mockPoller) Start() {}
func (p *mockPoller) Stop()  {}

func (p *mockPoller) AddObservable(observable poller.Observable) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	p.observables = append(p.observables, observable)
}

func (p *mockPoller) RemoveObservable(observable poller.Observable) {}

func (p *mockPoller) GetEventChannel() chan poller.Event { return nil }
