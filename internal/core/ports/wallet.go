package ports

import (
	"context"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"

	"github.com/btcescrow/escrowd/internal/core/domain"
)

// WalletService is the boundary to the local wallet and the blockchain. It
// hides key custody, coin selection and SPV/explorer sync behind the few
// operations the trade core needs. Wallet failures (insufficient funds, dust
// amounts) are surfaced immediately and never retried by the caller.
type WalletService interface {
	// Balance returns the spendable wallet balance.
	Balance(ctx context.Context) (btcutil.Amount, error)
	// FreshEscrowKey generates a new escrow keypair and returns the
	// serialized compressed public key. The private key stays in custody.
	FreshEscrowKey(ctx context.Context) ([]byte, error)
	// EscrowPrivKey retrieves the private key for an escrow public key
	// previously issued by FreshEscrowKey.
	EscrowPrivKey(ctx context.Context, pubKey []byte) (*btcec.PrivateKey, error)
	// FreshDepositAddress returns a new wallet address, used as payout or
	// refund destination.
	FreshDepositAddress(ctx context.Context) (string, error)
	// WatchAddress registers an address so its transactions are visible to
	// GetTransaction.
	WatchAddress(ctx context.Context, address string) error
	// GetTransaction looks up a transaction by hash and reports the amount it
	// pays to the given address together with its confirmation depth.
	GetTransaction(ctx context.Context, txHash, address string) (*domain.TransactionWithAmt, error)
	// GetRawTransaction returns the serialized transaction for the given
	// hash, needed to rebuild the escrow-spending sighash.
	GetRawTransaction(ctx context.Context, txHash string) ([]byte, error)
	// Fund builds, signs and broadcasts a wallet transaction paying amount to
	// the given address, and returns the raw transaction bytes and its hash.
	Fund(ctx context.Context, address string, amount btcutil.Amount) (txBytes []byte, txHash string, err error)
	// Broadcast publishes a raw transaction and returns its hash.
	Broadcast(ctx context.Context, txHex string) (string, error)
}

// KeyStore persists the escrow keypairs issued by the wallet, keyed by the
// serialized compressed public key.
type KeyStore interface {
	StoreKeyPair(pubKey, privKey []byte) error
	GetPrivKey(pubKey []byte) ([]byte, error)
}
