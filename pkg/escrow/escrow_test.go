package escrow_test

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/btcescrow/escrowd/pkg/escrow"
)

var params = &chaincfg.RegressionNetParams

type escrowFixture struct {
	arbitratorPriv *btcec.PrivateKey
	sellerPriv     *btcec.PrivateKey
	buyerPriv      *btcec.PrivateKey

	arbitratorKey []byte
	sellerKey     []byte
	buyerKey      []byte

	amount        btcutil.Amount
	fee           btcutil.Amount
	fundingTx     []byte
	payoutAddress string
}

func newEscrowFixture(t *testing.T) *escrowFixture {
	t.Helper()

	arbitratorPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	sellerPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	buyerPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	f := &escrowFixture{
		arbitratorPriv: arbitratorPriv,
		sellerPriv:     sellerPriv,
		buyerPriv:      buyerPriv,
		arbitratorKey:  arbitratorPriv.PubKey().SerializeCompressed(),
		sellerKey:      sellerPriv.PubKey().SerializeCompressed(),
		buyerKey:       buyerPriv.PubKey().SerializeCompressed(),
		amount:         200000,
		fee:            6800,
	}

	address, err := escrow.Address(f.arbitratorKey, f.sellerKey, f.buyerKey, params)
	require.NoError(t, err)
	f.fundingTx = newFundingTx(t, address, int64(f.amount+f.fee))
	f.payoutAddress = newP2wpkhAddress(t, buyerPriv)
	return f
}

func (f *escrowFixture) payoutOpts() escrow.PayoutTxOpts {
	return escrow.PayoutTxOpts{
		Amount:         f.amount,
		Fee:            f.fee,
		FundingTxBytes: f.fundingTx,
		ArbitratorKey:  f.arbitratorKey,
		SellerKey:      f.sellerKey,
		BuyerKey:       f.buyerKey,
		PayoutAddress:  f.payoutAddress,
		Params:         params,
	}
}

// newFundingTx builds a transaction with a decoy output and the escrow
// output paying value to the given address.
func newFundingTx(t *testing.T, address string, value int64) []byte {
	t.Helper()

	addr, err := btcutil.DecodeAddress(address, params)
	require.NoError(t, err)
	script, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)

	tx := wire.NewMsgTx(wire.TxVersion)
	prevHash := chainhash.Hash{0x01}
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&prevHash, 0), nil, nil))
	tx.AddTxOut(wire.NewTxOut(42000, append([]byte{txscript.OP_RETURN}, 0x01)))
	tx.AddTxOut(wire.NewTxOut(value, script))

	var buf bytes.Buffer
	require.NoError(t, tx.Serialize(&buf))
	return buf.Bytes()
}

func newP2wpkhAddress(t *testing.T, priv *btcec.PrivateKey) string {
	t.Helper()
	addr, err := btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(priv.PubKey().SerializeCompressed()), params,
	)
	require.NoError(t, err)
	return addr.EncodeAddress()
}

func TestAddressIsDeterministic(t *testing.T) {
	f := newEscrowFixture(t)

	first, err := escrow.Address(f.arbitratorKey, f.sellerKey, f.buyerKey, params)
	require.NoError(t, err)
	second, err := escrow.Address(f.arbitratorKey, f.sellerKey, f.buyerKey, params)
	require.NoError(t, err)
	require.Equal(t, first, second)

	swapped, err := escrow.Address(f.arbitratorKey, f.buyerKey, f.sellerKey, params)
	require.NoError(t, err)
	require.NotEqual(t, first, swapped)
}

func TestAddressRejectsNullKey(t *testing.T) {
	f := newEscrowFixture(t)

	_, err := escrow.Address(nil, f.sellerKey, f.buyerKey, params)
	require.ErrorIs(t, err, escrow.ErrNullPubKey)
}

func TestSignAndFinalizePayout(t *testing.T) {
	tests := []struct {
		name    string
		signers func(f *escrowFixture) (*btcec.PrivateKey, *btcec.PrivateKey)
	}{
		{
			"seller_and_buyer",
			func(f *escrowFixture) (*btcec.PrivateKey, *btcec.PrivateKey) {
				return f.sellerPriv, f.buyerPriv
			},
		},
		{
			"arbitrator_and_seller",
			func(f *escrowFixture) (*btcec.PrivateKey, *btcec.PrivateKey) {
				return f.arbitratorPriv, f.sellerPriv
			},
		},
		{
			"arbitrator_and_buyer",
			func(f *escrowFixture) (*btcec.PrivateKey, *btcec.PrivateKey) {
				return f.arbitratorPriv, f.buyerPriv
			},
		},
	}

	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			f := newEscrowFixture(t)
			opts := f.payoutOpts()
			firstPriv, secondPriv := tt.signers(f)

			firstSig, err := escrow.Sign(opts, firstPriv)
			require.NoError(t, err)
			secondSig, err := escrow.Sign(opts, secondPriv)
			require.NoError(t, err)

			txBytes, txHash, err := escrow.FinalizePayout(escrow.FinalizePayoutOpts{
				PayoutTxOpts: opts,
				Signatures:   [][]byte{firstSig, secondSig},
			})
			require.NoError(t, err)
			require.NotEmpty(t, txHash)

			var tx wire.MsgTx
			require.NoError(t, tx.Deserialize(bytes.NewReader(txBytes)))
			require.Len(t, tx.TxOut, 1)
			require.EqualValues(t, f.amount, tx.TxOut[0].Value)
			require.Equal(t, tx.TxHash().String(), txHash)
		})
	}
}

func TestFinalizePayoutRequiresTwoSignatures(t *testing.T) {
	f := newEscrowFixture(t)
	opts := f.payoutOpts()

	sellerSig, err := escrow.Sign(opts, f.sellerPriv)
	require.NoError(t, err)

	_, _, err = escrow.FinalizePayout(escrow.FinalizePayoutOpts{
		PayoutTxOpts: opts,
		Signatures:   [][]byte{sellerSig},
	})
	require.ErrorIs(t, err, escrow.ErrMissingSignatures)
}

func TestFinalizePayoutRejectsWrongSignature(t *testing.T) {
	f := newEscrowFixture(t)
	opts := f.payoutOpts()

	strangerPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	sellerSig, err := escrow.Sign(opts, f.sellerPriv)
	require.NoError(t, err)
	strangerSig, err := escrow.Sign(opts, strangerPriv)
	require.NoError(t, err)

	_, _, err = escrow.FinalizePayout(escrow.FinalizePayoutOpts{
		PayoutTxOpts: opts,
		Signatures:   [][]byte{sellerSig, strangerSig},
	})
	require.ErrorIs(t, err, escrow.ErrInvalidSignature)
}

// Signatures must come in redeem-script key order.
func TestFinalizePayoutRejectsSwappedOrder(t *testing.T) {
	f := newEscrowFixture(t)
	opts := f.payoutOpts()

	sellerSig, err := escrow.Sign(opts, f.sellerPriv)
	require.NoError(t, err)
	buyerSig, err := escrow.Sign(opts, f.buyerPriv)
	require.NoError(t, err)

	_, _, err = escrow.FinalizePayout(escrow.FinalizePayoutOpts{
		PayoutTxOpts: opts,
		Signatures:   [][]byte{buyerSig, sellerSig},
	})
	require.ErrorIs(t, err, escrow.ErrInvalidSignature)
}

func TestSignRejectsMismatchedFundingOutput(t *testing.T) {
	f := newEscrowFixture(t)
	opts := f.payoutOpts()
	opts.Amount += 1

	_, err := escrow.Sign(opts, f.sellerPriv)
	require.ErrorIs(t, err, escrow.ErrNoMatchingFundingOutput)
}

func TestPayoutFee(t *testing.T) {
	require.EqualValues(t, 6800, escrow.PayoutFee(20000))
}
