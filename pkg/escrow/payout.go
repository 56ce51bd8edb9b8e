package escrow

import (
	"bytes"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// PayoutTxOpts describes the transaction spending the escrow: the funding
// output holding amount+fee is its sole input, (amount, payout address) its
// sole output. The same opts must be used by both signing parties so that
// they sign the very same sighash.
type PayoutTxOpts struct {
	Amount         btcutil.Amount
	Fee            btcutil.Amount
	FundingTxBytes []byte
	ArbitratorKey  []byte
	SellerKey      []byte
	BuyerKey       []byte
	PayoutAddress  string
	Params         *chaincfg.Params
}

func (o PayoutTxOpts) validate() error {
	if o.Amount <= 0 {
		return ErrNonPositiveAmount
	}
	if len(o.FundingTxBytes) <= 0 {
		return ErrNullFundingTx
	}
	if len(o.PayoutAddress) <= 0 {
		return ErrNullPayoutAddress
	}
	return nil
}

// buildPayoutTx scans the funding transaction for the output paying exactly
// amount+fee to the escrow address and returns the unsigned spending
// transaction along with the redeem script and the connected output.
func buildPayoutTx(opts PayoutTxOpts) (*wire.MsgTx, []byte, *wire.TxOut, error) {
	redeemScript, err := RedeemScript(
		opts.ArbitratorKey, opts.SellerKey, opts.BuyerKey, opts.Params,
	)
	if err != nil {
		return nil, nil, nil, err
	}
	escrowAddr, err := btcutil.NewAddressScriptHash(redeemScript, opts.Params)
	if err != nil {
		return nil, nil, nil, err
	}
	escrowScript, err := txscript.PayToAddrScript(escrowAddr)
	if err != nil {
		return nil, nil, nil, err
	}

	var fundingTx wire.MsgTx
	if err := fundingTx.Deserialize(bytes.NewReader(opts.FundingTxBytes)); err != nil {
		return nil, nil, nil, err
	}

	outIndex := -1
	for i, out := range fundingTx.TxOut {
		if out.Value == int64(opts.Amount+opts.Fee) &&
			bytes.Equal(out.PkScript, escrowScript) {
			outIndex = i
			break
		}
	}
	if outIndex < 0 {
		return nil, nil, nil, ErrNoMatchingFundingOutput
	}

	payoutAddr, err := btcutil.DecodeAddress(opts.PayoutAddress, opts.Params)
	if err != nil {
		return nil, nil, nil, err
	}
	payoutScript, err := txscript.PayToAddrScript(payoutAddr)
	if err != nil {
		return nil, nil, nil, err
	}

	fundingHash := fundingTx.TxHash()
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&fundingHash, uint32(outIndex)), nil, nil))
	tx.AddTxOut(wire.NewTxOut(int64(opts.Amount), payoutScript))

	return tx, redeemScript, fundingTx.TxOut[outIndex], nil
}

// Sign produces this party's signature over the payout transaction's sighash
// with the given escrow private key. The signature carries the sighash type
// byte and is ready to be combined by FinalizePayout.
func Sign(opts PayoutTxOpts, privKey *btcec.PrivateKey) ([]byte, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	tx, redeemScript, _, err := buildPayoutTx(opts)
	if err != nil {
		return nil, err
	}

	return txscript.RawTxInSignature(tx, 0, redeemScript, txscript.SigHashAll, privKey)
}

// FinalizePayoutOpts carries the two signatures spending the escrow. They
// must be given in redeem-script key order: (arbitrator, seller),
// (arbitrator, buyer) or (seller, buyer) depending on which parties signed.
type FinalizePayoutOpts struct {
	PayoutTxOpts
	Signatures [][]byte
}

func (o FinalizePayoutOpts) validate() error {
	if err := o.PayoutTxOpts.validate(); err != nil {
		return err
	}
	if len(o.Signatures) != 2 {
		return ErrMissingSignatures
	}
	for _, sig := range o.Signatures {
		if len(sig) <= 0 {
			return ErrMissingSignatures
		}
	}
	return nil
}

// FinalizePayout rebuilds the payout transaction, fills its unlock script
// with the two signatures and verifies the input against the connected
// funding output before returning the serialized transaction and its hash.
// Any failure here is fatal and must not be retried: a wrong signature set
// or amount can only ever fail again.
func FinalizePayout(opts FinalizePayoutOpts) ([]byte, string, error) {
	if err := opts.validate(); err != nil {
		return nil, "", err
	}

	tx, redeemScript, fundingOut, err := buildPayoutTx(opts.PayoutTxOpts)
	if err != nil {
		return nil, "", err
	}

	// CHECKMULTISIG consumes an extra stack element, hence the leading OP_0.
	builder := txscript.NewScriptBuilder().AddOp(txscript.OP_0)
	for _, sig := range opts.Signatures {
		builder.AddData(sig)
	}
	builder.AddData(redeemScript)
	sigScript, err := builder.Script()
	if err != nil {
		return nil, "", err
	}
	tx.TxIn[0].SignatureScript = sigScript

	prevOuts := txscript.NewCannedPrevOutputFetcher(
		fundingOut.PkScript, fundingOut.Value,
	)
	engine, err := txscript.NewEngine(
		fundingOut.PkScript, tx, 0, txscript.StandardVerifyFlags,
		nil, txscript.NewTxSigHashes(tx, prevOuts), fundingOut.Value, prevOuts,
	)
	if err != nil {
		return nil, "", err
	}
	if err := engine.Execute(); err != nil {
		return nil, "", ErrInvalidSignature
	}

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), tx.TxHash().String(), nil
}

// TxHex returns the hex encoding of a serialized transaction, the format
// accepted by broadcast endpoints.
func TxHex(txBytes []byte) string {
	return hex.EncodeToString(txBytes)
}
