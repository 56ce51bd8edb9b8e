package escrow

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// RedeemScript builds the 2-of-3 multisig redeem script over the three
// escrow keys in the fixed order (arbitrator, seller, buyer). The order is
// not negotiable: every party must produce the same script, and signatures
// must later be pushed in this same key order.
func RedeemScript(
	arbitratorKey, sellerKey, buyerKey []byte, params *chaincfg.Params,
) ([]byte, error) {
	keys := make([]*btcutil.AddressPubKey, 0, 3)
	for _, k := range [][]byte{arbitratorKey, sellerKey, buyerKey} {
		if len(k) <= 0 {
			return nil, ErrNullPubKey
		}
		addr, err := btcutil.NewAddressPubKey(k, params)
		if err != nil {
			return nil, err
		}
		keys = append(keys, addr)
	}

	return txscript.MultiSigScript(keys, 2)
}

// Address returns the script-hash address of the 2-of-3 redeem script. It is
// a pure function of the ordered key triple and therefore identical for
// every party computing it.
func Address(
	arbitratorKey, sellerKey, buyerKey []byte, params *chaincfg.Params,
) (string, error) {
	script, err := RedeemScript(arbitratorKey, sellerKey, buyerKey, params)
	if err != nil {
		return "", err
	}

	addr, err := btcutil.NewAddressScriptHash(script, params)
	if err != nil {
		return "", err
	}
	return addr.EncodeAddress(), nil
}

const (
	// Weight of the escrow-spending transaction: one P2SH 2-of-3 input
	// (two 72-byte signatures plus the redeem script) and one output.
	payoutTxSize = 340
)

// PayoutFee returns the mining fee reserved for the escrow-spending
// transaction at the given fee rate. The funding output must carry the trade
// amount plus this fee.
func PayoutFee(feePerKb btcutil.Amount) btcutil.Amount {
	return feePerKb * payoutTxSize / 1000
}
