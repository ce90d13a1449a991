package maker

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	btcwire "github.com/btcsuite/btcd/wire"

	"github.com/coinswapd/maker/contractutil"
)

// signMultisigInput produces this Maker's half of a 2-of-2 witness
// signature over tx's first input, mirroring lnwallet's witness-script
// signature path (txscript.RawTxInWitnessSignature) rather than the legacy
// sigScript signer wallet.go's signInputs uses, since every swap input is
// P2WSH.
func signMultisigInput(tx *btcwire.MsgTx, redeemscript []byte, inputValue int64,
	priv *btcec.PrivateKey) ([]byte, error) {

	sigHashes := txscript.NewTxSigHashes(tx, singleInputPrevOutFetcher(redeemscript, inputValue))
	return txscript.RawTxInWitnessSignature(tx, sigHashes, 0, inputValue, redeemscript,
		txscript.SigHashAll, priv)
}

// singleInputPrevOutFetcher builds the PrevOutputFetcher
// txscript.NewTxSigHashes needs for BIP143 sighashing, valid for the
// single-input contract/multisig transactions every swap coin signs.
func singleInputPrevOutFetcher(redeemscript []byte, inputValue int64) txscript.PrevOutputFetcher {
	pkScript, err := contractutil.FundingPkScript(redeemscript)
	if err != nil {
		return txscript.NewCannedPrevOutputFetcher(nil, 0)
	}
	return txscript.NewCannedPrevOutputFetcher(pkScript, inputValue)
}
