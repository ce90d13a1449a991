// Message Validator: the checks required before this Maker
// signs anything or trusts a claimed contract, grounded on
// contractcourt's two-phase "is this the right script, is it on chain
// with enough confirmations" htlc-resolution checks and lnwallet's
// signature-construction path, narrowed to the swap contract's two-branch
// shape.
package maker

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	btcwire "github.com/btcsuite/btcd/wire"

	"github.com/coinswapd/maker/chainrpc"
	"github.com/coinswapd/maker/contractutil"
	"github.com/coinswapd/maker/wallet"
	"github.com/coinswapd/maker/wire"
)

// checkFundingTxStandardness is supplemented from
// original_source/src/maker/api.rs: reject a funding output this Maker
// would refuse to relay on, the same standardness floor bitcoind's mempool
// policy enforces (P2WSH output, non-dust value). It catches a
// counterparty trying to fund a hop with a script this node's own
// broadcast path couldn't later spend cheaply.
func checkFundingTxStandardness(pkScript []byte, value int64) error {
	const dustThreshold = 294 // P2WSH dust limit at the standard 3 sat/vbyte floor
	if value < dustThreshold {
		return fmt.Errorf("funding output value %d sat below dust threshold", value)
	}
	if len(pkScript) != 34 || pkScript[0] != 0x00 || pkScript[1] != 0x20 {
		return fmt.Errorf("funding output is not a standard P2WSH script")
	}
	return nil
}

// VerifyProofOfFunding implements verify_proof_of_funding:
// for every confirmed funding transaction the previous hop claims, check
// its relative-timelock margin against this Maker's own paired outgoing
// contract, that the output is actually confirmed on chain, that the
// funding multisig and contract scripts are exactly the canonical shape
// the claimed keys/nonces/hashvalue/locktime would produce, and that every
// entry shares one hash commitment. On success it returns the
// IncomingSwapCoins this Maker now holds and binds each funding outpoint
// to its contract scriptPubKey in the wallet's cache.
func VerifyProofOfFunding(wal *wallet.Wallet, node chainrpc.Node, outgoing []*OutgoingSwapCoin,
	msg *wire.ProofOfFunding) ([32]byte, []*IncomingSwapCoin, error) {

	var hashValue [32]byte

	entries := msg.ConfirmedFundingTxes
	if len(entries) == 0 {
		return hashValue, nil, wrapf(ErrProtocol, "proof of funding carries no funding transactions")
	}
	if len(outgoing) != len(entries) {
		return hashValue, nil, wrapf(ErrProtocol,
			"proof of funding has %d entries, paired outgoing swapcoin count is %d",
			len(entries), len(outgoing))
	}

	incoming := make([]*IncomingSwapCoin, 0, len(entries))

	for i := range entries {
		info := &entries[i]

		if i == 0 {
			hashValue = info.HashValue
		} else if !bytes.Equal(hashValue[:], info.HashValue[:]) {
			return hashValue, nil, wrapf(ErrProtocol, "funding entry %d carries a different hash commitment", i)
		}

		hop := outgoing[i]
		if int64(info.ContractLocktime)-int64(hop.RelativeTimelock) < MinContractReactionTime {
			return hashValue, nil, wrapf(ErrProtocol,
				"funding entry %d: hop locktime %d too close to next hop's locktime %d",
				i, info.ContractLocktime, hop.RelativeTimelock)
		}

		coin, err := verifyFundingEntry(wal, node, info)
		if err != nil {
			return hashValue, nil, err
		}
		incoming = append(incoming, coin)
	}

	return hashValue, incoming, nil
}

func verifyFundingEntry(wal *wallet.Wallet, node chainrpc.Node, info *wire.FundingTxInfo) (*IncomingSwapCoin, error) {
	if info.FundingOutputIndex >= uint32(len(info.FundingTx.TxOut)) {
		return nil, wrapf(ErrProtocol, "funding output index %d out of range", info.FundingOutputIndex)
	}
	fundingOut := info.FundingTx.TxOut[info.FundingOutputIndex]

	if err := checkFundingTxStandardness(fundingOut.PkScript, fundingOut.Value); err != nil {
		return nil, wrapf(ErrProtocol, "funding output is not standard: %v", err)
	}

	counterpartyMultisigPub, err := btcec.ParsePubKey(info.CounterpartyMultisigPubkey)
	if err != nil {
		return nil, wrapf(ErrProtocol, "malformed counterparty multisig pubkey: %v", err)
	}
	counterpartyTimelockPub, err := btcec.ParsePubKey(info.CounterpartyTimelockPubkey)
	if err != nil {
		return nil, wrapf(ErrProtocol, "malformed counterparty timelock pubkey: %v", err)
	}

	ourMultisigPub := contractutil.TweakPubKey(wal.BaseKey.PubKey(), info.MultisigNonce)
	ourHashlockPub := contractutil.TweakPubKey(wal.BaseKey.PubKey(), info.HashlockNonce)

	multisigRedeemscript, err := contractutil.MultisigRedeemscript(ourMultisigPub, counterpartyMultisigPub)
	if err != nil {
		return nil, wrapf(ErrProtocol, "failed to rebuild multisig script: %v", err)
	}
	expectedFundingPk, err := contractutil.FundingPkScript(multisigRedeemscript)
	if err != nil {
		return nil, wrapf(ErrProtocol, "failed to rebuild funding pkScript: %v", err)
	}
	if !bytes.Equal(expectedFundingPk, fundingOut.PkScript) {
		return nil, wrapf(ErrProtocol, "funding output is not the canonical 2-of-2 this Maker expects")
	}

	if err := contractutil.ValidateContractScript(info.ContractRedeemscript, ourHashlockPub,
		counterpartyTimelockPub, info.HashValue, int64(info.ContractLocktime)); err != nil {
		return nil, wrapf(ErrProtocol, "contract script mismatch: %v", err)
	}

	fundingOutpoint := btcwire.OutPoint{Hash: info.FundingTx.TxHash(), Index: info.FundingOutputIndex}

	confs, found, err := node.TxOutConfirmations(&fundingOutpoint.Hash, fundingOutpoint.Index)
	if err != nil {
		return nil, wrapf(ErrNodeRPC, "failed to query funding output confirmations: %v", err)
	}
	if !found {
		return nil, wrapf(ErrProtocol, "funding output %v is not present on chain", fundingOutpoint)
	}
	if confs < RequiredConfirms {
		return nil, wrapf(ErrProtocol, "funding output %v has %d confirmations, need %d",
			fundingOutpoint, confs, RequiredConfirms)
	}

	contractPkScript, err := contractutil.ContractPkScript(info.ContractRedeemscript)
	if err != nil {
		return nil, wrapf(ErrProtocol, "failed to rebuild contract pkScript: %v", err)
	}
	if err := wal.ContractCache.Insert(fundingOutpoint, contractPkScript); err != nil {
		return nil, wrapf(ErrWallet, "contract cache rejected funding outpoint %v: %v", fundingOutpoint, err)
	}

	return &IncomingSwapCoin{swapCoinCommon{
		MultisigRedeemscript:       multisigRedeemscript,
		ContractRedeemscript:       info.ContractRedeemscript,
		FundingOutpoint:            fundingOutpoint,
		FundingValue:               fundingOut.Value,
		FundingPkScript:            expectedFundingPk,
		MultisigKeyNonce:           info.MultisigNonce,
		CounterpartyMultisigPubkey: info.CounterpartyMultisigPubkey,
		BranchKeyNonce:             info.HashlockNonce,
		HashValue:                  info.HashValue,
		AbsoluteLocktime:           int64(info.ContractLocktime),
	}}, nil
}

// VerifyAndSignContractTx implements verify_and_sign_contract_tx for the
// receiving side: the Maker is handed
// a contract transaction spending a funding outpoint it already validated
// during VerifyProofOfFunding, and is asked to co-sign it. Exactly one
// input and one output are required, the input's previous outpoint and
// the output's scriptPubKey must match what the contract cache already
// has on file for it, and the signature is produced with the hashlock key
// derived for that coin.
func VerifyAndSignContractTx(wal *wallet.Wallet, coin *IncomingSwapCoin, contractTx *btcwire.MsgTx,
	contractRedeemscript []byte) ([]byte, error) {

	if len(contractTx.TxIn) != 1 || len(contractTx.TxOut) != 1 {
		return nil, wrapf(ErrProtocol, "contract tx must have exactly one input and one output, has %d/%d",
			len(contractTx.TxIn), len(contractTx.TxOut))
	}

	prevOut := contractTx.TxIn[0].PreviousOutPoint
	if prevOut != coin.FundingOutpoint {
		return nil, wrapf(ErrProtocol, "contract tx input %v does not match cached funding outpoint %v",
			prevOut, coin.FundingOutpoint)
	}
	if !bytes.Equal(contractRedeemscript, coin.ContractRedeemscript) {
		return nil, wrapf(ErrProtocol, "contract redeemscript does not match what proof of funding established")
	}

	contractPkScript, err := contractutil.ContractPkScript(contractRedeemscript)
	if err != nil {
		return nil, wrapf(ErrProtocol, "failed to rebuild contract pkScript: %v", err)
	}
	cached, ok := wal.ContractCache.Lookup(coin.FundingOutpoint)
	if !ok || !bytes.Equal(cached, contractPkScript) {
		return nil, wrapf(ErrWallet, "contract cache has no matching entry for outpoint %v", coin.FundingOutpoint)
	}
	if !bytes.Equal(contractTx.TxOut[0].PkScript, contractPkScript) {
		return nil, wrapf(ErrProtocol, "contract tx output does not pay the agreed contract script")
	}

	multisigPriv := contractutil.TweakPrivKey(wal.BaseKey, coin.MultisigKeyNonce)
	sig, err := signMultisigInput(contractTx, coin.MultisigRedeemscript, coin.FundingValue, multisigPriv)
	if err != nil {
		return nil, wrapf(ErrProtocol, "failed to sign contract tx: %v", err)
	}

	coin.ContractTx = contractTx
	coin.OurSig = sig

	return sig, nil
}

// AttachCounterpartySig records the previous hop's half of the 2-of-2
// signature over an incoming swapcoin's contract transaction, handed to
// this Maker alongside the signing request in the same RecvrTxInfo entry.
// Once both halves are on file, FullySigned reports true and the Recovery
// Engine can combine and broadcast the contract tx without needing any
// further cooperation from the counterparty.
func AttachCounterpartySig(coin *IncomingSwapCoin, sig []byte) {
	coin.CounterpartySig = sig
}

// VerifyAndSignSenderTx implements verify_and_sign_contract_tx for the
// sending side: ReqContractSigsForSender hands this Maker a
// contract transaction spending a funding output it is about to create as
// the sender, asking for its half of the cooperative 2-of-2 signature
// before the funding output even exists on chain. This is the refund
// guarantee that lets the counterparty trust the swap even if this Maker
// never cooperates again after broadcasting the funding transaction.
func VerifyAndSignSenderTx(wal *wallet.Wallet, info *wire.SenderTxInfo) (*OutgoingSwapCoin, []byte, error) {
	if len(info.SenderContractTx.TxIn) != 1 || len(info.SenderContractTx.TxOut) != 1 {
		return nil, nil, wrapf(ErrProtocol, "sender contract tx must have exactly one input and one output")
	}

	counterpartyPub, err := btcec.ParsePubKey(info.CounterpartyPubkey)
	if err != nil {
		return nil, nil, wrapf(ErrProtocol, "malformed counterparty pubkey: %v", err)
	}

	ourMultisigPub := contractutil.TweakPubKey(wal.BaseKey.PubKey(), info.MultisigNonce)
	if err := contractutil.ValidateMultisigScript(info.MultisigRedeemscript, ourMultisigPub, counterpartyPub); err != nil {
		return nil, nil, wrapf(ErrProtocol, "multisig script mismatch: %v", err)
	}
	fundingPkScript, err := contractutil.FundingPkScript(info.MultisigRedeemscript)
	if err != nil {
		return nil, nil, wrapf(ErrProtocol, "failed to rebuild funding pkScript: %v", err)
	}

	ourTimelockPub := contractutil.TweakPubKey(wal.BaseKey.PubKey(), info.TimelockNonce)
	contractRedeemscript, err := contractutil.ContractRedeemscript(counterpartyPub, ourTimelockPub,
		info.HashValue, int64(info.Timelock))
	if err != nil {
		return nil, nil, wrapf(ErrProtocol, "failed to rebuild contract script: %v", err)
	}
	contractPkScript, err := contractutil.ContractPkScript(contractRedeemscript)
	if err != nil {
		return nil, nil, wrapf(ErrProtocol, "failed to rebuild contract pkScript: %v", err)
	}
	if !bytes.Equal(info.SenderContractTx.TxOut[0].PkScript, contractPkScript) {
		return nil, nil, wrapf(ErrProtocol, "sender contract tx output does not pay the agreed contract script")
	}

	fundingOutpoint := info.SenderContractTx.TxIn[0].PreviousOutPoint
	if err := wal.ContractCache.Insert(fundingOutpoint, contractPkScript); err != nil {
		return nil, nil, wrapf(ErrWallet, "contract cache rejected funding outpoint %v: %v", fundingOutpoint, err)
	}

	multisigPriv := contractutil.TweakPrivKey(wal.BaseKey, info.MultisigNonce)
	sig, err := signMultisigInput(info.SenderContractTx, info.MultisigRedeemscript,
		info.FundingInputValue, multisigPriv)
	if err != nil {
		return nil, nil, wrapf(ErrProtocol, "failed to sign sender contract tx: %v", err)
	}

	coin := &OutgoingSwapCoin{
		swapCoinCommon: swapCoinCommon{
			MultisigRedeemscript:       info.MultisigRedeemscript,
			ContractRedeemscript:       contractRedeemscript,
			FundingOutpoint:            fundingOutpoint,
			FundingValue:               info.FundingInputValue,
			FundingPkScript:            fundingPkScript,
			MultisigKeyNonce:           info.MultisigNonce,
			CounterpartyMultisigPubkey: info.CounterpartyPubkey,
			BranchKeyNonce:             info.TimelockNonce,
			HashValue:                  info.HashValue,
			AbsoluteLocktime:           int64(info.Timelock),
			ContractTx:                 info.SenderContractTx,
			OurSig:                     sig,
			CounterpartySig:            info.CounterpartySig,
		},
		RelativeTimelock: info.Timelock,
	}

	return coin, sig, nil
}
