package maker

import (
	btcwire "github.com/btcsuite/btcd/wire"
)

// swapCoinCommon holds the fields every SwapCoin carries:
// the 2-of-2 multisig redeemscript, the contract (HTLC) redeemscript, the
// funding outpoint and value, the nonces used to derive this Maker's
// multisig and hashlock keys, the hash value and absolute locktime, and
// (once known) the counterparty's contract signature.
type swapCoinCommon struct {
	MultisigRedeemscript []byte
	ContractRedeemscript []byte

	FundingOutpoint btcwire.OutPoint
	FundingValue    int64

	// FundingPkScript is the funding output's P2WSH scriptPubKey, cached at
	// verification time so the wallet can track this coin as a UTXO
	// without rebuilding the multisig script from scratch at every handoff.
	FundingPkScript []byte

	MultisigKeyNonce [32]byte

	// CounterpartyMultisigPubkey is the other side's half of
	// MultisigRedeemscript, kept around so the Recovery Engine can order
	// a combined 2-of-2 witness without re-deriving it from the wire
	// message that's long gone by the time recovery runs.
	CounterpartyMultisigPubkey []byte

	// BranchKeyNonce derives this Maker's own contract-branch key: the
	// hashlock (preimage-redeem) key for an IncomingSwapCoin, or the
	// timelock (refund) key for an OutgoingSwapCoin, since a Maker always
	// holds the opposite branch from whichever counterparty role it's
	// paired with.
	BranchKeyNonce [32]byte

	HashValue      [32]byte
	AbsoluteLocktime int64

	ContractTx *btcwire.MsgTx

	// CounterpartySig holds the counterparty's signature over
	// ContractTx's single input once received. Nil until then.
	CounterpartySig []byte

	// OurSig holds this Maker's own signature over ContractTx, set once
	// verify_and_sign_contract_tx succeeds.
	OurSig []byte
}

func (s *swapCoinCommon) FullySigned() bool {
	return s.CounterpartySig != nil && s.OurSig != nil
}

// IncomingSwapCoin is an HTLC position where this Maker receives funds from
// the previous hop.
type IncomingSwapCoin struct {
	swapCoinCommon
}

// OutgoingSwapCoin is an HTLC position where this Maker sends funds to the
// next hop. It additionally exposes the relative timelock after which this
// Maker may sweep the contract output unilaterally, and the prepared
// timelock-spend transaction.
type OutgoingSwapCoin struct {
	swapCoinCommon

	RelativeTimelock uint16
	TimelockSpendTx  *btcwire.MsgTx

	// Swept is set once the Recovery Engine has broadcast the
	// timelock-spend for this coin, the invariant that the
	// engine broadcasts each outgoing timelock-spend at most once per
	// trigger.
	Swept bool
}

// ContractOutpoint is the outpoint the contract transaction pays to — the
// single output a HTLC contract tx has: exactly one input and one output.
func (s *swapCoinCommon) ContractOutpoint() btcwire.OutPoint {
	if s.ContractTx == nil {
		return btcwire.OutPoint{}
	}
	return btcwire.OutPoint{Hash: s.ContractTx.TxHash(), Index: 0}
}
