// Package contractutil builds and validates the multisig and HTLC contract
// scripts a coinswap hop is made of, grounded on
// lnwallet/script_utils.go's ScriptBuilder-based construction of the
// funding multisig and commitment HTLC scripts, trimmed from three branches
// (receiver/revoke/sender) to the two a single-use swap contract needs:
// redeem-by-preimage or redeem-after-timelock. There is no revocation
// branch because, unlike a channel commitment, a swap contract is spent at
// most once.
package contractutil

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck
)

// MultisigRedeemscript returns the canonical 2-of-2 multisig redeem script
// funding a swap hop, with pubkeys sorted lexicographically so both sides
// independently derive byte-identical scripts, mirroring
// lnwallet/script_utils.go's genMultiSigScript.
func MultisigRedeemscript(pubA, pubB *btcec.PublicKey) ([]byte, error) {
	a := pubA.SerializeCompressed()
	b := pubB.SerializeCompressed()
	if compareBytes(a, b) == 1 {
		a, b = b, a
	}

	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_2)
	builder.AddData(a)
	builder.AddData(b)
	builder.AddOp(txscript.OP_2)
	builder.AddOp(txscript.OP_CHECKMULTISIG)
	return builder.Script()
}

// ValidateMultisigScript checks that script is exactly the canonical 2-of-2
// MultisigRedeemscript would build for pubA/pubB, guarding against a
// non-canonical multisig (extra keys, wrong threshold) that could make
// broadcast/confirmation unreliable.
func ValidateMultisigScript(script []byte, pubA, pubB *btcec.PublicKey) error {
	expected, err := MultisigRedeemscript(pubA, pubB)
	if err != nil {
		return fmt.Errorf("contractutil: could not rebuild expected multisig script: %w", err)
	}
	if !bytes.Equal(expected, script) {
		return fmt.Errorf("contractutil: multisig script is not a canonical 2-of-2")
	}
	return nil
}

// FundingPkScript wraps a multisig redeemscript into the P2WSH
// scriptPubKey actually placed in the funding transaction's output,
// mirroring lnwallet/script_utils.go's witnessScriptHash/genFundingPkScript.
func FundingPkScript(multisigRedeemscript []byte) ([]byte, error) {
	scriptHash := sha256Sum(multisigRedeemscript)
	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_0)
	builder.AddData(scriptHash[:])
	return builder.Script()
}

// ContractRedeemscript builds the HTLC script a funding multisig pays into:
// redeemable immediately by the hashlock key given the hash preimage, or by
// the timelock key once `locktime` relative blocks have passed. This is
// lnwallet/script_utils.go's senderHTLCScript with the revocation/remote
// branches removed, since a coinswap contract has exactly two spend paths.
//
//	OP_IF
//	    OP_SIZE 32 OP_EQUALVERIFY OP_HASH160 <RIPEMD160(hashValue)> OP_EQUALVERIFY
//	    <hashlockPubkey> OP_CHECKSIG
//	OP_ELSE
//	    <locktime> OP_CHECKSEQUENCEVERIFY OP_DROP
//	    <timelockPubkey> OP_CHECKSIG
//	OP_ENDIF
func ContractRedeemscript(hashlockPubkey, timelockPubkey *btcec.PublicKey,
	hashValue [32]byte, locktime int64) ([]byte, error) {

	if locktime <= 0 || locktime > 0xffff {
		return nil, fmt.Errorf("contractutil: locktime %d out of range", locktime)
	}

	builder := txscript.NewScriptBuilder()

	builder.AddOp(txscript.OP_IF)
	{
		builder.AddOp(txscript.OP_SIZE)
		builder.AddInt64(32)
		builder.AddOp(txscript.OP_EQUALVERIFY)
		builder.AddOp(txscript.OP_HASH160)
		ripemdHash := ripemd160Sum(hashValue[:])
		builder.AddData(ripemdHash[:])
		builder.AddOp(txscript.OP_EQUALVERIFY)
		builder.AddData(hashlockPubkey.SerializeCompressed())
		builder.AddOp(txscript.OP_CHECKSIG)
	}
	builder.AddOp(txscript.OP_ELSE)
	{
		builder.AddInt64(locktime)
		builder.AddOp(txscript.OP_CHECKSEQUENCEVERIFY)
		builder.AddOp(txscript.OP_DROP)
		builder.AddData(timelockPubkey.SerializeCompressed())
		builder.AddOp(txscript.OP_CHECKSIG)
	}
	builder.AddOp(txscript.OP_ENDIF)

	return builder.Script()
}

// ContractPkScript is the P2WSH scriptPubKey a contract transaction's
// single output carries.
func ContractPkScript(contractRedeemscript []byte) ([]byte, error) {
	return FundingPkScript(contractRedeemscript)
}

// ValidateContractScript checks that script is exactly the contract redeem
// script ContractRedeemscript would build for the claimed
// (hashlockPubkey, timelockPubkey, hashValue, locktime) — a
// reconstruct-and-compare check rather than a disassembler, since both
// sides of a swap always build this script from the same template and any
// deviation is itself the attack this check guards against (bait-and-switch
// via a subtly different script).
func ValidateContractScript(script []byte, hashlockPubkey, timelockPubkey *btcec.PublicKey,
	hashValue [32]byte, locktime int64) error {

	expected, err := ContractRedeemscript(hashlockPubkey, timelockPubkey, hashValue, locktime)
	if err != nil {
		return fmt.Errorf("contractutil: could not rebuild expected contract script: %w", err)
	}
	if !bytes.Equal(expected, script) {
		return fmt.Errorf("contractutil: contract script does not match expected shape")
	}
	return nil
}

// BuildHashlockWitness builds the witness stack redeeming a contract output
// via the hashlock branch, mirroring
// lnwallet/script_utils.go's senderHtlcSpendRedeem witness assembly.
func BuildHashlockWitness(sig []byte, preimage [32]byte, contractRedeemscript []byte) wire.TxWitness {
	return wire.TxWitness{
		sig,
		preimage[:],
		[]byte{1}, // select the OP_IF branch
		contractRedeemscript,
	}
}

// BuildTimelockWitness builds the witness stack redeeming a contract output
// via the relative-timelock branch once mature, mirroring
// lnwallet/script_utils.go's senderHtlcSpendTimeout.
func BuildTimelockWitness(sig []byte, contractRedeemscript []byte) wire.TxWitness {
	return wire.TxWitness{
		sig,
		nil, // select the OP_ELSE branch
		contractRedeemscript,
	}
}

// BuildMultisigWitness builds the witness stack cooperatively spending a
// 2-of-2 funding output, ordering signatures to match the sorted-pubkey
// order MultisigRedeemscript used, mirroring
// lnwallet/script_utils.go's spendMultiSig.
func BuildMultisigWitness(sigA, sigB []byte, pubA, pubB *btcec.PublicKey, multisigRedeemscript []byte) wire.TxWitness {
	sig1, sig2 := sigA, sigB
	if compareBytes(pubA.SerializeCompressed(), pubB.SerializeCompressed()) == 1 {
		sig1, sig2 = sigB, sigA
	}
	return wire.TxWitness{
		nil, // OP_CHECKMULTISIG dummy stack element
		sig1,
		sig2,
		multisigRedeemscript,
	}
}

func compareBytes(a, b []byte) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

func sha256Sum(b []byte) chainhash.Hash {
	return chainhash.HashH(b)
}

func ripemd160Sum(b []byte) [20]byte {
	h := ripemd160.New()
	h.Write(b)
	var out [20]byte
	copy(out[:], h.Sum(nil))
	return out
}
