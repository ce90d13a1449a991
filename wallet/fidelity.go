package wallet

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/txscript"
	btcwire "github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/kvdb"

	"github.com/coinswapd/maker/contractutil"
)

// FidelityProof is a time-locked on-chain deposit bound to the Maker's
// advertised address by a signature. Exactly one "highest" proof is kept,
// swapped wholesale on refresh under this slot's own RW-lock discipline.
type FidelityProof struct {
	OutPoint     btcwire.OutPoint
	Value        int64
	Locktime     uint32
	BondScript   []byte
	Signature    []byte
	AdvertisedAddress string
}

// FidelityStore holds the current highest proof behind its own
// reader-writer lock, independent of the wallet's UTXO lock: one
// reader-writer lock, swapped wholesale on refresh.
type FidelityStore struct {
	mu      sync.RWMutex
	current *FidelityProof
	db      kvdb.Backend
}

func loadFidelityStore(db kvdb.Backend) (*FidelityStore, error) {
	raw, err := getFidelityProof(db)
	if err != nil {
		return nil, fmt.Errorf("wallet: failed to load fidelity proof: %w", err)
	}

	f := &FidelityStore{db: db}
	if raw != nil {
		proof, err := decodeFidelityProof(raw)
		if err != nil {
			return nil, err
		}
		f.current = proof
	}
	return f, nil
}

// Current returns the highest known proof, or nil if none has been created
// yet.
func (f *FidelityStore) Current() *FidelityProof {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.current == nil {
		return nil
	}
	clone := *f.current
	return &clone
}

// Refresh installs a new proof as the highest one, persisting it and
// discarding the old in one wholesale swap.
func (f *FidelityStore) Refresh(proof *FidelityProof) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := putFidelityProof(f.db, encodeFidelityProof(proof)); err != nil {
		return fmt.Errorf("wallet: failed to persist fidelity proof: %w", err)
	}
	f.current = proof
	return nil
}

// CreateFidelityBond funds a new time-locked deposit of valueSat for
// lockTimeBlocks blocks from the seed category and signs it to
// advertisedAddress, returning the new proof. It does not install the
// proof as current — the Supervisor does that via Refresh only once
// directory registration with it is about to proceed, so a failed
// registration doesn't strand the old proof mid-swap.
func (w *Wallet) CreateFidelityBond(valueSat int64, lockTimeBlocks uint32,
	advertisedAddress string) (*FidelityProof, error) {

	w.mu.Lock()
	defer w.mu.Unlock()

	var selected []*Utxo
	var total int64
	for _, u := range w.utxos {
		if u.Category != CategorySeed || !u.Confirmed {
			continue
		}
		selected = append(selected, u)
		total += u.Value
		if total >= valueSat {
			break
		}
	}
	if total < valueSat {
		return nil, fmt.Errorf("wallet: insufficient seed balance for fidelity bond: "+
			"have %d, need %d (shortfall %d)", total, valueSat, valueSat-total)
	}

	bondPriv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("wallet: failed to generate fidelity bond key: %w", err)
	}
	bondScript, err := fidelityBondScript(bondPriv.PubKey(), lockTimeBlocks)
	if err != nil {
		return nil, err
	}
	bondPkScript, err := contractutil.FundingPkScript(bondScript)
	if err != nil {
		return nil, err
	}

	tx := btcwire.NewMsgTx(btcwire.TxVersion)
	for _, u := range selected {
		tx.AddTxIn(btcwire.NewTxIn(&u.OutPoint, nil, nil))
	}
	tx.AddTxOut(btcwire.NewTxOut(valueSat, bondPkScript))
	if change := total - valueSat; change > 0 {
		changeAddr, changePriv, err := w.NewAddress()
		if err != nil {
			return nil, err
		}
		changeScript, err := txscript.PayToAddrScript(changeAddr)
		if err != nil {
			return nil, err
		}
		tx.AddTxOut(btcwire.NewTxOut(change, changeScript))
		if err := w.addUtxoLocked(btcwire.OutPoint{}, change, changeScript,
			CategorySeed, false, changePriv); err != nil {
			return nil, err
		}
	}

	if err := w.signInputs(tx, selected); err != nil {
		return nil, fmt.Errorf("wallet: failed to sign fidelity bond tx: %w", err)
	}

	txid, err := w.node.SendRawTransaction(tx)
	if err != nil {
		return nil, fmt.Errorf("wallet: failed to broadcast fidelity bond tx: %w", err)
	}

	for _, u := range selected {
		if err := w.removeUtxoLocked(u.OutPoint); err != nil {
			return nil, err
		}
	}

	outpoint := btcwire.OutPoint{Hash: *txid, Index: 0}
	if err := w.addUtxoLocked(outpoint, valueSat, bondPkScript, CategoryFidelity,
		false, bondPriv); err != nil {
		return nil, err
	}

	sig, err := signFidelityBinding(bondPriv, advertisedAddress)
	if err != nil {
		return nil, err
	}

	return &FidelityProof{
		OutPoint:          outpoint,
		Value:              valueSat,
		Locktime:           lockTimeBlocks,
		BondScript:         bondScript,
		Signature:          sig,
		AdvertisedAddress:  advertisedAddress,
	}, nil
}

func encodeFidelityProof(p *FidelityProof) []byte {
	buf := make([]byte, 0, 64+len(p.BondScript)+len(p.Signature)+len(p.AdvertisedAddress))
	var fixed [48]byte
	copy(fixed[0:32], p.OutPoint.Hash[:])
	binary.BigEndian.PutUint32(fixed[32:36], p.OutPoint.Index)
	binary.BigEndian.PutUint64(fixed[36:44], uint64(p.Value))
	binary.BigEndian.PutUint32(fixed[44:48], p.Locktime)
	buf = append(buf, fixed[:]...)
	buf = appendLenPrefixed(buf, p.BondScript)
	buf = appendLenPrefixed(buf, p.Signature)
	buf = appendLenPrefixed(buf, []byte(p.AdvertisedAddress))
	return buf
}

func decodeFidelityProof(b []byte) (*FidelityProof, error) {
	if len(b) < 48 {
		return nil, fmt.Errorf("wallet: malformed fidelity proof record")
	}
	p := &FidelityProof{}
	copy(p.OutPoint.Hash[:], b[0:32])
	p.OutPoint.Index = binary.BigEndian.Uint32(b[32:36])
	p.Value = int64(binary.BigEndian.Uint64(b[36:44]))
	p.Locktime = binary.BigEndian.Uint32(b[44:48])

	rest := b[48:]
	var err error
	p.BondScript, rest, err = readLenPrefixed(rest)
	if err != nil {
		return nil, err
	}
	p.Signature, rest, err = readLenPrefixed(rest)
	if err != nil {
		return nil, err
	}
	addrBytes, _, err := readLenPrefixed(rest)
	if err != nil {
		return nil, err
	}
	p.AdvertisedAddress = string(addrBytes)
	return p, nil
}

func appendLenPrefixed(buf, data []byte) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, data...)
}

func readLenPrefixed(b []byte) (data, rest []byte, err error) {
	if len(b) < 4 {
		return nil, nil, fmt.Errorf("wallet: truncated length-prefixed field")
	}
	n := binary.BigEndian.Uint32(b[:4])
	if uint32(len(b)-4) < n {
		return nil, nil, fmt.Errorf("wallet: truncated length-prefixed field body")
	}
	return append([]byte(nil), b[4:4+n]...), b[4+n:], nil
}

// fidelityBondScript locks bondPubkey's coin for lockTimeBlocks relative
// blocks, the single-branch degenerate case of a contract redeem script
// (timelock-only, no hashlock branch — a fidelity bond has nothing to
// redeem cooperatively before maturity).
func fidelityBondScript(bondPubkey *btcec.PublicKey, lockTimeBlocks uint32) ([]byte, error) {
	builder := txscript.NewScriptBuilder()
	builder.AddInt64(int64(lockTimeBlocks))
	builder.AddOp(txscript.OP_CHECKSEQUENCEVERIFY)
	builder.AddOp(txscript.OP_DROP)
	builder.AddData(bondPubkey.SerializeCompressed())
	builder.AddOp(txscript.OP_CHECKSIG)
	return builder.Script()
}

// signFidelityBinding signs the advertised address string with the bond
// key, binding the deposit to that address the way the directory expects
// when ranking Makers by fidelity bond per the GLOSSARY's definition.
func signFidelityBinding(bondPriv *btcec.PrivateKey, advertisedAddress string) ([]byte, error) {
	digest := sha256.Sum256([]byte(advertisedAddress))
	sig := ecdsa.Sign(bondPriv, digest[:])
	return sig.Serialize(), nil
}
