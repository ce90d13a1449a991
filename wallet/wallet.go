// Package wallet implements the Maker's narrow wallet contract: four UTXO
// categories (seed/swap/contract/fidelity), the contract cache, and the
// fidelity-bond slot, persisted to <data_dir>/wallets/<wallet_name> via
// lightningnetwork/lnd/kvdb, grounded on channeldb/db.go's bolt-backed
// store and breacharbiter.go's retributionStore Add/Remove/ForAll shape.
// Address derivation and coin selection are the narrow, intentionally
// simple edges of this contract — the wallet's UTXO/address-derivation
// internals stay out of the core's concern.
package wallet

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	btcwire "github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/lightningnetwork/lnd/kvdb"

	"github.com/coinswapd/maker/chainrpc"
)

// Category partitions the wallet's coins the way the RPC surface does:
// seed coins fund new swaps and fidelity bonds, swap coins are
// in-flight HTLC positions, contract coins are broadcast-but-unswept
// contract outputs, fidelity coins back the advertised bond.
type Category uint8

const (
	CategorySeed Category = iota
	CategorySwap
	CategoryContract
	CategoryFidelity
)

func (c Category) String() string {
	switch c {
	case CategorySeed:
		return "seed"
	case CategorySwap:
		return "swap"
	case CategoryContract:
		return "contract"
	case CategoryFidelity:
		return "fidelity"
	default:
		return "unknown"
	}
}

// Utxo is one coin the wallet tracks.
type Utxo struct {
	OutPoint  btcwire.OutPoint
	Value     int64
	PkScript  []byte
	Category  Category
	Confirmed bool
}

// Wallet is the Maker's single shared wallet: one reader-writer lock,
// readers far outnumbering writers (cache insertions, swapcoin
// removal, fidelity creation, sync, and save-to-disk are the only writes).
type Wallet struct {
	mu sync.RWMutex

	db   kvdb.Backend
	node chainrpc.Node
	net  *chaincfg.Params

	dataDir    string
	walletName string

	utxos    map[btcwire.OutPoint]*Utxo
	keychain map[btcwire.OutPoint]*btcec.PrivateKey

	ContractCache *ContractCache
	Fidelity      *FidelityStore

	// BaseKey is this Maker's long-lived tweakable keypair:
	// contractutil.TweakPrivKey/TweakPubKey derive every swapcoin's
	// multisig and hashlock keys from it and a per-swapcoin nonce, so no
	// swap leaks key material usable against another.
	BaseKey *btcec.PrivateKey
}

var baseKeyMetaKey = []byte("base-key")

// Load opens (creating if absent) the wallet file at
// <data_dir>/wallets/<wallet_name>, mirroring channeldb.Open's
// create-bucket-tree-if-new idiom.
func Load(dataDir, walletName string, node chainrpc.Node, net *chaincfg.Params) (*Wallet, error) {
	walletPath := filepath.Join(dataDir, "wallets", walletName)

	if err := os.MkdirAll(filepath.Dir(walletPath), 0700); err != nil {
		return nil, fmt.Errorf("wallet: failed to create %s: %w", filepath.Dir(walletPath), err)
	}

	db, err := kvdb.Create(kvdb.BoltBackendName, walletPath, true, kvdb.DefaultDBTimeout)
	if err != nil {
		return nil, fmt.Errorf("wallet: failed to open %s: %w", walletPath, err)
	}

	if err := openBuckets(db); err != nil {
		db.Close()
		return nil, err
	}

	cache, err := newContractCache(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	fidelity, err := loadFidelityStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	w := &Wallet{
		db:            db,
		node:          node,
		net:           net,
		dataDir:       dataDir,
		walletName:    walletName,
		utxos:         make(map[btcwire.OutPoint]*Utxo),
		keychain:      make(map[btcwire.OutPoint]*btcec.PrivateKey),
		ContractCache: cache,
		Fidelity:      fidelity,
	}

	if err := w.loadUtxos(); err != nil {
		db.Close()
		return nil, err
	}

	if err := w.loadOrCreateBaseKey(); err != nil {
		db.Close()
		return nil, err
	}

	return w, nil
}

// loadOrCreateBaseKey restores the persisted tweakable keypair, generating
// and persisting a fresh one on a brand-new wallet.
func (w *Wallet) loadOrCreateBaseKey() error {
	raw, err := getMeta(w.db, baseKeyMetaKey)
	if err != nil {
		return fmt.Errorf("wallet: failed to load base key: %w", err)
	}
	if raw != nil {
		w.BaseKey, _ = btcec.PrivKeyFromBytes(raw)
		return nil
	}

	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return fmt.Errorf("wallet: failed to generate base key: %w", err)
	}
	if err := putMeta(w.db, baseKeyMetaKey, priv.Serialize()); err != nil {
		return fmt.Errorf("wallet: failed to persist base key: %w", err)
	}
	w.BaseKey = priv
	return nil
}

func (w *Wallet) loadUtxos() error {
	return forEachUtxo(w.db, func(key, value []byte) error {
		op, err := decodeOutPoint(key)
		if err != nil {
			return err
		}
		utxo, err := decodeUtxo(value)
		if err != nil {
			return err
		}
		utxo.OutPoint = op
		w.utxos[op] = utxo
		return nil
	})
}

// Close flushes and releases the underlying kvdb handle, the wallet-side
// half of the Supervisor's shutdown sync-then-persist step.
func (w *Wallet) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.db.Close()
}

// Net returns the chain parameters this wallet was loaded with, letting
// callers outside the package (the RPC surface) decode and encode
// addresses without the wallet needing to expose its signing internals.
func (w *Wallet) Net() *chaincfg.Params {
	return w.net
}

// Balance sums the value of every confirmed UTXO in category.
func (w *Wallet) Balance(category Category) int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var total int64
	for _, u := range w.utxos {
		if u.Category == category && u.Confirmed {
			total += u.Value
		}
	}
	return total
}

// ListUtxos returns every tracked coin in category, confirmed or not.
func (w *Wallet) ListUtxos(category Category) []Utxo {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var out []Utxo
	for _, u := range w.utxos {
		if u.Category == category {
			out = append(out, *u)
		}
	}
	return out
}

// AddUtxo registers a new coin under category, persisting it, and keeps its
// signing key in the in-memory keychain so later contract/multisig signing
// can find it by outpoint.
func (w *Wallet) AddUtxo(outpoint btcwire.OutPoint, value int64, pkScript []byte,
	category Category, confirmed bool, priv *btcec.PrivateKey) error {

	w.mu.Lock()
	defer w.mu.Unlock()

	utxo := &Utxo{
		OutPoint:  outpoint,
		Value:     value,
		PkScript:  pkScript,
		Category:  category,
		Confirmed: confirmed,
	}

	key := encodeOutPoint(outpoint)
	if err := kvdb.Update(w.db, func(tx kvdb.RwTx) error {
		if err := putUtxo(tx, key, encodeUtxo(utxo)); err != nil {
			return err
		}
		if priv != nil {
			return putKeychainEntry(tx, key, priv.Serialize())
		}
		return nil
	}, func() {}); err != nil {
		return fmt.Errorf("wallet: failed to persist utxo: %w", err)
	}

	w.utxos[outpoint] = utxo
	if priv != nil {
		w.keychain[outpoint] = priv
	}
	return nil
}

// RemoveUtxo deletes a coin once its swapcoin has been fully resolved
// (cooperative close or Recovery Engine finalize): after Recovery
// finalizes, no SwapCoin mentioned in the trigger remains in the wallet.
func (w *Wallet) RemoveUtxo(outpoint btcwire.OutPoint) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	key := encodeOutPoint(outpoint)
	if err := kvdb.Update(w.db, func(tx kvdb.RwTx) error {
		return delUtxo(tx, key)
	}, func() {}); err != nil {
		return fmt.Errorf("wallet: failed to delete utxo: %w", err)
	}

	delete(w.utxos, outpoint)
	delete(w.keychain, outpoint)
	return nil
}

// SigningKey returns the private key the wallet holds for outpoint, used by
// the Message Validator when it needs to sign a contract or multisig input
// the wallet itself owns.
func (w *Wallet) SigningKey(outpoint btcwire.OutPoint) (*btcec.PrivateKey, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	priv, ok := w.keychain[outpoint]
	return priv, ok
}

// NewAddress generates a fresh P2WPKH address and keeps its key in the
// keychain under a synthetic outpoint keyed by the address's pubkey hash,
// so a later deposit landing on it is recognized once Sync observes it.
func (w *Wallet) NewAddress() (btcutil.Address, *btcec.PrivateKey, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, nil, fmt.Errorf("wallet: failed to generate key: %w", err)
	}

	pubKeyHash := btcutil.Hash160(priv.PubKey().SerializeCompressed())
	addr, err := btcutil.NewAddressWitnessPubKeyHash(pubKeyHash, w.net)
	if err != nil {
		return nil, nil, fmt.Errorf("wallet: failed to derive address: %w", err)
	}

	return addr, priv, nil
}

// SendToAddress spends from the seed category to construct, sign, and
// broadcast a transaction paying amountSat to addr with feeSat as the
// absolute fee. Coin selection is simple: confirmed seed coins are taken in
// map iteration order (not sorted by value) until amount plus fee is
// covered.
func (w *Wallet) SendToAddress(addr btcutil.Address, amountSat, feeSat int64) (*chainhash.Hash, error) {
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
		if total >= amountSat+feeSat {
			break
		}
	}
	if total < amountSat+feeSat {
		return nil, fmt.Errorf("wallet: insufficient seed balance: have %d, need %d",
			total, amountSat+feeSat)
	}

	tx := btcwire.NewMsgTx(btcwire.TxVersion)
	for _, u := range selected {
		tx.AddTxIn(btcwire.NewTxIn(&u.OutPoint, nil, nil))
	}

	payScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, fmt.Errorf("wallet: failed to build output script: %w", err)
	}
	tx.AddTxOut(btcwire.NewTxOut(amountSat, payScript))

	if change := total - amountSat - feeSat; change > 0 {
		changeAddr, changePriv, err := w.NewAddress()
		if err != nil {
			return nil, err
		}
		changeScript, err := txscript.PayToAddrScript(changeAddr)
		if err != nil {
			return nil, err
		}
		changeOut := btcwire.NewTxOut(change, changeScript)
		if txrules.IsDustOutput(changeOut, txrules.DefaultRelayFeePerKb) {
			// Below the dust threshold, the change output costs more to
			// spend later than it's worth — fold it into the fee instead
			// of creating it.
			changeOut = nil
		}
		if changeOut != nil {
			tx.AddTxOut(changeOut)
			if err := w.addUtxoLocked(btcwire.OutPoint{}, change, changeScript,
				CategorySeed, false, changePriv); err != nil {
				return nil, err
			}
		}
	}

	if err := w.signInputs(tx, selected); err != nil {
		return nil, fmt.Errorf("wallet: failed to sign send-to-address tx: %w", err)
	}

	txid, err := w.node.SendRawTransaction(tx)
	if err != nil {
		return nil, fmt.Errorf("wallet: failed to broadcast send-to-address tx: %w", err)
	}

	for _, u := range selected {
		if err := w.removeUtxoLocked(u.OutPoint); err != nil {
			return nil, err
		}
	}

	return txid, nil
}

func (w *Wallet) signInputs(tx *btcwire.MsgTx, spent []*Utxo) error {
	for i, u := range spent {
		priv, ok := w.keychain[u.OutPoint]
		if !ok {
			return fmt.Errorf("wallet: no signing key for input %v", u.OutPoint)
		}
		sigScript, err := txscript.SignatureScript(
			tx, i, u.PkScript, txscript.SigHashAll, priv, true,
		)
		if err != nil {
			return err
		}
		tx.TxIn[i].SignatureScript = sigScript
	}
	return nil
}

// addUtxoLocked/removeUtxoLocked are the lock-already-held counterparts of
// AddUtxo/RemoveUtxo, for callers (like SendToAddress) that already hold
// w.mu.
func (w *Wallet) addUtxoLocked(outpoint btcwire.OutPoint, value int64, pkScript []byte,
	category Category, confirmed bool, priv *btcec.PrivateKey) error {

	utxo := &Utxo{OutPoint: outpoint, Value: value, PkScript: pkScript,
		Category: category, Confirmed: confirmed}

	key := encodeOutPoint(outpoint)
	if err := kvdb.Update(w.db, func(tx kvdb.RwTx) error {
		if err := putUtxo(tx, key, encodeUtxo(utxo)); err != nil {
			return err
		}
		if priv != nil {
			return putKeychainEntry(tx, key, priv.Serialize())
		}
		return nil
	}, func() {}); err != nil {
		return err
	}

	w.utxos[outpoint] = utxo
	if priv != nil {
		w.keychain[outpoint] = priv
	}
	return nil
}

func (w *Wallet) removeUtxoLocked(outpoint btcwire.OutPoint) error {
	key := encodeOutPoint(outpoint)
	if err := kvdb.Update(w.db, func(tx kvdb.RwTx) error {
		return delUtxo(tx, key)
	}, func() {}); err != nil {
		return err
	}
	delete(w.utxos, outpoint)
	delete(w.keychain, outpoint)
	return nil
}

// Sync re-queries the node for every tracked coin's confirmation status,
// the step that runs after the Recovery Engine finalizes.
func (w *Wallet) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for op, u := range w.utxos {
		_, found, err := w.node.TxOutConfirmations(&op.Hash, op.Index)
		if err != nil {
			return fmt.Errorf("wallet: sync failed for %v: %w", op, err)
		}
		u.Confirmed = found
	}
	return nil
}

func encodeUtxo(u *Utxo) []byte {
	buf := make([]byte, 14+len(u.PkScript))
	binary.BigEndian.PutUint64(buf[0:8], uint64(u.Value))
	buf[8] = byte(u.Category)
	if u.Confirmed {
		buf[9] = 1
	}
	binary.BigEndian.PutUint32(buf[10:14], uint32(len(u.PkScript)))
	copy(buf[14:], u.PkScript)
	return buf
}

func decodeUtxo(b []byte) (*Utxo, error) {
	if len(b) < 14 {
		return nil, fmt.Errorf("wallet: malformed utxo record of length %d", len(b))
	}
	value := int64(binary.BigEndian.Uint64(b[0:8]))
	category := Category(b[8])
	confirmed := b[9] != 0
	scriptLen := binary.BigEndian.Uint32(b[10:14])
	if len(b) < int(14+scriptLen) {
		return nil, fmt.Errorf("wallet: truncated utxo record")
	}
	pkScript := append([]byte(nil), b[14:14+scriptLen]...)
	return &Utxo{Value: value, Category: category, Confirmed: confirmed, PkScript: pkScript}, nil
}
