package wallet

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"

	btcwire "github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/kvdb"
)

// ContractCache is the wallet-owned injective mapping from a funding
// outpoint to the contract scriptPubKey agreed for it, populated the first
// time this Maker signs or accepts a contract spending that outpoint and
// consulted on every later message touching the same outpoint, to defeat a
// bait-and-switch that tries to swap in a different contract transaction
// after the fact. Entries are never overwritten once inserted. Grounded on
// channeldb's bolt-bucket in-memory-mirror-over-a-bucket convention.
type ContractCache struct {
	mu      sync.RWMutex
	entries map[btcwire.OutPoint][]byte
	db      kvdb.Backend
}

func newContractCache(db kvdb.Backend) (*ContractCache, error) {
	c := &ContractCache{
		entries: make(map[btcwire.OutPoint][]byte),
		db:      db,
	}
	err := forEachContractCacheEntry(db, func(key, value []byte) error {
		op, err := decodeOutPoint(key)
		if err != nil {
			return err
		}
		c.entries[op] = append([]byte(nil), value...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("wallet: failed to load contract cache: %w", err)
	}
	return c, nil
}

// ErrContractCacheConflict is returned when Insert is asked to bind an
// outpoint to a scriptPubKey different from the one already cached for it —
// the append-only invariant this cache enforces.
var ErrContractCacheConflict = fmt.Errorf("wallet: contract cache entry already exists with a different scriptPubKey")

// Insert records scriptPubKey for outpoint. A second Insert for the same
// outpoint with a different scriptPubKey fails without mutating the cache;
// an identical re-insertion is a harmless no-op (idempotent retries of
// validation shouldn't fail on their own prior success).
func (c *ContractCache) Insert(outpoint btcwire.OutPoint, scriptPubKey []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[outpoint]; ok {
		if !bytes.Equal(existing, scriptPubKey) {
			return ErrContractCacheConflict
		}
		return nil
	}

	key := encodeOutPoint(outpoint)
	if err := putContractCacheEntry(c.db, key, scriptPubKey); err != nil {
		return fmt.Errorf("wallet: failed to persist contract cache entry: %w", err)
	}
	c.entries[outpoint] = append([]byte(nil), scriptPubKey...)
	return nil
}

// Lookup returns the cached scriptPubKey for outpoint, if any.
func (c *ContractCache) Lookup(outpoint btcwire.OutPoint) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[outpoint]
	return v, ok
}

func encodeOutPoint(op btcwire.OutPoint) []byte {
	key := make([]byte, 36)
	copy(key[:32], op.Hash[:])
	binary.BigEndian.PutUint32(key[32:], op.Index)
	return key
}

func decodeOutPoint(key []byte) (btcwire.OutPoint, error) {
	if len(key) != 36 {
		return btcwire.OutPoint{}, fmt.Errorf("wallet: malformed outpoint key of length %d", len(key))
	}
	var op btcwire.OutPoint
	copy(op.Hash[:], key[:32])
	op.Index = binary.BigEndian.Uint32(key[32:])
	return op, nil
}
