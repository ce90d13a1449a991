package wallet

import (
	"encoding/binary"
	"fmt"

	"github.com/lightningnetwork/lnd/kvdb"
)

// Bucket layout mirrors channeldb/db.go's and breacharbiter.go's
// retributionStore convention: one top-level bucket per concern, keyed by a
// fixed-width binary key, with manual Encode/Decode on the value.
var (
	utxoBucketKey        = []byte("wallet-utxos")
	contractCacheBucketKey = []byte("wallet-contract-cache")
	fidelityBucketKey    = []byte("wallet-fidelity")
	keychainBucketKey    = []byte("wallet-keychain")
	metaBucketKey        = []byte("wallet-meta")
)

func openBuckets(db kvdb.Backend) error {
	return kvdb.Update(db, func(tx kvdb.RwTx) error {
		for _, key := range [][]byte{
			utxoBucketKey, contractCacheBucketKey, fidelityBucketKey,
			keychainBucketKey, metaBucketKey,
		} {
			if _, err := tx.CreateTopLevelBucket(key); err != nil {
				return fmt.Errorf("wallet: failed to create bucket %s: %w", key, err)
			}
		}
		return nil
	}, func() {})
}

// outpointKey mirrors breacharbiter.go's manual fixed-width key encoding
// (32-byte hash followed by a 4-byte big-endian index) used to key the
// retribution store by wire.OutPoint.
func outpointKey(txid [32]byte, index uint32) []byte {
	key := make([]byte, 36)
	copy(key[:32], txid[:])
	binary.BigEndian.PutUint32(key[32:], index)
	return key
}

func putUtxo(tx kvdb.RwTx, key []byte, value []byte) error {
	bucket := tx.ReadWriteBucket(utxoBucketKey)
	if bucket == nil {
		return fmt.Errorf("wallet: utxo bucket missing")
	}
	return bucket.Put(key, value)
}

func delUtxo(tx kvdb.RwTx, key []byte) error {
	bucket := tx.ReadWriteBucket(utxoBucketKey)
	if bucket == nil {
		return fmt.Errorf("wallet: utxo bucket missing")
	}
	return bucket.Delete(key)
}

func forEachUtxo(db kvdb.Backend, cb func(key, value []byte) error) error {
	return kvdb.View(db, func(tx kvdb.RTx) error {
		bucket := tx.ReadBucket(utxoBucketKey)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(cb)
	}, func() {})
}

func putContractCacheEntry(db kvdb.Backend, key, value []byte) error {
	return kvdb.Update(db, func(tx kvdb.RwTx) error {
		bucket := tx.ReadWriteBucket(contractCacheBucketKey)
		if bucket == nil {
			return fmt.Errorf("wallet: contract cache bucket missing")
		}
		return bucket.Put(key, value)
	}, func() {})
}

func getContractCacheEntry(db kvdb.Backend, key []byte) ([]byte, error) {
	var value []byte
	err := kvdb.View(db, func(tx kvdb.RTx) error {
		bucket := tx.ReadBucket(contractCacheBucketKey)
		if bucket == nil {
			return nil
		}
		v := bucket.Get(key)
		if v != nil {
			value = append([]byte(nil), v...)
		}
		return nil
	}, func() {})
	return value, err
}

func forEachContractCacheEntry(db kvdb.Backend, cb func(key, value []byte) error) error {
	return kvdb.View(db, func(tx kvdb.RTx) error {
		bucket := tx.ReadBucket(contractCacheBucketKey)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(cb)
	}, func() {})
}

func putFidelityProof(db kvdb.Backend, value []byte) error {
	return kvdb.Update(db, func(tx kvdb.RwTx) error {
		bucket := tx.ReadWriteBucket(fidelityBucketKey)
		if bucket == nil {
			return fmt.Errorf("wallet: fidelity bucket missing")
		}
		return bucket.Put([]byte("highest"), value)
	}, func() {})
}

func getFidelityProof(db kvdb.Backend) ([]byte, error) {
	var value []byte
	err := kvdb.View(db, func(tx kvdb.RTx) error {
		bucket := tx.ReadBucket(fidelityBucketKey)
		if bucket == nil {
			return nil
		}
		v := bucket.Get([]byte("highest"))
		if v != nil {
			value = append([]byte(nil), v...)
		}
		return nil
	}, func() {})
	return value, err
}

func putKeychainEntry(tx kvdb.RwTx, key, value []byte) error {
	bucket := tx.ReadWriteBucket(keychainBucketKey)
	if bucket == nil {
		return fmt.Errorf("wallet: keychain bucket missing")
	}
	return bucket.Put(key, value)
}

func forEachKeychainEntry(db kvdb.Backend, cb func(key, value []byte) error) error {
	return kvdb.View(db, func(tx kvdb.RTx) error {
		bucket := tx.ReadBucket(keychainBucketKey)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(cb)
	}, func() {})
}

func putMeta(db kvdb.Backend, key, value []byte) error {
	return kvdb.Update(db, func(tx kvdb.RwTx) error {
		bucket := tx.ReadWriteBucket(metaBucketKey)
		if bucket == nil {
			return fmt.Errorf("wallet: meta bucket missing")
		}
		return bucket.Put(key, value)
	}, func() {})
}

func getMeta(db kvdb.Backend, key []byte) ([]byte, error) {
	var value []byte
	err := kvdb.View(db, func(tx kvdb.RTx) error {
		bucket := tx.ReadBucket(metaBucketKey)
		if bucket == nil {
			return nil
		}
		v := bucket.Get(key)
		if v != nil {
			value = append([]byte(nil), v...)
		}
		return nil
	}, func() {})
	return value, err
}
