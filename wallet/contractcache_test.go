package wallet

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/btcjson"
	btcwire "github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/coinswapd/maker/chainrpc"
)

// noopNode is a chainrpc.Node stand-in that the contract cache's own tests
// never actually call; wallet.Load just needs something implementing the
// interface to open.
type noopNode struct{}

func (noopNode) BlockchainInfo() (*btcjson.GetBlockChainInfoResult, error) {
	return &btcjson.GetBlockChainInfoResult{}, nil
}
func (noopNode) BlockCount() (int64, error) { return 0, nil }
func (noopNode) TxOutConfirmations(*chainhash.Hash, uint32) (int64, bool, error) {
	return 0, false, nil
}
func (noopNode) RawTransactionConfirmations(*chainhash.Hash) (int64, error) { return 0, nil }
func (noopNode) SendRawTransaction(*btcwire.MsgTx) (*chainhash.Hash, error) { return nil, nil }
func (noopNode) NetworkInfo() (*btcjson.GetNetworkInfoResult, error) {
	return &btcjson.GetNetworkInfoResult{}, nil
}

var _ chainrpc.Node = noopNode{}

func newTestWallet(t *testing.T) *Wallet {
	t.Helper()
	wal, err := Load(t.TempDir(), "cache-test-wallet", noopNode{}, &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	t.Cleanup(func() { wal.Close() })
	return wal
}

func TestContractCacheInsertAndLookup(t *testing.T) {
	wal := newTestWallet(t)
	cache := wal.ContractCache

	op := btcwire.OutPoint{Hash: chainhash.HashH([]byte("funding")), Index: 0}
	script := []byte{0x00, 0x20, 0x01, 0x02}

	_, ok := cache.Lookup(op)
	require.False(t, ok)

	require.NoError(t, cache.Insert(op, script))
	got, ok := cache.Lookup(op)
	require.True(t, ok)
	require.Equal(t, script, got)
}

func TestContractCacheIdenticalReinsertIsNoop(t *testing.T) {
	wal := newTestWallet(t)
	cache := wal.ContractCache

	op := btcwire.OutPoint{Hash: chainhash.HashH([]byte("funding-2")), Index: 0}
	script := []byte{0x00, 0x20, 0x03, 0x04}

	require.NoError(t, cache.Insert(op, script))
	require.NoError(t, cache.Insert(op, script))

	got, ok := cache.Lookup(op)
	require.True(t, ok)
	require.Equal(t, script, got)
}

func TestContractCacheConflictingReinsertIsRejectedWithoutMutation(t *testing.T) {
	wal := newTestWallet(t)
	cache := wal.ContractCache

	op := btcwire.OutPoint{Hash: chainhash.HashH([]byte("funding-3")), Index: 0}
	original := []byte{0x00, 0x20, 0x05, 0x06}
	attacker := []byte{0x00, 0x20, 0xff, 0xff}

	require.NoError(t, cache.Insert(op, original))
	err := cache.Insert(op, attacker)
	require.ErrorIs(t, err, ErrContractCacheConflict)

	got, ok := cache.Lookup(op)
	require.True(t, ok)
	require.Equal(t, original, got, "a rejected conflicting insert must never overwrite the original entry")
}

func TestContractCachePersistsAcrossReload(t *testing.T) {
	dataDir := t.TempDir()
	node := noopNode{}

	wal, err := Load(dataDir, "persist-test-wallet", node, &chaincfg.RegressionNetParams)
	require.NoError(t, err)

	op := btcwire.OutPoint{Hash: chainhash.HashH([]byte("funding-4")), Index: 0}
	script := []byte{0x00, 0x20, 0x07, 0x08}
	require.NoError(t, wal.ContractCache.Insert(op, script))
	require.NoError(t, wal.Close())

	reloaded, err := Load(dataDir, "persist-test-wallet", node, &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	t.Cleanup(func() { reloaded.Close() })

	got, ok := reloaded.ContractCache.Lookup(op)
	require.True(t, ok)
	require.Equal(t, script, got)
}
