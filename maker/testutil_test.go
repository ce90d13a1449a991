package maker

import (
	"fmt"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/btcjson"
	btcwire "github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/clock"

	"github.com/coinswapd/maker/wallet"
)

// fakeNode is a test double for chainrpc.Node, tracking transaction
// confirmations and funding-output sightings by hash/outpoint instead of
// talking to a real node.
type fakeNode struct {
	txConfirmations  map[chainhash.Hash]int64
	outConfirmations map[btcwire.OutPoint]int64
	outFound         map[btcwire.OutPoint]bool
	sendErr          error
	sent             []*btcwire.MsgTx
}

func newFakeNode() *fakeNode {
	return &fakeNode{
		txConfirmations:  make(map[chainhash.Hash]int64),
		outConfirmations: make(map[btcwire.OutPoint]int64),
		outFound:         make(map[btcwire.OutPoint]bool),
	}
}

func (n *fakeNode) BlockchainInfo() (*btcjson.GetBlockChainInfoResult, error) {
	return &btcjson.GetBlockChainInfoResult{}, nil
}

func (n *fakeNode) BlockCount() (int64, error) { return 100, nil }

func (n *fakeNode) TxOutConfirmations(txid *chainhash.Hash, vout uint32) (int64, bool, error) {
	op := btcwire.OutPoint{Hash: *txid, Index: vout}
	if !n.outFound[op] {
		return 0, false, nil
	}
	return n.outConfirmations[op], true, nil
}

func (n *fakeNode) RawTransactionConfirmations(txid *chainhash.Hash) (int64, error) {
	confs, ok := n.txConfirmations[*txid]
	if !ok {
		return 0, fmt.Errorf("fakeNode: unknown transaction %v", txid)
	}
	return confs, nil
}

func (n *fakeNode) SendRawTransaction(tx *btcwire.MsgTx) (*chainhash.Hash, error) {
	if n.sendErr != nil {
		return nil, n.sendErr
	}
	n.sent = append(n.sent, tx)
	hash := tx.TxHash()
	n.txConfirmations[hash] = 0
	return &hash, nil
}

func (n *fakeNode) NetworkInfo() (*btcjson.GetNetworkInfoResult, error) {
	return &btcjson.GetNetworkInfoResult{}, nil
}

// confirmOutpoint marks op as present on chain with confs confirmations, the
// shape VerifyProofOfFunding's TxOutConfirmations lookup expects for an
// already-confirmed funding output.
func (n *fakeNode) confirmOutpoint(op btcwire.OutPoint, confs int64) {
	n.outFound[op] = true
	n.outConfirmations[op] = confs
}

// sightTx marks tx as known to the node (mempool or chain) with confs
// confirmations, the shape RawTransactionConfirmations/confirmed expects.
func (n *fakeNode) sightTx(tx *btcwire.MsgTx, confs int64) {
	n.txConfirmations[tx.TxHash()] = confs
}

// newTestWallet constructs a real *wallet.Wallet backed by a temp-dir bolt
// file, the same wallet.Load path production uses, against node — the
// Handler/Validator/Recovery tests exercise real wallet persistence rather
// than a parallel wallet test double.
func newTestWallet(t *testing.T, node *fakeNode) *wallet.Wallet {
	t.Helper()
	wal, err := wallet.Load(t.TempDir(), "test-wallet", node, &chaincfg.RegressionNetParams)
	if err != nil {
		t.Fatalf("failed to load test wallet: %v", err)
	}
	t.Cleanup(func() { wal.Close() })
	return wal
}

// counterparty bundles a counterparty-side keypair with the nonces it
// derives its multisig/branch keys from, standing in for the other side of
// a swap hop without needing a second full wallet.
type counterparty struct {
	priv *btcec.PrivateKey
}

func newCounterparty(t *testing.T) *counterparty {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("failed to generate counterparty key: %v", err)
	}
	return &counterparty{priv: priv}
}

func (c *counterparty) pub() *btcec.PublicKey { return c.priv.PubKey() }

func (c *counterparty) sign(tx *btcwire.MsgTx, redeemscript []byte, value int64) []byte {
	sig, err := signMultisigInput(tx, redeemscript, value, c.priv)
	if err != nil {
		panic(err)
	}
	return sig
}

// testClock returns a fixed-time, advanceable clock for deterministic
// LastSeen comparisons.
func testClock(now time.Time) *clock.TestClock {
	return clock.NewTestClock(now)
}
