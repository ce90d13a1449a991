package maker

import (
	"context"
	"crypto/sha256"
	"errors"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	btcwire "github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/coinswapd/maker/contractutil"
	"github.com/coinswapd/maker/wallet"
)

func TestRecoveryReasonString(t *testing.T) {
	require.Equal(t, "idle timeout", RecoveryIdleTimeout.String())
	require.Equal(t, "contract sighted", RecoveryContractSighted.String())
	require.Equal(t, "unknown", RecoveryReason(99).String())
}

func TestIsAlreadyOnChain(t *testing.T) {
	require.False(t, isAlreadyOnChain(nil))
	require.True(t, isAlreadyOnChain(errors.New("transaction already in block chain")))
	require.True(t, isAlreadyOnChain(errors.New("bad-txns-inputs-missing inputs")))
	require.True(t, isAlreadyOnChain(errors.New("txn-mempool-conflict")))
	require.False(t, isAlreadyOnChain(errors.New("insufficient fee")))
}

// outgoingTestCoin builds a fully-signed OutgoingSwapCoin whose contract
// transaction and multisig scripts are real, so combinedMultisigWitness and
// BuildTimelockWitness exercise the actual script-building code rather than
// a simplified stand-in. Signature bytes themselves are placeholders since
// fakeNode never runs script verification.
func outgoingTestCoin(t *testing.T, wal *wallet.Wallet, cp *counterparty, seed byte, relativeTimelock uint16) *OutgoingSwapCoin {
	t.Helper()

	var multisigNonce, timelockNonce [32]byte
	multisigNonce[0] = seed
	timelockNonce[0] = seed + 1
	hashValue := sha256.Sum256([]byte{seed, seed + 2})

	ourMultisigPub := contractutil.TweakPubKey(wal.BaseKey.PubKey(), multisigNonce)
	multisigRedeemscript, err := contractutil.MultisigRedeemscript(ourMultisigPub, cp.pub())
	require.NoError(t, err)
	fundingPkScript, err := contractutil.FundingPkScript(multisigRedeemscript)
	require.NoError(t, err)

	ourTimelockPub := contractutil.TweakPubKey(wal.BaseKey.PubKey(), timelockNonce)
	contractRedeemscript, err := contractutil.ContractRedeemscript(cp.pub(), ourTimelockPub, hashValue, 150)
	require.NoError(t, err)
	contractPkScript, err := contractutil.ContractPkScript(contractRedeemscript)
	require.NoError(t, err)

	fundingOutpoint := btcwire.OutPoint{Hash: chainhash.HashH([]byte{seed, seed + 3}), Index: 0}
	const fundingValue = int64(100_000)

	contractTx := btcwire.NewMsgTx(2)
	contractTx.AddTxIn(btcwire.NewTxIn(&fundingOutpoint, nil, nil))
	contractTx.AddTxOut(btcwire.NewTxOut(fundingValue-500, contractPkScript))

	return &OutgoingSwapCoin{
		swapCoinCommon: swapCoinCommon{
			MultisigRedeemscript:       multisigRedeemscript,
			ContractRedeemscript:       contractRedeemscript,
			FundingOutpoint:            fundingOutpoint,
			FundingValue:               fundingValue,
			FundingPkScript:            fundingPkScript,
			MultisigKeyNonce:           multisigNonce,
			CounterpartyMultisigPubkey: cp.pub().SerializeCompressed(),
			BranchKeyNonce:             timelockNonce,
			HashValue:                  hashValue,
			ContractTx:                 contractTx,
			CounterpartySig:            []byte{0xaa, 0xbb},
			OurSig:                     []byte{0xcc, 0xdd},
		},
		RelativeTimelock: relativeTimelock,
	}
}

func incomingTestCoin(t *testing.T, wal *wallet.Wallet, cp *counterparty, seed byte) *IncomingSwapCoin {
	t.Helper()

	var multisigNonce, hashlockNonce [32]byte
	multisigNonce[0] = seed
	hashlockNonce[0] = seed + 1
	hashValue := sha256.Sum256([]byte{seed, seed + 2})

	ourMultisigPub := contractutil.TweakPubKey(wal.BaseKey.PubKey(), multisigNonce)
	multisigRedeemscript, err := contractutil.MultisigRedeemscript(ourMultisigPub, cp.pub())
	require.NoError(t, err)
	fundingPkScript, err := contractutil.FundingPkScript(multisigRedeemscript)
	require.NoError(t, err)

	ourHashlockPub := contractutil.TweakPubKey(wal.BaseKey.PubKey(), hashlockNonce)
	contractRedeemscript, err := contractutil.ContractRedeemscript(ourHashlockPub, cp.pub(), hashValue, 150)
	require.NoError(t, err)
	contractPkScript, err := contractutil.ContractPkScript(contractRedeemscript)
	require.NoError(t, err)

	fundingOutpoint := btcwire.OutPoint{Hash: chainhash.HashH([]byte{seed, seed + 4}), Index: 0}
	const fundingValue = int64(90_000)

	contractTx := btcwire.NewMsgTx(2)
	contractTx.AddTxIn(btcwire.NewTxIn(&fundingOutpoint, nil, nil))
	contractTx.AddTxOut(btcwire.NewTxOut(fundingValue-500, contractPkScript))

	return &IncomingSwapCoin{swapCoinCommon{
		MultisigRedeemscript:       multisigRedeemscript,
		ContractRedeemscript:       contractRedeemscript,
		FundingOutpoint:            fundingOutpoint,
		FundingValue:               fundingValue,
		FundingPkScript:            fundingPkScript,
		MultisigKeyNonce:           multisigNonce,
		CounterpartyMultisigPubkey: cp.pub().SerializeCompressed(),
		BranchKeyNonce:             hashlockNonce,
		HashValue:                  hashValue,
		ContractTx:                 contractTx,
		CounterpartySig:            []byte{0xaa, 0xbb},
		OurSig:                     []byte{0xcc, 0xdd},
	}}
}

func TestBroadcastContractSkipsUnsignedCoin(t *testing.T) {
	node := newFakeNode()
	wal := newTestWallet(t, node)
	clk := testClock(time.Now())
	e := NewRecoveryEngine(wal, node, clk, RecoveryScanIntervalTest)

	cp := newCounterparty(t)
	coin := outgoingTestCoin(t, wal, cp, 1, 50)
	coin.ContractTx = nil

	require.NoError(t, e.broadcastContract(&coin.swapCoinCommon))
	require.Empty(t, node.sent)

	coin2 := outgoingTestCoin(t, wal, cp, 10, 50)
	coin2.CounterpartySig = nil // presigned but not yet fully signed
	require.NoError(t, e.broadcastContract(&coin2.swapCoinCommon))
	require.Empty(t, node.sent)
}

func TestBroadcastContractSendsFullySignedContract(t *testing.T) {
	node := newFakeNode()
	wal := newTestWallet(t, node)
	clk := testClock(time.Now())
	e := NewRecoveryEngine(wal, node, clk, RecoveryScanIntervalTest)

	cp := newCounterparty(t)
	coin := outgoingTestCoin(t, wal, cp, 20, 50)

	require.NoError(t, e.broadcastContract(&coin.swapCoinCommon))
	require.Len(t, node.sent, 1)
	require.Equal(t, coin.ContractTx.TxHash(), node.sent[0].TxHash())

	expectedWitness, err := combinedMultisigWitness(wal, &coin.swapCoinCommon)
	require.NoError(t, err)
	require.Equal(t, expectedWitness, coin.ContractTx.TxIn[0].Witness)
}

func TestBroadcastContractAlreadyOnChainIsNotAnError(t *testing.T) {
	node := newFakeNode()
	wal := newTestWallet(t, node)
	clk := testClock(time.Now())
	e := NewRecoveryEngine(wal, node, clk, RecoveryScanIntervalTest)
	node.sendErr = errors.New("transaction already in block chain")

	cp := newCounterparty(t)
	coin := outgoingTestCoin(t, wal, cp, 30, 50)

	require.NoError(t, e.broadcastContract(&coin.swapCoinCommon))
	require.Empty(t, node.sent)
}

func TestIsMaturedBoundary(t *testing.T) {
	node := newFakeNode()
	wal := newTestWallet(t, node)
	clk := testClock(time.Now())
	e := NewRecoveryEngine(wal, node, clk, RecoveryScanIntervalTest)

	cp := newCounterparty(t)
	coin := outgoingTestCoin(t, wal, cp, 40, 50)

	matured, err := e.isMatured(coin)
	require.NoError(t, err)
	require.False(t, matured, "contract tx unknown to the node must not be reported matured")

	node.sightTx(coin.ContractTx, 49)
	matured, err = e.isMatured(coin)
	require.NoError(t, err)
	require.False(t, matured, "one confirmation short of the relative timelock must not mature")

	node.sightTx(coin.ContractTx, 50)
	matured, err = e.isMatured(coin)
	require.NoError(t, err)
	require.True(t, matured, "exactly at the relative timelock must mature")
}

func TestSweepMaturedSweepsOnceAndMarksSwept(t *testing.T) {
	node := newFakeNode()
	wal := newTestWallet(t, node)
	clk := testClock(time.Now())
	e := NewRecoveryEngine(wal, node, clk, RecoveryScanIntervalTest)

	cp := newCounterparty(t)
	coin := outgoingTestCoin(t, wal, cp, 50, 50)
	node.sightTx(coin.ContractTx, 50)

	allSwept, err := e.sweepMatured(context.Background(), []*OutgoingSwapCoin{coin})
	require.NoError(t, err)
	require.True(t, allSwept)
	require.True(t, coin.Swept)
	require.NotNil(t, coin.TimelockSpendTx)
	require.Len(t, node.sent, 1)
}

func TestSweepMaturedSkipsAlreadySweptCoin(t *testing.T) {
	node := newFakeNode()
	wal := newTestWallet(t, node)
	clk := testClock(time.Now())
	e := NewRecoveryEngine(wal, node, clk, RecoveryScanIntervalTest)

	cp := newCounterparty(t)
	coin := outgoingTestCoin(t, wal, cp, 60, 50)
	node.sightTx(coin.ContractTx, 50)
	coin.Swept = true

	allSwept, err := e.sweepMatured(context.Background(), []*OutgoingSwapCoin{coin})
	require.NoError(t, err)
	require.True(t, allSwept)
	require.Empty(t, node.sent, "an already-swept coin must never be broadcast again")
}

func TestSweepMaturedStopsAtCancelledContext(t *testing.T) {
	node := newFakeNode()
	wal := newTestWallet(t, node)
	clk := testClock(time.Now())
	e := NewRecoveryEngine(wal, node, clk, RecoveryScanIntervalTest)

	cp := newCounterparty(t)
	coin := outgoingTestCoin(t, wal, cp, 70, 50)
	node.sightTx(coin.ContractTx, 10) // far short of maturity

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	allSwept, err := e.sweepMatured(ctx, []*OutgoingSwapCoin{coin})
	require.NoError(t, err)
	require.False(t, allSwept)
	require.False(t, coin.Swept)
	require.Empty(t, node.sent)
}

func TestRecoverEndToEndEmptiesWalletOfRecoveredCoins(t *testing.T) {
	node := newFakeNode()
	wal := newTestWallet(t, node)
	clk := testClock(time.Now())
	e := NewRecoveryEngine(wal, node, clk, RecoveryScanIntervalTest)

	cp := newCounterparty(t)
	outgoing := outgoingTestCoin(t, wal, cp, 80, 50)
	incoming := incomingTestCoin(t, wal, cp, 90)

	require.NoError(t, wal.AddUtxo(outgoing.FundingOutpoint, outgoing.FundingValue,
		outgoing.FundingPkScript, wallet.CategorySwap, true, nil))
	require.NoError(t, wal.AddUtxo(incoming.FundingOutpoint, incoming.FundingValue,
		incoming.FundingPkScript, wallet.CategorySwap, true, nil))

	// Both contract broadcasts lose a race with the counterparty's own
	// broadcast, an outcome Recover must tolerate rather than fail on.
	// The contract is already mature by the time recovery runs.
	node.sendErr = errors.New("transaction already in block chain")
	node.sightTx(outgoing.ContractTx, 50)

	err := e.Recover(context.Background(), []*OutgoingSwapCoin{outgoing}, []*IncomingSwapCoin{incoming},
		RecoveryIdleTimeout)
	require.NoError(t, err)

	require.True(t, outgoing.Swept)
	require.NotNil(t, outgoing.TimelockSpendTx)

	for _, u := range wal.ListUtxos(wallet.CategorySwap) {
		require.NotEqual(t, outgoing.FundingOutpoint, u.OutPoint)
		require.NotEqual(t, incoming.FundingOutpoint, u.OutPoint)
	}
}

func TestRecoverStopsShortWhenContextCancelledBeforeMaturity(t *testing.T) {
	node := newFakeNode()
	wal := newTestWallet(t, node)
	clk := testClock(time.Now())
	e := NewRecoveryEngine(wal, node, clk, RecoveryScanIntervalTest)

	cp := newCounterparty(t)
	outgoing := outgoingTestCoin(t, wal, cp, 100, 50)

	require.NoError(t, wal.AddUtxo(outgoing.FundingOutpoint, outgoing.FundingValue,
		outgoing.FundingPkScript, wallet.CategorySwap, true, nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := e.Recover(ctx, []*OutgoingSwapCoin{outgoing}, nil, RecoveryIdleTimeout)
	require.NoError(t, err)
	require.False(t, outgoing.Swept)

	found := false
	for _, u := range wal.ListUtxos(wallet.CategorySwap) {
		if u.OutPoint == outgoing.FundingOutpoint {
			found = true
		}
	}
	require.True(t, found, "an unmatured coin must stay in the wallet for the next recovery pass")
}
