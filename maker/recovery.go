// Recovery Engine: once a connection can no longer be trusted to finish
// cooperatively, this is what gets this Maker's funds back onto the chain
// and eventually back into the wallet, grounded on
// contractcourt/chain_watcher.go and utxonursery.go's two-stage
// broadcast-then-sweep-after-maturity handling of a timed-out HTLC, trimmed
// to the single hashlock/timelock branch shape a swap contract has.
package maker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	btcwire "github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/clock"

	"github.com/coinswapd/maker/chainrpc"
	"github.com/coinswapd/maker/contractutil"
	"github.com/coinswapd/maker/wallet"
)

// RecoveryReason records why a recovery pass was triggered, surfaced purely
// for logging.
type RecoveryReason int

const (
	// RecoveryIdleTimeout: the Idle Detector evicted a silent peer.
	RecoveryIdleTimeout RecoveryReason = iota
	// RecoveryContractSighted: the Contract Observer saw a contract
	// transaction appear on chain before this Maker cooperated at
	// PrivateKeyHandover.
	RecoveryContractSighted
)

func (r RecoveryReason) String() string {
	switch r {
	case RecoveryIdleTimeout:
		return "idle timeout"
	case RecoveryContractSighted:
		return "contract sighted"
	default:
		return "unknown"
	}
}

// recoveryFee is the flat absolute fee, in satoshis, the Recovery Engine
// pays on every transaction it constructs itself. Unlike SendToAddress,
// there's no caller around to supply one.
const recoveryFee = 500

// RecoveryEngine pushes a stalled swap's contract transactions onto the
// chain and sweeps whatever this Maker is owed once each one matures.
type RecoveryEngine struct {
	wal          *wallet.Wallet
	node         chainrpc.Node
	clock        clock.Clock
	scanInterval time.Duration
}

// NewRecoveryEngine constructs a RecoveryEngine. scanInterval governs the
// maturity-wait poll cadence — RecoveryScanInterval in production,
// RecoveryScanIntervalTest under test.
func NewRecoveryEngine(wal *wallet.Wallet, node chainrpc.Node, clk clock.Clock, scanInterval time.Duration) *RecoveryEngine {
	return &RecoveryEngine{wal: wal, node: node, clock: clk, scanInterval: scanInterval}
}

// Recover runs one full recovery pass for a connection's paired swapcoins:
// broadcast every fully-signed contract transaction this Maker is party to
// (best-effort — a transaction already on chain or already broadcast by the
// counterparty is not an error), then block until each outgoing contract's
// relative timelock matures and sweep it back into the wallet. ctx bounds
// the maturity wait; cancelling it makes Recover return nil with any
// not-yet-matured outgoing coin unswept and still in the wallet. Neither
// watchdog triggers a second pass for it: both remove the connection's
// store entry before calling Recover.
func (e *RecoveryEngine) Recover(ctx context.Context, outgoing []*OutgoingSwapCoin,
	incoming []*IncomingSwapCoin, reason RecoveryReason) error {

	recLog.Infof("Recovery triggered (%v): %d outgoing, %d incoming swapcoins", reason,
		len(outgoing), len(incoming))

	for _, c := range outgoing {
		if err := e.broadcastContract(&c.swapCoinCommon); err != nil {
			return wrapf(ErrNodeRPC, "recovery (%v): failed to broadcast outgoing contract for %v: %v",
				reason, c.FundingOutpoint, err)
		}
	}
	for _, c := range incoming {
		if err := e.broadcastContract(&c.swapCoinCommon); err != nil {
			return wrapf(ErrNodeRPC, "recovery (%v): failed to broadcast incoming contract for %v: %v",
				reason, c.FundingOutpoint, err)
		}
		if err := e.wal.RemoveUtxo(c.FundingOutpoint); err != nil {
			return wrapf(ErrWallet, "recovery (%v): failed to remove incoming swapcoin %v from wallet: %v",
				reason, c.FundingOutpoint, err)
		}
	}

	allSwept, err := e.sweepMatured(ctx, outgoing)
	if err != nil {
		return err
	}
	if !allSwept {
		// ctx was cancelled before every outgoing coin matured; the
		// unswept coins stay in the wallet and finalize is skipped.
		return nil
	}

	for _, c := range outgoing {
		if err := e.wal.RemoveUtxo(c.FundingOutpoint); err != nil {
			return wrapf(ErrWallet, "recovery (%v): failed to remove outgoing swapcoin %v from wallet: %v",
				reason, c.FundingOutpoint, err)
		}
	}
	if err := e.wal.Sync(); err != nil {
		return wrapf(ErrWallet, "recovery (%v): wallet sync failed: %v", reason, err)
	}
	return nil
}

// broadcastContract combines both halves of a coin's 2-of-2 multisig
// signature and pushes its contract transaction onto the chain. It is a
// no-op if the contract transaction was never presigned, or if this Maker
// doesn't yet hold the counterparty's half of the signature.
func (e *RecoveryEngine) broadcastContract(c *swapCoinCommon) error {
	if c.ContractTx == nil || !c.FullySigned() {
		recLog.Warnf("Skipping unsigned contract for %v, protocol had not progressed far enough",
			c.FundingOutpoint)
		return nil
	}

	witness, err := combinedMultisigWitness(e.wal, c)
	if err != nil {
		return err
	}
	c.ContractTx.TxIn[0].Witness = witness

	if _, err := e.node.SendRawTransaction(c.ContractTx); err != nil {
		if isAlreadyOnChain(err) {
			recLog.Debugf("Contract for %v already on chain", c.FundingOutpoint)
			return nil
		}
		return err
	}
	recLog.Infof("Broadcast contract transaction for %v", c.FundingOutpoint)
	return nil
}

// combinedMultisigWitness builds the witness spending a swapcoin's funding
// output via its 2-of-2 multisig, ordering signatures the way
// contractutil.MultisigRedeemscript originally sorted the pubkeys.
func combinedMultisigWitness(wal *wallet.Wallet, c *swapCoinCommon) (btcwire.TxWitness, error) {
	ourPub := contractutil.TweakPubKey(wal.BaseKey.PubKey(), c.MultisigKeyNonce)
	counterpartyPub, err := btcec.ParsePubKey(c.CounterpartyMultisigPubkey)
	if err != nil {
		return nil, fmt.Errorf("malformed counterparty multisig pubkey: %w", err)
	}
	return contractutil.BuildMultisigWitness(c.OurSig, c.CounterpartySig, ourPub, counterpartyPub,
		c.MultisigRedeemscript), nil
}

// sweepMatured polls the chain every e.scanInterval until every coin in
// outgoing has either been swept or ctx is cancelled, sweeping each one as
// soon as its contract transaction confirms and its relative timelock
// matures. A coin whose contract transaction never appears on chain (the
// counterparty broadcast a double-spend of the funding output instead) is
// simply never swept — there's nothing here for this Maker to claim. The
// returned bool reports whether every coin was swept (false means ctx was
// cancelled first), the condition Recover gates its finalize step on.
func (e *RecoveryEngine) sweepMatured(ctx context.Context, outgoing []*OutgoingSwapCoin) (bool, error) {
	remaining := make([]*OutgoingSwapCoin, 0, len(outgoing))
	for _, c := range outgoing {
		if !c.Swept && c.ContractTx != nil {
			remaining = append(remaining, c)
		}
	}

	for len(remaining) > 0 {
		next := remaining[:0]
		for _, c := range remaining {
			matured, err := e.isMatured(c)
			if err != nil {
				return false, err
			}
			if !matured {
				next = append(next, c)
				continue
			}
			if err := e.sweepOne(c); err != nil {
				return false, err
			}
		}
		remaining = next
		if len(remaining) == 0 {
			break
		}

		select {
		case <-ctx.Done():
			return false, nil
		case <-e.clock.TickAfter(e.scanInterval):
		}
	}
	return true, nil
}

func (e *RecoveryEngine) isMatured(c *OutgoingSwapCoin) (bool, error) {
	txHash := c.ContractTx.TxHash()
	confs, err := e.node.RawTransactionConfirmations(&txHash)
	if err != nil {
		// Not yet broadcast or not yet known to the node: not an error,
		// just not matured yet.
		return false, nil
	}
	return confs >= int64(c.RelativeTimelock), nil
}

// sweepOne redeems a matured outgoing contract via its timelock branch,
// paying the proceeds to a fresh wallet address and registering the new
// coin under CategoryContract so Sync picks up its confirmation.
func (e *RecoveryEngine) sweepOne(c *OutgoingSwapCoin) error {
	destAddr, destPriv, err := e.wal.NewAddress()
	if err != nil {
		return err
	}
	payScript, err := txscript.PayToAddrScript(destAddr)
	if err != nil {
		return err
	}

	contractValue := c.ContractTx.TxOut[0].Value
	amount := contractValue - recoveryFee
	if amount <= 0 {
		return fmt.Errorf("maker: contract value %d too small to sweep", contractValue)
	}

	tx := btcwire.NewMsgTx(2)
	tx.AddTxIn(&btcwire.TxIn{
		PreviousOutPoint: c.ContractOutpoint(),
		Sequence:         uint32(c.RelativeTimelock),
	})
	tx.AddTxOut(btcwire.NewTxOut(amount, payScript))

	priv := contractutil.TweakPrivKey(e.wal.BaseKey, c.BranchKeyNonce)
	sig, err := signMultisigInput(tx, c.ContractRedeemscript, contractValue, priv)
	if err != nil {
		return fmt.Errorf("failed to sign timelock sweep for %v: %w", c.ContractOutpoint(), err)
	}
	tx.TxIn[0].Witness = contractutil.BuildTimelockWitness(sig, c.ContractRedeemscript)

	txid, err := e.node.SendRawTransaction(tx)
	if err != nil && !isAlreadyOnChain(err) {
		return fmt.Errorf("failed to broadcast timelock sweep for %v: %w", c.ContractOutpoint(), err)
	}

	c.Swept = true
	c.TimelockSpendTx = tx

	if txid != nil {
		if err := e.wal.AddUtxo(btcwire.OutPoint{Hash: *txid, Index: 0}, amount, payScript,
			wallet.CategoryContract, false, destPriv); err != nil {
			return err
		}
	}
	return nil
}

// isAlreadyOnChain reports whether err is the node complaining that a
// transaction (or one spending the same input) is already confirmed or in
// the mempool — not a real failure, just two parties racing to broadcast
// the same cooperative spend.
func isAlreadyOnChain(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "already") || strings.Contains(msg, "missing inputs") ||
		strings.Contains(msg, "txn-mempool-conflict")
}
