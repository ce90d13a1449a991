// Contract Observer: the second watchdog this daemon runs, grounded on
// contractcourt/chain_watcher.go's confirmation-notification loop but
// polling rather than subscribing, since chainrpc.Node exposes no
// notification channel (the chain backend only supports synchronous queries).
package maker

import (
	"context"
	"time"

	btcwire "github.com/btcsuite/btcd/wire"

	"github.com/coinswapd/maker/chainrpc"
)

// ContractObserver periodically checks whether any contract transaction
// this Maker is party to, but has not yet cooperated to finalize, has
// already appeared on chain — the signature of a counterparty reneging on
// the handover and trying to unilaterally claim or refund a contract this
// Maker never got the chance to protect itself against.
type ContractObserver struct {
	store    *Store
	node     chainrpc.Node
	recovery *RecoveryEngine
	interval time.Duration

	quit chan struct{}
	done chan struct{}
}

// NewContractObserver constructs a ContractObserver polling store every
// interval.
func NewContractObserver(store *Store, node chainrpc.Node, recovery *RecoveryEngine, interval time.Duration) *ContractObserver {
	return &ContractObserver{
		store:    store,
		node:     node,
		recovery: recovery,
		interval: interval,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run blocks, scanning on every tick of interval until ctx is cancelled or
// Stop is called.
func (o *ContractObserver) Run(ctx context.Context) {
	defer close(o.done)

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.quit:
			return
		case <-ticker.C:
			o.scanOnce(ctx)
		}
	}
}

// Stop signals Run to return and blocks until it has.
func (o *ContractObserver) Stop() {
	close(o.quit)
	<-o.done
}

// scanOnce checks every active connection's swapcoins for a contract
// transaction the node already knows about (in the mempool or on chain)
// while the swap is still in flight, and triggers recovery for any connection where one
// is found — the counterparty moved first, so there's no longer anything to
// wait on.
func (o *ContractObserver) scanOnce(ctx context.Context) {
	type sighting struct {
		ip       string
		outgoing []*OutgoingSwapCoin
		incoming []*IncomingSwapCoin
	}
	var sighted []sighting

	o.store.IterMut(func(ip string, state *ConnectionState) {
		if state.Completed || !state.hasPairedSwapcoin() {
			return
		}
		if o.anyContractOnChain(state.OutgoingSwapcoins, state.IncomingSwapcoins) {
			sighted = append(sighted, sighting{ip, state.OutgoingSwapcoins, state.IncomingSwapcoins})
		}
	})

	for _, s := range sighted {
		wdgLog.Warnf("Contract for peer %v sighted on chain outside cooperation, triggering recovery", s.ip)
		o.store.Remove(s.ip)
		s := s
		go func() {
			if err := o.recovery.Recover(ctx, s.outgoing, s.incoming, RecoveryContractSighted); err != nil {
				wdgLog.Errorf("Contract-sighted recovery for %v failed: %v", s.ip, err)
			}
		}()
	}
}

func (o *ContractObserver) anyContractOnChain(outgoing []*OutgoingSwapCoin, incoming []*IncomingSwapCoin) bool {
	for _, c := range outgoing {
		if o.confirmed(c.ContractTx) {
			return true
		}
	}
	for _, c := range incoming {
		if o.confirmed(c.ContractTx) {
			return true
		}
	}
	return false
}

// confirmed reports whether tx is known to the node at all — sitting in the
// mempool with zero confirmations counts as sighted, since a just-broadcast
// contract transaction is exactly what this watchdog needs to catch before
// it confirms. A nil tx (no contract transaction exchanged yet) and a node
// lookup error (tx simply not known to the node) alike report not sighted.
func (o *ContractObserver) confirmed(tx *btcwire.MsgTx) bool {
	if tx == nil {
		return false
	}
	txHash := tx.TxHash()
	_, err := o.node.RawTransactionConfirmations(&txHash)
	return err == nil
}
