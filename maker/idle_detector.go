// Idle Detector: the watchdog that reclaims stalled peer connections, grounded on
// peer.go's idleTimer/pingManager pairing but repointed from "drop a dead
// TCP connection" to "a swap counterparty stopped talking mid-route, start
// recovering the funds it already committed."
package maker

import (
	"context"
	"time"

	"github.com/lightningnetwork/lnd/clock"
)

// IdleDetector periodically scans a Store for connections that have gone
// silent past IdleTimeout while holding at least one swapcoin, and hands
// each one to a RecoveryEngine.
type IdleDetector struct {
	store    *Store
	recovery *RecoveryEngine
	clock    clock.Clock
	interval time.Duration
	timeout  time.Duration

	quit chan struct{}
	done chan struct{}
}

// NewIdleDetector constructs an IdleDetector polling store every interval
// and evicting connections idle past timeout. clk is the same clock the
// Store's LastSeen timestamps are written from, so tests can fast-forward
// the idle timeout with clock.NewTestClock instead of sleeping.
func NewIdleDetector(store *Store, recovery *RecoveryEngine, clk clock.Clock, interval, timeout time.Duration) *IdleDetector {
	return &IdleDetector{
		store:    store,
		recovery: recovery,
		clock:    clk,
		interval: interval,
		timeout:  timeout,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run blocks, scanning on every tick of interval until ctx is cancelled or
// Stop is called. It's meant to be launched in its own goroutine by the
// Supervisor.
func (d *IdleDetector) Run(ctx context.Context) {
	defer close(d.done)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.quit:
			return
		case <-ticker.C:
			d.scanOnce(ctx)
		}
	}
}

// Stop signals Run to return and blocks until it has.
func (d *IdleDetector) Stop() {
	close(d.quit)
	<-d.done
}

// scanOnce runs exactly one pass over the store. An idle-but-unpaired
// connection (handshake only, no swapcoins yet) is simply
// removed with no recovery triggered — there's nothing on chain to protect.
func (d *IdleDetector) scanOnce(ctx context.Context) {
	var toRecover []string

	d.store.IterMut(func(ip string, state *ConnectionState) {
		if state.Completed {
			return
		}
		if d.clock.Now().Sub(state.LastSeen) <= d.timeout {
			return
		}
		toRecover = append(toRecover, ip)
	})

	for _, ip := range toRecover {
		d.evict(ctx, ip)
	}

	var toRemove []string
	d.store.IterMut(func(ip string, state *ConnectionState) {
		if state.Completed {
			toRemove = append(toRemove, ip)
		}
	})
	for _, ip := range toRemove {
		d.store.Remove(ip)
	}
}

// evict removes ip's state from the store and, if it held any swapcoins,
// triggers recovery for them. The state is captured and removed before
// recovery runs so a slow recovery pass never blocks new connections from
// reusing the same peer slot.
func (d *IdleDetector) evict(ctx context.Context, ip string) {
	var outgoing []*OutgoingSwapCoin
	var incoming []*IncomingSwapCoin
	var paired bool

	d.store.IterMut(func(peerIP string, state *ConnectionState) {
		if peerIP != ip {
			return
		}
		paired = state.hasPairedSwapcoin()
		outgoing = state.OutgoingSwapcoins
		incoming = state.IncomingSwapcoins
	})

	d.store.Remove(ip)

	if !paired {
		return
	}

	wdgLog.Warnf("Peer %v idle past %v with an in-flight swap, triggering recovery", ip, d.timeout)

	// Recovery runs on its own goroutine so a slow maturity wait for one
	// peer never stalls the next scan pass. A failure here is logged and
	// not retried; the peer's entry is already gone from the store, so
	// neither watchdog triggers recovery for these swapcoins again.
	go func() {
		if err := d.recovery.Recover(ctx, outgoing, incoming, RecoveryIdleTimeout); err != nil {
			wdgLog.Errorf("Idle-timeout recovery for %v failed: %v", ip, err)
		}
	}()
}
