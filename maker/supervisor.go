// Supervisor: the top-level orchestrator for this daemon, grounded
// on lnd.go's Main()/lndMain() bootstrap-then-serve-until-signal shape,
// narrowed from lnd's many subsystems to the handful this daemon needs, and
// swapping lnd's subsystem-specific goroutine management for a single
// golang.org/x/sync/errgroup the way rpcserver.go's itest harness launches
// its own background workers.
package maker

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/jackpal/gateway"
	natpmp "github.com/jackpal/go-nat-pmp"
	"github.com/lightningnetwork/lnd/clock"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/coinswapd/maker/chainrpc"
	"github.com/coinswapd/maker/directory"
	"github.com/coinswapd/maker/wallet"
	"github.com/coinswapd/maker/wire"
)

// SupervisorConfig collects the Supervisor's startup parameters, the fields
// config.Config maps onto when the daemon boots.
type SupervisorConfig struct {
	ListenAddr    string
	RPCListenAddr string

	DirectoryServerAddress string
	SocksAddress           string // empty when TOR is disabled

	FidelityValueSat     int64
	FidelityTimelockBlocks uint32
	AdvertisedAddress    string

	DataDir      string
	OnionAddress string // empty when TOR is disabled or not yet available

	// ListenPort is forwarded via NAT-PMP on a best-effort basis when
	// ConnectionType is CLEARNET; a failure here is logged and never
	// fatal, since plenty of operators forward the port manually or run
	// without NAT at all.
	ListenPort     int
	ConnectionType string // "CLEARNET" or "TOR"

	Behavior MakerBehavior
}

// Supervisor owns every long-running piece of this Maker and drives the
// bootstrap-then-serve lifecycle.
type Supervisor struct {
	cfg  SupervisorConfig
	wal  *wallet.Wallet
	node chainrpc.Node
	clk  clock.Clock

	store     *Store
	handler   *Handler
	idle      *IdleDetector
	observer  *ContractObserver
	recovery  *RecoveryEngine
	directory *directory.Client
	rpcServer *RPCServer

	acceptingClients atomic.Bool
	shuttingDown     atomic.Bool

	// acceptLimiter bounds how fast an attacker can open fresh
	// TakerHello connections; it never throttles an already-accepted
	// peer's own message cadence.
	acceptLimiter *rate.Limiter
}

// NewSupervisor wires every component together without starting anything.
// Run performs the actual bootstrap sequence.
func NewSupervisor(cfg SupervisorConfig, wal *wallet.Wallet, node chainrpc.Node, clk clock.Clock) *Supervisor {
	store := NewStore(clk)
	recovery := NewRecoveryEngine(wal, node, clk, RecoveryScanInterval)

	s := &Supervisor{
		cfg:      cfg,
		wal:      wal,
		node:     node,
		clk:      clk,
		store:    store,
		handler:  NewHandler(wal, node, cfg.Behavior),
		idle:     NewIdleDetector(store, recovery, clk, HeartbeatInterval, IdleTimeout),
		observer: NewContractObserver(store, node, recovery, HeartbeatInterval),
		recovery: recovery,
		directory: &directory.Client{
			ServerAddress: cfg.DirectoryServerAddress,
			SocksAddress:  cfg.SocksAddress,
		},
	}
	s.acceptLimiter = rate.NewLimiter(rate.Limit(AcceptRateLimit), AcceptBurst)
	s.rpcServer = NewRPCServer(s)
	// Intake stays open until pingNode's first probe actually fails; the
	// pinger only ever holds it low, it never has to open it.
	s.acceptingClients.Store(true)
	return s
}

// Run executes the full bootstrap sequence (fidelity bond, directory
// registration) and then blocks serving both listeners and the two
// watchdogs until ctx is cancelled or Stop is called, mirroring lndMain's
// "set everything up, then wait on the interrupt channel" structure.
func (s *Supervisor) Run(ctx context.Context, peerListener, rpcListener net.Listener) error {
	supLog.Infof("Bootstrapping fidelity bond")
	if err := s.bootstrapFidelityBond(ctx); err != nil {
		return fmt.Errorf("maker: fidelity bond bootstrap failed: %w", err)
	}

	if s.cfg.ConnectionType != "TOR" && s.cfg.ListenPort != 0 {
		s.attemptPortForward()
	}

	// Not running under systemd, or no NOTIFY_SOCKET set, is not an error
	// here — SdNotify reports that via its bool return, which a plain
	// daemon with no supervisor watching it has no reason to act on.
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	supLog.Infof("Starting background workers, peer listener on %v, rpc listener on %v",
		peerListener.Addr(), rpcListener.Addr())

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	eg, egCtx := errgroup.WithContext(runCtx)

	// The watchdogs stop on ctx, not on the shutdown flag, so a Stop is
	// turned into a cancellation of every worker's context here.
	eg.Go(func() error {
		for !s.shuttingDown.Load() && egCtx.Err() == nil {
			<-s.clk.TickAfter(HeartbeatInterval)
		}
		cancelRun()
		return nil
	})
	eg.Go(func() error {
		s.registerWithDirectory(egCtx)
		return nil
	})
	eg.Go(func() error {
		s.pingNode(egCtx)
		return nil
	})
	eg.Go(func() error {
		s.idle.Run(egCtx)
		return nil
	})
	eg.Go(func() error {
		s.observer.Run(egCtx)
		return nil
	})
	eg.Go(func() error {
		return s.acceptPeers(egCtx, peerListener)
	})
	eg.Go(func() error {
		return s.rpcServer.Serve(egCtx, rpcListener)
	})

	err := eg.Wait()
	if err != nil {
		supLog.Errorf("Background worker exited with error: %v", err)
	}
	supLog.Infof("Shutting down")
	s.shutdown()
	return err
}

// Stop requests an orderly shutdown: the shutdown flag is set, every
// heartbeat-driven loop observes it on its next pass and returns, and the
// accept loops stop taking new connections.
func (s *Supervisor) Stop() {
	s.shuttingDown.Store(true)
}

func (s *Supervisor) shutdown() {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	s.idle.Stop()
	s.observer.Stop()
	if err := s.wal.Sync(); err != nil {
		return
	}
	s.wal.Close()
}

// attemptPortForward tries to map ListenPort through the default gateway via
// NAT-PMP so peers behind the same router the Maker runs on can dial in
// without an operator forwarding the port manually. Any failure (no
// gateway, no NAT-PMP support, CGNAT) is swallowed: this is a convenience,
// not a requirement, and plenty of operators already forward the port or
// run on a public IP.
func (s *Supervisor) attemptPortForward() {
	gw, err := gateway.DiscoverGateway()
	if err != nil {
		supLog.Debugf("NAT-PMP port forwarding skipped: no gateway: %v", err)
		return
	}
	client := natpmp.NewClient(gw)
	if _, err := client.AddPortMapping("tcp", s.cfg.ListenPort, s.cfg.ListenPort, 3600); err != nil {
		supLog.Debugf("NAT-PMP port forwarding failed: %v", err)
		return
	}
	supLog.Infof("Forwarded port %d via NAT-PMP", s.cfg.ListenPort)
}

// bootstrapFidelityBond blocks until a sufficiently funded fidelity bond
// exists, retrying with exponential backoff on insufficient funds and
// logging the required amount on each retry. The log line names no
// top-up address; it does not generate or print one.
func (s *Supervisor) bootstrapFidelityBond(ctx context.Context) error {
	if s.wal.Fidelity.Current() != nil {
		return nil
	}

	backoff := time.Second
	const maxBackoff = 2 * time.Minute

	for {
		if s.shuttingDown.Load() {
			return nil
		}

		proof, err := s.wal.CreateFidelityBond(s.cfg.FidelityValueSat, s.cfg.FidelityTimelockBlocks,
			s.cfg.AdvertisedAddress)
		if err == nil {
			supLog.Infof("Fidelity bond created, value %d sats", s.cfg.FidelityValueSat)
			return s.wal.Fidelity.Refresh(proof)
		}
		supLog.Warnf("Fidelity bond not yet fundable (%v); send %d sats to a seed address and retry in %v",
			err, s.cfg.FidelityValueSat, backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clk.TickAfter(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// registerWithDirectory retries posting this Maker's advertisement at
// heartbeat cadence until one send succeeds.
func (s *Supervisor) registerWithDirectory(ctx context.Context) {
	for {
		if ctx.Err() != nil || s.shuttingDown.Load() {
			return
		}

		proof := s.wal.Fidelity.Current()
		if proof == nil {
			select {
			case <-ctx.Done():
				return
			case <-s.clk.TickAfter(HeartbeatInterval):
				continue
			}
		}

		err := s.directory.Post(ctx, s.cfg.AdvertisedAddress, proof.Signature)
		if err == nil {
			supLog.Infof("Registered with directory server %v", s.cfg.DirectoryServerAddress)
			return
		}
		supLog.Warnf("Directory registration failed, will retry: %v", err)

		select {
		case <-ctx.Done():
			return
		case <-s.clk.TickAfter(HeartbeatInterval):
		}
	}
}

// pingNode polls node liveness, holding acceptingClients low whenever the
// node is unreachable so new swap intake pauses without killing existing
// connections.
func (s *Supervisor) pingNode(ctx context.Context) {
	interval := s.probeNode()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.clk.TickAfter(interval):
		}
		if s.shuttingDown.Load() {
			return
		}

		interval = s.probeNode()
	}
}

// probeNode runs one liveness check and updates acceptingClients, returning
// the interval to wait before the next probe.
func (s *Supervisor) probeNode() time.Duration {
	if _, err := s.node.BlockchainInfo(); err != nil {
		if s.acceptingClients.Swap(false) {
			supLog.Warnf("Node unreachable, pausing new swap intake: %v", err)
		}
		return NodePingUnhealthyInterval
	}
	if !s.acceptingClients.Swap(true) {
		supLog.Infof("Node reachable again, resuming swap intake")
	}
	return NodePingHealthyInterval
}

// acceptPeers runs the non-blocking accept loop: a
// short accept deadline lets the loop re-check the shutdown flag promptly
// without spinning.
func (s *Supervisor) acceptPeers(ctx context.Context, ln net.Listener) error {
	type deadliner interface {
		SetDeadline(time.Time) error
	}

	for {
		if ctx.Err() != nil || s.shuttingDown.Load() {
			return nil
		}

		if d, ok := ln.(deadliner); ok {
			_ = d.SetDeadline(time.Now().Add(HeartbeatInterval))
		}

		conn, err := ln.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return fmt.Errorf("maker: accept loop failed: %w", err)
		}

		if !s.acceptingClients.Load() || !s.acceptLimiter.Allow() {
			conn.Close()
			continue
		}

		go s.handlePeerConn(conn)
	}
}

// handlePeerConn reads and replies to frames from one peer connection
// strictly in arrival order, this daemon's per-peer ordering guarantee,
// until the peer disconnects, sends a malformed frame, or a protocol
// error closes the connection.
func (s *Supervisor) handlePeerConn(conn net.Conn) {
	defer conn.Close()

	ip := conn.RemoteAddr().String()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(SocketReadTimeout)); err != nil {
			return
		}

		msg, _, err := wire.ReadMessage(conn)
		if err != nil {
			return
		}

		var reply wire.Message
		var handleErr error
		s.store.GetOrInit(ip, func(state *ConnectionState) {
			state.LastSeen = s.clk.Now()
			reply, handleErr = s.handler.Handle(state, msg)
		})
		if handleErr != nil {
			hdlLog.Errorf("Closing connection to %v: %v", ip, handleErr)
			return
		}
		if reply == nil {
			continue
		}
		if err := wire.WriteMessage(conn, reply, nil); err != nil {
			return
		}
	}
}
