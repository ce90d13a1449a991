package maker

import (
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"
)

// ExpectedMessage enumerates the inbound message kind a peer's connection
// must supply next. The state advances monotonically and
// never skips.
type ExpectedMessage uint8

const (
	ExpectTakerHello ExpectedMessage = iota
	ExpectNewlyConnectedTaker
	ExpectReqContractSigsForSender
	ExpectProofOfFunding
	// ExpectProofOfFundingOrContractSigsForRecvrAndSender is the one
	// branching state possible here: either another hop's
	// ProofOfFunding, or the Taker's final ContractSigsForRecvrAndSender.
	ExpectProofOfFundingOrContractSigsForRecvrAndSender
	ExpectReqContractSigsForRecvr
	ExpectHashPreimage
	ExpectPrivateKeyHandover
)

func (e ExpectedMessage) String() string {
	switch e {
	case ExpectTakerHello:
		return "TakerHello"
	case ExpectNewlyConnectedTaker:
		return "NewlyConnectedTaker"
	case ExpectReqContractSigsForSender:
		return "ReqContractSigsForSender"
	case ExpectProofOfFunding:
		return "ProofOfFunding"
	case ExpectProofOfFundingOrContractSigsForRecvrAndSender:
		return "ProofOfFundingORContractSigsForRecvrAndSender"
	case ExpectReqContractSigsForRecvr:
		return "ReqContractSigsForRecvr"
	case ExpectHashPreimage:
		return "HashPreimage"
	case ExpectPrivateKeyHandover:
		return "PrivateKeyHandover"
	default:
		return "Unknown"
	}
}

// ConnectionState is one peer's in-flight swap bookkeeping.
// A zero-value ConnectionState (ExpectTakerHello, no swapcoins) means "this
// peer has no in-flight swap with us."
type ConnectionState struct {
	ExpectedNextMessage ExpectedMessage

	IncomingSwapcoins []*IncomingSwapCoin
	OutgoingSwapcoins []*OutgoingSwapCoin

	PendingFundingTxes [][]byte // raw txes awaiting confirmation

	LastSeen time.Time

	// TakerAddress and SwapID are supplemented from
	// original_source/src/maker/api.rs: diagnostic-only fields with no
	// effect on the state machine, used for RPC/log context.
	TakerAddress string
	SwapID       uint64

	// HashValue is the route's public hash commitment, learned the first
	// time a ProofOfFunding validates successfully and checked again
	// against HashPreimage.
	HashValue [32]byte

	// Completed is set once this peer's PrivateKeyHandover exchange
	// finishes successfully; the Idle Detector's next scan removes the
	// connection's entry from the Store once it observes this.
	Completed bool
}

// hasPairedSwapcoin reports whether this connection holds at least one
// swapcoin in either direction (incoming or outgoing), the condition both
// watchdogs gate recovery on.
func (c *ConnectionState) hasPairedSwapcoin() bool {
	return len(c.IncomingSwapcoins) > 0 || len(c.OutgoingSwapcoins) > 0
}

// Store is the process-wide, single-mutex connection-state map, grounded
// on server.go's peers map but simplified from its
// channel-actor pattern to a plain mutex: the store's own lock already
// bounds hold time to one message or one watchdog pass, so there's no need
// for server.go's separate queryHandler goroutine serializing access.
type Store struct {
	mu    sync.Mutex
	peers map[string]*ConnectionState
	clock clock.Clock
}

// NewStore constructs an empty store. clk lets tests fast-forward
// LastSeen-based idle detection without sleeping.
func NewStore(clk clock.Clock) *Store {
	return &Store{
		peers: make(map[string]*ConnectionState),
		clock: clk,
	}
}

// GetOrInit returns the peer's ConnectionState, creating a fresh zero-value
// one on first contact, and runs fn with the store lock held — the store
// never hands out a *ConnectionState for use outside the lock: every
// mutation must happen under it.
func (s *Store) GetOrInit(ip string, fn func(*ConnectionState)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.peers[ip]
	if !ok {
		state = &ConnectionState{LastSeen: s.clock.Now()}
		s.peers[ip] = state
	}
	fn(state)
}

// IterMut runs fn once per peer currently in the store, under the lock, for
// exactly the duration of one watchdog pass — the lock is held for the
// whole pass, not released and reacquired per peer.
func (s *Store) IterMut(fn func(ip string, state *ConnectionState)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for ip, state := range s.peers {
		fn(ip, state)
	}
}

// Remove deletes a peer's entry, the "destroyed" half of this state's
// lifecycle (recovery triggered, or swap completed and ownership of its
// SwapCoins transferred to the wallet).
func (s *Store) Remove(ip string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.peers, ip)
}

// Len reports how many peers currently have an entry, used by tests to
// check which connections a store operation or watchdog pass left behind.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}
