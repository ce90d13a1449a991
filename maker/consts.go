package maker

import "time"

// Wire-visible constants.
const (
	// MinContractReactionTime is the minimum number of blocks by which a
	// hop's relative timelock must exceed the next hop's, so this Maker
	// has room to react before the upstream contract can be spent via
	// its own timelock branch.
	MinContractReactionTime = 48

	// RequiredConfirms is the minimum confirmation count a funding
	// output must have before this Maker signs against it.
	RequiredConfirms = 1

	// AmountRelativeFeePPB is this Maker's fee rate, in sats per billion
	// swapped.
	AmountRelativeFeePPB = 10_000_000

	// AcceptRateLimit and AcceptBurst bound how fast the accept loop lets
	// fresh connections in, independent of however many peers are already
	// mid-swap.
	AcceptRateLimit = 5 // connections per second
	AcceptBurst     = 10
)

// Timing constants.
const (
	// HeartbeatInterval is the cadence every background loop polls and
	// re-checks shutdown at.
	HeartbeatInterval = 3 * time.Second

	// IdleTimeout is the effective idle threshold the Idle Detector
	// enforces, resolved in favor of 60s over 300s as the
	// behavior-determining constant.
	IdleTimeout = 60 * time.Second

	// IdleTimeoutAdvisory is the peripheral config-file default,
	// non-authoritative. It's surfaced in config but never
	// consulted by the Idle Detector.
	IdleTimeoutAdvisory = 300 * time.Second

	// SocketReadTimeout bounds a per-connection blocking read.
	SocketReadTimeout = 20 * time.Second

	// RecoveryScanInterval is the Recovery Engine's maturity-wait poll
	// cadence in production.
	RecoveryScanInterval = 300 * time.Second

	// RecoveryScanIntervalTest is the maturity-wait poll cadence used in
	// integration tests.
	RecoveryScanIntervalTest = 10 * time.Second

	// NodePingHealthyInterval/NodePingUnhealthyInterval are the
	// liveness-pinger cadences for the healthy and unhealthy cases.
	NodePingHealthyInterval   = 60 * time.Second
	NodePingUnhealthyInterval = 3 * time.Second
)
