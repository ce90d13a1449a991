package maker

import (
	"errors"
	"fmt"

	goerrors "github.com/go-errors/errors"
)

// The five error kinds this daemon distinguishes. Each sentinel is wrapped
// with go-errors/errors at the point it's returned across a goroutine
// boundary (peer handler -> connection-state store -> recovery trigger),
// the same library peer.go imports for exactly this purpose, so a later log
// line carries a stack trace back to the failure site.
var (
	// ErrProtocol: malformed message, wrong state, script check failed,
	// hashvalues inconsistent. Fatal for the connection; peer state reset.
	ErrProtocol = errors.New("protocol error")

	// ErrWallet: cache conflict, missing swapcoin, insufficient funds
	// during fidelity creation. Fatal for the triggering operation.
	ErrWallet = errors.New("wallet error")

	// ErrNodeRPC: treated as transient by pingers and recovery (retry),
	// fatal for one-shot validation.
	ErrNodeRPC = errors.New("node rpc error")

	// ErrIO: per-connection I/O failure other than a keep-alive EOF.
	ErrIO = errors.New("io error")

	// ErrSpecialBehavior: testing-only sentinel, flips the shutdown flag.
	ErrSpecialBehavior = errors.New("special behavior triggered")
)

// wrapf mirrors peer.go's go-errors/errors usage: attach a stack trace at
// the boundary where an error is about to cross into another goroutine
// (returned from a handler into the supervisor, or from validation into the
// handler), while keeping errors.Is(err, kind) working via %w.
func wrapf(kind error, format string, args ...interface{}) error {
	wrapped := fmt.Errorf("%w: "+format, append([]interface{}{kind}, args...)...)
	return goerrors.Wrap(wrapped, 1)
}
