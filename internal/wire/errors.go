package wire

import "errors"

// Sentinel errors for the client error taxonomy. Concrete
// failures are wrapped around these with fmt.Errorf("...: %w", ErrX)
// so callers can classify with errors.Is.
var (
	// ErrTransport covers TCP/UDP/DNS failure, socket timeout, or an
	// HTTP non-2xx response with no usable body.
	ErrTransport = errors.New("transport error")

	// ErrProtocol covers a 2xx response with status "error", or a
	// malformed body.
	ErrProtocol = errors.New("protocol error")

	// ErrAuth covers a rejected developer key or session (401/403,
	// "session expired", "unknown session").
	ErrAuth = errors.New("auth error")

	// ErrNotFound covers a channel or session that no longer exists.
	ErrNotFound = errors.New("not found")

	// ErrConfig covers missing required input, e.g. connect() called
	// without either channelId or channelName+channelPassword.
	ErrConfig = errors.New("config error")

	// ErrCrypto covers envelope authentication failure or malformed
	// key material.
	ErrCrypto = errors.New("crypto error")

	// ErrRateLimit covers the local request throttle or a
	// server-signaled rate limit.
	ErrRateLimit = errors.New("rate limited")

	// ErrCancelled covers an operation aborted by disconnect or caller
	// cancellation.
	ErrCancelled = errors.New("cancelled")
)
