package session

import "context"

// Transport is the per-session handle onto the multiplexed transport's
// unreliable substream (§3, §6). The transport itself — session
// handshake, authentication, key exchange, and the reliable substream —
// is an external collaborator; SessionPump only consumes this interface.
type Transport interface {
	// RecvUnreliable blocks until one datagram arrives. A returned error
	// is session-fatal: the session ends (§4.4, §7).
	RecvUnreliable(ctx context.Context) ([]byte, error)

	// SendUnreliable best-effort sends one datagram. Failures are ignored
	// by callers on the egress path (§4.4); on the handshake reply path a
	// failure is likewise non-fatal since the transport is unreliable.
	SendUnreliable(ctx context.Context, b []byte) error
}

// TunWriter is the subset of the TUN device SessionPump needs to push a
// client-originated packet toward the kernel (§4.4, §4.6). A returned
// error only occurs on shutdown (ctx cancellation) — genuine device I/O
// failure is process-fatal and handled inside the implementation per §7,
// not surfaced as a recoverable error here.
type TunWriter interface {
	WriteRaw(ctx context.Context, pkt []byte) error
}

// Counter is the optional external stats collector (§6): "an optional
// collector exposing count(key, value)".
type Counter interface {
	Count(key string, value float64)
}

// ActivityFunc is invoked once per ingress message, used by the host for
// idle detection (glossary: "Activity callback").
type ActivityFunc func()
