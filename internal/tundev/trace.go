package tundev

import "sync/atomic"

var traceLogging atomic.Bool

// SetTraceLogging toggles the demux's opt-in trace logs for its three
// silent-drop cases (malformed frame, unknown route, full ingress
// channel). Off by default; a busy exit dropping at line rate should not
// pay for logging it never asked for.
func SetTraceLogging(enabled bool) {
	traceLogging.Store(enabled)
}
