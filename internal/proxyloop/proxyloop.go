// Package proxyloop declares the boundary between the transparent TCP
// proxy helper (§4.5) and the generic connection-forwarding loop that
// actually dials upstream and shuttles bytes. The loop itself pairs with
// client authentication, rate limiting, and upstream selection that are
// explicit Non-goals of this datapath (§8) — SessionPump and the proxy
// helper only need to know how to hand a connection to it.
package proxyloop

import (
	"context"
	"net"
)

// Loop is the external collaborator a transparently-redirected TCP
// connection is handed off to once its original destination has been
// recovered. clientID identifies the peer for rate limiting and
// accounting purposes external to this package; dst is the recovered
// pre-DNAT destination in "host:port" form.
type Loop interface {
	Run(ctx context.Context, conn net.Conn, clientID uint64, dst string) error
}
