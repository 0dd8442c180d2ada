// Package proxyhelper implements the transparent TCP proxy helper (C6,
// §4.5): a plain TCP listener that recovers each connection's pre-DNAT
// destination via SO_ORIGINAL_DST and hands it to the generic proxy loop
// alongside a synthetic, peer-IP-scoped client identifier.
package proxyhelper

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/delta4chat/geph4-exit/internal/proxyloop"
	"github.com/delta4chat/geph4-exit/internal/randpool"
)

// ClientIDCacheSize matches the route table's minimum bound (§3, §4.5):
// one synthetic ID per distinct peer IP seen, retained across
// reconnects so repeat visitors keep their accounting identity.
const ClientIDCacheSize = 1_000_000

// Helper runs the transparent proxy listener. The zero value is not
// usable; construct with New.
type Helper struct {
	loop proxyloop.Loop

	mu  sync.Mutex
	ids *lru.Cache[string, uint64]
}

// New builds a Helper that hands every accepted connection to loop.
func New(loop proxyloop.Loop) (*Helper, error) {
	ids, err := lru.New[string, uint64](ClientIDCacheSize)
	if err != nil {
		return nil, fmt.Errorf("proxyhelper: client id cache: %w", err)
	}
	return &Helper{loop: loop, ids: ids}, nil
}

// Run listens on addr (default "0.0.0.0:10000", §4.5) until ctx is
// cancelled. Each accepted connection is handled in its own goroutine;
// a connection whose original destination cannot be recovered is closed
// and otherwise ignored, matching the "aborting" behavior of the
// original helper.
func (h *Helper) Run(ctx context.Context, addr string) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("proxyhelper: listen %q: %w", addr, err)
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("proxyhelper: accept: %w", err)
			}
		}
		go h.handle(ctx, conn)
	}
}

func (h *Helper) handle(ctx context.Context, conn net.Conn) {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		_ = conn.Close()
		return
	}
	defer tcpConn.Close()

	dst, err := originalDst(tcpConn)
	if err != nil {
		log.Printf("proxyhelper: cannot recover original destination, aborting: %v", err)
		return
	}
	if err := tcpConn.SetNoDelay(true); err != nil {
		log.Printf("proxyhelper: SetNoDelay: %v", err)
	}

	peer, _, err := net.SplitHostPort(tcpConn.RemoteAddr().String())
	if err != nil {
		peer = tcpConn.RemoteAddr().String()
	}
	clientID := h.clientID(peer)

	if err := h.loop.Run(ctx, tcpConn, clientID, dst.String()); err != nil {
		log.Printf("proxyhelper: conn to %s closed: %v", dst, err)
	}
}

// clientID returns the synthetic identity for peerIP, generating and
// caching one on first sight (§4.5: "peer → synthetic-ID cache").
func (h *Helper) clientID(peerIP string) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	if id, ok := h.ids.Get(peerIP); ok {
		return id
	}
	id := randpool.Uint64()
	h.ids.Add(peerIP, id)
	return id
}
