// Package session implements the per-client packet pump (C5, §4.4): the
// coupling between one client's multiplexed unreliable stream and one
// leased IPv4 address on the shared TUN device, plus the wire encoding
// and egress filtering it depends on.
package session

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/time/rate"

	"github.com/delta4chat/geph4-exit/internal/addralloc"
	"github.com/delta4chat/geph4-exit/internal/routing"
)

// unlimitedIngressCapacity is the ingress-channel depth used when the
// per-session rate limiter is unconfigured (§4.4: "limit/4, or 65536 when
// the limiter is unlimited").
const unlimitedIngressCapacity = 65536

// Pump couples one client session to one leased IPv4 address. Construct
// with New and run with Run; Run blocks until the session ends (a
// transport error, context cancellation, or a fatal protocol violation);
// in degenerate no-NAT-interface deployments it only waits for context
// cancellation.
type Pump struct {
	pool    *addralloc.Pool
	table   *routing.Table
	tun     TunWriter
	tunInit func(ctx context.Context) error

	transport Transport
	limiter   *rate.Limiter
	tables    PortTables
	gateway   net.IP

	accountant *BandwidthAccountant
	onActivity ActivityFunc

	// natEnabled mirrors §4.4's degenerate case: an exit with no
	// configured NAT interface never allocates an address or touches the
	// TUN. Its SessionPump exists only to hold the transport open.
	natEnabled bool
}

// Config bundles Pump's construction-time dependencies.
type Config struct {
	Pool      *addralloc.Pool
	Table     *routing.Table
	Tun       TunWriter
	TunInit   func(ctx context.Context) error // lazy, idempotent TUN bring-up
	Transport Transport
	Limiter   *rate.Limiter // nil is treated as unlimited
	Tables    PortTables
	Gateway   net.IP

	Accountant *BandwidthAccountant
	OnActivity ActivityFunc

	// NATEnabled gates the entire datapath per the degenerate case above.
	NATEnabled bool
}

// New builds a Pump from cfg. A nil Limiter is normalized to an unlimited
// one so Run need not special-case it.
func New(cfg Config) *Pump {
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}
	onActivity := cfg.OnActivity
	if onActivity == nil {
		onActivity = func() {}
	}
	return &Pump{
		pool:       cfg.Pool,
		table:      cfg.Table,
		tun:        cfg.Tun,
		tunInit:    cfg.TunInit,
		transport:  cfg.Transport,
		limiter:    limiter,
		tables:     cfg.Tables,
		gateway:    cfg.Gateway,
		accountant: cfg.Accountant,
		onActivity: onActivity,
		natEnabled: cfg.NATEnabled,
	}
}

// Run drives the session to completion. It returns nil on graceful
// shutdown (ctx cancellation) and a non-nil error when the session ended
// for a protocol or transport reason (§4.4, §7): the caller is expected
// to log it and move on, not to treat it as process-fatal.
func (p *Pump) Run(ctx context.Context) error {
	if !p.natEnabled {
		<-ctx.Done()
		return nil
	}

	if p.tunInit != nil {
		if err := p.tunInit(ctx); err != nil {
			return fmt.Errorf("session: tun init: %w", err)
		}
	}

	lease := p.pool.Assign()
	addr := lease.Addr()

	capacity := unlimitedIngressCapacity
	if limit := p.limiter.Limit(); limit != rate.Inf {
		if c := int(limit) / 4; c > 0 {
			capacity = c
		} else {
			capacity = 1
		}
	}
	ingress := make(chan []byte, capacity)

	p.table.Insert(addr, ingress)

	// The cleanup guard holds its own clone so the route invalidation and
	// the lease release are strictly ordered with respect to each other
	// even though two different holders (this defer and the caller's own
	// reference) could in principle outlive one another (§9 "Lease ↔
	// route coupling").
	cleanup := lease.Clone()
	defer func() {
		p.table.Invalidate(addr)
		cleanup.Release()
		lease.Release()
	}()

	addrKey, _ := ipToUint32(addr)

	errCh := make(chan error, 2)
	go func() { errCh <- p.egressLoop(ctx, addrKey, ingress) }()
	go func() { errCh <- p.ingressLoop(ctx, addr) }()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// egressLoop forwards packets the TunDemux has already routed to this
// session (kernel → client) across the unreliable transport.
func (p *Pump) egressLoop(ctx context.Context, addrKey uint32, ingress <-chan []byte) error {
	for {
		var pkt []byte
		select {
		case <-ctx.Done():
			return nil
		case pkt = <-ingress:
		}

		if p.accountant != nil {
			p.accountant.Add(len(pkt))
		}

		if err := p.limiter.WaitN(ctx, len(pkt)); err != nil {
			if ctx.Err() != nil {
				return nil // ctx cancelled mid-wait
			}
			return fmt.Errorf("session: rate limiter: %w", err)
		}

		if h, err := parseIPv4(pkt); err == nil {
			if dst, ok := ipToUint32(h.Destination); ok && dst != addrKey {
				// The demux only forwards packets whose destination
				// matches this session's leased address; a mismatch
				// here is a routing-table bug, not a malicious client.
				panic("session: egress packet destination does not match leased address")
			}
		}

		// Send failures on the unreliable channel are ignored (§4.4).
		_ = p.transport.SendUnreliable(ctx, EncodePayload(pkt))
	}
}

// ingressLoop handles everything the client sends: the hello handshake
// and client-originated payloads bound for the TUN (client → kernel).
func (p *Pump) ingressLoop(ctx context.Context, addr net.IP) error {
	for {
		raw, err := p.transport.RecvUnreliable(ctx)
		if err != nil {
			return err
		}
		p.onActivity()

		msg, err := Decode(raw)
		if err != nil {
			return err
		}

		switch msg.Type {
		case MsgClientHello:
			reply, err := EncodeServerHello(addr, p.gateway)
			if err != nil {
				return fmt.Errorf("session: encode ServerHello: %w", err)
			}
			_ = p.transport.SendUnreliable(ctx, reply)

		case MsgPayload:
			if p.accountant != nil {
				p.accountant.Add(len(msg.Payload))
			}
			if err := p.handlePayload(ctx, msg.Payload, addr); err != nil {
				return err
			}

		default:
			return fmt.Errorf("session: unexpected message type %d in established session", msg.Type)
		}
	}
}

// handlePayload applies §4.4's ingress policy: non-IPv4 packets fall
// straight through to the TUN; IPv4 packets pass through egressAllowed
// first. A TunWriter error only ever propagates here on shutdown — a
// genuine device fault is process-fatal and handled inside the TUN
// implementation itself (§7).
func (p *Pump) handlePayload(ctx context.Context, pkt []byte, addr net.IP) error {
	if len(pkt) < 1 {
		return nil // too short to even read a version nibble; drop
	}
	if pkt[0]>>4 != 4 {
		return p.tun.WriteRaw(ctx, pkt)
	}
	if !egressAllowed(pkt, addr, p.tables) {
		return nil
	}
	return p.tun.WriteRaw(ctx, pkt)
}
