// Package addralloc implements the IPv4 address allocator: a shared pool
// of leased addresses drawn from a configured CIDR, with automatic
// release when the last holder of a lease lets go of it (§3, §4.1).
package addralloc

import (
	"encoding/binary"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"

	"github.com/delta4chat/geph4-exit/internal/randpool"
)

// reservedEdge is the number of addresses reserved at each end of the
// CIDR for infrastructure (the gateway, broadcast-adjacent addresses,
// etc.) — see §4.1.
const reservedEdge = 16

// Pool draws unique IPv4 addresses from a CIDR and tracks which ones are
// currently leased. The zero value is not usable; construct with New.
//
// Invariant: an address is present in leased if and only if a live
// Lease references it (§3).
type Pool struct {
	first, last uint32 // inclusive range, host byte order

	mu     sync.Mutex
	leased map[uint32]struct{}

	// failedDraws counts retries spent on a saturated pool (§12 of
	// SPEC_FULL.md — observability only, no behavior change).
	failedDraws atomic.Uint64
}

// New builds a Pool over the given CIDR (default 100.64.0.0/10, CGNAT).
func New(cidr string) (*Pool, error) {
	_, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("addralloc: parse cidr %q: %w", cidr, err)
	}
	ip4 := ipnet.IP.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("addralloc: cidr %q is not IPv4", cidr)
	}
	ones, bits := ipnet.Mask.Size()
	if bits != 32 {
		return nil, fmt.Errorf("addralloc: cidr %q is not IPv4", cidr)
	}
	first := binary.BigEndian.Uint32(ip4)
	size := uint32(1) << uint(32-ones)
	last := first + size - 1
	if size <= 2*reservedEdge {
		return nil, fmt.Errorf("addralloc: cidr %q too small to reserve %d addresses at each edge", cidr, reservedEdge)
	}
	return &Pool{
		first:  first + reservedEdge,
		last:   last - reservedEdge,
		leased: make(map[uint32]struct{}),
	}, nil
}

// FailedDraws returns the number of retry attempts spent on a saturated
// pool since process start.
func (p *Pool) FailedDraws() uint64 { return p.failedDraws.Load() }

// Size returns the number of addresses currently leased.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.leased)
}

// Capacity returns the total number of addresses this pool can lease.
func (p *Pool) Capacity() int {
	return int(p.last-p.first) + 1
}

// Assign draws a uniformly random, currently-unleased address in
// [first+16, last-16] and returns a fresh Lease holding it (§4.1).
//
// Termination is probabilistic: under saturation this livelocks rather
// than erroring, which is the documented tradeoff for the /10 default
// range (§4.1, §9(c)).
func (p *Pool) Assign() *Lease {
	span := int64(p.last-p.first) + 1
	for {
		candidate := p.first + uint32(randpool.Int63n(span))

		p.mu.Lock()
		if _, taken := p.leased[candidate]; taken {
			p.mu.Unlock()
			p.failedDraws.Add(1)
			continue
		}
		p.leased[candidate] = struct{}{}
		p.mu.Unlock()

		return newLease(p, candidate)
	}
}

// release removes addr from the leased set. It is a fatal programming
// error for addr to be absent — that indicates a double-release (§3, §7).
func (p *Pool) release(addr uint32) {
	p.mu.Lock()
	_, ok := p.leased[addr]
	if ok {
		delete(p.leased, addr)
	}
	p.mu.Unlock()

	if !ok {
		log.Fatalf("addralloc: double free of address %s", uint32ToIP(addr))
	}
}

func uint32ToIP(v uint32) net.IP {
	b := make(net.IP, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}
