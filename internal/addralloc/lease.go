package addralloc

import (
	"net"
	"sync/atomic"
)

// leaseCore is the shared, reference-counted state behind every clone of
// a Lease. It outlives any single holder so that, e.g., a session pump
// and the cleanup guard that invalidates its route entry can each hold a
// clone without racing each other's release (§9 "Lease ↔ route coupling").
type leaseCore struct {
	pool *Pool
	addr uint32
	refs atomic.Int32
}

// Lease is a reference-counted handle owning exactly one IPv4 address
// inside a Pool (§3). The zero value holds nothing and is safe to
// Release (a no-op).
type Lease struct {
	core *leaseCore
}

func newLease(p *Pool, addr uint32) *Lease {
	c := &leaseCore{pool: p, addr: addr}
	c.refs.Store(1)
	return &Lease{core: c}
}

// Addr returns the leased IPv4 address.
func (l *Lease) Addr() net.IP {
	if l == nil || l.core == nil {
		return nil
	}
	return uint32ToIP(l.core.addr)
}

// Clone returns a new handle sharing this lease's address. The
// underlying address is only returned to the pool once every clone
// (including the original) has been released.
func (l *Lease) Clone() *Lease {
	l.core.refs.Add(1)
	return &Lease{core: l.core}
}

// Release relinquishes this handle's share of the lease. When the last
// outstanding clone is released, the address is returned to the pool.
// Releasing a handle whose address has already been fully released is a
// fatal programming error (double-release, §3, §7).
func (l *Lease) Release() {
	if l == nil || l.core == nil {
		return
	}
	if l.core.refs.Add(-1) <= 0 {
		l.core.pool.release(l.core.addr)
	}
}

// Equal reports whether two leases reference the same address.
func (l *Lease) Equal(other *Lease) bool {
	if l == nil || other == nil {
		return l == other
	}
	return l.core.addr == other.core.addr
}

// Less orders leases by address, ascending.
func (l *Lease) Less(other *Lease) bool {
	return l.core.addr < other.core.addr
}
