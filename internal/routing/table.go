// Package routing implements the process-global RouteTable: a bounded
// map from a leased IPv4 address to the ingress channel of the session
// that owns it (§3, §4.2). The TunDemux reader consults this table for
// every frame it reads off the TUN device.
package routing

import (
	"encoding/binary"
	"net"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCapacity is the minimum bound required by §3: "at least
// 1,000,000 entries". Eviction under this bound is not expected to ever
// touch a live session — it exists only to cap memory under a flood of
// stale inserts (§4.2).
const DefaultCapacity = 1_000_000

// Sender is the producer side of a session's bounded ingress channel:
// owned byte buffers read off the TUN device, destined for one session.
type Sender chan<- []byte

// Table is a concurrent, capacity-bounded map from IPv4 address to
// Sender. At most one entry exists per address at any moment (§3).
type Table struct {
	cache *lru.Cache[uint32, Sender]
}

// New builds a Table with the given capacity (use DefaultCapacity unless
// a test needs something smaller).
func New(capacity int) (*Table, error) {
	c, err := lru.New[uint32, Sender](capacity)
	if err != nil {
		return nil, err
	}
	return &Table{cache: c}, nil
}

// Insert publishes (addr, sender), overwriting any prior entry for addr.
func (t *Table) Insert(addr net.IP, sender Sender) {
	t.cache.Add(ipToKey(addr), sender)
}

// Get returns the sender for addr, if any.
func (t *Table) Get(addr net.IP) (Sender, bool) {
	return t.cache.Get(ipToKey(addr))
}

// Invalidate removes addr's entry, if present. Any packets already
// enqueued on the session's channel are left for the session to drain or
// discard on shutdown — this call only stops new deliveries.
func (t *Table) Invalidate(addr net.IP) {
	t.cache.Remove(ipToKey(addr))
}

// Len returns the number of entries currently in the table.
func (t *Table) Len() int { return t.cache.Len() }

func ipToKey(ip net.IP) uint32 {
	v4 := ip.To4()
	return binary.BigEndian.Uint32(v4)
}
