package addralloc

import (
	"encoding/binary"
	"net"
	"os"
	"os/exec"
	"sync"
	"testing"
)

func mustPool(t *testing.T, cidr string) *Pool {
	t.Helper()
	p, err := New(cidr)
	if err != nil {
		t.Fatalf("New(%q): %v", cidr, err)
	}
	return p
}

// TestAssignUniqueness covers testable property 1: N concurrent Assign()
// calls produce N distinct addresses.
func TestAssignUniqueness(t *testing.T) {
	p := mustPool(t, "100.64.0.0/22") // 1024 addresses, plenty of headroom
	const n = 200

	var wg sync.WaitGroup
	leases := make([]*Lease, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			leases[i] = p.Assign()
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for _, l := range leases {
		addr := l.Addr().String()
		if seen[addr] {
			t.Fatalf("duplicate address assigned: %s", addr)
		}
		seen[addr] = true
	}
}

// TestBoundaryReservation covers testable property 3.
func TestBoundaryReservation(t *testing.T) {
	p := mustPool(t, "100.64.0.0/10")
	_, ipnet, _ := net.ParseCIDR("100.64.0.0/10")
	first := binary.BigEndian.Uint32(ipnet.IP.To4())
	ones, _ := ipnet.Mask.Size()
	last := first + uint32(1<<uint(32-ones)) - 1

	for i := 0; i < 500; i++ {
		l := p.Assign()
		addr := binary.BigEndian.Uint32(l.Addr().To4())
		if addr < first+reservedEdge || addr > last-reservedEdge {
			t.Fatalf("assigned address %s outside reserved boundary", l.Addr())
		}
		l.Release()
	}
}

// TestReleaseMakesAddressAvailable covers testable property 2 (first half):
// dropping all handles to a Lease makes the address available again.
func TestReleaseMakesAddressAvailable(t *testing.T) {
	p := mustPool(t, "100.64.0.0/24") // 256 addrs, usable range 224
	var all []*Lease
	for {
		l := p.Assign()
		all = append(all, l)
		if p.Size() >= 224 {
			break
		}
	}
	released := all[len(all)-1].Addr().String()
	all[len(all)-1].Release()

	l := p.Assign()
	if l.Addr().String() != released {
		t.Fatalf("expected re-assignment of freed address %s, got %s", released, l.Addr())
	}
}

// TestDoubleReleaseFatal covers testable property 2 (second half) and the
// "double release" scenario in §8. log.Fatalf calls os.Exit, so we drive
// this through a subprocess the way the standard library tests os.Exit
// paths, and assert the process terminated instead of panicking inline.
func TestDoubleReleaseFatal(t *testing.T) {
	if os.Getenv("ADDRALLOC_DOUBLE_RELEASE_SUBPROCESS") == "1" {
		p := mustPool(t, "100.64.0.0/24")
		l := p.Assign()
		l.Release()
		l.Release() // second release of the same fully-released handle: fatal
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestDoubleReleaseFatal")
	cmd.Env = append(os.Environ(), "ADDRALLOC_DOUBLE_RELEASE_SUBPROCESS=1")
	err := cmd.Run()
	if err == nil {
		t.Fatal("expected double-release subprocess to exit non-zero")
	}
}
