//go:build linux

package tundev

import (
	"encoding/binary"
	"log"
	"net"
	"os"
	"runtime"

	"github.com/delta4chat/geph4-exit/internal/routing"
)

// demuxReadSize matches the original reader's fixed 2048-byte buffer
// (§4.2): comfortably larger than any packet this exit forwards given the
// configured MTU.
const demuxReadSize = 2048

// Demux is the global TunDemux (C4, §4.2): one dedicated OS thread reads
// every packet the kernel writes to the TUN, looks up the destination
// address's session in the RouteTable, and forwards non-blockingly.
// Packets for an address with no current session, or whose session
// channel is full, are silently dropped — this is the documented
// backpressure policy, not a bug.
type Demux struct {
	reader *os.File
	table  *routing.Table
}

// run occupies one OS thread for the process lifetime. A read error means
// the TUN device itself is broken, which is process-fatal (§7) — there is
// no session-scoped way to recover a dead kernel interface.
func (d *Demux) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	buf := make([]byte, demuxReadSize)
	for {
		n, err := d.reader.Read(buf)
		if err != nil {
			log.Fatalf("tundev: demux read failed: %v", err)
		}
		pkt := buf[:n]
		if len(pkt) < 20 || pkt[0]>>4 != 4 {
			if traceLogging.Load() {
				log.Printf("tundev: demux drop: unparseable frame (%d bytes)", n)
			}
			continue
		}
		dest := binary.BigEndian.Uint32(pkt[16:20])

		destIP := destIPFromKey(dest)
		sender, ok := d.table.Get(destIP)
		if !ok {
			if traceLogging.Load() {
				log.Printf("tundev: demux drop: no route for %s", destIP)
			}
			continue
		}
		select {
		case sender <- append([]byte(nil), pkt...):
		default:
			// Session's ingress channel is saturated; drop rather than
			// block the single shared reader thread.
			if traceLogging.Load() {
				log.Printf("tundev: demux drop: ingress channel full for %s", destIP)
			}
		}
	}
}

func destIPFromKey(v uint32) net.IP {
	b := make(net.IP, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}
