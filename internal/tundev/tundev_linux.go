//go:build linux

// Package tundev owns the process-wide TUN device singleton (§3, §4.6,
// §9): one interface, opened once, written to by every SessionPump and
// read by exactly one dedicated demultiplexer goroutine.
package tundev

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"unsafe"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"github.com/delta4chat/geph4-exit/internal/routing"
)

// Device is the process-wide TUN singleton. The zero value is not usable;
// construct with Open.
type Device struct {
	name string
	mtu  int

	file *os.File

	initOnce sync.Once
	initErr  error

	gatewayCIDR string
	table       *routing.Table
}

// Open creates (or attaches to) a TUN interface named name and returns a
// Device that does not yet own a kernel address or a reader thread —
// call EnsureReady (directly, or via the SessionPump's lazy TunInit
// hook) before any session touches it.
func Open(name string, mtu int, gatewayCIDR string, table *routing.Table) (*Device, error) {
	if mtu <= 0 {
		mtu = 1500
	}
	fd, err := unix.Open("/dev/net/tun", unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("tundev: open /dev/net/tun: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("tundev: set nonblock: %w", err)
	}
	ifName, err := ioctlTunSetIff(fd, name, unix.IFF_TUN|unix.IFF_NO_PI)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("tundev: TUNSETIFF %q: %w", name, err)
	}

	file := os.NewFile(uintptr(fd), ifName)
	return &Device{
		name:        ifName,
		mtu:         mtu,
		file:        file,
		gatewayCIDR: gatewayCIDR,
		table:       table,
	}, nil
}

// EnsureReady idempotently brings the interface up with its gateway
// address and starts the background demultiplexer goroutine (§4.2,
// §4.6). Safe to call concurrently and repeatedly; only the first call
// does any work (glossary: "lazily force the global TUN initialization
// (idempotent)").
func (d *Device) EnsureReady(ctx context.Context) error {
	d.initOnce.Do(func() {
		d.initErr = d.bringUp()
		if d.initErr != nil {
			return
		}
		if _, err := d.file.Write(primingFrame); err != nil {
			d.initErr = fmt.Errorf("tundev: priming write: %w", err)
			return
		}
		reader, err := d.dupBlockingReader()
		if err != nil {
			d.initErr = fmt.Errorf("tundev: dup reader fd: %w", err)
			return
		}
		demux := &Demux{reader: reader, table: d.table}
		go demux.run()
	})
	return d.initErr
}

// primingFrame is written once at startup to confirm the freshly
// bring-up TUN interface is actually ready to accept writes (§4.6): a
// short, arbitrary byte string (too short to parse as IPv4) handed to the
// kernel before the demux reader is started.
var primingFrame = []byte("geph4-exit-priming")

func (d *Device) bringUp() error {
	link, err := netlink.LinkByName(d.name)
	if err != nil {
		return fmt.Errorf("tundev: LinkByName(%q): %w", d.name, err)
	}
	addr, err := netlink.ParseAddr(d.gatewayCIDR)
	if err != nil {
		return fmt.Errorf("tundev: parse gateway cidr %q: %w", d.gatewayCIDR, err)
	}
	if err := netlink.AddrAdd(link, addr); err != nil && err != unix.EEXIST {
		return fmt.Errorf("tundev: AddrAdd(%s, %s): %w", d.name, d.gatewayCIDR, err)
	}
	if err := netlink.LinkSetMTU(link, d.mtu); err != nil {
		return fmt.Errorf("tundev: LinkSetMTU(%s, %d): %w", d.name, d.mtu, err)
	}
	if err := netlink.LinkSetUp(link); err != nil {
		return fmt.Errorf("tundev: LinkSetUp(%s): %w", d.name, err)
	}
	log.Printf("tundev: %s up, mtu=%d, gateway=%s", d.name, d.mtu, d.gatewayCIDR)
	return nil
}

// dupBlockingReader duplicates the TUN fd and clears O_NONBLOCK on the
// duplicate so the demultiplexer's dedicated reader thread can block in
// Read (§4.6). O_NONBLOCK is a status flag of the open file description
// that both descriptors share, and d.file.Fd() itself switches d.file to
// blocking mode, so after this call the writer side is blocking as well:
// WriteRaw then blocks in the write syscall rather than in the poller.
func (d *Device) dupBlockingReader() (*os.File, error) {
	dupFd, err := unix.Dup(int(d.file.Fd()))
	if err != nil {
		return nil, err
	}
	flags, err := unix.FcntlInt(uintptr(dupFd), unix.F_GETFL, 0)
	if err != nil {
		_ = unix.Close(dupFd)
		return nil, err
	}
	flags &^= unix.O_NONBLOCK
	if _, err := unix.FcntlInt(uintptr(dupFd), unix.F_SETFL, flags); err != nil {
		_ = unix.Close(dupFd)
		return nil, err
	}
	return os.NewFile(uintptr(dupFd), d.name+"-reader"), nil
}

// WriteRaw writes one IPv4 packet to the kernel. A write failure here is
// a broken TUN device, which §7 treats as a process-fatal condition: it
// is not reasonably recoverable, so this logs and aborts rather than
// returning an error the caller could plausibly retry around.
func (d *Device) WriteRaw(ctx context.Context, pkt []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if _, err := d.file.Write(pkt); err != nil {
		log.Fatalf("tundev: write to %s failed: %v", d.name, err)
	}
	return nil
}

// Close releases the TUN file descriptor.
func (d *Device) Close() error {
	return d.file.Close()
}

func ioctlTunSetIff(fd int, name string, flags int16) (string, error) {
	var ifreq struct {
		name  [unix.IFNAMSIZ]byte
		flags int16
	}
	if len(name) >= unix.IFNAMSIZ {
		return "", unix.EINVAL
	}
	copy(ifreq.name[:], name)
	ifreq.flags = flags

	// TUNSETIFF is declared as taking an int, not a pointer, in
	// <linux/if_tun.h>; casting the struct pointer to an int argument is
	// the accepted way to drive it through IoctlSetInt.
	if err := unix.IoctlSetInt(fd, unix.TUNSETIFF, int(uintptr(unsafe.Pointer(&ifreq)))); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(ifreq.name[:], "\x00")), nil
}
