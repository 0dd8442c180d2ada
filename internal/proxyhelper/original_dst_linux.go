//go:build linux

package proxyhelper

import (
	"encoding/binary"
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// originalDst recovers the pre-DNAT destination of a TCP connection
// transparently redirected to this process by iptables/nftables
// REDIRECT, via the kernel's SOL_IP/SO_ORIGINAL_DST socket option (§4.5).
//
// getsockopt(SOL_IP, SO_ORIGINAL_DST) writes a struct sockaddr_in. It is
// read here through GetsockoptIPv6Mreq's 20-byte buffer, so the result
// lands in the Multiaddr field: port at bytes [2:4], IPv4 address at
// bytes [4:8] (big-endian). The address family bytes are not checked and
// only an IPv4 destination is decoded.
func originalDst(conn *net.TCPConn) (*net.TCPAddr, error) {
	rawConn, err := conn.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("proxyhelper: SyscallConn: %w", err)
	}

	var mreq *unix.IPv6Mreq
	var sockoptErr error
	ctrlErr := rawConn.Control(func(fd uintptr) {
		mreq, sockoptErr = unix.GetsockoptIPv6Mreq(int(fd), unix.SOL_IP, unix.SO_ORIGINAL_DST)
	})
	if ctrlErr != nil {
		return nil, fmt.Errorf("proxyhelper: SyscallConn.Control: %w", ctrlErr)
	}
	if sockoptErr != nil {
		return nil, fmt.Errorf("proxyhelper: getsockopt SO_ORIGINAL_DST: %w", sockoptErr)
	}

	ip := net.IPv4(mreq.Multiaddr[4], mreq.Multiaddr[5], mreq.Multiaddr[6], mreq.Multiaddr[7])
	port := binary.BigEndian.Uint16(mreq.Multiaddr[2:4])
	return &net.TCPAddr{IP: ip, Port: int(port)}, nil
}
