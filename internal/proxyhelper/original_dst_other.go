//go:build !linux

package proxyhelper

import (
	"fmt"
	"net"
)

func originalDst(conn *net.TCPConn) (*net.TCPAddr, error) {
	return nil, fmt.Errorf("proxyhelper: SO_ORIGINAL_DST is only supported on linux")
}
