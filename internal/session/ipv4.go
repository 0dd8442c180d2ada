package session

import (
	"encoding/binary"
	"fmt"
	"net"
)

const (
	protoTCP = 6
	protoUDP = 17
)

// ipv4Header is the minimal subset of an IPv4 header the egress policy
// and the pump's egress destination check need.
type ipv4Header struct {
	Source      net.IP
	Destination net.IP
	Protocol    byte
	ihl         int // header length in bytes
}

// parseIPv4 parses pkt as an IPv4 packet. The egress policy treats a
// non-nil error as "drop this packet" (§4.4, §7); the pump's egress loop
// only skips its destination check on error and still forwards the packet.
func parseIPv4(pkt []byte) (ipv4Header, error) {
	if len(pkt) < 20 {
		return ipv4Header{}, fmt.Errorf("session: packet too short for ipv4 header")
	}
	if pkt[0]>>4 != 4 {
		return ipv4Header{}, fmt.Errorf("session: not ipv4 (version=%d)", pkt[0]>>4)
	}
	ihl := int(pkt[0]&0x0f) * 4
	if ihl < 20 || len(pkt) < ihl {
		return ipv4Header{}, fmt.Errorf("session: invalid ipv4 header length %d", ihl)
	}
	return ipv4Header{
		Source:      net.IP(append([]byte(nil), pkt[12:16]...)),
		Destination: net.IP(append([]byte(nil), pkt[16:20]...)),
		Protocol:    pkt[9],
		ihl:         ihl,
	}, nil
}

// destinationPort returns the destination port carried by a TCP or UDP
// segment following an IPv4 header of the given length. Both protocols
// place the destination port at the same two-byte offset.
func destinationPort(pkt []byte, h ipv4Header) (uint16, bool) {
	if h.Protocol != protoTCP && h.Protocol != protoUDP {
		return 0, false
	}
	if len(pkt) < h.ihl+4 {
		return 0, false
	}
	return binary.BigEndian.Uint16(pkt[h.ihl+2 : h.ihl+4]), true
}
