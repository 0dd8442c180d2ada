// Egress policy gate: the destination filters applied to client-
// originated packets before they reach the TUN (§4.4, §6, glossary).
package session

import "net"

// QUICSuppressPort is the UDP destination port dropped to keep QUIC's
// loss recovery from fighting the lossy outer tunnel (§4.4).
const QUICSuppressPort = 443

// PortTables is the externally supplied, immutable set of port
// classifications consulted by the egress policy (§6, §9).
type PortTables struct {
	Black         map[uint16]struct{}
	White         map[uint16]struct{}
	PortWhitelist bool
}

// NewPortTables builds a PortTables from plain port-number slices.
func NewPortTables(black, white []int, whitelist bool) PortTables {
	t := PortTables{
		Black:         make(map[uint16]struct{}, len(black)),
		White:         make(map[uint16]struct{}, len(white)),
		PortWhitelist: whitelist,
	}
	for _, p := range black {
		t.Black[uint16(p)] = struct{}{}
	}
	for _, p := range white {
		t.White[uint16(p)] = struct{}{}
	}
	return t
}

// egressAllowed reports whether a client-originated IPv4 packet may be
// written to the TUN, per §4.4. The caller has already confirmed pkt is
// IPv4 (version nibble 4) before calling this; a parse failure here means
// a malformed header and is a drop, matching "unparseable -> drop" in
// §4.4's ingress-branch pseudocode. Every rejection is a silent drop,
// never an error.
func egressAllowed(pkt []byte, assigned net.IP, tables PortTables) bool {
	h, err := parseIPv4(pkt)
	if err != nil {
		return false
	}

	if !h.Source.Equal(assigned) {
		return false
	}
	if isBlockedDestination(h.Destination) {
		return false
	}

	port, ok := destinationPort(pkt, h)
	if !ok {
		return true
	}
	if h.Protocol == protoUDP && port == QUICSuppressPort {
		return false
	}
	if _, blocked := tables.Black[port]; blocked {
		return false
	}
	if tables.PortWhitelist {
		if _, allowed := tables.White[port]; !allowed {
			return false
		}
	}
	return true
}

func isBlockedDestination(dst net.IP) bool {
	if dst.IsLoopback() || dst.IsUnspecified() {
		return true
	}
	if dst.Equal(net.IPv4bcast) {
		return true
	}
	return isPrivateRFC1918(dst)
}

func isPrivateRFC1918(ip net.IP) bool {
	v4 := ip.To4()
	if v4 == nil {
		return false
	}
	switch {
	case v4[0] == 10:
		return true
	case v4[0] == 172 && v4[1] >= 16 && v4[1] <= 31:
		return true
	case v4[0] == 192 && v4[1] == 168:
		return true
	default:
		return false
	}
}
