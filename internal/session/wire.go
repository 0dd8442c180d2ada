// Wire encoding for VPN messages exchanged over the multiplexed
// transport's unreliable substream (§3, §6). The encoding is a compact,
// fixed-endian, tag-prefixed scheme: one byte of tag followed by a
// tag-specific body. Payload frames carry no internal length prefix —
// each transport datagram is already exactly one message, so framing
// comes from the envelope, not from the wire format.
package session

import (
	"encoding/binary"
	"fmt"
	"net"
)

// MessageType is the wire tag of a VpnMessage variant.
type MessageType byte

const (
	MsgClientHello MessageType = 0
	MsgServerHello MessageType = 1
	MsgPayload     MessageType = 2
)

// Message is the decoded form of one VPN wire message.
type Message struct {
	Type MessageType

	// Populated only when Type == MsgServerHello.
	ClientIP net.IP
	Gateway  net.IP

	// Populated only when Type == MsgPayload. Aliases the decode input;
	// callers that retain it beyond the current iteration must copy.
	Payload []byte
}

// EncodeClientHello encodes an opening address-assignment request.
// Fields beyond the tag are ignored by the core on decode, so the
// encoder emits none.
func EncodeClientHello() []byte {
	return []byte{byte(MsgClientHello)}
}

// EncodeServerHello encodes the assigned address and gateway (§3).
func EncodeServerHello(clientIP, gateway net.IP) ([]byte, error) {
	c4, g4 := clientIP.To4(), gateway.To4()
	if c4 == nil || g4 == nil {
		return nil, fmt.Errorf("session: ServerHello requires IPv4 addresses")
	}
	out := make([]byte, 1+4+4)
	out[0] = byte(MsgServerHello)
	copy(out[1:5], c4)
	copy(out[5:9], g4)
	return out, nil
}

// EncodePayload wraps a raw IPv4 packet as a Payload message.
func EncodePayload(pkt []byte) []byte {
	out := make([]byte, 1+len(pkt))
	out[0] = byte(MsgPayload)
	copy(out[1:], pkt)
	return out
}

// Decode parses one wire message. An unrecognized tag is a session-fatal
// condition the caller must propagate (§3, §7).
func Decode(raw []byte) (Message, error) {
	if len(raw) < 1 {
		return Message{}, fmt.Errorf("session: empty message")
	}
	switch MessageType(raw[0]) {
	case MsgClientHello:
		return Message{Type: MsgClientHello}, nil
	case MsgServerHello:
		if len(raw) < 9 {
			return Message{}, fmt.Errorf("session: short ServerHello")
		}
		return Message{
			Type:     MsgServerHello,
			ClientIP: net.IP(append([]byte(nil), raw[1:5]...)),
			Gateway:  net.IP(append([]byte(nil), raw[5:9]...)),
		}, nil
	case MsgPayload:
		return Message{Type: MsgPayload, Payload: raw[1:]}, nil
	default:
		return Message{}, fmt.Errorf("session: unknown message tag %d", raw[0])
	}
}

// ipToUint32 is a small helper the pump uses for its egress destination
// comparison against a fixed-endian representation.
func ipToUint32(ip net.IP) (uint32, bool) {
	v4 := ip.To4()
	if v4 == nil {
		return 0, false
	}
	return binary.BigEndian.Uint32(v4), true
}
