package session

import (
	"bytes"
	"net"
	"testing"
)

func TestClientHelloRoundTrip(t *testing.T) {
	raw := EncodeClientHello()
	msg, err := Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Type != MsgClientHello {
		t.Fatalf("got type %d, want MsgClientHello", msg.Type)
	}
}

func TestServerHelloRoundTrip(t *testing.T) {
	clientIP := net.ParseIP("100.64.7.7")
	gateway := net.ParseIP("100.64.0.1")

	raw, err := EncodeServerHello(clientIP, gateway)
	if err != nil {
		t.Fatal(err)
	}
	msg, err := Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Type != MsgServerHello {
		t.Fatalf("got type %d, want MsgServerHello", msg.Type)
	}
	if !msg.ClientIP.Equal(clientIP) {
		t.Errorf("ClientIP = %s, want %s", msg.ClientIP, clientIP)
	}
	if !msg.Gateway.Equal(gateway) {
		t.Errorf("Gateway = %s, want %s", msg.Gateway, gateway)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	pkt := []byte{0x45, 0x00, 0x00, 0x14, 1, 2, 3, 4}
	raw := EncodePayload(pkt)
	msg, err := Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Type != MsgPayload {
		t.Fatalf("got type %d, want MsgPayload", msg.Type)
	}
	if !bytes.Equal(msg.Payload, pkt) {
		t.Errorf("Payload = %v, want %v", msg.Payload, pkt)
	}
}

func TestDecodeUnknownTagFatalToCaller(t *testing.T) {
	if _, err := Decode([]byte{99}); err == nil {
		t.Fatal("expected error for unknown tag")
	}
}

func TestDecodeEmpty(t *testing.T) {
	if _, err := Decode(nil); err == nil {
		t.Fatal("expected error for empty message")
	}
}
