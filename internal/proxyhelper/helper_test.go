package proxyhelper

import (
	"testing"
)

// clientID is exercised directly rather than through Run/handle: the
// SO_ORIGINAL_DST path requires a genuinely iptables-redirected
// connection, which isn't reproducible in a unit test.
func TestClientIDStableForSamePeer(t *testing.T) {
	h, err := New(nil)
	if err != nil {
		t.Fatal(err)
	}

	first := h.clientID("203.0.113.5")
	second := h.clientID("203.0.113.5")
	if first != second {
		t.Fatalf("expected stable client id for repeat peer, got %d then %d", first, second)
	}

	other := h.clientID("203.0.113.6")
	if other == first {
		t.Fatalf("expected distinct peers to get distinct ids (collision is astronomically unlikely here)")
	}
}

func TestClientIDCacheSizeIsAtLeastRouteTableFloor(t *testing.T) {
	if ClientIDCacheSize < 1_000_000 {
		t.Fatalf("ClientIDCacheSize = %d, want >= 1,000,000", ClientIDCacheSize)
	}
}
