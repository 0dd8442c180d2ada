package routing

import (
	"net"
	"testing"
)

func TestInsertGetInvalidate(t *testing.T) {
	tbl, err := New(16)
	if err != nil {
		t.Fatal(err)
	}
	addr := net.ParseIP("100.64.1.1")
	ch := make(chan []byte, 1)

	if _, ok := tbl.Get(addr); ok {
		t.Fatal("expected no entry before insert")
	}

	tbl.Insert(addr, ch)
	got, ok := tbl.Get(addr)
	if !ok {
		t.Fatal("expected entry after insert")
	}
	got <- []byte("hello")
	if string(<-ch) != "hello" {
		t.Fatal("sender did not route to the same channel")
	}

	tbl.Invalidate(addr)
	if _, ok := tbl.Get(addr); ok {
		t.Fatal("expected entry removed after invalidate")
	}
}

func TestInsertOverwrites(t *testing.T) {
	tbl, err := New(16)
	if err != nil {
		t.Fatal(err)
	}
	addr := net.ParseIP("100.64.1.1")
	first := make(chan []byte, 1)
	second := make(chan []byte, 1)

	tbl.Insert(addr, first)
	tbl.Insert(addr, second)

	got, ok := tbl.Get(addr)
	if !ok {
		t.Fatal("expected entry")
	}
	if got != Sender(second) {
		t.Fatal("expected second insert to win")
	}
}
