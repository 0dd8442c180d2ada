package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "exit.yaml")
	if err := os.WriteFile(path, []byte("nat_interface: eth0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.CIDR != "100.64.0.0/10" {
		t.Errorf("CIDR default = %q", c.CIDR)
	}
	if c.Tun.Device != "tun-geph" {
		t.Errorf("Tun.Device default = %q", c.Tun.Device)
	}
	if c.Tun.MTU != 1500 {
		t.Errorf("Tun.MTU default = %d", c.Tun.MTU)
	}
	if c.ProxyHelper.Listen != "0.0.0.0:10000" {
		t.Errorf("ProxyHelper.Listen default = %q", c.ProxyHelper.Listen)
	}
	if c.NATInterface != "eth0" {
		t.Errorf("NATInterface = %q, want eth0", c.NATInterface)
	}
}

func TestLoadInvalidCIDR(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "exit.yaml")
	if err := os.WriteFile(path, []byte("cidr: not-a-cidr\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid cidr")
	}
}

func TestStatKey(t *testing.T) {
	cases := map[string]string{
		"exit1.geph.io": "exit_usage.exit1-geph-io",
		"plainhost":     "exit_usage.plainhost",
		"":              "exit_usage.",
	}
	for host, want := range cases {
		c := &Config{Hostname: host}
		if got := c.StatKey(); got != want {
			t.Errorf("StatKey(%q) = %q, want %q", host, got, want)
		}
	}
}
