package config

import (
	"fmt"
	"net"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the exit datapath.
type Config struct {
	Hostname string `yaml:"hostname"`

	// NATInterface empty disables the VPN datapath entirely: SessionPump
	// parks until its context ends instead of touching the TUN or the pool.
	NATInterface string `yaml:"nat_interface"`

	CIDR string `yaml:"cidr"`

	Tun TunConfig `yaml:"tun"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`

	Egress EgressConfig `yaml:"egress"`

	ProxyHelper ProxyHelperConfig `yaml:"proxy_helper"`

	Metrics MetricsConfig `yaml:"metrics"`

	TraceLogging bool `yaml:"trace_logging"`
}

type TunConfig struct {
	Device string `yaml:"device"`
	MTU    int    `yaml:"mtu"`
}

// RateLimitConfig is the per-session throttle applied to the kernel→client
// direction. BytesPerSecond <= 0 means unlimited.
type RateLimitConfig struct {
	BytesPerSecond float64 `yaml:"bytes_per_second"`
	Burst          int     `yaml:"burst"`
}

type EgressConfig struct {
	BlackPorts    []int `yaml:"black_ports"`
	WhitePorts    []int `yaml:"white_ports"`
	PortWhitelist bool  `yaml:"port_whitelist"`
}

type ProxyHelperConfig struct {
	Listen string `yaml:"listen"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"` // empty disables the HTTP exporter
}

// Load reads and validates the YAML configuration at path, filling in
// defaults for anything left unset.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	c.applyDefaults()
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("validate config %q: %w", path, err)
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.CIDR == "" {
		c.CIDR = "100.64.0.0/10"
	}
	if c.Tun.Device == "" {
		c.Tun.Device = "tun-geph"
	}
	if c.Tun.MTU == 0 {
		c.Tun.MTU = 1500
	}
	if c.ProxyHelper.Listen == "" {
		c.ProxyHelper.Listen = "0.0.0.0:10000"
	}
	if c.Hostname == "" {
		if h, err := os.Hostname(); err == nil {
			c.Hostname = h
		} else {
			c.Hostname = "unknown"
		}
	}
}

func (c *Config) validate() error {
	if _, _, err := net.ParseCIDR(c.CIDR); err != nil {
		return fmt.Errorf("cidr %q: %w", c.CIDR, err)
	}
	if c.RateLimit.BytesPerSecond > 0 && c.RateLimit.Burst <= 0 {
		return fmt.Errorf("rate_limit.burst must be > 0 when bytes_per_second is set")
	}
	return nil
}

// StatKey returns the sampled bandwidth stat key for this exit
// (exit_usage.<hostname-with-dots-replaced-by-dashes>, §4.4).
func (c *Config) StatKey() string {
	return statKey(c.Hostname)
}

func statKey(hostname string) string {
	out := make([]byte, len(hostname))
	for i := 0; i < len(hostname); i++ {
		if hostname[i] == '.' {
			out[i] = '-'
		} else {
			out[i] = hostname[i]
		}
	}
	return "exit_usage." + string(out)
}
