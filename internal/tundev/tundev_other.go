//go:build !linux

package tundev

import (
	"context"
	"fmt"

	"github.com/delta4chat/geph4-exit/internal/routing"
)

// Device is a non-functional stand-in on platforms without a TUN/TAP
// driver compatible with the Linux ioctl path this package implements
// (§9: the datapath is Linux-only by design).
type Device struct{}

func Open(name string, mtu int, gatewayCIDR string, table *routing.Table) (*Device, error) {
	return nil, fmt.Errorf("tundev: TUN devices are only supported on linux")
}

func (d *Device) EnsureReady(ctx context.Context) error {
	return fmt.Errorf("tundev: TUN devices are only supported on linux")
}

func (d *Device) WriteRaw(ctx context.Context, pkt []byte) error {
	return fmt.Errorf("tundev: TUN devices are only supported on linux")
}

func (d *Device) Close() error { return nil }
