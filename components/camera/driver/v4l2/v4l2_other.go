//go:build !linux

package v4l2

import (
	"context"

	"github.com/pkg/errors"

	"github.com/noegame/ROD/components/camera/driver"
	"github.com/noegame/ROD/logging"
)

// Driver is unavailable off linux.
type Driver struct {
	DevicePattern string
	BufferCount   int
}

// NewDriver returns a driver whose Open always fails.
func NewDriver() *Driver {
	return &Driver{}
}

// Open fails: V4L2 only exists on linux.
func (d *Driver) Open(ctx context.Context, index int, logger logging.Logger) (driver.Device, error) {
	return nil, errors.New("v4l2 capture is only available on linux")
}
