package perception

import (
	"github.com/pkg/errors"

	"github.com/noegame/ROD/components/camera/driver"
	"github.com/noegame/ROD/components/camera/driver/emulated"
	"github.com/noegame/ROD/components/camera/driver/fake"
	"github.com/noegame/ROD/components/camera/driver/v4l2"
	"github.com/noegame/ROD/config"
)

// NewDriver returns the capture driver selected by cfg.
func NewDriver(cfg config.CameraConfig) (driver.Driver, error) {
	switch cfg.Source {
	case config.SourceV4L2:
		d := v4l2.NewDriver()
		if cfg.BufferCount > 0 {
			d.BufferCount = cfg.BufferCount
		}
		return d, nil
	case config.SourceEmulated:
		return emulated.NewDriver(emulated.Config{
			Path:          cfg.SimulatedSourcePath,
			FrameInterval: cfg.FrameInterval.Std(),
			BufferCount:   cfg.BufferCount,
		}), nil
	case config.SourceFake:
		interval := cfg.FrameInterval.Std()
		if interval <= 0 {
			interval = emulated.DefaultFrameInterval
		}
		return fake.NewDriver(fake.Config{
			BufferCount:   cfg.BufferCount,
			Format:        cfg.Format,
			FrameInterval: interval,
		}), nil
	default:
		return nil, errors.Errorf("unknown camera source %q", cfg.Source)
	}
}
