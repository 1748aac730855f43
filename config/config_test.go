package config

import (
	"encoding/json"
	"testing"
	"time"

	"go.viam.com/test"

	"github.com/noegame/ROD/components/camera/capture"
	"github.com/noegame/ROD/logging"
	"github.com/noegame/ROD/rimage/transform"
	"github.com/noegame/ROD/vision/playground"
)

func TestDefaultValid(t *testing.T) {
	cfg := Default()
	test.That(t, cfg.Validate(), test.ShouldBeNil)
	test.That(t, cfg.Camera.Width, test.ShouldEqual, 640)
	test.That(t, cfg.Camera.Height, test.ShouldEqual, 480)
	test.That(t, cfg.Camera.StopGrace.Std(), test.ShouldEqual, capture.DefaultStopGrace)
	test.That(t, cfg.Camera.DropPolicy, test.ShouldEqual, capture.DropOldest)
	test.That(t, cfg.Camera.Controls.AutoExposure(), test.ShouldBeTrue)
	test.That(t, cfg.IPC.SocketPath, test.ShouldEqual, "/tmp/rod_detection.sock")
	test.That(t, cfg.Playground.Mode, test.ShouldEqual, playground.ModeRigid)
	test.That(t, cfg.Level(), test.ShouldEqual, logging.INFO)

	fieldCfg, err := cfg.FieldConfig()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, fieldCfg.Camera.Distortion.ModelType(), test.ShouldEqual, transform.KannalaBrandtDistortionType)
	// The 4000x4000 calibration is rescaled to the 640x480 capture.
	test.That(t, fieldCfg.Camera.Width, test.ShouldEqual, 640)
	test.That(t, fieldCfg.Camera.Height, test.ShouldEqual, 480)
	test.That(t, fieldCfg.Camera.Fx, test.ShouldAlmostEqual, 2493.62477*640/4000)
	test.That(t, fieldCfg.Camera.Fy, test.ShouldAlmostEqual, 2493.11358*480/4000)
	test.That(t, fieldCfg.Camera.Ppx, test.ShouldAlmostEqual, 1977.18701*640/4000)
	test.That(t, fieldCfg.Camera.Ppy, test.ShouldAlmostEqual, 2034.91176*480/4000)
	test.That(t, transform.DefaultCompetitionCamera().Fx, test.ShouldEqual, 2493.62477)
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name   string
		mutate func(*Config)
		errStr string
	}{
		{"no source", func(c *Config) { c.Camera.Source = "" }, `"source" is required`},
		{"bad source", func(c *Config) { c.Camera.Source = "picamera" }, "unknown camera source"},
		{"emulated without path", func(c *Config) { c.Camera.Source = SourceEmulated }, `"simulated_source_path" is required`},
		{"resolution", func(c *Config) { c.Camera.Width = 0 }, "resolution must be positive"},
		{"format", func(c *Config) { c.Camera.Format = "NV12" }, "unknown pixel format"},
		{"timeout", func(c *Config) { c.Camera.CaptureTimeout = 0 }, `"capture_timeout" is required`},
		{"drop policy", func(c *Config) { c.Camera.DropPolicy = "newest" }, "unknown drop_policy"},
		{"distortion", func(c *Config) {
			c.Calibration.DistortionParameters = []float64{1, 2, 3, 4, 5}
		}, "calibration"},
		{"field", func(c *Config) { c.Field.FixedMarkers = nil }, "4 fixed markers"},
		{"scale", func(c *Config) { c.Detection.ScaleFactor = 0 }, "scale_factor"},
		{"aruco", func(c *Config) { c.Detection.Aruco.Dictionary = "6x6_250" }, "detection.aruco"},
		{"mode", func(c *Config) { c.Playground.Mode = "affine" }, "unknown mode"},
		{"socket", func(c *Config) { c.IPC.SocketPath = "" }, `"socket_path" is required`},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.errStr)
		})
	}
}

func TestCalibrationWithoutIntrinsics(t *testing.T) {
	c := CalibrationConfig{}
	test.That(t, c.Validate("calibration"), test.ShouldBeNil)
	model, err := c.CameraModel()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, model, test.ShouldBeNil)

	c.DistortionModel = transform.BrownConradyDistortionType
	test.That(t, c.Validate("calibration").Error(), test.ShouldContainSubstring, `"intrinsic_parameters" is required`)
}

func TestDuration(t *testing.T) {
	var d Duration
	test.That(t, json.Unmarshal([]byte(`"250ms"`), &d), test.ShouldBeNil)
	test.That(t, d.Std(), test.ShouldEqual, 250*time.Millisecond)
	test.That(t, json.Unmarshal([]byte(`1000`), &d), test.ShouldBeNil)
	test.That(t, d.Std(), test.ShouldEqual, time.Microsecond)
	test.That(t, json.Unmarshal([]byte(`"soon"`), &d), test.ShouldNotBeNil)
	test.That(t, json.Unmarshal([]byte(`true`), &d), test.ShouldNotBeNil)

	out, err := json.Marshal(Duration(1500 * time.Millisecond))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(out), test.ShouldEqual, `"1.5s"`)
}
