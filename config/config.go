// Package config defines the structures to configure the perception process.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/noegame/ROD/components/camera/capture"
	"github.com/noegame/ROD/components/camera/driver"
	"github.com/noegame/ROD/logging"
	"github.com/noegame/ROD/rimage"
	"github.com/noegame/ROD/rimage/transform"
	"github.com/noegame/ROD/vision/fiducial"
	"github.com/noegame/ROD/vision/field"
	"github.com/noegame/ROD/vision/playground"
)

// DefaultSocketPath is where detections are published by default.
const DefaultSocketPath = "/tmp/rod_detection.sock"

// Config is the whole perception configuration.
type Config struct {
	ConfigFilePath string `json:"-"`

	Camera      CameraConfig      `json:"camera"`
	Calibration CalibrationConfig `json:"calibration"`
	Field       field.Config      `json:"field"`
	Detection   DetectionConfig   `json:"detection"`
	Playground  PlaygroundConfig  `json:"playground"`
	IPC         IPCConfig         `json:"ipc"`
	LogLevel    string            `json:"log_level"`
	// LogFile, when set, also writes logs to a rotated file.
	LogFile string `json:"log_file,omitempty"`
}

// Default returns the competition configuration.
func Default() *Config {
	return &Config{
		Camera: CameraConfig{
			Source:         SourceV4L2,
			Width:          640,
			Height:         480,
			FrameInterval:  Duration(100 * time.Millisecond),
			CaptureTimeout: Duration(time.Second),
			StopGrace:      Duration(capture.DefaultStopGrace),
			DropPolicy:     capture.DropOldest,
		},
		Calibration: DefaultCalibration(),
		Field:       field.DefaultConfig(),
		Detection: DetectionConfig{
			PreprocessOptions: fiducial.DefaultPreprocessOptions(),
			Aruco:             fiducial.DefaultDetectorParams(),
		},
		Playground: PlaygroundConfig{Mode: playground.ModeRigid},
		IPC:        IPCConfig{SocketPath: DefaultSocketPath},
		LogLevel:   "info",
	}
}

// Validate ensures all parts of the config are valid.
func (c *Config) Validate() error {
	if err := c.Camera.Validate("camera"); err != nil {
		return err
	}
	if err := c.Calibration.Validate("calibration"); err != nil {
		return err
	}
	if err := c.Field.Validate(); err != nil {
		return utils.NewConfigValidationError("field", err)
	}
	if err := c.Detection.Validate("detection"); err != nil {
		return err
	}
	if err := c.Playground.Validate("playground"); err != nil {
		return err
	}
	if err := c.IPC.Validate("ipc"); err != nil {
		return err
	}
	if _, err := logging.LevelFromString(c.LogLevel); err != nil {
		return utils.NewConfigValidationError("log_level", err)
	}
	return nil
}

// Level returns the configured log level.
func (c *Config) Level() logging.Level {
	level, err := logging.LevelFromString(c.LogLevel)
	if err != nil {
		return logging.INFO
	}
	return level
}

// FieldConfig returns the field description with the calibrated camera attached, rescaled from
// the calibration size to the capture resolution.
func (c *Config) FieldConfig() (field.Config, error) {
	camera, err := c.Calibration.CameraModel()
	if err != nil {
		return field.Config{}, err
	}
	cfg := c.Field
	cfg.Camera = camera.ScaledTo(c.Camera.Width, c.Camera.Height)
	return cfg, nil
}

// Source names a capture backend.
type Source string

// The capture backends.
const (
	SourceV4L2     = Source("v4l2")
	SourceEmulated = Source("emulated")
	SourceFake     = Source("fake")
)

// CameraConfig configures capture.
type CameraConfig struct {
	Source      Source             `json:"source"`
	Index       int                `json:"index"`
	Width       int                `json:"width"`
	Height      int                `json:"height"`
	Format      rimage.PixelFormat `json:"format,omitempty"`
	BufferCount int                `json:"buffer_count,omitempty"`
	Controls    driver.Controls    `json:"controls"`

	// SimulatedSourcePath is the image folder replayed by the emulated source.
	SimulatedSourcePath string `json:"simulated_source_path"`
	// FrameInterval paces the emulated and fake sources.
	FrameInterval  Duration           `json:"frame_interval"`
	CaptureTimeout Duration           `json:"capture_timeout"`
	StopGrace      Duration           `json:"stop_grace"`
	DropPolicy     capture.DropPolicy `json:"drop_policy"`
}

// Validate ensures all parts of the config are valid.
func (c *CameraConfig) Validate(path string) error {
	switch c.Source {
	case SourceV4L2, SourceFake:
	case SourceEmulated:
		if c.SimulatedSourcePath == "" {
			return utils.NewConfigValidationFieldRequiredError(path, "simulated_source_path")
		}
	case "":
		return utils.NewConfigValidationFieldRequiredError(path, "source")
	default:
		return utils.NewConfigValidationError(path, errors.Errorf("unknown camera source %q", c.Source))
	}
	if c.Index < 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("index must be non-negative, got %d", c.Index))
	}
	if c.Width <= 0 || c.Height <= 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("resolution must be positive, got %dx%d", c.Width, c.Height))
	}
	switch c.Format {
	case "", rimage.PixelFormatBGR888, rimage.PixelFormatYUYV, rimage.PixelFormatMJPEG:
	default:
		return utils.NewConfigValidationError(path, errors.Errorf("unknown pixel format %q", c.Format))
	}
	if c.BufferCount < 0 {
		return utils.NewConfigValidationError(path, errors.New("buffer_count must be non-negative"))
	}
	if err := c.Controls.Validate(); err != nil {
		return utils.NewConfigValidationError(fmt.Sprintf("%s.%s", path, "controls"), err)
	}
	if c.CaptureTimeout <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "capture_timeout")
	}
	if c.FrameInterval < 0 || c.StopGrace < 0 {
		return utils.NewConfigValidationError(path, errors.New("durations must be non-negative"))
	}
	if c.DropPolicy != "" && !c.DropPolicy.Valid() {
		return utils.NewConfigValidationError(path, errors.Errorf("unknown drop_policy %q", c.DropPolicy))
	}
	return nil
}

// CalibrationConfig is the lens calibration.
type CalibrationConfig struct {
	Intrinsics           *transform.PinholeCameraIntrinsics `json:"intrinsic_parameters"`
	DistortionModel      transform.DistortionType           `json:"distortion_model"`
	DistortionParameters []float64                          `json:"distortion_parameters"`
}

// DefaultCalibration returns the calibration of the competition fisheye camera.
func DefaultCalibration() CalibrationConfig {
	camera := transform.DefaultCompetitionCamera()
	return CalibrationConfig{
		Intrinsics:           camera.PinholeCameraIntrinsics,
		DistortionModel:      camera.Distortion.ModelType(),
		DistortionParameters: camera.Distortion.Parameters(),
	}
}

// CameraModel builds the camera model. Without intrinsics no undistortion is done and nil is
// returned.
func (c *CalibrationConfig) CameraModel() (*transform.PinholeCameraModel, error) {
	if c.Intrinsics == nil {
		return nil, nil
	}
	distortion, err := transform.NewDistorter(c.DistortionModel, c.DistortionParameters)
	if err != nil {
		return nil, err
	}
	model := &transform.PinholeCameraModel{PinholeCameraIntrinsics: c.Intrinsics, Distortion: distortion}
	if err := model.CheckValid(); err != nil {
		return nil, err
	}
	return model, nil
}

// Validate ensures all parts of the config are valid.
func (c *CalibrationConfig) Validate(path string) error {
	if c.Intrinsics == nil {
		if c.DistortionModel != "" && c.DistortionModel != transform.NoDistortionType {
			return utils.NewConfigValidationFieldRequiredError(path, "intrinsic_parameters")
		}
		return nil
	}
	if _, err := c.CameraModel(); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	return nil
}

// DetectionConfig tunes marker detection.
type DetectionConfig struct {
	fiducial.PreprocessOptions
	Aruco fiducial.DetectorParams `json:"aruco"`
}

// Validate ensures all parts of the config are valid.
func (c *DetectionConfig) Validate(path string) error {
	if c.ScaleFactor <= 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("scale_factor must be positive, got %v", c.ScaleFactor))
	}
	if c.SharpenSigma < 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("sharpen_sigma must be non-negative, got %v", c.SharpenSigma))
	}
	if err := c.Aruco.Validate(); err != nil {
		return utils.NewConfigValidationError(fmt.Sprintf("%s.%s", path, "aruco"), err)
	}
	return nil
}

// PlaygroundConfig enables the 3D playground refinement.
type PlaygroundConfig struct {
	Enabled bool            `json:"enabled"`
	Mode    playground.Mode `json:"mode"`
}

// Validate ensures all parts of the config are valid.
func (c *PlaygroundConfig) Validate(path string) error {
	if c.Mode != "" && !c.Mode.Valid() {
		return utils.NewConfigValidationError(path, errors.Errorf("unknown mode %q", c.Mode))
	}
	return nil
}

// IPCConfig locates the detection consumer.
type IPCConfig struct {
	SocketPath string `json:"socket_path"`
}

// Validate ensures all parts of the config are valid.
func (c *IPCConfig) Validate(path string) error {
	if c.SocketPath == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "socket_path")
	}
	return nil
}

// Duration is a time.Duration written as a string such as "100ms" in JSON. Bare numbers are
// nanoseconds.
type Duration time.Duration

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalJSON encodes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts a duration string or a number of nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte(`"`)) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return errors.Wrapf(err, "invalid duration %q", s)
		}
		*d = Duration(parsed)
		return nil
	}
	var ns int64
	if err := json.Unmarshal(data, &ns); err != nil {
		return errors.Wrap(err, "duration must be a string or a number of nanoseconds")
	}
	*d = Duration(ns)
	return nil
}
