package driver

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// NoiseReductionMode selects the sensor pipeline's denoiser.
type NoiseReductionMode int

// The supported noise reduction modes.
const (
	NoiseReductionOff NoiseReductionMode = iota
	NoiseReductionFast
	NoiseReductionHighQuality
	NoiseReductionMinimal
	NoiseReductionZSL
)

// Controls are the sensor controls applied when capture starts. Every field defaults to auto.
// Manual exposure is only honored with auto exposure disabled, and manual colour temperature only
// with auto white balance disabled.
type Controls struct {
	AeEnable           Setting[bool]               `json:"ae_enable"`
	ExposureTime       Setting[int]                `json:"exposure_time_us"`
	AnalogueGain       Setting[float64]            `json:"analogue_gain"`
	NoiseReductionMode Setting[NoiseReductionMode] `json:"noise_reduction_mode"`
	Sharpness          Setting[float64]            `json:"sharpness"`
	Contrast           Setting[float64]            `json:"contrast"`
	Brightness         Setting[float64]            `json:"brightness"`
	Saturation         Setting[float64]            `json:"saturation"`
	AwbEnable          Setting[bool]               `json:"awb_enable"`
	ColourTemperature  Setting[int]                `json:"colour_temperature"`
	FrameDurationMin   Setting[int64]              `json:"frame_duration_min_us"`
	FrameDurationMax   Setting[int64]              `json:"frame_duration_max_us"`
}

// AutoExposure reports whether the device runs its exposure loop.
func (c Controls) AutoExposure() bool {
	return c.AeEnable.Or(true)
}

// AutoWhiteBalance reports whether the device runs its white balance loop.
func (c Controls) AutoWhiteBalance() bool {
	return c.AwbEnable.Or(true)
}

func checkRange[T int | int64 | float64](errs *[]error, name string, s Setting[T], lo, hi T) {
	if v, ok := s.Get(); ok && (v < lo || v > hi) {
		*errs = append(*errs, errors.Errorf("%s %v out of range [%v, %v]", name, v, lo, hi))
	}
}

// Validate checks every manual control against the sensor's supported range.
func (c Controls) Validate() error {
	var errs []error
	checkRange(&errs, "exposure_time_us", c.ExposureTime, 1, 1<<30)
	checkRange(&errs, "analogue_gain", c.AnalogueGain, 1.0, 22.26)
	checkRange(&errs, "sharpness", c.Sharpness, 0, 16)
	checkRange(&errs, "contrast", c.Contrast, 0, 32)
	checkRange(&errs, "brightness", c.Brightness, -1, 1)
	checkRange(&errs, "saturation", c.Saturation, 0, 32)
	checkRange(&errs, "colour_temperature", c.ColourTemperature, 1000, 20000)
	checkRange(&errs, "frame_duration_min_us", c.FrameDurationMin, 1, 1e9)
	checkRange(&errs, "frame_duration_max_us", c.FrameDurationMax, 1, 1e9)
	if mode, ok := c.NoiseReductionMode.Get(); ok && (mode < NoiseReductionOff || mode > NoiseReductionZSL) {
		errs = append(errs, errors.Errorf("noise_reduction_mode %d out of range [0, 4]", mode))
	}
	minD, minOK := c.FrameDurationMin.Get()
	maxD, maxOK := c.FrameDurationMax.Get()
	if minOK && maxOK && minD > maxD {
		errs = append(errs, errors.Errorf("frame_duration_min_us %d exceeds frame_duration_max_us %d", minD, maxD))
	}
	return multierr.Combine(errs...)
}
