// Package v4l2 captures from Video4Linux2 devices.
package v4l2

import (
	"math"

	"github.com/noegame/ROD/components/camera/driver"
	"github.com/noegame/ROD/utils"
)

// V4L2 control ids, from linux/v4l2-controls.h.
const (
	cidBrightness         = 0x00980900
	cidContrast           = 0x00980901
	cidSaturation         = 0x00980902
	cidAutoWhiteBalance   = 0x0098090c
	cidGain               = 0x00980913
	cidWhiteBalanceTemp   = 0x0098091a
	cidSharpness          = 0x0098091b
	cidExposureAuto       = 0x009a0901
	cidExposureAbsolute   = 0x009a0902
	exposureManual        = 1
	exposureAperturePrior = 3
)

type controlRange struct {
	Name     string
	Min, Max int32
}

type controlValue struct {
	ID    uint32
	Name  string
	Value int32
}

// scale maps v from [lo, hi] onto the device range.
func (r controlRange) scale(v, lo, hi float64) int32 {
	t := (v - lo) / (hi - lo)
	t = math.Max(0, math.Min(1, t))
	return r.Min + int32(math.Round(t*float64(r.Max-r.Min)))
}

func (r controlRange) clamp(v int32) int32 {
	return int32(utils.ClampInt(int(v), int(r.Min), int(r.Max)))
}

// planControls turns the manual controls into V4L2 control writes for the controls the device
// exposes. It also returns the names of manual controls the device cannot honor.
func planControls(c driver.Controls, available map[uint32]controlRange) ([]controlValue, []string) {
	var plan []controlValue
	var unsupported []string

	set := func(id uint32, name string, value func(controlRange) int32) {
		r, ok := available[id]
		if !ok {
			unsupported = append(unsupported, name)
			return
		}
		plan = append(plan, controlValue{ID: id, Name: name, Value: value(r)})
	}

	if !c.AeEnable.IsAuto() || !c.ExposureTime.IsAuto() {
		mode := int32(exposureAperturePrior)
		if !c.AutoExposure() {
			mode = exposureManual
		}
		set(cidExposureAuto, "ae_enable", func(controlRange) int32 { return mode })
	}
	if us, ok := c.ExposureTime.Get(); ok && !c.AutoExposure() {
		// V4L2 absolute exposure is in units of 100µs.
		set(cidExposureAbsolute, "exposure_time_us", func(r controlRange) int32 { return r.clamp(int32(us / 100)) })
	}
	if gain, ok := c.AnalogueGain.Get(); ok {
		set(cidGain, "analogue_gain", func(r controlRange) int32 { return r.scale(gain, 1, 22.26) })
	}
	if v, ok := c.Brightness.Get(); ok {
		set(cidBrightness, "brightness", func(r controlRange) int32 { return r.scale(v, -1, 1) })
	}
	if v, ok := c.Contrast.Get(); ok {
		set(cidContrast, "contrast", func(r controlRange) int32 { return r.scale(v, 0, 32) })
	}
	if v, ok := c.Saturation.Get(); ok {
		set(cidSaturation, "saturation", func(r controlRange) int32 { return r.scale(v, 0, 32) })
	}
	if v, ok := c.Sharpness.Get(); ok {
		set(cidSharpness, "sharpness", func(r controlRange) int32 { return r.scale(v, 0, 16) })
	}
	if !c.AwbEnable.IsAuto() {
		awb := int32(0)
		if c.AutoWhiteBalance() {
			awb = 1
		}
		set(cidAutoWhiteBalance, "awb_enable", func(controlRange) int32 { return awb })
	}
	if k, ok := c.ColourTemperature.Get(); ok && !c.AutoWhiteBalance() {
		set(cidWhiteBalanceTemp, "colour_temperature", func(r controlRange) int32 { return r.clamp(int32(k)) })
	}
	if !c.NoiseReductionMode.IsAuto() {
		unsupported = append(unsupported, "noise_reduction_mode")
	}
	if !c.FrameDurationMin.IsAuto() || !c.FrameDurationMax.IsAuto() {
		unsupported = append(unsupported, "frame_duration")
	}
	return plan, unsupported
}
