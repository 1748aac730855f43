package driver

import (
	"encoding/json"
	"testing"

	"go.viam.com/test"
)

func TestSettingJSON(t *testing.T) {
	var c Controls
	err := json.Unmarshal([]byte(`{
		"ae_enable": false,
		"exposure_time_us": 8000,
		"analogue_gain": "auto",
		"brightness": -1,
		"awb_enable": null,
		"noise_reduction_mode": 2
	}`), &c)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, c.AutoExposure(), test.ShouldBeFalse)
	exposure, ok := c.ExposureTime.Get()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, exposure, test.ShouldEqual, 8000)
	test.That(t, c.AnalogueGain.IsAuto(), test.ShouldBeTrue)
	test.That(t, c.AutoWhiteBalance(), test.ShouldBeTrue)
	test.That(t, c.Sharpness.IsAuto(), test.ShouldBeTrue)

	// -1 is a legitimate manual brightness, distinct from auto.
	brightness, ok := c.Brightness.Get()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, brightness, test.ShouldEqual, -1.0)
	test.That(t, c.NoiseReductionMode.Or(NoiseReductionOff), test.ShouldEqual, NoiseReductionHighQuality)
	test.That(t, c.Validate(), test.ShouldBeNil)

	out, err := json.Marshal(c.AnalogueGain)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(out), test.ShouldEqual, `"auto"`)
	out, err = json.Marshal(c.ExposureTime)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(out), test.ShouldEqual, `8000`)
}

func TestSettingRejectsUnknownKeyword(t *testing.T) {
	var s Setting[float64]
	err := json.Unmarshal([]byte(`"manual"`), &s)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "manual")

	err = json.Unmarshal([]byte(`[1]`), &s)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestControlsValidate(t *testing.T) {
	c := Controls{
		AnalogueGain:       Manual(40.0),
		Brightness:         Manual(-2.0),
		NoiseReductionMode: Manual(NoiseReductionMode(9)),
		FrameDurationMin:   Manual[int64](50000),
		FrameDurationMax:   Manual[int64](10000),
	}
	err := c.Validate()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "analogue_gain")
	test.That(t, err.Error(), test.ShouldContainSubstring, "brightness")
	test.That(t, err.Error(), test.ShouldContainSubstring, "noise_reduction_mode")
	test.That(t, err.Error(), test.ShouldContainSubstring, "exceeds")

	test.That(t, Controls{}.Validate(), test.ShouldBeNil)
	test.That(t, Auto[int]().String(), test.ShouldEqual, "auto")
	test.That(t, Manual(3).String(), test.ShouldEqual, "3")
}
