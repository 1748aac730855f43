package v4l2

import (
	"testing"

	"go.viam.com/test"

	"github.com/noegame/ROD/components/camera/driver"
)

func TestPlanControls(t *testing.T) {
	available := map[uint32]controlRange{
		cidExposureAuto:     {Name: "Auto Exposure", Min: 0, Max: 3},
		cidExposureAbsolute: {Name: "Exposure Time, Absolute", Min: 3, Max: 2047},
		cidGain:             {Name: "Gain", Min: 0, Max: 255},
		cidBrightness:       {Name: "Brightness", Min: -64, Max: 64},
	}
	controls := driver.Controls{
		AeEnable:           driver.Manual(false),
		ExposureTime:       driver.Manual(8000),
		AnalogueGain:       driver.Manual(22.26),
		Brightness:         driver.Manual(0.0),
		Saturation:         driver.Manual(1.0),
		NoiseReductionMode: driver.Manual(driver.NoiseReductionFast),
	}
	plan, unsupported := planControls(controls, available)

	values := map[uint32]int32{}
	for _, c := range plan {
		values[c.ID] = c.Value
	}
	test.That(t, values[cidExposureAuto], test.ShouldEqual, int32(exposureManual))
	test.That(t, values[cidExposureAbsolute], test.ShouldEqual, int32(80))
	test.That(t, values[cidGain], test.ShouldEqual, int32(255))
	test.That(t, values[cidBrightness], test.ShouldEqual, int32(0))
	test.That(t, unsupported, test.ShouldResemble, []string{"saturation", "noise_reduction_mode"})
}

func TestPlanControlsAuto(t *testing.T) {
	plan, unsupported := planControls(driver.Controls{}, map[uint32]controlRange{cidGain: {Min: 0, Max: 10}})
	test.That(t, plan, test.ShouldBeEmpty)
	test.That(t, unsupported, test.ShouldBeEmpty)

	// Manual exposure with auto exposure left on is not written.
	plan, _ = planControls(driver.Controls{ExposureTime: driver.Manual(5000)}, map[uint32]controlRange{
		cidExposureAuto:     {Min: 0, Max: 3},
		cidExposureAbsolute: {Min: 1, Max: 5000},
	})
	test.That(t, plan, test.ShouldHaveLength, 1)
	test.That(t, plan[0].ID, test.ShouldEqual, uint32(cidExposureAuto))
	test.That(t, plan[0].Value, test.ShouldEqual, int32(exposureAperturePrior))
}
