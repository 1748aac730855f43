package perception

import (
	"context"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"

	"github.com/noegame/ROD/components/camera/driver/emulated"
	"github.com/noegame/ROD/components/camera/driver/fake"
	"github.com/noegame/ROD/components/camera/driver/v4l2"
	"github.com/noegame/ROD/config"
	"github.com/noegame/ROD/logging"
	"github.com/noegame/ROD/vision/field"
)

func TestRecordsFrom(t *testing.T) {
	records := RecordsFrom([]field.WorldMarker{
		{ID: 4, World: r2.Point{X: 1000, Y: 1500}, Pixel: r2.Point{X: 300, Y: 240}, Angle: 0.5},
		{ID: 36, World: r2.Point{X: 12, Y: 34}, Pixel: r2.Point{X: 12, Y: 34}, Degraded: true},
	})
	test.That(t, records, test.ShouldResemble, []MarkerRecord{
		{ID: 4, X: 1000, Y: 1500, Angle: 0.5},
		{ID: 36, X: 12, Y: 34},
	})
	test.That(t, records[0].String(), test.ShouldEqual, "[4, 1000.0, 1500.0, 0.500]")
	test.That(t, RecordsFrom(nil), test.ShouldBeEmpty)
}

func TestLogSink(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	sink := &LogSink{Logger: logger}
	test.That(t, sink.Publish(context.Background(), 3, []MarkerRecord{{ID: 4, X: 1, Y: 2, Angle: 0}}), test.ShouldBeNil)
	test.That(t, sink.Publish(context.Background(), 4, nil), test.ShouldBeNil)

	entries := logs.FilterMessage("markers").All()
	test.That(t, entries, test.ShouldHaveLength, 2)
	test.That(t, entries[0].ContextMap()["records"], test.ShouldEqual, `[{"id":4,"x":1,"y":2,"angle":0}]`)
	test.That(t, entries[1].ContextMap()["records"], test.ShouldEqual, `[]`)
	test.That(t, entries[1].ContextMap()["frame"], test.ShouldEqual, uint64(4))
}

func TestNewDriver(t *testing.T) {
	cfg := config.Default().Camera

	drv, err := NewDriver(cfg)
	test.That(t, err, test.ShouldBeNil)
	_, ok := drv.(*v4l2.Driver)
	test.That(t, ok, test.ShouldBeTrue)

	cfg.Source = config.SourceEmulated
	cfg.SimulatedSourcePath = t.TempDir()
	drv, err = NewDriver(cfg)
	test.That(t, err, test.ShouldBeNil)
	_, ok = drv.(*emulated.Driver)
	test.That(t, ok, test.ShouldBeTrue)

	cfg.Source = config.SourceFake
	drv, err = NewDriver(cfg)
	test.That(t, err, test.ShouldBeNil)
	_, ok = drv.(*fake.Driver)
	test.That(t, ok, test.ShouldBeTrue)

	cfg.Source = "picamera"
	_, err = NewDriver(cfg)
	test.That(t, err, test.ShouldNotBeNil)
}
