package fake

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/noegame/ROD/components/camera/driver"
	"github.com/noegame/ROD/logging"
)

func TestFakeDevice(t *testing.T) {
	logger := logging.NewTestLogger(t)
	drv := NewDriver(Config{BufferCount: 2, RowPadding: 4})
	dev, err := drv.Open(context.Background(), 0, logger)
	test.That(t, err, test.ShouldBeNil)

	stream, err := dev.Configure(driver.StreamConfig{Width: 8, Height: 4})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, stream.Stride, test.ShouldEqual, 28)
	test.That(t, stream.BufferCount, test.ShouldEqual, 2)

	bufs, err := dev.Allocate()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, bufs, test.ShouldHaveLength, 2)
	test.That(t, bufs[0].Data, test.ShouldHaveLength, 28*3+24)

	var got []driver.Completion
	test.That(t, dev.Queue(0), test.ShouldNotBeNil)
	test.That(t, dev.Start(driver.Controls{}, func(c driver.Completion) { got = append(got, c) }), test.ShouldBeNil)
	test.That(t, dev.Queue(0), test.ShouldBeNil)
	test.That(t, dev.Queue(0), test.ShouldNotBeNil)
	test.That(t, dev.Queue(1), test.ShouldBeNil)

	fd := drv.Last()
	test.That(t, fd.CompleteNext(), test.ShouldBeTrue)
	test.That(t, got, test.ShouldHaveLength, 1)
	test.That(t, got[0].Slot, test.ShouldEqual, 0)
	test.That(t, got[0].Status, test.ShouldEqual, driver.StatusSuccess)
	test.That(t, bufs[0].Data[0], test.ShouldEqual, byte(1))

	test.That(t, dev.Stop(), test.ShouldBeNil)
	test.That(t, got, test.ShouldHaveLength, 2)
	test.That(t, got[1].Slot, test.ShouldEqual, 1)
	test.That(t, got[1].Status, test.ShouldEqual, driver.StatusCancelled)
	test.That(t, fd.CompleteNext(), test.ShouldBeFalse)

	test.That(t, dev.Free(), test.ShouldBeNil)
	test.That(t, dev.Close(), test.ShouldBeNil)
	test.That(t, fd.Closed(), test.ShouldBeTrue)
}

func TestFakeFailureInjection(t *testing.T) {
	logger := logging.NewTestLogger(t)
	openErr := errors.New("no camera")
	_, err := NewDriver(Config{OpenErr: openErr}).Open(context.Background(), 0, logger)
	test.That(t, err, test.ShouldEqual, openErr)

	dev, err := NewDriver(Config{ConfigureErr: errors.New("bad format")}).Open(context.Background(), 0, logger)
	test.That(t, err, test.ShouldBeNil)
	_, err = dev.Configure(driver.StreamConfig{Width: 8, Height: 8})
	test.That(t, err, test.ShouldNotBeNil)
}
