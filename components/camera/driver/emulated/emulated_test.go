package emulated

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"github.com/noegame/ROD/components/camera/capture"
	"github.com/noegame/ROD/components/camera/driver"
	"github.com/noegame/ROD/logging"
	"github.com/noegame/ROD/rimage"
)

func writeSolid(t *testing.T, path string, c color.NRGBA) {
	t.Helper()
	img := imaging.New(64, 48, c)
	test.That(t, imaging.Save(img, path), test.ShouldBeNil)
}

func centerColor(t testing.TB, f *rimage.Frame) color.NRGBA {
	img, err := f.Image()
	test.That(t, err, test.ShouldBeNil)
	return color.NRGBAModel.Convert(img.At(f.Width/2, f.Height/2)).(color.NRGBA)
}

func TestListImages(t *testing.T) {
	dir := t.TempDir()
	writeSolid(t, filepath.Join(dir, "b.png"), color.NRGBA{0, 0, 255, 255})
	writeSolid(t, filepath.Join(dir, "a.JPG"), color.NRGBA{255, 0, 0, 255})
	test.That(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600), test.ShouldBeNil)
	test.That(t, os.Mkdir(filepath.Join(dir, "sub.png"), 0o700), test.ShouldBeNil)

	files, err := ListImages(dir)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, files, test.ShouldResemble, []string{filepath.Join(dir, "a.JPG"), filepath.Join(dir, "b.png")})

	_, err = NewDriver(Config{Path: t.TempDir()}).Open(context.Background(), 0, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestEmulatedReplay(t *testing.T) {
	dir := t.TempDir()
	red := color.NRGBA{255, 0, 0, 255}
	blue := color.NRGBA{0, 0, 255, 255}
	writeSolid(t, filepath.Join(dir, "0001.png"), red)
	writeSolid(t, filepath.Join(dir, "0002.png"), blue)

	logger := logging.NewTestLogger(t)
	m := capture.NewManager(NewDriver(Config{Path: dir, FrameInterval: 5 * time.Millisecond}), capture.Options{DropPolicy: capture.KeepAll}, logger)
	test.That(t, m.Open(context.Background(), 0), test.ShouldBeNil)
	test.That(t, m.Configure(32, 24), test.ShouldBeNil)
	test.That(t, m.Start(driver.Controls{}), test.ShouldBeNil)
	defer func() {
		test.That(t, m.Close(), test.ShouldBeNil)
	}()

	var colors []color.NRGBA
	var last uint64
	for i := 0; i < 4; i++ {
		f, err := m.CaptureNext(context.Background(), 2*time.Second)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, f.Width, test.ShouldEqual, 32)
		test.That(t, f.Height, test.ShouldEqual, 24)
		test.That(t, f.Seq, test.ShouldBeGreaterThan, last)
		last = f.Seq
		colors = append(colors, centerColor(t, f))
	}
	test.That(t, colors, test.ShouldResemble, []color.NRGBA{red, blue, red, blue})

	green := color.NRGBA{0, 255, 0, 255}
	writeSolid(t, filepath.Join(dir, "0003.png"), green)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		f, err := m.CaptureNext(context.Background(), 2*time.Second)
		test.That(tb, err, test.ShouldBeNil)
		test.That(tb, centerColor(tb, f), test.ShouldResemble, green)
	})
}

func TestEmulatedRejectsFormat(t *testing.T) {
	dir := t.TempDir()
	writeSolid(t, filepath.Join(dir, "a.png"), color.NRGBA{1, 2, 3, 255})
	dev, err := NewDriver(Config{Path: dir}).Open(context.Background(), 0, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	_, err = dev.Configure(driver.StreamConfig{Width: 8, Height: 8, Format: rimage.PixelFormatYUYV})
	test.That(t, err, test.ShouldNotBeNil)

	buf := make([]byte, 2*3)
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.SetNRGBA(1, 0, color.NRGBA{10, 20, 30, 255})
	writeBGR(buf, 6, src)
	test.That(t, buf[3:], test.ShouldResemble, []byte{30, 20, 10})
}
