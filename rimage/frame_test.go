package rimage

import (
	"image"
	"image/color"
	"testing"

	"go.viam.com/test"
)

func TestFrameBGRWithPadding(t *testing.T) {
	// 2x2 image with 2 bytes of row padding.
	f := &Frame{
		Width: 2, Height: 2, Stride: 8, Format: PixelFormatBGR888,
		Bytes: []byte{
			1, 2, 3, 4, 5, 6, 0, 0,
			7, 8, 9, 10, 11, 12, 0, 0,
		},
	}
	img, err := f.Image()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, img.Bounds(), test.ShouldResemble, image.Rect(0, 0, 2, 2))
	test.That(t, color.NRGBAModel.Convert(img.At(0, 0)), test.ShouldResemble, color.NRGBA{3, 2, 1, 255})
	test.That(t, color.NRGBAModel.Convert(img.At(1, 1)), test.ShouldResemble, color.NRGBA{12, 11, 10, 255})
}

func TestFrameShortBuffer(t *testing.T) {
	f := &Frame{Width: 4, Height: 4, Stride: 12, Format: PixelFormatBGR888, Bytes: make([]byte, 20)}
	_, err := f.Image()
	test.That(t, err, test.ShouldNotBeNil)

	f = &Frame{Width: 4, Height: 1, Stride: 4, Format: PixelFormatBGR888, Bytes: make([]byte, 12)}
	_, err = f.Image()
	test.That(t, err.Error(), test.ShouldContainSubstring, "stride")
}

func TestFrameYUYV(t *testing.T) {
	f := &Frame{
		Width: 2, Height: 1, Stride: 4, Format: PixelFormatYUYV,
		Bytes: []byte{16, 128, 235, 128},
	}
	img, err := f.Image()
	test.That(t, err, test.ShouldBeNil)
	ycbcr, ok := img.(*image.YCbCr)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, ycbcr.Y[0], test.ShouldEqual, uint8(16))
	test.That(t, ycbcr.Y[1], test.ShouldEqual, uint8(235))
}

func TestFrameFromImage(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	src.SetNRGBA(2, 1, color.NRGBA{10, 20, 30, 255})
	f := FrameFromImage(src)
	test.That(t, f.Width, test.ShouldEqual, 3)
	test.That(t, f.Stride, test.ShouldEqual, 9)
	test.That(t, f.Size(), test.ShouldEqual, 18)
	test.That(t, f.Bytes[1*9+2*3:1*9+2*3+3], test.ShouldResemble, []byte{30, 20, 10})

	back, err := f.Image()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, color.NRGBAModel.Convert(back.At(2, 1)), test.ShouldResemble, color.NRGBA{10, 20, 30, 255})
}

func TestPixelFormat(t *testing.T) {
	test.That(t, PixelFormatBGR888.MinStride(640), test.ShouldEqual, 1920)
	test.That(t, PixelFormatYUYV.MinStride(640), test.ShouldEqual, 1280)
	test.That(t, PixelFormatMJPEG.Compressed(), test.ShouldBeTrue)
	test.That(t, PixelFormatBGR888.Compressed(), test.ShouldBeFalse)
}
