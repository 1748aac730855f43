package transform

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/mat"
)

// PinholeCameraIntrinsics holds the parameters necessary to do a perspective projection of a 3D scene to the 2D plane.
type PinholeCameraIntrinsics struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
}

// CheckValid checks if the fields for PinholeCameraIntrinsics have valid inputs.
func (params *PinholeCameraIntrinsics) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("Intrinsics do not exist")
	}
	if params.Width == 0 || params.Height == 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid size (%#v, %#v)", params.Width, params.Height))
	}
	if params.Fx <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fx = %#v", params.Fx))
	}
	if params.Fy <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fy = %#v", params.Fy))
	}
	if params.Ppx < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal X point Ppx = %#v", params.Ppx))
	}
	if params.Ppy < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal Y point Ppy = %#v", params.Ppy))
	}
	return nil
}

// NewPinholeCameraIntrinsicsFromJSONFile takes in a file path to a JSON and turns it into PinholeCameraIntrinsics.
func NewPinholeCameraIntrinsicsFromJSONFile(jsonPath string) (*PinholeCameraIntrinsics, error) {
	//nolint:gosec
	jsonFile, err := os.Open(jsonPath)
	if err != nil {
		return nil, errors.Wrap(err, "error opening JSON file")
	}
	defer utils.UncheckedErrorFunc(jsonFile.Close)
	byteValue, err := io.ReadAll(jsonFile)
	if err != nil {
		return nil, errors.Wrap(err, "error reading JSON data")
	}
	intrinsics := &PinholeCameraIntrinsics{}
	if err := json.Unmarshal(byteValue, intrinsics); err != nil {
		return nil, errors.Wrap(err, "error parsing JSON string")
	}
	return intrinsics, nil
}

// GetCameraMatrix creates a new camera matrix and returns it.
// Camera matrix:
// [[fx 0 ppx],
//
//	[0 fy ppy],
//	[0 0  1]]
func (params *PinholeCameraIntrinsics) GetCameraMatrix() *mat.Dense {
	if params == nil {
		return nil
	}
	return mat.NewDense(3, 3, []float64{
		params.Fx, 0, params.Ppx,
		0, params.Fy, params.Ppy,
		0, 0, 1,
	})
}

// PixelToNormalized maps a pixel onto the z = 1 plane of the camera frame.
func (params *PinholeCameraIntrinsics) PixelToNormalized(p r2.Point) r2.Point {
	return r2.Point{X: (p.X - params.Ppx) / params.Fx, Y: (p.Y - params.Ppy) / params.Fy}
}

// NormalizedToPixel maps a point of the z = 1 plane back to pixel coordinates.
func (params *PinholeCameraIntrinsics) NormalizedToPixel(p r2.Point) r2.Point {
	return r2.Point{X: p.X*params.Fx + params.Ppx, Y: p.Y*params.Fy + params.Ppy}
}

// ScaledTo returns the intrinsics of the same lens imaged at width x height. The focal lengths and
// principal point scale with the image on each axis.
func (params *PinholeCameraIntrinsics) ScaledTo(width, height int) *PinholeCameraIntrinsics {
	if params == nil || params.Width <= 0 || params.Height <= 0 || width <= 0 || height <= 0 {
		return params
	}
	if params.Width == width && params.Height == height {
		return params
	}
	sx := float64(width) / float64(params.Width)
	sy := float64(height) / float64(params.Height)
	return &PinholeCameraIntrinsics{
		Width:  width,
		Height: height,
		Fx:     params.Fx * sx,
		Fy:     params.Fy * sy,
		Ppx:    params.Ppx * sx,
		Ppy:    params.Ppy * sy,
	}
}

// PinholeCameraModel is the model of a pinhole camera.
type PinholeCameraModel struct {
	*PinholeCameraIntrinsics `json:"intrinsic_parameters"`
	Distortion               Distorter `json:"distortion"`
}

// CheckValid checks that both intrinsics and distortion are usable.
func (params *PinholeCameraModel) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("camera model does not exist")
	}
	if err := params.PinholeCameraIntrinsics.CheckValid(); err != nil {
		return err
	}
	if params.Distortion != nil {
		return params.Distortion.CheckValid()
	}
	return nil
}

// ScaledTo returns the model for images of width x height. Distortion acts on normalized
// coordinates and is shared with the receiver. A model already at that size is returned as is.
func (params *PinholeCameraModel) ScaledTo(width, height int) *PinholeCameraModel {
	if params == nil || params.PinholeCameraIntrinsics == nil {
		return params
	}
	scaled := params.PinholeCameraIntrinsics.ScaledTo(width, height)
	if scaled == params.PinholeCameraIntrinsics {
		return params
	}
	return &PinholeCameraModel{PinholeCameraIntrinsics: scaled, Distortion: params.Distortion}
}

// DistortPoint maps an ideal pixel to the pixel the lens actually images it at.
func (params *PinholeCameraModel) DistortPoint(p r2.Point) r2.Point {
	if params.Distortion == nil {
		return p
	}
	n := params.PixelToNormalized(p)
	n.X, n.Y = params.Distortion.Transform(n.X, n.Y)
	return params.NormalizedToPixel(n)
}

// UndistortPoint maps a distorted pixel to the ideal pinhole pixel, reprojected with the same
// camera matrix.
func (params *PinholeCameraModel) UndistortPoint(p r2.Point) (r2.Point, error) {
	if params.Distortion == nil {
		return p, nil
	}
	n := params.PixelToNormalized(p)
	x, y, err := params.Distortion.Undistort(n.X, n.Y)
	if err != nil {
		return r2.Point{}, err
	}
	return params.NormalizedToPixel(r2.Point{X: x, Y: y}), nil
}

// DefaultCompetitionCamera returns the calibrated fisheye model of the robot's overhead camera.
func DefaultCompetitionCamera() *PinholeCameraModel {
	return &PinholeCameraModel{
		PinholeCameraIntrinsics: &PinholeCameraIntrinsics{
			Width:  4000,
			Height: 4000,
			Fx:     2493.62477,
			Fy:     2493.11358,
			Ppx:    1977.18701,
			Ppy:    2034.91176,
		},
		Distortion: &KannalaBrandt{K1: -0.1203345, K2: 0.06802544, K3: -0.13779641, K4: 0.08243704},
	}
}
