// Package transform contains camera models, lens undistortion and planar homographies used to
// map pixels onto the playing field.
package transform

import "github.com/pkg/errors"

// ErrTransformFailure is returned when a geometric computation is numerically degenerate.
var ErrTransformFailure = errors.New("transform failure")

// ErrNoIntrinsics is when a camera does not have intrinsics parameters or other parameters.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// NewNoIntrinsicsError is used when the intriniscs are not defined.
func NewNoIntrinsicsError(msg string) error {
	return errors.Wrapf(ErrNoIntrinsics, msg)
}

// NewTransformFailureError wraps ErrTransformFailure with a formatted message.
func NewTransformFailureError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrTransformFailure, format, args...)
}
