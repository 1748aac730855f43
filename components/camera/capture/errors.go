package capture

import "github.com/pkg/errors"

var (
	// ErrDeviceUnavailable is returned when the capture device cannot be acquired or started.
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	// ErrInvalidState is returned when an operation is not allowed in the manager's current
	// lifecycle state.
	ErrInvalidState = errors.New("invalid capture state")
	// ErrConfigurationRejected is returned when the device refuses a stream configuration or
	// control set.
	ErrConfigurationRejected = errors.New("capture configuration rejected")
	// ErrAllocationFailure is returned when frame buffers cannot be allocated.
	ErrAllocationFailure = errors.New("capture buffer allocation failed")
	// ErrFrameTimeout is returned when no frame became ready within the requested timeout.
	ErrFrameTimeout = errors.New("timed out waiting for frame")
	// ErrCaptureFailure is returned when the hardware reported a failed request or a frame could
	// not be copied out.
	ErrCaptureFailure = errors.New("frame capture failed")
)

// IsRetryable reports whether a capture error is transient, meaning the caller may simply ask
// for the next frame again.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrFrameTimeout) || errors.Is(err, ErrCaptureFailure)
}

func newInvalidStateError(op string, state State) error {
	return errors.Wrapf(ErrInvalidState, "cannot %s while %s", op, state)
}
