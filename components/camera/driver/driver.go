// Package driver defines the hardware capture abstraction consumed by the capture manager.
//
// A Device follows a callback completion model: buffers are queued to the hardware, and once
// filled (or cancelled) the device reports a Completion to the handler bound at Start, on a
// goroutine of its own.
package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/noegame/ROD/logging"
	"github.com/noegame/ROD/rimage"
)

// Status is the outcome of one hardware request.
type Status int

// The possible completion statuses.
const (
	StatusSuccess Status = iota
	StatusCancelled
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusCancelled:
		return "cancelled"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Buffer is a hardware frame buffer. Data stays owned by the device until Free.
type Buffer struct {
	Index int
	Data  []byte
}

// Completion reports the end of a queued request on a buffer slot.
type Completion struct {
	Slot      int
	Status    Status
	BytesUsed int
	Seq       uint64
	Timestamp time.Time
	Err       error
}

// CompletionHandler receives completions. It may be called from any goroutine and must not
// block.
type CompletionHandler func(Completion)

// StreamConfig is the requested or negotiated stream format.
type StreamConfig struct {
	Width  int
	Height int
	// Stride is the row length in bytes. Zero in a request lets the device choose.
	Stride int
	Format rimage.PixelFormat
	// BufferCount is the number of buffers the device wants to allocate. Zero in a request lets
	// the device choose.
	BufferCount int
}

// FrameSize returns the buffer size needed for one frame of this configuration, or 0 for
// compressed formats.
func (c StreamConfig) FrameSize() int {
	if c.Format.Compressed() {
		return 0
	}
	if c.Height <= 0 {
		return 0
	}
	return c.Stride*(c.Height-1) + c.Format.MinStride(c.Width)
}

func (c StreamConfig) String() string {
	return fmt.Sprintf("%dx%d %s stride=%d buffers=%d", c.Width, c.Height, c.Format, c.Stride, c.BufferCount)
}

// Driver opens capture devices by index.
type Driver interface {
	Open(ctx context.Context, index int, logger logging.Logger) (Device, error)
}

// Device is an exclusively owned capture session.
type Device interface {
	// Configure negotiates a stream format. The returned configuration may differ from the
	// request.
	Configure(req StreamConfig) (StreamConfig, error)
	// Allocate maps the frame buffers for the configured stream.
	Allocate() ([]Buffer, error)
	// Start begins streaming with the given controls. Completions are delivered to handler
	// until Stop returns.
	Start(controls Controls, handler CompletionHandler) error
	// Queue submits the buffer at slot for capture.
	Queue(slot int) error
	// Stop halts streaming. Requests still queued at the hardware complete as cancelled
	// before Stop returns.
	Stop() error
	// Free releases the buffers returned by Allocate.
	Free() error
	// Close releases the device.
	Close() error
}

// DriverFunc adapts a function to the Driver interface.
type DriverFunc func(ctx context.Context, index int, logger logging.Logger) (Device, error)

// Open calls f.
func (f DriverFunc) Open(ctx context.Context, index int, logger logging.Logger) (Device, error) {
	return f(ctx, index, logger)
}
