// Package fake implements a scriptable in-memory capture device. Completions are produced by
// the caller (CompleteNext, FailNext) or by an optional free-running producer.
package fake

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/noegame/ROD/components/camera/driver"
	"github.com/noegame/ROD/logging"
	"github.com/noegame/ROD/rimage"
	"github.com/noegame/ROD/utils"
)

// DefaultBufferCount is the number of buffers a fake device allocates unless told otherwise.
const DefaultBufferCount = 4

// Config scripts the behavior of devices opened by a Driver.
type Config struct {
	// BufferCount overrides the number of allocated buffers. A negative value allocates none.
	BufferCount int
	// Format is the negotiated pixel format. Defaults to BGR888.
	Format rimage.PixelFormat
	// RowPadding adds bytes to every row of the negotiated stride.
	RowPadding int
	// FrameInterval makes started devices complete queued requests on their own.
	FrameInterval time.Duration

	OpenErr      error
	ConfigureErr error
	AllocateErr  error
	StartErr     error
	QueueErr     error
}

// Driver opens fake devices.
type Driver struct {
	mu      sync.Mutex
	cfg     Config
	devices []*Device
}

// NewDriver returns a driver whose devices follow cfg.
func NewDriver(cfg Config) *Driver {
	return &Driver{cfg: cfg}
}

// Open returns a new device, or the scripted open error.
func (d *Driver) Open(ctx context.Context, index int, logger logging.Logger) (driver.Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cfg.OpenErr != nil {
		return nil, d.cfg.OpenErr
	}
	dev := &Device{cfg: d.cfg, index: index, logger: logger}
	d.devices = append(d.devices, dev)
	return dev, nil
}

// Last returns the most recently opened device.
func (d *Driver) Last() *Device {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.devices) == 0 {
		return nil
	}
	return d.devices[len(d.devices)-1]
}

// Device is a fake capture device.
type Device struct {
	// deliverMu serializes handler calls so none happen after Stop returns.
	deliverMu sync.Mutex

	mu       sync.Mutex
	cfg      Config
	index    int
	logger   logging.Logger
	stream   driver.StreamConfig
	buffers  []driver.Buffer
	queued   []int
	handler  driver.CompletionHandler
	running  bool
	closed   bool
	seq      uint64
	starts   int
	controls driver.Controls
	workers  utils.StoppableWorkers
}

// Configure accepts any positive size.
func (d *Device) Configure(req driver.StreamConfig) (driver.StreamConfig, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cfg.ConfigureErr != nil {
		return driver.StreamConfig{}, d.cfg.ConfigureErr
	}
	if req.Width <= 0 || req.Height <= 0 {
		return driver.StreamConfig{}, errors.Errorf("unsupported size %dx%d", req.Width, req.Height)
	}
	format := d.cfg.Format
	if format == "" {
		format = rimage.PixelFormatBGR888
	}
	count := DefaultBufferCount
	switch {
	case d.cfg.BufferCount < 0:
		count = 0
	case d.cfg.BufferCount > 0:
		count = d.cfg.BufferCount
	}
	d.stream = driver.StreamConfig{
		Width:       req.Width,
		Height:      req.Height,
		Stride:      format.MinStride(req.Width) + d.cfg.RowPadding,
		Format:      format,
		BufferCount: count,
	}
	return d.stream, nil
}

// Allocate creates one buffer per configured slot.
func (d *Device) Allocate() ([]driver.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cfg.AllocateErr != nil {
		return nil, d.cfg.AllocateErr
	}
	size := d.stream.FrameSize()
	if size == 0 {
		size = d.stream.Width * d.stream.Height * 3
	}
	d.buffers = make([]driver.Buffer, d.stream.BufferCount)
	for i := range d.buffers {
		d.buffers[i] = driver.Buffer{Index: i, Data: make([]byte, size)}
	}
	return d.buffers, nil
}

// Start binds the completion handler.
func (d *Device) Start(controls driver.Controls, handler driver.CompletionHandler) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cfg.StartErr != nil {
		return d.cfg.StartErr
	}
	if d.running {
		return errors.New("already streaming")
	}
	d.handler = handler
	d.controls = controls
	d.running = true
	d.starts++
	if d.cfg.FrameInterval > 0 {
		d.workers = utils.NewStoppableWorkers(d.produce)
	}
	return nil
}

func (d *Device) produce(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.FrameInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.CompleteNext()
		}
	}
}

// Queue submits a slot. A slot may not be queued twice.
func (d *Device) Queue(slot int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cfg.QueueErr != nil {
		return d.cfg.QueueErr
	}
	if !d.running {
		return errors.New("device not streaming")
	}
	if slot < 0 || slot >= len(d.buffers) {
		return errors.Errorf("slot %d out of range", slot)
	}
	for _, q := range d.queued {
		if q == slot {
			return errors.Errorf("slot %d already queued", slot)
		}
	}
	d.queued = append(d.queued, slot)
	return nil
}

// SetQueueErr changes the scripted queue error of a live device.
func (d *Device) SetQueueErr(err error) {
	d.mu.Lock()
	d.cfg.QueueErr = err
	d.mu.Unlock()
}

// CompleteNext fills the oldest queued buffer with its sequence number and reports success.
// It returns false when nothing is queued.
func (d *Device) CompleteNext() bool {
	return d.complete(driver.StatusSuccess, nil)
}

// FailNext reports a hardware error on the oldest queued buffer.
func (d *Device) FailNext() bool {
	return d.complete(driver.StatusError, errors.New("injected sensor fault"))
}

func (d *Device) complete(status driver.Status, err error) bool {
	d.deliverMu.Lock()
	defer d.deliverMu.Unlock()

	d.mu.Lock()
	if !d.running || len(d.queued) == 0 {
		d.mu.Unlock()
		return false
	}
	slot := d.queued[0]
	d.queued = d.queued[1:]
	d.seq++
	c := driver.Completion{Slot: slot, Status: status, Seq: d.seq, Timestamp: time.Now(), Err: err}
	if status == driver.StatusSuccess {
		buf := d.buffers[slot].Data
		for i := range buf {
			buf[i] = byte(d.seq)
		}
		c.BytesUsed = len(buf)
	}
	handler := d.handler
	d.mu.Unlock()

	handler(c)
	return true
}

// Stop cancels every queued request and halts the producer.
func (d *Device) Stop() error {
	d.mu.Lock()
	workers := d.workers
	d.workers = nil
	d.mu.Unlock()
	if workers != nil {
		workers.Stop()
	}

	d.deliverMu.Lock()
	defer d.deliverMu.Unlock()

	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	cancelled := d.queued
	d.queued = nil
	d.running = false
	handler := d.handler
	d.handler = nil
	d.mu.Unlock()

	for _, slot := range cancelled {
		handler(driver.Completion{Slot: slot, Status: driver.StatusCancelled, Timestamp: time.Now()})
	}
	return nil
}

// Free drops the buffers.
func (d *Device) Free() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return errors.New("cannot free buffers while streaming")
	}
	d.buffers = nil
	return nil
}

// Close marks the device closed.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errors.New("device already closed")
	}
	d.closed = true
	return nil
}

// QueuedCount returns the number of requests waiting at the hardware.
func (d *Device) QueuedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queued)
}

// Running reports whether the device is streaming.
func (d *Device) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Closed reports whether Close was called.
func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Starts returns how many times streaming was started.
func (d *Device) Starts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.starts
}

// Controls returns the controls passed to the last Start.
func (d *Device) Controls() driver.Controls {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.controls
}

// Buffers returns the allocated buffers.
func (d *Device) Buffers() []driver.Buffer {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buffers
}
