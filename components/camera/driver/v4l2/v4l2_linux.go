//go:build linux

package v4l2

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/blackjack/webcam"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/noegame/ROD/components/camera/driver"
	"github.com/noegame/ROD/logging"
	"github.com/noegame/ROD/rimage"
	"github.com/noegame/ROD/utils"
)

const (
	// from https://github.com/blackjack/webcam/blob/master/examples/http_mjpeg_streamer/webcam.go
	v4l2PixFmtYuyv = 0x56595559
	jpegVideo      = 1196444237

	defaultBufferCount = 4
	frameWaitSeconds   = 1
)

var formatCodes = map[rimage.PixelFormat]webcam.PixelFormat{
	rimage.PixelFormatYUYV:  v4l2PixFmtYuyv,
	rimage.PixelFormatMJPEG: jpegVideo,
}

// Driver opens /dev/video<index>.
type Driver struct {
	// DevicePattern is the fmt pattern of the device path. Defaults to "/dev/video%d".
	DevicePattern string
	BufferCount   int
}

// NewDriver returns a V4L2 driver with default settings.
func NewDriver() *Driver {
	return &Driver{DevicePattern: "/dev/video%d", BufferCount: defaultBufferCount}
}

// Open opens the video device.
func (d *Driver) Open(ctx context.Context, index int, logger logging.Logger) (driver.Device, error) {
	pattern := d.DevicePattern
	if pattern == "" {
		pattern = "/dev/video%d"
	}
	path := fmt.Sprintf(pattern, index)
	cam, err := webcam.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open webcam [%s]", path)
	}
	count := d.BufferCount
	if count <= 0 {
		count = defaultBufferCount
	}
	logger.Infow("v4l2 camera opened", "path", path)
	return &device{cam: cam, path: path, logger: logger, bufferCount: count}, nil
}

// device bridges the webcam package's internal mmap ring to driver slots: each dequeued V4L2
// buffer is copied into the oldest queued slot and handed straight back to the kernel.
type device struct {
	deliverMu sync.Mutex

	mu          sync.Mutex
	cam         *webcam.Webcam
	path        string
	logger      logging.Logger
	bufferCount int
	code        webcam.PixelFormat
	stream      driver.StreamConfig
	buffers     []driver.Buffer
	queued      []int
	handler     driver.CompletionHandler
	running     bool
	seq         uint64
	workers     utils.StoppableWorkers
}

func (d *device) pickFormat(req rimage.PixelFormat) (rimage.PixelFormat, webcam.PixelFormat, error) {
	supported := d.cam.GetSupportedFormats()
	candidates := []rimage.PixelFormat{rimage.PixelFormatYUYV, rimage.PixelFormatMJPEG}
	if req != "" {
		if _, ok := formatCodes[req]; !ok {
			return "", 0, errors.Errorf("v4l2 devices cannot produce %s", req)
		}
		candidates = []rimage.PixelFormat{req}
	}
	for _, f := range candidates {
		code := formatCodes[f]
		if _, ok := supported[code]; !ok {
			continue
		}
		if len(d.cam.GetSupportedFrameSizes(code)) == 0 {
			continue
		}
		return f, code, nil
	}
	return "", 0, errors.Errorf("no supported format, supported ones: %v", supported)
}

func (d *device) Configure(req driver.StreamConfig) (driver.StreamConfig, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	format, code, err := d.pickFormat(req.Format)
	if err != nil {
		return driver.StreamConfig{}, err
	}
	code, w, h, err := d.cam.SetImageFormat(code, uint32(req.Width), uint32(req.Height))
	if err != nil {
		return driver.StreamConfig{}, errors.Wrap(err, "cannot set image format")
	}
	d.code = code
	d.stream = driver.StreamConfig{
		Width:       int(w),
		Height:      int(h),
		Stride:      format.MinStride(int(w)),
		Format:      format,
		BufferCount: d.bufferCount,
	}
	return d.stream, nil
}

func (d *device) Allocate() ([]driver.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.cam.SetBufferCount(uint32(d.stream.BufferCount)); err != nil {
		return nil, errors.Wrapf(err, "cannot SetBufferCount for %s", d.path)
	}
	size := d.stream.FrameSize()
	if size == 0 {
		// Compressed frames never exceed an uncompressed BGR frame.
		size = d.stream.Width * d.stream.Height * 3
	}
	d.buffers = make([]driver.Buffer, d.stream.BufferCount)
	for i := range d.buffers {
		d.buffers[i] = driver.Buffer{Index: i, Data: make([]byte, size)}
	}
	return d.buffers, nil
}

func (d *device) Start(controls driver.Controls, handler driver.CompletionHandler) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return errors.New("already streaming")
	}
	d.applyControls(controls)
	if err := d.cam.StartStreaming(); err != nil {
		return errors.Wrapf(err, "cannot start webcam stream for %s", d.path)
	}
	d.handler = handler
	d.running = true
	d.workers = utils.NewStoppableWorkers(d.read)
	return nil
}

func (d *device) applyControls(controls driver.Controls) {
	available := map[uint32]controlRange{}
	for id, c := range d.cam.GetControls() {
		available[uint32(id)] = controlRange{Name: c.Name, Min: c.Min, Max: c.Max}
	}
	plan, unsupported := planControls(controls, available)
	for _, name := range unsupported {
		d.logger.Warnw("camera control not supported by device, left on auto", "control", name, "path", d.path)
	}
	for _, c := range plan {
		if err := d.cam.SetControl(webcam.ControlID(c.ID), c.Value); err != nil {
			d.logger.Warnw("cannot set camera control", "control", c.Name, "value", c.Value, "error", err)
		}
	}
}

func (d *device) read(ctx context.Context) {
	for ctx.Err() == nil {
		err := d.cam.WaitForFrame(frameWaitSeconds)
		var timeout *webcam.Timeout
		switch {
		case errors.As(err, &timeout):
			continue
		case err != nil:
			d.logger.Errorw("webcam wait failed", "error", err)
			if !goutils.SelectContextOrWait(ctx, 10*time.Millisecond) {
				return
			}
			continue
		}

		frame, index, err := d.cam.GetFrame()
		if err != nil {
			d.logger.Errorw("couldn't read webcam frame", "error", err)
			continue
		}
		d.deliver(frame)
		if err := d.cam.ReleaseFrame(index); err != nil {
			d.logger.Errorw("couldn't release webcam frame", "error", err)
		}
	}
}

func (d *device) deliver(data []byte) {
	d.deliverMu.Lock()
	defer d.deliverMu.Unlock()

	d.mu.Lock()
	if !d.running || len(d.queued) == 0 {
		d.mu.Unlock()
		return
	}
	slot := d.queued[0]
	d.queued = d.queued[1:]
	d.seq++
	c := driver.Completion{Slot: slot, Seq: d.seq, Timestamp: time.Now()}
	buf := d.buffers[slot].Data
	switch {
	case len(data) == 0:
		c.Status = driver.StatusError
		c.Err = errors.New("empty webcam frame")
	case len(data) > len(buf):
		c.Status = driver.StatusError
		c.Err = errors.Errorf("webcam frame of %d bytes exceeds buffer of %d", len(data), len(buf))
	default:
		c.BytesUsed = copy(buf, data)
	}
	handler := d.handler
	d.mu.Unlock()

	handler(c)
}

func (d *device) Queue(slot int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return errors.New("device not streaming")
	}
	if slot < 0 || slot >= len(d.buffers) {
		return errors.Errorf("slot %d out of range", slot)
	}
	d.queued = append(d.queued, slot)
	return nil
}

func (d *device) Stop() error {
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

	err := d.cam.StopStreaming()
	for _, slot := range cancelled {
		handler(driver.Completion{Slot: slot, Status: driver.StatusCancelled, Timestamp: time.Now()})
	}
	return err
}

func (d *device) Free() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buffers = nil
	return nil
}

func (d *device) Close() error {
	return d.cam.Close()
}
