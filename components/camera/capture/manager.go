// Package capture turns a callback-driven capture device into a blocking "next frame" API while
// keeping every buffer in flight.
//
// The manager owns one Device. Hardware completions are forwarded by a non-blocking handler to a
// single owner goroutine per run, which performs all slot transitions that touch the hardware and
// resubmits buffers outside the monitor lock. Consumers block in CaptureNext on the completion
// queue and receive private copies of the frame bytes.
package capture

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"github.com/noegame/ROD/components/camera/driver"
	"github.com/noegame/ROD/logging"
	"github.com/noegame/ROD/rimage"
	"github.com/noegame/ROD/utils"
)

// DefaultStopGrace is how long Stop waits for in-flight requests before stopping the hardware.
const DefaultStopGrace = 100 * time.Millisecond

const stopPollInterval = 2 * time.Millisecond

// Options tune a Manager.
type Options struct {
	// Format is the requested pixel format. Empty lets the device choose.
	Format rimage.PixelFormat
	// StopGrace bounds how long Stop waits for queued requests to complete. Zero means
	// DefaultStopGrace, a negative value skips the wait.
	StopGrace time.Duration
	// DropPolicy decides whether uncollected frames are recycled when the hardware runs dry.
	DropPolicy DropPolicy
}

// Stats is a snapshot of the pool and the counters of the manager.
type Stats struct {
	Pool      PoolCounts
	Delivered uint64
	Dropped   uint64
	Failed    uint64
	Cancelled uint64
	Overflow  uint64
}

type counters struct {
	delivered atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
	cancelled atomic.Uint64
	overflow  atomic.Uint64
}

// run holds everything scoped to one start..stop cycle.
type run struct {
	session     uuid.UUID
	completions chan driver.Completion
	recycle     chan int
	queue       *completionQueue
	held        sync.WaitGroup
	workers     utils.StoppableWorkers
}

// Manager owns a capture device and its buffer pool.
type Manager struct {
	// lifecycleMu serializes Open, Configure, Start, Stop and Close.
	lifecycleMu sync.Mutex
	state       State
	drv         driver.Driver
	dev         driver.Device
	stream      driver.StreamConfig
	opts        Options
	logger      logging.Logger

	// mu is the monitor guarding the pool, the completion queue, the pending error and the
	// running flag.
	mu         sync.Mutex
	running    bool
	pool       *bufferPool
	run        *run
	pendingErr error

	stats counters
}

// NewManager returns a manager in the closed state.
func NewManager(drv driver.Driver, opts Options, logger logging.Logger) *Manager {
	if opts.StopGrace == 0 {
		opts.StopGrace = DefaultStopGrace
	}
	if opts.DropPolicy == "" {
		opts.DropPolicy = DropOldest
	}
	return &Manager{drv: drv, opts: opts, logger: logger, state: StateClosed}
}

// State returns the lifecycle state.
func (m *Manager) State() State {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()
	return m.state
}

// Stream returns the negotiated stream configuration.
func (m *Manager) Stream() driver.StreamConfig {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()
	return m.stream
}

// Session returns the id of the current run, or the nil uuid when not started.
func (m *Manager) Session() uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.run == nil {
		return uuid.Nil
	}
	return m.run.session
}

// Stats returns the current pool state counts and counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	var pool PoolCounts
	if m.pool != nil {
		pool = m.pool.snapshot()
	}
	m.mu.Unlock()
	return Stats{
		Pool:      pool,
		Delivered: m.stats.delivered.Load(),
		Dropped:   m.stats.dropped.Load(),
		Failed:    m.stats.failed.Load(),
		Cancelled: m.stats.cancelled.Load(),
		Overflow:  m.stats.overflow.Load(),
	}
}

// Open acquires the device at index.
func (m *Manager) Open(ctx context.Context, index int) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()
	if m.state != StateClosed {
		return newInvalidStateError("open", m.state)
	}
	dev, err := m.drv.Open(ctx, index, m.logger)
	if err != nil {
		return errors.Wrapf(ErrDeviceUnavailable, "cannot open camera %d: %v", index, err)
	}
	m.dev = dev
	m.state = StateOpened
	m.logger.Infow("camera opened", "index", index)
	return nil
}

// Configure negotiates the stream size. It is rejected while capture runs.
func (m *Manager) Configure(width, height int) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()
	switch m.state {
	case StateOpened, StateConfigured, StateStopped:
	default:
		return newInvalidStateError("configure", m.state)
	}
	if width <= 0 || height <= 0 {
		return errors.Wrapf(ErrConfigurationRejected, "invalid size %dx%d", width, height)
	}
	req := driver.StreamConfig{Width: width, Height: height, Format: m.opts.Format}
	stream, err := m.dev.Configure(req)
	if err != nil {
		return errors.Wrapf(ErrConfigurationRejected, "%s: %v", req, err)
	}
	if stream.Width != width || stream.Height != height {
		m.logger.Warnw("camera adjusted stream size", "requested_width", width, "requested_height", height,
			"width", stream.Width, "height", stream.Height)
	}
	if stream.Stride == 0 {
		stream.Stride = stream.Format.MinStride(stream.Width)
	}
	m.stream = stream
	m.state = StateConfigured
	m.logger.Debugw("camera configured", "stream", stream.String())
	return nil
}

// Start allocates the buffer pool, starts streaming and queues every buffer. Starting a started
// manager does nothing.
func (m *Manager) Start(controls driver.Controls) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()
	switch m.state {
	case StateStarted:
		return nil
	case StateConfigured, StateStopped:
	default:
		return newInvalidStateError("start", m.state)
	}
	if err := controls.Validate(); err != nil {
		return errors.Wrap(ErrConfigurationRejected, err.Error())
	}

	bufs, err := m.dev.Allocate()
	if err != nil {
		return errors.Wrap(ErrAllocationFailure, err.Error())
	}
	pool, err := newBufferPool(bufs, m.stream.FrameSize())
	if err != nil {
		return multierr.Combine(err, m.dev.Free())
	}

	r := &run{
		session:     uuid.New(),
		completions: make(chan driver.Completion, pool.capacity()),
		recycle:     make(chan int, pool.capacity()),
		queue:       newCompletionQueue(pool.capacity()),
	}

	m.mu.Lock()
	m.pool = pool
	m.run = r
	m.pendingErr = nil
	m.mu.Unlock()

	if err := m.dev.Start(controls, m.completionHandler(r)); err != nil {
		m.mu.Lock()
		m.pool, m.run = nil, nil
		m.mu.Unlock()
		return multierr.Combine(errors.Wrapf(ErrDeviceUnavailable, "cannot start streaming: %v", err), m.dev.Free())
	}
	r.workers = utils.NewStoppableWorkers(func(ctx context.Context) { m.own(ctx, r) })

	m.mu.Lock()
	m.running = true
	m.mu.Unlock()

	for i := 0; i < pool.capacity(); i++ {
		if err := m.submit(r, i); err != nil {
			m.state = StateStarted
			return multierr.Combine(errors.Wrapf(ErrCaptureFailure, "initial submit of slot %d: %v", i, err), m.stop())
		}
	}

	m.state = StateStarted
	m.logger.Infow("capture started", "session", r.session.String(), "buffers", pool.capacity(),
		"stream", m.stream.String(), "drop_policy", string(m.opts.DropPolicy))
	return nil
}

// completionHandler is bound to one run. It never blocks: at most capacity requests are in
// flight, and the channel is sized to match.
func (m *Manager) completionHandler(r *run) driver.CompletionHandler {
	return func(c driver.Completion) {
		select {
		case r.completions <- c:
		default:
			m.stats.overflow.Inc()
			m.logger.Errorw("completion channel full, dropping completion", "slot", c.Slot, "status", c.Status.String())
		}
	}
}

// own is the owner task: the single goroutine performing hardware-facing transitions for a run.
func (m *Manager) own(ctx context.Context, r *run) {
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-r.completions:
			m.handleCompletion(r, c)
		case idx := <-r.recycle:
			m.resubmit(r, idx)
		}
	}
}

func (m *Manager) handleCompletion(r *run, c driver.Completion) {
	var toResubmit []int

	m.mu.Lock()
	if m.run != r || m.pool == nil {
		m.mu.Unlock()
		return
	}
	s, err := m.pool.get(c.Slot)
	if err != nil || s.state != SlotQueued {
		m.mu.Unlock()
		m.logger.Warnw("ignoring completion for slot not queued", "slot", c.Slot, "status", c.Status.String())
		return
	}

	switch c.Status {
	case driver.StatusCancelled:
		m.must(s.req.transition(RequestCancelled))
		m.must(s.req.transition(RequestReleased))
		m.must(m.pool.move(c.Slot, SlotQueued, SlotIdle))
		m.stats.cancelled.Inc()
	case driver.StatusError:
		m.must(s.req.transition(RequestCompleted))
		m.must(m.pool.move(c.Slot, SlotQueued, SlotIdle))
		m.pendingErr = errors.Wrapf(ErrCaptureFailure, "slot %d: %v", c.Slot, c.Err)
		m.stats.failed.Inc()
		r.queue.wake()
		if m.running {
			toResubmit = append(toResubmit, c.Slot)
		}
	default:
		m.must(s.req.transition(RequestCompleted))
		m.must(m.pool.move(c.Slot, SlotQueued, SlotCompleted))
		s.bytesUsed = c.BytesUsed
		s.seq = c.Seq
		s.timestamp = c.Timestamp
		r.queue.push(c.Slot)
		if m.running && m.opts.DropPolicy == DropOldest && m.pool.count(SlotQueued) == 0 && r.queue.len() > 1 {
			oldest, _ := r.queue.pop()
			m.must(m.pool.move(oldest, SlotCompleted, SlotIdle))
			m.stats.dropped.Inc()
			toResubmit = append(toResubmit, oldest)
		}
		r.queue.wake()
	}
	m.mu.Unlock()

	for _, idx := range toResubmit {
		m.resubmit(r, idx)
	}
}

// submit queues an Idle slot whose request is fresh or finished.
func (m *Manager) submit(r *run, idx int) error {
	m.mu.Lock()
	if !m.running || m.run != r {
		m.mu.Unlock()
		return nil
	}
	s, err := m.pool.get(idx)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if s.req.State() == RequestCreated {
		err = s.req.transition(RequestQueued)
	} else {
		err = s.req.recycle()
	}
	if err == nil {
		err = m.pool.move(idx, SlotIdle, SlotQueued)
	}
	m.mu.Unlock()
	if err != nil {
		return err
	}

	if err := m.dev.Queue(idx); err != nil {
		m.mu.Lock()
		if m.run == r && m.pool != nil {
			m.must(s.req.transition(RequestCancelled))
			m.must(m.pool.move(idx, SlotQueued, SlotIdle))
		}
		m.mu.Unlock()
		return err
	}
	return nil
}

// resubmit is called by the owner task, never with the monitor held.
func (m *Manager) resubmit(r *run, idx int) {
	if err := m.submit(r, idx); err != nil {
		m.mu.Lock()
		if m.run == r {
			m.pendingErr = errors.Wrapf(ErrCaptureFailure, "resubmit slot %d: %v", idx, err)
			r.queue.wake()
		}
		m.mu.Unlock()
		m.stats.failed.Inc()
		m.logger.Errorw("cannot resubmit capture request", "slot", idx, "error", err)
	}
}

func (m *Manager) must(err error) {
	if err != nil {
		m.logger.Errorw("capture bookkeeping error", "error", err)
	}
}

// CaptureNext blocks until a frame is ready, the timeout expires, ctx is done or capture stops.
// Frames are returned in completion order and own their bytes.
func (m *Manager) CaptureNext(ctx context.Context, timeout time.Duration) (*rimage.Frame, error) {
	m.mu.Lock()
	r := m.run
	if !m.running || r == nil {
		m.mu.Unlock()
		return nil, errors.Wrap(ErrInvalidState, "capture is not started")
	}
	m.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		m.mu.Lock()
		if !m.running || m.run != r {
			m.mu.Unlock()
			return nil, errors.Wrap(ErrInvalidState, "capture stopped")
		}
		if err := m.pendingErr; err != nil {
			m.pendingErr = nil
			m.mu.Unlock()
			return nil, err
		}
		if idx, ok := r.queue.pop(); ok {
			m.must(m.pool.move(idx, SlotCompleted, SlotConsumerHeld))
			s := m.pool.slots[idx]
			r.held.Add(1)
			if r.queue.len() > 0 {
				r.queue.wake()
			}
			m.mu.Unlock()

			frame, err := m.copyOut(s)
			m.release(r, idx)
			if err != nil {
				m.stats.failed.Inc()
				return nil, err
			}
			m.stats.delivered.Inc()
			m.logger.CDebugw(ctx, "frame delivered", "seq", frame.Seq, "slot", idx)
			return frame, nil
		}
		m.mu.Unlock()

		select {
		case <-r.queue.signal:
		case <-r.queue.stopped:
			return nil, errors.Wrap(ErrInvalidState, "capture stopped")
		case <-timer.C:
			return nil, errors.Wrapf(ErrFrameTimeout, "no frame within %s", timeout)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// copyOut copies a consumer-held slot into a tightly packed frame. The slot's buffer is not
// touched by anyone else while held.
func (m *Manager) copyOut(s slot) (*rimage.Frame, error) {
	stream := m.stream
	data := s.buf.Data
	if s.bytesUsed > 0 && s.bytesUsed < len(data) {
		data = data[:s.bytesUsed]
	}
	frame := &rimage.Frame{
		Width:     stream.Width,
		Height:    stream.Height,
		Format:    stream.Format,
		Seq:       s.seq,
		Timestamp: s.timestamp,
	}
	if stream.Format.Compressed() {
		if len(data) == 0 {
			return nil, errors.Wrap(ErrCaptureFailure, "empty compressed frame")
		}
		frame.Bytes = append([]byte(nil), data...)
		return frame, nil
	}

	need := stream.FrameSize()
	if len(data) < need {
		return nil, errors.Wrapf(ErrCaptureFailure, "frame holds %d bytes, %s needs %d", len(data), stream, need)
	}
	row := stream.Format.MinStride(stream.Width)
	frame.Stride = row
	frame.Bytes = make([]byte, row*stream.Height)
	for y := 0; y < stream.Height; y++ {
		copy(frame.Bytes[y*row:(y+1)*row], data[y*stream.Stride:y*stream.Stride+row])
	}
	return frame, nil
}

// release hands a consumer-held slot back to the owner task for resubmission.
func (m *Manager) release(r *run, idx int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer r.held.Done()
	if m.run != r || m.pool == nil {
		return
	}
	m.must(m.pool.move(idx, SlotConsumerHeld, SlotIdle))
	if !m.running {
		m.must(m.pool.slots[idx].req.transition(RequestReleased))
		return
	}
	select {
	case r.recycle <- idx:
	default:
		m.logger.Errorw("recycle channel full", "slot", idx)
	}
}

// Stop halts capture and releases the buffer pool. Stopping a manager that is not started does
// nothing, unless the device was already released.
func (m *Manager) Stop() error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()
	if m.state == StateReleased {
		return newInvalidStateError("stop", m.state)
	}
	if m.state != StateStarted {
		return nil
	}
	return m.stop()
}

func (m *Manager) stop() error {
	m.mu.Lock()
	r := m.run
	m.running = false
	r.queue.broadcastStop()
	m.mu.Unlock()

	if m.opts.StopGrace > 0 {
		deadline := time.Now().Add(m.opts.StopGrace)
		for time.Now().Before(deadline) && m.queuedCount() > 0 {
			time.Sleep(stopPollInterval)
		}
	}

	var errs []error
	if err := m.dev.Stop(); err != nil {
		errs = append(errs, errors.Wrap(err, "cannot stop streaming"))
	}
	r.workers.Stop()
	m.drainLeftovers(r)
	r.held.Wait()

	m.mu.Lock()
	r.queue.drain()
	leftover := m.pool.snapshot()
	m.pool.reset()
	m.pool = nil
	m.run = nil
	m.pendingErr = nil
	m.mu.Unlock()

	if err := m.dev.Free(); err != nil {
		errs = append(errs, errors.Wrap(err, "cannot free buffers"))
	}
	m.state = StateStopped
	m.logger.Infow("capture stopped", "session", r.session.String(), "undelivered", leftover.Completed,
		"still_queued", leftover.Queued)
	return multierr.Combine(errs...)
}

func (m *Manager) queuedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pool == nil {
		return 0
	}
	return m.pool.count(SlotQueued)
}

// drainLeftovers processes completions and recycles still buffered after the owner task exited.
func (m *Manager) drainLeftovers(r *run) {
	for {
		select {
		case c := <-r.completions:
			m.handleCompletion(r, c)
		case <-r.recycle:
		default:
			return
		}
	}
}

// Close stops capture if needed and releases the device. Every later call fails.
func (m *Manager) Close() error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()
	if m.state == StateReleased {
		return newInvalidStateError("close", m.state)
	}
	var errs []error
	if m.state == StateStarted {
		errs = append(errs, m.stop())
	}
	if m.dev != nil {
		errs = append(errs, m.dev.Close())
		m.dev = nil
	}
	m.state = StateReleased
	m.logger.Info("camera released")
	return multierr.Combine(errs...)
}
