// Package perception runs the capture, detection and localization loop.
package perception

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/noegame/ROD/components/camera/capture"
	"github.com/noegame/ROD/components/camera/driver"
	"github.com/noegame/ROD/config"
	"github.com/noegame/ROD/logging"
	"github.com/noegame/ROD/vision/fiducial"
	"github.com/noegame/ROD/vision/field"
	"github.com/noegame/ROD/vision/playground"
)

// Retry backoff bounds of the loop.
const (
	MinBackoff = 10 * time.Millisecond
	MaxBackoff = time.Second
)

func nextBackoff(d time.Duration) time.Duration {
	if d < MinBackoff {
		return MinBackoff
	}
	d *= 2
	if d > MaxBackoff {
		return MaxBackoff
	}
	return d
}

// Pipeline turns frames into published marker records.
type Pipeline struct {
	cfg       *config.Config
	manager   *capture.Manager
	detector  *fiducial.PreprocessingDetector
	registrar *field.Registrar
	estimator *playground.Estimator
	solver    playground.PoseSolver
	sink      Sink
	clock     clock.Clock
	logger    logging.Logger
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithClock sets the clock used for backoff.
func WithClock(clk clock.Clock) Option {
	return func(p *Pipeline) { p.clock = clk }
}

// WithPoseSolver sets the solver used by the playground refinement. Defaults to an apparent size
// solver on the calibrated camera.
func WithPoseSolver(solver playground.PoseSolver) Option {
	return func(p *Pipeline) { p.solver = solver }
}

// NewPipeline wires a pipeline. The detector is wrapped with the configured preprocessing.
func NewPipeline(
	cfg *config.Config,
	drv driver.Driver,
	detector fiducial.Detector,
	sink Sink,
	logger logging.Logger,
	opts ...Option,
) (*Pipeline, error) {
	fieldCfg, err := cfg.FieldConfig()
	if err != nil {
		return nil, err
	}
	estimator, err := playground.NewEstimator(cfg.Playground.Mode)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		cfg: cfg,
		manager: capture.NewManager(drv, capture.Options{
			Format:     cfg.Camera.Format,
			StopGrace:  cfg.Camera.StopGrace.Std(),
			DropPolicy: cfg.Camera.DropPolicy,
		}, logger.Sublogger("capture")),
		detector:  fiducial.NewPreprocessingDetector(detector, cfg.Detection.PreprocessOptions),
		registrar: field.NewRegistrar(fieldCfg, logger.Sublogger("field")),
		estimator: estimator,
		sink:      sink,
		clock:     clock.New(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.solver == nil && fieldCfg.Camera != nil {
		p.solver = &playground.ApparentSizeSolver{Camera: fieldCfg.Camera}
	}
	return p, nil
}

// Manager returns the capture manager.
func (p *Pipeline) Manager() *capture.Manager {
	return p.manager
}

// Registrar returns the field registrar.
func (p *Pipeline) Registrar() *field.Registrar {
	return p.registrar
}

// Run starts capture and processes frames until ctx is done. Device errors at startup are fatal;
// timeouts and capture failures are retried with exponential backoff.
func (p *Pipeline) Run(ctx context.Context) (err error) {
	cam := p.cfg.Camera
	if err := p.manager.Open(ctx, cam.Index); err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, p.manager.Close())
	}()
	if err := p.manager.Configure(cam.Width, cam.Height); err != nil {
		return err
	}
	if err := p.manager.Start(cam.Controls); err != nil {
		return err
	}
	p.logger.Infow("perception started", "session", p.manager.Session(), "stream", p.manager.Stream().String())

	var backoff time.Duration
	for ctx.Err() == nil {
		err := p.Step(ctx)
		switch {
		case err == nil:
			backoff = 0
			continue
		case ctx.Err() != nil:
		case capture.IsRetryable(err):
			backoff = nextBackoff(backoff)
			timer := p.clock.Timer(backoff)
			p.logger.Debugw("frame capture failed, retrying", "error", err, "backoff", backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
			case <-timer.C:
			}
			continue
		default:
			return err
		}
	}

	stats := p.manager.Stats()
	p.logger.Infow("perception stopped",
		"delivered", stats.Delivered,
		"dropped", stats.Dropped,
		"failed", stats.Failed,
		"registered", p.registrar.Valid(),
	)
	return nil
}

// Step processes a single frame.
func (p *Pipeline) Step(ctx context.Context) error {
	frame, err := p.manager.CaptureNext(ctx, p.cfg.Camera.CaptureTimeout.Std())
	if err != nil {
		return err
	}
	img, err := frame.Image()
	if err != nil {
		return errors.Wrap(capture.ErrCaptureFailure, err.Error())
	}
	dets, err := p.detector.Detect(ctx, img)
	if err != nil {
		return errors.Wrapf(err, "detection failed on frame %d", frame.Seq)
	}

	if !p.registrar.Valid() {
		if reg, err := p.registrar.Attempt(frame, dets); err == nil && p.cfg.Detection.ApplyMask {
			p.detector.SetMask(reg.Mask)
		}
	}
	markers := field.Localize(p.registrar.Current(), dets)

	if p.cfg.Playground.Enabled && p.solver != nil {
		refined, err := p.refine(ctx, dets)
		if err != nil {
			p.logger.CDebugw(ctx, "playground refinement skipped", "frame", frame.Seq, "error", err)
		} else {
			markers = refined
		}
	}

	records := RecordsFrom(markers)
	if err := p.sink.Publish(ctx, frame.Seq, records); err != nil {
		p.logger.Warnw("cannot publish markers", "frame", frame.Seq, "error", err)
	}
	return nil
}

func (p *Pipeline) refine(ctx context.Context, dets []fiducial.Detection) ([]field.WorldMarker, error) {
	tf, err := p.estimator.EstimateFromDetections(ctx, p.solver, p.registrar.Config().FixedMarkers, dets)
	if err != nil {
		return nil, err
	}
	return playground.LocalizeMarkers(ctx, p.solver, tf, dets)
}
