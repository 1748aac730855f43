// Package main runs the ROD perception process.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"github.com/noegame/ROD/config"
	"github.com/noegame/ROD/logging"
	"github.com/noegame/ROD/perception"
	"github.com/noegame/ROD/vision/fiducial"
)

const (
	flagConfig     = "config"
	flagDebug      = "debug"
	flagSource     = "source"
	flagImages     = "simulated-source-path"
	flagPlayground = "playground"
	flagLogFile    = "log-file"
)

func newApp(logger logging.Logger) *cli.App {
	return &cli.App{
		Name:  "rod",
		Usage: "detect fiducial markers and locate them on the playground",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
			},
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.StringFlag{
				Name:  flagSource,
				Usage: "override the camera source (v4l2, emulated or fake)",
			},
			&cli.StringFlag{
				Name:  flagImages,
				Usage: "replay the images of `DIR` instead of using the camera",
			},
			&cli.StringFlag{
				Name:  flagLogFile,
				Usage: "also write logs to `FILE`",
			},
			&cli.BoolFlag{
				Name:  flagPlayground,
				Usage: "refine positions with the 3D playground transform",
			},
		},
		Action: func(c *cli.Context) error {
			return run(c, logger)
		},
	}
}

func main() {
	logger := logging.NewLogger("rod")
	app := newApp(logger)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := app.RunContext(ctx, os.Args); err != nil {
		logger.Error(err)
		stop()
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context, logger logging.Logger) (*config.Config, error) {
	cfg := config.Default()
	if path := c.String(flagConfig); path != "" {
		var err error
		if cfg, err = config.Read(path, logger); err != nil {
			return nil, errors.Wrapf(err, "cannot read config %q", path)
		}
	}
	if dir := c.String(flagImages); dir != "" {
		cfg.Camera.Source = config.SourceEmulated
		cfg.Camera.SimulatedSourcePath = dir
	}
	if src := c.String(flagSource); src != "" {
		cfg.Camera.Source = config.Source(src)
	}
	if c.Bool(flagPlayground) {
		cfg.Playground.Enabled = true
	}
	if path := c.String(flagLogFile); path != "" {
		cfg.LogFile = path
	}
	if c.Bool(flagDebug) {
		cfg.LogLevel = logging.DEBUG.String()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(c *cli.Context, logger logging.Logger) (err error) {
	cfg, err := loadConfig(c, logger)
	if err != nil {
		return err
	}
	logger.SetLevel(cfg.Level())
	if cfg.LogFile != "" {
		file := logging.NewFileAppender(cfg.LogFile)
		logger.AddAppender(file)
		defer func() {
			err = multierr.Combine(err, logger.Sync(), file.Close())
		}()
	}

	drv, err := perception.NewDriver(cfg.Camera)
	if err != nil {
		return err
	}
	detector, err := fiducial.NewDetector(cfg.Detection.Aruco)
	if err != nil {
		return errors.Wrap(err, "rebuild with -tags opencv to enable marker detection")
	}
	defer func() {
		err = multierr.Combine(err, detector.Close())
	}()

	sink := &perception.LogSink{Logger: logger.Sublogger("ipc")}
	logger.Infow("publishing markers", "socket_path", cfg.IPC.SocketPath)
	pipeline, err := perception.NewPipeline(cfg, drv, detector, sink, logger.Sublogger("perception"))
	if err != nil {
		return err
	}
	return pipeline.Run(c.Context)
}
