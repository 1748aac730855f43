package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/urfave/cli/v2"
	"go.viam.com/test"

	"github.com/noegame/ROD/config"
	"github.com/noegame/ROD/logging"
	"github.com/noegame/ROD/vision/playground"
)

func loadWithArgs(t *testing.T, args ...string) (*config.Config, error) {
	t.Helper()
	logger := logging.NewTestLogger(t)
	app := newApp(logger)
	var cfg *config.Config
	app.Action = func(c *cli.Context) error {
		var err error
		cfg, err = loadConfig(c, logger)
		return err
	}
	err := app.Run(append([]string{"rod"}, args...))
	return cfg, err
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadWithArgs(t)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Camera.Source, test.ShouldEqual, config.SourceV4L2)
	test.That(t, cfg.Playground.Enabled, test.ShouldBeFalse)
	test.That(t, cfg.Level(), test.ShouldEqual, logging.INFO)
}

func TestLoadConfigOverrides(t *testing.T) {
	dir := t.TempDir()
	cfg, err := loadWithArgs(t,
		"--simulated-source-path", dir,
		"--playground",
		"--debug",
		"--log-file", filepath.Join(dir, "rod.log"),
	)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Camera.Source, test.ShouldEqual, config.SourceEmulated)
	test.That(t, cfg.Camera.SimulatedSourcePath, test.ShouldEqual, dir)
	test.That(t, cfg.Playground.Enabled, test.ShouldBeTrue)
	test.That(t, cfg.Playground.Mode, test.ShouldEqual, playground.ModeRigid)
	test.That(t, cfg.Level(), test.ShouldEqual, logging.DEBUG)
	test.That(t, cfg.LogFile, test.ShouldEqual, filepath.Join(dir, "rod.log"))

	cfg, err = loadWithArgs(t, "--source", "fake")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Camera.Source, test.ShouldEqual, config.SourceFake)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rod.json")
	err := os.WriteFile(path, []byte(`{"camera": {"source": "fake", "width": 320, "height": 240}}`), 0o600)
	test.That(t, err, test.ShouldBeNil)

	cfg, err := loadWithArgs(t, "-c", path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Camera.Source, test.ShouldEqual, config.SourceFake)
	test.That(t, cfg.Camera.Width, test.ShouldEqual, 320)
	test.That(t, cfg.ConfigFilePath, test.ShouldEqual, path)

	_, err = loadWithArgs(t, "--source", "webcam")
	test.That(t, err, test.ShouldNotBeNil)

	_, err = loadWithArgs(t, "-c", filepath.Join(t.TempDir(), "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)
}
