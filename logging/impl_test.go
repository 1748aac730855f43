package logging

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.viam.com/test"
)

func TestObservedLevels(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	logger.SetLevel(WARN)

	logger.Debug("dropped")
	logger.Info("dropped")
	logger.Warnw("exposure clamped", "requested", 50000, "applied", 33000)
	logger.Errorf("frame %d lost", 7)

	test.That(t, logs.Len(), test.ShouldEqual, 2)
	entries := logs.All()
	test.That(t, entries[0].Message, test.ShouldEqual, "exposure clamped")
	test.That(t, entries[0].ContextMap()["requested"], test.ShouldEqual, int64(50000))
	test.That(t, entries[1].Message, test.ShouldEqual, "frame 7 lost")
}

func TestDebugContext(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	logger.SetLevel(INFO)

	logger.CDebug(context.Background(), "dropped")
	test.That(t, logs.Len(), test.ShouldEqual, 0)

	ctx := EnableDebugMode(context.Background(), "")
	test.That(t, IsDebugMode(ctx), test.ShouldBeTrue)
	logger.CDebugw(ctx, "kept", "seq", 3)
	test.That(t, logs.Len(), test.ShouldEqual, 1)
}

func TestSublogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewBlankLogger("rod")
	logger.AddAppender(NewWriterAppender(&buf))

	sub := logger.Sublogger("capture")
	sub.Infow("started", "buffers", 4)

	line := buf.String()
	test.That(t, line, test.ShouldContainSubstring, "rod.capture")
	test.That(t, line, test.ShouldContainSubstring, "INFO")
	test.That(t, line, test.ShouldContainSubstring, "impl_test.go")
	test.That(t, line, test.ShouldContainSubstring, `{"buffers": 4}`)
	test.That(t, strings.Count(line, "\n"), test.ShouldEqual, 1)
}

func TestUnpairedKey(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	logger.Infow("odd", "lonely")
	test.That(t, logs.Len(), test.ShouldEqual, 1)
	_, ok := logs.All()[0].ContextMap()["lonely"]
	test.That(t, ok, test.ShouldBeTrue)
}

func TestLevelFromString(t *testing.T) {
	for _, tc := range []struct {
		in       string
		expected Level
	}{
		{"debug", DEBUG},
		{"INFO", INFO},
		{"Warning", WARN},
		{"error", ERROR},
	} {
		level, err := LevelFromString(tc.in)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, level, test.ShouldEqual, tc.expected)
	}

	_, err := LevelFromString("loud")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestFileAppender(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rod.log")
	appender := NewFileAppender(path)
	logger := NewBlankLogger("rod")
	logger.AddAppender(appender)
	logger.Warnw("field lost", "frame", 12)
	test.That(t, logger.Sync(), test.ShouldBeNil)
	test.That(t, appender.Close(), test.ShouldBeNil)

	data, err := os.ReadFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(data), test.ShouldContainSubstring, "field lost")
	test.That(t, string(data), test.ShouldContainSubstring, `{"frame": 12}`)
}
