// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/tryxpath-cli/internal/config"
)

// -- Test Helper Functions --

// newBufferLogger initializes the global logger on an in-memory writer.
func newBufferLogger(t *testing.T, cfg config.LoggerConfig) *bytes.Buffer {
	t.Helper()
	ResetForTest()
	t.Cleanup(ResetForTest)

	var buf bytes.Buffer
	Initialize(cfg, zapcore.AddSync(&buf))
	return &buf
}

// -- Test Cases --

func TestInitialize(t *testing.T) {
	t.Run("should initialize console logger with colors", func(t *testing.T) {
		buf := newBufferLogger(t, config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "tryxpath",
			Colors:      config.ColorConfig{Info: "green"},
		})

		GetLogger().Named("popup").Info("Results displayed.")
		Sync()

		output := buf.String()
		assert.Contains(t, output, "INFO")
		assert.Contains(t, output, "Results displayed.")
		assert.Contains(t, output, "tryxpath.popup.", "component names carry a dot suffix")
		assert.Contains(t, output, colorGreen, "Info level should be colorized green")
		assert.Contains(t, output, colorReset)
	})

	t.Run("should initialize json logger", func(t *testing.T) {
		buf := newBufferLogger(t, config.LoggerConfig{
			Level:       "info",
			Format:      "json",
			ServiceName: "JSONTest",
		})

		GetLogger().Warn("This is a JSON message.", zap.String("key", "value"))
		Sync()

		var logEntry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry), "Log output should be valid JSON")

		assert.Equal(t, "WARN", logEntry["level"])
		assert.Equal(t, "JSONTest", logEntry["logger"])
		assert.Equal(t, "This is a JSON message.", logEntry["msg"])
		assert.Equal(t, "value", logEntry["key"])
	})

	t.Run("should leave levels without a known color plain", func(t *testing.T) {
		buf := newBufferLogger(t, config.LoggerConfig{
			Level:  "debug",
			Format: "console",
			Colors: config.ColorConfig{Info: "GREEN", Warn: "chartreuse"},
		})

		GetLogger().Info("colored")
		GetLogger().Warn("plain")
		Sync()

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 2)
		assert.Contains(t, lines[0], colorGreen+"INFO"+colorReset, "color names are case-insensitive")
		assert.Contains(t, lines[1], "\tWARN\t")
		assert.NotContains(t, lines[1], "\x1b[")
	})

	t.Run("should respect the level", func(t *testing.T) {
		buf := newBufferLogger(t, config.LoggerConfig{Level: "warn", Format: "json"})

		GetLogger().Info("hidden")
		GetLogger().Debug("hidden too")
		Sync()
		assert.Empty(t, buf.String())
	})

	t.Run("should write to a log file if configured", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "tryxpath.log")
		newBufferLogger(t, config.LoggerConfig{
			Level:   "debug",
			Format:  "console",
			LogFile: logFile,
			MaxSize: 1, // 1 MB
		})

		GetLogger().Error("This should go to the file.")
		Sync()

		content, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(content), "This should go to the file.")
		assert.True(t, strings.HasPrefix(strings.TrimSpace(string(content)), "{"), "file output is JSON")
	})

	t.Run("should only initialize once", func(t *testing.T) {
		buf := newBufferLogger(t, config.LoggerConfig{Level: "info", ServiceName: "First"})
		logger1 := GetLogger()

		Initialize(config.LoggerConfig{Level: "debug", ServiceName: "Second"}, zapcore.AddSync(&bytes.Buffer{}))
		logger2 := GetLogger()

		assert.Equal(t, logger1, logger2)
		logger2.Info("test")
		Sync()

		assert.Contains(t, buf.String(), "First")
		assert.NotContains(t, buf.String(), "Second")
	})
}

func TestColorTerminal(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "stderr")
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	env := func(vars map[string]string) func(string) string {
		return func(k string) string { return vars[k] }
	}

	assert.False(t, colorTerminal(f, env(nil)), "a redirected file is not a terminal")
	assert.False(t, colorTerminal(f, env(map[string]string{"NO_COLOR": "1"})))
	assert.False(t, colorTerminal(f, env(map[string]string{"TERM": "dumb"})))
}

func TestUnsyncable(t *testing.T) {
	terminal := &os.PathError{Op: "sync", Path: "/dev/stderr", Err: syscall.EINVAL}
	assert.True(t, unsyncable(terminal))
	assert.True(t, unsyncable(fmt.Errorf("flush: %w", errors.Join(terminal, &os.PathError{Op: "sync", Path: "/dev/stdout", Err: syscall.ENOTTY}))))
	assert.False(t, unsyncable(&os.PathError{Op: "sync", Path: "/var/log/tryxpath.log", Err: syscall.EIO}))
}

func TestGetLogger(t *testing.T) {
	t.Run("should return a fallback logger if not initialized", func(t *testing.T) {
		ResetForTest()
		require.NotNil(t, GetLogger())
	})

	t.Run("should return the global logger after initialization", func(t *testing.T) {
		newBufferLogger(t, config.LoggerConfig{Level: "info", ServiceName: "GlobalTest"})
		assert.Equal(t, globalLogger.Load(), GetLogger())
	})
}

func TestForPopup(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	id := NewPopupID()
	_, err := uuid.Parse(id)
	require.NoError(t, err)

	ForPopup(zap.New(core), id).Info("Popup started.")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, id, logs.All()[0].ContextMap()["popup_id"])
}
