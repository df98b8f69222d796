// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/replay-cli/internal/config"
)

// syncBuffer is a goroutine-safe WriteSyncer for capturing output.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) Sync() error { return nil }

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

var _ zapcore.WriteSyncer = (*syncBuffer)(nil)

func TestNewLogger_Console(t *testing.T) {
	var out syncBuffer
	logger := NewLogger(config.LoggerConfig{
		Level:       "debug",
		Format:      "console",
		ServiceName: "replay-cli",
		Colors:      config.ColorConfig{Info: "blue"},
	}, &out)

	logger.Named("resolver").Info("Adopted best-matching selector", zap.Int("index", 2))
	logger.Debug("attempt")
	logged := out.String()

	assert.Contains(t, logged, colorBlue+"INFO"+colorReset)
	assert.Contains(t, logged, colorCyan+"DEBUG"+colorReset, "blank colors fall back to defaults")
	assert.Contains(t, logged, "replay-cli.resolver.")
	assert.Contains(t, logged, `{"index": 2}`)
}

func TestNewLogger_JSON(t *testing.T) {
	var out syncBuffer
	logger := NewLogger(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "JSONTest"}, &out)
	logger.Debug("filtered")
	logger.Warn("Relay failed", zap.String("kind", "coverage"))

	var entry map[string]interface{}
	require.NoError(t, jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal([]byte(out.String()), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "JSONTest", entry["logger"])
	assert.Equal(t, "Relay failed", entry["msg"])
	assert.Equal(t, "coverage", entry["kind"])
}

func TestNewLogger_InvalidLevelDefaultsToInfo(t *testing.T) {
	var out syncBuffer
	logger := NewLogger(config.LoggerConfig{Level: "loud", Format: "json"}, &out)
	logger.Debug("hidden")
	logger.Info("shown")
	assert.NotContains(t, out.String(), "hidden")
	assert.Contains(t, out.String(), "shown")
}

func TestNewLogger_FileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replay.log")
	var out syncBuffer
	logger := NewLogger(config.LoggerConfig{Level: "debug", Format: "console", LogFile: path, MaxSize: 1}, &out)
	logger.Error("This should go to the file.")
	require.NoError(t, logger.Sync())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), `"msg":"This should go to the file."`, "file sink is always JSON")
}

func TestInitialize_OnlyOnce(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	var first, second syncBuffer
	Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "First"}, &first)
	logger1 := GetLogger()
	Initialize(config.LoggerConfig{Level: "debug", Format: "json", ServiceName: "Second"}, &second)
	logger2 := GetLogger()

	assert.Same(t, logger1, logger2)
	logger2.Info("test")
	Sync()
	assert.Contains(t, first.String(), `"logger":"First"`)
	assert.Empty(t, second.String())
}

func TestGetLogger_Fallback(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)
	assert.NotNil(t, GetLogger())
	Sync()
}
