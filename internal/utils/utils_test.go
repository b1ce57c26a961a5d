package utils

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keepDefaultLogger(t *testing.T) {
	t.Helper()
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })
}

func TestConfigureDefaultLoggerLevels(t *testing.T) {
	keepDefaultLogger(t)

	for _, level := range []string{"none", "error", "warn", "info", "debug"} {
		closer, err := ConfigureDefaultLogger(level, "", LogFileOptions{}, slog.HandlerOptions{})
		assert.NoError(t, err, level)
		assert.Nil(t, closer, level)
	}

	_, err := ConfigureDefaultLogger("verbose", "", LogFileOptions{}, slog.HandlerOptions{})
	assert.ErrorIs(t, err, ErrUnexpectedLogLevel)
}

func TestConfigureDefaultLoggerFile(t *testing.T) {
	keepDefaultLogger(t)
	logFile := filepath.Join(t.TempDir(), "voicerecorder.log")

	closer, err := ConfigureDefaultLogger("warn", logFile, LogFileOptions{MaxSizeMB: 1, MaxBackups: 1}, slog.HandlerOptions{})
	require.NoError(t, err)
	require.NotNil(t, closer)

	slog.Info("filtered out")
	slog.Warn("disk almost full", "freeMB", 12)
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &record))
	assert.Equal(t, "WARN", record["level"])
	assert.Equal(t, "disk almost full", record["msg"])
	assert.Equal(t, float64(12), record["freeMB"])
}

func TestSetViperDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetViperDefaults()

	assert.Equal(t, "info", viper.GetString("loglevel"))
	assert.Equal(t, 48000, viper.GetInt("samplerate"))
	assert.Equal(t, "wav", viper.GetString("format"))
	assert.Equal(t, 1, viper.GetInt("mixdownchannels"))
	assert.Equal(t, "Recordings/%date/%time - %user", viper.GetString("pathtemplate"))
	assert.NotEmpty(t, viper.GetStringSlice("codecs"))
}
