package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"":        zerolog.InfoLevel,
		"INFO":    zerolog.InfoLevel,
		"debug":   zerolog.DebugLevel,
		"WARNING": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for name, want := range cases {
		assert.Equal(t, want, ParseLevel(name), "level %q", name)
	}
}

func TestNewLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Level: "warn"}, &buf)

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestOpenAppendsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "arm_ai.log")

	logger, closeLog, err := Open(Config{Level: "info", File: path})
	require.NoError(t, err)
	logger.Info().Str("event_type", "drawdown_breach").Msg("risk event logged")
	require.NoError(t, closeLog())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), `"event_type":"drawdown_breach"`))
}

// redirect points os.Stdout and os.Stderr at temp files for the test.
func redirect(t *testing.T) (stdout, stderr *os.File) {
	t.Helper()
	dir := t.TempDir()
	var err error
	stdout, err = os.Create(filepath.Join(dir, "stdout"))
	require.NoError(t, err)
	stderr, err = os.Create(filepath.Join(dir, "stderr"))
	require.NoError(t, err)

	oldOut, oldErr := os.Stdout, os.Stderr
	os.Stdout, os.Stderr = stdout, stderr
	t.Cleanup(func() {
		os.Stdout, os.Stderr = oldOut, oldErr
		_ = stdout.Close()
		_ = stderr.Close()
	})
	return stdout, stderr
}

func TestOpenKeepsStdoutForCommandOutput(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		t.Run(format, func(t *testing.T) {
			stdout, stderr := redirect(t)

			logger, closeLog, err := Open(Config{Level: "info", Format: format})
			require.NoError(t, err)
			logger.Info().Msg("state store opened")
			require.NoError(t, closeLog())

			out, err := os.ReadFile(stdout.Name())
			require.NoError(t, err)
			assert.Empty(t, out)

			logged, err := os.ReadFile(stderr.Name())
			require.NoError(t, err)
			assert.Contains(t, string(logged), "state store opened")
		})
	}
}
