package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config describes logger runtime configuration.
type Config struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format" validate:"omitempty,oneof=json console"`
	File        string `mapstructure:"file" yaml:"file"`
	TimeFormat  string `mapstructure:"time_format" yaml:"time_format"`
	Caller      bool   `mapstructure:"caller" yaml:"caller"`
	PrettyPrint bool   `mapstructure:"pretty" yaml:"pretty"`
}

// Open builds the process logger. Output goes to stderr, leaving stdout to
// command output, and, when cfg.File is set, is appended to that file as JSON.
// The returned func closes the file.
func Open(cfg Config) (zerolog.Logger, func() error, error) {
	setTimeFormat(cfg)
	if cfg.File == "" {
		return NewLogger(cfg, consoleWriter(cfg)), func() error { return nil }, nil
	}

	if dir := filepath.Dir(cfg.File); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("create log dir: %w", err)
		}
	}
	file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("open log file: %w", err)
	}

	writer := zerolog.MultiLevelWriter(consoleWriter(cfg), file)
	return NewLogger(cfg, writer), file.Close, nil
}

// NewLogger constructs a zerolog logger writing to out.
func NewLogger(cfg Config, out io.Writer) zerolog.Logger {
	setTimeFormat(cfg)
	logger := zerolog.New(out).Level(ParseLevel(cfg.Level))
	builder := logger.With().Timestamp()
	if cfg.Caller {
		builder = builder.Caller()
	}

	return builder.Logger()
}

// ParseLevel maps a case-insensitive level name to a zerolog level, falling
// back to info.
func ParseLevel(name string) zerolog.Level {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "warning" {
		return zerolog.WarnLevel
	}
	if parsed, err := zerolog.ParseLevel(name); err == nil && name != "" {
		return parsed
	}
	return zerolog.InfoLevel
}

func setTimeFormat(cfg Config) {
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.TimeFormat != "" {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	}
}

func consoleWriter(cfg Config) io.Writer {
	if cfg.PrettyPrint || strings.EqualFold(cfg.Format, "console") {
		return zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: zerolog.TimeFieldFormat,
		}
	}
	return os.Stderr
}
