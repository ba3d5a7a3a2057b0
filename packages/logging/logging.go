package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Format represents the log output format.
type Format string

// Output formats.
const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Config holds logging configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level zerolog.Level

	// Format is the output format (text or json).
	Format Format

	// Output is the writer to send logs to. Defaults to os.Stderr.
	Output io.Writer

	// NoColor disables ANSI colors in text output.
	NoColor bool
}

// DefaultConfig returns sensible defaults for logging.
func DefaultConfig() Config {
	return Config{
		Level:  zerolog.InfoLevel,
		Format: FormatText,
		Output: os.Stderr,
	}
}

// New creates a logger with the given configuration.
func New(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	if cfg.Format != FormatJSON {
		out = zerolog.ConsoleWriter{
			Out:        out,
			NoColor:    cfg.NoColor,
			TimeFormat: time.TimeOnly,
		}
	}

	return zerolog.New(out).Level(cfg.Level).With().Timestamp().Logger()
}

// Nop returns a logger that discards all output.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

// ParseLevel parses a log level string.
// Valid values: "debug", "info", "warn", "error".
// Returns info if the string is not recognized.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseFormat parses a log format string.
// Returns FormatText if the string is not recognized.
func ParseFormat(s string) Format {
	if strings.EqualFold(strings.TrimSpace(s), "json") {
		return FormatJSON
	}
	return FormatText
}

// SetLevel changes the process-wide minimum level. Loggers created with a
// lower Level follow it, which lets a running server change verbosity.
func SetLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}
