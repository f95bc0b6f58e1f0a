// Package logger configures the process-wide logrus logger and hands out
// module-scoped entries.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/evalphobia/logrus_sentry"
	"github.com/sirupsen/logrus"
)

// Config selects the output format and verbosity. Verbosity follows the
// command line convention 0=fatal .. 5=trace.
type Config struct {
	Verbosity int
	Format    string
	Color     bool
	// SentryDSN enables error reporting when set.
	SentryDSN string
}

// DefaultConfig logs text at info level.
func DefaultConfig() Config {
	return Config{Verbosity: 3, Format: "text"}
}

// Setup applies cfg to the standard logger.
func Setup(cfg Config) error {
	return setup(logrus.StandardLogger(), cfg, os.Stderr)
}

func setup(l *logrus.Logger, cfg Config, out io.Writer) error {
	l.SetOutput(out)
	l.SetLevel(Level(cfg.Verbosity))

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   cfg.Color,
			DisableColors: !cfg.Color,
		})
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q", cfg.Format)
	}

	if cfg.SentryDSN != "" {
		hook, err := logrus_sentry.NewSentryHook(cfg.SentryDSN, []logrus.Level{
			logrus.PanicLevel,
			logrus.FatalLevel,
			logrus.ErrorLevel,
		})
		if err != nil {
			return fmt.Errorf("sentry hook: %w", err)
		}
		hook.StacktraceConfiguration.Enable = true
		l.AddHook(hook)
	}
	return nil
}

// Level maps a verbosity number onto a logrus level, clamping out of range
// values.
func Level(verbosity int) logrus.Level {
	switch {
	case verbosity <= 0:
		return logrus.FatalLevel
	case verbosity >= 5:
		return logrus.TraceLevel
	}
	return logrus.Level(verbosity + 1)
}

// New returns an entry tagged with the module name.
func New(module string) *logrus.Entry {
	return logrus.WithField("module", module)
}

// Discard returns an entry that writes nowhere, for tests and tools.
func Discard() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}
