package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"

	"github.com/devraulu/airank/pkg/config"
)

// InitLogger installs the default slog logger. When a log file is configured
// its JSON records are fanned out next to stdout. The returned func closes
// the file.
func InitLogger(cfg *config.Config) func() error {
	handler, cleanup := newHandler(cfg, os.Stdout)

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	logger := slog.New(handler).With(
		"name", "airank",
		"pid", os.Getpid(),
		"hostname", hostname,
	)
	slog.SetDefault(logger)
	return cleanup
}

func newHandler(cfg *config.Config, stdout io.Writer) (slog.Handler, func() error) {
	level := ParseLevel(cfg.Logging.Level)
	jsonOut := cfg.Logging.Format != "text"

	var handler slog.Handler
	if jsonOut {
		handler = slog.NewJSONHandler(stdout, options(level, true))
	} else {
		handler = slog.NewTextHandler(stdout, options(level, false))
	}

	if cfg.Logging.File == "" {
		return handler, func() error { return nil }
	}

	file, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		slog.Error("failed to open log file, using stdout only", slog.String("file", cfg.Logging.File), slog.Any("err", err))
		return handler, func() error { return nil }
	}

	fileHandler := slog.NewJSONHandler(file, options(level, true))
	return slogmulti.Fanout(handler, fileHandler), file.Close
}

func options(level slog.Level, bunyan bool) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Only use bunyan levels if JSON
			if bunyan && a.Key == slog.LevelKey {
				if level, ok := a.Value.Any().(slog.Level); ok {
					return slog.Int(a.Key, bunyanLevel(level))
				}
			}
			return a
		},
	}
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func bunyanLevel(level slog.Level) int {
	switch {
	case level >= slog.LevelError:
		return 50
	case level >= slog.LevelWarn:
		return 40
	case level >= slog.LevelInfo:
		return 30
	case level >= slog.LevelDebug:
		return 20
	default:
		return 10
	}
}
