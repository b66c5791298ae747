package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

type Config struct {
	Level     slog.Level
	Format    string
	Output    io.Writer
	AddSource bool
}

func DefaultConfig() Config {
	return Config{
		Level:     slog.LevelInfo,
		Format:    "text",
		Output:    os.Stderr,
		AddSource: false,
	}
}

// Init installs the process-wide handler. Output defaults to stderr so stdout stays
// free for the MCP stdio transport.
func Init(cfg Config) {
	var handler slog.Handler

	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	} else {
		handler = slog.NewTextHandler(cfg.Output, opts)
	}

	slog.SetDefault(slog.New(handler))
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

func Debug(msg string, args ...any) { slog.Debug(msg, args...) }
func Info(msg string, args ...any)  { slog.Info(msg, args...) }
func Warn(msg string, args ...any)  { slog.Warn(msg, args...) }
func Error(msg string, args ...any) { slog.Error(msg, args...) }

// Component tags every record with a component name. It looks up the default
// logger at call time, so package-level loggers created before Init still honour
// the configured handler.
type Component struct {
	name string
}

func ForComponent(component string) Component {
	return Component{name: component}
}

func (c Component) Logger() *slog.Logger {
	return slog.Default().With("component", c.name)
}

func (c Component) Debug(msg string, args ...any) { c.Logger().Debug(msg, args...) }
func (c Component) Info(msg string, args ...any)  { c.Logger().Info(msg, args...) }
func (c Component) Warn(msg string, args ...any)  { c.Logger().Warn(msg, args...) }
func (c Component) Error(msg string, args ...any) { c.Logger().Error(msg, args...) }

func With(args ...any) *slog.Logger {
	return slog.Default().With(args...)
}
