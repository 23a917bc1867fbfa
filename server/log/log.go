package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/gammadia/kubeagents/server/flags"
	"github.com/go-logr/logr"
	"github.com/spf13/viper"
	"k8s.io/klog/v2"
)

// For some reason, gopls imports a bad package when using a package-global variable 'log'
// Let's move it to an actual package so that it doesn't get confused...

// Base is a bare logger without attributes
var Base *slog.Logger

// logger is the server logger with default attributes
var logger *slog.Logger

func Init() error {
	base, err := New(os.Stdout, viper.GetString(flags.LogFormat), viper.GetString(flags.LogLevel), viper.GetBool(flags.LogSource))
	if err != nil {
		return err
	}
	SetLogger(base)

	// client-go logs through klog
	klog.SetLogger(logr.FromSlogHandler(Base.With("component", "client-go").Handler()))
	return nil
}

// SetLogger replaces the base logger.
func SetLogger(base *slog.Logger) {
	Base = base
	logger = base.With("component", "server")
}

func New(w io.Writer, format, level string, source bool) (*slog.Logger, error) {
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}

	options := slog.HandlerOptions{
		AddSource: source,
		Level:     logLevel,
	}

	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, &options)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, &options)), nil
	default:
		return nil, fmt.Errorf("unknown log format '%s'", format)
	}
}

// Proxies for slog.Logger methods

func Debug(msg string, args ...any) {
	logger.Debug(msg, args...)
}

func Info(msg string, args ...any) {
	logger.Info(msg, args...)
}

func Warn(msg string, args ...any) {
	logger.Warn(msg, args...)
}

func Error(msg string, args ...any) {
	logger.Error(msg, args...)
}

func With(args ...any) *slog.Logger {
	return logger.With(args...)
}
