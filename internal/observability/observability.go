// Package observability installs the process-wide slog logger.
package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// Supported log formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatOTel = "otel"
)

const instrumentationName = "github.com/photolala/photolala-access"

// Instrument sets slog's default logger for the given level and format and
// returns a function that flushes buffered records. The returned function is
// never nil.
func Instrument(level slog.Level, format string) (func(context.Context) error, error) {
	return instrument(os.Stderr, level, format)
}

func instrument(w io.Writer, level slog.Level, format string) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	opts := &slog.HandlerOptions{Level: level}

	switch format {
	case "", FormatText:
		slog.SetDefault(slog.New(slog.NewTextHandler(w, opts)))
		return noop, nil
	case FormatJSON:
		slog.SetDefault(slog.New(slog.NewJSONHandler(w, opts)))
		return noop, nil
	case FormatOTel:
		exporter, err := stdoutlog.New(stdoutlog.WithWriter(w))
		if err != nil {
			return noop, fmt.Errorf("creating stdout log exporter: %w", err)
		}

		processor := minsev.NewLogProcessor(sdklog.NewSimpleProcessor(exporter), severity(level))
		provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(processor))
		global.SetLoggerProvider(provider)

		slog.SetDefault(slog.New(otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(provider))))

		return provider.Shutdown, nil
	default:
		return noop, fmt.Errorf("unsupported log format: %q", format)
	}
}

// severity maps an slog level onto the closest OpenTelemetry severity.
func severity(level slog.Level) minsev.Severity {
	switch {
	case level <= slog.LevelDebug:
		return minsev.SeverityDebug
	case level <= slog.LevelInfo:
		return minsev.SeverityInfo
	case level <= slog.LevelWarn:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}
