package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/exporters/autoexport"
	logGlobal "go.opentelemetry.io/otel/log/global"
	logSdk "go.opentelemetry.io/otel/sdk/log"

	"github.com/italypaleale/timekeeper/config"
)

func getLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info": // Also default log level
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, config.NewConfigError("Invalid value for 'logLevel'", "Invalid configuration")
	}
}

// InitLogsOpts contains options for the InitLogs method
type InitLogsOpts struct {
	Config     config.Base
	AppName    string
	AppVersion string

	// Log level: "debug", "info", "warn", "error", or an empty string (defaults to "info")
	Level string
	// If true, logs as JSON
	JSON bool

	// Where console logs are written to; defaults to os.Stdout
	Out io.Writer
}

// InitLogs initializes a new slog logger, which also sends logs to OpenTelemetry.
// Logs are exported to OpenTelemetry only if the OTEL_LOGS_EXPORTER env var is set.
func InitLogs(ctx context.Context, opts InitLogsOpts) (log *slog.Logger, shutdownFn func(ctx context.Context) error, err error) {
	level, err := getLogLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	handler := consoleHandler(opts.Out, level, opts.JSON)

	resource, err := opts.Config.GetOtelResource(opts.AppName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get OpenTelemetry resource: %w", err)
	}

	// If the env var OTEL_LOGS_EXPORTER is empty, we set it to "none"
	if os.Getenv("OTEL_LOGS_EXPORTER") == "" {
		_ = os.Setenv("OTEL_LOGS_EXPORTER", "none") //nolint:errcheck
	}
	exp, err := autoexport.NewLogExporter(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize OpenTelemetry log exporter: %w", err)
	}

	provider := logSdk.NewLoggerProvider(
		logSdk.WithProcessor(logSdk.NewBatchProcessor(exp)),
		logSdk.WithResource(resource),
	)
	logGlobal.SetLoggerProvider(provider)

	// Fan out to the console and to OTel
	handler = slog.NewMultiHandler(
		handler,
		otelslog.NewHandler(opts.AppName, otelslog.WithLoggerProvider(provider)),
	)

	log = slog.New(handler).
		With(slog.String("app", opts.AppName)).
		With(slog.String("version", opts.AppVersion))

	return log, provider.Shutdown, nil
}

func consoleHandler(out io.Writer, level slog.Level, asJSON bool) slog.Handler {
	if out == nil {
		out = os.Stdout
	}

	switch {
	case asJSON:
		return slog.NewJSONHandler(out, &slog.HandlerOptions{
			Level: level,
		})
	case isTerminal(out):
		// Enable colors if we have a TTY
		return tint.NewHandler(out, &tint.Options{
			Level:      level,
			TimeFormat: time.StampMilli,
		})
	default:
		return slog.NewTextHandler(out, &slog.HandlerOptions{
			Level: level,
		})
	}
}

func isTerminal(out io.Writer) bool {
	f, ok := out.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}
