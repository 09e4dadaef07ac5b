package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"aaronromeo.com/inboxsweep/pkg/base"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/propagators/aws/xray"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc/encoding/gzip"
)

const (
	defaultTraceEndpoint  = "otlp.uptrace.dev"
	defaultMetricEndpoint = "otlp.uptrace.dev:4317"
)

// OTelConfig selects the exporters SetupOTelSDK installs.
type OTelConfig struct {
	// DSN is sent as the uptrace-dsn header. Defaults to base.TelemetryDSNEnvVar.
	DSN string
	// StdoutLogs writes log records to LogWriter instead of exporting them over OTLP.
	StdoutLogs bool
	LogWriter  io.Writer
}

// SetupOTelSDK bootstraps the OpenTelemetry pipeline.
// If it does not return an error, make sure to call shutdown for proper cleanup.
func SetupOTelSDK(ctx context.Context, cfg OTelConfig) (shutdown func(context.Context) error, err error) {
	var shutdownFuncs []func(context.Context) error

	// The errors from the calls are joined. Each registered cleanup runs once.
	shutdown = func(ctx context.Context) error {
		var err error
		for _, fn := range shutdownFuncs {
			err = errors.Join(err, fn(ctx))
		}
		shutdownFuncs = nil
		return err
	}

	handleErr := func(inErr error) {
		err = errors.Join(inErr, shutdown(ctx))
	}

	if cfg.DSN == "" {
		cfg.DSN = os.Getenv(base.TelemetryDSNEnvVar)
	}
	if cfg.DSN == "" && !cfg.StdoutLogs {
		return shutdown, fmt.Errorf("%s environment variable is required", base.TelemetryDSNEnvVar)
	}

	otel.SetTextMapPropagator(newPropagator())

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithHost(),
		resource.WithAttributes(
			attribute.String("service.name", base.ServiceName),
			attribute.String("service.version", base.ServiceVersion),
		))
	if err != nil {
		handleErr(err)
		return
	}

	if cfg.DSN != "" {
		var tracerProvider *trace.TracerProvider
		tracerProvider, err = newTraceProvider(ctx, res, cfg.DSN)
		if err != nil {
			handleErr(err)
			return
		}
		shutdownFuncs = append(shutdownFuncs, tracerProvider.Shutdown)
		otel.SetTracerProvider(tracerProvider)

		var meterProvider *metric.MeterProvider
		meterProvider, err = newMeterProvider(ctx, res, cfg.DSN)
		if err != nil {
			handleErr(err)
			return
		}
		shutdownFuncs = append(shutdownFuncs, meterProvider.Shutdown)
		otel.SetMeterProvider(meterProvider)
	}

	loggerProvider, err := newLoggerProvider(ctx, res, cfg)
	if err != nil {
		handleErr(err)
		return
	}
	shutdownFuncs = append(shutdownFuncs, loggerProvider.Shutdown)
	global.SetLoggerProvider(loggerProvider)

	return
}

// NewLogger returns the process logger. With telemetry on, records flow through the
// global logger provider; otherwise they are written as JSON to w.
func NewLogger(telemetry bool, w io.Writer, level slog.Level) *slog.Logger {
	if telemetry {
		return otelslog.NewLogger(base.ServiceName, otelslog.WithLoggerProvider(global.GetLoggerProvider()))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

func newPropagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
		xray.Propagator{},
	)
}

func newTraceProvider(ctx context.Context, res *resource.Resource, dsn string) (*trace.TracerProvider, error) {
	traceExporter, err := otlptracehttp.New(
		ctx,
		otlptracehttp.WithEndpoint(defaultTraceEndpoint),
		otlptracehttp.WithHeaders(map[string]string{
			"uptrace-dsn": dsn,
		}),
		otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
	)
	if err != nil {
		return nil, err
	}

	return trace.NewTracerProvider(
		trace.WithResource(res),
		trace.WithIDGenerator(xray.NewIDGenerator()),
		trace.WithBatcher(traceExporter,
			trace.WithMaxQueueSize(10_000),
			trace.WithMaxExportBatchSize(10_000),
			trace.WithBatchTimeout(time.Second)),
	), nil
}

func preferDeltaTemporality(kind metric.InstrumentKind) metricdata.Temporality {
	switch kind {
	case metric.InstrumentKindCounter,
		metric.InstrumentKindObservableCounter,
		metric.InstrumentKindHistogram:
		return metricdata.DeltaTemporality
	default:
		return metricdata.CumulativeTemporality
	}
}

func newMeterProvider(ctx context.Context, res *resource.Resource, dsn string) (*metric.MeterProvider, error) {
	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(defaultMetricEndpoint),
		otlpmetricgrpc.WithHeaders(map[string]string{
			"uptrace-dsn": dsn,
		}),
		otlpmetricgrpc.WithCompressor(gzip.Name),
		otlpmetricgrpc.WithTemporalitySelector(preferDeltaTemporality),
	)
	if err != nil {
		return nil, err
	}

	reader := metric.NewPeriodicReader(
		metricExporter,
		metric.WithInterval(15*time.Second),
	)

	return metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(reader),
	), nil
}

func newLoggerExporter(ctx context.Context, cfg OTelConfig) (log.Exporter, error) {
	if cfg.StdoutLogs {
		w := cfg.LogWriter
		if w == nil {
			w = os.Stdout
		}
		return stdoutlog.New(stdoutlog.WithWriter(w))
	}

	return otlploghttp.New(ctx,
		otlploghttp.WithEndpoint(defaultTraceEndpoint),
		otlploghttp.WithHeaders(map[string]string{
			"uptrace-dsn": cfg.DSN,
		}),
		otlploghttp.WithCompression(otlploghttp.GzipCompression),
	)
}

func newLoggerProvider(ctx context.Context, res *resource.Resource, cfg OTelConfig) (*log.LoggerProvider, error) {
	logExporter, err := newLoggerExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var processor log.Processor = log.NewBatchProcessor(logExporter)
	if cfg.StdoutLogs {
		processor = log.NewSimpleProcessor(logExporter)
	}

	return log.NewLoggerProvider(
		log.WithResource(res),
		log.WithProcessor(processor),
	), nil
}
