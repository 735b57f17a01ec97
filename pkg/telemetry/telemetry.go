package telemetry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/exporters/autoexport"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otlplog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/denysvitali/tweetvault/pkg/config"
)

const serviceName = "tweetvault"

// Initialize sets up OpenTelemetry tracing and logging using autoexport.
// The returned function flushes and shuts both providers down.
func Initialize(cfg config.TelemetryConfig, version string, logger *logrus.Logger) (func(), error) {
	if !cfg.Enabled {
		return func() {}, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, err
	}

	spanExporter, err := autoexport.NewSpanExporter(context.Background())
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(spanExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)

	logExporter, err := autoexport.NewLogExporter(context.Background())
	if err != nil {
		logger.Warnf("Failed to create log exporter: %v", err)
	}

	var logProvider *sdklog.LoggerProvider
	if logExporter != nil {
		logProvider = sdklog.NewLoggerProvider(
			sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
			sdklog.WithResource(res),
		)
		global.SetLoggerProvider(logProvider)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.WithField("endpoint", cfg.Endpoint).Debug("Telemetry initialized")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := tp.Shutdown(ctx); err != nil {
			logger.WithError(err).Warn("Error shutting down tracer provider")
		}
		if logProvider != nil {
			if err := logProvider.Shutdown(ctx); err != nil {
				logger.WithError(err).Warn("Error shutting down log provider")
			}
		}
	}, nil
}

// ReportJSON records data as JSON on a child span and in the debug log.
// Callers pass redacted values; secrets must never reach this function.
func ReportJSON(ctx context.Context, logger *logrus.Logger, operation string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		logger.Errorf("Failed to marshal %s to JSON: %v", operation, err)
		return
	}

	_, span := otel.Tracer(serviceName).Start(ctx, operation)
	span.SetAttributes(
		attribute.String("json.data", string(jsonData)),
		attribute.String("data.type", dataType(data)),
	)
	span.End()

	logger.WithFields(logrus.Fields{
		"operation": operation,
		"json_data": string(jsonData),
	}).Debug("JSON data reported")

	var record otlplog.Record
	record.SetTimestamp(time.Now())
	record.SetObservedTimestamp(time.Now())
	record.SetSeverity(otlplog.SeverityDebug)
	record.SetSeverityText("DEBUG")
	record.SetBody(otlplog.StringValue(string(jsonData)))
	record.AddAttributes(otlplog.String("operation", operation))
	global.GetLoggerProvider().Logger(serviceName).Emit(ctx, record)
}

func dataType(data any) string {
	switch data.(type) {
	case map[string]any:
		return "map"
	case []any:
		return "array"
	case string:
		return "string"
	default:
		return "object"
	}
}
