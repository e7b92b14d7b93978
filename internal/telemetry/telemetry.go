// Package telemetry records chat turns as OpenTelemetry spans.
package telemetry

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const serviceName = "chatedit"

// TelemetryConfig holds the configuration for telemetry
type TelemetryConfig struct {
	Enabled bool
	// Endpoint is an OTLP/HTTP URL. Empty means the exporter's default, which honors the OTEL_EXPORTER_OTLP_* variables.
	Endpoint       string
	ServiceVersion string
}

// Provider manages the telemetry system
type Provider struct {
	tp     *sdktrace.TracerProvider // nil when disabled or injected
	tracer trace.Tracer
}

// NewProvider creates a new telemetry provider. When telemetry is disabled, spans go to a no-op tracer.
func NewProvider(ctx context.Context, config TelemetryConfig) (*Provider, error) {
	if !config.Enabled {
		log.Printf("Telemetry disabled")
		return NewProviderWithTracer(noop.NewTracerProvider().Tracer(serviceName)), nil
	}

	var opts []otlptracehttp.Option
	if config.Endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpointURL(config.Endpoint))
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	version := config.ServiceVersion
	if version == "" {
		version = "dev"
	}
	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("service.version", version),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	log.Printf("Telemetry enabled, exporting traces over OTLP/HTTP")

	return &Provider{tp: tp, tracer: tp.Tracer(serviceName)}, nil
}

// NewProviderWithTracer wraps an existing tracer. Shutdown is a no-op for such providers.
func NewProviderWithTracer(tracer trace.Tracer) *Provider {
	return &Provider{tracer: tracer}
}

// Shutdown flushes pending spans and shuts down the telemetry provider
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	log.Printf("Shutting down telemetry provider")
	return p.tp.Shutdown(ctx)
}

// TurnTelemetry holds telemetry data for one chat turn
type TurnTelemetry struct {
	SessionID     string
	TurnID        string
	TurnIndex     int
	HistoryLength int
	TargetFiles   int
	Provider      string
	Model         string
}

// TurnSpan is the span covering one chat turn
type TurnSpan struct {
	span trace.Span
}

// StartTurn starts the span for a chat turn. A nil provider yields a span that records nothing.
func (p *Provider) StartTurn(ctx context.Context, turn TurnTelemetry) (context.Context, *TurnSpan) {
	var tracer trace.Tracer = noop.NewTracerProvider().Tracer(serviceName)
	if p != nil {
		tracer = p.tracer
	}

	ctx, span := tracer.Start(ctx, "chat.turn", trace.WithAttributes(
		attribute.String("chatedit.session_id", turn.SessionID),
		attribute.String("chatedit.turn_id", turn.TurnID),
		attribute.Int("chatedit.turn_index", turn.TurnIndex),
		attribute.Int("chatedit.history_length", turn.HistoryLength),
		attribute.Int("chatedit.target_files", turn.TargetFiles),
		attribute.String("chatedit.provider", turn.Provider),
		attribute.String("chatedit.model", turn.Model),
	))
	return ctx, &TurnSpan{span: span}
}

// EditTelemetry holds telemetry data for one applied edit
type EditTelemetry struct {
	Path      string
	OK        bool
	ErrorKind string
	Created   bool
	NewDirs   int
	Bytes     int
}

// RecordEdit adds an event for one applied edit
func (s *TurnSpan) RecordEdit(e EditTelemetry) {
	s.span.AddEvent("file_edit", trace.WithAttributes(
		attribute.String("chatedit.path", e.Path),
		attribute.Bool("chatedit.ok", e.OK),
		attribute.String("chatedit.error_kind", e.ErrorKind),
		attribute.Bool("chatedit.created", e.Created),
		attribute.Int("chatedit.new_dirs", e.NewDirs),
		attribute.Int("chatedit.bytes", e.Bytes),
	))
}

// RecordResponse records what was found in the model's reply
func (s *TurnSpan) RecordResponse(responseSize int, outcome string, edits int, failures int) {
	s.span.SetAttributes(
		attribute.Int("chatedit.response_size", responseSize),
		attribute.String("chatedit.outcome", outcome),
		attribute.Int("chatedit.edits", edits),
		attribute.Int("chatedit.edit_failures", failures),
	)
}

// End ends the span, marking it failed if err is non-nil
func (s *TurnSpan) End(err error) {
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}

// NewSessionID generates a new session UUID
func NewSessionID() string {
	return uuid.New().String()
}

// NewTurnID generates a new turn UUID
func NewTurnID() string {
	return uuid.New().String()
}
