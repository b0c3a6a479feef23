package observability

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestTracingConfigFromEnv(t *testing.T) {
	t.Setenv("WWTP_TRACING_ENABLED", "true")
	t.Setenv("WWTP_TRACING_EXPORTER", "OTLP")
	t.Setenv("WWTP_TRACING_SAMPLE_RATIO", "0.25")
	t.Setenv("WWTP_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("WWTP_TRACING_SERVICE_NAME", "")

	cfg := TracingConfigFromEnv()
	if !cfg.Enabled || cfg.Exporter != "otlp" || cfg.Endpoint != "collector:4317" {
		t.Fatalf("config = %+v", cfg)
	}
	if cfg.SampleRatio != 0.25 {
		t.Fatalf("SampleRatio = %v, want 0.25", cfg.SampleRatio)
	}
	if cfg.ServiceName != "wastewater-simulator" {
		t.Fatalf("ServiceName = %q, want default", cfg.ServiceName)
	}

	t.Setenv("WWTP_TRACING_SAMPLE_RATIO", "7")
	if got := TracingConfigFromEnv().SampleRatio; got != 1 {
		t.Fatalf("out-of-range ratio = %v, want fallback 1", got)
	}
}

func TestInitTracingDisabledIsNoop(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{}, nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	_, span := Tracer("test").Start(context.Background(), "noop")
	if span.SpanContext().IsValid() {
		t.Fatalf("disabled tracing produced a recording span")
	}
	span.End()
	ShutdownWithTimeout(context.Background(), shutdown, nil)
}

func TestInitTracingRejectsUnknownExporter(t *testing.T) {
	_, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "zipkin", SampleRatio: 1}, nil)
	if !errors.Is(err, ErrInvalidTracingConfig) {
		t.Fatalf("InitTracing(zipkin) error = %v, want ErrInvalidTracingConfig", err)
	}
	_, err = InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: ExporterStdout, SampleRatio: 3}, nil)
	if !errors.Is(err, ErrInvalidTracingConfig) {
		t.Fatalf("InitTracing(ratio 3) error = %v, want ErrInvalidTracingConfig", err)
	}
}

func TestInitTracingStdoutWritesPlantSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := InitTracing(context.Background(), TracingConfig{
		Enabled:     true,
		Exporter:    ExporterStdout,
		SampleRatio: 1,
		Plant:       "north-works",
		Writer:      &buf,
	}, nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	t.Cleanup(func() {
		_, _ = InitTracing(context.Background(), TracingConfig{}, nil)
	})

	_, span := Tracer("test").Start(context.Background(), "PlantState.Step")
	span.End()
	ShutdownWithTimeout(context.Background(), shutdown, nil)

	out := buf.String()
	if !strings.Contains(out, "PlantState.Step") {
		t.Fatalf("exported spans missing span name: %s", out)
	}
	if !strings.Contains(out, "north-works") {
		t.Fatalf("exported spans missing plant resource: %s", out)
	}
}
