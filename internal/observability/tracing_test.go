package observability

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestInitTracing_Disabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	_, span := otel.Tracer("test").Start(context.Background(), "noop")
	if span.SpanContext().IsValid() {
		t.Error("disabled tracing produced a recording span")
	}
	span.End()
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestInitTracing_Stdout(t *testing.T) {
	var buf bytes.Buffer
	cfg := TracingConfig{Enabled: true, Exporter: "stdout", SampleRatio: 1, Writer: &buf}
	shutdown, err := InitTracing(context.Background(), cfg, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		InitTracing(context.Background(), TracingConfig{}, testLogger())
	})

	_, span := otel.Tracer("test").Start(context.Background(), "viewer.draw")
	span.End()

	ShutdownWithTimeout(context.Background(), shutdown, testLogger())
	if !strings.Contains(buf.String(), "viewer.draw") {
		t.Errorf("exported spans missing viewer.draw: %q", buf.String())
	}
}

func TestInitTracing_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  TracingConfig
	}{
		{"unknown exporter", TracingConfig{Enabled: true, Exporter: "zipkin", SampleRatio: 1}},
		{"bad ratio", TracingConfig{Enabled: true, Exporter: "stdout", SampleRatio: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := InitTracing(context.Background(), tt.cfg, testLogger()); err == nil {
				t.Error("expected error")
			}
		})
	}
}
