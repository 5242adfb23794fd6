package otel

import (
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestConfig_Exporting(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.exporting() {
		t.Error("default config must not export")
	}

	cfg.Enabled = true
	if cfg.exporting() {
		t.Error("enabled config without endpoint must not export")
	}

	cfg.EndpointURL = "grpc://collector:4317"
	if !cfg.exporting() {
		t.Error("enabled config with endpoint should export")
	}
}

func TestConfig_ToResourceAttributes(t *testing.T) {
	cfg := Config{
		ServiceName:        "authgate",
		ServiceVersion:     "1.2.3",
		ResourceAttributes: map[string]string{"deployment.environment": "test"},
	}

	attrs := cfg.toResourceAttributes()
	got := make(map[attribute.Key]string, len(attrs))
	for _, kv := range attrs {
		got[kv.Key] = kv.Value.AsString()
	}

	if got["service.name"] != "authgate" {
		t.Errorf("service.name = %q", got["service.name"])
	}
	if got["service.version"] != "1.2.3" {
		t.Errorf("service.version = %q", got["service.version"])
	}
	if got["deployment.environment"] != "test" {
		t.Errorf("deployment.environment = %q", got["deployment.environment"])
	}
}

func TestInitTracer_Disabled(t *testing.T) {
	tr, err := InitTracer(DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr == nil {
		t.Fatal("expected a tracer")
	}
}

func TestSampler(t *testing.T) {
	cases := map[float64]string{
		0:   "AlwaysOffSampler",
		-1:  "AlwaysOffSampler",
		1:   "AlwaysOnSampler",
		0.5: "ParentBased",
	}
	for ratio, want := range cases {
		if got := sampler(ratio).Description(); !strings.HasPrefix(got, want) {
			t.Errorf("sampler(%v) = %q, want prefix %q", ratio, got, want)
		}
	}
}
