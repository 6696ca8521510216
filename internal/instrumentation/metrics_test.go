package instrumentation

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestProvider(t *testing.T) (*Provider, context.Context) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	provider, err := NewProvider(ctx, Config{
		ServiceName:     "test-service",
		ServiceVersion:  "1.0.0",
		Enabled:         true,
		MetricsExporter: ExporterPrometheus,
		TracingExporter: ExporterNone,
	})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	t.Cleanup(func() { _ = provider.Shutdown(ctx) })
	return provider, ctx
}

func TestMetrics_RecordUpstreamOperation(t *testing.T) {
	provider, ctx := newTestProvider(t)
	metrics := provider.Metrics()
	if metrics == nil {
		t.Fatal("expected metrics to be non-nil")
	}

	// Should not panic
	metrics.RecordUpstreamOperation(ctx, ServiceGmail, "gmail.send", StatusSuccess, 200*time.Millisecond)
	metrics.RecordUpstreamOperation(ctx, ServiceJobs, "jobs.search", StatusError, 500*time.Millisecond)
}

func TestMetrics_RecordTokenRefresh(t *testing.T) {
	provider, ctx := newTestProvider(t)
	metrics := provider.Metrics()

	// Should not panic
	metrics.RecordTokenRefresh(ctx, StatusSuccess)
	metrics.RecordTokenRefresh(ctx, StatusError)
}

func TestMetrics_RecordToolInvocation(t *testing.T) {
	provider, ctx := newTestProvider(t)
	metrics := provider.Metrics()

	// Should not panic
	metrics.RecordToolInvocation(ctx, "gmail_send_email", StatusSuccess, 150*time.Millisecond)
	metrics.RecordToolInvocation(ctx, "jobs_search", StatusError, 50*time.Millisecond)
}

func TestMetrics_RecordDigestCycle(t *testing.T) {
	provider, ctx := newTestProvider(t)
	metrics := provider.Metrics()

	// Should not panic
	metrics.RecordDigestCycle(ctx, StatusSuccess)
	metrics.RecordDigestCycle(ctx, StatusError)
}

func TestMetrics_NoOpWhenDisabled(t *testing.T) {
	ctx := context.Background()
	provider, err := NewProvider(ctx, Config{Enabled: false})
	if err != nil {
		t.Fatalf("failed to create disabled provider: %v", err)
	}
	if provider.Enabled() {
		t.Error("expected provider to be disabled")
	}

	metrics := provider.Metrics()
	if metrics == nil {
		t.Fatal("disabled provider must still return a metrics recorder")
	}

	// All recorders are no-ops and must not panic.
	metrics.RecordUpstreamOperation(ctx, ServiceGmail, "gmail.get", StatusSuccess, time.Millisecond)
	metrics.RecordTokenRefresh(ctx, StatusSuccess)
	metrics.RecordToolInvocation(ctx, "gmail_get_email", StatusSuccess, time.Millisecond)
	metrics.RecordDigestCycle(ctx, StatusSuccess)

	if err := provider.Shutdown(ctx); err != nil {
		t.Errorf("shutdown of disabled provider failed: %v", err)
	}
}

func TestStatusOf(t *testing.T) {
	if got := StatusOf(nil); got != StatusSuccess {
		t.Errorf("StatusOf(nil) = %q, want %q", got, StatusSuccess)
	}
	if got := StatusOf(errors.New("boom")); got != StatusError {
		t.Errorf("StatusOf(err) = %q, want %q", got, StatusError)
	}
}
