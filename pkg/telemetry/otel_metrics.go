package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/insightbridge/insightbridge/pkg/domain"
)

var (
	metricsOnce              sync.Once
	metricsInitErr           error
	decisionCounter          metric.Int64Counter
	decisionLatencyHistogram metric.Float64Histogram
)

// RecordDecisionMetrics emits the OpenTelemetry counters and histograms that
// describe decision behaviour. It is a no-op when no meter provider is
// configured or instrument creation failed.
func RecordDecisionMetrics(ctx context.Context, event domain.DecisionEvent) {
	if err := ensureMetrics(); err != nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("gateway.decision", string(event.Decision)),
	}
	if event.Reason != nil {
		attrs = append(attrs, attribute.String("gateway.deny_reason", string(*event.Reason)))
	}

	decisionCounter.Add(ctx, 1, metric.WithAttributes(attrs...))

	if event.LatencyMs >= 0 {
		decisionLatencyHistogram.Record(ctx, float64(event.LatencyMs), metric.WithAttributes(attrs...))
	}
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("gateway.pipeline")

		decisionCounter, metricsInitErr = meter.Int64Counter(
			"gateway.decisions_total",
			metric.WithDescription("Validation decisions partitioned by verdict and deny reason"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		decisionLatencyHistogram, metricsInitErr = meter.Float64Histogram(
			"gateway.decision.duration_ms",
			metric.WithDescription("Observed decision pipeline latency"),
			metric.WithUnit("ms"),
		)
	})

	return metricsInitErr
}
