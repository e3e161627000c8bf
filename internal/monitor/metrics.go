package monitor

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/vitalsentry/vitalsentry/internal/monitor"

// sweepMetrics holds the OpenTelemetry instruments for the monitor.
type sweepMetrics struct {
	sweepTotal     metric.Int64Counter
	updateTotal    metric.Int64Counter
	updateFailures metric.Int64Counter
	sweepDuration  metric.Float64Histogram
	trackedCount   metric.Int64UpDownCounter
}

func newSweepMetrics() (*sweepMetrics, error) {
	meter := otel.Meter(meterName)

	sweepTotal, err := meter.Int64Counter(
		"monitor.sweep.total",
		metric.WithDescription("Total number of location sweeps"),
		metric.WithUnit("{sweep}"),
	)
	if err != nil {
		return nil, err
	}

	updateTotal, err := meter.Int64Counter(
		"monitor.location.updates",
		metric.WithDescription("Total number of successful location updates"),
		metric.WithUnit("{update}"),
	)
	if err != nil {
		return nil, err
	}

	updateFailures, err := meter.Int64Counter(
		"monitor.location.failures",
		metric.WithDescription("Total number of failed location updates"),
		metric.WithUnit("{update}"),
	)
	if err != nil {
		return nil, err
	}

	sweepDuration, err := meter.Float64Histogram(
		"monitor.sweep.duration",
		metric.WithDescription("Duration of location sweeps in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	trackedCount, err := meter.Int64UpDownCounter(
		"monitor.locations.tracked",
		metric.WithDescription("Number of currently tracked locations"),
		metric.WithUnit("{location}"),
	)
	if err != nil {
		return nil, err
	}

	return &sweepMetrics{
		sweepTotal:     sweepTotal,
		updateTotal:    updateTotal,
		updateFailures: updateFailures,
		sweepDuration:  sweepDuration,
		trackedCount:   trackedCount,
	}, nil
}
