package device

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/vitalsentry/vitalsentry/internal/device"

// syncMetrics holds the OpenTelemetry instruments for device sync.
type syncMetrics struct {
	syncTotal    metric.Int64Counter
	syncFailures metric.Int64Counter
	syncDuration metric.Float64Histogram
}

func newSyncMetrics() (*syncMetrics, error) {
	meter := otel.Meter(meterName)

	syncTotal, err := meter.Int64Counter(
		"device.sync.total",
		metric.WithDescription("Total number of completed device syncs"),
		metric.WithUnit("{sync}"),
	)
	if err != nil {
		return nil, err
	}

	syncFailures, err := meter.Int64Counter(
		"device.sync.failures",
		metric.WithDescription("Total number of failed device syncs"),
		metric.WithUnit("{sync}"),
	)
	if err != nil {
		return nil, err
	}

	syncDuration, err := meter.Float64Histogram(
		"device.sync.duration",
		metric.WithDescription("Duration of device syncs in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &syncMetrics{
		syncTotal:    syncTotal,
		syncFailures: syncFailures,
		syncDuration: syncDuration,
	}, nil
}

func deviceTypeAttr(t Type) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("device.type", string(t)))
}
