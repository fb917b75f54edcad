package projection

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the OpenTelemetry instruments for the repository, mirroring
// observability.Metrics's constructor-with-error-joining shape.
type Metrics struct {
	WritesTotal       metric.Int64Counter
	WriteFailures     metric.Int64Counter
	ReadsTotal        metric.Int64Counter
	ReadFailures      metric.Int64Counter
	SnapshotsCreated  metric.Int64Counter
	MemoryPressure    metric.Int64Counter
	VersionRefreshes  metric.Int64Counter
}

// NewMetrics creates all projection repository metric instruments.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.WritesTotal, err = meter.Int64Counter(
		"projection.writes.total",
		metric.WithDescription("Total projection commit writes attempted"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating writes.total: %w", err)
	}

	m.WriteFailures, err = meter.Int64Counter(
		"projection.writes.failures",
		metric.WithDescription("Projection commit writes that failed and were isolated"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating writes.failures: %w", err)
	}

	m.ReadsTotal, err = meter.Int64Counter(
		"projection.reads.total",
		metric.WithDescription("Total projection Get calls"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating reads.total: %w", err)
	}

	m.ReadFailures, err = meter.Int64Counter(
		"projection.reads.failures",
		metric.WithDescription("Projection Get calls that failed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating reads.failures: %w", err)
	}

	m.SnapshotsCreated, err = meter.Int64Counter(
		"projection.snapshots.created",
		metric.WithDescription("Snapshots written during the checkpoint loop"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating snapshots.created: %w", err)
	}

	m.MemoryPressure, err = meter.Int64Counter(
		"projection.memory_pressure.warnings",
		metric.WithDescription("Pages that overran EventsInSnapshot by more than 50%"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating memory_pressure.warnings: %w", err)
	}

	m.VersionRefreshes, err = meter.Int64Counter(
		"projection.versioncache.refreshes",
		metric.WithDescription("Version cache refreshes triggered by staleness"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating versioncache.refreshes: %w", err)
	}

	return m, nil
}
