// SPDX-License-Identifier: BSD-3-Clause

package supervisor

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// metrics holds the instrument recorded around every fleet update batch,
// the supervisor-level counterpart to hoststate's per-transition metrics.
type metrics struct {
	fleetBatchDuration metric.Float64Histogram
}

func newMetrics() (*metrics, error) {
	meter := otel.Meter("tendhost/supervisor")

	fleetBatchDuration, err := meter.Float64Histogram(
		"tendhost_fleet_batch_duration_seconds",
		metric.WithDescription("Duration of one fleet update batch, from dispatch to every host in it completing"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating tendhost_fleet_batch_duration_seconds histogram: %w", err)
	}

	return &metrics{fleetBatchDuration: fleetBatchDuration}, nil
}

func (s *Supervisor) recordFleetBatch(ctx context.Context, batchIndex, batchSize, failed int, duration time.Duration) {
	if s.metrics == nil {
		return
	}

	status := "success"
	if failed > 0 {
		status = "partial_failure"
	}
	s.metrics.fleetBatchDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.Int("batch_index", batchIndex),
		attribute.Int("batch_size", batchSize),
		attribute.Int("failed", failed),
		attribute.String("status", status),
	))
}
