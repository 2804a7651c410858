// SPDX-License-Identifier: BSD-3-Clause

package hoststate

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// metrics holds the instruments recorded around every fired transition,
// mirroring statemgr.go's initializeMetrics/recordTransition pair: a
// counter of every attempt, tagged success/error, and a duration
// histogram for the successful ones.
type metrics struct {
	transitionsTotal   metric.Int64Counter
	transitionDuration metric.Float64Histogram
}

func newMetrics() (*metrics, error) {
	meter := otel.Meter("tendhost/hoststate")

	transitionsTotal, err := meter.Int64Counter(
		"tendhost_transitions_total",
		metric.WithDescription("Total number of host state machine transitions attempted"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating tendhost_transitions_total counter: %w", err)
	}

	transitionDuration, err := meter.Float64Histogram(
		"tendhost_transition_duration_seconds",
		metric.WithDescription("Duration of host state machine transitions"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating tendhost_transition_duration_seconds histogram: %w", err)
	}

	return &metrics{transitionsTotal: transitionsTotal, transitionDuration: transitionDuration}, nil
}

// fire wraps the underlying FSM's Fire with per-transition metrics,
// timing the call and recording it under the from/to/trigger/status
// attributes it committed (or attempted to).
func (m *Machine) fire(ctx context.Context, trigger string, args ...any) error {
	from := m.machine.CurrentState()
	start := time.Now()
	err := m.machine.Fire(ctx, trigger, args...)
	duration := time.Since(start)
	to := m.machine.CurrentState()

	m.recordTransition(ctx, from, to, trigger, duration, err)
	return err
}

func (m *Machine) recordTransition(ctx context.Context, from, to, trigger string, duration time.Duration, err error) {
	if m.metrics == nil {
		return
	}

	status := "success"
	if err != nil {
		status = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("host", m.identity.Name),
		attribute.String("from_state", from),
		attribute.String("to_state", to),
		attribute.String("trigger", trigger),
		attribute.String("status", status),
	)

	m.metrics.transitionsTotal.Add(ctx, 1, attrs)
	if err == nil {
		m.metrics.transitionDuration.Record(ctx, duration.Seconds(), attrs)
	}
}
