package sandbox

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the metrics instruments for sandboxed command execution.
type Metrics struct {
	execDuration     metric.Float64Histogram
	execTotal        metric.Int64Counter
	reconcileEntries metric.Int64Counter
}

// NewMetrics creates and registers the sandbox execution metrics on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	execDuration, err := meter.Float64Histogram(
		"bubble_sandbox_exec_duration_seconds",
		metric.WithDescription("Time to run one sandboxed command end to end, including reconciliation"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	execTotal, err := meter.Int64Counter(
		"bubble_sandbox_exec_total",
		metric.WithDescription("Total sandboxed command invocations"),
	)
	if err != nil {
		return nil, err
	}

	reconcileEntries, err := meter.Int64Counter(
		"bubble_reconcile_entries_total",
		metric.WithDescription("Total overlay entries classified and applied by one Exec's reconciliation pass"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{execDuration: execDuration, execTotal: execTotal, reconcileEntries: reconcileEntries}, nil
}

// RecordExec records the duration and outcome of one Exec invocation.
func (m *Metrics) RecordExec(ctx context.Context, start time.Time, exitCode int) {
	if m == nil {
		return
	}
	outcome := "success"
	if exitCode != 0 {
		outcome = "failure"
	}
	m.execDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.String("outcome", outcome)))
	m.execTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordReconcile records how many entries one Scan pass classified,
// broken down by change type.
func (m *Metrics) RecordReconcile(ctx context.Context, changeType string, count int64) {
	if m == nil || count == 0 {
		return
	}
	m.reconcileEntries.Add(ctx, count, metric.WithAttributes(attribute.String("change_type", changeType)))
}
