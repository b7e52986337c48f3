// Package bubble exposes the sandboxed command execution core's public
// surface: a capability check, a constructor scoped to one project, and
// a suspending Exec call that runs a command, reconciles its filesystem
// effects back into the project tree, and tears down its overlay.
package bubble

import (
	"context"
	"fmt"
	"time"

	"github.com/relaycode/bubble/lib/integrate"
	"github.com/relaycode/bubble/lib/logger"
	"github.com/relaycode/bubble/lib/project"
	"github.com/relaycode/bubble/lib/reconcile"
	"github.com/relaycode/bubble/lib/sandbox"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// CanSandbox reports whether bubblewrap is usable in the current
// environment. Callers must consult this before New and choose a
// fallback otherwise; the core does not implement one.
func CanSandbox() bool {
	return sandbox.CanSandbox()
}

// Probe returns the detailed capability report behind CanSandbox, for
// diagnostics beyond the bare boolean spec.md §6 requires.
func Probe() sandbox.CapabilityReport {
	return sandbox.Probe()
}

// Bubble is the public facade over one project's sandboxed command
// execution core.
type Bubble struct {
	proj         project.ProjectFolder
	allowNetwork bool

	workspace *sandbox.OverlayWorkspace
	launcher  *sandbox.SandboxLauncher
	pump      *sandbox.OutputPump
	metrics   *sandbox.Metrics

	tracer trace.Tracer
}

// Option configures a Bubble at construction time.
type Option func(*Bubble)

// WithMetrics registers sandbox execution metrics on meter.
func WithMetrics(meter metric.Meter) Option {
	return func(b *Bubble) {
		m, err := sandbox.NewMetrics(meter)
		if err == nil {
			b.metrics = m
		}
	}
}

// WithTracer attaches a tracer used to span each Exec call.
func WithTracer(tracer trace.Tracer) Option {
	return func(b *Bubble) { b.tracer = tracer }
}

// WithMaxCombinedOutput caps CommandResult.Combined at maxBytes,
// truncating with a notice rather than growing a single runaway
// command's captured output unbounded.
func WithMaxCombinedOutput(maxBytes uint64) Option {
	return func(b *Bubble) { b.pump = sandbox.NewOutputPumpWithLimit(maxBytes) }
}

// New creates a Bubble scoped to proj, failing with
// ErrSandboxUnavailable if bubblewrap cannot be used in this
// environment. allowNetwork controls whether sandboxed commands keep
// network access.
func New(proj project.ProjectFolder, cacheRoot string, allowNetwork bool, opts ...Option) (*Bubble, error) {
	if !CanSandbox() {
		return nil, ErrSandboxUnavailable
	}

	b := &Bubble{
		proj:         proj,
		allowNetwork: allowNetwork,
		workspace:    sandbox.NewOverlayWorkspace(cacheRoot),
		launcher:     sandbox.NewSandboxLauncher(allowNetwork),
		pump:         sandbox.NewOutputPump(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Exec runs command inside the sandbox scoped to the project's build
// roots, reconciles whatever filesystem effects it produced back into
// the project tree, tears down the overlay unconditionally, and returns
// the command's result.
//
// Cancelling ctx terminates the child, drains both pipes to EOF, skips
// reconciliation entirely, and still runs overlay cleanup — it never
// leaves upper/ or work/ behind for the cancelled invocation.
func (b *Bubble) Exec(ctx context.Context, command string) (sandbox.CommandResult, error) {
	return b.exec(ctx, command, nil)
}

// ExecStream is Exec plus an onLine callback invoked for every line of
// stdout/stderr as the sandboxed command produces it, letting a caller
// such as bubbled's websocket route forward output to a client while
// the command is still running instead of waiting for the final result.
func (b *Bubble) ExecStream(ctx context.Context, command string, onLine sandbox.LineFunc) (sandbox.CommandResult, error) {
	return b.exec(ctx, command, onLine)
}

func (b *Bubble) exec(ctx context.Context, command string, onLine sandbox.LineFunc) (sandbox.CommandResult, error) {
	log := logger.FromContext(ctx)
	start := time.Now()
	timestamp := start.Unix()

	if b.tracer != nil {
		var span trace.Span
		ctx, span = b.tracer.Start(ctx, "Bubble.Exec")
		defer span.End()
	}

	layout, err := b.workspace.Prepare(ctx, b.proj.BuildRoots())
	if err != nil {
		return sandbox.CommandResult{}, fmt.Errorf("prepare overlay: %w", err)
	}
	defer b.workspace.Cleanup(ctx, layout)

	running, err := b.launcher.Launch(ctx, layout, command)
	if err != nil {
		return sandbox.CommandResult{}, fmt.Errorf("launch: %w", err)
	}

	result, err := b.pump.DrainLines(ctx, running, onLine)
	if err != nil {
		return sandbox.CommandResult{}, fmt.Errorf("drain: %w", err)
	}

	if ctx.Err() != nil {
		log.InfoContext(ctx, "exec cancelled, skipping reconciliation", "invocation_id", result.InvocationID)
		if b.metrics != nil {
			b.metrics.RecordExec(ctx, start, result.ExitCode)
		}
		return result, ctx.Err()
	}

	b.reconcile(ctx, layout, timestamp, result.InvocationID)

	if b.metrics != nil {
		b.metrics.RecordExec(ctx, start, result.ExitCode)
	}

	return result, nil
}

// reconcile walks the overlay upper layer and applies every classified
// change to the project tree. Failures are logged per entry by the
// integrator itself; reconcile never fails the overall Exec call, per
// spec.md §4.6's "scan continues with the next entry".
func (b *Bubble) reconcile(ctx context.Context, layout *sandbox.OverlayLayout, timestamp int64, invocationID string) {
	log := logger.FromContext(ctx)

	mgr := b.proj.Manager()

	scanCtx := ctx
	if b.tracer != nil {
		var span trace.Span
		scanCtx, span = b.tracer.Start(ctx, "reconcile.Scan")
		defer span.End()
	}
	changes, err := reconcile.Scan(scanCtx, layout, b.proj.Files(), mgr.GitProvider())
	if err != nil {
		log.WarnContext(ctx, "scan failed", "error", err)
		return
	}

	applyCtx := ctx
	if b.tracer != nil {
		var span trace.Span
		applyCtx, span = b.tracer.Start(ctx, "integrate.Apply")
		defer span.End()
	}
	integrator := integrate.New(b.proj.Files(), mgr, layout.PathMapper(), layout.UpperDir(), invocationID)
	for _, change := range changes {
		integrator.Apply(applyCtx, change, timestamp)
	}

	if b.metrics != nil {
		byType := make(map[project.ChangeType]int64)
		for _, change := range changes {
			byType[change.ChangeType]++
		}
		for ct, count := range byType {
			b.metrics.RecordReconcile(ctx, string(ct), count)
		}
	}

	mgr.DeleteManager().Cleanup(ctx)
}
