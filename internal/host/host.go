// Package host drives one host through the full reconciliation
// pipeline: probe, plan, order, execute, notify. One Coordinator
// handles one host; the fleet dispatcher fans Coordinators out across
// the inventory.
package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/hardshell/hardshell/internal/events"
	"github.com/hardshell/hardshell/internal/executor"
	"github.com/hardshell/hardshell/internal/notify"
	"github.com/hardshell/hardshell/internal/order"
	"github.com/hardshell/hardshell/internal/plan"
	"github.com/hardshell/hardshell/internal/probe"
	"github.com/hardshell/hardshell/internal/resource"
	"github.com/hardshell/hardshell/internal/transport"
)

// Outcome classifies how a host run ended.
type Outcome string

const (
	// FullyReconciled means every declared resource matches desired
	// state, including the zero-change idempotent case.
	FullyReconciled Outcome = "reconciled"
	// PartiallyApplied means at least one action failed or was skipped
	// while independent actions proceeded.
	PartiallyApplied Outcome = "partial"
	// SkippedUnsafe means the plan failed the safety check; nothing
	// was applied.
	SkippedUnsafe Outcome = "skipped"
	// Unreachable means the host could not be probed at all.
	Unreachable Outcome = "unreachable"
)

// Report is the per-host result handed back to the dispatcher.
type Report struct {
	Host    string
	Outcome Outcome
	Err     error
	Plan    *order.Ordered
	Results []executor.ApplyResult
}

// Options configure one Coordinator.
type Options struct {
	RunID       string
	Retry       transport.RetryConfig
	ProbeFanout int
	DryRun      bool
	Emitter     events.Emitter
	Logger      *slog.Logger
}

// Coordinator reconciles a single host.
type Coordinator struct {
	name      string
	runner    transport.Runner
	resources []resource.Resource
	opts      Options
}

// New builds a Coordinator for one host. The resource set must already
// be validated.
func New(name string, runner transport.Runner, resources []resource.Resource, opts Options) *Coordinator {
	if opts.Emitter == nil {
		opts.Emitter = events.NoopEmitter{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.ProbeFanout < 1 {
		opts.ProbeFanout = 4
	}
	return &Coordinator{name: name, runner: runner, resources: resources, opts: opts}
}

// Reconcile runs the pipeline to completion. Dry runs stop after
// ordering and report the plan that a live run would apply, computed
// through the identical probe, plan, and order stages.
func (c *Coordinator) Reconcile(ctx context.Context) Report {
	log := c.opts.Logger
	emit := c.opts.Emitter
	emit.Emit(events.New(events.HostStarted, c.opts.RunID).WithHost(c.name))

	prober := probe.New(c.name, c.runner, c.opts.Retry, c.opts.ProbeFanout)
	states, probeErr := prober.Probe(ctx, c.resources)

	var perr *probe.ProbeError
	if probeErr != nil && !errors.As(probeErr, &perr) {
		// Cancellation or another non-aggregable failure.
		return Report{Host: c.name, Outcome: Unreachable, Err: probeErr}
	}
	if perr != nil && len(perr.Failures) == len(c.resources) {
		// A cancelled run also fails every probe; that is an aborted
		// host, not a connectivity failure.
		if ctx.Err() != nil {
			emit.Emit(events.New(events.HostCompleted, c.opts.RunID).WithHost(c.name).
				WithData("outcome", string(PartiallyApplied)))
			return Report{Host: c.name, Outcome: PartiallyApplied, Err: perr}
		}
		emit.Emit(events.New(events.HostCompleted, c.opts.RunID).WithHost(c.name).
			WithData("outcome", string(Unreachable)))
		return Report{Host: c.name, Outcome: Unreachable, Err: perr}
	}
	emit.Emit(events.New(events.ProbeDone, c.opts.RunID).WithHost(c.name).
		WithData("resources", len(states)))

	computed := plan.Compute(c.resources, states)

	ordered, err := order.Order(c.name, computed, c.resources)
	if err != nil {
		log.Warn("plan rejected", "error", err)
		emit.Emit(events.New(events.HostSkipped, c.opts.RunID).WithHost(c.name).
			WithData("reason", err.Error()))
		return Report{Host: c.name, Outcome: SkippedUnsafe, Err: err}
	}
	emit.Emit(events.New(events.PlanComputed, c.opts.RunID).WithHost(c.name).
		WithData("actions", len(ordered.Actions)).
		WithData("noops", len(ordered.Noops)))

	if c.opts.DryRun {
		outcome := FullyReconciled
		if len(ordered.Unknown) > 0 {
			outcome = PartiallyApplied
		}
		return Report{Host: c.name, Outcome: outcome, Plan: ordered, Err: errOrNil(perr)}
	}

	report := c.execute(ctx, ordered)
	report.Err = errOrNil(perr)

	emit.Emit(events.New(events.HostCompleted, c.opts.RunID).WithHost(c.name).
		WithData("outcome", string(report.Outcome)))
	return report
}

// execute applies the ordered actions sequentially, containing
// failures to their dependency subtree: an action whose prerequisite
// (declared or safety edge) failed or was skipped is itself skipped,
// while independent actions proceed.
func (c *Coordinator) execute(ctx context.Context, ordered *order.Ordered) Report {
	exec := executor.New(c.name, c.runner, c.opts.Retry, c.opts.Logger)
	notifier := notify.New(ordered.Actions)

	blocked := make(map[string]bool, len(ordered.Unknown))
	for _, id := range ordered.Unknown {
		blocked[id] = true
	}

	var results []executor.ApplyResult
	cancelled := false

	for _, a := range ordered.Actions {
		if a.Op == plan.OpRestart {
			continue // deferred to the notifier
		}
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		if dep, bad := blockedPrereq(a.ResourceID, ordered.Prereqs, blocked); bad {
			blocked[a.ResourceID] = true
			res := executor.ApplyResult{
				Action:  a,
				Outcome: executor.Skipped,
				Err:     fmt.Errorf("prerequisite %s not applied", dep),
			}
			results = append(results, res)
			notifier.Record(res)
			c.emitResult(res)
			continue
		}

		res := exec.Apply(ctx, a)
		if res.Outcome == executor.Failed {
			blocked[a.ResourceID] = true
		}
		results = append(results, res)
		notifier.Record(res)
		c.emitResult(res)
	}

	// Coalesced restarts fire once everything else has settled.
	if !cancelled {
		for _, restart := range notifier.Pending() {
			res := exec.Apply(ctx, restart)
			results = append(results, res)
			c.emitResult(res)
			c.opts.Emitter.Emit(events.New(events.RestartFired, c.opts.RunID).
				WithHost(c.name).WithData("service", restart.Resource.Service.Name))
		}
	}

	outcome := FullyReconciled
	if cancelled || len(ordered.Unknown) > 0 {
		outcome = PartiallyApplied
	}
	for _, res := range results {
		if res.Outcome != executor.Applied {
			outcome = PartiallyApplied
			break
		}
	}

	return Report{Host: c.name, Outcome: outcome, Plan: ordered, Results: results}
}

func (c *Coordinator) emitResult(res executor.ApplyResult) {
	ev := events.New(events.ApplyResource, c.opts.RunID).WithHost(c.name).
		WithData("resource", res.Action.ResourceID).
		WithData("op", string(res.Action.Op)).
		WithData("outcome", string(res.Outcome)).
		WithData("changed", res.Changed)
	if res.Err != nil {
		ev.WithData("error", res.Err.Error())
	}
	c.opts.Emitter.Emit(ev)
}

// blockedPrereq reports whether any prerequisite of id is blocked.
// Skips propagate: a blocked action blocks its own dependents when it
// is marked, so a direct check suffices during in-order execution.
func blockedPrereq(id string, prereqs map[string][]string, blocked map[string]bool) (string, bool) {
	for _, dep := range prereqs[id] {
		if blocked[dep] {
			return dep, true
		}
	}
	return "", false
}

func errOrNil(perr *probe.ProbeError) error {
	if perr == nil {
		return nil
	}
	return perr
}
