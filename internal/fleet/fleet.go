// Package fleet fans the per-host reconciliation pipeline out across
// the inventory with a bounded worker pool. Hosts are fully
// independent: one host's failure never aborts another's run.
package fleet

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hardshell/hardshell/internal/config"
	"github.com/hardshell/hardshell/internal/events"
	"github.com/hardshell/hardshell/internal/host"
	"github.com/hardshell/hardshell/internal/resource"
	"github.com/hardshell/hardshell/internal/telemetry"
	"github.com/hardshell/hardshell/internal/transport"
)

// DialFunc opens a transport to one endpoint. Tests substitute a fake;
// production wires transport.DialSSH.
type DialFunc func(ctx context.Context, ep transport.Endpoint) (transport.Runner, error)

// Options configure a fleet run.
type Options struct {
	RunID       string
	Workers     int
	Retry       transport.RetryConfig
	ProbeFanout int
	DryRun      bool
	Dial        DialFunc
	SSH         transport.SSHOptions
	Emitter     events.Emitter
	Logger      *slog.Logger
	Metrics     *telemetry.Metrics
}

// RunReport aggregates per-host outcomes for one fleet run.
type RunReport struct {
	Reports []host.Report
}

// ExitCode derives the process exit status from the worst host
// outcome: 2 when connectivity prevented reaching a host, 1 when a
// host failed safety checks or application, 0 when every host is
// fully reconciled.
func (r *RunReport) ExitCode() int {
	code := 0
	for _, rep := range r.Reports {
		switch rep.Outcome {
		case host.Unreachable:
			return 2
		case host.PartiallyApplied, host.SkippedUnsafe:
			code = 1
		}
	}
	return code
}

// Dispatcher runs the pipeline across many hosts.
type Dispatcher struct {
	policy *config.Policy
	opts   Options
}

// New builds a Dispatcher. The policy must already be validated.
func New(policy *config.Policy, opts Options) *Dispatcher {
	if opts.Workers < 1 {
		opts.Workers = 4
	}
	if opts.Emitter == nil {
		opts.Emitter = events.NoopEmitter{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Dial == nil {
		ssh := opts.SSH
		opts.Dial = func(ctx context.Context, ep transport.Endpoint) (transport.Runner, error) {
			runner, err := transport.DialSSH(ctx, ep, ssh)
			if err != nil {
				return nil, err
			}
			return runner, nil
		}
	}
	return &Dispatcher{policy: policy, opts: opts}
}

// Run reconciles every host, at most Workers at a time. Each worker
// drives one host's pipeline to completion before taking another.
// Reports come back sorted by host name for stable output.
func (d *Dispatcher) Run(ctx context.Context, hosts []config.Host) *RunReport {
	d.opts.Emitter.Emit(events.New(events.RunStarted, d.opts.RunID).
		WithData("hosts", len(hosts)))

	// Each group compiles once; hosts in a group share the declaration.
	compiled := make(map[string][]resource.Resource, len(d.policy.Groups))

	report := &RunReport{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Workers)

	for _, h := range hosts {
		h := h
		g.Go(func() error {
			rep := d.reconcileHost(gctx, h, compiled, &mu)

			mu.Lock()
			report.Reports = append(report.Reports, rep)
			mu.Unlock()

			if d.opts.Metrics != nil {
				d.opts.Metrics.HostsTotal.WithLabelValues(string(rep.Outcome)).Inc()
				for _, res := range rep.Results {
					d.opts.Metrics.ActionsTotal.WithLabelValues(
						string(res.Action.Resource.Kind), string(res.Outcome)).Inc()
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(report.Reports, func(i, j int) bool {
		return report.Reports[i].Host < report.Reports[j].Host
	})

	d.opts.Emitter.Emit(events.New(events.RunCompleted, d.opts.RunID).
		WithData("exit_code", report.ExitCode()))
	return report
}

func (d *Dispatcher) reconcileHost(ctx context.Context, h config.Host,
	compiled map[string][]resource.Resource, mu *sync.Mutex) host.Report {

	log := telemetry.HostLogger(d.opts.Logger, d.opts.RunID, h.Name)

	group, ok := d.policy.Group(h.Group)
	if !ok {
		return host.Report{Host: h.Name, Outcome: host.SkippedUnsafe,
			Err: fmt.Errorf("host %s references undeclared group %q", h.Name, h.Group)}
	}

	mu.Lock()
	resources, cached := compiled[h.Group]
	mu.Unlock()
	if !cached {
		var err error
		resources, err = config.Compile(group)
		if err != nil {
			return host.Report{Host: h.Name, Outcome: host.SkippedUnsafe, Err: err}
		}
		mu.Lock()
		compiled[h.Group] = resources
		mu.Unlock()
	}

	runner, err := d.opts.Dial(ctx, transport.Endpoint{
		Name:    h.Name,
		Address: h.Address,
		User:    h.User,
		KeyFile: h.KeyFile,
	})
	if err != nil {
		log.Error("dial failed", "error", err)
		return host.Report{Host: h.Name, Outcome: host.Unreachable, Err: err}
	}
	if closer, ok := runner.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	coordinator := host.New(h.Name, runner, resources, host.Options{
		RunID:       d.opts.RunID,
		Retry:       d.opts.Retry,
		ProbeFanout: d.opts.ProbeFanout,
		DryRun:      d.opts.DryRun,
		Emitter:     d.opts.Emitter,
		Logger:      log,
	})
	return coordinator.Reconcile(ctx)
}
