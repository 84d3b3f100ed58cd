package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hardshell/hardshell/internal/events"
	"github.com/hardshell/hardshell/internal/executor"
	"github.com/hardshell/hardshell/internal/fleet"
	"github.com/hardshell/hardshell/internal/telemetry"
	"github.com/hardshell/hardshell/internal/transport"
)

func newRunCmd() *cobra.Command {
	var (
		group       string
		limit       string
		workers     int
		dryRun      bool
		metricsFile string
		reportFile  string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Reconcile hosts against the declared hardening policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := newLogger()
			report, err := dispatch(ctx, logger, dispatchOptions{
				group:       group,
				limit:       limit,
				workers:     workers,
				dryRun:      dryRun,
				metricsFile: metricsFile,
				reportFile:  reportFile,
			})
			if err != nil {
				return err
			}

			printSummary(report)
			if code := report.ExitCode(); code != 0 {
				os.Exit(code)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&group, "group", "", "Limit the run to one policy group")
	cmd.Flags().StringVar(&limit, "limit", "", `Host selector expression, e.g. 'group == "web" && "pci" in tags'`)
	cmd.Flags().IntVar(&workers, "workers", 4, "Hosts reconciled concurrently")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Plan only; apply nothing")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write run metrics in exposition format to this path")
	cmd.Flags().StringVar(&reportFile, "report", "", "Write the structured event log to this path")

	return cmd
}

type dispatchOptions struct {
	group       string
	limit       string
	workers     int
	dryRun      bool
	metricsFile string
	reportFile  string
}

// dispatch runs the full fleet pipeline once: load inputs, select
// hosts, reconcile, then flush metrics and the event log.
func dispatch(ctx context.Context, logger *slog.Logger, opts dispatchOptions) (*fleet.RunReport, error) {
	policy, inventory, err := loadInputs()
	if err != nil {
		return nil, err
	}

	selector, err := fleet.CompileSelector(opts.limit)
	if err != nil {
		return nil, err
	}
	hosts, err := selector.Filter(inventory.Select(opts.group))
	if err != nil {
		return nil, err
	}
	if len(hosts) == 0 {
		return nil, fmt.Errorf("no hosts matched (group %q, limit %q)", opts.group, opts.limit)
	}

	runID := telemetry.NewRunID()
	logger.Info("run starting", "run_id", runID, "hosts", len(hosts), "dry_run", opts.dryRun)

	var collector *events.Collector
	var emitter events.Emitter = events.NoopEmitter{}
	if opts.reportFile != "" {
		collector = &events.Collector{}
		emitter = collector
	}

	metrics := telemetry.NewMetrics()
	start := time.Now()

	dispatcher := fleet.New(policy, fleet.Options{
		RunID:   runID,
		Workers: opts.workers,
		Retry:   transport.DefaultRetry(),
		DryRun:  opts.dryRun,
		SSH: transport.SSHOptions{
			ConnectTimeout: connectTimeout,
			KnownHostsFile: knownHostsFile,
		},
		Emitter: emitter,
		Logger:  logger,
		Metrics: metrics,
	})
	report := dispatcher.Run(ctx, hosts)
	metrics.RunDuration.Observe(time.Since(start).Seconds())

	if opts.metricsFile != "" {
		if err := metrics.WriteTextfile(opts.metricsFile); err != nil {
			logger.Error("writing metrics", "error", err)
		}
	}
	if collector != nil {
		if err := events.ExportLog(collector.Events(), opts.reportFile); err != nil {
			logger.Error("writing event log", "error", err)
		}
	}

	logger.Info("run finished", "run_id", runID, "exit_code", report.ExitCode())
	return report, nil
}

func printSummary(report *fleet.RunReport) {
	for _, rep := range report.Reports {
		applied, failed, skipped := 0, 0, 0
		for _, res := range rep.Results {
			switch res.Outcome {
			case executor.Applied:
				applied++
			case executor.Failed:
				failed++
			case executor.Skipped:
				skipped++
			}
		}
		line := fmt.Sprintf("%-24s %-12s applied=%d failed=%d skipped=%d",
			rep.Host, rep.Outcome, applied, failed, skipped)
		if rep.Err != nil {
			line += "  " + rep.Err.Error()
		}
		fmt.Println(line)
	}
}
