package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hardshell/hardshell/internal/host"
	"github.com/hardshell/hardshell/internal/plan"
)

func newPlanCmd() *cobra.Command {
	var (
		group   string
		limit   string
		workers int
		format  string
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what a run would change without applying anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "text" && format != "json" {
				return fmt.Errorf("unknown format %q (want text or json)", format)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			report, err := dispatch(ctx, newLogger(), dispatchOptions{
				group:   group,
				limit:   limit,
				workers: workers,
				dryRun:  true,
			})
			if err != nil {
				return err
			}

			for _, rep := range report.Reports {
				fmt.Printf("# %s\n", rep.Host)
				switch {
				case rep.Outcome == host.Unreachable:
					fmt.Printf("  unreachable: %v\n", rep.Err)
				case rep.Outcome == host.SkippedUnsafe:
					fmt.Printf("  rejected: %v\n", rep.Err)
				case rep.Plan == nil:
					fmt.Println("  no plan computed")
				default:
					// The ordered plan prints in apply order.
					p := &plan.Plan{
						Actions: rep.Plan.Actions,
						Noops:   rep.Plan.Noops,
						Unknown: rep.Plan.Unknown,
					}
					if format == "json" {
						out, err := plan.FormatJSON(p)
						if err != nil {
							return err
						}
						fmt.Print(out)
					} else {
						fmt.Print(plan.FormatText(p))
					}
				}
				fmt.Println()
			}

			if code := report.ExitCode(); code != 0 {
				os.Exit(code)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&group, "group", "", "Limit planning to one policy group")
	cmd.Flags().StringVar(&limit, "limit", "", "Host selector expression")
	cmd.Flags().IntVar(&workers, "workers", 4, "Hosts probed concurrently")
	cmd.Flags().StringVar(&format, "format", "text", "Output format (text|json)")

	return cmd
}
