// Package executor applies ordered actions to a remote host through
// the transport. Commands use idempotent forms where the underlying
// tool supports them, so a repeated or concurrent application is
// self-correcting.
package executor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/hardshell/hardshell/internal/plan"
	"github.com/hardshell/hardshell/internal/transport"
)

// Outcome is the terminal state of an applied action.
type Outcome string

const (
	Applied Outcome = "applied"
	Failed  Outcome = "failed"
	Skipped Outcome = "skipped"
)

// ApplyResult records what happened to one action.
type ApplyResult struct {
	Action  plan.Action
	Outcome Outcome
	Err     error
	Changed bool
}

// ApplyError is a command-level failure: the action's command ran and
// reported an error. Never retried; retrying a rejected mutation only
// repeats the rejection.
type ApplyError struct {
	Host       string
	ResourceID string
	Command    string
	ExitCode   int
	Stderr     string
}

func (e *ApplyError) Error() string {
	msg := fmt.Sprintf("applying %s on %s: %q exited %d", e.ResourceID, e.Host, e.Command, e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// Executor applies actions on one host.
type Executor struct {
	host   string
	runner transport.Runner
	retry  transport.RetryConfig
	logger *slog.Logger
}

// New builds an Executor. logger may be nil.
func New(host string, runner transport.Runner, retry transport.RetryConfig, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Executor{host: host, runner: runner, retry: retry, logger: logger}
}

// Apply executes one action. Transient transport failures are retried
// with backoff; command failures and authorization failures are not.
func (e *Executor) Apply(ctx context.Context, a plan.Action) ApplyResult {
	commands, err := Commands(a)
	if err != nil {
		return ApplyResult{Action: a, Outcome: Failed, Err: err}
	}

	for _, command := range commands {
		var res transport.Result
		err := transport.Retry(ctx, e.retry, func() error {
			var rerr error
			res, rerr = e.runner.RunPrivileged(ctx, command)
			return rerr
		})
		if err != nil {
			e.logger.Error("action failed", "host", e.host, "resource", a.ResourceID, "error", err)
			return ApplyResult{Action: a, Outcome: Failed, Err: err}
		}
		if res.ExitCode != 0 {
			aerr := &ApplyError{
				Host:       e.host,
				ResourceID: a.ResourceID,
				Command:    command,
				ExitCode:   res.ExitCode,
				Stderr:     res.Stderr,
			}
			e.logger.Error("action failed", "host", e.host, "resource", a.ResourceID, "error", aerr)
			return ApplyResult{Action: a, Outcome: Failed, Err: aerr}
		}
	}

	e.logger.Info("action applied", "host", e.host, "resource", a.ResourceID, "op", string(a.Op))
	return ApplyResult{Action: a, Outcome: Applied, Changed: true}
}
