// Package transport provides privileged command execution on remote
// hosts. The engine's prober issues read-only invocations and its
// executor issues mutating ones; both go through the Runner interface
// so tests can script a host without a network.
package transport

import (
	"context"
	"errors"
	"fmt"
)

// Result carries the output of one remote command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes privileged commands on a single host. A non-zero
// exit code is reported in Result with a nil error; errors are reserved
// for transport-level failures (connection, authentication).
type Runner interface {
	RunPrivileged(ctx context.Context, command string) (Result, error)
}

// ConnectivityError is a transient transport failure: connection
// refused, reset, or timed out. Callers retry these with backoff.
type ConnectivityError struct {
	Host string
	Err  error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("host %s unreachable: %v", e.Host, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// AuthError is an authentication or authorization failure. Never
// retried: repeating a rejected credential only locks accounts.
type AuthError struct {
	Host string
	Err  error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("host %s authentication failed: %v", e.Host, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Transient reports whether err is worth retrying.
func Transient(err error) bool {
	var ce *ConnectivityError
	return errors.As(err, &ce)
}
