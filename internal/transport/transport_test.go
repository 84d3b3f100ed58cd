package transport

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestRetryTransientFailures(t *testing.T) {
	cfg := RetryConfig{Attempts: 3, BaseWait: time.Millisecond, MaxWait: 2 * time.Millisecond}

	calls := 0
	err := Retry(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return &ConnectivityError{Host: "web-1", Err: errors.New("connection reset")}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("fn called %d times, want 3", calls)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	cfg := RetryConfig{Attempts: 2, BaseWait: time.Millisecond}

	calls := 0
	err := Retry(context.Background(), cfg, func() error {
		calls++
		return &ConnectivityError{Host: "web-1", Err: errors.New("timeout")}
	})

	var ce *ConnectivityError
	if !errors.As(err, &ce) {
		t.Fatalf("Retry() error = %v, want ConnectivityError", err)
	}
	if calls != 2 {
		t.Errorf("fn called %d times, want 2", calls)
	}
}

func TestRetryDoesNotRetryAuthFailures(t *testing.T) {
	cfg := RetryConfig{Attempts: 5, BaseWait: time.Millisecond}

	calls := 0
	err := Retry(context.Background(), cfg, func() error {
		calls++
		return &AuthError{Host: "web-1", Err: errors.New("permission denied")}
	})

	var ae *AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("Retry() error = %v, want AuthError", err)
	}
	if calls != 1 {
		t.Errorf("auth failure retried: fn called %d times, want 1", calls)
	}
}

func TestRetryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := RetryConfig{Attempts: 3, BaseWait: time.Minute}
	err := Retry(ctx, cfg, func() error {
		return &ConnectivityError{Host: "web-1", Err: errors.New("timeout")}
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Retry() error = %v, want context.Canceled", err)
	}
}

func TestTransientClassification(t *testing.T) {
	conn := &ConnectivityError{Host: "web-1", Err: errors.New("refused")}
	if !Transient(conn) {
		t.Error("ConnectivityError not classified transient")
	}
	if !Transient(fmt.Errorf("probing: %w", conn)) {
		t.Error("wrapped ConnectivityError not classified transient")
	}
	if Transient(&AuthError{Host: "web-1", Err: errors.New("denied")}) {
		t.Error("AuthError classified transient")
	}
	if Transient(errors.New("exit status 1")) {
		t.Error("plain error classified transient")
	}
}

func TestShellQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"apt-get install -y ufw", "'apt-get install -y ufw'"},
		{"echo 'quoted'", `'echo '\''quoted'\'''`},
		{"", "''"},
	}
	for _, tt := range tests {
		if got := shellQuote(tt.in); got != tt.want {
			t.Errorf("shellQuote(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
