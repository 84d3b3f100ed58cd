package notify

import (
	"testing"

	"github.com/hardshell/hardshell/internal/executor"
	"github.com/hardshell/hardshell/internal/plan"
	"github.com/hardshell/hardshell/internal/resource"
)

func restartCandidate(service string, watch ...string) plan.Action {
	return plan.Action{
		ResourceID: service,
		Op:         plan.OpRestart,
		Resource: resource.Resource{
			ID: service, Kind: resource.KindService,
			Service: &resource.Service{Name: "ssh", Enabled: true, RestartOn: watch},
		},
	}
}

func applied(id string, changed bool) executor.ApplyResult {
	return executor.ApplyResult{
		Action:  plan.Action{ResourceID: id},
		Outcome: executor.Applied,
		Changed: changed,
	}
}

func TestRestartCoalescing(t *testing.T) {
	n := New([]plan.Action{restartCandidate("svc.sshd", "ssh.root", "ssh.password", "ssh.x11")})
	n.Record(applied("ssh.root", true))
	n.Record(applied("ssh.password", true))
	n.Record(applied("ssh.x11", true))

	pending := n.Pending()
	if len(pending) != 1 {
		t.Fatalf("Pending() = %d restarts, want exactly 1", len(pending))
	}
	if pending[0].ResourceID != "svc.sshd" {
		t.Errorf("restart target = %s, want svc.sshd", pending[0].ResourceID)
	}
}

func TestNoRestartWithoutChange(t *testing.T) {
	n := New([]plan.Action{restartCandidate("svc.sshd", "ssh.root")})
	// The watched action was planned but its application failed.
	n.Record(executor.ApplyResult{
		Action:  plan.Action{ResourceID: "ssh.root"},
		Outcome: executor.Failed,
	})
	if pending := n.Pending(); len(pending) != 0 {
		t.Errorf("Pending() = %d restarts, want 0", len(pending))
	}
}

func TestNoRestartWhenServiceFailed(t *testing.T) {
	n := New([]plan.Action{restartCandidate("svc.sshd", "ssh.root")})
	n.Record(applied("ssh.root", true))
	n.Record(executor.ApplyResult{
		Action:  plan.Action{ResourceID: "svc.sshd"},
		Outcome: executor.Skipped,
	})
	if pending := n.Pending(); len(pending) != 0 {
		t.Errorf("Pending() = %d restarts, want 0 for a skipped service", len(pending))
	}
}

func TestOnlyRestartActionsAreCandidates(t *testing.T) {
	n := New([]plan.Action{
		{ResourceID: "pkg.ufw", Op: plan.OpCreate},
		restartCandidate("svc.sshd", "ssh.root"),
	})
	n.Record(applied("ssh.root", true))
	if pending := n.Pending(); len(pending) != 1 {
		t.Errorf("Pending() = %d, want 1", len(pending))
	}
}
