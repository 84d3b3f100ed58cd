// Package notify aggregates change events during execution and decides
// which deferred restarts actually fire. Restarts are evaluated once,
// after all actions settle, rather than inline at the moment of each
// change; a service restarts at most once per run no matter how many of
// its watched resources changed.
package notify

import (
	"github.com/hardshell/hardshell/internal/executor"
	"github.com/hardshell/hardshell/internal/plan"
)

// Notifier collects per-run change signals for one host.
type Notifier struct {
	candidates []plan.Action
	changed    map[string]bool
	failed     map[string]bool
}

// New builds a Notifier holding the plan's candidate restart actions.
func New(candidates []plan.Action) *Notifier {
	n := &Notifier{
		changed: make(map[string]bool),
		failed:  make(map[string]bool),
	}
	for _, a := range candidates {
		if a.Op == plan.OpRestart {
			n.candidates = append(n.candidates, a)
		}
	}
	return n
}

// Record notes the outcome of one applied action.
func (n *Notifier) Record(res executor.ApplyResult) {
	switch res.Outcome {
	case executor.Applied:
		if res.Changed {
			n.changed[res.Action.ResourceID] = true
		}
	case executor.Failed, executor.Skipped:
		n.failed[res.Action.ResourceID] = true
	}
}

// Changed reports whether the given resource changed during this run.
func (n *Notifier) Changed(id string) bool { return n.changed[id] }

// Pending returns the restart actions that should fire: one per
// service whose watched set intersects the actually-changed ids. A
// service whose own action failed this run is not restarted.
func (n *Notifier) Pending() []plan.Action {
	seen := make(map[string]bool, len(n.candidates))
	var pending []plan.Action
	for _, a := range n.candidates {
		if seen[a.ResourceID] || n.failed[a.ResourceID] {
			continue
		}
		for _, watched := range a.Resource.Service.RestartOn {
			if n.changed[watched] {
				seen[a.ResourceID] = true
				pending = append(pending, a)
				break
			}
		}
	}
	return pending
}
