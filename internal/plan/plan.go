// Package plan implements the desired-state diff engine: it compares a
// declared resource set against probed current state and produces the
// minimal action list that converges the host.
package plan

import (
	"fmt"
	"strings"

	"github.com/hardshell/hardshell/internal/resource"
)

// Op is the operation an action performs.
type Op string

const (
	OpNoop    Op = "noop"
	OpCreate  Op = "create"
	OpUpdate  Op = "update"
	OpEnable  Op = "enable"
	OpRestart Op = "restart"
)

// Action is one planned change for a single resource.
type Action struct {
	ResourceID string
	Op         Op
	Resource   resource.Resource
	Reason     string
}

// Plan is the computed change set for one host. Actions holds non-noop
// work in declaration order with restarts appended last; Noops are kept
// for reporting and idempotence verification; Unknown lists resources
// whose current state could not be probed and whose work is skipped.
type Plan struct {
	Actions []Action
	Noops   []Action
	Unknown []string

	// Changed is the set of resource ids this plan will mutate.
	Changed map[string]bool
}

// HasChanges reports whether applying the plan would mutate the host.
func (p *Plan) HasChanges() bool { return len(p.Actions) > 0 }

// Compute diffs desired resources against current state. Iteration is
// strictly in declaration order so identical inputs always yield
// byte-identical plans.
func Compute(resources []resource.Resource, current map[string]resource.State) *Plan {
	p := &Plan{Changed: make(map[string]bool)}

	for _, r := range resources {
		st, probed := current[r.ID]
		if !probed || st.Status == resource.StatusUnknown {
			p.Unknown = append(p.Unknown, r.ID)
			continue
		}
		op, reason := diff(r, st)
		action := Action{ResourceID: r.ID, Op: op, Resource: r, Reason: reason}
		if op == OpNoop {
			p.Noops = append(p.Noops, action)
			continue
		}
		p.Actions = append(p.Actions, action)
		p.Changed[r.ID] = true
	}

	// Candidate restarts for services whose watched configuration
	// changed. A service the plan is already creating or enabling
	// starts on the new configuration, so no restart is scheduled
	// for it. The notifier re-checks actual outcomes after execution.
	for _, r := range resources {
		if r.Kind != resource.KindService || len(r.Service.RestartOn) == 0 {
			continue
		}
		if p.Changed[r.ID] {
			continue
		}
		var triggers []string
		for _, watched := range r.Service.RestartOn {
			if p.Changed[watched] {
				triggers = append(triggers, watched)
			}
		}
		if len(triggers) == 0 {
			continue
		}
		p.Actions = append(p.Actions, Action{
			ResourceID: r.ID,
			Op:         OpRestart,
			Resource:   r,
			Reason:     "configuration changed: " + strings.Join(triggers, ", "),
		})
	}

	return p
}

func diff(r resource.Resource, st resource.State) (Op, string) {
	absent := st.Status == resource.StatusAbsent

	switch r.Kind {
	case resource.KindPackage:
		if absent {
			return OpCreate, "package not installed"
		}
		return OpNoop, ""

	case resource.KindService:
		if absent {
			return OpEnable, "service unit not present"
		}
		desired := r.Service
		observed := st.Service
		switch {
		case desired.Enabled && !observed.Enabled && !observed.Active:
			return OpUpdate, "service disabled and stopped"
		case desired.Enabled && !observed.Enabled:
			return OpUpdate, "service not enabled at boot"
		case !observed.Active:
			return OpUpdate, "service not running"
		}
		return OpNoop, ""

	case resource.KindFirewallPolicy:
		if absent {
			return OpCreate, "no default policy configured"
		}
		if st.FirewallPolicy.Policy != r.FirewallPolicy.Policy {
			return OpUpdate, fmt.Sprintf("default %s policy is %s, want %s",
				r.FirewallPolicy.Direction, st.FirewallPolicy.Policy, r.FirewallPolicy.Policy)
		}
		return OpNoop, ""

	case resource.KindFirewallRule:
		if absent {
			return OpCreate, "rule not present"
		}
		if st.FirewallRule.Action != r.FirewallRule.Action {
			return OpUpdate, fmt.Sprintf("rule action is %s, want %s",
				st.FirewallRule.Action, r.FirewallRule.Action)
		}
		return OpNoop, ""

	case resource.KindFirewallEnabled:
		want := r.FirewallEnabled.Enabled
		observed := !absent && st.FirewallEnabled != nil && st.FirewallEnabled.Enabled
		switch {
		case want && !observed:
			return OpEnable, "firewall not active"
		case !want && observed:
			return OpUpdate, "firewall active, want inactive"
		}
		return OpNoop, ""

	case resource.KindUser:
		if absent {
			return OpCreate, "user does not exist"
		}
		desired := r.User
		observed := st.User
		if desired.Shell != "" && observed.Shell != desired.Shell {
			return OpUpdate, fmt.Sprintf("shell is %s, want %s", observed.Shell, desired.Shell)
		}
		if missing := missingGroups(desired.Groups, observed.Groups); len(missing) > 0 {
			return OpUpdate, "missing groups: " + strings.Join(missing, ", ")
		}
		if desired.AuthorizedKey != "" && !observed.AuthorizedKey {
			return OpUpdate, "authorized key not installed"
		}
		return OpNoop, ""

	case resource.KindSSHDirective:
		if absent {
			return OpCreate, "directive not set"
		}
		if !strings.EqualFold(st.SSHDirective.Value, r.SSHDirective.Value) {
			return OpUpdate, fmt.Sprintf("%s is %s, want %s",
				r.SSHDirective.Name, st.SSHDirective.Value, r.SSHDirective.Value)
		}
		return OpNoop, ""
	}

	return OpNoop, "unknown kind"
}

func missingGroups(desired, observed []string) []string {
	have := make(map[string]bool, len(observed))
	for _, g := range observed {
		have[g] = true
	}
	var missing []string
	for _, g := range desired {
		if !have[g] {
			missing = append(missing, g)
		}
	}
	return missing
}
