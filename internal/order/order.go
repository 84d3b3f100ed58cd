// Package order sequences a plan so that access-preserving changes land
// before access-restricting ones. It topologically sorts declared
// dependencies, inserts built-in safety edges, and rejects any plan
// that could cost the operator their administrative access path.
package order

import (
	"container/heap"
	"fmt"
	"strconv"
	"strings"

	"github.com/hardshell/hardshell/internal/plan"
	"github.com/hardshell/hardshell/internal/resource"
)

// SafetyError rejects a plan that cannot preserve administrative
// access. The host is skipped entirely; zero actions are applied.
type SafetyError struct {
	Host    string
	Reasons []string
}

func (e *SafetyError) Error() string {
	return fmt.Sprintf("unsafe plan for %s: %s", e.Host, strings.Join(e.Reasons, "; "))
}

// Ordered is a plan whose actions are sequenced for safe application.
// Prereqs carries the full edge set (declared and safety) keyed by
// resource id, which the executor uses for failure containment.
type Ordered struct {
	Actions []plan.Action
	Noops   []plan.Action
	Unknown []string
	Prereqs map[string][]string
}

// HasWork reports whether any action would mutate the host.
func (o *Ordered) HasWork() bool { return len(o.Actions) > 0 }

// ManagementPort returns the SSH port the current administrative
// connection depends on: the declared Port directive if present,
// otherwise 22.
func ManagementPort(resources []resource.Resource) int {
	for _, r := range resources {
		if r.Kind != resource.KindSSHDirective {
			continue
		}
		if resource.CanonicalDirective(r.SSHDirective.Name) == "port" {
			if port, err := strconv.Atoi(r.SSHDirective.Value); err == nil {
				return port
			}
		}
	}
	return 22
}

// Order sequences the plan's actions. host is used in error reporting
// only. Restart actions are not part of the dependency graph: they are
// deferred to the notifier and stay appended after all other work.
func Order(host string, p *plan.Plan, resources []resource.Resource) (*Ordered, error) {
	mgmtPort := ManagementPort(resources)

	if reasons := checkAccessPreserved(p, resources, mgmtPort); len(reasons) > 0 {
		return nil, &SafetyError{Host: host, Reasons: reasons}
	}

	var work, restarts []plan.Action
	for _, a := range p.Actions {
		if a.Op == plan.OpRestart {
			restarts = append(restarts, a)
			continue
		}
		work = append(work, a)
	}

	prereqs := buildEdges(work, resources, mgmtPort)

	sorted, ok := stableTopoSort(work, prereqs)
	if !ok {
		return nil, &SafetyError{Host: host, Reasons: []string{
			"safety ordering conflicts with declared dependencies"}}
	}

	return &Ordered{
		Actions: append(sorted, restarts...),
		Noops:   p.Noops,
		Unknown: p.Unknown,
		Prereqs: prereqs,
	}, nil
}

// checkAccessPreserved enforces the lockout invariants before any
// ordering work. Noop resources count as an already-applied access
// path; scheduled actions count as co-scheduled (the safety edges then
// guarantee they land first).
func checkAccessPreserved(p *plan.Plan, resources []resource.Resource, mgmtPort int) []string {
	var reasons []string

	noop := make(map[string]bool, len(p.Noops))
	for _, a := range p.Noops {
		noop[a.ResourceID] = true
	}
	scheduled := p.Changed

	// Declared end state: are both password logins and root logins off?
	passwordOff, rootOff := false, false
	var restrictingActive bool
	for _, a := range append(append([]plan.Action{}, p.Actions...), p.Noops...) {
		if a.Resource.Kind != resource.KindSSHDirective {
			continue
		}
		d := a.Resource.SSHDirective
		if !d.RestrictsAccess() {
			continue
		}
		switch resource.CanonicalDirective(d.Name) {
		case "passwordauthentication":
			passwordOff = true
		case "permitrootlogin":
			rootOff = true
		}
		if a.Op != plan.OpNoop && !noop[a.ResourceID] && scheduled[a.ResourceID] {
			restrictingActive = true
		}
	}

	if passwordOff && rootOff && restrictingActive {
		// Key-based access must exist or be co-scheduled.
		keyed := false
		for _, r := range resources {
			if r.Kind != resource.KindUser || r.User.AuthorizedKey == "" {
				continue
			}
			if noop[r.ID] || scheduled[r.ID] {
				keyed = true
				break
			}
		}
		if !keyed {
			reasons = append(reasons,
				"password and root logins are both being disabled but no user account with an authorized key is declared")
		}
	}

	// The management port rule must never be revoked, and must precede
	// (or already predate) enabling the firewall.
	var mgmtRuleOK, enablingFirewall, firewallActive, denyIncomingScheduled bool
	for _, r := range resources {
		switch r.Kind {
		case resource.KindFirewallRule:
			if r.FirewallRule.Port != mgmtPort {
				continue
			}
			switch r.FirewallRule.Action {
			case resource.Allow:
				if noop[r.ID] || scheduled[r.ID] {
					mgmtRuleOK = true
				}
			case resource.Deny:
				reasons = append(reasons, fmt.Sprintf(
					"declaration denies the management port %d", mgmtPort))
			}
		case resource.KindFirewallEnabled:
			if !r.FirewallEnabled.Enabled {
				continue
			}
			if scheduled[r.ID] {
				enablingFirewall = true
			} else if noop[r.ID] {
				firewallActive = true
			}
		case resource.KindFirewallPolicy:
			if r.FirewallPolicy.Direction == resource.Incoming &&
				r.FirewallPolicy.Policy == resource.Deny && scheduled[r.ID] {
				denyIncomingScheduled = true
			}
		}
	}
	if enablingFirewall && !mgmtRuleOK {
		reasons = append(reasons, fmt.Sprintf(
			"firewall would be enabled without a rule admitting the management port %d", mgmtPort))
	}
	if denyIncomingScheduled && firewallActive && !mgmtRuleOK {
		reasons = append(reasons, fmt.Sprintf(
			"default incoming policy would become deny on an active firewall without a rule admitting the management port %d", mgmtPort))
	}

	return reasons
}

// buildEdges combines declared dependsOn edges with the built-in safety
// edges. The map contains prerequisites for every resource with a
// scheduled action, including prerequisites that are not themselves
// scheduled (needed for containment when a prerequisite is skipped).
func buildEdges(work []plan.Action, resources []resource.Resource, mgmtPort int) map[string][]string {
	prereqs := make(map[string][]string, len(work))
	addEdge := func(before, after string) {
		if before == after {
			return
		}
		for _, existing := range prereqs[after] {
			if existing == before {
				return
			}
		}
		prereqs[after] = append(prereqs[after], before)
	}

	for _, a := range work {
		for _, dep := range a.Resource.DependsOn {
			addEdge(dep, a.ResourceID)
		}
	}

	// Safety edge 1: user accounts before access-restricting SSH
	// directives.
	for _, restricting := range work {
		if restricting.Resource.Kind != resource.KindSSHDirective ||
			!restricting.Resource.SSHDirective.RestrictsAccess() {
			continue
		}
		for _, user := range work {
			if user.Resource.Kind == resource.KindUser {
				addEdge(user.ResourceID, restricting.ResourceID)
			}
		}
	}

	// Safety edge 2: every firewall rule precedes enabling the
	// firewall; the management port rule is thereby always in place
	// before a default-deny firewall comes up.
	for _, enable := range work {
		if enable.Resource.Kind != resource.KindFirewallEnabled ||
			!enable.Resource.FirewallEnabled.Enabled {
			continue
		}
		for _, rule := range work {
			switch rule.Resource.Kind {
			case resource.KindFirewallRule, resource.KindFirewallPolicy:
				addEdge(rule.ResourceID, enable.ResourceID)
			}
		}
	}

	// Safety edge 3: the deny-incoming default precedes rules for any
	// port beyond the management port.
	for _, policy := range work {
		fp := policy.Resource.FirewallPolicy
		if fp == nil || fp.Direction != resource.Incoming || fp.Policy != resource.Deny {
			continue
		}
		for _, rule := range work {
			fr := rule.Resource.FirewallRule
			if fr != nil && fr.Port != mgmtPort {
				addEdge(policy.ResourceID, rule.ResourceID)
			}
		}
	}

	return prereqs
}

// indexHeap yields pending action indexes in declaration order, making
// the topological sort stable and the output reproducible.
type indexHeap []int

func (h indexHeap) Len() int            { return len(h) }
func (h indexHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h indexHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *indexHeap) Push(x interface{}) { *h = append(*h, x.(int)) }
func (h *indexHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func stableTopoSort(work []plan.Action, prereqs map[string][]string) ([]plan.Action, bool) {
	index := make(map[string]int, len(work))
	for i, a := range work {
		index[a.ResourceID] = i
	}

	indegree := make([]int, len(work))
	dependents := make(map[int][]int, len(work))
	for id, deps := range prereqs {
		after, scheduled := index[id]
		if !scheduled {
			continue
		}
		for _, dep := range deps {
			// Prerequisites without a scheduled action are already
			// satisfied (or handled by containment if they were
			// unknown).
			if before, ok := index[dep]; ok {
				indegree[after]++
				dependents[before] = append(dependents[before], after)
			}
		}
	}

	ready := &indexHeap{}
	for i := range work {
		if indegree[i] == 0 {
			heap.Push(ready, i)
		}
	}

	sorted := make([]plan.Action, 0, len(work))
	for ready.Len() > 0 {
		i := heap.Pop(ready).(int)
		sorted = append(sorted, work[i])
		for _, dep := range dependents[i] {
			indegree[dep]--
			if indegree[dep] == 0 {
				heap.Push(ready, dep)
			}
		}
	}

	return sorted, len(sorted) == len(work)
}
