package resource

import (
	"fmt"
	"strings"
)

// ValidationError aggregates every problem found in a declared resource
// set. It is fatal: no host is contacted while the declaration is invalid.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 1 {
		return "invalid resource declaration: " + e.Issues[0]
	}
	return fmt.Sprintf("invalid resource declaration (%d problems): %s",
		len(e.Issues), strings.Join(e.Issues, "; "))
}

// Validate checks a declared resource set: unique ids, variant fields
// consistent with kinds, dependency references that exist and do not
// cycle, no contradictory desired values for the same piece of host
// state, and kind-specific value ranges. It has no side effects.
func Validate(resources []Resource) error {
	var issues []string

	byID := make(map[string]int, len(resources))
	for i, r := range resources {
		if r.ID == "" {
			issues = append(issues, fmt.Sprintf("resource %d has an empty id", i))
			continue
		}
		if _, dup := byID[r.ID]; dup {
			issues = append(issues, fmt.Sprintf("duplicate resource id %q", r.ID))
			continue
		}
		byID[r.ID] = i
	}

	identities := make(map[string]Resource, len(resources))
	for _, r := range resources {
		if msg := checkVariant(r); msg != "" {
			issues = append(issues, msg)
			continue
		}
		if msg := checkValues(r); msg != "" {
			issues = append(issues, msg)
		}
		key := r.identity()
		if prev, ok := identities[key]; ok {
			if !sameDesired(prev, r) {
				issues = append(issues, fmt.Sprintf(
					"resources %q and %q declare contradictory values for %s",
					prev.ID, r.ID, key))
			}
			continue
		}
		identities[key] = r
	}

	for _, r := range resources {
		for _, dep := range r.DependsOn {
			if _, ok := byID[dep]; !ok {
				issues = append(issues, fmt.Sprintf(
					"resource %q depends on undeclared id %q", r.ID, dep))
			}
		}
		if r.Kind == KindService && r.Service != nil {
			for _, watched := range r.Service.RestartOn {
				if _, ok := byID[watched]; !ok {
					issues = append(issues, fmt.Sprintf(
						"service %q watches undeclared id %q", r.ID, watched))
				}
			}
		}
	}

	if cycle := findCycle(resources, byID); len(cycle) > 0 {
		issues = append(issues, "dependency cycle: "+strings.Join(cycle, " -> "))
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

// checkVariant verifies exactly one variant field is set and it matches
// the declared kind.
func checkVariant(r Resource) string {
	var set []Kind
	if r.Package != nil {
		set = append(set, KindPackage)
	}
	if r.Service != nil {
		set = append(set, KindService)
	}
	if r.FirewallPolicy != nil {
		set = append(set, KindFirewallPolicy)
	}
	if r.FirewallRule != nil {
		set = append(set, KindFirewallRule)
	}
	if r.FirewallEnabled != nil {
		set = append(set, KindFirewallEnabled)
	}
	if r.User != nil {
		set = append(set, KindUser)
	}
	if r.SSHDirective != nil {
		set = append(set, KindSSHDirective)
	}
	switch {
	case len(set) == 0:
		return fmt.Sprintf("resource %q has no desired value", r.ID)
	case len(set) > 1:
		return fmt.Sprintf("resource %q sets multiple desired values", r.ID)
	case set[0] != r.Kind:
		return fmt.Sprintf("resource %q declares kind %s but carries a %s value",
			r.ID, r.Kind, set[0])
	}
	return ""
}

func checkValues(r Resource) string {
	switch r.Kind {
	case KindPackage:
		if r.Package.Name == "" {
			return fmt.Sprintf("resource %q: package name is empty", r.ID)
		}
	case KindService:
		if r.Service.Name == "" {
			return fmt.Sprintf("resource %q: service name is empty", r.ID)
		}
	case KindFirewallPolicy:
		p := r.FirewallPolicy
		if p.Direction != Incoming && p.Direction != Outgoing {
			return fmt.Sprintf("resource %q: direction %q is not incoming or outgoing", r.ID, p.Direction)
		}
		if p.Policy != Allow && p.Policy != Deny {
			return fmt.Sprintf("resource %q: policy %q is not allow or deny", r.ID, p.Policy)
		}
	case KindFirewallRule:
		f := r.FirewallRule
		if f.Port < 1 || f.Port > 65535 {
			return fmt.Sprintf("resource %q: port %d out of range", r.ID, f.Port)
		}
		if f.Proto != TCP && f.Proto != UDP {
			return fmt.Sprintf("resource %q: protocol %q is not tcp or udp", r.ID, f.Proto)
		}
		if f.Action != Allow && f.Action != Deny {
			return fmt.Sprintf("resource %q: action %q is not allow or deny", r.ID, f.Action)
		}
	case KindUser:
		if r.User.Name == "" {
			return fmt.Sprintf("resource %q: user name is empty", r.ID)
		}
	case KindSSHDirective:
		d := r.SSHDirective
		known, valid := KnownDirective(d.Name, d.Value)
		if !known {
			return fmt.Sprintf("resource %q: unknown sshd directive %q", r.ID, d.Name)
		}
		if !valid {
			return fmt.Sprintf("resource %q: value %q out of range for directive %s", r.ID, d.Value, d.Name)
		}
	}
	return ""
}

func sameDesired(a, b Resource) bool {
	switch a.Kind {
	case KindPackage:
		return *a.Package == *b.Package
	case KindService:
		return a.Service.Name == b.Service.Name && a.Service.Enabled == b.Service.Enabled
	case KindFirewallPolicy:
		return *a.FirewallPolicy == *b.FirewallPolicy
	case KindFirewallRule:
		return *a.FirewallRule == *b.FirewallRule
	case KindFirewallEnabled:
		return *a.FirewallEnabled == *b.FirewallEnabled
	case KindUser:
		return a.User.Name == b.User.Name &&
			a.User.Shell == b.User.Shell &&
			a.User.AuthorizedKey == b.User.AuthorizedKey &&
			strings.Join(a.User.Groups, ",") == strings.Join(b.User.Groups, ",")
	case KindSSHDirective:
		return strings.EqualFold(a.SSHDirective.Value, b.SSHDirective.Value)
	}
	return false
}

// findCycle runs a depth-first search over dependsOn edges and returns
// one cycle if any exists, in dependency order.
func findCycle(resources []Resource, byID map[string]int) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(resources))
	var cycle []string

	var visit func(id string, stack []string) bool
	visit = func(id string, stack []string) bool {
		color[id] = gray
		stack = append(stack, id)
		idx, ok := byID[id]
		if ok {
			for _, dep := range resources[idx].DependsOn {
				switch color[dep] {
				case gray:
					for i, s := range stack {
						if s == dep {
							cycle = append(append([]string{}, stack[i:]...), dep)
							return true
						}
					}
				case white:
					if visit(dep, stack) {
						return true
					}
				}
			}
		}
		color[id] = black
		return false
	}

	for _, r := range resources {
		if color[r.ID] == white {
			if visit(r.ID, nil) {
				return cycle
			}
		}
	}
	return nil
}
