package order

import (
	"errors"
	"reflect"
	"testing"

	"github.com/hardshell/hardshell/internal/plan"
	"github.com/hardshell/hardshell/internal/resource"
)

func absentState(rs []resource.Resource) map[string]resource.State {
	states := make(map[string]resource.State, len(rs))
	for _, r := range rs {
		states[r.ID] = resource.Absent()
	}
	return states
}

func ids(actions []plan.Action) []string {
	out := make([]string, len(actions))
	for i, a := range actions {
		out[i] = a.ResourceID
	}
	return out
}

func position(t *testing.T, sequence []string, id string) int {
	t.Helper()
	for i, s := range sequence {
		if s == id {
			return i
		}
	}
	t.Fatalf("id %s not in sequence %v", id, sequence)
	return -1
}

func firewallDeclaration() []resource.Resource {
	return []resource.Resource{
		{ID: "pkg.ufw", Kind: resource.KindPackage, Package: &resource.Package{Name: "ufw"}},
		{ID: "fw.default.in", Kind: resource.KindFirewallPolicy, DependsOn: []string{"pkg.ufw"},
			FirewallPolicy: &resource.FirewallPolicy{Direction: resource.Incoming, Policy: resource.Deny}},
		{ID: "fw.default.out", Kind: resource.KindFirewallPolicy, DependsOn: []string{"pkg.ufw"},
			FirewallPolicy: &resource.FirewallPolicy{Direction: resource.Outgoing, Policy: resource.Allow}},
		{ID: "fw.rule.ssh", Kind: resource.KindFirewallRule, DependsOn: []string{"pkg.ufw"},
			FirewallRule: &resource.FirewallRule{Port: 22, Proto: resource.TCP, Action: resource.Allow}},
		{ID: "fw.rule.https", Kind: resource.KindFirewallRule, DependsOn: []string{"pkg.ufw"},
			FirewallRule: &resource.FirewallRule{Port: 443, Proto: resource.TCP, Action: resource.Allow}},
		{ID: "fw.enabled", Kind: resource.KindFirewallEnabled, DependsOn: []string{"pkg.ufw"},
			FirewallEnabled: &resource.FirewallEnabled{Enabled: true}},
	}
}

func hardeningDeclaration(withUser bool) []resource.Resource {
	rs := []resource.Resource{
		{ID: "ssh.root", Kind: resource.KindSSHDirective,
			SSHDirective: &resource.SSHDirective{Name: "PermitRootLogin", Value: "no"}},
		{ID: "ssh.password", Kind: resource.KindSSHDirective,
			SSHDirective: &resource.SSHDirective{Name: "PasswordAuthentication", Value: "no"}},
	}
	if withUser {
		rs = append(rs, resource.Resource{ID: "user.ops", Kind: resource.KindUser,
			User: &resource.User{Name: "ops", Groups: []string{"sudo"}, Shell: "/bin/bash",
				AuthorizedKey: "ssh-ed25519 AAAAC3opskey"}})
	}
	return rs
}

func TestOrderFreshFirewall(t *testing.T) {
	rs := firewallDeclaration()
	ordered, err := Order("web-1", plan.Compute(rs, absentState(rs)), rs)
	if err != nil {
		t.Fatalf("Order() error = %v", err)
	}

	want := []string{"pkg.ufw", "fw.default.in", "fw.default.out", "fw.rule.ssh", "fw.rule.https", "fw.enabled"}
	if got := ids(ordered.Actions); !reflect.DeepEqual(got, want) {
		t.Errorf("sequence = %v, want %v", got, want)
	}
}

func TestOrderDeterministic(t *testing.T) {
	rs := firewallDeclaration()
	first, err := Order("web-1", plan.Compute(rs, absentState(rs)), rs)
	if err != nil {
		t.Fatalf("Order() error = %v", err)
	}
	second, err := Order("web-1", plan.Compute(rs, absentState(rs)), rs)
	if err != nil {
		t.Fatalf("Order() error = %v", err)
	}
	if !reflect.DeepEqual(ids(first.Actions), ids(second.Actions)) {
		t.Errorf("sequences differ: %v vs %v", ids(first.Actions), ids(second.Actions))
	}
}

func TestUserPrecedesRestrictingDirectives(t *testing.T) {
	rs := hardeningDeclaration(true)
	ordered, err := Order("web-1", plan.Compute(rs, absentState(rs)), rs)
	if err != nil {
		t.Fatalf("Order() error = %v", err)
	}
	sequence := ids(ordered.Actions)
	user := position(t, sequence, "user.ops")
	if root := position(t, sequence, "ssh.root"); root < user {
		t.Errorf("ssh.root at %d precedes user.ops at %d", root, user)
	}
	if pw := position(t, sequence, "ssh.password"); pw < user {
		t.Errorf("ssh.password at %d precedes user.ops at %d", pw, user)
	}

	// Safety edges surface in the containment graph too.
	if deps := ordered.Prereqs["ssh.root"]; len(deps) == 0 || deps[0] != "user.ops" {
		t.Errorf("Prereqs[ssh.root] = %v, want [user.ops]", deps)
	}
}

func TestRejectsLockoutWithoutUser(t *testing.T) {
	rs := hardeningDeclaration(false)
	_, err := Order("web-1", plan.Compute(rs, absentState(rs)), rs)
	var serr *SafetyError
	if !errors.As(err, &serr) {
		t.Fatalf("Order() error = %v, want *SafetyError", err)
	}
}

func TestAlreadyKeyedUserSatisfiesSafety(t *testing.T) {
	rs := hardeningDeclaration(true)
	states := absentState(rs)
	// The user already exists with its key; only the directives change.
	states["user.ops"] = resource.State{Status: resource.StatusPresent,
		User: &resource.UserState{Groups: []string{"sudo"}, Shell: "/bin/bash", AuthorizedKey: true}}
	if _, err := Order("web-1", plan.Compute(rs, states), rs); err != nil {
		t.Fatalf("Order() error = %v, want nil", err)
	}
}

func TestRejectsEnableWithoutManagementRule(t *testing.T) {
	rs := []resource.Resource{
		{ID: "pkg.ufw", Kind: resource.KindPackage, Package: &resource.Package{Name: "ufw"}},
		{ID: "fw.rule.https", Kind: resource.KindFirewallRule, DependsOn: []string{"pkg.ufw"},
			FirewallRule: &resource.FirewallRule{Port: 443, Proto: resource.TCP, Action: resource.Allow}},
		{ID: "fw.enabled", Kind: resource.KindFirewallEnabled, DependsOn: []string{"pkg.ufw"},
			FirewallEnabled: &resource.FirewallEnabled{Enabled: true}},
	}
	_, err := Order("web-1", plan.Compute(rs, absentState(rs)), rs)
	var serr *SafetyError
	if !errors.As(err, &serr) {
		t.Fatalf("Order() error = %v, want *SafetyError", err)
	}
}

func TestRejectsDenyOnManagementPort(t *testing.T) {
	rs := []resource.Resource{
		{ID: "fw.rule.ssh", Kind: resource.KindFirewallRule,
			FirewallRule: &resource.FirewallRule{Port: 22, Proto: resource.TCP, Action: resource.Deny}},
	}
	_, err := Order("web-1", plan.Compute(rs, absentState(rs)), rs)
	var serr *SafetyError
	if !errors.As(err, &serr) {
		t.Fatalf("Order() error = %v, want *SafetyError", err)
	}
}

func TestManagementPortFollowsPortDirective(t *testing.T) {
	rs := []resource.Resource{
		{ID: "ssh.port", Kind: resource.KindSSHDirective,
			SSHDirective: &resource.SSHDirective{Name: "Port", Value: "2222"}},
	}
	if got := ManagementPort(rs); got != 2222 {
		t.Errorf("ManagementPort = %d, want 2222", got)
	}
	if got := ManagementPort(nil); got != 22 {
		t.Errorf("ManagementPort default = %d, want 22", got)
	}
}

func TestSafetyEdgeConflictRejected(t *testing.T) {
	// A declared dependency pointing the wrong way across a safety edge
	// is unsatisfiable, not silently reordered.
	rs := hardeningDeclaration(true)
	for i := range rs {
		if rs[i].ID == "user.ops" {
			rs[i].DependsOn = []string{"ssh.password"}
		}
	}
	_, err := Order("web-1", plan.Compute(rs, absentState(rs)), rs)
	var serr *SafetyError
	if !errors.As(err, &serr) {
		t.Fatalf("Order() error = %v, want *SafetyError", err)
	}
}
