package resource

import (
	"errors"
	"strings"
	"testing"
)

func baseSet() []Resource {
	return []Resource{
		{ID: "pkg.ufw", Kind: KindPackage, Package: &Package{Name: "ufw"}},
		{ID: "fw.rule.ssh", Kind: KindFirewallRule, DependsOn: []string{"pkg.ufw"},
			FirewallRule: &FirewallRule{Port: 22, Proto: TCP, Action: Allow}},
		{ID: "fw.enabled", Kind: KindFirewallEnabled, DependsOn: []string{"fw.rule.ssh"},
			FirewallEnabled: &FirewallEnabled{Enabled: true}},
	}
}

func TestValidateAccepts(t *testing.T) {
	if err := Validate(baseSet()); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func([]Resource) []Resource
		wantIssue string
	}{
		{
			name: "duplicate id",
			mutate: func(rs []Resource) []Resource {
				return append(rs, Resource{ID: "pkg.ufw", Kind: KindPackage, Package: &Package{Name: "ufw"}})
			},
			wantIssue: "duplicate resource id",
		},
		{
			name: "dangling dependency",
			mutate: func(rs []Resource) []Resource {
				rs[1].DependsOn = []string{"pkg.nftables"}
				return rs
			},
			wantIssue: "undeclared id",
		},
		{
			name: "dependency cycle",
			mutate: func(rs []Resource) []Resource {
				rs[0].DependsOn = []string{"fw.enabled"}
				return rs
			},
			wantIssue: "dependency cycle",
		},
		{
			name: "kind and value mismatch",
			mutate: func(rs []Resource) []Resource {
				rs[0].Kind = KindService
				return rs
			},
			wantIssue: "declares kind service",
		},
		{
			name: "two desired values",
			mutate: func(rs []Resource) []Resource {
				rs[0].Service = &Service{Name: "ufw"}
				return rs
			},
			wantIssue: "multiple desired values",
		},
		{
			name: "port out of range",
			mutate: func(rs []Resource) []Resource {
				rs[1].FirewallRule.Port = 70000
				return rs
			},
			wantIssue: "out of range",
		},
		{
			name: "unknown ssh directive",
			mutate: func(rs []Resource) []Resource {
				return append(rs, Resource{ID: "ssh.bogus", Kind: KindSSHDirective,
					SSHDirective: &SSHDirective{Name: "PermitWizardry", Value: "no"}})
			},
			wantIssue: "unknown sshd directive",
		},
		{
			name: "directive value out of range",
			mutate: func(rs []Resource) []Resource {
				return append(rs, Resource{ID: "ssh.root", Kind: KindSSHDirective,
					SSHDirective: &SSHDirective{Name: "PermitRootLogin", Value: "maybe"}})
			},
			wantIssue: "out of range for directive",
		},
		{
			name: "contradictory desired values",
			mutate: func(rs []Resource) []Resource {
				return append(rs,
					Resource{ID: "ssh.pw.a", Kind: KindSSHDirective,
						SSHDirective: &SSHDirective{Name: "PasswordAuthentication", Value: "no"}},
					Resource{ID: "ssh.pw.b", Kind: KindSSHDirective,
						SSHDirective: &SSHDirective{Name: "passwordauthentication", Value: "yes"}})
			},
			wantIssue: "contradictory values",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.mutate(baseSet()))
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error type = %T, want *ValidationError", err)
			}
			if !strings.Contains(err.Error(), tt.wantIssue) {
				t.Errorf("error %q does not mention %q", err, tt.wantIssue)
			}
		})
	}
}

func TestRestrictsAccess(t *testing.T) {
	tests := []struct {
		directive SSHDirective
		want      bool
	}{
		{SSHDirective{Name: "PasswordAuthentication", Value: "no"}, true},
		{SSHDirective{Name: "PasswordAuthentication", Value: "yes"}, false},
		{SSHDirective{Name: "PermitRootLogin", Value: "no"}, true},
		{SSHDirective{Name: "PermitRootLogin", Value: "prohibit-password"}, true},
		{SSHDirective{Name: "permitrootlogin", Value: "yes"}, false},
		{SSHDirective{Name: "X11Forwarding", Value: "no"}, false},
	}
	for _, tt := range tests {
		if got := tt.directive.RestrictsAccess(); got != tt.want {
			t.Errorf("RestrictsAccess(%s=%s) = %v, want %v",
				tt.directive.Name, tt.directive.Value, got, tt.want)
		}
	}
}
