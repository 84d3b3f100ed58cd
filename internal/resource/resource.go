// Package resource defines the declarable units of host state and their
// validation. Resources are pure data; probing and mutation live in the
// probe and executor packages.
package resource

import (
	"strconv"
	"strings"
)

// Kind identifies the closed set of declarable resource kinds.
type Kind string

const (
	KindPackage         Kind = "package"
	KindService         Kind = "service"
	KindFirewallPolicy  Kind = "firewall_policy"
	KindFirewallRule    Kind = "firewall_rule"
	KindFirewallEnabled Kind = "firewall_enabled"
	KindUser            Kind = "user"
	KindSSHDirective    Kind = "ssh_directive"
)

// Direction is a firewall traffic direction.
type Direction string

const (
	Incoming Direction = "incoming"
	Outgoing Direction = "outgoing"
)

// Policy is a firewall verdict.
type Policy string

const (
	Allow Policy = "allow"
	Deny  Policy = "deny"
)

// Proto is a transport protocol for firewall rules.
type Proto string

const (
	TCP Proto = "tcp"
	UDP Proto = "udp"
)

// Package declares that a package must be installed.
type Package struct {
	Name string
}

// Service declares that a service must be enabled and running.
// RestartOn lists resource ids whose change triggers a coalesced restart.
type Service struct {
	Name      string
	Enabled   bool
	RestartOn []string
}

// FirewallPolicy declares the default verdict for one direction.
type FirewallPolicy struct {
	Direction Direction
	Policy    Policy
}

// FirewallRule declares a single port rule.
type FirewallRule struct {
	Port   int
	Proto  Proto
	Action Policy
}

// FirewallEnabled declares whether the firewall is active.
type FirewallEnabled struct {
	Enabled bool
}

// User declares a privileged account with key-based access.
type User struct {
	Name          string
	Groups        []string
	Shell         string
	AuthorizedKey string
}

// SSHDirective declares one sshd_config directive override.
type SSHDirective struct {
	Name  string
	Value string
}

// Resource is one declarable unit of host state. Exactly one variant
// field is set, matching Kind; Validate enforces this.
type Resource struct {
	ID        string
	Kind      Kind
	DependsOn []string

	Package         *Package
	Service         *Service
	FirewallPolicy  *FirewallPolicy
	FirewallRule    *FirewallRule
	FirewallEnabled *FirewallEnabled
	User            *User
	SSHDirective    *SSHDirective
}

// CanonicalDirective lowercases an sshd directive name, matching the
// form `sshd -T` reports.
func CanonicalDirective(name string) string {
	return strings.ToLower(name)
}

// RestrictsAccess reports whether applying this directive could revoke
// the current administrative access path: disabling password
// authentication, or any PermitRootLogin value other than yes.
func (d SSHDirective) RestrictsAccess() bool {
	name := CanonicalDirective(d.Name)
	value := strings.ToLower(d.Value)
	switch name {
	case "passwordauthentication":
		return value == "no"
	case "permitrootlogin":
		return value != "yes"
	}
	return false
}

// identity returns a per-kind key identifying which piece of host state
// a resource controls. Two resources with distinct ids but the same
// identity and different desired values are contradictory.
func (r Resource) identity() string {
	switch r.Kind {
	case KindPackage:
		return "package/" + r.Package.Name
	case KindService:
		return "service/" + r.Service.Name
	case KindFirewallPolicy:
		return "firewall_policy/" + string(r.FirewallPolicy.Direction)
	case KindFirewallRule:
		return "firewall_rule/" + r.FirewallRule.Proto.portKey(r.FirewallRule.Port)
	case KindFirewallEnabled:
		return "firewall_enabled"
	case KindUser:
		return "user/" + r.User.Name
	case KindSSHDirective:
		return "ssh_directive/" + CanonicalDirective(r.SSHDirective.Name)
	}
	return string(r.Kind) + "/" + r.ID
}

func (p Proto) portKey(port int) string {
	return strconv.Itoa(port) + "/" + string(p)
}
