package config

import (
	"fmt"
	"sort"

	"github.com/hardshell/hardshell/internal/resource"
)

// firewallPackage is the firewall frontend the executor drives.
const firewallPackage = "ufw"

// Compile turns one group's policy into a validated, deterministically
// ordered resource set. Declaration order is the planner's tiebreak, so
// the order produced here is load-bearing: packages, firewall posture,
// user, SSH directives, then services.
func Compile(g GroupPolicy) ([]resource.Resource, error) {
	var rs []resource.Resource
	packageIDs := make(map[string]string)

	addPackage := func(name string) string {
		if id, ok := packageIDs[name]; ok {
			return id
		}
		id := "pkg." + name
		packageIDs[name] = id
		rs = append(rs, resource.Resource{
			ID: id, Kind: resource.KindPackage,
			Package: &resource.Package{Name: name},
		})
		return id
	}

	if g.Firewall != nil {
		fwPkg := addPackage(firewallPackage)

		if g.Firewall.Defaults != nil {
			if g.Firewall.Defaults.Incoming != "" {
				rs = append(rs, resource.Resource{
					ID: "fw.default.in", Kind: resource.KindFirewallPolicy,
					DependsOn: []string{fwPkg},
					FirewallPolicy: &resource.FirewallPolicy{
						Direction: resource.Incoming,
						Policy:    resource.Policy(g.Firewall.Defaults.Incoming),
					},
				})
			}
			if g.Firewall.Defaults.Outgoing != "" {
				rs = append(rs, resource.Resource{
					ID: "fw.default.out", Kind: resource.KindFirewallPolicy,
					DependsOn: []string{fwPkg},
					FirewallPolicy: &resource.FirewallPolicy{
						Direction: resource.Outgoing,
						Policy:    resource.Policy(g.Firewall.Defaults.Outgoing),
					},
				})
			}
		}

		addRule := func(rule PortRule, action resource.Policy) {
			rs = append(rs, resource.Resource{
				ID:        fmt.Sprintf("fw.rule.%d-%s", rule.Port, rule.Proto),
				Kind:      resource.KindFirewallRule,
				DependsOn: []string{fwPkg},
				FirewallRule: &resource.FirewallRule{
					Port:   rule.Port,
					Proto:  resource.Proto(rule.Proto),
					Action: action,
				},
			})
		}
		for _, rule := range g.Firewall.Allow {
			addRule(rule, resource.Allow)
		}
		for _, rule := range g.Firewall.Deny {
			addRule(rule, resource.Deny)
		}

		if g.Firewall.Enabled != nil {
			rs = append(rs, resource.Resource{
				ID: "fw.enabled", Kind: resource.KindFirewallEnabled,
				DependsOn:       []string{fwPkg},
				FirewallEnabled: &resource.FirewallEnabled{Enabled: *g.Firewall.Enabled},
			})
		}
	}

	if g.User != nil {
		rs = append(rs, resource.Resource{
			ID: "user." + g.User.Name, Kind: resource.KindUser,
			User: &resource.User{
				Name:          g.User.Name,
				Groups:        g.User.Groups,
				Shell:         g.User.Shell,
				AuthorizedKey: g.User.AuthorizedKey,
			},
		})
	}

	if len(g.SSH) > 0 {
		// YAML maps carry no order; sort by canonical name so the
		// compiled declaration is reproducible.
		names := make([]string, 0, len(g.SSH))
		for name := range g.SSH {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool {
			return resource.CanonicalDirective(names[i]) < resource.CanonicalDirective(names[j])
		})

		directiveIDs := make([]string, 0, len(names))
		for _, name := range names {
			id := "ssh." + resource.CanonicalDirective(name)
			directiveIDs = append(directiveIDs, id)
			rs = append(rs, resource.Resource{
				ID: id, Kind: resource.KindSSHDirective,
				SSHDirective: &resource.SSHDirective{Name: name, Value: g.SSH[name]},
			})
		}

		// The sshd service watches every managed directive so a change
		// to any of them coalesces into a single restart.
		rs = append(rs, resource.Resource{
			ID: "svc.sshd", Kind: resource.KindService,
			Service: &resource.Service{Name: "ssh", Enabled: true, RestartOn: directiveIDs},
		})
	}

	for _, pkg := range g.Packages {
		addPackage(pkg)
	}

	for _, svc := range g.Services {
		enabled := true
		if svc.Enabled != nil {
			enabled = *svc.Enabled
		}
		var deps []string
		if pkgID, ok := packageIDs[svc.Name]; ok {
			deps = []string{pkgID}
		}
		rs = append(rs, resource.Resource{
			ID: "svc." + svc.Name, Kind: resource.KindService,
			DependsOn: deps,
			Service: &resource.Service{
				Name:      svc.Name,
				Enabled:   enabled,
				RestartOn: svc.RestartOn,
			},
		})
	}

	if err := resource.Validate(rs); err != nil {
		return nil, err
	}
	return rs, nil
}
