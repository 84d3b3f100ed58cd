package executor

import (
	"fmt"
	"strings"

	"github.com/hardshell/hardshell/internal/plan"
	"github.com/hardshell/hardshell/internal/resource"
)

// Commands renders the shell commands implementing one action. The
// forms are idempotent wherever the tool allows: ufw skips existing
// rules, systemctl enable is a no-op when already enabled, the
// authorized key append is guarded by a grep.
func Commands(a plan.Action) ([]string, error) {
	r := a.Resource
	switch r.Kind {
	case resource.KindPackage:
		return []string{
			"DEBIAN_FRONTEND=noninteractive apt-get install -y " + r.Package.Name,
		}, nil

	case resource.KindService:
		if a.Op == plan.OpRestart {
			return []string{"systemctl restart " + r.Service.Name}, nil
		}
		if r.Service.Enabled {
			return []string{"systemctl enable --now " + r.Service.Name}, nil
		}
		return []string{"systemctl start " + r.Service.Name}, nil

	case resource.KindFirewallPolicy:
		dir := "incoming"
		if r.FirewallPolicy.Direction == resource.Outgoing {
			dir = "outgoing"
		}
		return []string{fmt.Sprintf("ufw default %s %s", r.FirewallPolicy.Policy, dir)}, nil

	case resource.KindFirewallRule:
		return []string{fmt.Sprintf("ufw %s %d/%s",
			r.FirewallRule.Action, r.FirewallRule.Port, r.FirewallRule.Proto)}, nil

	case resource.KindFirewallEnabled:
		if r.FirewallEnabled.Enabled {
			// --force suppresses the "may disrupt existing ssh
			// connections" prompt; the orderer has already guaranteed
			// the management rule is in place.
			return []string{"ufw --force enable"}, nil
		}
		return []string{"ufw disable"}, nil

	case resource.KindUser:
		return userCommands(a.Op, r.User), nil

	case resource.KindSSHDirective:
		return sshDirectiveCommands(r.SSHDirective), nil
	}
	return nil, fmt.Errorf("no commands for kind %s", r.Kind)
}

func userCommands(op plan.Op, u *resource.User) []string {
	var commands []string

	if op == plan.OpCreate {
		shell := u.Shell
		if shell == "" {
			shell = "/bin/bash"
		}
		create := fmt.Sprintf("useradd -m -s %s", shell)
		if len(u.Groups) > 0 {
			create += " -G " + strings.Join(u.Groups, ",")
		}
		commands = append(commands, create+" "+u.Name)
	} else {
		// An omitted shell means the operator doesn't manage it; an
		// update prompted by groups or the key must leave it alone.
		var flags []string
		if u.Shell != "" {
			flags = append(flags, "-s "+u.Shell)
		}
		if len(u.Groups) > 0 {
			flags = append(flags, "-aG "+strings.Join(u.Groups, ","))
		}
		if len(flags) > 0 {
			commands = append(commands, "usermod "+strings.Join(flags, " ")+" "+u.Name)
		}
	}

	if u.AuthorizedKey != "" {
		key := strings.TrimSpace(u.AuthorizedKey)
		commands = append(commands, strings.Join([]string{
			fmt.Sprintf(`h=$(getent passwd %s | cut -d: -f6)`, u.Name),
			`install -d -m 700 "$h/.ssh"`,
			fmt.Sprintf(`grep -qxF "%s" "$h/.ssh/authorized_keys" 2>/dev/null || printf '%%s\n' "%s" >> "$h/.ssh/authorized_keys"`, key, key),
			`chmod 600 "$h/.ssh/authorized_keys"`,
			fmt.Sprintf(`chown -R %s: "$h/.ssh"`, u.Name),
		}, " && "))
	}

	return commands
}

// sshDirectiveCommands writes one drop-in per directive so directives
// the operator never declared keep their host defaults, then checks the
// resulting configuration before the coalesced restart can pick it up.
func sshDirectiveCommands(d *resource.SSHDirective) []string {
	dropIn := "/etc/ssh/sshd_config.d/60-hardshell-" + resource.CanonicalDirective(d.Name) + ".conf"
	return []string{
		fmt.Sprintf(`install -d -m 755 /etc/ssh/sshd_config.d && printf '%%s %%s\n' %s %s > %s`,
			d.Name, d.Value, dropIn),
		"sshd -t",
	}
}
