package probe

import (
	"strconv"
	"strings"

	"github.com/hardshell/hardshell/internal/resource"
)

// parseProperties reads `systemctl show` key=value output.
func parseProperties(out string) map[string]string {
	props := make(map[string]string)
	for _, line := range strings.Split(out, "\n") {
		key, value, found := strings.Cut(strings.TrimSpace(line), "=")
		if found && key != "" {
			props[key] = value
		}
	}
	return props
}

// parseUfwDefaults extracts the default policy for one direction from
// /etc/default/ufw (DEFAULT_INPUT_POLICY / DEFAULT_OUTPUT_POLICY).
func parseUfwDefaults(out string, dir resource.Direction) (resource.Policy, bool) {
	key := "DEFAULT_INPUT_POLICY"
	if dir == resource.Outgoing {
		key = "DEFAULT_OUTPUT_POLICY"
	}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, key+"=") {
			continue
		}
		value := strings.Trim(strings.TrimPrefix(line, key+"="), `"'`)
		switch strings.ToUpper(value) {
		case "ACCEPT":
			return resource.Allow, true
		case "DROP", "REJECT":
			return resource.Deny, true
		}
		return "", false
	}
	return "", false
}

// parseUfwAdded reads `ufw show added` output, lines of the form
// "ufw allow 22/tcp" or "ufw deny 8080/udp".
func parseUfwAdded(out string) []resource.FirewallRule {
	var rules []resource.FirewallRule
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 || fields[0] != "ufw" {
			continue
		}
		var action resource.Policy
		switch fields[1] {
		case "allow":
			action = resource.Allow
		case "deny":
			action = resource.Deny
		default:
			continue
		}
		portPart, protoPart, found := strings.Cut(fields[2], "/")
		if !found {
			continue
		}
		port, err := strconv.Atoi(portPart)
		if err != nil {
			continue
		}
		var proto resource.Proto
		switch protoPart {
		case "tcp":
			proto = resource.TCP
		case "udp":
			proto = resource.UDP
		default:
			continue
		}
		rules = append(rules, resource.FirewallRule{Port: port, Proto: proto, Action: action})
	}
	return rules
}

// parsePasswdEntry extracts home and shell from a getent passwd line.
func parsePasswdEntry(out string) (home, shell string, ok bool) {
	line := strings.TrimSpace(out)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	fields := strings.Split(line, ":")
	if len(fields) != 7 {
		return "", "", false
	}
	return fields[5], fields[6], true
}

// parseSSHDConfig reads `sshd -T` effective-configuration output into a
// directive → value map. Directive names arrive lowercased; multi-word
// values are kept whole.
func parseSSHDConfig(out string) map[string]string {
	effective := make(map[string]string)
	for _, line := range strings.Split(out, "\n") {
		name, value, found := strings.Cut(strings.TrimSpace(line), " ")
		if !found || name == "" {
			continue
		}
		// Repeated directives (e.g. hostkey) keep the first occurrence.
		if _, seen := effective[name]; !seen {
			effective[name] = value
		}
	}
	return effective
}
