package probe

import (
	"testing"

	"github.com/hardshell/hardshell/internal/resource"
)

const ufwDefaults = `# /etc/default/ufw
IPV6=yes
DEFAULT_INPUT_POLICY="DROP"
DEFAULT_OUTPUT_POLICY="ACCEPT"
DEFAULT_FORWARD_POLICY="DROP"
`

func TestParseUfwDefaults(t *testing.T) {
	tests := []struct {
		dir  resource.Direction
		want resource.Policy
	}{
		{resource.Incoming, resource.Deny},
		{resource.Outgoing, resource.Allow},
	}
	for _, tt := range tests {
		got, ok := parseUfwDefaults(ufwDefaults, tt.dir)
		if !ok || got != tt.want {
			t.Errorf("parseUfwDefaults(%s) = %q, %v; want %q, true", tt.dir, got, ok, tt.want)
		}
	}

	if _, ok := parseUfwDefaults("IPV6=yes\n", resource.Incoming); ok {
		t.Error("parseUfwDefaults without policy line reported ok")
	}
}

func TestParseUfwAdded(t *testing.T) {
	out := `Added user rules (see 'ufw status' for running firewall):
ufw allow 22/tcp
ufw allow 443/tcp
ufw deny 8080/udp
ufw limit 25/tcp
`
	rules := parseUfwAdded(out)
	want := []resource.FirewallRule{
		{Port: 22, Proto: resource.TCP, Action: resource.Allow},
		{Port: 443, Proto: resource.TCP, Action: resource.Allow},
		{Port: 8080, Proto: resource.UDP, Action: resource.Deny},
	}
	if len(rules) != len(want) {
		t.Fatalf("parsed %d rules, want %d", len(rules), len(want))
	}
	for i, r := range rules {
		if r != want[i] {
			t.Errorf("rule %d = %+v, want %+v", i, r, want[i])
		}
	}
}

func TestParseSSHDConfig(t *testing.T) {
	out := `port 22
permitrootlogin without-password
passwordauthentication yes
hostkey /etc/ssh/ssh_host_rsa_key
hostkey /etc/ssh/ssh_host_ed25519_key
`
	effective := parseSSHDConfig(out)
	if got := effective["permitrootlogin"]; got != "without-password" {
		t.Errorf("permitrootlogin = %q, want without-password", got)
	}
	if got := effective["port"]; got != "22" {
		t.Errorf("port = %q, want 22", got)
	}
	if got := effective["hostkey"]; got != "/etc/ssh/ssh_host_rsa_key" {
		t.Errorf("repeated directive kept %q, want first occurrence", got)
	}
}

func TestParsePasswdEntry(t *testing.T) {
	home, shell, ok := parsePasswdEntry("ops:x:1001:1001::/home/ops:/bin/bash\n")
	if !ok {
		t.Fatal("parsePasswdEntry reported not ok")
	}
	if home != "/home/ops" || shell != "/bin/bash" {
		t.Errorf("home, shell = %q, %q; want /home/ops, /bin/bash", home, shell)
	}

	if _, _, ok := parsePasswdEntry(""); ok {
		t.Error("empty input reported ok")
	}
}

func TestParseProperties(t *testing.T) {
	props := parseProperties("LoadState=loaded\nActiveState=active\nUnitFileState=enabled\n")
	if props["ActiveState"] != "active" || props["UnitFileState"] != "enabled" {
		t.Errorf("parseProperties = %v", props)
	}
}
