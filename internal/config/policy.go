// Package config loads the desired-state policy and host inventory
// from YAML and compiles policy groups into declared resource sets.
package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Policy is the top-level desired-state declaration, keyed by host
// group.
type Policy struct {
	Groups map[string]GroupPolicy `yaml:"groups"`
}

// GroupPolicy declares the target posture for every host in a group.
type GroupPolicy struct {
	Packages []string        `yaml:"packages"`
	Services []ServicePolicy `yaml:"services"`
	Firewall *FirewallGroup  `yaml:"firewall"`
	User     *UserPolicy     `yaml:"user"`
	// SSH maps sshd_config directive names to values. Directives not
	// listed keep the host's defaults.
	SSH map[string]string `yaml:"ssh"`
}

// ServicePolicy declares a service that must be enabled and running.
type ServicePolicy struct {
	Name string `yaml:"name"`
	// Enabled defaults to true when omitted.
	Enabled   *bool    `yaml:"enabled"`
	RestartOn []string `yaml:"restart_on"`
}

// FirewallGroup declares firewall posture for a group.
type FirewallGroup struct {
	Defaults *FirewallDefaults `yaml:"defaults"`
	Allow    []PortRule        `yaml:"allow"`
	Deny     []PortRule        `yaml:"deny"`
	Enabled  *bool             `yaml:"enabled"`
}

// FirewallDefaults declares the default policies per direction.
type FirewallDefaults struct {
	Incoming string `yaml:"incoming"`
	Outgoing string `yaml:"outgoing"`
}

// PortRule is one port/protocol pair.
type PortRule struct {
	Port  int    `yaml:"port"`
	Proto string `yaml:"proto"`
}

// UserPolicy declares the privileged user to converge.
type UserPolicy struct {
	Name          string   `yaml:"name"`
	Groups        []string `yaml:"groups"`
	Shell         string   `yaml:"shell"`
	AuthorizedKey string   `yaml:"authorized_key"`
}

// LoadPolicy reads and parses a policy file. Unknown fields, unknown
// sshd directives, and out-of-range ports are all rejected here, before
// any host is contacted.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy parses policy data from YAML bytes.
func ParsePolicy(data []byte) (*Policy, error) {
	var p Policy
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("parsing policy: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate compiles every group, which runs the full resource-level
// validation (ids, dependency references, value ranges).
func (p *Policy) Validate() error {
	if len(p.Groups) == 0 {
		return fmt.Errorf("policy declares no groups")
	}
	for name, group := range p.Groups {
		if _, err := Compile(group); err != nil {
			return fmt.Errorf("group %q: %w", name, err)
		}
	}
	return nil
}

// Group returns the named group's policy.
func (p *Policy) Group(name string) (GroupPolicy, bool) {
	g, ok := p.Groups[name]
	return g, ok
}
