package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Host is one reachable target from the inventory.
type Host struct {
	Name    string   `yaml:"name"`
	Address string   `yaml:"address"`
	User    string   `yaml:"user"`
	KeyFile string   `yaml:"key_file"`
	Group   string   `yaml:"group"`
	Tags    []string `yaml:"tags"`
}

// Inventory is the list of hosts a run may touch. It is consumed
// read-only by the fleet dispatcher.
type Inventory struct {
	Hosts []Host `yaml:"hosts"`
}

// LoadInventory reads and parses an inventory file.
func LoadInventory(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading inventory: %w", err)
	}
	return ParseInventory(data)
}

// ParseInventory parses inventory data from YAML bytes, applying
// defaults: port 22 when the address has none, connection user root.
func ParseInventory(data []byte) (*Inventory, error) {
	var inv Inventory
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&inv); err != nil {
		return nil, fmt.Errorf("parsing inventory: %w", err)
	}

	seen := make(map[string]bool, len(inv.Hosts))
	for i := range inv.Hosts {
		h := &inv.Hosts[i]
		if h.Name == "" {
			return nil, fmt.Errorf("inventory host %d has no name", i)
		}
		if seen[h.Name] {
			return nil, fmt.Errorf("duplicate inventory host %q", h.Name)
		}
		seen[h.Name] = true
		if h.Address == "" {
			return nil, fmt.Errorf("host %q has no address", h.Name)
		}
		if !strings.Contains(h.Address, ":") {
			h.Address += ":22"
		}
		if h.User == "" {
			h.User = "root"
		}
		if h.Group == "" {
			return nil, fmt.Errorf("host %q has no group", h.Name)
		}
	}
	return &inv, nil
}

// Select returns the hosts belonging to the named group; an empty
// group name selects every host.
func (inv *Inventory) Select(group string) []Host {
	if group == "" {
		return inv.Hosts
	}
	var out []Host
	for _, h := range inv.Hosts {
		if h.Group == group {
			out = append(out, h)
		}
	}
	return out
}
