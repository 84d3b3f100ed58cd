package fleet

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/hardshell/hardshell/internal/config"
)

// Selector narrows a fleet run to hosts matching a boolean expression,
// e.g. `group == "web" && "pci" in tags` or `name startsWith "db-"`.
type Selector struct {
	Source  string
	program *vm.Program
}

// CompileSelector validates and compiles a host selector expression.
// An empty source yields a nil Selector, which matches every host.
func CompileSelector(source string) (*Selector, error) {
	if source == "" {
		return nil, nil
	}

	program, err := expr.Compile(source, expr.Env(selectorEnv(config.Host{})), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("invalid host selector: %w", err)
	}

	return &Selector{Source: source, program: program}, nil
}

// Match reports whether the host satisfies the selector. A nil Selector
// matches everything.
func (s *Selector) Match(h config.Host) (bool, error) {
	if s == nil {
		return true, nil
	}
	result, err := expr.Run(s.program, selectorEnv(h))
	if err != nil {
		return false, fmt.Errorf("host selector failed on %s: %w", h.Name, err)
	}
	return result.(bool), nil
}

// Filter applies the selector to an inventory slice.
func (s *Selector) Filter(hosts []config.Host) ([]config.Host, error) {
	if s == nil {
		return hosts, nil
	}
	matched := make([]config.Host, 0, len(hosts))
	for _, h := range hosts {
		ok, err := s.Match(h)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, h)
		}
	}
	return matched, nil
}

func selectorEnv(h config.Host) map[string]interface{} {
	tags := h.Tags
	if tags == nil {
		tags = []string{}
	}
	return map[string]interface{}{
		"name":    h.Name,
		"address": h.Address,
		"group":   h.Group,
		"user":    h.User,
		"tags":    tags,
	}
}
