package plan

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatText produces the human-readable plan output used by dry runs.
// Noop resources are listed so an operator can verify idempotence at a
// glance.
func FormatText(p *Plan) string {
	var sb strings.Builder

	if !p.HasChanges() {
		sb.WriteString("No changes. Host matches the declared state.\n")
	} else {
		var creates, updates, enables, restarts int
		for _, a := range p.Actions {
			switch a.Op {
			case OpCreate:
				creates++
			case OpUpdate:
				updates++
			case OpEnable:
				enables++
			case OpRestart:
				restarts++
			}
		}
		sb.WriteString(fmt.Sprintf("Plan: %d to create, %d to update, %d to enable, %d restarts\n\n",
			creates, updates, enables, restarts))
		for _, a := range p.Actions {
			sb.WriteString(fmt.Sprintf("  %s %s (%s)\n", marker(a.Op), a.ResourceID, a.Reason))
		}
	}

	for _, a := range p.Noops {
		sb.WriteString(fmt.Sprintf("  = %s up-to-date\n", a.ResourceID))
	}
	for _, id := range p.Unknown {
		sb.WriteString(fmt.Sprintf("  ? %s state unknown, will be skipped\n", id))
	}
	return sb.String()
}

func marker(op Op) string {
	switch op {
	case OpCreate:
		return "+"
	case OpUpdate:
		return "~"
	case OpEnable:
		return "^"
	case OpRestart:
		return "!"
	}
	return " "
}

// FormatJSON produces machine-readable plan output.
func FormatJSON(p *Plan) (string, error) {
	type jsonAction struct {
		Resource string `json:"resource"`
		Op       string `json:"op"`
		Reason   string `json:"reason,omitempty"`
	}
	type jsonPlan struct {
		HasChanges bool         `json:"has_changes"`
		Actions    []jsonAction `json:"actions"`
		Noops      []string     `json:"noops,omitempty"`
		Unknown    []string     `json:"unknown,omitempty"`
	}

	jp := jsonPlan{HasChanges: p.HasChanges(), Unknown: p.Unknown}
	for _, a := range p.Actions {
		jp.Actions = append(jp.Actions, jsonAction{Resource: a.ResourceID, Op: string(a.Op), Reason: a.Reason})
	}
	for _, a := range p.Noops {
		jp.Noops = append(jp.Noops, a.ResourceID)
	}

	data, err := json.MarshalIndent(jp, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data) + "\n", nil
}
