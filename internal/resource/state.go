package resource

// Status classifies what probing learned about a resource.
type Status string

const (
	// StatusUnknown means the current value could not be determined
	// (transport failure or unparseable command output).
	StatusUnknown Status = "unknown"
	// StatusAbsent means the resource does not exist on the host.
	StatusAbsent Status = "absent"
	// StatusPresent means the resource exists; the observed value is
	// carried in the kind-shaped field.
	StatusPresent Status = "present"
)

// ServiceState is the observed state of a service unit.
type ServiceState struct {
	Active  bool
	Enabled bool
}

// UserState is the observed state of a user account.
type UserState struct {
	Groups        []string
	Shell         string
	AuthorizedKey bool
}

// State is the probed current value for one resource id. At most one
// observed field is set, matching the resource's kind; Absent and
// Unknown states carry no observed value.
type State struct {
	Status Status

	Service         *ServiceState
	FirewallPolicy  *FirewallPolicy
	FirewallRule    *FirewallRule
	FirewallEnabled *FirewallEnabled
	User            *UserState
	SSHDirective    *SSHDirective
}

// Unknown is the state recorded when probing fails.
func Unknown() State { return State{Status: StatusUnknown} }

// Absent is the state recorded when the resource does not exist.
func Absent() State { return State{Status: StatusAbsent} }
