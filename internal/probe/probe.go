// Package probe inspects live host state. All commands issued here are
// read-only; mutation is the executor's job. Probing failures degrade
// to an Unknown state per resource and are aggregated into a single
// ProbeError for the host.
package probe

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/hardshell/hardshell/internal/resource"
	"github.com/hardshell/hardshell/internal/transport"
)

// ProbeError aggregates every resource whose current state could not
// be determined on one host. The state map is still complete: failed
// resources carry StatusUnknown.
type ProbeError struct {
	Host     string
	Failures map[string]error
}

func (e *ProbeError) Error() string {
	ids := make([]string, 0, len(e.Failures))
	for id := range e.Failures {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return fmt.Sprintf("probing %s: %d resources unknown (%s)",
		e.Host, len(ids), strings.Join(ids, ", "))
}

// Prober inspects one host through a transport Runner.
type Prober struct {
	host   string
	runner transport.Runner
	retry  transport.RetryConfig
	fanout int

	group singleflight.Group
}

// New builds a Prober for one host. fanout bounds concurrent probe
// commands; values below 1 mean sequential.
func New(host string, runner transport.Runner, retry transport.RetryConfig, fanout int) *Prober {
	if fanout < 1 {
		fanout = 1
	}
	return &Prober{host: host, runner: runner, retry: retry, fanout: fanout}
}

// Probe determines the current state of every declared resource.
// Independent resources are probed concurrently; the returned map is
// complete before the planner ever sees it. A *ProbeError is returned
// alongside the map when any resource ends up Unknown.
func (p *Prober) Probe(ctx context.Context, resources []resource.Resource) (map[string]resource.State, error) {
	states := make(map[string]resource.State, len(resources))
	failures := make(map[string]error)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.fanout)

	for _, r := range resources {
		r := r
		g.Go(func() error {
			st, err := p.probeResource(gctx, r)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				states[r.ID] = resource.Unknown()
				failures[r.ID] = err
				return nil
			}
			states[r.ID] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return states, err
	}

	if len(failures) > 0 {
		return states, &ProbeError{Host: p.host, Failures: failures}
	}
	return states, nil
}

// run executes one read-only command with retry. Identical commands
// issued by concurrent probes (ufw listings, sshd -T) are deduplicated
// so the host sees each inspection once per run.
func (p *Prober) run(ctx context.Context, command string) (transport.Result, error) {
	v, err, _ := p.group.Do(command, func() (interface{}, error) {
		var res transport.Result
		err := transport.Retry(ctx, p.retry, func() error {
			var rerr error
			res, rerr = p.runner.RunPrivileged(ctx, command)
			return rerr
		})
		return res, err
	})
	if err != nil {
		return transport.Result{}, err
	}
	return v.(transport.Result), nil
}

func (p *Prober) probeResource(ctx context.Context, r resource.Resource) (resource.State, error) {
	switch r.Kind {
	case resource.KindPackage:
		return p.probePackage(ctx, r.Package.Name)
	case resource.KindService:
		return p.probeService(ctx, r.Service.Name)
	case resource.KindFirewallPolicy:
		return p.probeFirewallPolicy(ctx, r.FirewallPolicy.Direction)
	case resource.KindFirewallRule:
		return p.probeFirewallRule(ctx, *r.FirewallRule)
	case resource.KindFirewallEnabled:
		return p.probeFirewallEnabled(ctx)
	case resource.KindUser:
		return p.probeUser(ctx, *r.User)
	case resource.KindSSHDirective:
		return p.probeSSHDirective(ctx, r.SSHDirective.Name)
	}
	return resource.Unknown(), fmt.Errorf("unprobeable kind %s", r.Kind)
}

func (p *Prober) probePackage(ctx context.Context, name string) (resource.State, error) {
	res, err := p.run(ctx, "dpkg-query --show --showformat '${db:Status-Status}' "+name)
	if err != nil {
		return resource.Unknown(), err
	}
	if res.ExitCode != 0 {
		// dpkg-query exits 1 for packages it has never seen.
		return resource.Absent(), nil
	}
	if strings.TrimSpace(res.Stdout) == "installed" {
		return resource.State{Status: resource.StatusPresent}, nil
	}
	return resource.Absent(), nil
}

func (p *Prober) probeService(ctx context.Context, name string) (resource.State, error) {
	res, err := p.run(ctx, "systemctl show "+name+" --property=LoadState,ActiveState,UnitFileState")
	if err != nil {
		return resource.Unknown(), err
	}
	props := parseProperties(res.Stdout)
	if res.ExitCode != 0 || props["LoadState"] == "not-found" || props["LoadState"] == "" {
		return resource.Absent(), nil
	}
	return resource.State{
		Status: resource.StatusPresent,
		Service: &resource.ServiceState{
			Active:  props["ActiveState"] == "active",
			Enabled: props["UnitFileState"] == "enabled" || props["UnitFileState"] == "static",
		},
	}, nil
}

func (p *Prober) probeFirewallPolicy(ctx context.Context, dir resource.Direction) (resource.State, error) {
	res, err := p.run(ctx, "cat /etc/default/ufw")
	if err != nil {
		return resource.Unknown(), err
	}
	if res.ExitCode != 0 {
		// No ufw configuration on the host at all.
		return resource.Absent(), nil
	}
	policy, ok := parseUfwDefaults(res.Stdout, dir)
	if !ok {
		return resource.Unknown(), fmt.Errorf("no %s policy in /etc/default/ufw", dir)
	}
	return resource.State{
		Status:         resource.StatusPresent,
		FirewallPolicy: &resource.FirewallPolicy{Direction: dir, Policy: policy},
	}, nil
}

func (p *Prober) probeFirewallRule(ctx context.Context, want resource.FirewallRule) (resource.State, error) {
	res, err := p.run(ctx, "ufw show added")
	if err != nil {
		return resource.Unknown(), err
	}
	if res.ExitCode != 0 {
		return resource.Absent(), nil
	}
	for _, rule := range parseUfwAdded(res.Stdout) {
		if rule.Port == want.Port && rule.Proto == want.Proto {
			observed := rule
			return resource.State{Status: resource.StatusPresent, FirewallRule: &observed}, nil
		}
	}
	return resource.Absent(), nil
}

func (p *Prober) probeFirewallEnabled(ctx context.Context) (resource.State, error) {
	res, err := p.run(ctx, "ufw status")
	if err != nil {
		return resource.Unknown(), err
	}
	if res.ExitCode != 0 {
		return resource.Absent(), nil
	}
	switch {
	case strings.Contains(res.Stdout, "Status: active"):
		return resource.State{Status: resource.StatusPresent,
			FirewallEnabled: &resource.FirewallEnabled{Enabled: true}}, nil
	case strings.Contains(res.Stdout, "Status: inactive"):
		return resource.State{Status: resource.StatusPresent,
			FirewallEnabled: &resource.FirewallEnabled{Enabled: false}}, nil
	}
	return resource.Unknown(), fmt.Errorf("unrecognized ufw status output")
}

func (p *Prober) probeUser(ctx context.Context, want resource.User) (resource.State, error) {
	res, err := p.run(ctx, "getent passwd "+want.Name)
	if err != nil {
		return resource.Unknown(), err
	}
	if res.ExitCode != 0 {
		return resource.Absent(), nil
	}
	home, shell, ok := parsePasswdEntry(res.Stdout)
	if !ok {
		return resource.Unknown(), fmt.Errorf("unparseable passwd entry for %s", want.Name)
	}

	groupRes, err := p.run(ctx, "id -nG "+want.Name)
	if err != nil {
		return resource.Unknown(), err
	}
	groups := strings.Fields(groupRes.Stdout)

	keyRes, err := p.run(ctx, "cat "+home+"/.ssh/authorized_keys 2>/dev/null || true")
	if err != nil {
		return resource.Unknown(), err
	}
	hasKey := want.AuthorizedKey != "" &&
		strings.Contains(keyRes.Stdout, strings.TrimSpace(want.AuthorizedKey))

	return resource.State{
		Status: resource.StatusPresent,
		User: &resource.UserState{
			Groups:        groups,
			Shell:         shell,
			AuthorizedKey: hasKey,
		},
	}, nil
}

func (p *Prober) probeSSHDirective(ctx context.Context, name string) (resource.State, error) {
	res, err := p.run(ctx, "sshd -T")
	if err != nil {
		return resource.Unknown(), err
	}
	if res.ExitCode != 0 {
		return resource.Unknown(), fmt.Errorf("sshd -T failed: %s", strings.TrimSpace(res.Stderr))
	}
	effective := parseSSHDConfig(res.Stdout)
	value, ok := effective[resource.CanonicalDirective(name)]
	if !ok {
		return resource.Absent(), nil
	}
	return resource.State{
		Status:       resource.StatusPresent,
		SSHDirective: &resource.SSHDirective{Name: name, Value: value},
	}, nil
}
