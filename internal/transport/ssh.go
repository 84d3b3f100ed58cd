package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Endpoint identifies one reachable host from the inventory.
type Endpoint struct {
	Name    string // inventory name, used in errors and logs
	Address string // host:port
	User    string // connection user; sudo is used when not root
	KeyFile string // path to the private key
}

// SSHOptions tune the SSH client.
type SSHOptions struct {
	ConnectTimeout time.Duration
	// KnownHostsFile enables strict host key checking when set.
	KnownHostsFile string
}

// SSHRunner is a connected SSH client implementing Runner. One runner
// serves one host for the duration of a run; sessions are opened per
// command.
type SSHRunner struct {
	endpoint Endpoint
	client   *ssh.Client
}

// DialSSH connects to the endpoint and authenticates with its key.
func DialSSH(ctx context.Context, ep Endpoint, opts SSHOptions) (*SSHRunner, error) {
	keyData, err := os.ReadFile(ep.KeyFile)
	if err != nil {
		return nil, &AuthError{Host: ep.Name, Err: fmt.Errorf("reading key: %w", err)}
	}
	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return nil, &AuthError{Host: ep.Name, Err: fmt.Errorf("parsing key: %w", err)}
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if opts.KnownHostsFile != "" {
		cb, err := knownhosts.New(opts.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("loading known hosts: %w", err)
		}
		hostKeyCallback = cb
	}

	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	cfg := &ssh.ClientConfig{
		User:            ep.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", ep.Address)
	if err != nil {
		return nil, &ConnectivityError{Host: ep.Name, Err: err}
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, ep.Address, cfg)
	if err != nil {
		conn.Close()
		if strings.Contains(err.Error(), "unable to authenticate") ||
			strings.Contains(err.Error(), "handshake failed: ssh:") {
			return nil, &AuthError{Host: ep.Name, Err: err}
		}
		return nil, &ConnectivityError{Host: ep.Name, Err: err}
	}

	return &SSHRunner{endpoint: ep, client: ssh.NewClient(sshConn, chans, reqs)}, nil
}

// RunPrivileged executes a command as root. For non-root connection
// users the command is wrapped in non-interactive sudo; a sudo prompt
// therefore fails fast instead of hanging the run.
func (r *SSHRunner) RunPrivileged(ctx context.Context, command string) (Result, error) {
	session, err := r.client.NewSession()
	if err != nil {
		return Result{}, &ConnectivityError{Host: r.endpoint.Name, Err: err}
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	wrapped := "/bin/sh -c " + shellQuote(command)
	if r.endpoint.User != "root" {
		wrapped = "sudo -n -H " + wrapped
	}

	done := make(chan error, 1)
	go func() { done <- session.Run(wrapped) }()

	select {
	case <-ctx.Done():
		// Closing the session unblocks Run; the command's outcome is
		// unknown at this point.
		session.Close()
		<-done
		return Result{}, ctx.Err()
	case err = <-done:
	}

	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitStatus()
			return res, nil
		}
		return res, &ConnectivityError{Host: r.endpoint.Name, Err: err}
	}
	return res, nil
}

// Close tears down the underlying connection.
func (r *SSHRunner) Close() error {
	return r.client.Close()
}

// shellQuote single-quotes a string for /bin/sh.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
