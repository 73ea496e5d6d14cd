// SPDX-License-Identifier: MPL-2.0

// Package portforward implements the `forward` command's endpoint parsing
// and substrate wiring: a local bare port bridged to a `host:port` SSH
// destination via internal/tunnel, or to a `pod:name:port` Kubernetes
// destination via the k8s adapter's kubectl-subprocess port-forward. This
// package only parses endpoints and picks which of the two to call.
package portforward

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	k8sadapter "github.com/xec-sh/xec/internal/adapter/k8s"
	sshadapter "github.com/xec-sh/xec/internal/adapter/ssh"
	"github.com/xec-sh/xec/internal/config"
	"github.com/xec-sh/xec/internal/sshpool"
	"github.com/xec-sh/xec/internal/target"
	"github.com/xec-sh/xec/internal/tunnel"
	"github.com/xec-sh/xec/pkg/types"
)

// EndpointKind identifies which of the three endpoint forms a string
// parsed as.
type EndpointKind int

const (
	// Bare is a plain port number, naming the local side of the forward.
	Bare EndpointKind = iota
	// Host is `host:port`, naming a configured SSH destination.
	Host
	// Pod is `pod:name:port`, naming a configured Kubernetes pod.
	Pod
)

// Endpoint is one side of a `forward <source> <destination>` invocation.
type Endpoint struct {
	Kind EndpointKind
	Host string
	Pod  string
	Port int
}

// ParseEndpoint parses one `forward` endpoint: a bare integer is
// a local port, `pod:<name>:<port>` forces the Kubernetes form, anything
// else is parsed as `host:port`. Ports are range-checked; a bare local
// port of 0 requests dynamic allocation.
func ParseEndpoint(s string) (Endpoint, error) {
	if port, err := strconv.Atoi(s); err == nil {
		if err := types.ListenPort(port).Validate(); err != nil {
			return Endpoint{}, fmt.Errorf("portforward: %w", err)
		}
		return Endpoint{Kind: Bare, Port: port}, nil
	}

	if rest, ok := strings.CutPrefix(s, "pod:"); ok {
		name, portStr, found := strings.Cut(rest, ":")
		if !found {
			return Endpoint{}, fmt.Errorf("portforward: invalid endpoint %q, want pod:name:port", s)
		}
		port, err := parsePort(s, portStr)
		if err != nil {
			return Endpoint{}, err
		}
		return Endpoint{Kind: Pod, Pod: name, Port: port}, nil
	}

	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return Endpoint{}, fmt.Errorf("portforward: invalid endpoint %q, want host:port", s)
	}
	port, err := parsePort(s, s[idx+1:])
	if err != nil {
		return Endpoint{}, err
	}
	return Endpoint{Kind: Host, Host: s[:idx], Port: port}, nil
}

func parsePort(endpoint, portStr string) (int, error) {
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, fmt.Errorf("portforward: invalid port in %q: %w", endpoint, err)
	}
	if err := types.ListenPort(port).Validate(); err != nil {
		return 0, fmt.Errorf("portforward: %w", err)
	}
	return port, nil
}

// splitLocalRemote identifies which of a and b is the local bare-port side;
// exactly one of the two must be Bare.
func splitLocalRemote(a, b Endpoint) (local, remote Endpoint, err error) {
	switch {
	case a.Kind == Bare && b.Kind != Bare:
		return a, b, nil
	case b.Kind == Bare && a.Kind != Bare:
		return b, a, nil
	case a.Kind == Bare && b.Kind == Bare:
		return Endpoint{}, Endpoint{}, fmt.Errorf("portforward: both endpoints are bare ports; one side must name a host or pod")
	default:
		return Endpoint{}, Endpoint{}, fmt.Errorf("portforward: neither endpoint is a bare local port")
	}
}

// Forward is a running port-forward, regardless of which substrate backs
// it.
type Forward interface {
	// LocalPort returns the bound local-side port (useful when the
	// caller requested dynamic allocation with port 0).
	LocalPort() int
	// Done reports when the forward stops carrying traffic, whether from
	// an explicit Close or (for the Kubernetes form) the kubectl
	// subprocess exiting on its own.
	Done() <-chan error
	Close() error
}

// Manager opens forwards against a loaded configuration, reusing the
// engine's shared SSH pool for the SSH form.
type Manager struct {
	cfg  *config.Config
	pool *sshpool.Pool
}

// NewManager constructs a Manager.
func NewManager(cfg *config.Config, pool *sshpool.Pool) *Manager {
	return &Manager{cfg: cfg, pool: pool}
}

// Open parses source and destination and starts the forward they describe.
func (m *Manager) Open(ctx context.Context, source, destination string) (Forward, error) {
	srcEP, err := ParseEndpoint(source)
	if err != nil {
		return nil, err
	}
	dstEP, err := ParseEndpoint(destination)
	if err != nil {
		return nil, err
	}

	local, remote, err := splitLocalRemote(srcEP, dstEP)
	if err != nil {
		return nil, err
	}

	switch remote.Kind {
	case Host:
		return m.openSSH(ctx, local.Port, remote)
	case Pod:
		return m.openK8s(ctx, local.Port, remote)
	default:
		return nil, fmt.Errorf("portforward: %q does not name a host or pod", remote)
	}
}

func (m *Manager) openSSH(ctx context.Context, localPort int, remote Endpoint) (Forward, error) {
	tgt, err := m.cfg.ResolveTarget(remote.Host)
	if err != nil {
		return nil, err
	}
	if tgt.Kind != target.SSH {
		return nil, fmt.Errorf("portforward: %q does not resolve to an SSH host", remote.Host)
	}

	a := sshadapter.New(m.pool, tgt.SSH)
	localAddr := fmt.Sprintf(":%d", localPort)
	remoteAddr := fmt.Sprintf("localhost:%d", remote.Port)

	tun, err := a.OpenTunnel(ctx, localAddr, remoteAddr)
	if err != nil {
		return nil, err
	}
	return newTunnelForward(tun), nil
}

func (m *Manager) openK8s(ctx context.Context, localPort int, remote Endpoint) (Forward, error) {
	tgt, err := m.cfg.ResolveTarget("pod:" + remote.Pod)
	if err != nil {
		return nil, err
	}

	a := k8sadapter.New(tgt.K8s)
	pf, err := a.PortForward(ctx, localPort, remote.Port)
	if err != nil {
		return nil, err
	}
	return &k8sForward{pf: pf}, nil
}

// tunnelForward adapts internal/tunnel.Tunnel to Forward. Unlike the
// Kubernetes form, an SSH tunnel has no subprocess that can exit on its
// own; Done only ever fires from an explicit Close.
type tunnelForward struct {
	tunnel *tunnel.Tunnel
	doneCh chan error
}

func newTunnelForward(t *tunnel.Tunnel) *tunnelForward {
	return &tunnelForward{tunnel: t, doneCh: make(chan error, 1)}
}

func (f *tunnelForward) LocalPort() int {
	tcpAddr, ok := f.tunnel.Addr().(*net.TCPAddr)
	if !ok {
		return 0
	}
	return tcpAddr.Port
}

func (f *tunnelForward) Done() <-chan error { return f.doneCh }

func (f *tunnelForward) Close() error {
	err := f.tunnel.Close()
	select {
	case f.doneCh <- err:
	default:
	}
	return err
}

// k8sForward adapts k8s.PortForward to Forward.
type k8sForward struct {
	pf *k8sadapter.PortForward
}

func (f *k8sForward) LocalPort() int     { return f.pf.LocalPort() }
func (f *k8sForward) Done() <-chan error { return f.pf.Done() }
func (f *k8sForward) Close() error       { return f.pf.Close() }
