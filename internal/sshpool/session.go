// SPDX-License-Identifier: MPL-2.0

package sshpool

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/xec-sh/xec/internal/target"
	"github.com/xec-sh/xec/internal/xerr"
)

// sessionState is the session's three-state lifecycle, kept as a lock-free
// atomic int32 rather than a mutex-guarded enum field.
type sessionState int32

const (
	stateIdle sessionState = iota
	stateBorrowed
	stateUnhealthy
)

// Session is one authenticated, multiplexed SSH connection, owned
// exclusively by the Pool and borrowed (not copied) by callers.
type Session struct {
	key    string
	client *ssh.Client
	spec   target.SSHSpec

	state      atomic.Int32
	lastUsedAt atomic.Int64 // unix nanos

	keepaliveStop chan struct{}
}

func dial(ctx context.Context, spec target.SSHSpec) (*Session, error) {
	authMethods, err := authMethodsFor(spec)
	if err != nil {
		return nil, xerr.New(xerr.AuthFailed, "ssh", err)
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()

	readyTimeout := time.Duration(spec.ReadyTimeout) * time.Second
	if readyTimeout <= 0 {
		readyTimeout = 10 * time.Second
	}

	cfg := &ssh.ClientConfig{
		User:            spec.Username,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         readyTimeout,
	}

	addr := fmt.Sprintf("%s:%d", spec.Host, resolvePort(spec.Port))

	dialer := net.Dialer{Timeout: readyTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, xerr.New(xerr.ConnectFailed, "ssh", err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		_ = conn.Close()
		if isHostKeyErr(err) {
			return nil, xerr.New(xerr.HostKeyMismatch, "ssh", err)
		}
		return nil, xerr.New(xerr.AuthFailed, "ssh", err)
	}

	client := ssh.NewClient(sshConn, chans, reqs)
	sess := &Session{key: destKey(spec), client: client, spec: spec}
	sess.state.Store(int32(stateBorrowed))
	sess.touch()

	if spec.KeepaliveInterval > 0 {
		sess.keepaliveStop = make(chan struct{})
		go sess.runKeepalive()
	}

	return sess, nil
}

func resolvePort(port int) int {
	if port <= 0 {
		return 22
	}
	return port
}

func isHostKeyErr(err error) bool {
	var revokedErr *knownhosts.RevokedError
	var keyErr *knownhosts.KeyError
	return errors.As(err, &revokedErr) || errors.As(err, &keyErr)
}

// authMethodsFor builds the auth method chain in precedence order:
// explicit key content, then key path (with passphrase), then ssh-agent,
// then password.
func authMethodsFor(spec target.SSHSpec) ([]ssh.AuthMethod, error) {
	if len(spec.PrivateKey) > 0 {
		signer, err := parseSigner(spec.PrivateKey, spec.Passphrase)
		if err != nil {
			return nil, err
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}

	if spec.PrivateKeyPath != "" {
		data, err := os.ReadFile(spec.PrivateKeyPath)
		if err != nil {
			return nil, err
		}
		signer, err := parseSigner(data, spec.Passphrase)
		if err != nil {
			return nil, err
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			agentClient := agent.NewClient(conn)
			return []ssh.AuthMethod{ssh.PublicKeysCallback(agentClient.Signers)}, nil
		}
	}

	if spec.Password != "" {
		return []ssh.AuthMethod{ssh.Password(spec.Password)}, nil
	}

	return nil, fmt.Errorf("no usable authentication method configured for %s@%s", spec.Username, spec.Host)
}

func parseSigner(key []byte, passphrase string) (ssh.Signer, error) {
	if passphrase != "" {
		return ssh.ParsePrivateKeyWithPassphrase(key, []byte(passphrase))
	}
	return ssh.ParsePrivateKey(key)
}

// Client exposes the underlying *ssh.Client so adapters can open session
// channels and SFTP clients directly; the Session itself retains ownership
// and closes it on eviction.
func (s *Session) Client() *ssh.Client { return s.client }

func (s *Session) touch() { s.lastUsedAt.Store(time.Now().UnixNano()) }

// probe runs the cheap health check: open a channel and run a no-op exec
// with a short timeout.
func (s *Session) probe(timeout time.Duration) bool {
	type result struct{ err error }
	done := make(chan result, 1)

	go func() {
		sess, err := s.client.NewSession()
		if err != nil {
			done <- result{err}
			return
		}
		defer sess.Close()
		done <- result{sess.Run("true")}
	}()

	select {
	case r := <-done:
		return r.err == nil
	case <-time.After(timeout):
		return false
	}
}

func (s *Session) runKeepalive() {
	interval := time.Duration(s.spec.KeepaliveInterval) * time.Second
	maxMisses := s.spec.KeepaliveCountMax
	if maxMisses <= 0 {
		maxMisses = 3
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	misses := 0
	for {
		select {
		case <-s.keepaliveStop:
			return
		case <-ticker.C:
			_, _, err := s.client.SendRequest("keepalive@xec", true, nil)
			if err != nil {
				misses++
				if misses >= maxMisses {
					s.state.Store(int32(stateUnhealthy))
					return
				}
				continue
			}
			misses = 0
		}
	}
}

func (s *Session) close() error {
	if s.keepaliveStop != nil {
		close(s.keepaliveStop)
	}
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
