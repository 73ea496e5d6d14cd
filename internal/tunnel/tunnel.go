// SPDX-License-Identifier: MPL-2.0

// Package tunnel implements the local-listener-to-remote-channel bridge
// shared by the SSH adapter's direct-tcpip forwarding. It owns a TCP
// listener and bridges every accepted connection to a remote endpoint
// opened through a caller-supplied dial function, so the SSH adapter need
// not reimplement accept/bridge/drain bookkeeping.
package tunnel

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/xec-sh/xec/internal/xerr"
)

// DrainGrace bounds how long Close waits for in-flight streams
// to finish before forcibly closing them. A var, not a const, so tests can
// shorten it.
var DrainGrace = 2 * time.Second

// DialFunc opens the remote side of one forwarded connection: a
// direct-tcpip channel for SSH, or an equivalent for another substrate.
type DialFunc func(ctx context.Context) (net.Conn, error)

// Tunnel owns a local listener and bridges every accepted connection to a
// freshly dialed remote endpoint, bidirectionally, until either side closes.
type Tunnel struct {
	listener net.Listener
	dial     DialFunc

	// OnClose, if set, runs once Close has finished draining/force-closing
	// every connection; the SSH adapter uses it to release the session
	// it borrowed for the tunnel's lifetime back to the pool.
	OnClose func()

	mu      sync.Mutex
	conns   map[net.Conn]struct{}
	closing bool

	wg sync.WaitGroup
}

// Open binds localAddr (use ":0" for dynamic allocation) and starts
// accepting connections, bridging each to dial's result.
func Open(localAddr string, dial DialFunc) (*Tunnel, error) {
	ln, err := net.Listen("tcp", localAddr)
	if err != nil {
		return nil, xerr.New(xerr.TunnelError, "ssh", err)
	}

	t := &Tunnel{listener: ln, dial: dial, conns: make(map[net.Conn]struct{})}
	t.wg.Add(1)
	go t.acceptLoop()
	return t, nil
}

// Addr returns the bound local address, resolving a dynamic ("​:0") port.
func (t *Tunnel) Addr() net.Addr { return t.listener.Addr() }

func (t *Tunnel) acceptLoop() {
	defer t.wg.Done()
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			return
		}
		t.mu.Lock()
		if t.closing {
			t.mu.Unlock()
			conn.Close()
			return
		}
		t.conns[conn] = struct{}{}
		t.mu.Unlock()

		t.wg.Add(1)
		go t.bridge(conn)
	}
}

func (t *Tunnel) bridge(local net.Conn) {
	defer t.wg.Done()
	defer t.forget(local)
	defer local.Close()

	remote, err := t.dial(context.Background())
	if err != nil {
		return
	}
	defer remote.Close()

	// Closing both ends as soon as either copy direction finishes unblocks
	// the other goroutine's pending Read instead of leaving it waiting on a
	// peer that will never send again.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = io.Copy(remote, local)
		local.Close()
		remote.Close()
	}()
	go func() {
		defer wg.Done()
		_, _ = io.Copy(local, remote)
		local.Close()
		remote.Close()
	}()
	wg.Wait()
}

func (t *Tunnel) forget(conn net.Conn) {
	t.mu.Lock()
	delete(t.conns, conn)
	t.mu.Unlock()
}

// Close stops accepting new connections and waits up to DrainGrace for
// in-flight streams to finish before forcibly closing everything still
// open.
func (t *Tunnel) Close() error {
	t.mu.Lock()
	t.closing = true
	t.mu.Unlock()

	_ = t.listener.Close()

	drained := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(DrainGrace):
		t.mu.Lock()
		for conn := range t.conns {
			conn.Close()
		}
		t.mu.Unlock()
		<-drained
	}

	if t.OnClose != nil {
		t.OnClose()
	}
	return nil
}
