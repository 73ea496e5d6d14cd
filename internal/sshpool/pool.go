// SPDX-License-Identifier: MPL-2.0

// Package sshpool implements the SSH session pool: reusable authenticated
// sessions keyed by destination, bounded per-destination and globally,
// with idle eviction, health-checked reuse, and a FIFO waiter queue.
package sshpool

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/xec-sh/xec/internal/clock"
	"github.com/xec-sh/xec/internal/target"
	"github.com/xec-sh/xec/internal/xerr"
	"github.com/xec-sh/xec/internal/xlog"
)

// Options configures pool-wide bounds and timers; zero values fall back to
// the built-in defaults.
type Options struct {
	GlobalMax          int
	PerDestinationMax  int
	AcquireTimeout     time.Duration
	IdleTimeout        time.Duration
	IdleSweepInterval  time.Duration
	HealthProbeTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.GlobalMax <= 0 {
		o.GlobalMax = 64
	}
	if o.PerDestinationMax <= 0 {
		o.PerDestinationMax = 8
	}
	if o.AcquireTimeout <= 0 {
		o.AcquireTimeout = 30 * time.Second
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 5 * time.Minute
	}
	if o.IdleSweepInterval <= 0 {
		o.IdleSweepInterval = 10 * time.Second
	}
	if o.HealthProbeTimeout <= 0 {
		o.HealthProbeTimeout = time.Second
	}
	return o
}

// slot holds every session the pool currently tracks for one destination
// key: idle sessions available to borrow, and a count of borrowed ones.
type slot struct {
	idle     *list.List // *Session, MRU at back
	borrowed int
	waiters  *list.List // chan *borrowResult, FIFO
}

type borrowResult struct {
	sess *Session
	err  error
}

// Pool is the engine's exclusive owner of every SSH session.
type Pool struct {
	opts   Options
	logger *log.Logger
	clock  clock.Clock

	mu       sync.Mutex
	slots    map[string]*slot
	total    int
	closed   bool
	stopSwep chan struct{}
}

// New constructs a pool and starts its background idle-eviction sweep.
// logger may be nil, in which case pool events are discarded; the CLI entry
// point passes the process-wide logger so Debug-level borrow/release/evict
// events surface under -v/--verbose.
func New(opts Options, logger *log.Logger) *Pool {
	if logger == nil {
		logger = xlog.FromContext(context.Background())
	}
	p := &Pool{
		opts:     opts.withDefaults(),
		logger:   logger,
		clock:    clock.Real{},
		slots:    make(map[string]*slot),
		stopSwep: make(chan struct{}),
	}
	go p.sweepLoop()
	return p
}

func (p *Pool) slotFor(key string) *slot {
	s, ok := p.slots[key]
	if !ok {
		s = &slot{idle: list.New(), waiters: list.New()}
		p.slots[key] = s
	}
	return s
}

// Borrow hands out a session for spec's destination: reuse a healthy idle
// one, dial a new one when bounds allow, otherwise wait FIFO.
func (p *Pool) Borrow(ctx context.Context, spec target.SSHSpec) (*Session, error) {
	key := destKey(spec)

borrowLoop:
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, xerr.Newf(xerr.ConnectFailed, "ssh", "pool closed")
		}
		s := p.slotFor(key)

		// Try an idle session, probing health before handing it out.
		for e := s.idle.Back(); e != nil; e = e.Prev() {
			sess := e.Value.(*Session)
			s.idle.Remove(e)
			p.mu.Unlock()

			if sess.probe(p.opts.HealthProbeTimeout) {
				sess.state.Store(int32(stateBorrowed))
				p.mu.Lock()
				s.borrowed++
				p.mu.Unlock()
				p.logger.Debug("ssh session reused", "dest", key)
				return sess, nil
			}

			// Unhealthy: drop it and account for the freed slot, then restart
			// this iteration of the outer loop under a fresh lock so the
			// scan/establish decision is re-evaluated from scratch.
			p.logger.Debug("ssh session failed health probe, evicting", "dest", key)
			_ = sess.close()
			p.mu.Lock()
			p.total--
			p.mu.Unlock()
			continue borrowLoop
		}

		// Establish a new session if bounds allow.
		if p.total < p.opts.GlobalMax && s.borrowed+s.idle.Len() < p.opts.PerDestinationMax {
			p.total++
			s.borrowed++
			p.mu.Unlock()

			p.logger.Debug("dialing new ssh session", "dest", key)
			sess, err := dial(ctx, spec)
			if err != nil {
				p.mu.Lock()
				p.total--
				s.borrowed--
				p.mu.Unlock()
				p.logger.Debug("ssh dial failed", "dest", key, "err", err)
				return nil, err
			}
			return sess, nil
		}

		// Wait on the FIFO queue.
		p.logger.Debug("ssh pool bounds reached, waiting", "dest", key)
		waitCh := make(chan borrowResult, 1)
		elem := s.waiters.PushBack(waitCh)
		p.mu.Unlock()

		timeout := p.opts.AcquireTimeout
		select {
		case r := <-waitCh:
			if r.err != nil {
				return nil, r.err
			}
			return r.sess, nil
		case <-time.After(timeout):
			p.mu.Lock()
			s.waiters.Remove(elem)
			p.mu.Unlock()
			return nil, xerr.Newf(xerr.PoolAcquisitionTimeout, "ssh", "timed out acquiring a session for %s", key)
		case <-ctx.Done():
			p.mu.Lock()
			s.waiters.Remove(elem)
			p.mu.Unlock()
			return nil, ctx.Err()
		}
	}
}

// Release returns a session to the pool: idle-MRU reinsertion, and waking
// exactly one waiter.
func (p *Pool) Release(sess *Session) {
	sess.touch()

	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.slots[sess.key]
	if !ok {
		_ = sess.close()
		p.total--
		return
	}
	s.borrowed--

	if sess.state.Load() == int32(stateUnhealthy) {
		_ = sess.close()
		p.total--
		p.wakeWaiter(s, sess.spec)
		return
	}

	if front := s.waiters.Front(); front != nil {
		s.waiters.Remove(front)
		sess.state.Store(int32(stateBorrowed))
		s.borrowed++
		front.Value.(chan borrowResult) <- borrowResult{sess: sess}
		return
	}

	sess.state.Store(int32(stateIdle))
	s.idle.PushBack(sess)
	p.logger.Debug("ssh session released to pool", "dest", sess.key)
}

// wakeWaiter is called after a session is dropped (unhealthy on release) so
// a waiting borrower gets a freshly dialed replacement instead of starving.
func (p *Pool) wakeWaiter(s *slot, spec target.SSHSpec) {
	front := s.waiters.Front()
	if front == nil {
		return
	}
	s.waiters.Remove(front)
	waitCh := front.Value.(chan borrowResult)

	if p.total >= p.opts.GlobalMax {
		waitCh <- borrowResult{err: xerr.Newf(xerr.PoolAcquisitionTimeout, "ssh", "global bound reached")}
		return
	}
	p.total++
	s.borrowed++

	go func() {
		sess, err := dial(context.Background(), spec)
		if err != nil {
			p.mu.Lock()
			p.total--
			s.borrowed--
			p.mu.Unlock()
			waitCh <- borrowResult{err: err}
			return
		}
		waitCh <- borrowResult{sess: sess}
	}()
}

func (p *Pool) sweepLoop() {
	ticker := time.NewTicker(p.opts.IdleSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopSwep:
			return
		case <-ticker.C:
			p.sweepOnce()
		}
	}
}

func (p *Pool) sweepOnce() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, s := range p.slots {
		var next *list.Element
		for e := s.idle.Front(); e != nil; e = next {
			next = e.Next()
			sess := e.Value.(*Session)
			idleFor := p.clock.Since(time.Unix(0, sess.lastUsedAt.Load()))
			if idleFor > p.opts.IdleTimeout || sess.state.Load() == int32(stateUnhealthy) {
				p.logger.Debug("evicting idle ssh session", "dest", sess.key, "idleFor", idleFor)
				s.idle.Remove(e)
				_ = sess.close()
				p.total--
			}
		}
	}
}

// Close tears down every idle session and stops the eviction sweep.
// Borrowed sessions are closed as they are released rather than forcibly
// reclaimed.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	for _, s := range p.slots {
		for e := s.idle.Front(); e != nil; e = e.Next() {
			_ = e.Value.(*Session).close()
			p.total--
		}
		s.idle.Init()
	}
	p.mu.Unlock()

	close(p.stopSwep)
	return nil
}
