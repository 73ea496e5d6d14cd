// SPDX-License-Identifier: MPL-2.0

// Package engine is the CLI's single process-wide composition root: it
// owns the shared SSH pool and builds the right Adapter for a resolved
// target.Target, so every built-in command (on, in, copy, forward, logs,
// watch, run) shares one pool instead of each dialing its own sessions.
// Process-wide state is limited to lazy pool/client initialization, torn
// down in reverse construction order on Close.
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/go-multierror"

	"github.com/xec-sh/xec/internal/adapter"
	dockeradapter "github.com/xec-sh/xec/internal/adapter/docker"
	k8sadapter "github.com/xec-sh/xec/internal/adapter/k8s"
	localadapter "github.com/xec-sh/xec/internal/adapter/local"
	remotedockeradapter "github.com/xec-sh/xec/internal/adapter/remotedocker"
	sshadapter "github.com/xec-sh/xec/internal/adapter/ssh"
	"github.com/xec-sh/xec/internal/command"
	"github.com/xec-sh/xec/internal/config"
	"github.com/xec-sh/xec/internal/sshpool"
	"github.com/xec-sh/xec/internal/target"
	"github.com/xec-sh/xec/internal/xlog"
	"github.com/xec-sh/xec/pkg/types"
)

// Engine is the CLI's shared runtime: one SSH pool, a local adapter, and
// the config tree every command resolves targets against. It is created
// once in cmd/xec's PersistentPreRun and disposed once in the root
// command's deferred cleanup.
type Engine struct {
	Config *config.Config
	Logger *log.Logger

	pool *sshpool.Pool

	mu       sync.Mutex
	disposed []adapter.Adapter // construction order, for reverse-order Dispose
}

// New constructs an Engine bound to cfg, with an SSH pool sized from
// poolOpts (zero value uses the pool defaults).
func New(cfg *config.Config, logger *log.Logger, poolOpts sshpool.Options) *Engine {
	return &Engine{
		Config: cfg,
		Logger: logger,
		pool:   sshpool.New(poolOpts, logger),
	}
}

// Pool returns the shared SSH connection pool, for components (port-forward
// manager, `on` fan-out) that need to borrow sessions directly instead of
// through an Adapter.
func (e *Engine) Pool() *sshpool.Pool { return e.pool }

// AdapterFor builds (and remembers, for Dispose) the Adapter bound to tgt.
// It satisfies internal/task.AdapterFactory.
func (e *Engine) AdapterFor(ctx context.Context, tgt target.Target) (adapter.Adapter, error) {
	var a adapter.Adapter
	var err error

	switch tgt.Kind {
	case target.Local:
		a = localadapter.New()
	case target.SSH:
		a = sshadapter.New(e.pool, tgt.SSH)
	case target.Docker:
		a, err = dockeradapter.New(tgt.Docker)
	case target.K8s:
		a = k8sadapter.New(tgt.K8s)
	case target.RemoteDocker:
		a = remotedockeradapter.New(e.pool, tgt.RemoteDocker.SSH, tgt.RemoteDocker.Docker)
	default:
		return nil, fmt.Errorf("engine: unknown target kind %v", tgt.Kind)
	}
	if err != nil {
		return nil, err
	}

	xlog.FromContext(ctx).Debug("adapter resolved", "target", tgt.String(), "adapter", a.Name())

	e.mu.Lock()
	e.disposed = append(e.disposed, a)
	e.mu.Unlock()
	return a, nil
}

// ApplyDefaults layers the configuration's `defaults` section onto opts:
// command-supplied fields (builder calls, CLI flags) win; only unset fields
// take the configured default. ThrowOnNonZero is the exception: a configured
// throwOnNonZeroExit always replaces the command's value.
func ApplyDefaults(d config.Defaults, opts command.Options) command.Options {
	out := opts
	if out.Cwd == "" && d.Cwd != "" {
		out.Cwd = types.FilesystemPath(d.Cwd)
	}
	if out.Timeout == 0 && d.Timeout != 0 {
		out.Timeout = d.Timeout
	}
	if !out.Shell.Enabled && out.Shell.Path == "" && d.Shell != "" {
		out.Shell = command.ShellMode{Enabled: true, Path: d.Shell}
	}
	if out.Encoding == "" {
		out.Encoding = d.Encoding
	}
	if d.ThrowOnNonZeroExit != nil {
		out.ThrowOnNonZero = *d.ThrowOnNonZeroExit
	}
	if len(d.Env) > 0 {
		merged := make(map[string]string, len(d.Env)+len(out.Env))
		for k, v := range d.Env {
			merged[k] = v
		}
		for k, v := range out.Env {
			merged[k] = v
		}
		out.Env = merged
	}
	return out
}

// Close tears down every adapter this Engine built, in construction order
// reversed, then
// closes the shared SSH pool last since adapters may still be borrowing
// from it during their own Dispose. Partial failures are aggregated, never
// silently dropped.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	adapters := e.disposed
	e.disposed = nil
	e.mu.Unlock()

	var errs *multierror.Error
	for i := len(adapters) - 1; i >= 0; i-- {
		report, err := adapters[i].Dispose(ctx)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		if report != nil && !report.Complete {
			errs = multierror.Append(errs, fmt.Errorf("engine: %s left resources live: %v", adapters[i].Name(), report.RemainingLive))
		}
	}

	if err := e.pool.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	return errs.ErrorOrNil()
}
