// SPDX-License-Identifier: MPL-2.0

// Package ssh implements the SSH-substrate Adapter: command execution
// over a pooled session, sudo prefixing, SFTP file transfer, and
// direct-tcpip tunneling, layered over internal/sshpool's borrow/release
// protocol.
package ssh

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/xec-sh/xec/internal/adapter"
	"github.com/xec-sh/xec/internal/command"
	"github.com/xec-sh/xec/internal/process"
	"github.com/xec-sh/xec/internal/shellquote"
	"github.com/xec-sh/xec/internal/sshpool"
	"github.com/xec-sh/xec/internal/target"
	"github.com/xec-sh/xec/internal/tunnel"
	"github.com/xec-sh/xec/internal/xerr"
)

// DefaultCopyConcurrency is the default directory-transfer concurrency
// cap.
const DefaultCopyConcurrency = 4

// Adapter is the SSH substrate: every operation borrows a session from pool
// for the configured spec and releases it when done.
type Adapter struct {
	pool *sshpool.Pool
	spec target.SSHSpec

	// CopyConcurrency overrides DefaultCopyConcurrency when > 0.
	CopyConcurrency int
}

// New returns an Adapter bound to spec, borrowing sessions from pool.
func New(pool *sshpool.Pool, spec target.SSHSpec) *Adapter {
	return &Adapter{pool: pool, spec: spec}
}

// Name implements adapter.Adapter.
func (a *Adapter) Name() string { return "ssh" }

// Execute implements adapter.Adapter.
func (a *Adapter) Execute(ctx context.Context, opts command.Options) (*process.Handle, error) {
	runner := func(runCtx context.Context, stdin io.Reader) (*command.Result, error) {
		return a.run(runCtx, opts, stdin)
	}
	return process.New(ctx, a.Name(), opts, runner), nil
}

// Stream implements adapter.Adapter: stdout/stderr are exposed live via
// in-process pipes fed by a goroutine that drains the SSH channel.
func (a *Adapter) Stream(ctx context.Context, opts command.Options) (*adapter.StreamResult, error) {
	sess, err := a.pool.Borrow(ctx, a.spec)
	if err != nil {
		return nil, err
	}

	chanSess, remoteCmd, err := a.openChannel(sess, opts, opts.Stdin)
	if err != nil {
		a.pool.Release(sess)
		return nil, err
	}

	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	chanSess.Stdout = stdoutW
	chanSess.Stderr = stderrW

	started := time.Now()
	if err := chanSess.Start(remoteCmd); err != nil {
		chanSess.Close()
		a.pool.Release(sess)
		return nil, xerr.New(xerr.ChannelOpenFailed, a.Name(), err)
	}

	doneCh := make(chan error, 1)
	go func() {
		err := chanSess.Wait()
		stdoutW.Close()
		stderrW.Close()
		chanSess.Close()
		doneCh <- err
	}()

	wait := func(waitCtx context.Context) (*command.Result, error) {
		var waitErr error
		select {
		case waitErr = <-doneCh:
		case <-waitCtx.Done():
			_ = chanSess.Signal(ssh.SIGTERM)
			waitErr = <-doneCh
		}
		a.pool.Release(sess)

		finished := time.Now()
		result := &command.Result{StartedAt: started, FinishedAt: finished, Duration: finished.Sub(started), Adapter: a.Name()}
		return classifyRemoteExit(result, waitErr, a.Name())
	}

	return &adapter.StreamResult{Stdout: stdoutR, Stderr: stderrR, Wait: wait}, nil
}

func (a *Adapter) run(ctx context.Context, opts command.Options, stdin io.Reader) (*command.Result, error) {
	started := time.Now()

	sess, err := a.pool.Borrow(ctx, a.spec)
	if err != nil {
		return &command.Result{StartedAt: started, FinishedAt: time.Now(), Adapter: a.Name()}, err
	}
	defer a.pool.Release(sess)

	chanSess, remoteCmd, err := a.openChannel(sess, opts, stdin)
	if err != nil {
		return &command.Result{StartedAt: started, FinishedAt: time.Now(), Adapter: a.Name()}, err
	}
	defer chanSess.Close()

	var stdout, stderr bytes.Buffer
	chanSess.Stdout = &stdout
	chanSess.Stderr = &stderr

	doneCh := make(chan error, 1)
	go func() { doneCh <- chanSess.Run(remoteCmd) }()

	var waitErr error
	select {
	case waitErr = <-doneCh:
	case <-ctx.Done():
		_ = chanSess.Signal(ssh.SIGTERM)
		waitErr = <-doneCh
	}

	finished := time.Now()
	result := &command.Result{
		Stdout:     stdout.Bytes(),
		Stderr:     stderr.Bytes(),
		StartedAt:  started,
		FinishedAt: finished,
		Duration:   finished.Sub(started),
		Adapter:    a.Name(),
	}
	return classifyRemoteExit(result, waitErr, a.Name())
}

// openChannel opens a new SSH session channel and builds the remote
// command string: cwd via `cd`, env via SendEnv falling back to a
// prepended `VAR=value` form, and sudo prefixing.
func (a *Adapter) openChannel(sess *sshpool.Session, opts command.Options, stdin io.Reader) (*ssh.Session, string, error) {
	chanSess, err := sess.Client().NewSession()
	if err != nil {
		return nil, "", xerr.New(xerr.ChannelOpenFailed, "ssh", err)
	}
	if stdin != nil {
		chanSess.Stdin = stdin
	}

	envPrefix := ""
	for k, v := range opts.Env {
		if err := chanSess.Setenv(k, v); err != nil {
			// Server policy rejected SendEnv; fall back to a prepended
			// VAR=value form in the command string itself.
			q, _ := shellquote.Quote(shellquote.DialectPOSIX, v)
			envPrefix += fmt.Sprintf("%s=%s ", k, q)
		}
	}

	remoteCmd := commandString(opts)
	if opts.Cwd != "" {
		cwdQuoted, _ := shellquote.Quote(shellquote.DialectPOSIX, opts.Cwd.String())
		remoteCmd = fmt.Sprintf("cd %s && %s%s", cwdQuoted, envPrefix, remoteCmd)
	} else {
		remoteCmd = envPrefix + remoteCmd
	}

	if a.spec.Sudo != nil && a.spec.Sudo.Enabled {
		remoteCmd = sudoWrap(remoteCmd, a.spec.Sudo, chanSess)
	}

	return chanSess, remoteCmd, nil
}

// commandString renders opts into the single string a remote shell/exec
// request takes: the shell form verbatim, or argv joined with POSIX quoting.
func commandString(opts command.Options) string {
	if opts.Shell.Enabled {
		return opts.Program
	}
	parts := make([]string, 0, len(opts.Args)+1)
	q, _ := shellquote.Quote(shellquote.DialectPOSIX, opts.Program)
	parts = append(parts, q)
	for _, arg := range opts.Args {
		q, _ := shellquote.Quote(shellquote.DialectPOSIX, arg)
		parts = append(parts, q)
	}
	return joinSpace(parts)
}

func joinSpace(parts []string) string {
	s := ""
	for i, p := range parts {
		if i > 0 {
			s += " "
		}
		s += p
	}
	return s
}

// sudoWrap prefixes cmd with sudo -n, or sudo -S with the password written
// to the channel's stdin. The password is written directly to the
// channel and never logged; the caller's SudoSpec.Password is not retained
// by this function beyond the call.
func sudoWrap(cmd string, sudo *target.SudoSpec, chanSess *ssh.Session) string {
	if sudo.Password == "" {
		return "sudo -n -- " + cmd
	}
	// sudo -S reads the password from stdin; prime it by wrapping stdin
	// with the password line followed by the caller's actual stdin, if any.
	password := sudo.Password
	existingStdin := chanSess.Stdin
	combined := io.MultiReader(bytesReader(password+"\n"), nonNilReader(existingStdin))
	chanSess.Stdin = combined
	return "sudo -S -- " + cmd
}

func bytesReader(s string) io.Reader { return bytes.NewReader([]byte(s)) }

func nonNilReader(r io.Reader) io.Reader {
	if r == nil {
		return bytes.NewReader(nil)
	}
	return r
}

// classifyRemoteExit translates an ssh.Session.Run/Wait error into the
// engine's xerr taxonomy (RemoteExit is reported as CommandFailed/
// KilledBySignal to match the stable cross-adapter Kind set).
func classifyRemoteExit(result *command.Result, waitErr error, adapterName string) (*command.Result, error) {
	if waitErr == nil {
		result.HasExit = true
		result.ExitCode = 0
		return result, nil
	}

	if exitErr, ok := waitErr.(*ssh.ExitError); ok {
		if exitErr.Signal() != "" {
			result.HasExit = false
			result.Signal = exitErr.Signal()
			return result, xerr.New(xerr.KilledBySignal, adapterName, waitErr)
		}
		result.HasExit = true
		result.ExitCode = exitErr.ExitStatus()
		if result.ExitCode != 0 {
			return result, xerr.New(xerr.CommandFailed, adapterName, waitErr)
		}
		return result, nil
	}

	if _, ok := waitErr.(*ssh.ExitMissingError); ok {
		result.HasExit = false
		return result, xerr.New(xerr.KilledBySignal, adapterName, waitErr)
	}

	return result, xerr.New(xerr.ChannelOpenFailed, adapterName, waitErr)
}

// CopyIn implements adapter.Adapter via SFTP.
func (a *Adapter) CopyIn(ctx context.Context, localSrc, remoteDst string, progress adapter.ProgressFunc) error {
	return a.withSFTP(ctx, func(client *sftp.Client) error {
		info, err := os.Stat(localSrc)
		if err != nil {
			return xerr.New(xerr.SftpError, a.Name(), err)
		}
		if info.IsDir() {
			return a.copyDirIn(client, localSrc, remoteDst, progress)
		}
		return copyFileIn(client, localSrc, remoteDst, progress)
	})
}

// CopyOut implements adapter.Adapter via SFTP.
func (a *Adapter) CopyOut(ctx context.Context, remoteSrc, localDst string, progress adapter.ProgressFunc) error {
	return a.withSFTP(ctx, func(client *sftp.Client) error {
		info, err := client.Stat(remoteSrc)
		if err != nil {
			return xerr.New(xerr.SftpError, a.Name(), err)
		}
		if info.IsDir() {
			return a.copyDirOut(client, remoteSrc, localDst, progress)
		}
		return copyFileOut(client, remoteSrc, localDst, progress)
	})
}

func (a *Adapter) withSFTP(ctx context.Context, fn func(*sftp.Client) error) error {
	sess, err := a.pool.Borrow(ctx, a.spec)
	if err != nil {
		return err
	}
	defer a.pool.Release(sess)

	client, err := sftp.NewClient(sess.Client())
	if err != nil {
		return xerr.New(xerr.SftpError, a.Name(), err)
	}
	defer client.Close()

	return fn(client)
}

func copyFileIn(client *sftp.Client, localSrc, remoteDst string, progress adapter.ProgressFunc) error {
	in, err := os.Open(localSrc)
	if err != nil {
		return xerr.New(xerr.SftpError, "ssh", err)
	}
	defer in.Close()

	out, err := client.Create(remoteDst)
	if err != nil {
		return xerr.New(xerr.SftpError, "ssh", err)
	}
	defer out.Close()

	return copyWithProgress(out, in, progress)
}

func copyFileOut(client *sftp.Client, remoteSrc, localDst string, progress adapter.ProgressFunc) error {
	in, err := client.Open(remoteSrc)
	if err != nil {
		return xerr.New(xerr.SftpError, "ssh", err)
	}
	defer in.Close()

	out, err := os.Create(localDst)
	if err != nil {
		return xerr.New(xerr.SftpError, "ssh", err)
	}
	defer out.Close()

	return copyWithProgress(out, in, progress)
}

func copyWithProgress(dst io.Writer, src io.Reader, progress adapter.ProgressFunc) error {
	var written int64
	buf := make([]byte, 32*1024)
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return xerr.New(xerr.SftpError, "ssh", werr)
			}
			written += int64(n)
			if progress != nil {
				progress(written, -1)
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return xerr.New(xerr.SftpError, "ssh", readErr)
		}
	}
}

// copyDirIn walks localSrc and issues per-file SFTP puts, honoring the
// configured concurrency cap. Partial-failure policy: abort on the
// first error and report which files already transferred.
func (a *Adapter) copyDirIn(client *sftp.Client, localSrc, remoteDst string, progress adapter.ProgressFunc) error {
	concurrency := a.CopyConcurrency
	if concurrency <= 0 {
		concurrency = DefaultCopyConcurrency
	}

	var files []string
	if err := filepath.WalkDir(localSrc, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		files = append(files, path)
		return nil
	}); err != nil {
		return xerr.New(xerr.SftpError, "ssh", err)
	}

	if err := client.MkdirAll(remoteDst); err != nil {
		return xerr.New(xerr.SftpError, "ssh", err)
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var transferred []string
	var firstErr error

	for _, f := range files {
		mu.Lock()
		abort := firstErr != nil
		mu.Unlock()
		if abort {
			break
		}

		rel, _ := filepath.Rel(localSrc, f)
		remotePath := filepath.ToSlash(filepath.Join(remoteDst, rel))

		sem <- struct{}{}
		wg.Add(1)
		go func(local, remote string) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := client.MkdirAll(filepath.ToSlash(filepath.Dir(remote))); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			if err := copyFileIn(client, local, remote, nil); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			mu.Lock()
			transferred = append(transferred, remote)
			mu.Unlock()
		}(f, remotePath)
	}
	wg.Wait()

	if firstErr != nil {
		return fmt.Errorf("ssh: directory transfer aborted after %d file(s) (transferred %q): %w", len(transferred), transferred, firstErr)
	}
	return nil
}

func (a *Adapter) copyDirOut(client *sftp.Client, remoteSrc, localDst string, progress adapter.ProgressFunc) error {
	walker := client.Walk(remoteSrc)
	var files []string
	for walker.Step() {
		if walker.Err() != nil {
			return xerr.New(xerr.SftpError, "ssh", walker.Err())
		}
		if !walker.Stat().IsDir() {
			files = append(files, walker.Path())
		}
	}

	if err := os.MkdirAll(localDst, 0o755); err != nil {
		return xerr.New(xerr.SftpError, "ssh", err)
	}

	var transferred []string
	for _, remote := range files {
		rel, err := filepathRelSlash(remoteSrc, remote)
		if err != nil {
			return err
		}
		local := filepath.Join(localDst, rel)
		if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
			return fmt.Errorf("ssh: directory transfer aborted after %d file(s): %w", len(transferred), err)
		}
		if err := copyFileOut(client, remote, local, nil); err != nil {
			return fmt.Errorf("ssh: directory transfer aborted after %d file(s): %w", len(transferred), err)
		}
		transferred = append(transferred, local)
	}
	return nil
}

func filepathRelSlash(base, path string) (string, error) {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return "", xerr.New(xerr.SftpError, "ssh", err)
	}
	return filepath.FromSlash(rel), nil
}

// OpenTunnel opens a port-forward: a local TCP listener bridging
// every accepted connection to remoteEndpoint via a direct-tcpip channel
// opened over a pool-borrowed session. localEndpoint's port may be "0" to
// request dynamic allocation; the bound address is read back from the
// returned tunnel.Tunnel's Addr.
func (a *Adapter) OpenTunnel(ctx context.Context, localEndpoint, remoteEndpoint string) (*tunnel.Tunnel, error) {
	sess, err := a.pool.Borrow(ctx, a.spec)
	if err != nil {
		return nil, err
	}

	dial := func(dialCtx context.Context) (net.Conn, error) {
		return sess.Client().Dial("tcp", remoteEndpoint)
	}

	t, err := tunnel.Open(localEndpoint, dial)
	if err != nil {
		a.pool.Release(sess)
		return nil, err
	}
	t.OnClose = func() { a.pool.Release(sess) }
	return t, nil
}

// Dispose implements adapter.Adapter. The SSH adapter does not own the
// pool (the engine does), so dispose is a no-op success; the pool itself
// is disposed by its owner.
func (a *Adapter) Dispose(ctx context.Context) (*adapter.DisposeReport, error) {
	return &adapter.DisposeReport{Complete: true}, nil
}

var _ adapter.Adapter = (*Adapter)(nil)
