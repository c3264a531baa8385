// Package sshexec implements the SSH Executor (C2): pooled SSH to a small
// fixed set of hosts, with local-subprocess fallback for the host the
// engine runs on, connect retries with backoff, and a Host Monitor hook.
package sshexec

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/homelab/warden/pkg/config"
)

// ConnectionObserver is notified of connection attempts so the Host Monitor
// (C6) can drive its availability state machine without the executor
// importing it directly.
type ConnectionObserver interface {
	RecordConnectionAttempt(host string, success bool, errMsg string)
}

// Result is the outcome of executing a command batch on a host.
type Result struct {
	Success   bool
	Outputs   []string
	ExitCodes []int
	Duration  time.Duration
	Error     string
}

// Executor runs commands against the closed host set, caching one SSH
// connection per host and falling back to os/exec for hosts configured with
// a local address.
type Executor struct {
	hosts    map[string]config.HostConfig
	observer ConnectionObserver

	mu    sync.Mutex
	conns map[string]*ssh.Client

	connectTimeout time.Duration
	maxRetries     int
}

// New builds an Executor over the closed host set.
func New(hosts map[string]config.HostConfig, connectTimeout time.Duration, observer ConnectionObserver) *Executor {
	return &Executor{
		hosts:          hosts,
		observer:       observer,
		conns:          make(map[string]*ssh.Client),
		connectTimeout: connectTimeout,
		maxRetries:     3,
	}
}

// SetObserver wires the Host Monitor in after construction, breaking the
// constructor cycle between the two (the monitor's Pinger is the executor
// itself). Safe to call once during startup before any Execute call runs.
func (e *Executor) SetObserver(observer ConnectionObserver) {
	e.observer = observer
}

// Close closes every cached connection. Called on engine shutdown.
func (e *Executor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for host, c := range e.conns {
		_ = c.Close()
		delete(e.conns, host)
	}
}

// Execute runs cmds sequentially on host, stopping at the first non-zero
// exit code. The returned arrays are partial if execution stopped early.
// SSH connect failure is distinguished from command failure: connect
// failure yields ExitCodes=[-1], Outputs=[], Error populated.
func (e *Executor) Execute(ctx context.Context, host string, cmds []string, timeout time.Duration) Result {
	start := time.Now()
	hc, ok := e.hosts[host]
	if !ok {
		return Result{Success: false, Error: fmt.Sprintf("unknown host %q", host), ExitCodes: []int{-1}, Duration: time.Since(start)}
	}

	if hc.IsLocal() {
		return e.executeLocal(ctx, cmds, timeout, start)
	}
	return e.executeRemote(ctx, hc, cmds, timeout, start)
}

func (e *Executor) executeRemote(ctx context.Context, hc config.HostConfig, cmds []string, timeout time.Duration, start time.Time) Result {
	client, err := e.getConnection(ctx, hc)
	if err != nil {
		return Result{Success: false, Error: err.Error(), ExitCodes: []int{-1}, Duration: time.Since(start)}
	}

	var outputs []string
	var exitCodes []int
	for _, cmd := range cmds {
		output, exitCode, err := runRemoteCommand(ctx, client, cmd, timeout)
		if err != nil && exitCode == -1 {
			// Session-level failure (not a command exit): treat the cached
			// connection as stale and rebuild on the next call.
			e.mu.Lock()
			if e.conns[hc.Name] == client {
				_ = client.Close()
				delete(e.conns, hc.Name)
			}
			e.mu.Unlock()
			return Result{Success: false, Outputs: outputs, ExitCodes: append(exitCodes, -1), Error: err.Error(), Duration: time.Since(start)}
		}
		outputs = append(outputs, output)
		exitCodes = append(exitCodes, exitCode)
		if exitCode != 0 {
			break
		}
	}
	return Result{Success: allZero(exitCodes) && len(exitCodes) == len(cmds), Outputs: outputs, ExitCodes: exitCodes, Duration: time.Since(start)}
}

// runRemoteCommand runs a single command over an existing session, honoring
// timeout. A command timeout or context cancellation also returns
// exitCode=-1 with a non-nil error, so executeRemote's session-failure branch
// (err != nil && exitCode == -1) handles it like a dead session: it stops the
// batch and drops the cached connection.
func runRemoteCommand(ctx context.Context, client *ssh.Client, cmd string, timeout time.Duration) (output string, exitCode int, err error) {
	session, err := client.NewSession()
	if err != nil {
		return "", -1, fmt.Errorf("ssh session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return "", -1, ctx.Err()
	case <-time.After(timeout):
		_ = session.Signal(ssh.SIGKILL)
		return combinedOutput(stdout.String(), stderr.String()), -1, fmt.Errorf("command timed out after %s", timeout)
	case runErr := <-done:
		code := 0
		if runErr != nil {
			if exitErr, ok := runErr.(*ssh.ExitError); ok {
				code = exitErr.ExitStatus()
			} else {
				// Genuine session/transport failure, not a nonzero exit.
				return "", -1, fmt.Errorf("ssh run: %w", runErr)
			}
		}
		return combinedOutput(stdout.String(), stderr.String()), code, nil
	}
}

func combinedOutput(stdout, stderr string) string {
	if stderr == "" {
		return stdout
	}
	if stdout == "" {
		return stderr
	}
	return stdout + "\n" + stderr
}

func (e *Executor) executeLocal(ctx context.Context, cmds []string, timeout time.Duration, start time.Time) Result {
	var outputs []string
	var exitCodes []int
	for _, cmd := range cmds {
		runCtx, cancel := context.WithTimeout(ctx, timeout)
		c := exec.CommandContext(runCtx, "/bin/sh", "-c", cmd)
		out, err := c.CombinedOutput()
		cancel()

		code := 0
		if err != nil {
			if runCtx.Err() != nil {
				outputs = append(outputs, string(out))
				exitCodes = append(exitCodes, -1)
				break
			}
			if exitErr, ok := err.(*exec.ExitError); ok {
				code = exitErr.ExitCode()
			} else {
				outputs = append(outputs, err.Error())
				exitCodes = append(exitCodes, -1)
				break
			}
		}
		outputs = append(outputs, string(out))
		exitCodes = append(exitCodes, code)
		if code != 0 {
			break
		}
	}
	return Result{Success: allZero(exitCodes) && len(exitCodes) == len(cmds), Outputs: outputs, ExitCodes: exitCodes, Duration: time.Since(start)}
}

func allZero(codes []int) bool {
	for _, c := range codes {
		if c != 0 {
			return false
		}
	}
	return true
}

// getConnection returns the cached connection for hc, rebuilding it with
// retry+backoff on demand. A closed connection is transparently rebuilt.
func (e *Executor) getConnection(ctx context.Context, hc config.HostConfig) (*ssh.Client, error) {
	e.mu.Lock()
	if c, ok := e.conns[hc.Name]; ok {
		e.mu.Unlock()
		// A lightweight liveness probe: opening a session fails fast on a
		// dead TCP connection without running a remote command.
		if s, err := c.NewSession(); err == nil {
			_ = s.Close()
			return c, nil
		}
		e.mu.Lock()
		delete(e.conns, hc.Name)
	}
	e.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < e.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(2) * time.Duration(1<<attempt) * time.Second
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
		client, err := dial(hc, e.connectTimeout)
		if err == nil {
			e.mu.Lock()
			e.conns[hc.Name] = client
			e.mu.Unlock()
			e.notify(hc.Name, true, "")
			return client, nil
		}
		lastErr = err
		slog.Warn("ssh connect failed, retrying", "host", hc.Name, "attempt", attempt+1, "error", err)
	}
	e.notify(hc.Name, false, lastErr.Error())
	return nil, fmt.Errorf("ssh connect to %s failed after %d attempts: %w", hc.Name, e.maxRetries, lastErr)
}

func (e *Executor) notify(host string, success bool, errMsg string) {
	if e.observer != nil {
		e.observer.RecordConnectionAttempt(host, success, errMsg)
	}
}

func dial(hc config.HostConfig, timeout time.Duration) (*ssh.Client, error) {
	key, err := os.ReadFile(hc.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	cfg := &ssh.ClientConfig{
		User:            hc.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // homelab environment, no known_hosts management
		Timeout:         timeout,
	}
	addr := hc.Address
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = addr + ":22"
	}
	return ssh.Dial("tcp", addr, cfg)
}
