package sshexec

import (
	"context"
	"fmt"
	"time"
)

// LogKind is the source gather_logs/status pulls from.
type LogKind string

// Log/status source kinds.
const (
	KindDocker   LogKind = "docker"
	KindSystemd  LogKind = "systemd"
	KindSystem   LogKind = "system"
)

// GatherLogs is a convenience wrapper around Execute for pulling recent logs
// from a container, systemd unit, or the system journal.
func (e *Executor) GatherLogs(ctx context.Context, host string, kind LogKind, name string, lines int, timeout time.Duration) Result {
	if lines <= 0 {
		lines = 100
	}
	var cmd string
	switch kind {
	case KindDocker:
		cmd = fmt.Sprintf("docker logs --tail %d %s", lines, name)
	case KindSystemd:
		cmd = fmt.Sprintf("journalctl -u %s -n %d --no-pager", name, lines)
	default:
		cmd = fmt.Sprintf("journalctl -n %d --no-pager", lines)
	}
	return e.Execute(ctx, host, []string{cmd}, timeout)
}

// Status is a convenience wrapper around Execute for checking whether a
// container or systemd unit is up.
func (e *Executor) Status(ctx context.Context, host, name string, kind LogKind, timeout time.Duration) Result {
	var cmd string
	switch kind {
	case KindDocker:
		cmd = fmt.Sprintf("docker ps -a --filter name=%s --format '{{.Names}}: {{.Status}}'", name)
	default:
		cmd = fmt.Sprintf("systemctl status %s --no-pager", name)
	}
	return e.Execute(ctx, host, []string{cmd}, timeout)
}

// Ping is a minimal liveness probe used by the Host Monitor's recovery loop:
// it runs a trivial command and reports only whether the host was reachable.
// A successful ping also feeds RecordConnectionAttempt via the normal
// Execute path, so a recovered host's next real command confirms ONLINE.
func (e *Executor) Ping(ctx context.Context, host string) error {
	res := e.Execute(ctx, host, []string{"true"}, 10*time.Second)
	if !res.Success {
		if res.Error != "" {
			return fmt.Errorf("ping %s: %s", host, res.Error)
		}
		return fmt.Errorf("ping %s: command failed", host)
	}
	return nil
}
