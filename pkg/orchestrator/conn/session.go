// Package conn implements the Connection Manager (spec.md §4.2): per-device
// SSH/Telnet session lifecycle, optional jumphost tunnelling, and
// one-shot platform auto-detection. Generalizes the teacher's
// pkg/device/tunnel.go SSHTunnel (a Redis port-forward) into a
// command-session opener, and its bridge-dial idiom into jumphost
// tunnelling.
package conn

import (
	"context"
	"time"

	"github.com/newtron-network/newtron/pkg/orchestrator/platform"
)

// Session is a live command channel to one device. Implementations
// (sshSession, telnetSession) share this contract so the Batch Scheduler
// and Command Executor never need to know the transport.
type Session interface {
	// Send runs command and returns its raw output, blocking until the
	// device's prompt reappears or readTimeout elapses.
	Send(ctx context.Context, command string, readTimeout time.Duration) (string, error)

	// Close tears down the underlying transport. Idempotent.
	Close() error

	// Driver returns the platform driver selected for this session
	// (fixed for its lifetime, even if platform was "auto").
	Driver() platform.Driver
}

// DefaultConnectTimeout and DefaultReadTimeout match spec.md §4.2.
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultReadTimeout    = 60 * time.Second
)
