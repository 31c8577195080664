package conn

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/newtron-network/newtron/pkg/orchestrator/errs"
	"github.com/newtron-network/newtron/pkg/orchestrator/platform"
)

// sshSession is a single persistent interactive shell over SSH — Cisco
// CLIs are prompt-driven, so command execution reuses one shell rather
// than opening a fresh exec session per command (which would lose the
// enable/config-mode context a multi-command run may depend on).
type sshSession struct {
	client *ssh.Client
	sess   *ssh.Session
	stdin  io.WriteCloser
	chunks chan []byte
	errs   chan error
	driver platform.Driver

	mu     sync.Mutex
	closed bool
}

// dialSSH opens a TCP connection (optionally through an already-dialed
// jumphost client) and completes the SSH handshake.
func dialSSH(ctx context.Context, addr, user, password string, timeout time.Duration, via *ssh.Client) (*ssh.Client, error) {
	config := &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.Password(password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}

	if via == nil {
		return ssh.Dial("tcp", addr, config)
	}

	raw, err := via.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("jumphost dial-through to %s: %w", addr, err)
	}
	clientConn, chans, reqs, err := ssh.NewClientConn(raw, addr, config)
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("SSH handshake via jumphost to %s: %w", addr, err)
	}
	return ssh.NewClient(clientConn, chans, reqs), nil
}

// newSSHSession opens an interactive shell with a PTY on an
// already-handshaken client and starts the read pump. driver may be the
// zero value if the caller still needs to auto-detect the platform
// (Manager.dial does so afterwards through detectAndSet).
func newSSHSession(client *ssh.Client, driver platform.Driver) (*sshSession, error) {
	sess, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("SSH session: %w", err)
	}

	if err := sess.RequestPty("vt100", 200, 512, ssh.TerminalModes{}); err != nil {
		sess.Close()
		client.Close()
		return nil, fmt.Errorf("SSH pty request: %w", err)
	}

	stdin, err := sess.StdinPipe()
	if err != nil {
		sess.Close()
		client.Close()
		return nil, fmt.Errorf("SSH stdin pipe: %w", err)
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		client.Close()
		return nil, fmt.Errorf("SSH stdout pipe: %w", err)
	}

	if err := sess.Shell(); err != nil {
		sess.Close()
		client.Close()
		return nil, fmt.Errorf("SSH shell: %w", err)
	}

	s := &sshSession{
		client: client,
		sess:   sess,
		stdin:  stdin,
		chunks: make(chan []byte, 64),
		errs:   make(chan error, 1),
		driver: driver,
	}
	go s.pump(stdout)
	return s, nil
}

func (s *sshSession) pump(r io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.chunks <- chunk
		}
		if err != nil {
			s.errs <- err
			return
		}
	}
}

// setDriver fixes the session's driver after auto-detection completes.
func (s *sshSession) setDriver(d platform.Driver) { s.driver = d }

func (s *sshSession) Driver() platform.Driver { return s.driver }

// Send writes command to the shell and reads output until the driver's
// prompt reappears or readTimeout elapses.
func (s *sshSession) Send(ctx context.Context, command string, readTimeout time.Duration) (string, error) {
	if _, err := fmt.Fprintf(s.stdin, "%s\n", command); err != nil {
		return "", errs.NewTransport("", "", "writing command: "+err.Error())
	}
	return s.readUntilPrompt(ctx, readTimeout)
}

// readUntilPrompt accumulates chunks from the read pump until the
// session's prompt pattern matches the tail of the buffer, the context
// is cancelled, or readTimeout elapses.
func (s *sshSession) readUntilPrompt(ctx context.Context, readTimeout time.Duration) (string, error) {
	var buf bytes.Buffer
	deadline := time.NewTimer(readTimeout)
	defer deadline.Stop()

	for {
		select {
		case chunk := <-s.chunks:
			buf.Write(chunk)
			if s.driver.Prompt == nil || s.driver.Prompt.Match(trailingWindow(buf.Bytes())) {
				return buf.String(), nil
			}
		case err := <-s.errs:
			return buf.String(), errs.NewTransport("", "", "reading output: "+err.Error())
		case <-deadline.C:
			return buf.String(), errs.NewTransport("", "", "read timeout after "+readTimeout.String())
		case <-ctx.Done():
			return buf.String(), errs.NewTransport("", "", "cancelled: "+ctx.Err().Error())
		}
	}
}

// trailingWindow limits prompt matching to the last 256 bytes so a long
// scrollback doesn't force a full-buffer regex scan on every chunk.
func trailingWindow(b []byte) []byte {
	const window = 256
	if len(b) <= window {
		return b
	}
	return b[len(b)-window:]
}

func (s *sshSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.sess.Close()
	return s.client.Close()
}
