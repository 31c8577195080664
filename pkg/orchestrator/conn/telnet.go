package conn

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/newtron-network/newtron/pkg/orchestrator/errs"
	"github.com/newtron-network/newtron/pkg/orchestrator/platform"
)

// Telnet IAC (Interpret As Command) bytes, RFC 854. No telnet client
// exists anywhere in the retrieved pack, so negotiation is hand-rolled
// here: the orchestrator always refuses whatever the remote end offers
// (DONT/WONT for everything), which is enough to get a usable character
// stream out of a Cisco telnet daemon.
const (
	iac  = 255
	will = 251
	wont = 252
	do   = 253
	dont = 254
)

type telnetSession struct {
	conn   net.Conn
	driver platform.Driver
	chunks chan []byte
	errs   chan error

	mu     sync.Mutex
	closed bool
}

// dialTelnet opens a TCP connection, optionally through an already
// established jumphost tunnel (raw byte forwarding — telnet has no
// transport-layer multiplexing of its own, unlike SSH channels).
func dialTelnet(ctx context.Context, addr string, timeout time.Duration, viaDial func(ctx context.Context, network, addr string) (net.Conn, error)) (net.Conn, error) {
	if viaDial != nil {
		return viaDial(ctx, "tcp", addr)
	}
	d := net.Dialer{Timeout: timeout}
	return d.DialContext(ctx, "tcp", addr)
}

func newTelnetSession(nc net.Conn, driver platform.Driver) *telnetSession {
	s := &telnetSession{
		conn:   nc,
		driver: driver,
		chunks: make(chan []byte, 64),
		errs:   make(chan error, 1),
	}
	go s.pump()
	return s
}

// pump reads raw bytes off the wire, stripping and answering IAC
// negotiation sequences in place, and forwards the remaining printable
// stream to chunks.
func (s *telnetSession) pump() {
	raw := make([]byte, 4096)
	for {
		n, err := s.conn.Read(raw)
		if n > 0 {
			clean, err := s.negotiate(raw[:n])
			if err == nil && len(clean) > 0 {
				chunk := make([]byte, len(clean))
				copy(chunk, clean)
				s.chunks <- chunk
			}
		}
		if err != nil {
			s.errs <- err
			return
		}
	}
}

// negotiate strips IAC sequences from data, replying DONT/WONT to any
// WILL/DO offers, and returns the remaining non-command bytes.
func (s *telnetSession) negotiate(data []byte) ([]byte, error) {
	var clean bytes.Buffer
	var reply bytes.Buffer

	for i := 0; i < len(data); i++ {
		if data[i] != iac {
			clean.WriteByte(data[i])
			continue
		}
		if i+2 >= len(data) {
			break // truncated sequence, drop the rest of this read
		}
		cmd, opt := data[i+1], data[i+2]
		i += 2
		switch cmd {
		case do:
			reply.Write([]byte{iac, wont, opt})
		case will:
			reply.Write([]byte{iac, dont, opt})
		}
		// dont/wont from the remote end require no reply.
	}

	if reply.Len() > 0 {
		if _, err := s.conn.Write(reply.Bytes()); err != nil {
			return clean.Bytes(), err
		}
	}
	return clean.Bytes(), nil
}

func (s *telnetSession) Driver() platform.Driver { return s.driver }

func (s *telnetSession) setDriver(d platform.Driver) { s.driver = d }

// login drives the username/password prompts a Cisco telnet daemon
// sends before dropping into the operational prompt.
func (s *telnetSession) login(ctx context.Context, username, password string, timeout time.Duration) error {
	if _, err := s.readUntilPattern(ctx, timeout, usernamePrompt); err != nil {
		return fmt.Errorf("waiting for username prompt: %w", err)
	}
	if err := s.write(username + "\n"); err != nil {
		return err
	}
	if _, err := s.readUntilPattern(ctx, timeout, passwordPrompt); err != nil {
		return fmt.Errorf("waiting for password prompt: %w", err)
	}
	if err := s.write(password + "\n"); err != nil {
		return err
	}
	if s.driver.Prompt != nil {
		if _, err := s.readUntilPrompt(ctx, timeout); err != nil {
			return fmt.Errorf("waiting for initial prompt: %w", err)
		}
	}
	return nil
}

func (s *telnetSession) write(text string) error {
	_, err := s.conn.Write([]byte(text))
	return err
}

func (s *telnetSession) Send(ctx context.Context, command string, readTimeout time.Duration) (string, error) {
	if err := s.write(command + "\n"); err != nil {
		return "", errs.NewTransport("", "", "writing command: "+err.Error())
	}
	return s.readUntilPrompt(ctx, readTimeout)
}

func (s *telnetSession) readUntilPrompt(ctx context.Context, timeout time.Duration) (string, error) {
	if s.driver.Prompt == nil {
		return s.readUntilPattern(ctx, timeout, nil)
	}
	return s.readUntilMatch(ctx, timeout, func(tail []byte) bool {
		return s.driver.Prompt.Match(tail)
	})
}

func (s *telnetSession) readUntilPattern(ctx context.Context, timeout time.Duration, match func([]byte) bool) (string, error) {
	return s.readUntilMatch(ctx, timeout, match)
}

func (s *telnetSession) readUntilMatch(ctx context.Context, timeout time.Duration, match func([]byte) bool) (string, error) {
	var buf bytes.Buffer
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case chunk := <-s.chunks:
			buf.Write(chunk)
			if match == nil || match(trailingWindow(buf.Bytes())) {
				return buf.String(), nil
			}
		case err := <-s.errs:
			return buf.String(), errs.NewTransport("", "", "reading output: "+err.Error())
		case <-deadline.C:
			return buf.String(), errs.NewTransport("", "", "read timeout after "+timeout.String())
		case <-ctx.Done():
			return buf.String(), errs.NewTransport("", "", "cancelled: "+ctx.Err().Error())
		}
	}
}

func usernamePrompt(tail []byte) bool {
	return bytes.Contains(bytes.ToLower(tail), []byte("username:")) ||
		bytes.Contains(bytes.ToLower(tail), []byte("login:"))
}

func passwordPrompt(tail []byte) bool {
	return bytes.Contains(bytes.ToLower(tail), []byte("password:"))
}

func (s *telnetSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}
