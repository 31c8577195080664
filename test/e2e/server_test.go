//go:build e2e

// Package e2e_test drives the orchestrator through its real
// collaborators end to end: real Batch Scheduler, real Connection
// Manager, real SSH transport, talking to an in-process fake Cisco CLI
// over loopback instead of a lab device. Build-tag gated the same way
// the teacher's test/e2e requires a running lab — these require
// nothing but the local machine, so they run under `go test -tags e2e
// ./test/e2e/...`.
package e2e_test

import (
	"bufio"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"net"
	"strings"
	"testing"

	"golang.org/x/crypto/ssh"
)

// fakeDevice is an in-process SSH server that answers a fixed set of
// commands the way a Cisco IOS CLI would over an interactive PTY shell:
// the command's canned output followed by a reappearing prompt line.
// login accepts any username/password, mirroring a test lab's relaxed
// credentials rather than real device auth.
type fakeDevice struct {
	addr      string
	responses map[string]string
	prompt    string
}

func newFakeDevice(t *testing.T, name string, responses map[string]string) *fakeDevice {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generating host key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("building signer: %v", err)
	}

	config := &ssh.ServerConfig{
		PasswordCallback: func(ssh.ConnMetadata, []byte) (*ssh.Permissions, error) {
			return nil, nil
		},
	}
	config.AddHostKey(signer)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listening: %v", err)
	}
	t.Cleanup(func() { lis.Close() })

	d := &fakeDevice{
		addr:      lis.Addr().String(),
		responses: responses,
		prompt:    name + "#",
	}

	go d.serve(lis, config)
	return d
}

func (d *fakeDevice) serve(lis net.Listener, config *ssh.ServerConfig) {
	for {
		nc, err := lis.Accept()
		if err != nil {
			return
		}
		go d.handleConn(nc, config)
	}
}

func (d *fakeDevice) handleConn(nc net.Conn, config *ssh.ServerConfig) {
	sc, chans, reqs, err := ssh.NewServerConn(nc, config)
	if err != nil {
		return
	}
	defer sc.Close()
	go ssh.DiscardRequests(reqs)

	for newChan := range chans {
		if newChan.ChannelType() != "session" {
			newChan.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		channel, requests, err := newChan.Accept()
		if err != nil {
			continue
		}
		go d.serveRequests(requests)
		go d.serveShell(channel)
	}
}

func (d *fakeDevice) serveRequests(requests <-chan *ssh.Request) {
	for req := range requests {
		switch req.Type {
		case "pty-req", "shell", "env":
			req.Reply(true, nil)
		default:
			req.Reply(false, nil)
		}
	}
}

func (d *fakeDevice) serveShell(channel ssh.Channel) {
	defer channel.Close()

	fmt.Fprintf(channel, "%s\n", d.prompt)

	scanner := bufio.NewScanner(channel)
	for scanner.Scan() {
		command := strings.TrimSpace(scanner.Text())
		output, ok := d.responses[command]
		if !ok {
			output = "% Invalid input detected"
		}
		fmt.Fprintf(channel, "%s\n%s\n", output, d.prompt)
	}
}
