// Package jumphost manages the process-wide jumphost (bastion) singleton
// (spec.md §3, §4.2): an optional SSH host that every device session must
// traverse when enabled. Mutation is gated by a live-probe precondition,
// following the teacher's settings.Load/Save pattern but with the RWMutex
// + precondition-function shape spec.md §9 calls for in place of a
// hot-reload setter.
package jumphost

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/newtron-network/newtron/pkg/orchestrator/errs"
	"github.com/newtron-network/newtron/pkg/orchestrator/model"
	"github.com/newtron-network/newtron/pkg/util"
)

// Store guards the jumphost configuration singleton.
type Store struct {
	mu   sync.RWMutex
	path string
	cfg  model.JumphostConfig
}

// Load reads the jumphost config file at path (if present), then applies
// environment overrides (spec.md §6: JUMPHOST_ENABLED, JUMPHOST_HOST,
// JUMPHOST_PORT, JUMPHOST_USERNAME, JUMPHOST_PASSWORD).
func Load(path string) (*Store, error) {
	s := &Store{path: path}

	if data, err := os.ReadFile(path); err == nil {
		if jerr := json.Unmarshal(data, &s.cfg); jerr != nil {
			return nil, errs.NewStorage(path, "parsing jumphost config: "+jerr.Error())
		}
	} else if !os.IsNotExist(err) {
		return nil, errs.NewStorage(path, err.Error())
	}

	s.applyEnvOverrides()
	return s, nil
}

func (s *Store) applyEnvOverrides() {
	if v, ok := os.LookupEnv("JUMPHOST_ENABLED"); ok {
		s.cfg.Enabled = v == "1" || v == "true"
	}
	if v, ok := os.LookupEnv("JUMPHOST_HOST"); ok {
		s.cfg.Host = v
	}
	if v, ok := os.LookupEnv("JUMPHOST_PORT"); ok {
		if p, err := strconv.Atoi(v); err == nil {
			s.cfg.Port = p
		}
	}
	if v, ok := os.LookupEnv("JUMPHOST_USERNAME"); ok {
		s.cfg.Username = v
	}
	if v, ok := os.LookupEnv("JUMPHOST_PASSWORD"); ok {
		s.cfg.EncryptedPass = v
	}
}

// Get returns the current config with the password redacted (spec.md §6
// JumphostGet contract).
func (s *Store) Get() model.JumphostConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Redacted()
}

// Snapshot returns the current config including the encrypted password,
// for internal callers (the Connection Manager) that must actually dial
// through it.
func (s *Store) Snapshot() model.JumphostConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Set validates cfg with a live probe before persisting it. The
// precondition is a function, not a setter side effect (spec.md §9): a
// failed probe leaves the stored config untouched and returns
// JumphostProbeError.
func (s *Store) Set(ctx context.Context, cfg model.JumphostConfig, plaintextPassword string, connectTimeout time.Duration) error {
	if cfg.Enabled {
		if err := Probe(ctx, cfg, plaintextPassword, connectTimeout); err != nil {
			return errs.NewJumphostProbe(err.Error())
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return errs.NewStorage(s.path, err.Error())
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return errs.NewStorage(s.path, err.Error())
	}

	util.WithField("host", cfg.Host).Info("jumphost: configuration updated")
	return nil
}

// Probe live-connects, authenticates, and closes — no command is run.
// Used both by Set's precondition and exposed for an operator health
// check.
func Probe(ctx context.Context, cfg model.JumphostConfig, plaintextPassword string, timeout time.Duration) error {
	if cfg.Host == "" {
		return fmt.Errorf("jumphost host is empty")
	}
	port := cfg.Port
	if port == 0 {
		port = 22
	}

	config := &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(plaintextPassword)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, port)
	dialer := net.Dialer{Timeout: timeout}
	raw, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("jumphost dial %s: %w", addr, err)
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(raw, addr, config)
	if err != nil {
		raw.Close()
		return fmt.Errorf("jumphost handshake %s@%s: %w", cfg.Username, addr, err)
	}
	client := ssh.NewClient(clientConn, chans, reqs)
	defer client.Close()

	return nil
}
