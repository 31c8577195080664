//go:build e2e

package e2e_test

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/newtron-network/newtron/pkg/orchestrator"
	"github.com/newtron-network/newtron/pkg/orchestrator/artifact"
	"github.com/newtron-network/newtron/pkg/orchestrator/conn"
	"github.com/newtron-network/newtron/pkg/orchestrator/credential"
	"github.com/newtron-network/newtron/pkg/orchestrator/executor"
	"github.com/newtron-network/newtron/pkg/orchestrator/inventory"
	"github.com/newtron-network/newtron/pkg/orchestrator/jobmanager"
	"github.com/newtron-network/newtron/pkg/orchestrator/jobstore"
	"github.com/newtron-network/newtron/pkg/orchestrator/jumphost"
	"github.com/newtron-network/newtron/pkg/orchestrator/model"
	"github.com/newtron-network/newtron/pkg/orchestrator/progress"
	"github.com/newtron-network/newtron/pkg/orchestrator/scheduler"
	"github.com/newtron-network/newtron/pkg/orchestrator/topology"
)

// harness wires the real collaborators the same way cmd/ospfctl's wire()
// does, over a temp DATA_ROOT, against fake devices dialed over loopback.
// build() is a separate step from newHarness() because the device list
// (and the addresses of the fake SSH servers backing it) isn't known
// until the test has started those servers.
type harness struct {
	orch *orchestrator.Orchestrator

	root        string
	creds       *credential.Store
	artifacts   *artifact.Store
	jobs        *jobstore.Store
	topoStore   *topology.Store
	jh          *jumphost.Store
	bus         *progress.Bus
	connections *conn.Manager
	sched       *scheduler.Scheduler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()

	creds, err := credential.Open(filepath.Join(dir, "key"))
	if err != nil {
		t.Fatalf("credential.Open: %v", err)
	}

	artifacts, err := artifact.Open(filepath.Join(dir, "artifacts"))
	if err != nil {
		t.Fatalf("artifact.Open: %v", err)
	}

	jobs, err := jobstore.Open(filepath.Join(dir, "jobs.db"))
	if err != nil {
		t.Fatalf("jobstore.Open: %v", err)
	}
	t.Cleanup(func() { jobs.Close() })

	topoStore, err := topology.Open(filepath.Join(dir, "topology.db"), filepath.Join(dir, "topology_snapshots"))
	if err != nil {
		t.Fatalf("topology.Open: %v", err)
	}
	t.Cleanup(func() { topoStore.Close() })

	jh, err := jumphost.Load(filepath.Join(dir, "jumphost.json"))
	if err != nil {
		t.Fatalf("jumphost.Load: %v", err)
	}

	bus := progress.NewBus(64)
	connections := conn.NewManager()
	exec := executor.New(artifacts, jobs, bus)

	sched := &scheduler.Scheduler{
		Credentials:    creds,
		Connections:    connections,
		Executor:       exec,
		Jobs:           jobs,
		Bus:            bus,
		Jumphost:       jh,
		ConnectTimeout: 5 * time.Second,
		ReadTimeout:    5 * time.Second,
	}
	bus.SetSnapshotter(sched)

	return &harness{
		root: dir, creds: creds, artifacts: artifacts, jobs: jobs,
		topoStore: topoStore, jh: jh, bus: bus, connections: connections, sched: sched,
	}
}

type testDevice struct {
	id, name, addr, username, password string
	// platform defaults to "ios" when empty; set to "auto" to exercise
	// the Connection Manager's banner-sniffing auto-detect path instead.
	platform string
}

// build encrypts each device's password, writes the inventory YAML file
// inventory.Load expects, and assembles the Orchestrator facade.
func (h *harness) build(t *testing.T, devices []testDevice) {
	t.Helper()

	var sb strings.Builder
	sb.WriteString("devices:\n")
	for _, d := range devices {
		encPw, err := h.creds.Encrypt(d.password)
		if err != nil {
			t.Fatalf("encrypting password for %s: %v", d.id, err)
		}
		host, port := splitHostPort(t, d.addr)
		platform := d.platform
		if platform == "" {
			platform = "ios"
		}
		fmt.Fprintf(&sb, "  - id: %q\n    name: %q\n    host: %q\n    transport: ssh\n    port: %d\n    username: %q\n    encrypted_password: %q\n    platform: %s\n",
			d.id, d.name, host, port, d.username, encPw, platform)
	}

	invPath := filepath.Join(h.root, "devices.yaml")
	if err := os.WriteFile(invPath, []byte(sb.String()), 0o600); err != nil {
		t.Fatalf("writing inventory: %v", err)
	}

	inv, err := inventory.Load(invPath)
	if err != nil {
		t.Fatalf("inventory.Load: %v", err)
	}

	h.sched.Devices = inv
	builder := topology.New(h.artifacts, inv)
	mgr := jobmanager.New(h.jobs, h.bus, h.sched, h.connections)
	h.orch = orchestrator.New(mgr, h.artifacts, builder, h.topoStore, h.jh, h.bus, 5*time.Second)
}

func splitHostPort(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("splitting %q: %v", addr, err)
	}
	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		t.Fatalf("parsing port %q: %v", portStr, err)
	}
	return host, port
}

// waitTerminal polls JobsGet until the job reaches a terminal status or
// the deadline elapses.
func waitTerminal(t *testing.T, orch *orchestrator.Orchestrator, jobID string, timeout time.Duration) *model.Job {
	t.Helper()
	deadline := time.After(timeout)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			t.Fatalf("job %s did not reach a terminal state within %s", jobID, timeout)
		case <-ticker.C:
			job, err := orch.JobsGet(jobID)
			if err != nil {
				t.Fatalf("JobsGet: %v", err)
			}
			switch job.Status {
			case model.JobCompleted, model.JobFailed, model.JobCancelled:
				return job
			}
		}
	}
}
