package executor

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/newtron-network/newtron/pkg/orchestrator/artifact"
	"github.com/newtron-network/newtron/pkg/orchestrator/jobstore"
	"github.com/newtron-network/newtron/pkg/orchestrator/model"
	"github.com/newtron-network/newtron/pkg/orchestrator/platform"
	"github.com/newtron-network/newtron/pkg/orchestrator/progress"
)

type fakeSession struct {
	reply string
	err   error
}

func (f *fakeSession) Send(ctx context.Context, command string, readTimeout time.Duration) (string, error) {
	return f.reply, f.err
}
func (f *fakeSession) Close() error                 { return nil }
func (f *fakeSession) Driver() platform.Driver      { return platform.For(model.PlatformIOS) }

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	artifacts, err := artifact.Open(t.TempDir())
	if err != nil {
		t.Fatalf("artifact.Open: %v", err)
	}
	jobs, err := jobstore.Open(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("jobstore.Open: %v", err)
	}
	t.Cleanup(func() { jobs.Close() })
	return New(artifacts, jobs, progress.NewBus(8))
}

func TestExecuteSuccessWritesArtifactAndResult(t *testing.T) {
	e := newTestExecutor(t)
	session := &fakeSession{reply: "Neighbor ID   Pri   State\n10.0.0.1   1   FULL/DR"}

	state := e.Execute(context.Background(), "j1", "r1", "router1", "US", "show ip ospf neighbor", 0, 1, session)

	if state.Status != model.CommandSuccess {
		t.Fatalf("Status = %q, want %q", state.Status, model.CommandSuccess)
	}
	if state.OutputBytes == 0 {
		t.Errorf("OutputBytes = 0, want > 0")
	}

	latest, err := e.Artifacts.Latest("router1", model.KindOSPFNeighbor)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest == nil {
		t.Fatalf("no artifact written on success")
	}

	results, err := e.Jobs.ResultsForJob("j1")
	if err != nil {
		t.Fatalf("ResultsForJob: %v", err)
	}
	if len(results) != 1 || results[0].Status != model.CommandSuccess {
		t.Errorf("results = %+v, want one success row", results)
	}
}

func TestExecuteFailureDoesNotWriteArtifact(t *testing.T) {
	e := newTestExecutor(t)
	session := &fakeSession{err: errors.New("read timeout after 60s")}

	state := e.Execute(context.Background(), "j1", "r1", "router1", "US", "show ip ospf neighbor", 0, 1, session)

	if state.Status != model.CommandFailed {
		t.Fatalf("Status = %q, want %q", state.Status, model.CommandFailed)
	}
	if state.Error == "" {
		t.Errorf("Error is empty, want the session error")
	}

	latest, err := e.Artifacts.Latest("router1", model.KindOSPFNeighbor)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest != nil {
		t.Errorf("artifact written despite Send failure")
	}

	results, err := e.Jobs.ResultsForJob("j1")
	if err != nil {
		t.Fatalf("ResultsForJob: %v", err)
	}
	if len(results) != 1 || results[0].Status != model.CommandFailed {
		t.Errorf("results = %+v, want one failed row", results)
	}
}

func TestExecutePublishesRunningThenTerminalStatus(t *testing.T) {
	e := newTestExecutor(t)
	ch, unsubscribe := e.Bus.Subscribe("j1")
	defer unsubscribe()

	session := &fakeSession{reply: "ok"}
	e.Execute(context.Background(), "j1", "r1", "router1", "US", "show ip ospf neighbor", 0, 1, session)

	first := <-ch
	if first.Kind != model.EventCommandStatus {
		t.Fatalf("first event kind = %q, want %q", first.Kind, model.EventCommandStatus)
	}
	payload, ok := first.Payload.(commandStatusPayload)
	if !ok || payload.Status != model.CommandRunning {
		t.Errorf("first event payload = %+v, want running", first.Payload)
	}

	second := <-ch
	payload, ok = second.Payload.(commandStatusPayload)
	if !ok || payload.Status != model.CommandSuccess {
		t.Errorf("second event payload = %+v, want success", second.Payload)
	}
}
