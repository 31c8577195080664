package jobstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/newtron-network/newtron/pkg/orchestrator/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGetJob(t *testing.T) {
	s := openTestStore(t)
	job := &model.Job{ID: "j1", Status: model.JobPending, CreatedAt: time.Now().UTC(), DeviceIDs: []string{"r1"}}
	if err := s.CreateJob(job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	got, err := s.GetJob("j1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != model.JobPending {
		t.Errorf("Status = %q, want %q", got.Status, model.JobPending)
	}
}

func TestGetJobNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetJob("missing"); err == nil {
		t.Fatalf("GetJob(missing): want error, got nil")
	}
}

func TestUpdateJobStatus(t *testing.T) {
	s := openTestStore(t)
	job := &model.Job{ID: "j1", Status: model.JobPending, CreatedAt: time.Now().UTC()}
	if err := s.CreateJob(job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	err := s.UpdateJobStatus("j1", func(j *model.Job) {
		j.Status = model.JobRunning
		j.StartedAt = time.Now().UTC()
	})
	if err != nil {
		t.Fatalf("UpdateJobStatus: %v", err)
	}

	got, err := s.GetJob("j1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != model.JobRunning {
		t.Errorf("Status = %q, want %q", got.Status, model.JobRunning)
	}
}

func TestUpdateJobStatusNotFound(t *testing.T) {
	s := openTestStore(t)
	err := s.UpdateJobStatus("missing", func(j *model.Job) {})
	if err == nil {
		t.Fatalf("UpdateJobStatus(missing): want error, got nil")
	}
}

func TestLatestJob(t *testing.T) {
	s := openTestStore(t)
	older := &model.Job{ID: "j1", Status: model.JobCompleted, CreatedAt: time.Now().UTC().Add(-time.Hour)}
	newer := &model.Job{ID: "j2", Status: model.JobCompleted, CreatedAt: time.Now().UTC()}
	if err := s.CreateJob(older); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := s.CreateJob(newer); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	latest, err := s.LatestJob()
	if err != nil {
		t.Fatalf("LatestJob: %v", err)
	}
	if latest.ID != "j2" {
		t.Errorf("LatestJob = %q, want j2", latest.ID)
	}
}

func TestJobsSince(t *testing.T) {
	s := openTestStore(t)
	cutoff := time.Now().UTC()
	before := &model.Job{ID: "before", Status: model.JobCompleted, CreatedAt: cutoff.Add(-time.Hour)}
	after := &model.Job{ID: "after", Status: model.JobCompleted, CreatedAt: cutoff.Add(time.Hour)}
	if err := s.CreateJob(before); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := s.CreateJob(after); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	jobs, err := s.JobsSince(cutoff)
	if err != nil {
		t.Fatalf("JobsSince: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != "after" {
		t.Errorf("JobsSince = %+v, want only %q", jobs, "after")
	}
}

func TestAppendAndListResultsInOrder(t *testing.T) {
	s := openTestStore(t)
	for i, cmd := range []string{"show ip ospf neighbor", "show ip ospf interface brief"} {
		r := CommandResult{
			JobID:       "j1",
			DeviceID:    "r1",
			Command:     cmd,
			Status:      model.CommandSuccess,
			ExecutionMS: int64(i),
		}
		if err := s.AppendResult(r); err != nil {
			t.Fatalf("AppendResult[%d]: %v", i, err)
		}
	}

	results, err := s.ResultsForJob("j1")
	if err != nil {
		t.Fatalf("ResultsForJob: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("ResultsForJob len = %d, want 2", len(results))
	}
	if results[0].Command != "show ip ospf neighbor" || results[1].Command != "show ip ospf interface brief" {
		t.Errorf("results out of order: %+v", results)
	}
}

func TestResultsScopedByJobID(t *testing.T) {
	s := openTestStore(t)
	if err := s.AppendResult(CommandResult{JobID: "j1", Command: "a"}); err != nil {
		t.Fatalf("AppendResult: %v", err)
	}
	if err := s.AppendResult(CommandResult{JobID: "j10", Command: "b"}); err != nil {
		t.Fatalf("AppendResult: %v", err)
	}

	results, err := s.ResultsForJob("j1")
	if err != nil {
		t.Fatalf("ResultsForJob: %v", err)
	}
	if len(results) != 1 || results[0].Command != "a" {
		t.Errorf("ResultsForJob(j1) leaked rows from j10: %+v", results)
	}
}

func TestOpenFailsNonTerminalJobsOnRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.CreateJob(&model.Job{ID: "j1", Status: model.JobRunning, CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("Open (restart): %v", err)
	}
	defer s2.Close()

	job, err := s2.GetJob("j1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != model.JobFailed {
		t.Errorf("Status after restart = %q, want %q", job.Status, model.JobFailed)
	}
	if job.FailureReason != "orchestrator restart" {
		t.Errorf("FailureReason = %q, want %q", job.FailureReason, "orchestrator restart")
	}
}

func TestPruneOlderThanDeletesTerminalJobsAndResults(t *testing.T) {
	s := openTestStore(t)
	cutoff := time.Now().UTC()

	old := &model.Job{ID: "old", Status: model.JobCompleted, CreatedAt: cutoff.Add(-time.Hour)}
	if err := s.CreateJob(old); err != nil {
		t.Fatalf("CreateJob(old): %v", err)
	}
	if err := s.AppendResult(CommandResult{JobID: "old", DeviceID: "r1", Command: "show version"}); err != nil {
		t.Fatalf("AppendResult(old): %v", err)
	}

	recent := &model.Job{ID: "recent", Status: model.JobCompleted, CreatedAt: cutoff.Add(time.Hour)}
	if err := s.CreateJob(recent); err != nil {
		t.Fatalf("CreateJob(recent): %v", err)
	}

	active := &model.Job{ID: "active", Status: model.JobRunning, CreatedAt: cutoff.Add(-time.Hour)}
	if err := s.CreateJob(active); err != nil {
		t.Fatalf("CreateJob(active): %v", err)
	}

	n, err := s.PruneOlderThan(cutoff)
	if err != nil {
		t.Fatalf("PruneOlderThan: %v", err)
	}
	if n != 1 {
		t.Errorf("PruneOlderThan returned %d, want 1", n)
	}

	if _, err := s.GetJob("old"); err == nil {
		t.Errorf("GetJob(old): want error after prune, got nil")
	}
	if results, err := s.ResultsForJob("old"); err != nil || len(results) != 0 {
		t.Errorf("ResultsForJob(old) = %v, %v, want empty, nil", results, err)
	}

	if _, err := s.GetJob("recent"); err != nil {
		t.Errorf("GetJob(recent): %v, want job to survive (created after cutoff)", err)
	}
	if _, err := s.GetJob("active"); err != nil {
		t.Errorf("GetJob(active): %v, want job to survive (non-terminal)", err)
	}
}
