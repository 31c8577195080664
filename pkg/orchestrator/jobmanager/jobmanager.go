// Package jobmanager implements the Job Manager (spec.md §4.8): the
// public entry points for creating, querying, and stopping jobs. It
// persists each new job as pending and hands it to the Batch Scheduler,
// which it launches in its own goroutine the same way the teacher's
// pkg/newtlab.Lab kicks off a background provision run; the scheduler
// makes the pending→connecting transition and every one after it.
package jobmanager

import (
	"context"
	"time"

	"github.com/newtron-network/newtron/pkg/orchestrator/errs"
	"github.com/newtron-network/newtron/pkg/orchestrator/jobstore"
	"github.com/newtron-network/newtron/pkg/orchestrator/model"
	"github.com/newtron-network/newtron/pkg/orchestrator/progress"
	"github.com/newtron-network/newtron/pkg/util"
)

const (
	minBatchSize = 2
	maxBatchSize = 50
)

// ConnectionManager is the subset of conn.Manager the Job Manager needs
// to act on stop_job's "disconnect currently-connected devices" clause,
// kept narrow so this package doesn't need to import conn directly.
type ConnectionManager interface {
	IsConnected(deviceID string) bool
	Disconnect(deviceID string) error
}

// Runner launches a job's Batch Scheduler run. Satisfied by
// *scheduler.Scheduler; kept as an interface so jobmanager never
// imports scheduler (which already imports jobstore/progress and would
// make the dependency circular the moment scheduler needed job manager
// services).
type Runner interface {
	Run(ctx context.Context, jobID string)
}

// Manager is the Job Manager. One Manager serves the whole process;
// job_id scopes every operation.
type Manager struct {
	Jobs        *jobstore.Store
	Bus         *progress.Bus
	Scheduler   Runner
	Connections ConnectionManager
}

// New returns a Manager over the given collaborators.
func New(jobs *jobstore.Store, bus *progress.Bus, scheduler Runner, connections ConnectionManager) *Manager {
	return &Manager{Jobs: jobs, Bus: bus, Scheduler: scheduler, Connections: connections}
}

// CreateJob validates the request, clamps batch_size per spec.md §4.7's
// tie-break rule, persists a pending Job, and launches the Batch
// Scheduler in its own goroutine. It returns as soon as the job is
// durably pending — it never waits for the run to progress.
func (m *Manager) CreateJob(deviceIDs, commands []string, batchSize, devicesPerHour int, mode model.ConnectionMode) (string, error) {
	deviceIDs = dedupe(deviceIDs)

	var problems []string
	if len(deviceIDs) == 0 {
		problems = append(problems, "device_ids must not be empty")
	}
	if len(commands) == 0 {
		problems = append(problems, "commands must not be empty")
	}
	if devicesPerHour < 0 {
		problems = append(problems, "devices_per_hour must be >= 0")
	}
	if mode != model.ConnectionParallel && mode != model.ConnectionSequential {
		problems = append(problems, "connection_mode must be parallel or sequential")
	}
	if len(problems) > 0 {
		return "", errs.NewValidation(problems...)
	}

	batchSize = clampBatchSize(batchSize, len(deviceIDs))

	job := &model.Job{
		ID:             util.NewID(),
		Status:         model.JobPending,
		CreatedAt:      time.Now().UTC(),
		DeviceIDs:      deviceIDs,
		Commands:       commands,
		BatchSize:      batchSize,
		DevicesPerHour: devicesPerHour,
		ConnectionMode: mode,
		TotalDevices:   len(deviceIDs),
	}

	if err := m.Jobs.CreateJob(job); err != nil {
		return "", err
	}

	util.WithField("job_id", job.ID).WithFields(map[string]any{
		"device_count": len(deviceIDs),
		"batch_size":   batchSize,
	}).Info("job created")

	go m.Scheduler.Run(context.Background(), job.ID)

	return job.ID, nil
}

// clampBatchSize applies spec.md §4.7's tie-break: [2, min(50, N)],
// degenerating to 1 when there is only one device.
func clampBatchSize(requested, deviceCount int) int {
	if deviceCount <= 1 {
		return 1
	}
	upper := maxBatchSize
	if deviceCount < upper {
		upper = deviceCount
	}
	if requested < minBatchSize {
		return minBatchSize
	}
	if requested > upper {
		return upper
	}
	return requested
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// GetJob returns a job by id.
func (m *Manager) GetJob(jobID string) (*model.Job, error) {
	return m.Jobs.GetJob(jobID)
}

// LatestJob returns the most recently created job, or nil if none exist.
func (m *Manager) LatestJob() (*model.Job, error) {
	return m.Jobs.LatestJob()
}

// StopJob requests cancellation. It sets cancel_requested, publishes an
// advisory event (the actual terminal transition happens inside the
// scheduler at its next cancellation point), and disconnects any
// sessions this job currently holds open so in-flight I/O unblocks
// immediately rather than waiting for the scheduler to notice.
func (m *Manager) StopJob(jobID string) (disconnected []string, err error) {
	job, err := m.Jobs.GetJob(jobID)
	if err != nil {
		return nil, err
	}
	if isTerminal(job.Status) {
		return nil, nil
	}

	if err := m.Jobs.UpdateJobStatus(jobID, func(j *model.Job) {
		j.CancelRequested = true
		if j.Status == model.JobConnecting || j.Status == model.JobRunning {
			j.Status = model.JobStopping
		}
	}); err != nil {
		return nil, err
	}

	m.Bus.Publish(model.ProgressEvent{
		JobID:   jobID,
		Kind:    model.EventJobStatus,
		Payload: map[string]any{"status": model.JobStopping, "reason": "stop_job requested"},
	})

	if m.Connections != nil {
		for _, id := range job.DeviceIDs {
			if !m.Connections.IsConnected(id) {
				continue
			}
			if derr := m.Connections.Disconnect(id); derr != nil {
				util.WithDevice(id).Warn("stop_job: disconnect: " + derr.Error())
				continue
			}
			disconnected = append(disconnected, id)
		}
	}

	return disconnected, nil
}

func isTerminal(status model.JobStatus) bool {
	switch status {
	case model.JobCompleted, model.JobFailed, model.JobCancelled:
		return true
	default:
		return false
	}
}
