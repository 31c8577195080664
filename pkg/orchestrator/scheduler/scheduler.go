// Package scheduler implements the Batch Scheduler (spec.md §4.7), the
// centrepiece of the orchestrator: it partitions a job's devices into
// batches, drives the connect/execute/disconnect phases with a
// batch_size-wide worker pool, honours rate limiting between batches,
// and checks cancellation at every batch boundary. Worker pool shape is
// grounded on the teacher's pkg/newtlab.Lab.Provision semaphore
// (chan struct{} + sync.WaitGroup + mutex-guarded error slice).
package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/newtron-network/newtron/pkg/orchestrator/conn"
	"github.com/newtron-network/newtron/pkg/orchestrator/errs"
	"github.com/newtron-network/newtron/pkg/orchestrator/executor"
	"github.com/newtron-network/newtron/pkg/orchestrator/jobstore"
	"github.com/newtron-network/newtron/pkg/orchestrator/metrics"
	"github.com/newtron-network/newtron/pkg/orchestrator/model"
	"github.com/newtron-network/newtron/pkg/orchestrator/platform"
	"github.com/newtron-network/newtron/pkg/orchestrator/progress"
	"github.com/newtron-network/newtron/pkg/util"
)

// DeviceResolver looks device records up by id. CRUD over the inventory
// lives outside this module; the scheduler only reads.
type DeviceResolver interface {
	Resolve(deviceIDs []string) (map[string]model.Device, error)
}

// Decryptor turns a device's stored ciphertext password into the
// plaintext the Connection Manager needs.
type Decryptor interface {
	Decrypt(ciphertext string) (string, error)
}

// JumphostSource supplies the live jumphost snapshot. Its stored
// password is decrypted separately, through Scheduler.JumphostDecrypt.
type JumphostSource interface {
	Snapshot() model.JumphostConfig
}

// Scheduler runs one job's full batch lifecycle.
type Scheduler struct {
	Devices        DeviceResolver
	Credentials    Decryptor
	Connections    *conn.Manager
	Executor       *executor.Executor
	Jobs           *jobstore.Store
	Bus            *progress.Bus
	Jumphost       JumphostSource
	JumphostDecrypt Decryptor

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration

	statesMu     sync.Mutex
	deviceStates map[string]map[string]model.DeviceJobState
}

func (s *Scheduler) connectTimeout() time.Duration {
	if s.ConnectTimeout > 0 {
		return s.ConnectTimeout
	}
	return conn.DefaultConnectTimeout
}

func (s *Scheduler) readTimeout() time.Duration {
	if s.ReadTimeout > 0 {
		return s.ReadTimeout
	}
	return conn.DefaultReadTimeout
}

type jobStatusPayload struct {
	Status model.JobStatus `json:"status"`
	Reason string          `json:"reason,omitempty"`
}

type deviceStatusPayload struct {
	DeviceID   string                 `json:"device_id"`
	DeviceName string                 `json:"device_name"`
	Status     model.DeviceJobStatus  `json:"status"`
	Error      string                 `json:"error,omitempty"`
}

func (s *Scheduler) publishJobStatus(jobID string, status model.JobStatus, reason string) {
	s.Bus.Publish(model.ProgressEvent{JobID: jobID, Kind: model.EventJobStatus, Payload: jobStatusPayload{Status: status, Reason: reason}})
}

func (s *Scheduler) publishDeviceStatus(jobID, deviceID, deviceName string, status model.DeviceJobStatus, err error) {
	p := deviceStatusPayload{DeviceID: deviceID, DeviceName: deviceName, Status: status}
	if err != nil {
		p.Error = err.Error()
	}
	s.Bus.Publish(model.ProgressEvent{JobID: jobID, Kind: model.EventDeviceStatus, Payload: p})

	s.updateDeviceState(jobID, deviceID, deviceName, func(st *model.DeviceJobState) {
		st.Status = status
		if err != nil {
			st.Error = err.Error()
		}
	})
}

// updateDeviceState mutates jobID/deviceID's tracked DeviceJobState,
// creating it on first touch. This is the Scheduler's own record of
// per-device progress, kept in step with the device_status/
// command_status events it publishes, so a late Progress Bus subscriber
// can be handed a snapshot instead of replaying the whole event history.
func (s *Scheduler) updateDeviceState(jobID, deviceID, deviceName string, mutate func(*model.DeviceJobState)) {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()

	if s.deviceStates == nil {
		s.deviceStates = make(map[string]map[string]model.DeviceJobState)
	}
	perJob, ok := s.deviceStates[jobID]
	if !ok {
		perJob = make(map[string]model.DeviceJobState)
		s.deviceStates[jobID] = perJob
	}

	st := perJob[deviceID]
	st.JobID = jobID
	st.DeviceID = deviceID
	if deviceName != "" {
		st.DeviceName = deviceName
	}
	mutate(&st)
	perJob[deviceID] = st
}

func (s *Scheduler) clearDeviceStates(jobID string) {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()
	delete(s.deviceStates, jobID)
}

// Snapshot implements progress.Snapshotter: it hands a late Progress Bus
// subscriber the job row plus every device's current DeviceJobState, so
// Subscribe can lead with a full picture instead of just the replay
// buffer.
func (s *Scheduler) Snapshot(jobID string) (*model.Job, []model.DeviceJobState) {
	job, err := s.Jobs.GetJob(jobID)
	if err != nil {
		return nil, nil
	}

	s.statesMu.Lock()
	perJob := s.deviceStates[jobID]
	states := make([]model.DeviceJobState, 0, len(perJob))
	for _, st := range perJob {
		states = append(states, st)
	}
	s.statesMu.Unlock()

	sort.Slice(states, func(i, j int) bool { return states[i].DeviceID < states[j].DeviceID })
	return job, states
}

// partition splits ids into ceil(N/batchSize) ordered groups of at most
// batchSize elements.
func partition(ids []string, batchSize int) [][]string {
	if batchSize <= 0 {
		batchSize = 1
	}
	var batches [][]string
	for i := 0; i < len(ids); i += batchSize {
		end := i + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batches = append(batches, ids[i:end])
	}
	return batches
}

func workerCount(batchSize int, mode model.ConnectionMode) int {
	if mode == model.ConnectionSequential {
		return 1
	}
	return batchSize
}

// Run drives job to a terminal state. Intended to be launched in its
// own goroutine by the Job Manager; Run itself blocks until the job is
// completed, cancelled, or failed.
func (s *Scheduler) Run(ctx context.Context, jobID string) {
	job, err := s.Jobs.GetJob(jobID)
	if err != nil {
		util.WithField("job_id", jobID).Error("scheduler: loading job: " + err.Error())
		return
	}

	if err := s.transition(jobID, model.JobConnecting, ""); err != nil {
		util.WithField("job_id", jobID).Error("scheduler: transition to connecting: " + err.Error())
		return
	}
	s.publishJobStatus(jobID, model.JobConnecting, "")
	metrics.JobsInFlight.WithLabelValues(string(model.JobConnecting)).Inc()
	inFlight := model.JobConnecting
	defer func() { metrics.JobsInFlight.WithLabelValues(string(inFlight)).Dec() }()

	devices, err := s.Devices.Resolve(job.DeviceIDs)
	if err != nil {
		s.finishFailed(jobID, "resolving device inventory: "+err.Error())
		return
	}

	jh := model.JumphostConfig{}
	if s.Jumphost != nil {
		jh = s.Jumphost.Snapshot()
	}
	var jhPassword string
	if jh.Enabled && s.JumphostDecrypt != nil {
		if pw, derr := s.JumphostDecrypt.Decrypt(jh.EncryptedPass); derr == nil {
			jhPassword = pw
		}
	}

	batches := partition(job.DeviceIDs, job.BatchSize)

	var completedDevices, connectionFailedDevices, executionFailedDevices int
	var enteredRunning bool

	for batchIndex, batch := range batches {
		if s.cancelled(jobID) {
			s.finishCancelled(jobID)
			return
		}

		batchStart := time.Now()

		connected, failed := s.connectPhase(ctx, jobID, batch, devices, jh, jhPassword, job.ConnectionMode)
		connectionFailedDevices += len(failed)
		for _, d := range failed {
			s.markDeviceCommandsFailed(jobID, d, devices[d], "connection failed")
		}

		if !enteredRunning && len(connected) > 0 {
			if err := s.transition(jobID, model.JobRunning, ""); err != nil {
				util.WithField("job_id", jobID).Error("scheduler: transition to running: " + err.Error())
			}
			s.publishJobStatus(jobID, model.JobRunning, "")
			metrics.JobsInFlight.WithLabelValues(string(model.JobConnecting)).Dec()
			metrics.JobsInFlight.WithLabelValues(string(model.JobRunning)).Inc()
			inFlight = model.JobRunning
			enteredRunning = true
		}

		execFailed := s.executePhase(ctx, jobID, connected, devices, job)
		executionFailedDevices += execFailed
		completedDevices += len(connected) - execFailed

		s.disconnectPhase(jobID, batch, devices)

		metrics.BatchDuration.Observe(time.Since(batchStart).Seconds())

		if batchIndex < len(batches)-1 && job.DevicesPerHour > 0 {
			if s.sleepRateLimit(ctx, jobID, job.BatchSize, job.DevicesPerHour) {
				s.finishCancelled(jobID)
				return
			}
		}
	}

	totalDevices := len(job.DeviceIDs)
	if totalDevices > 0 && connectionFailedDevices == totalDevices {
		s.finishFailed(jobID, "all devices failed to connect")
		return
	}

	s.finishCompleted(jobID, completedDevices, connectionFailedDevices, executionFailedDevices, totalDevices)
}

func (s *Scheduler) cancelled(jobID string) bool {
	job, err := s.Jobs.GetJob(jobID)
	if err != nil {
		return false
	}
	return job.CancelRequested
}

func (s *Scheduler) connectPhase(ctx context.Context, jobID string, batch []string, devices map[string]model.Device, jh model.JumphostConfig, jhPassword string, mode model.ConnectionMode) (connected, failed []string) {
	workers := workerCount(len(batch), mode)
	sem := make(chan struct{}, workers)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, id := range batch {
		device, ok := devices[id]
		if !ok {
			mu.Lock()
			failed = append(failed, id)
			mu.Unlock()
			s.publishDeviceStatus(jobID, id, "", model.DeviceStatusConnectionFailed, errs.NewValidation("device not found in inventory"))
			continue
		}

		wg.Add(1)
		go func(device model.Device) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			s.publishDeviceStatus(jobID, device.ID, device.Name, model.DeviceStatusConnecting, nil)

			password, err := s.decryptDevicePassword(device)
			if err == nil {
				_, err = s.Connections.Connect(ctx, device, password, &jh, jhPassword, s.connectTimeout(), s.readTimeout())
			}

			mu.Lock()
			if err != nil {
				failed = append(failed, device.ID)
				mu.Unlock()
				s.publishDeviceStatus(jobID, device.ID, device.Name, model.DeviceStatusConnectionFailed, err)
				return
			}
			connected = append(connected, device.ID)
			mu.Unlock()
			s.publishDeviceStatus(jobID, device.ID, device.Name, model.DeviceStatusConnected, nil)
		}(device)
	}
	wg.Wait()
	return connected, failed
}

func (s *Scheduler) decryptDevicePassword(device model.Device) (string, error) {
	if s.Credentials == nil {
		return device.EncryptedPass, nil
	}
	return s.Credentials.Decrypt(device.EncryptedPass)
}

// executePhase runs every connected device's commands, in parallel
// across devices but strictly sequential within one device. It returns
// how many connected devices failed to reach device-level completion
// (distinct from per-command failures, which do not abort the device).
func (s *Scheduler) executePhase(ctx context.Context, jobID string, connected []string, devices map[string]model.Device, job *model.Job) int {
	workers := workerCount(len(connected), job.ConnectionMode)
	if workers <= 0 {
		return 0
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	executionFailed := 0

	for _, id := range connected {
		device := devices[id]
		wg.Add(1)
		go func(device model.Device) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			s.publishDeviceStatus(jobID, device.ID, device.Name, model.DeviceStatusExecuting, nil)
			s.updateDeviceState(jobID, device.ID, device.Name, func(st *model.DeviceJobState) {
				st.TotalCommands = len(job.Commands)
			})

			for i, command := range job.Commands {
				state := s.Executor.Execute(ctx, jobID, device.ID, device.Name, device.Country, command, i, len(job.Commands), sessionFor(s.Connections, device.ID))
				s.updateDeviceState(jobID, device.ID, device.Name, func(st *model.DeviceJobState) {
					st.Commands = append(st.Commands, state)
					st.CompletedCommands = len(st.Commands)
				})
				if ctx.Err() != nil {
					break
				}
			}

			if ctx.Err() != nil {
				mu.Lock()
				executionFailed++
				mu.Unlock()
				s.publishDeviceStatus(jobID, device.ID, device.Name, model.DeviceStatusFailed, errs.NewCancelled("execute"))
				return
			}
			s.publishDeviceStatus(jobID, device.ID, device.Name, model.DeviceStatusCompleted, nil)
		}(device)
	}
	wg.Wait()
	return executionFailed
}

// sessionFor adapts the Connection Manager's Send-by-id dispatch to the
// conn.Session shape the Command Executor expects, without handing the
// executor the registry itself.
func sessionFor(m *conn.Manager, deviceID string) conn.Session {
	return &managedSession{manager: m, deviceID: deviceID}
}

type managedSession struct {
	manager  *conn.Manager
	deviceID string
}

func (m *managedSession) Send(ctx context.Context, command string, readTimeout time.Duration) (string, error) {
	return m.manager.Send(ctx, m.deviceID, command, readTimeout)
}

func (m *managedSession) Close() error { return m.manager.Disconnect(m.deviceID) }

func (m *managedSession) Driver() platform.Driver {
	d, _ := m.manager.Driver(m.deviceID)
	return d
}

func (s *Scheduler) disconnectPhase(jobID string, batch []string, devices map[string]model.Device) {
	for _, id := range batch {
		device := devices[id]
		s.publishDeviceStatus(jobID, id, device.Name, model.DeviceStatusDisconnecting, nil)
		if err := s.Connections.Disconnect(id); err != nil {
			util.WithDevice(id).Warn("disconnect: " + err.Error())
		}
	}
}

func (s *Scheduler) markDeviceCommandsFailed(jobID, deviceID string, device model.Device, reason string) {
	for _, command := range s.jobCommands(jobID) {
		result := jobstore.CommandResult{
			JobID: jobID, DeviceID: deviceID, DeviceName: device.Name,
			Command: command, Status: model.CommandFailed, Error: reason,
		}
		if err := s.Jobs.AppendResult(result); err != nil {
			util.WithField("job_id", jobID).Warn("recording connection-failure result: " + err.Error())
		}
	}
}

func (s *Scheduler) jobCommands(jobID string) []string {
	job, err := s.Jobs.GetJob(jobID)
	if err != nil {
		return nil
	}
	return job.Commands
}

// sleepRateLimit pauses for (batchSize/devicesPerHour)*3600s, waking
// early (returning true) if the job is cancelled mid-sleep.
func (s *Scheduler) sleepRateLimit(ctx context.Context, jobID string, batchSize, devicesPerHour int) (cancelled bool) {
	delay := time.Duration(float64(batchSize)/float64(devicesPerHour)*3600) * time.Second
	deadline := time.NewTimer(delay)
	defer deadline.Stop()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-deadline.C:
			return false
		case <-ctx.Done():
			return true
		case <-ticker.C:
			if s.cancelled(jobID) {
				return true
			}
		}
	}
}

func (s *Scheduler) transition(jobID string, status model.JobStatus, reason string) error {
	return s.Jobs.UpdateJobStatus(jobID, func(job *model.Job) {
		job.Status = status
		if reason != "" {
			job.FailureReason = reason
		}
		if status == model.JobConnecting && job.StartedAt.IsZero() {
			job.StartedAt = time.Now().UTC()
		}
	})
}

func (s *Scheduler) finishFailed(jobID, reason string) {
	_ = s.transition(jobID, model.JobFailed, reason)
	_ = s.Jobs.UpdateJobStatus(jobID, func(job *model.Job) {
		job.EndedAt = time.Now().UTC()
		job.ProgressPercent = 100
	})
	s.publishJobStatus(jobID, model.JobFailed, reason)
	s.Bus.Publish(model.ProgressEvent{JobID: jobID, Kind: model.EventTerminal})
	metrics.JobsTotal.WithLabelValues(string(model.JobFailed)).Inc()
	s.clearDeviceStates(jobID)
}

func (s *Scheduler) finishCancelled(jobID string) {
	_ = s.transition(jobID, model.JobCancelled, "")
	_ = s.Jobs.UpdateJobStatus(jobID, func(job *model.Job) {
		job.EndedAt = time.Now().UTC()
	})
	s.publishJobStatus(jobID, model.JobCancelled, "")
	s.Bus.Publish(model.ProgressEvent{JobID: jobID, Kind: model.EventTerminal})
	metrics.JobsTotal.WithLabelValues(string(model.JobCancelled)).Inc()
	s.clearDeviceStates(jobID)
}

func (s *Scheduler) finishCompleted(jobID string, completed, connectionFailed, executionFailed, total int) {
	_ = s.Jobs.UpdateJobStatus(jobID, func(job *model.Job) {
		job.Status = model.JobCompleted
		job.CompletedDevices = completed
		job.FailedDevices = connectionFailed + executionFailed
		job.TotalDevices = total
		job.EndedAt = time.Now().UTC()
		if total > 0 {
			job.ProgressPercent = 100
		}
	})
	s.publishJobStatus(jobID, model.JobCompleted, "")
	s.Bus.Publish(model.ProgressEvent{JobID: jobID, Kind: model.EventTerminal})
	metrics.JobsTotal.WithLabelValues(string(model.JobCompleted)).Inc()
	s.clearDeviceStates(jobID)
}
