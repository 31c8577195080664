// Package executor implements the Command Executor (spec.md §4.6): the
// four-step contract for running one command on one already-connected
// device session. It owns no session — the Batch Scheduler dials,
// hands the session in, and tears it down.
package executor

import (
	"context"
	"time"

	"github.com/newtron-network/newtron/pkg/orchestrator/artifact"
	"github.com/newtron-network/newtron/pkg/orchestrator/conn"
	"github.com/newtron-network/newtron/pkg/orchestrator/jobstore"
	"github.com/newtron-network/newtron/pkg/orchestrator/metrics"
	"github.com/newtron-network/newtron/pkg/orchestrator/model"
	"github.com/newtron-network/newtron/pkg/orchestrator/progress"
	"github.com/newtron-network/newtron/pkg/util"
)

// DefaultCommandTimeout matches spec.md §4.6's 60s send timeout.
const DefaultCommandTimeout = 60 * time.Second

// Executor wires the Artifact Store, Job Store, and Progress Bus
// together for single-command execution.
type Executor struct {
	Artifacts *artifact.Store
	Jobs      *jobstore.Store
	Bus       *progress.Bus
}

// New returns an Executor over the given collaborators.
func New(artifacts *artifact.Store, jobs *jobstore.Store, bus *progress.Bus) *Executor {
	return &Executor{Artifacts: artifacts, Jobs: jobs, Bus: bus}
}

// commandStatusPayload is the Payload carried by command_status events.
type commandStatusPayload struct {
	DeviceID    string `json:"device_id"`
	DeviceName  string `json:"device_name"`
	Command     string `json:"command"`
	CmdIndex    int    `json:"cmd_index"`
	CmdTotal    int    `json:"cmd_total"`
	Status      model.CommandStatus `json:"status"`
	ExecutionMS int64  `json:"execution_ms,omitempty"`
	Error       string `json:"error,omitempty"`
}

// textArtifactEnvelope is the JSON sibling written alongside the raw
// text artifact — the same output, plus provenance the Topology Builder
// and any downstream consumer can use without re-parsing the filename.
type textArtifactEnvelope struct {
	Device      string    `json:"device"`
	Country     string    `json:"country"`
	Command     string    `json:"command"`
	Output      string    `json:"output"`
	CapturedAt  time.Time `json:"captured_at"`
	ExecutionMS int64     `json:"execution_ms"`
}

// Execute runs command on an already-connected session and returns its
// CommandState. It never returns an error: a failed command is recorded
// and published as failed, not propagated, so the Batch Scheduler can
// keep running the remaining commands on this device.
func (e *Executor) Execute(ctx context.Context, jobID, deviceID, deviceName, country, command string, cmdIndex, cmdTotal int, session conn.Session) model.CommandState {
	e.publish(jobID, commandStatusPayload{
		DeviceID: deviceID, DeviceName: deviceName, Command: command,
		CmdIndex: cmdIndex, CmdTotal: cmdTotal, Status: model.CommandRunning,
	})

	start := time.Now()
	output, err := session.Send(ctx, command, DefaultCommandTimeout)
	elapsed := time.Since(start)
	elapsedMS := elapsed.Milliseconds()

	state := model.CommandState{Command: command, ExecutionMS: elapsedMS}

	if err != nil {
		state.Status = model.CommandFailed
		state.Error = err.Error()

		e.recordResult(jobID, deviceID, deviceName, state)
		e.publish(jobID, commandStatusPayload{
			DeviceID: deviceID, DeviceName: deviceName, Command: command,
			CmdIndex: cmdIndex, CmdTotal: cmdTotal, Status: model.CommandFailed,
			ExecutionMS: elapsedMS, Error: state.Error,
		})
		metrics.CommandDuration.WithLabelValues(string(model.CommandFailed)).Observe(elapsed.Seconds())
		util.WithDevice(deviceID).WithField("command", command).Warn("command failed: " + state.Error)
		return state
	}

	state.OutputBytes = len(output)
	if e.Artifacts != nil {
		envelope := textArtifactEnvelope{
			Device: deviceName, Country: country, Command: command,
			Output: output, CapturedAt: time.Now().UTC(), ExecutionMS: elapsedMS,
		}
		if _, _, werr := e.Artifacts.Write(deviceName, command, output, envelope); werr != nil {
			state.Status = model.CommandFailed
			state.Error = werr.Error()
			e.recordResult(jobID, deviceID, deviceName, state)
			e.publish(jobID, commandStatusPayload{
				DeviceID: deviceID, DeviceName: deviceName, Command: command,
				CmdIndex: cmdIndex, CmdTotal: cmdTotal, Status: model.CommandFailed,
				ExecutionMS: elapsedMS, Error: state.Error,
			})
			metrics.CommandDuration.WithLabelValues(string(model.CommandFailed)).Observe(elapsed.Seconds())
			return state
		}
	}

	state.Status = model.CommandSuccess
	e.recordResult(jobID, deviceID, deviceName, state)
	e.publish(jobID, commandStatusPayload{
		DeviceID: deviceID, DeviceName: deviceName, Command: command,
		CmdIndex: cmdIndex, CmdTotal: cmdTotal, Status: model.CommandSuccess,
		ExecutionMS: elapsedMS,
	})
	metrics.CommandDuration.WithLabelValues(string(model.CommandSuccess)).Observe(elapsed.Seconds())
	return state
}

func (e *Executor) recordResult(jobID, deviceID, deviceName string, state model.CommandState) {
	if e.Jobs == nil {
		return
	}
	result := jobstore.CommandResult{
		JobID: jobID, DeviceID: deviceID, DeviceName: deviceName,
		Command: state.Command, Status: state.Status,
		ExecutionMS: state.ExecutionMS, Error: state.Error, OutputBytes: state.OutputBytes,
	}
	if err := e.Jobs.AppendResult(result); err != nil {
		util.WithField("job_id", jobID).Warn("appending command result: " + err.Error())
	}
}

func (e *Executor) publish(jobID string, payload commandStatusPayload) {
	if e.Bus == nil {
		return
	}
	e.Bus.Publish(model.ProgressEvent{JobID: jobID, Kind: model.EventCommandStatus, Payload: payload})
}
