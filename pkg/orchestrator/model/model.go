// Package model holds the shared vocabulary types for the OSPF fleet
// orchestrator: devices, jobs, device/command state, artifacts, and
// topology snapshots. Every other orchestrator package builds on these.
package model

import "time"

// Transport identifies how a Connection Manager session reaches a device.
type Transport string

const (
	TransportSSH    Transport = "ssh"
	TransportTelnet Transport = "telnet"
)

// Platform is a device's command-set family, or "auto" to defer detection
// to the Connection Manager's one-shot identification.
type Platform string

const (
	PlatformIOS   Platform = "ios"
	PlatformIOSXR Platform = "ios-xr"
	PlatformNXOS  Platform = "nx-os"
	PlatformAuto  Platform = "auto"
)

// Device is the external inventory's view of a managed router. The
// orchestrator core never mutates a Device; CRUD lives outside this
// module's scope.
type Device struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Host             string    `json:"host"`
	Transport        Transport `json:"transport"`
	Port             int       `json:"port"`
	Username         string    `json:"username"`
	EncryptedPass    string    `json:"encrypted_password"`
	Country          string    `json:"country"`
	Platform         Platform  `json:"platform"`
}

// JobStatus is the Job lifecycle state (spec.md §4.8 state machine).
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobConnecting JobStatus = "connecting"
	JobRunning    JobStatus = "running"
	JobStopping   JobStatus = "stopping"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// ConnectionMode selects how many connect/execute workers a batch uses.
type ConnectionMode string

const (
	ConnectionParallel   ConnectionMode = "parallel"
	ConnectionSequential ConnectionMode = "sequential"
)

// Job is a single orchestration request: a set of devices, a set of
// commands to run on each, and the batch/rate-limit constraints under
// which the Batch Scheduler executes it.
type Job struct {
	ID                string         `json:"id"`
	Status            JobStatus      `json:"status"`
	CreatedAt         time.Time      `json:"created_at"`
	StartedAt         time.Time      `json:"started_at,omitempty"`
	EndedAt           time.Time      `json:"ended_at,omitempty"`
	DeviceIDs         []string       `json:"device_ids"`
	Commands          []string       `json:"commands"`
	BatchSize         int            `json:"batch_size"`
	DevicesPerHour    int            `json:"devices_per_hour"`
	ConnectionMode    ConnectionMode `json:"connection_mode"`
	CancelRequested   bool           `json:"cancel_requested"`
	TotalDevices      int            `json:"total_devices"`
	CompletedDevices  int            `json:"completed_devices"`
	FailedDevices     int            `json:"failed_devices"`
	ProgressPercent   int            `json:"progress_percent"`
	FailureReason     string         `json:"failure_reason,omitempty"`
}

// Clone returns a deep-enough copy of a Job for safe hand-off across the
// Job Store boundary (slices are copied so callers can't mutate shared
// state behind the store's back).
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	cp.DeviceIDs = append([]string(nil), j.DeviceIDs...)
	cp.Commands = append([]string(nil), j.Commands...)
	return &cp
}

// DeviceJobStatus is the per-device lifecycle within one job.
type DeviceJobStatus string

const (
	DeviceStatusPending           DeviceJobStatus = "pending"
	DeviceStatusConnecting        DeviceJobStatus = "connecting"
	DeviceStatusConnected         DeviceJobStatus = "connected"
	DeviceStatusExecuting         DeviceJobStatus = "executing"
	DeviceStatusDisconnecting     DeviceJobStatus = "disconnecting"
	DeviceStatusCompleted         DeviceJobStatus = "completed"
	DeviceStatusConnectionFailed  DeviceJobStatus = "connection_failed"
	DeviceStatusFailed            DeviceJobStatus = "failed"
)

// ConnectionType records whether a device session went direct or through
// the jumphost tunnel.
type ConnectionType string

const (
	ConnectionReal      ConnectionType = "real"
	ConnectionJumphosted ConnectionType = "jumphosted"
)

// DeviceJobState is a job's per-device progress record.
type DeviceJobState struct {
	JobID             string          `json:"job_id"`
	DeviceID          string          `json:"device_id"`
	DeviceName        string          `json:"device_name"`
	Status            DeviceJobStatus `json:"status"`
	CompletedCommands int             `json:"completed_commands"`
	TotalCommands     int             `json:"total_commands"`
	Commands          []CommandState  `json:"commands"`
	ConnectionType    ConnectionType  `json:"connection_type,omitempty"`
	Error             string          `json:"error,omitempty"`
}

// CommandStatus is a single command's execution state.
type CommandStatus string

const (
	CommandPending CommandStatus = "pending"
	CommandRunning CommandStatus = "running"
	CommandSuccess CommandStatus = "success"
	CommandFailed  CommandStatus = "failed"
)

// CommandState is one command's result within a DeviceJobState.
type CommandState struct {
	Command      string        `json:"command"`
	Status       CommandStatus `json:"status"`
	ExecutionMS  int64         `json:"execution_ms"`
	Error        string        `json:"error,omitempty"`
	OutputBytes  int           `json:"output_bytes"`
}

// FileKind distinguishes the two artifact file trees.
type FileKind string

const (
	FileKindText FileKind = "text"
	FileKindJSON FileKind = "json"
)

// FileInfo describes one persisted artifact file.
type FileInfo struct {
	Path      string    `json:"path"`
	Device    string    `json:"device"`
	Command   string    `json:"command"`
	Kind      FileKind  `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Size      int64     `json:"size"`
}

// CommandKind is the recognized OSPF command category a filename maps to,
// used by the Topology Builder to pick the right parser (spec.md §4.3).
type CommandKind string

const (
	KindOSPFNeighbor        CommandKind = "ospf_neighbor"
	KindOSPFDatabaseRouter  CommandKind = "ospf_database_router"
	KindOSPFDatabaseNetwork CommandKind = "ospf_database_network"
	KindOSPFInterface       CommandKind = "ospf_interface"
	KindUnknown             CommandKind = ""
)

// Node is one router in a topology snapshot.
type Node struct {
	ID       string   `json:"id"`
	Country  string   `json:"country,omitempty"`
	Platform Platform `json:"platform,omitempty"`
}

// Link is one directed OSPF adjacency in a topology snapshot.
type Link struct {
	ID              string `json:"id"`
	Source          string `json:"source"`
	Target          string `json:"target"`
	Cost            uint32 `json:"cost"`
	SourceInterface string `json:"source_interface"`
	TargetInterface string `json:"target_interface"`
	Status          string `json:"status"`
}

// SnapshotMetadata records provenance for a topology build.
type SnapshotMetadata struct {
	NodeCount       int       `json:"node_count"`
	LinkCount       int       `json:"link_count"`
	GeneratedAt     time.Time `json:"generated_at"`
	DiscoveryMethod string    `json:"discovery_method"`
	Sources         []string  `json:"sources"`
	SkippedDevices  []string  `json:"skipped_devices,omitempty"`
}

// Snapshot is the Topology Builder's output: a full node+link set plus
// provenance metadata.
type Snapshot struct {
	Nodes    []Node           `json:"nodes"`
	Links    []Link           `json:"links"`
	Metadata SnapshotMetadata `json:"metadata"`
}

// ProgressEventKind tags the payload carried by a ProgressEvent.
type ProgressEventKind string

const (
	EventJobStatus     ProgressEventKind = "job_status"
	EventDeviceStatus  ProgressEventKind = "device_status"
	EventCommandStatus ProgressEventKind = "command_status"
	EventLog           ProgressEventKind = "log"
	EventTerminal      ProgressEventKind = "terminal"
	// EventSnapshot is synthesized by the Progress Bus itself, never
	// published by a component: it is the first event a subscriber sees,
	// carrying the job's current state and every device's DeviceJobState
	// so a late subscriber doesn't have to replay the whole event history
	// to reconstruct where the job stands.
	EventSnapshot ProgressEventKind = "snapshot"
)

// ProgressEvent is one message on a job's Progress Bus topic.
type ProgressEvent struct {
	JobID   string            `json:"job_id"`
	Seq     uint64            `json:"seq"`
	Ts      time.Time         `json:"ts"`
	Kind    ProgressEventKind `json:"kind"`
	Payload any               `json:"payload"`
}

// ProgressSnapshot is the Payload of an EventSnapshot event.
type ProgressSnapshot struct {
	Job          *Job             `json:"job"`
	DeviceStates []DeviceJobState `json:"device_states"`
}

// JumphostConfig is the process-wide singleton describing the optional
// bastion host all device sessions must traverse when enabled.
type JumphostConfig struct {
	Enabled       bool   `json:"enabled"`
	Host          string `json:"host"`
	Port          int    `json:"port"`
	Username      string `json:"username"`
	EncryptedPass string `json:"password_encrypted"`
}

// Redacted returns a copy with the password cleared, for external display
// (spec.md §6 JumphostGet contract).
func (j JumphostConfig) Redacted() JumphostConfig {
	j.EncryptedPass = ""
	return j
}
