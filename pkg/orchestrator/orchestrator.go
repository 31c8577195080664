// Package orchestrator wires the Automation Orchestrator's components
// into the verb API spec.md §6 names (JobsCreate, JobsGet, ...): one
// Orchestrator struct per running process, built by New from already-open
// collaborators. This is the facade a CLI or any outer transport adapter
// (HTTP/WS) calls into — it owns no transport itself (spec.md §1's
// HTTP/WS Non-goal).
package orchestrator

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/newtron-network/newtron/pkg/orchestrator/artifact"
	"github.com/newtron-network/newtron/pkg/orchestrator/errs"
	"github.com/newtron-network/newtron/pkg/orchestrator/jobmanager"
	"github.com/newtron-network/newtron/pkg/orchestrator/jumphost"
	"github.com/newtron-network/newtron/pkg/orchestrator/model"
	"github.com/newtron-network/newtron/pkg/orchestrator/progress"
	"github.com/newtron-network/newtron/pkg/orchestrator/topology"
)

// Orchestrator exposes the Automation Orchestrator's full external API
// (spec.md §6) over already-wired collaborators.
type Orchestrator struct {
	Jobs      *jobmanager.Manager
	Artifacts *artifact.Store
	Topo      *topology.Builder
	TopoStore *topology.Store
	Jumphosts *jumphost.Store
	Bus       *progress.Bus

	connectTimeout time.Duration
}

// New returns an Orchestrator over the given collaborators. connectTimeout
// is used for JumphostSet's live probe.
func New(jobs *jobmanager.Manager, artifacts *artifact.Store, topo *topology.Builder, topoStore *topology.Store, jumphosts *jumphost.Store, bus *progress.Bus, connectTimeout time.Duration) *Orchestrator {
	return &Orchestrator{
		Jobs: jobs, Artifacts: artifacts, Topo: topo, TopoStore: topoStore,
		Jumphosts: jumphosts, Bus: bus, connectTimeout: connectTimeout,
	}
}

// JobsCreate validates and launches a new job, returning its id.
func (o *Orchestrator) JobsCreate(deviceIDs, commands []string, batchSize, devicesPerHour int, mode model.ConnectionMode) (string, error) {
	return o.Jobs.CreateJob(deviceIDs, commands, batchSize, devicesPerHour, mode)
}

// JobsGet returns a job by id.
func (o *Orchestrator) JobsGet(jobID string) (*model.Job, error) {
	return o.Jobs.GetJob(jobID)
}

// JobsLatest returns the most recently created job, or nil if none exist.
func (o *Orchestrator) JobsLatest() (*model.Job, error) {
	return o.Jobs.LatestJob()
}

// JobsStopResult is JobsStop's return shape (spec.md §6).
type JobsStopResult struct {
	Stopped               bool     `json:"stopped"`
	DisconnectedDeviceIDs []string `json:"disconnected_device_ids"`
}

// JobsStop requests cancellation of jobID.
func (o *Orchestrator) JobsStop(jobID string) (JobsStopResult, error) {
	disconnected, err := o.Jobs.StopJob(jobID)
	if err != nil {
		return JobsStopResult{}, err
	}
	return JobsStopResult{Stopped: true, DisconnectedDeviceIDs: disconnected}, nil
}

// FilesList returns every persisted artifact of the given kind (text or
// json), newest first. The Artifact Store only indexes the TEXT tree
// directly; a json listing is derived from it since Write always
// produces a matching JSON sibling under the same base name.
func (o *Orchestrator) FilesList(kind model.FileKind) ([]model.FileInfo, error) {
	files, err := o.Artifacts.List(artifact.Filter{})
	if err != nil {
		return nil, err
	}
	if kind == model.FileKindJSON {
		for i := range files {
			files[i].Path = toJSONPath(files[i].Path)
			files[i].Kind = model.FileKindJSON
		}
	}
	return files, nil
}

func toJSONPath(textPath string) string {
	dir := filepath.Dir(filepath.Dir(textPath))
	base := strings.TrimSuffix(filepath.Base(textPath), ".txt")
	return filepath.Join(dir, "JSON", base+".json")
}

// FileRead returns an artifact file's bytes. A path that is absolute,
// contains "..", or has a backslash in its final element is rejected as
// a ValidationError before any filesystem access. Any other path is read
// as given, relative to the working directory; it is not joined to or
// checked against the data root, and a path with directory components
// is not rejected.
func (o *Orchestrator) FileRead(path string) ([]byte, error) {
	if err := validateArtifactPath(path); err != nil {
		return nil, err
	}
	return o.Artifacts.Read(path)
}

func validateArtifactPath(path string) error {
	if filepath.IsAbs(path) {
		return errs.NewValidation("path must not be absolute")
	}
	if strings.Contains(path, "..") {
		return errs.NewValidation("path must not contain '..'")
	}
	base := filepath.Base(path)
	if strings.ContainsAny(base, "/\\") {
		return errs.NewValidation("filename must not contain a path separator")
	}
	return nil
}

// TopologyBuild reconstructs the topology from the latest artifacts and
// persists the resulting snapshot.
func (o *Orchestrator) TopologyBuild() (model.Snapshot, error) {
	snapshot, err := o.Topo.Build()
	if err != nil {
		return model.Snapshot{}, err
	}
	if err := o.TopoStore.Save(snapshot); err != nil {
		return model.Snapshot{}, err
	}
	return snapshot, nil
}

// TopologyLatest returns the most recently saved snapshot, or nil if
// none has been built yet.
func (o *Orchestrator) TopologyLatest() (*model.Snapshot, error) {
	return o.TopoStore.Latest()
}

// JumphostGet returns the current jumphost config with its password
// redacted.
func (o *Orchestrator) JumphostGet() model.JumphostConfig {
	return o.Jumphosts.Get()
}

// JumphostSetResult is JumphostSet's return shape (spec.md §6).
type JumphostSetResult struct {
	Enabled bool `json:"enabled"`
}

// JumphostSet live-probes and, on success, persists cfg.
func (o *Orchestrator) JumphostSet(ctx context.Context, cfg model.JumphostConfig, plaintextPassword string) (JumphostSetResult, error) {
	if err := o.Jumphosts.Set(ctx, cfg, plaintextPassword, o.connectTimeout); err != nil {
		return JumphostSetResult{}, err
	}
	return JumphostSetResult{Enabled: cfg.Enabled}, nil
}

// Close releases every collaborator that owns a file handle. Safe to
// call once at process shutdown.
func (o *Orchestrator) Close() error {
	var firstErr error
	if err := o.Jobs.Jobs.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := o.TopoStore.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
