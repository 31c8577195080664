// Package jobstore implements the Job Store (spec.md §4.4): durable
// job records and per-command results. No SQL driver appears anywhere
// in the retrieved corpus, so this models spec.md's "jobs" and
// "command_results" tables as bbolt buckets (grounded on
// cuemby-warren's pkg/storage.BoltStore), with command_results keyed by
// job id so a prefix scan plays the role of the SQL foreign key.
package jobstore

import (
	"encoding/binary"
	"encoding/json"
	"sort"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/newtron-network/newtron/pkg/orchestrator/errs"
	"github.com/newtron-network/newtron/pkg/orchestrator/model"
	"github.com/newtron-network/newtron/pkg/util"
)

var (
	bucketJobs    = []byte("jobs")
	bucketResults = []byte("command_results")
)

// CommandResult is one row in the command_results table: a single
// command's outcome on a single device within a job.
type CommandResult struct {
	JobID       string              `json:"job_id"`
	DeviceID    string              `json:"device_id"`
	DeviceName  string              `json:"device_name"`
	Command     string              `json:"command"`
	Status      model.CommandStatus `json:"status"`
	ExecutionMS int64               `json:"execution_ms"`
	Error       string              `json:"error,omitempty"`
	OutputBytes int                 `json:"output_bytes"`
	RecordedAt  time.Time           `json:"recorded_at"`
}

// Store is the bbolt-backed Job Store. Writes to a given job are
// single-writer (spec.md §4.4); the mutex here serializes across all
// jobs since bbolt already serializes writers at the DB level and an
// extra per-job lock would buy nothing.
type Store struct {
	db *bolt.DB
	mu sync.Mutex
}

// Open opens (creating if absent) the bbolt file at path, then runs the
// startup recovery pass: any job left in a non-terminal state is
// force-transitioned to failed, since the orchestrator never resumes
// jobs across a restart.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errs.NewStorage(path, err.Error())
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketJobs, bucketResults} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, errs.NewStorage(path, err.Error())
	}

	s := &Store{db: db}
	if err := s.failNonTerminalJobs(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func isTerminal(status model.JobStatus) bool {
	switch status {
	case model.JobCompleted, model.JobFailed, model.JobCancelled:
		return true
	default:
		return false
	}
}

func (s *Store) failNonTerminalJobs() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		return b.ForEach(func(k, v []byte) error {
			var job model.Job
			if err := json.Unmarshal(v, &job); err != nil {
				return err
			}
			if isTerminal(job.Status) {
				return nil
			}
			job.Status = model.JobFailed
			job.FailureReason = "orchestrator restart"
			job.EndedAt = time.Now().UTC()
			data, err := json.Marshal(job)
			if err != nil {
				return err
			}
			util.WithField("job_id", job.ID).Warn("job failed on startup recovery: orchestrator restart")
			return b.Put(k, data)
		})
	})
}

// CreateJob persists a new job row. Callers populate ID/CreatedAt/Status
// before calling; CreateJob does not default them.
func (s *Store) CreateJob(job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(job)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketJobs).Put([]byte(job.ID), data)
	})
}

// UpdateJobStatus rewrites a job row via a caller-supplied mutation,
// read-modify-write under the store's write lock so status transitions
// never race with a concurrent update.
func (s *Store) UpdateJobStatus(jobID string, mutate func(job *model.Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		data := b.Get([]byte(jobID))
		if data == nil {
			return errs.ErrNotFound
		}
		var job model.Job
		if err := json.Unmarshal(data, &job); err != nil {
			return err
		}
		mutate(&job)
		out, err := json.Marshal(job)
		if err != nil {
			return err
		}
		return b.Put([]byte(jobID), out)
	})
}

// GetJob returns a job by id, or ErrNotFound.
func (s *Store) GetJob(jobID string) (*model.Job, error) {
	var job model.Job
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketJobs).Get([]byte(jobID))
		if data == nil {
			return errs.ErrNotFound
		}
		return json.Unmarshal(data, &job)
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// LatestJob returns the most recently created job, or nil if the store
// is empty.
func (s *Store) LatestJob() (*model.Job, error) {
	var latest *model.Job
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketJobs).ForEach(func(k, v []byte) error {
			var job model.Job
			if err := json.Unmarshal(v, &job); err != nil {
				return err
			}
			if latest == nil || job.CreatedAt.After(latest.CreatedAt) {
				j := job
				latest = &j
			}
			return nil
		})
	})
	return latest, err
}

// JobsSince returns every job created at or after ts, oldest first.
func (s *Store) JobsSince(ts time.Time) ([]*model.Job, error) {
	var out []*model.Job
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketJobs).ForEach(func(k, v []byte) error {
			var job model.Job
			if err := json.Unmarshal(v, &job); err != nil {
				return err
			}
			if !job.CreatedAt.Before(ts) {
				j := job
				out = append(out, &j)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// resultKey orders rows for a job by insertion sequence: <jobID>\x00<seq>.
func resultKey(jobID string, seq uint64) []byte {
	key := make([]byte, len(jobID)+1+8)
	copy(key, jobID)
	key[len(jobID)] = 0
	binary.BigEndian.PutUint64(key[len(jobID)+1:], seq)
	return key
}

// AppendResult writes one command_results row for a job. Results for a
// job accumulate under a monotonically increasing per-store sequence
// number so ResultsForJob returns them in write order.
func (s *Store) AppendResult(result CommandResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result.RecordedAt = time.Now().UTC()
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketResults)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(result)
		if err != nil {
			return err
		}
		return b.Put(resultKey(result.JobID, seq), data)
	})
}

// ResultsForJob returns every command_results row for jobID, in the
// order they were appended.
func (s *Store) ResultsForJob(jobID string) ([]CommandResult, error) {
	prefix := append([]byte(jobID), 0)
	var out []CommandResult
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketResults).Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var r CommandResult
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			out = append(out, r)
		}
		return nil
	})
	return out, err
}

// PruneOlderThan deletes every terminal job (and its command_results
// rows) created before cutoff. Not called from anywhere in this
// module — pruning is an operator/cron concern (spec.md §3's
// "pruning is external"), so this is exposed for whatever external
// caller owns retention, not wired to a timer here.
func (s *Store) PruneOlderThan(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pruned []string
	err := s.db.Update(func(tx *bolt.Tx) error {
		jobs := tx.Bucket(bucketJobs)
		if err := jobs.ForEach(func(k, v []byte) error {
			var job model.Job
			if err := json.Unmarshal(v, &job); err != nil {
				return err
			}
			if isTerminal(job.Status) && job.CreatedAt.Before(cutoff) {
				pruned = append(pruned, job.ID)
			}
			return nil
		}); err != nil {
			return err
		}

		results := tx.Bucket(bucketResults)
		for _, jobID := range pruned {
			if err := jobs.Delete([]byte(jobID)); err != nil {
				return err
			}
			prefix := append([]byte(jobID), 0)
			c := results.Cursor()
			for k, _ := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, _ = c.Next() {
				if err := c.Delete(); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(pruned) > 0 {
		util.WithField("count", len(pruned)).Info("pruned terminal jobs older than cutoff")
	}
	return len(pruned), nil
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}
