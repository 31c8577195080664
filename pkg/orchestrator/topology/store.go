package topology

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/newtron-network/newtron/pkg/orchestrator/errs"
	"github.com/newtron-network/newtron/pkg/orchestrator/model"
)

const snapshotDirName = "topology_snapshots"

var bucketLatest = []byte("latest_snapshot")

var latestKey = []byte("latest")

// Store persists topology generations: one JSON file per generation
// under <data_root>/topology_snapshots/ (spec.md §6 filesystem layout),
// plus a bbolt-backed copy of the most recent one, under a single key,
// for fast reads.
type Store struct {
	db   *bolt.DB
	root string
}

// Open creates the snapshot directory under root and opens the bbolt
// side-index at dbPath.
func Open(dbPath, root string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(root, snapshotDirName), 0o750); err != nil {
		return nil, errs.NewStorage(root, err.Error())
	}
	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errs.NewStorage(dbPath, err.Error())
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketLatest)
		return err
	}); err != nil {
		db.Close()
		return nil, errs.NewStorage(dbPath, err.Error())
	}
	return &Store{db: db, root: root}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Save writes snapshot as a timestamped JSON file (never overwritten)
// and upserts it as the latest generation.
func (s *Store) Save(snapshot model.Snapshot) error {
	stamp := snapshot.Metadata.GeneratedAt.Format("2006-01-02_15-04-05")
	path := filepath.Join(s.root, snapshotDirName, stamp+".json")

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return errs.NewStorage(path, "marshaling snapshot: "+err.Error())
	}
	data = append(data, '\n')

	if err := writeOnce(path, data); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketLatest).Put(latestKey, data)
	})
}

// Latest returns the most recently saved snapshot, or nil if none has
// been generated yet.
func (s *Store) Latest() (*model.Snapshot, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketLatest).Get(latestKey)
		if v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	var snapshot model.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, errs.NewStorage("latest_snapshot", err.Error())
	}
	return &snapshot, nil
}

// writeOnce follows the same temp-file-then-rename idiom as the
// Artifact Store: never overwrite an existing path.
func writeOnce(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return errs.NewStorage(path, err.Error())
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errs.NewStorage(path, err.Error())
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errs.NewStorage(path, err.Error())
	}
	if _, err := os.Stat(path); err == nil {
		os.Remove(tmpPath)
		return errs.NewStorage(path, "snapshot already exists, refusing to overwrite")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errs.NewStorage(path, err.Error())
	}
	return nil
}
