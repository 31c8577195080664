// Package artifact implements the Artifact Store (spec.md §4.3): the
// paired text+json per-command output files the Command Executor writes
// and the Topology Builder later reads back. Writes follow the teacher's
// spec.loader.SaveNetwork idiom (temp file + rename in the same
// directory, never overwrite).
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/newtron-network/newtron/pkg/orchestrator/errs"
	"github.com/newtron-network/newtron/pkg/orchestrator/model"
)

const (
	textDirName = "TEXT"
	jsonDirName = "JSON"
	dirMode     = 0o750
	timeLayout  = "2006-01-02_15-04-05"
)

// Store roots the two artifact trees at a single data directory.
type Store struct {
	root string
}

// Open ensures the TEXT/ and JSON/ subdirectories exist under root.
func Open(root string) (*Store, error) {
	for _, sub := range []string{textDirName, jsonDirName} {
		if err := os.MkdirAll(filepath.Join(root, sub), dirMode); err != nil {
			return nil, errs.NewStorage(root, err.Error())
		}
	}
	return &Store{root: root}, nil
}

var nonWord = regexp.MustCompile(`\W+`)

// Sanitize turns a raw command into the filename-safe token used in
// both the artifact path and kind classification (spec.md §4: lowercase,
// spaces to underscore, non-word characters stripped).
func Sanitize(command string) string {
	s := strings.ToLower(strings.TrimSpace(command))
	s = strings.ReplaceAll(s, " ", "_")
	s = nonWord.ReplaceAllString(s, "")
	return s
}

// commandKinds maps a sanitized command to the CommandKind the Topology
// Builder needs to pick a parser. Matching is by prefix since operators
// may append options ("show ip ospf neighbor detail").
var commandKinds = []struct {
	prefix string
	kind   model.CommandKind
}{
	{"show_ip_ospf_neighbor", model.KindOSPFNeighbor},
	{"show_ospf_neighbor", model.KindOSPFNeighbor},
	{"show_ip_ospf_database_router", model.KindOSPFDatabaseRouter},
	{"show_ospf_database_router", model.KindOSPFDatabaseRouter},
	{"show_ip_ospf_database_network", model.KindOSPFDatabaseNetwork},
	{"show_ospf_database_network", model.KindOSPFDatabaseNetwork},
	{"show_ip_ospf_interface", model.KindOSPFInterface},
	{"show_ospf_interface", model.KindOSPFInterface},
}

// KindOf classifies a raw (unsanitized) command string.
func KindOf(command string) model.CommandKind {
	sanitized := Sanitize(command)
	for _, c := range commandKinds {
		if strings.HasPrefix(sanitized, c.prefix) {
			return c.kind
		}
	}
	return model.KindUnknown
}

// Write persists one command's text and JSON output under matching
// timestamped filenames. jsonPayload is marshaled as-is; callers build
// whatever structured envelope they want archived alongside the raw text.
func (s *Store) Write(deviceName, command, text string, jsonPayload any) (textPath, jsonPath string, err error) {
	stamp := time.Now().UTC().Format(timeLayout)
	base := fmt.Sprintf("%s_%s_%s", deviceName, Sanitize(command), stamp)

	textPath = filepath.Join(s.root, textDirName, base+".txt")
	if err := atomicWrite(textPath, []byte(text)); err != nil {
		return "", "", err
	}

	data, merr := json.MarshalIndent(jsonPayload, "", "  ")
	if merr != nil {
		return "", "", errs.NewStorage(s.root, "marshaling json artifact: "+merr.Error())
	}
	data = append(data, '\n')

	jsonPath = filepath.Join(s.root, jsonDirName, base+".json")
	if err := atomicWrite(jsonPath, data); err != nil {
		return "", "", err
	}

	return textPath, jsonPath, nil
}

// atomicWrite follows the teacher's temp-file-then-rename idiom: the
// temp file lives in the destination's own directory so the rename is
// guaranteed to be on the same filesystem.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".artifact-*.tmp")
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
		return errs.NewStorage(path, "artifact already exists, refusing to overwrite")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errs.NewStorage(path, err.Error())
	}
	return nil
}

// Filter narrows List to a subset of artifact files.
type Filter struct {
	Device string // exact device name, empty for any
	Kind   model.CommandKind
}

// List returns every text-artifact FileInfo matching filter, newest
// first.
func (s *Store) List(filter Filter) ([]model.FileInfo, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, textDirName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.NewStorage(s.root, err.Error())
	}

	var out []model.FileInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, ok := parseFileName(e.Name())
		if !ok {
			continue
		}
		if filter.Device != "" && info.Device != filter.Device {
			continue
		}
		if filter.Kind != "" && KindOf(info.Command) != filter.Kind {
			continue
		}

		fi, statErr := e.Info()
		if statErr != nil {
			continue
		}
		info.Path = filepath.Join(s.root, textDirName, e.Name())
		info.Size = fi.Size()
		out = append(out, info)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

// Latest returns the newest artifact for (deviceName, kind), or nil if
// none exists — the Topology Builder's per-device, per-kind source of
// truth (spec.md §4: "the latest per (device, command) is authoritative").
func (s *Store) Latest(deviceName string, kind model.CommandKind) (*model.FileInfo, error) {
	files, err := s.List(Filter{Device: deviceName, Kind: kind})
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, nil
	}
	return &files[0], nil
}

// Read returns an artifact file's raw bytes.
func (s *Store) Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.NewStorage(path, err.Error())
	}
	return data, nil
}

// fileNamePattern captures {device}_{command}_{timestamp}.txt. The
// command segment is itself underscore-joined, so the timestamp (always
// exactly yyyy-mm-dd_HH-MM-SS) anchors the split from the right, and the
// device group is non-greedy: it ends at the first underscore, since
// device names contain none.
var fileNamePattern = regexp.MustCompile(`^(.+?)_([a-z0-9_]+)_(\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2})\.txt$`)

func parseFileName(name string) (model.FileInfo, bool) {
	m := fileNamePattern.FindStringSubmatch(name)
	if m == nil {
		return model.FileInfo{}, false
	}
	ts, err := time.Parse(timeLayout, m[3])
	if err != nil {
		return model.FileInfo{}, false
	}
	return model.FileInfo{
		Device:    m[1],
		Command:   m[2],
		Kind:      model.FileKindText,
		Timestamp: ts,
	}, true
}
