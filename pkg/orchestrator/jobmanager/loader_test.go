package jobmanager

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/newtron-network/newtron/pkg/orchestrator/model"
)

func writeBatchFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "job.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

func TestLoadBatchFileParsesAndDefaultsMode(t *testing.T) {
	path := writeBatchFile(t, `
device_ids: [r1, r2]
commands:
  - show ip ospf neighbor
batch_size: 5
devices_per_hour: 30
`)
	bf, err := LoadBatchFile(path)
	if err != nil {
		t.Fatalf("LoadBatchFile: %v", err)
	}
	if len(bf.DeviceIDs) != 2 || bf.BatchSize != 5 || bf.DevicesPerHour != 30 {
		t.Errorf("unexpected batch file contents: %+v", bf)
	}
	if bf.Mode() != model.ConnectionParallel {
		t.Errorf("Mode() = %q, want parallel default", bf.Mode())
	}
}

func TestLoadBatchFileRejectsEmptyDevices(t *testing.T) {
	path := writeBatchFile(t, `
device_ids: []
commands: ["show version"]
`)
	if _, err := LoadBatchFile(path); err == nil {
		t.Fatal("LoadBatchFile: want error for empty device_ids, got nil")
	}
}

func TestLoadBatchFileRejectsBadConnectionMode(t *testing.T) {
	path := writeBatchFile(t, `
device_ids: [r1]
commands: ["show version"]
connection_mode: turbo
`)
	if _, err := LoadBatchFile(path); err == nil {
		t.Fatal("LoadBatchFile: want error for invalid connection_mode, got nil")
	}
}

func TestLoadBatchFileMissingFile(t *testing.T) {
	if _, err := LoadBatchFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("LoadBatchFile: want error for missing file, got nil")
	}
}
