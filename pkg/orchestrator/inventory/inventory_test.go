package inventory

import (
	"os"
	"path/filepath"
	"testing"
)

func writeInventory(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "devices.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

const validYAML = `
devices:
  - id: r1
    name: core-r1
    host: 10.0.0.1
    transport: ssh
    username: admin
    encrypted_password: cipher:abc
    country: US
    platform: ios
  - id: r2
    name: core-r2
    host: 10.0.0.2
    transport: telnet
    username: admin
    encrypted_password: cipher:def
`

func TestLoadParsesDevicesAndResolvesById(t *testing.T) {
	path := writeInventory(t, validYAML)
	inv, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	devices, err := inv.Devices()
	if err != nil {
		t.Fatalf("Devices: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("Devices() = %d entries, want 2", len(devices))
	}

	resolved, err := inv.Resolve([]string{"r1", "missing"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(resolved) != 1 {
		t.Errorf("Resolve returned %d entries, want 1 (missing id silently dropped)", len(resolved))
	}
	if resolved["r1"].Name != "core-r1" {
		t.Errorf("Resolve[r1].Name = %q, want core-r1", resolved["r1"].Name)
	}
}

func TestLoadRejectsDuplicateID(t *testing.T) {
	path := writeInventory(t, `
devices:
  - id: r1
    name: a
    host: 10.0.0.1
    username: admin
  - id: r1
    name: b
    host: 10.0.0.2
    username: admin
`)
	if _, err := Load(path); err == nil {
		t.Fatal("Load: want error on duplicate id, got nil")
	}
}

func TestLoadRejectsMissingRequiredField(t *testing.T) {
	path := writeInventory(t, `
devices:
  - id: r1
    name: a
    host: 10.0.0.1
`)
	if _, err := Load(path); err == nil {
		t.Fatal("Load: want error on missing username, got nil")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("Load: want error for missing file, got nil")
	}
}
