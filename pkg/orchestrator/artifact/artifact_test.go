package artifact

import (
	"strings"
	"testing"

	"github.com/newtron-network/newtron/pkg/orchestrator/model"
)

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"show ip ospf neighbor":        "show_ip_ospf_neighbor",
		"  show ip ospf database router  ": "show_ip_ospf_database_router",
		"show ip ospf interface brief": "show_ip_ospf_interface_brief",
	}
	for in, want := range cases {
		if got := Sanitize(in); got != want {
			t.Errorf("Sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestKindOf(t *testing.T) {
	cases := map[string]model.CommandKind{
		"show ip ospf neighbor":            model.KindOSPFNeighbor,
		"show ip ospf database router":     model.KindOSPFDatabaseRouter,
		"show ip ospf database network":    model.KindOSPFDatabaseNetwork,
		"show ip ospf interface brief":     model.KindOSPFInterface,
		"show running-config":              model.KindUnknown,
	}
	for in, want := range cases {
		if got := KindOf(in); got != want {
			t.Errorf("KindOf(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWriteThenListAndLatest(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if _, _, err := store.Write("r1", "show ip ospf neighbor", "Neighbor ID   Pri   State", map[string]string{"raw": "ok"}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	files, err := store.List(Filter{Device: "r1"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("List returned %d files, want 1", len(files))
	}
	if files[0].Device != "r1" {
		t.Errorf("Device = %q, want r1", files[0].Device)
	}

	latest, err := store.Latest("r1", model.KindOSPFNeighbor)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest == nil {
		t.Fatalf("Latest returned nil")
	}

	data, err := store.Read(latest.Path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !strings.Contains(string(data), "Neighbor ID") {
		t.Errorf("Read content missing expected text: %q", data)
	}
}

func TestLatestReturnsNilWhenNoArtifacts(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	latest, err := store.Latest("r1", model.KindOSPFNeighbor)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest != nil {
		t.Errorf("Latest = %+v, want nil", latest)
	}
}

func TestWriteNeverOverwrites(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	textPath, _, err := store.Write("r1", "show ip ospf neighbor", "one", nil)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := atomicWrite(textPath, []byte("two")); err == nil {
		t.Fatalf("atomicWrite over an existing artifact: want error, got nil")
	}
}
