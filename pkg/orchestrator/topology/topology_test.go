package topology

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/newtron-network/newtron/pkg/orchestrator/artifact"
	"github.com/newtron-network/newtron/pkg/orchestrator/model"
)

const routerLSAr1 = `
            OSPF Router with ID (1.1.1.1) (Process ID 1)

                Router Link States (Area 0)

  LS age: 20
  Options: (No TOS-capability, DC)
  LS Type: Router Links
  Link State ID: 1.1.1.1
  Advertising Router: 1.1.1.1
  LS Seq Number: 80000005
  Length: 60
  Number of Links: 2

    Link connected to: a Transit Network
     (Link ID) Designated Router address: 10.0.0.1
     (Link Data) Router Interface address: 10.0.0.1
      Number of TOS metrics: 0
       TOS 0 Metrics: 10

    Link connected to: another Router (point-to-point)
     (Link ID) Neighboring Router ID: 2.2.2.2
     (Link Data) Router Interface address: 10.1.1.1
      Number of TOS metrics: 0
       TOS 0 Metrics: 64
`

const routerLSAr2 = `
            OSPF Router with ID (2.2.2.2) (Process ID 1)

                Router Link States (Area 0)

  Advertising Router: 2.2.2.2

    Link connected to: another Router (point-to-point)
     (Link ID) Neighboring Router ID: 1.1.1.1
     (Link Data) Router Interface address: 10.1.1.2
      Number of TOS metrics: 0
       TOS 0 Metrics: 64
`

const networkLSAr1 = `
            OSPF Router with ID (1.1.1.1) (Process ID 1)

                Net Link States (Area 0)

  Link State ID: 10.0.0.1 (address of Designated Router)
  Advertising Router: 1.1.1.1
  Network Mask: /24
        Attached Router: 1.1.1.1
        Attached Router: 3.3.3.3
`

const neighborR1 = `Neighbor ID     Pri   State           Dead Time   Address         Interface
3.3.3.3           1   FULL/DR         00:00:38    10.0.0.3        GigabitEthernet0/1
2.2.2.2           1   FULL/-         00:00:39    10.1.1.2        GigabitEthernet0/2
9.9.9.9           1   2WAY/DROTHER    00:00:39    10.0.0.9        GigabitEthernet0/3
`

const neighborR2 = `Neighbor ID     Pri   State           Dead Time   Address         Interface
1.1.1.1           1   FULL/-         00:00:39    10.1.1.1        GigabitEthernet0/1
`

const interfaceBriefR1 = `Interface    PID   Area            IP Address/Mask    Cost  State Nbrs F/C
Gi0/1        1     0               10.0.0.1/24        10    DR    1/1
Gi0/2        1     0               10.1.1.1/30        64    P2P   1/1
Mgmt0        1     0               10.255.0.1/24      1     DR    0/0
`

type fakeInventory struct {
	devices []model.Device
}

func (f fakeInventory) Devices() ([]model.Device, error) { return f.devices, nil }

func writeArtifact(t *testing.T, store *artifact.Store, device, command, text string) {
	t.Helper()
	if _, _, err := store.Write(device, command, text, map[string]string{"raw": text}); err != nil {
		t.Fatalf("artifact write for %s/%s: %v", device, command, err)
	}
}

func TestBuildEmitsP2PLinkWithResolvedCostAndSkipsUnresolvedNeighbor(t *testing.T) {
	store, err := artifact.Open(t.TempDir())
	if err != nil {
		t.Fatalf("artifact.Open: %v", err)
	}

	writeArtifact(t, store, "r1", "show ip ospf database router", routerLSAr1)
	writeArtifact(t, store, "r1", "show ip ospf database network", networkLSAr1)
	writeArtifact(t, store, "r1", "show ip ospf interface brief", interfaceBriefR1)
	writeArtifact(t, store, "r1", "show ip ospf neighbor", neighborR1)
	writeArtifact(t, store, "r2", "show ip ospf database router", routerLSAr2)
	writeArtifact(t, store, "r2", "show ip ospf neighbor", neighborR2)

	inventory := fakeInventory{devices: []model.Device{
		{ID: "d1", Name: "r1", Country: "US", Platform: model.PlatformIOS},
		{ID: "d2", Name: "r2", Country: "US", Platform: model.PlatformIOS},
		{ID: "d3", Name: "r3", Country: "US", Platform: model.PlatformIOS},
	}}

	builder := New(store, inventory)
	snapshot, err := builder.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if len(snapshot.Nodes) != 3 {
		t.Fatalf("Nodes = %d, want 3", len(snapshot.Nodes))
	}

	var p2p, unresolved *model.Link
	for i := range snapshot.Links {
		l := &snapshot.Links[i]
		if l.Source == "r1" && l.Target == "r2" {
			p2p = l
		}
		if l.Source == "r1" && l.Target == "r3" {
			unresolved = l
		}
	}

	if p2p == nil {
		t.Fatalf("expected a link r1->r2, links = %+v", snapshot.Links)
	}
	if p2p.Cost != 64 {
		t.Errorf("p2p link cost = %d, want 64 (from router LSA TOS0 metric)", p2p.Cost)
	}
	if p2p.SourceInterface != "GigabitEthernet0/2" {
		t.Errorf("SourceInterface = %q, want GigabitEthernet0/2", p2p.SourceInterface)
	}
	if p2p.TargetInterface != "GigabitEthernet0/1" {
		t.Errorf("TargetInterface = %q, want GigabitEthernet0/1 (resolved from r2's neighbor table)", p2p.TargetInterface)
	}

	if unresolved != nil {
		t.Errorf("link to r3 should have been skipped (no router id for r3), got %+v", unresolved)
	}

	if len(snapshot.Metadata.SkippedDevices) != 1 || snapshot.Metadata.SkippedDevices[0] != "r3" {
		t.Errorf("SkippedDevices = %v, want [r3]", snapshot.Metadata.SkippedDevices)
	}
}

func TestBuildDropsManagementInterfaceAdjacencies(t *testing.T) {
	neighborWithMgmt := `Neighbor ID     Pri   State           Dead Time   Address         Interface
2.2.2.2           1   FULL/-         00:00:39    10.255.0.2      Mgmt0
`
	store, err := artifact.Open(t.TempDir())
	if err != nil {
		t.Fatalf("artifact.Open: %v", err)
	}
	writeArtifact(t, store, "r1", "show ip ospf database router", routerLSAr1)
	writeArtifact(t, store, "r1", "show ip ospf neighbor", neighborWithMgmt)
	writeArtifact(t, store, "r2", "show ip ospf database router", routerLSAr2)

	inventory := fakeInventory{devices: []model.Device{
		{ID: "d1", Name: "r1"},
		{ID: "d2", Name: "r2"},
	}}

	snapshot, err := New(store, inventory).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for _, l := range snapshot.Links {
		if l.SourceInterface == "Mgmt0" {
			t.Errorf("management-interface adjacency was not dropped: %+v", l)
		}
	}
}

func TestBuildDegradesDeviceWithNoArtifactsToNodeOnly(t *testing.T) {
	store, err := artifact.Open(t.TempDir())
	if err != nil {
		t.Fatalf("artifact.Open: %v", err)
	}

	inventory := fakeInventory{devices: []model.Device{{ID: "d1", Name: "lonely"}}}
	snapshot, err := New(store, inventory).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(snapshot.Nodes) != 1 || len(snapshot.Links) != 0 {
		t.Errorf("snapshot = %+v, want one node and zero links", snapshot)
	}
	if len(snapshot.Metadata.SkippedDevices) != 1 {
		t.Errorf("SkippedDevices = %v, want [lonely]", snapshot.Metadata.SkippedDevices)
	}
}

func TestSaveThenLatestRoundTrips(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "topology.db"), dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if latest, err := store.Latest(); err != nil || latest != nil {
		t.Fatalf("Latest on empty store = %+v, %v, want nil, nil", latest, err)
	}

	snapshot := model.Snapshot{
		Nodes:    []model.Node{{ID: "r1"}},
		Metadata: model.SnapshotMetadata{NodeCount: 1, GeneratedAt: time.Now().UTC()},
	}
	if err := store.Save(snapshot); err != nil {
		t.Fatalf("Save: %v", err)
	}

	latest, err := store.Latest()
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest == nil || len(latest.Nodes) != 1 || latest.Nodes[0].ID != "r1" {
		t.Errorf("Latest = %+v, want the saved snapshot", latest)
	}
}
