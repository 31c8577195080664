package topology

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/newtron-network/newtron/pkg/orchestrator/artifact"
	"github.com/newtron-network/newtron/pkg/orchestrator/model"
	"github.com/newtron-network/newtron/pkg/util"
)

// Inventory supplies the authoritative set of recognised devices. The
// Topology Builder never discovers devices on its own — anything not
// named here is ignored even if artifacts exist for it.
type Inventory interface {
	Devices() ([]model.Device, error)
}

// Builder runs the eight-step OSPF topology reconstruction algorithm
// (spec.md §4.9) against an Artifact Store.
type Builder struct {
	Artifacts *artifact.Store
	Devices   Inventory
}

// New returns a Builder over the given collaborators.
func New(artifacts *artifact.Store, devices Inventory) *Builder {
	return &Builder{Artifacts: artifacts, Devices: devices}
}

type deviceData struct {
	device      model.Device
	routerID    string
	links       []routerLink
	interfaces  map[string]interfaceRow
	neighbors   []neighborRow
	hasAnyInput bool
}

// Build scans the Artifact Store for every recognised device's latest
// OSPF captures and reconstructs the router graph. It never aborts on
// a single unparseable or missing file — that device degrades to a
// node-only entry and the skip is recorded in metadata.
func (b *Builder) Build() (model.Snapshot, error) {
	devices, err := b.Devices.Devices()
	if err != nil {
		return model.Snapshot{}, err
	}

	data := make(map[string]*deviceData, len(devices))
	routerIDToDevice := make(map[string]string)
	networkAttached := make(map[string][]string)
	var skipped []string

	for _, device := range devices {
		dd := &deviceData{device: device, interfaces: map[string]interfaceRow{}}
		data[device.Name] = dd

		if text, ok := b.latestText(device.Name, model.KindOSPFDatabaseRouter); ok {
			dd.hasAnyInput = true
			routerID, links := parseRouterLSA(text)
			dd.routerID = routerID
			dd.links = links
			if routerID != "" {
				routerIDToDevice[routerID] = device.Name
			}
		}

		if text, ok := b.latestText(device.Name, model.KindOSPFDatabaseNetwork); ok {
			dd.hasAnyInput = true
			for dr, attached := range parseNetworkLSA(text) {
				networkAttached[dr] = append(networkAttached[dr], attached...)
			}
		}

		if text, ok := b.latestText(device.Name, model.KindOSPFInterface); ok {
			dd.hasAnyInput = true
			dd.interfaces = parseInterfaceBrief(text)
		}

		if text, ok := b.latestText(device.Name, model.KindOSPFNeighbor); ok {
			dd.hasAnyInput = true
			dd.neighbors = parseNeighbors(text)
		}

		if !dd.hasAnyInput {
			skipped = append(skipped, device.Name)
			util.WithDevice(device.ID).Warn("topology builder: no OSPF artifacts found, emitting node only")
		}
	}

	nodes := make([]model.Node, 0, len(devices))
	for _, device := range devices {
		nodes = append(nodes, model.Node{ID: device.Name, Country: device.Country, Platform: device.Platform})
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	links := b.emitLinks(data, routerIDToDevice, networkAttached)

	snapshot := model.Snapshot{
		Nodes: nodes,
		Links: links,
		Metadata: model.SnapshotMetadata{
			NodeCount:       len(nodes),
			LinkCount:       len(links),
			GeneratedAt:     time.Now().UTC(),
			DiscoveryMethod: "ospf",
			Sources:         []string{"router_lsa", "network_lsa", "interface", "neighbor"},
			SkippedDevices:  skipped,
		},
	}
	return snapshot, nil
}

func (b *Builder) latestText(deviceName string, kind model.CommandKind) (string, bool) {
	info, err := b.Artifacts.Latest(deviceName, kind)
	if err != nil || info == nil {
		return "", false
	}
	raw, err := b.Artifacts.Read(info.Path)
	if err != nil {
		util.WithDevice(deviceName).Warn("topology builder: reading artifact: " + err.Error())
		return "", false
	}
	return string(raw), true
}

// emitLinks implements spec.md §4.9 step 7: for every FULL adjacency,
// resolve the neighbor, pick a cost from the best available source,
// and emit a directed link keyed by (source, target, source_interface)
// so parallel links are never collapsed.
func (b *Builder) emitLinks(data map[string]*deviceData, routerIDToDevice map[string]string, networkAttached map[string][]string) []model.Link {
	var links []model.Link
	counters := make(map[string]int)

	names := make([]string, 0, len(data))
	for name := range data {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		dd := data[name]
		if dd.routerID == "" {
			continue
		}
		p2pCost, transitCost := indexRouterLinks(dd.links, networkAttached)

		for _, nr := range dd.neighbors {
			neighborDevice, ok := routerIDToDevice[nr.neighborID]
			if !ok {
				continue
			}

			cost, hasCost := p2pCost[nr.neighborID]
			if !hasCost {
				if localIP, ok := interfaceIP(dd.interfaces, nr.interf); ok {
					cost, hasCost = transitCost[localIP]
				}
			}
			if !hasCost {
				if row, ok := dd.interfaces[nr.interf]; ok {
					cost = row.cost
				} else {
					cost = 1
				}
			}

			targetInterface := peerInterfaceFor(data[neighborDevice], dd.routerID)

			key := name + "\x00" + neighborDevice + "\x00" + nr.interf
			counters[key]++
			id := fmt.Sprintf("%s->%s@%s#%d", name, neighborDevice, nr.interf, counters[key])

			links = append(links, model.Link{
				ID:              id,
				Source:          name,
				Target:          neighborDevice,
				Cost:            cost,
				SourceInterface: nr.interf,
				TargetInterface: targetInterface,
				Status:          "up",
			})
		}
	}

	sort.Slice(links, func(i, j int) bool { return links[i].ID < links[j].ID })
	return links
}

// indexRouterLinks builds quick lookup tables from a device's own
// Router LSA link tuples: point-to-point cost by neighbor router id,
// and transit cost by this device's own interface address on the
// segment (only kept when the Network LSA confirms the segment has
// more than one attached router, i.e. it is a real transit link).
func indexRouterLinks(links []routerLink, networkAttached map[string][]string) (p2p map[string]uint32, transit map[string]uint32) {
	p2p = make(map[string]uint32)
	transit = make(map[string]uint32)
	for _, l := range links {
		if !l.hasMetric {
			continue
		}
		if !l.transit {
			p2p[l.linkID] = l.tosMetric
			continue
		}
		if len(networkAttached[l.linkID]) < 2 {
			continue
		}
		if l.localAddress != "" {
			transit[l.localAddress] = l.tosMetric
		}
	}
	return p2p, transit
}

func interfaceIP(interfaces map[string]interfaceRow, name string) (string, bool) {
	row, ok := interfaces[name]
	if !ok {
		return "", false
	}
	ip := row.ip
	if idx := strings.IndexByte(ip, '/'); idx >= 0 {
		ip = ip[:idx]
	}
	return ip, true
}

// peerInterfaceFor looks up the local interface the peer device used
// for its own FULL adjacency back to selfRouterID, so target_interface
// can be resolved instead of left "unknown".
func peerInterfaceFor(peer *deviceData, selfRouterID string) string {
	if peer == nil {
		return "unknown"
	}
	for _, nr := range peer.neighbors {
		if nr.neighborID == selfRouterID {
			return nr.interf
		}
	}
	return "unknown"
}
