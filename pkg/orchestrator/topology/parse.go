// Package topology implements the Topology Builder (spec.md §4.9): it
// turns the latest OSPF command artifacts for every recognised device
// into a router graph. Parsing follows the teacher's line-oriented,
// regexp-per-field style (pkg/util/derive.go, pkg/newtest/steps.go)
// rather than a generic CLI-output grammar — there is no single wire
// format for "show" command text, so each command kind gets its own
// small parser built the same way the teacher parses ping/traceroute
// output.
package topology

import (
	"regexp"
	"strconv"
	"strings"
)

// routerLink is one link tuple parsed out of a Router LSA (spec.md §4.9
// step 3): link_id is the DR address for a transit network or the
// neighbor router id for a point-to-point link.
type routerLink struct {
	linkID       string
	transit      bool
	tosMetric    uint32
	hasMetric    bool
	localAddress string
}

var (
	transitLinkRe   = regexp.MustCompile(`(?i)Link connected to:\s*a Transit Network`)
	p2pLinkRe       = regexp.MustCompile(`(?i)Link connected to:\s*another Router`)
	drAddressRe     = regexp.MustCompile(`(?i)Designated Router address:\s*([0-9.]+)`)
	neighborIDRe    = regexp.MustCompile(`(?i)Neighboring Router ID:\s*([0-9.]+)`)
	linkDataRe      = regexp.MustCompile(`(?i)Router Interface address:\s*([0-9.]+)`)
	tos0MetricRe    = regexp.MustCompile(`(?i)TOS 0 Metrics?:\s*(\d+)`)
	advertisingRtrRe = regexp.MustCompile(`(?i)Advertising Router:\s*([0-9.]+)`)
	linkStateIDRe   = regexp.MustCompile(`(?i)Link State ID:\s*([0-9.]+)`)
	attachedRtrRe   = regexp.MustCompile(`(?i)Attached Router:\s*([0-9.]+)`)
)

// parseRouterLSA extracts this device's own Router ID (the first
// Advertising Router it self-originates) and its link tuples from a
// `show ip ospf database router` capture.
func parseRouterLSA(text string) (routerID string, links []routerLink) {
	lines := strings.Split(text, "\n")

	var current *routerLink
	flush := func() {
		if current != nil {
			links = append(links, *current)
			current = nil
		}
	}

	for _, line := range lines {
		if m := advertisingRtrRe.FindStringSubmatch(line); m != nil && routerID == "" {
			routerID = m[1]
		}
		if transitLinkRe.MatchString(line) {
			flush()
			current = &routerLink{transit: true}
			continue
		}
		if p2pLinkRe.MatchString(line) {
			flush()
			current = &routerLink{transit: false}
			continue
		}
		if current == nil {
			continue
		}
		if m := drAddressRe.FindStringSubmatch(line); m != nil {
			current.linkID = m[1]
		}
		if m := neighborIDRe.FindStringSubmatch(line); m != nil {
			current.linkID = m[1]
		}
		if m := linkDataRe.FindStringSubmatch(line); m != nil {
			current.localAddress = m[1]
		}
		if m := tos0MetricRe.FindStringSubmatch(line); m != nil {
			if v, err := strconv.ParseUint(m[1], 10, 32); err == nil {
				current.tosMetric = uint32(v)
				current.hasMetric = true
			}
		}
	}
	flush()
	return routerID, links
}

// parseNetworkLSA maps each transit segment's link_state_id (DR
// address) to the set of router ids attached to it (spec.md §4.9
// step 4), from a `show ip ospf database network` capture.
func parseNetworkLSA(text string) map[string][]string {
	out := make(map[string][]string)
	var currentDR string

	for _, line := range strings.Split(text, "\n") {
		if m := linkStateIDRe.FindStringSubmatch(line); m != nil {
			currentDR = m[1]
			if _, ok := out[currentDR]; !ok {
				out[currentDR] = nil
			}
			continue
		}
		if currentDR == "" {
			continue
		}
		if m := attachedRtrRe.FindStringSubmatch(line); m != nil {
			out[currentDR] = append(out[currentDR], m[1])
		}
	}
	return out
}

// interfaceRow is one row of `show ip ospf interface brief`.
type interfaceRow struct {
	name  string
	area  string
	ip    string
	cost  uint32
	state string
}

var interfaceBriefRowRe = regexp.MustCompile(`^(\S+)\s+\d+\s+(\S+)\s+(\S+)\s+(\d+)\s+(\S+)`)

// parseInterfaceBrief builds the per-interface fallback table (spec.md
// §4.9 step 5): interface name → {area, ip, cost, state}. The header
// row and any line that doesn't look like a data row are skipped.
func parseInterfaceBrief(text string) map[string]interfaceRow {
	out := make(map[string]interfaceRow)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.HasPrefix(strings.TrimSpace(line), "Interface") {
			continue
		}
		m := interfaceBriefRowRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		cost, err := strconv.ParseUint(m[4], 10, 32)
		if err != nil {
			continue
		}
		out[m[1]] = interfaceRow{name: m[1], area: m[2], ip: m[3], cost: uint32(cost), state: m[5]}
	}
	return out
}

// neighborRow is one FULL-state adjacency from `show ip ospf neighbor`.
type neighborRow struct {
	neighborID string
	state      string
	interf     string
}

var neighborRowRe = regexp.MustCompile(`^(\S+)\s+\d+\s+(\S+)\s+\S+\s+\S+\s+(\S+)\s*$`)

var managementPatterns = []string{"mgmt", "management", "ma0"}

func isManagementInterface(name string) bool {
	lower := strings.ToLower(name)
	for _, p := range managementPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// parseNeighbors extracts FULL-state adjacencies from a `show ip ospf
// neighbor` capture, dropping management-interface adjacencies per
// spec.md §4.9 step 6.
func parseNeighbors(text string) []neighborRow {
	var out []neighborRow
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.HasPrefix(strings.TrimSpace(line), "Neighbor") {
			continue
		}
		m := neighborRowRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		state := strings.ToUpper(strings.SplitN(m[2], "/", 2)[0])
		if state != "FULL" {
			continue
		}
		iface := m[3]
		if isManagementInterface(iface) {
			continue
		}
		out = append(out, neighborRow{neighborID: m[1], state: state, interf: iface})
	}
	return out
}
