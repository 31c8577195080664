package topology

import (
	"sort"

	"github.com/newtron-network/newtron/pkg/orchestrator/model"
)

// Delta is the result of comparing two topology snapshots: what nodes
// and links appeared, disappeared, or changed cost/status/target
// interface between
// them. Not named in spec.md's algorithm, but a natural extension of
// the topology store's UPSERT semantics — a caller polling Latest()
// wants to know what moved, not just the new total.
type Delta struct {
	AddedNodes   []model.Node `json:"added_nodes,omitempty"`
	RemovedNodes []model.Node `json:"removed_nodes,omitempty"`

	AddedLinks   []model.Link `json:"added_links,omitempty"`
	RemovedLinks []model.Link `json:"removed_links,omitempty"`
	ChangedLinks []LinkChange `json:"changed_links,omitempty"`
}

// LinkChange is one link present in both snapshots whose cost, status
// or target interface moved.
type LinkChange struct {
	Before model.Link `json:"before"`
	After  model.Link `json:"after"`
}

// Diff compares old against next, identifying nodes and links by their
// ID (links are already keyed by (source, target, source_interface)
// plus a parallel-link counter, so an ID match means the same physical
// adjacency). Empty is the zero Delta: nothing changed.
func Diff(old, next model.Snapshot) Delta {
	var d Delta

	oldNodes := make(map[string]model.Node, len(old.Nodes))
	for _, n := range old.Nodes {
		oldNodes[n.ID] = n
	}
	nextNodes := make(map[string]model.Node, len(next.Nodes))
	for _, n := range next.Nodes {
		nextNodes[n.ID] = n
	}
	for id, n := range nextNodes {
		if _, ok := oldNodes[id]; !ok {
			d.AddedNodes = append(d.AddedNodes, n)
		}
	}
	for id, n := range oldNodes {
		if _, ok := nextNodes[id]; !ok {
			d.RemovedNodes = append(d.RemovedNodes, n)
		}
	}

	oldLinks := make(map[string]model.Link, len(old.Links))
	for _, l := range old.Links {
		oldLinks[l.ID] = l
	}
	nextLinks := make(map[string]model.Link, len(next.Links))
	for _, l := range next.Links {
		nextLinks[l.ID] = l
	}
	for id, l := range nextLinks {
		before, ok := oldLinks[id]
		if !ok {
			d.AddedLinks = append(d.AddedLinks, l)
			continue
		}
		if before.Cost != l.Cost || before.Status != l.Status || before.TargetInterface != l.TargetInterface {
			d.ChangedLinks = append(d.ChangedLinks, LinkChange{Before: before, After: l})
		}
	}
	for id, l := range oldLinks {
		if _, ok := nextLinks[id]; !ok {
			d.RemovedLinks = append(d.RemovedLinks, l)
		}
	}

	sort.Slice(d.AddedNodes, func(i, j int) bool { return d.AddedNodes[i].ID < d.AddedNodes[j].ID })
	sort.Slice(d.RemovedNodes, func(i, j int) bool { return d.RemovedNodes[i].ID < d.RemovedNodes[j].ID })
	sort.Slice(d.AddedLinks, func(i, j int) bool { return d.AddedLinks[i].ID < d.AddedLinks[j].ID })
	sort.Slice(d.RemovedLinks, func(i, j int) bool { return d.RemovedLinks[i].ID < d.RemovedLinks[j].ID })
	sort.Slice(d.ChangedLinks, func(i, j int) bool { return d.ChangedLinks[i].After.ID < d.ChangedLinks[j].After.ID })

	return d
}

// Empty reports whether the delta carries no changes at all.
func (d Delta) Empty() bool {
	return len(d.AddedNodes) == 0 && len(d.RemovedNodes) == 0 &&
		len(d.AddedLinks) == 0 && len(d.RemovedLinks) == 0 && len(d.ChangedLinks) == 0
}
