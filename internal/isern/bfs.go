package isern

import (
	"github.com/dport96/ISERN-Graph/internal/domain"
)

// frontierItem pairs a member with its distance.
type frontierItem struct {
	id    domain.MemberID
	depth int
}

// walker holds the mutable multi-source BFS state.
type walker struct {
	view  View
	queue []frontierItem
	res   Labels
}

// ComputeLabels runs a multi-source breadth-first search from founders over the member
// nodes of g. Founder IDs that are not members are ignored, and an empty founder set leaves
// every member unreachable. Edge multiplicities play no part.
func ComputeLabels(g View, founders []domain.MemberID) Labels {
	members := g.MemberIDs()
	w := &walker{
		view:  g,
		queue: make([]frontierItem, 0, len(members)),
		res: Labels{
			labels: make(map[domain.MemberID]Label, len(members)),
			parent: make(map[domain.MemberID]domain.MemberID, len(members)),
			order:  append([]domain.MemberID(nil), members...),
		},
	}
	domain.SortMemberIDs(w.res.order)
	for _, id := range w.res.order {
		w.res.labels[id] = Unreachable
	}

	seeds := append([]domain.MemberID(nil), founders...)
	domain.SortMemberIDs(seeds)
	for _, f := range seeds {
		if !g.HasMember(f) || w.visited(f) {
			continue
		}
		w.enqueue(f, 0, "")
	}

	w.loop()
	return w.res
}

func (w *walker) visited(id domain.MemberID) bool {
	return w.res.labels[id].Reachable
}

// enqueue labels id at depth d; a labeled member is never relabeled.
func (w *walker) enqueue(id domain.MemberID, d int, parent domain.MemberID) {
	w.res.labels[id] = At(d)
	if parent != "" {
		w.res.parent[id] = parent
	}
	w.queue = append(w.queue, frontierItem{id: id, depth: d})
}

func (w *walker) loop() {
	for len(w.queue) > 0 {
		item := w.queue[0]
		w.queue = w.queue[1:]

		for _, nbr := range w.view.Neighbors(item.id) {
			if !w.view.HasMember(nbr) || w.visited(nbr) {
				continue
			}
			w.enqueue(nbr, item.depth+1, item.id)
		}
	}
}
