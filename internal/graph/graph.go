// Package graph holds the collaboration graph: roster members joined by co-authorship edges
// that carry the set of shared publications, plus non-member coauthors kept for context.
//
// The graph only grows. Every mutation goes through a single mutex, so parallel discovery
// workers can record into one graph.
package graph

import (
	"sort"
	"sync"

	"github.com/dport96/ISERN-Graph/internal/domain"
)

// Outcome describes what RecordCoauthorship did.
type Outcome int

const (
	// OutcomeAdded means the publication was new for the pair.
	OutcomeAdded Outcome = iota
	// OutcomeDuplicate means the pair already recorded this publication.
	OutcomeDuplicate
	// OutcomeSelfLoop means both sides were the same member; nothing was recorded.
	OutcomeSelfLoop
	// OutcomeUnknownMember means a side is not in the roster; nothing was recorded.
	OutcomeUnknownMember
	// OutcomeNoPublication means the publication ID was empty; nothing was recorded.
	OutcomeNoPublication
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeAdded:
		return "added"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeSelfLoop:
		return "self_loop"
	case OutcomeUnknownMember:
		return "unknown_member"
	case OutcomeNoPublication:
		return "no_publication"
	default:
		return "unknown"
	}
}

// Edge is a read-only snapshot of a collaboration edge. A < B always holds.
type Edge struct {
	A            domain.MemberID
	B            domain.MemberID
	Publications []domain.PublicationID
}

// Multiplicity is the number of distinct shared publications.
func (e Edge) Multiplicity() int {
	return len(e.Publications)
}

// ContextNode is a non-member coauthor seen alongside members.
type ContextNode struct {
	Key          string
	DisplayName  string
	Members      []domain.MemberID
	Publications int
}

type pair struct {
	a, b domain.MemberID
}

func orderedPair(x, y domain.MemberID) pair {
	if y < x {
		x, y = y, x
	}
	return pair{a: x, b: y}
}

type contextNode struct {
	display string
	members map[domain.MemberID]struct{}
	pubs    map[domain.PublicationID]struct{}
}

// Graph is an undirected co-authorship graph over a fixed roster.
type Graph struct {
	mu      sync.RWMutex
	roster  *domain.Roster
	edges   map[pair]map[domain.PublicationID]struct{}
	adj     map[domain.MemberID]map[domain.MemberID]struct{}
	context map[string]*contextNode
}

// New returns an empty graph whose nodes are the roster members.
func New(roster *domain.Roster) *Graph {
	return &Graph{
		roster:  roster,
		edges:   make(map[pair]map[domain.PublicationID]struct{}),
		adj:     make(map[domain.MemberID]map[domain.MemberID]struct{}),
		context: make(map[string]*contextNode),
	}
}

// Roster returns the roster the graph was built over.
func (g *Graph) Roster() *domain.Roster {
	return g.roster
}

// RecordCoauthorship upserts the edge between a and b with provenance pub. Recording the
// same publication for the same pair again, in either order, changes nothing.
func (g *Graph) RecordCoauthorship(a, b domain.MemberID, pub domain.PublicationID) Outcome {
	if pub == "" {
		return OutcomeNoPublication
	}
	if !g.roster.Contains(a) || !g.roster.Contains(b) {
		return OutcomeUnknownMember
	}
	if a == b {
		return OutcomeSelfLoop
	}

	key := orderedPair(a, b)

	g.mu.Lock()
	defer g.mu.Unlock()

	pubs, ok := g.edges[key]
	if !ok {
		pubs = make(map[domain.PublicationID]struct{})
		g.edges[key] = pubs
		g.link(key.a, key.b)
		g.link(key.b, key.a)
	}
	if _, dup := pubs[pub]; dup {
		return OutcomeDuplicate
	}
	pubs[pub] = struct{}{}
	return OutcomeAdded
}

func (g *Graph) link(from, to domain.MemberID) {
	set, ok := g.adj[from]
	if !ok {
		set = make(map[domain.MemberID]struct{})
		g.adj[from] = set
	}
	set[to] = struct{}{}
}

// RecordContextCoauthor notes that the non-member coauthor identified by key (a canonical
// name) appeared on pub with member. It returns true when the publication was new for that
// coauthor. Context nodes never take part in distance labeling.
func (g *Graph) RecordContextCoauthor(member domain.MemberID, key, display string, pub domain.PublicationID) bool {
	if key == "" || pub == "" || !g.roster.Contains(member) {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.context[key]
	if !ok {
		n = &contextNode{
			display: display,
			members: make(map[domain.MemberID]struct{}),
			pubs:    make(map[domain.PublicationID]struct{}),
		}
		g.context[key] = n
	}
	n.members[member] = struct{}{}
	if _, dup := n.pubs[pub]; dup {
		return false
	}
	n.pubs[pub] = struct{}{}
	return true
}

// MemberIDs returns every roster member, connected or not, in ascending order.
func (g *Graph) MemberIDs() []domain.MemberID {
	return g.roster.IDs()
}

// HasMember reports whether id is a member node.
func (g *Graph) HasMember(id domain.MemberID) bool {
	return g.roster.Contains(id)
}

// Neighbors returns the members sharing an edge with id, in ascending order.
func (g *Graph) Neighbors(id domain.MemberID) []domain.MemberID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	set := g.adj[id]
	out := make([]domain.MemberID, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	domain.SortMemberIDs(out)
	return out
}

// Degree returns the number of distinct collaborators of id.
func (g *Graph) Degree(id domain.MemberID) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.adj[id])
}

// EdgeCount returns the number of member-member edges.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}

// Edge returns the edge between a and b, in either order.
func (g *Graph) Edge(a, b domain.MemberID) (Edge, bool) {
	key := orderedPair(a, b)

	g.mu.RLock()
	defer g.mu.RUnlock()

	pubs, ok := g.edges[key]
	if !ok {
		return Edge{}, false
	}
	return snapshot(key, pubs), true
}

// Edges returns all edges ordered by (A, B).
func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	out := make([]Edge, 0, len(g.edges))
	for key, pubs := range g.edges {
		out = append(out, snapshot(key, pubs))
	}
	g.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})
	return out
}

func snapshot(key pair, pubs map[domain.PublicationID]struct{}) Edge {
	e := Edge{A: key.a, B: key.b, Publications: make([]domain.PublicationID, 0, len(pubs))}
	for p := range pubs {
		e.Publications = append(e.Publications, p)
	}
	sort.Slice(e.Publications, func(i, j int) bool { return e.Publications[i] < e.Publications[j] })
	return e
}

// ContextNodes returns the non-member coauthors ordered by key.
func (g *Graph) ContextNodes() []ContextNode {
	g.mu.RLock()
	out := make([]ContextNode, 0, len(g.context))
	for key, n := range g.context {
		c := ContextNode{
			Key:          key,
			DisplayName:  n.display,
			Publications: len(n.pubs),
			Members:      make([]domain.MemberID, 0, len(n.members)),
		}
		for m := range n.members {
			c.Members = append(c.Members, m)
		}
		domain.SortMemberIDs(c.Members)
		out = append(out, c)
	}
	g.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
