// Package network computes whole-graph statistics over the member nodes of a collaboration
// graph using gonum's graph algorithms.
package network

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	gonumgraph "gonum.org/v1/gonum/graph"
	gonumnet "gonum.org/v1/gonum/graph/network"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	"gonum.org/v1/gonum/stat"

	"github.com/dport96/ISERN-Graph/internal/domain"
)

// View is the read access the analysis needs. *graph.Graph implements it.
type View interface {
	MemberIDs() []domain.MemberID
	Neighbors(id domain.MemberID) []domain.MemberID
}

// DefaultTopK is the number of members reported per centrality ranking.
const DefaultTopK = 10

// indexed is a gonum copy of the member graph with a stable ID mapping.
type indexed struct {
	g   *simple.UndirectedGraph
	ids []domain.MemberID
	idx map[domain.MemberID]int64
}

func build(v View) *indexed {
	ids := v.MemberIDs()
	domain.SortMemberIDs(ids)

	ix := &indexed{
		g:   simple.NewUndirectedGraph(),
		ids: ids,
		idx: make(map[domain.MemberID]int64, len(ids)),
	}
	for i, id := range ids {
		ix.idx[id] = int64(i)
		ix.g.AddNode(simple.Node(i))
	}
	for _, id := range ids {
		from := ix.idx[id]
		for _, nbr := range v.Neighbors(id) {
			to, ok := ix.idx[nbr]
			if !ok || to <= from {
				continue
			}
			ix.g.SetEdge(ix.g.NewEdge(simple.Node(from), simple.Node(to)))
		}
	}
	return ix
}

// Analyze summarizes v. topK bounds the centrality rankings; zero or less uses DefaultTopK.
func Analyze(v View, topK int) domain.NetworkSummary {
	if topK <= 0 {
		topK = DefaultTopK
	}
	ix := build(v)

	n := len(ix.ids)
	e := ix.g.Edges().Len()
	s := domain.NetworkSummary{Nodes: n, Edges: e}
	if n > 1 {
		s.Density = 2 * float64(e) / float64(n*(n-1))
	}

	comps := ix.components()
	s.Components = len(comps)
	if len(comps) > 0 {
		s.LargestComponent = len(comps[0])
	}

	degrees := make([]float64, n)
	degreeRank := make([]domain.Centrality, 0, n)
	for i, id := range ix.ids {
		d := ix.g.From(int64(i)).Len()
		degrees[i] = float64(d)
		if d == 0 {
			s.Isolated++
			continue
		}
		degreeRank = append(degreeRank, domain.Centrality{MemberID: id, Value: float64(d)})
	}
	if n > 0 {
		s.MeanDegree = stat.Mean(degrees, nil)
	}
	if n > 1 {
		s.StdDevDegree = stat.StdDev(degrees, nil)
	}
	s.TopDegree = top(degreeRank, topK)

	betweenness := make([]domain.Centrality, 0, n)
	for id, val := range gonumnet.Betweenness(ix.g) {
		if val <= 0 || math.IsNaN(val) {
			continue
		}
		betweenness = append(betweenness, domain.Centrality{MemberID: ix.ids[id], Value: val})
	}
	s.TopBetweenness = top(betweenness, topK)
	s.TopCloseness = top(ix.closeness(), topK)

	return s
}

// closeness scores each non-isolated member by its closeness within its own component,
// scaled by the share of the graph that component covers (Wasserman-Faust), so members
// of a small island do not outrank the core.
func (ix *indexed) closeness() []domain.Centrality {
	n := len(ix.ids)
	if n < 2 {
		return nil
	}
	out := make([]domain.Centrality, 0, n)
	for _, comp := range topo.ConnectedComponents(ix.g) {
		c := len(comp)
		if c < 2 {
			continue
		}
		sub := simple.NewUndirectedGraph()
		for _, node := range comp {
			sub.AddNode(node)
		}
		for _, node := range comp {
			nbrs := ix.g.From(node.ID())
			for nbrs.Next() {
				if to := nbrs.Node(); to.ID() > node.ID() {
					sub.SetEdge(sub.NewEdge(node, to))
				}
			}
		}
		scale := float64(c-1) * float64(c-1) / float64(n-1)
		for id, val := range gonumnet.Closeness(sub, path.DijkstraAllPaths(sub)) {
			val *= scale
			if val <= 0 || math.IsNaN(val) || math.IsInf(val, 0) {
				continue
			}
			out = append(out, domain.Centrality{MemberID: ix.ids[id], Value: val})
		}
	}
	return out
}

// Components returns the connected components of the member graph, largest first, each
// sorted by ID. Ties in size are ordered by their first member.
func Components(v View) [][]domain.MemberID {
	return build(v).components()
}

func (ix *indexed) components() [][]domain.MemberID {
	raw := topo.ConnectedComponents(ix.g)
	out := make([][]domain.MemberID, 0, len(raw))
	for _, comp := range raw {
		out = append(out, ix.members(comp))
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i][0] < out[j][0]
	})
	return out
}

func (ix *indexed) members(nodes []gonumgraph.Node) []domain.MemberID {
	out := make([]domain.MemberID, len(nodes))
	for i, n := range nodes {
		out[i] = ix.ids[n.ID()]
	}
	domain.SortMemberIDs(out)
	return out
}

// DegreeDistribution returns how many members have each degree, as parallel slices sorted
// by degree, together with the fraction of members at each degree.
func DegreeDistribution(v View) (degrees []int, counts []int, fractions []float64) {
	ix := build(v)
	hist := make(map[int]int)
	for i := range ix.ids {
		hist[ix.g.From(int64(i)).Len()]++
	}
	for d := range hist {
		degrees = append(degrees, d)
	}
	sort.Ints(degrees)

	raw := make([]float64, len(degrees))
	for i, d := range degrees {
		counts = append(counts, hist[d])
		raw[i] = float64(hist[d])
	}
	if total := floats.Sum(raw); total > 0 {
		floats.Scale(1/total, raw)
	}
	return degrees, counts, raw
}

func top(in []domain.Centrality, k int) []domain.Centrality {
	sort.Slice(in, func(i, j int) bool {
		if in[i].Value != in[j].Value {
			return in[i].Value > in[j].Value
		}
		return in[i].MemberID < in[j].MemberID
	})
	if len(in) > k {
		in = in[:k]
	}
	if len(in) == 0 {
		return nil
	}
	return in
}
