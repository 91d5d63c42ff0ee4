package domain

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the lifecycle of an analysis run.
// These values must match the database enum run_status.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// IsTerminal returns true if the status will not change again.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// DiscoverySummary counts what happened while building the graph.
type DiscoverySummary struct {
	MembersProcessed     int `json:"members_processed"`
	PublicationsSeen     int `json:"publications_seen"`
	PublicationsSkipped  int `json:"publications_skipped"`
	CoauthorNames        int `json:"coauthor_names"`
	Resolved             int `json:"resolved"`
	Unresolved           int `json:"unresolved"`
	Malformed            int `json:"malformed"`
	SelfMatches          int `json:"self_matches"`
	EdgesAdded           int `json:"edges_added"`
	DuplicateDiscoveries int `json:"duplicate_discoveries"`
	ContextCoauthors     int `json:"context_coauthors"`
	FetchErrors          int `json:"fetch_errors"`
}

// Add accumulates other into s.
func (s *DiscoverySummary) Add(other DiscoverySummary) {
	s.MembersProcessed += other.MembersProcessed
	s.PublicationsSeen += other.PublicationsSeen
	s.PublicationsSkipped += other.PublicationsSkipped
	s.CoauthorNames += other.CoauthorNames
	s.Resolved += other.Resolved
	s.Unresolved += other.Unresolved
	s.Malformed += other.Malformed
	s.SelfMatches += other.SelfMatches
	s.EdgesAdded += other.EdgesAdded
	s.DuplicateDiscoveries += other.DuplicateDiscoveries
	s.ContextCoauthors += other.ContextCoauthors
	s.FetchErrors += other.FetchErrors
}

// Centrality is a per-member centrality value.
type Centrality struct {
	MemberID MemberID `json:"member_id"`
	Value    float64  `json:"value"`
}

// NetworkSummary holds whole-graph statistics over member nodes.
type NetworkSummary struct {
	Nodes            int          `json:"nodes"`
	Edges            int          `json:"edges"`
	Density          float64      `json:"density"`
	Components       int          `json:"components"`
	LargestComponent int          `json:"largest_component"`
	Isolated         int          `json:"isolated"`
	MeanDegree       float64      `json:"mean_degree"`
	StdDevDegree     float64      `json:"stddev_degree"`
	TopDegree        []Centrality `json:"top_degree,omitempty"`
	TopBetweenness   []Centrality `json:"top_betweenness,omitempty"`
	TopCloseness     []Centrality `json:"top_closeness,omitempty"`
}

// RunMember is a member's state at the end of a run. A nil IsernNumber means unreachable.
type RunMember struct {
	MemberID    MemberID `json:"member_id"`
	DisplayName string   `json:"display_name"`
	Founder     bool     `json:"founder"`
	IsernNumber *int     `json:"isern_number"`
	Degree      int      `json:"degree"`
}

// RunEdge is a collaboration edge snapshot with A < B.
type RunEdge struct {
	A            MemberID        `json:"a"`
	B            MemberID        `json:"b"`
	Multiplicity int             `json:"multiplicity"`
	Publications []PublicationID `json:"publications"`
}

// RunContextNode is a non-member coauthor kept for context. It takes no part in ISERN
// numbers.
type RunContextNode struct {
	Key          string     `json:"key"`
	DisplayName  string     `json:"display_name"`
	Publications int        `json:"publications"`
	Members      []MemberID `json:"members"`
}

// Run is a persisted analysis run: the graph snapshot, its labels and summaries.
type Run struct {
	ID               uuid.UUID        `json:"id"`
	Status           RunStatus        `json:"status"`
	Threshold        float64          `json:"threshold"`
	Founders         []MemberID       `json:"founders"`
	Sources          []string         `json:"sources"`
	Summary          DiscoverySummary `json:"summary"`
	Network          NetworkSummary   `json:"network"`
	Members          []RunMember      `json:"members,omitempty"`
	Edges            []RunEdge        `json:"edges,omitempty"`
	ContextCoauthors []RunContextNode `json:"context_coauthors,omitempty"`
	ErrorMessage     string           `json:"error_message,omitempty"`
	StartedAt        time.Time        `json:"started_at"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
}

// Duration returns the wall time of a completed run, or zero.
func (r *Run) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}
