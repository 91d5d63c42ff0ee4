package httpserver

import (
	"sort"
	"strconv"
	"time"

	"github.com/dport96/ISERN-Graph/internal/domain"
)

// Run response types for JSON serialization.

type runSummaryResponse struct {
	RunID        string     `json:"run_id"`
	Status       string     `json:"status"`
	Threshold    float64    `json:"threshold"`
	Founders     []string   `json:"founders"`
	Sources      []string   `json:"sources"`
	ErrorMessage string     `json:"error_message,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Duration     string     `json:"duration,omitempty"`
}

type runDetailResponse struct {
	runSummaryResponse
	Discovery   domain.DiscoverySummary `json:"discovery"`
	Network     domain.NetworkSummary   `json:"network"`
	Members     int                     `json:"members"`
	Reachable   int                     `json:"reachable"`
	Unreachable int                     `json:"unreachable"`

	ContextCoauthors []domain.RunContextNode `json:"context_coauthors"`
}

type startRunResponse struct {
	RunID     string    `json:"run_id"`
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Message   string    `json:"message"`
}

type listRunsResponse struct {
	Runs          []runSummaryResponse `json:"runs"`
	NextPageToken string               `json:"next_page_token,omitempty"`
	TotalCount    int                  `json:"total_count"`
}

type labelsResponse struct {
	RunID     string             `json:"run_id"`
	Members   []domain.RunMember `json:"members"`
	Histogram map[string]int     `json:"histogram"`
}

type edgesResponse struct {
	RunID      string           `json:"run_id"`
	Edges      []domain.RunEdge `json:"edges"`
	TotalCount int              `json:"total_count"`
}

type rosterMemberResponse struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"display_name"`
	Founder     bool     `json:"founder"`
	Aliases     []string `json:"aliases,omitempty"`
	Affiliation string   `json:"affiliation,omitempty"`
}

type rosterResponse struct {
	Members    []rosterMemberResponse `json:"members"`
	Founders   []string               `json:"founders"`
	TotalCount int                    `json:"total_count"`
}

// Converter functions

func domainRunToSummary(r *domain.Run) runSummaryResponse {
	resp := runSummaryResponse{
		RunID:        r.ID.String(),
		Status:       string(r.Status),
		Threshold:    r.Threshold,
		Founders:     memberIDStrings(r.Founders),
		Sources:      r.Sources,
		ErrorMessage: r.ErrorMessage,
		StartedAt:    r.StartedAt,
		CompletedAt:  r.CompletedAt,
	}
	if resp.Sources == nil {
		resp.Sources = []string{}
	}
	if d := r.Duration(); d > 0 {
		resp.Duration = d.String()
	}
	return resp
}

func domainRunToDetail(r *domain.Run) runDetailResponse {
	resp := runDetailResponse{
		runSummaryResponse: domainRunToSummary(r),
		Discovery:          r.Summary,
		Network:            r.Network,
		Members:            len(r.Members),
		ContextCoauthors:   r.ContextCoauthors,
	}
	if resp.ContextCoauthors == nil {
		resp.ContextCoauthors = []domain.RunContextNode{}
	}
	for _, m := range r.Members {
		if m.IsernNumber != nil {
			resp.Reachable++
		} else {
			resp.Unreachable++
		}
	}
	return resp
}

// domainRunToLabels orders members by ISERN number, unreachable last, then by ID.
func domainRunToLabels(r *domain.Run) labelsResponse {
	members := append([]domain.RunMember(nil), r.Members...)
	sort.SliceStable(members, func(i, j int) bool {
		a, b := members[i].IsernNumber, members[j].IsernNumber
		switch {
		case a != nil && b != nil && *a != *b:
			return *a < *b
		case (a == nil) != (b == nil):
			return a != nil
		}
		return members[i].MemberID < members[j].MemberID
	})

	hist := make(map[string]int)
	for _, m := range members {
		if m.IsernNumber == nil {
			hist["unreachable"]++
			continue
		}
		hist[strconv.Itoa(*m.IsernNumber)]++
	}
	return labelsResponse{RunID: r.ID.String(), Members: members, Histogram: hist}
}

func domainRosterToResponse(r *domain.Roster) rosterResponse {
	members := r.Members()
	resp := rosterResponse{
		Members:    make([]rosterMemberResponse, len(members)),
		Founders:   memberIDStrings(r.Founders()),
		TotalCount: len(members),
	}
	for i, m := range members {
		resp.Members[i] = rosterMemberResponse{
			ID:          string(m.ID),
			DisplayName: m.DisplayName,
			Founder:     m.Founder,
			Aliases:     m.Aliases,
			Affiliation: m.Affiliation,
		}
	}
	return resp
}

func memberIDStrings(ids []domain.MemberID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
