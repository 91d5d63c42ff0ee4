// Package matching turns pairwise similarity into same-person decisions: it ranks candidates
// for a query name, applies an acceptance threshold and breaks ties deterministically.
package matching

import (
	"math"
	"sort"

	"github.com/dport96/ISERN-Graph/internal/domain"
	"github.com/dport96/ISERN-Graph/internal/names"
	"github.com/dport96/ISERN-Graph/internal/similarity"
)

// Scorer computes a pairwise similarity. *similarity.Engine implements it.
type Scorer interface {
	Score(a, b names.Name) similarity.Score
}

// Candidate is one scored candidate name.
type Candidate struct {
	// Index is the candidate's position in the slice passed to Rank.
	Index    int              `json:"index"`
	Name     names.Name       `json:"name"`
	Score    similarity.Score `json:"score"`
	Accepted bool             `json:"accepted"`
}

// Result holds the candidates for one query, best first.
type Result struct {
	Query      names.Name  `json:"query"`
	Threshold  float64     `json:"threshold"`
	Candidates []Candidate `json:"candidates"`
}

// Best returns the top accepted candidate.
func (r Result) Best() (Candidate, bool) {
	for _, c := range r.Candidates {
		if c.Accepted {
			return c, true
		}
	}
	return Candidate{}, false
}

// AcceptedCount returns the number of candidates at or above the threshold.
func (r Result) AcceptedCount() int {
	n := 0
	for _, c := range r.Candidates {
		if c.Accepted {
			n++
		}
	}
	return n
}

// Engine makes threshold decisions on top of a Scorer. It holds no threshold of its own;
// every call supplies one.
type Engine struct {
	scorer Scorer
}

// NewEngine returns an Engine using scorer.
func NewEngine(scorer Scorer) *Engine {
	return &Engine{scorer: scorer}
}

// ValidateThreshold rejects thresholds that are NaN or outside [0,1].
func ValidateThreshold(threshold float64) error {
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return domain.NewConfigurationError("threshold", threshold, "must be within [0,1]")
	}
	return nil
}

// Score returns the pairwise score used by every decision in this package.
func (e *Engine) Score(a, b names.Name) similarity.Score {
	return e.scorer.Score(a, b)
}

// Rank scores every candidate against query and returns all of them sorted best first, each
// flagged Accepted when its fused score meets threshold.
//
// Ordering: fused score descending, then candidates whose token count equals the query's,
// then canonical form ascending, then input position.
func (e *Engine) Rank(query names.Name, candidates []names.Name, threshold float64) (Result, error) {
	if err := ValidateThreshold(threshold); err != nil {
		return Result{}, err
	}

	res := Result{
		Query:      query,
		Threshold:  threshold,
		Candidates: make([]Candidate, 0, len(candidates)),
	}
	for i, c := range candidates {
		s := e.scorer.Score(query, c)
		res.Candidates = append(res.Candidates, Candidate{
			Index:    i,
			Name:     c,
			Score:    s,
			Accepted: s.Fused >= threshold,
		})
	}

	want := len(query.Tokens)
	sort.SliceStable(res.Candidates, func(i, j int) bool {
		a, b := res.Candidates[i], res.Candidates[j]
		if a.Score.Fused != b.Score.Fused {
			return a.Score.Fused > b.Score.Fused
		}
		aLen, bLen := len(a.Name.Tokens) == want, len(b.Name.Tokens) == want
		if aLen != bLen {
			return aLen
		}
		if a.Name.Canonical != b.Name.Canonical {
			return a.Name.Canonical < b.Name.Canonical
		}
		return a.Index < b.Index
	})
	return res, nil
}

// FindBestMatches is Rank restricted to accepted candidates. An empty candidate list yields
// an empty result.
func (e *Engine) FindBestMatches(query names.Name, candidates []names.Name, threshold float64) (Result, error) {
	res, err := e.Rank(query, candidates, threshold)
	if err != nil {
		return Result{}, err
	}
	accepted := res.Candidates[:0]
	for _, c := range res.Candidates {
		if c.Accepted {
			accepted = append(accepted, c)
		}
	}
	res.Candidates = accepted
	return res, nil
}

// IsLikelySamePerson reports whether the fused score of a and b meets threshold.
func (e *Engine) IsLikelySamePerson(a, b names.Name, threshold float64) (bool, error) {
	if err := ValidateThreshold(threshold); err != nil {
		return false, err
	}
	return e.scorer.Score(a, b).Fused >= threshold, nil
}

// Match is a pairwise score that may have been reached through a variant form.
type Match struct {
	Score similarity.Score `json:"score"`

	// Derived is set when the score compares a variant of one side (names.Variants) with
	// the other side as written.
	Derived bool `json:"derived,omitempty"`
}

// beats orders matches by fused score, then prefers a direct comparison over a derived one.
func (m Match) beats(o Match) bool {
	if m.Score.Fused != o.Score.Fused {
		return m.Score.Fused > o.Score.Fused
	}
	return !m.Derived && o.Derived
}

// BestMatch compares a with b as written, and each with the variants of the other. Only
// one side is ever rewritten, so two full names never meet as "F. Last" abbreviations.
func (e *Engine) BestMatch(a, b names.Name) Match {
	return e.bestMatch(a, names.Variants(a), b, names.Variants(b))
}

func (e *Engine) bestMatch(a names.Name, aVars []names.Name, b names.Name, bVars []names.Name) Match {
	best := Match{Score: e.scorer.Score(a, b)}
	if best.Score.Exact {
		return best
	}
	for _, v := range bVars {
		if m := (Match{Score: e.scorer.Score(a, v), Derived: true}); m.beats(best) {
			best = m
		}
	}
	for _, v := range aVars {
		if m := (Match{Score: e.scorer.Score(v, b), Derived: true}); m.beats(best) {
			best = m
		}
	}
	return best
}

// SameAuthor reports whether a and b name the same person once middle names, initials and
// name order are allowed to differ. Unlike IsLikelySamePerson it uses BestMatch.
func (e *Engine) SameAuthor(a, b names.Name, threshold float64) (bool, error) {
	if err := ValidateThreshold(threshold); err != nil {
		return false, err
	}
	return e.BestMatch(a, b).Score.Fused >= threshold, nil
}
