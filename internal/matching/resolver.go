package matching

import (
	"github.com/dport96/ISERN-Graph/internal/domain"
	"github.com/dport96/ISERN-Graph/internal/names"
)

// Status classifies the outcome of resolving one coauthor string.
type Status string

const (
	StatusResolved   Status = "resolved"
	StatusUnresolved Status = "unresolved"
	StatusMalformed  Status = "malformed"
)

// Resolution is the roster member a raw coauthor string maps to, if any.
type Resolution struct {
	Raw      string          `json:"raw"`
	Name     names.Name      `json:"name"`
	Status   Status          `json:"status"`
	MemberID domain.MemberID `json:"member_id,omitempty"`
	Score    float64         `json:"score"`

	// Derived is set when the winning score needed a variant form: a dropped middle name,
	// abbreviated given names or surname-first order.
	Derived bool `json:"derived,omitempty"`

	// Ambiguous is set when a different member tied the winning match.
	Ambiguous bool `json:"ambiguous,omitempty"`
}

type rosterForm struct {
	name     names.Name
	variants []names.Name
	owner    domain.MemberID
}

// Resolver resolves raw coauthor strings against a fixed roster. Each member is represented
// by its display name and aliases together with their variants; the member's best match
// counts. Members are ranked by fused score, then direct over derived matches, then roster
// order.
type Resolver struct {
	engine    *Engine
	threshold float64
	forms     []rosterForm
}

// NewResolver pre-normalizes every roster name form. It fails only on an invalid threshold.
func NewResolver(engine *Engine, roster *domain.Roster, threshold float64) (*Resolver, error) {
	if err := ValidateThreshold(threshold); err != nil {
		return nil, err
	}
	r := &Resolver{engine: engine, threshold: threshold}
	for _, m := range roster.Members() {
		for _, s := range m.SearchNames() {
			n := names.Normalize(s)
			if n.IsEmpty() {
				continue
			}
			r.forms = append(r.forms, rosterForm{name: n, variants: names.Variants(n), owner: m.ID})
		}
	}
	return r, nil
}

// Threshold returns the acceptance threshold.
func (r *Resolver) Threshold() float64 {
	return r.threshold
}

// Resolve maps raw to the best accepted roster member.
func (r *Resolver) Resolve(raw string) Resolution {
	n := names.Normalize(raw)
	res := Resolution{Raw: raw, Name: n}
	if n.IsEmpty() {
		res.Status = StatusMalformed
		return res
	}

	queryVars := names.Variants(n)
	var (
		order []domain.MemberID
		best  = make(map[domain.MemberID]Match)
	)
	for _, f := range r.forms {
		m := r.engine.bestMatch(n, queryVars, f.name, f.variants)
		cur, seen := best[f.owner]
		if !seen {
			order = append(order, f.owner)
		}
		if !seen || m.beats(cur) {
			best[f.owner] = m
		}
	}
	if len(order) == 0 {
		res.Status = StatusUnresolved
		return res
	}

	winner := order[0]
	for _, id := range order[1:] {
		if best[id].beats(best[winner]) {
			winner = id
		}
	}
	top := best[winner]
	res.Score = top.Score.Fused
	if top.Score.Fused < r.threshold {
		res.Status = StatusUnresolved
		return res
	}

	res.Status = StatusResolved
	res.MemberID = winner
	res.Derived = top.Derived
	for _, id := range order {
		if id != winner && !top.beats(best[id]) {
			res.Ambiguous = true
			break
		}
	}
	return res
}
