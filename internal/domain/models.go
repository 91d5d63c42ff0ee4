// Package domain provides the roster, publication and analysis-run models shared by the
// ISERN collaboration graph packages.
package domain

import (
	"fmt"
	"sort"
	"strings"
)

// MemberID is the stable identifier of a roster member.
type MemberID string

// Member is one entry of the roster. Members are immutable once a roster is built.
type Member struct {
	ID          MemberID `json:"id" yaml:"id"`
	DisplayName string   `json:"display_name" yaml:"display_name"`
	Founder     bool     `json:"founder,omitempty" yaml:"founder,omitempty"`
	Aliases     []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	Affiliation string   `json:"affiliation,omitempty" yaml:"affiliation,omitempty"`
}

// SearchNames returns the display name followed by every distinct alias.
func (m Member) SearchNames() []string {
	seen := make(map[string]struct{}, len(m.Aliases)+1)
	out := make([]string, 0, len(m.Aliases)+1)
	for _, n := range append([]string{m.DisplayName}, m.Aliases...) {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// Roster is the fixed, read-only set of members for an analysis run.
type Roster struct {
	members []Member
	index   map[MemberID]int
}

// NewRoster builds a roster, rejecting empty or duplicate IDs and blank display names.
func NewRoster(members []Member) (*Roster, error) {
	r := &Roster{
		members: make([]Member, 0, len(members)),
		index:   make(map[MemberID]int, len(members)),
	}
	for i, m := range members {
		if strings.TrimSpace(string(m.ID)) == "" {
			return nil, fmt.Errorf("%w: member %d has an empty id", ErrRosterInvalid, i)
		}
		if strings.TrimSpace(m.DisplayName) == "" {
			return nil, fmt.Errorf("%w: member %q has an empty display name", ErrRosterInvalid, m.ID)
		}
		if _, dup := r.index[m.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate member id %q", ErrRosterInvalid, m.ID)
		}
		m.Aliases = append([]string(nil), m.Aliases...)
		r.index[m.ID] = len(r.members)
		r.members = append(r.members, m)
	}
	return r, nil
}

// Len returns the number of members.
func (r *Roster) Len() int {
	return len(r.members)
}

// Members returns a copy of the members in roster order.
func (r *Roster) Members() []Member {
	out := make([]Member, len(r.members))
	copy(out, r.members)
	return out
}

// Lookup returns the member with the given ID.
func (r *Roster) Lookup(id MemberID) (Member, bool) {
	i, ok := r.index[id]
	if !ok {
		return Member{}, false
	}
	return r.members[i], true
}

// Contains reports whether id belongs to the roster.
func (r *Roster) Contains(id MemberID) bool {
	_, ok := r.index[id]
	return ok
}

// IDs returns all member IDs in ascending order.
func (r *Roster) IDs() []MemberID {
	ids := make([]MemberID, 0, len(r.members))
	for _, m := range r.members {
		ids = append(ids, m.ID)
	}
	SortMemberIDs(ids)
	return ids
}

// Founders returns the IDs of members flagged as founders, in ascending order.
func (r *Roster) Founders() []MemberID {
	var ids []MemberID
	for _, m := range r.members {
		if m.Founder {
			ids = append(ids, m.ID)
		}
	}
	SortMemberIDs(ids)
	return ids
}

// SortMemberIDs sorts ids in place in ascending order.
func SortMemberIDs(ids []MemberID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
