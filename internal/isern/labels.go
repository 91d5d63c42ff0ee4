// Package isern assigns ISERN numbers: the unweighted hop distance from each roster member
// to the nearest founder over the collaboration graph.
package isern

import (
	"encoding/json"
	"sort"
	"strconv"

	"github.com/dport96/ISERN-Graph/internal/domain"
)

// View is the read access ComputeLabels needs. *graph.Graph implements it.
type View interface {
	MemberIDs() []domain.MemberID
	HasMember(id domain.MemberID) bool
	Neighbors(id domain.MemberID) []domain.MemberID
}

// Label is a member's ISERN number, or unreachable.
type Label struct {
	Distance  int
	Reachable bool
}

// Unreachable is the label of a member with no path to any founder.
var Unreachable = Label{}

// At returns a reachable label at distance d.
func At(d int) Label {
	return Label{Distance: d, Reachable: true}
}

// Ptr returns the distance as a pointer, nil when unreachable.
func (l Label) Ptr() *int {
	if !l.Reachable {
		return nil
	}
	d := l.Distance
	return &d
}

// String renders the distance or "unreachable".
func (l Label) String() string {
	if !l.Reachable {
		return "unreachable"
	}
	return strconv.Itoa(l.Distance)
}

// MarshalJSON encodes a reachable label as its number and an unreachable one as the
// string "unreachable".
func (l Label) MarshalJSON() ([]byte, error) {
	if !l.Reachable {
		return []byte(`"unreachable"`), nil
	}
	return json.Marshal(l.Distance)
}

// UnmarshalJSON accepts the forms produced by MarshalJSON.
func (l *Label) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*l = Unreachable
		return nil
	}
	var d int
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	*l = At(d)
	return nil
}

// Labels maps every member of a graph snapshot to its label.
type Labels struct {
	labels map[domain.MemberID]Label
	parent map[domain.MemberID]domain.MemberID
	order  []domain.MemberID
}

// Get returns the label of id. Members not in the snapshot are unreachable.
func (ls Labels) Get(id domain.MemberID) Label {
	return ls.labels[id]
}

// Len returns the number of labeled members.
func (ls Labels) Len() int {
	return len(ls.order)
}

// Members returns the labeled member IDs in ascending order.
func (ls Labels) Members() []domain.MemberID {
	return append([]domain.MemberID(nil), ls.order...)
}

// Path returns a shortest collaboration chain from id back to a founder, starting with id
// and ending with the founder. It returns nil for unreachable members.
func (ls Labels) Path(id domain.MemberID) []domain.MemberID {
	if !ls.labels[id].Reachable {
		return nil
	}
	path := []domain.MemberID{id}
	for {
		p, ok := ls.parent[id]
		if !ok {
			return path
		}
		path = append(path, p)
		id = p
	}
}

// Histogram returns the number of members at each distance. Unreachable members are
// counted separately.
func (ls Labels) Histogram() (byDistance map[int]int, unreachable int) {
	byDistance = make(map[int]int)
	for _, id := range ls.order {
		l := ls.labels[id]
		if !l.Reachable {
			unreachable++
			continue
		}
		byDistance[l.Distance]++
	}
	return byDistance, unreachable
}

// Entry is one member's label, for ordered output.
type Entry struct {
	MemberID domain.MemberID `json:"member_id"`
	Label    Label           `json:"isern_number"`
}

// Sorted returns reachable members by ascending distance then ID, followed by unreachable
// members by ID.
func (ls Labels) Sorted() []Entry {
	out := make([]Entry, 0, len(ls.order))
	for _, id := range ls.order {
		out = append(out, Entry{MemberID: id, Label: ls.labels[id]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Label, out[j].Label
		if a.Reachable != b.Reachable {
			return a.Reachable
		}
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		return out[i].MemberID < out[j].MemberID
	})
	return out
}
