// Package roster loads the ISERN member list from disk.
//
// Two layouts are accepted, as JSON or YAML:
//
//	{"isern_members": ["Victor Basili", "Dieter Rombach"], "metadata": {"last_updated": "2024-05-01"}}
//
//	members:
//	  - display_name: Victor Basili
//	    founder: true
//	    aliases: [Vic Basili]
//
// Plain strings and structured entries may be mixed in either list. Member IDs default to a
// slug of the display name.
package roster

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/dport96/ISERN-Graph/internal/domain"
	"github.com/dport96/ISERN-Graph/internal/names"
)

// DefaultFounders are the six ISERN founding members.
var DefaultFounders = []string{
	"Victor Basili",
	"Dieter Rombach",
	"Ross Jeffery",
	"Giovanni Cantone",
	"Markku Oivo",
	"Koji Torii",
}

var validate = validator.New()

// Entry is one member as written in a roster file.
type Entry struct {
	ID          string   `json:"id,omitempty" yaml:"id,omitempty" validate:"omitempty,max=64,excludesall= /"`
	DisplayName string   `json:"display_name" yaml:"display_name" validate:"required,max=200"`
	Founder     bool     `json:"founder,omitempty" yaml:"founder,omitempty"`
	Aliases     []string `json:"aliases,omitempty" yaml:"aliases,omitempty" validate:"dive,max=200"`
	Affiliation string   `json:"affiliation,omitempty" yaml:"affiliation,omitempty" validate:"max=300"`
}

// UnmarshalJSON accepts either a bare name string or an object.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*e = Entry{DisplayName: name}
		return nil
	}
	type plain Entry
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*e = Entry(p)
	return nil
}

// UnmarshalYAML accepts either a bare name string or a mapping.
func (e *Entry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*e = Entry{DisplayName: node.Value}
		return nil
	}
	type plain Entry
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*e = Entry(p)
	return nil
}

// Metadata is the optional descriptive block of a roster file.
type Metadata struct {
	LastUpdated  string `json:"last_updated,omitempty" yaml:"last_updated,omitempty"`
	TotalMembers int    `json:"total_members,omitempty" yaml:"total_members,omitempty"`
	Source       string `json:"source,omitempty" yaml:"source,omitempty"`
}

// File is the on-disk roster layout.
type File struct {
	IsernMembers []Entry  `json:"isern_members,omitempty" yaml:"isern_members,omitempty"`
	Members      []Entry  `json:"members,omitempty" yaml:"members,omitempty"`
	Metadata     Metadata `json:"metadata" yaml:"metadata"`
}

// Loaded is the result of building a roster.
type Loaded struct {
	Roster   *domain.Roster
	Metadata Metadata
	// UnknownFounders lists configured founders that matched no member.
	UnknownFounders []string
}

// LoadFile reads and builds a roster from path. founders names members (by ID or display
// name, compared after folding) to flag as founders in addition to entries marked founder.
func LoadFile(path string, founders []string) (*Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster %s: %w", path, err)
	}
	f, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("roster %s: %w", path, err)
	}
	return Build(f, founders)
}

// Parse decodes roster bytes. ext selects the format (".json", ".yaml" or ".yml").
func Parse(data []byte, ext string) (*File, error) {
	var f File
	var err error
	switch strings.ToLower(ext) {
	case ".json":
		err = json.Unmarshal(data, &f)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &f)
	default:
		return nil, fmt.Errorf("unsupported roster format %q: %w", ext, domain.ErrRosterInvalid)
	}
	if err != nil {
		return nil, fmt.Errorf("parse roster: %w: %w", domain.ErrRosterInvalid, err)
	}
	return &f, nil
}

// Build validates entries, assigns IDs and founder flags, and constructs the roster.
func Build(f *File, founders []string) (*Loaded, error) {
	entries := append(append([]Entry(nil), f.IsernMembers...), f.Members...)
	if len(entries) == 0 {
		return nil, fmt.Errorf("no members: %w", domain.ErrRosterInvalid)
	}

	var errs []error
	used := make(map[domain.MemberID]struct{}, len(entries))
	members := make([]domain.Member, 0, len(entries))
	for i, e := range entries {
		e.DisplayName = strings.Join(strings.Fields(e.DisplayName), " ")
		if err := validate.Struct(e); err != nil {
			errs = append(errs, fmt.Errorf("entry %d: %w", i, formatValidationError(err)))
			continue
		}

		id := domain.MemberID(strings.TrimSpace(e.ID))
		if id == "" {
			id = uniqueID(Slug(e.DisplayName), used)
		}
		if id == "" {
			errs = append(errs, fmt.Errorf("entry %d (%q): name has no letters or digits", i, e.DisplayName))
			continue
		}
		used[id] = struct{}{}

		members = append(members, domain.Member{
			ID:          id,
			DisplayName: e.DisplayName,
			Founder:     e.Founder,
			Aliases:     e.Aliases,
			Affiliation: e.Affiliation,
		})
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", domain.ErrRosterInvalid, errors.Join(errs...))
	}

	unknown := markFounders(members, founders)

	r, err := domain.NewRoster(members)
	if err != nil {
		return nil, err
	}
	return &Loaded{Roster: r, Metadata: f.Metadata, UnknownFounders: unknown}, nil
}

func markFounders(members []domain.Member, founders []string) []string {
	var unknown []string
	for _, want := range founders {
		key := names.Fold(strings.TrimSpace(want))
		if key == "" {
			continue
		}
		found := false
		for i := range members {
			if names.Fold(string(members[i].ID)) == key || names.Fold(members[i].DisplayName) == key {
				members[i].Founder = true
				found = true
			}
		}
		if !found {
			unknown = append(unknown, want)
		}
	}
	return unknown
}

// Slug derives a member ID from a display name: folded, lowercase, with runs of
// non-alphanumerics replaced by a single hyphen.
func Slug(name string) domain.MemberID {
	var b strings.Builder
	dash := false
	for _, r := range names.Fold(name) {
		if r == '\'' || r == '’' {
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	return domain.MemberID(b.String())
}

func uniqueID(base domain.MemberID, used map[domain.MemberID]struct{}) domain.MemberID {
	if base == "" {
		return ""
	}
	if _, taken := used[base]; !taken {
		return base
	}
	for n := 2; ; n++ {
		id := domain.MemberID(string(base) + "-" + strconv.Itoa(n))
		if _, taken := used[id]; !taken {
			return id
		}
	}
}

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		field := strings.ToLower(e.Field())
		switch e.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", field, e.Param()))
		case "excludesall":
			msgs = append(msgs, field+" must not contain spaces or slashes")
		default:
			msgs = append(msgs, field+" is invalid")
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
