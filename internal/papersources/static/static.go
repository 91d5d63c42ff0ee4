// Package static provides a publication source read from a local JSON or YAML file.
//
// The file lists publications per member and is used for offline runs and fixtures:
//
//	publications:
//	  - member: dan-port
//	    id: doi:10.1145/1062455.1062519
//	    title: Value-Based Software Engineering
//	    year: 2005
//	    authors: [Dan Port, Barry Boehm]
//
// Entries without an explicit id get a local key derived from the member and title.
package static

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dport96/ISERN-Graph/internal/domain"
	"github.com/dport96/ISERN-Graph/internal/papersources"
)

// Entry is one publication in a static file.
type Entry struct {
	Member  domain.MemberID `json:"member" yaml:"member"`
	ID      string          `json:"id,omitempty" yaml:"id,omitempty"`
	DOI     string          `json:"doi,omitempty" yaml:"doi,omitempty"`
	DBLPKey string          `json:"dblp_key,omitempty" yaml:"dblp_key,omitempty"`
	Title   string          `json:"title" yaml:"title"`
	Year    int             `json:"year,omitempty" yaml:"year,omitempty"`
	Venue   string          `json:"venue,omitempty" yaml:"venue,omitempty"`
	Authors []string        `json:"authors" yaml:"authors"`
}

// File is the on-disk layout.
type File struct {
	Publications []Entry `json:"publications" yaml:"publications"`
}

// Source serves publications from memory, indexed by member.
type Source struct {
	byMember map[domain.MemberID][]domain.Publication
	enabled  bool
}

var _ papersources.PublicationSource = (*Source)(nil)

// New builds a source from entries.
func New(entries []Entry) *Source {
	s := &Source{byMember: make(map[domain.MemberID][]domain.Publication), enabled: true}
	for _, e := range entries {
		s.byMember[e.Member] = append(s.byMember[e.Member], e.publication())
	}
	return s
}

// Load reads a JSON (.json) or YAML (.yaml, .yml) file.
func Load(path string) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read static publications %s: %w", path, err)
	}
	var f File
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &f)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &f)
	default:
		return nil, fmt.Errorf("static publications %s: unsupported extension: %w", path, domain.ErrInvalidInput)
	}
	if err != nil {
		return nil, fmt.Errorf("parse static publications %s: %w", path, err)
	}
	return New(f.Publications), nil
}

// Name returns the source identifier.
func (s *Source) Name() string {
	return "static"
}

// IsEnabled reports whether the source is enabled.
func (s *Source) IsEnabled() bool {
	return s.enabled
}

// Len returns the number of publications held.
func (s *Source) Len() int {
	n := 0
	for _, pubs := range s.byMember {
		n += len(pubs)
	}
	return n
}

// Publications yields the member's publications in file order.
func (s *Source) Publications(ctx context.Context, member domain.Member) iter.Seq2[domain.Publication, error] {
	if err := ctx.Err(); err != nil {
		return papersources.Fail(err)
	}
	return papersources.FromSlice(s.byMember[member.ID])
}

func (e Entry) publication() domain.Publication {
	ids := domain.PublicationIdentifiers{DOI: e.DOI, DBLPKey: e.DBLPKey}
	id := domain.PublicationID(strings.TrimSpace(e.ID))
	if id == "" {
		ids.SourceKey = string(e.Member) + "/" + strings.ToLower(strings.Join(strings.Fields(e.Title), "-"))
		id = domain.CanonicalPublicationID(ids)
	}
	return domain.Publication{
		ID:      id,
		Title:   e.Title,
		Year:    e.Year,
		Venue:   e.Venue,
		Authors: e.Authors,
		Source:  "static",
	}
}
