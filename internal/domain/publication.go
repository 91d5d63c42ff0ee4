package domain

import (
	"strings"
)

// PublicationID is the canonical, source-independent key of a publication.
type PublicationID string

// PublicationIdentifiers holds every identifier a source may report for a publication.
type PublicationIdentifiers struct {
	DOI        string
	DBLPKey    string
	OpenAlexID string
	SourceKey  string
}

// CanonicalPublicationID derives the canonical publication key.
// Priority order: DOI > DBLP > OpenAlex > source-local key.
// Returns empty string if no identifiers are available.
func CanonicalPublicationID(ids PublicationIdentifiers) PublicationID {
	if doi := normalizeDOI(ids.DOI); doi != "" {
		return PublicationID("doi:" + doi)
	}

	if key := strings.TrimSpace(ids.DBLPKey); key != "" {
		return PublicationID("dblp:" + key)
	}

	if oa := strings.TrimSpace(ids.OpenAlexID); oa != "" {
		oa = strings.TrimPrefix(oa, "https://openalex.org/")
		return PublicationID("openalex:" + oa)
	}

	if key := strings.TrimSpace(ids.SourceKey); key != "" {
		return PublicationID("local:" + key)
	}

	return ""
}

func normalizeDOI(doi string) string {
	doi = strings.ToLower(strings.TrimSpace(doi))
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/", "doi:"} {
		doi = strings.TrimPrefix(doi, prefix)
	}
	return doi
}

// Publication is one paper as reported by a publication source. Authors are raw strings
// exactly as the source printed them.
type Publication struct {
	ID      PublicationID `json:"id" yaml:"id"`
	Title   string        `json:"title" yaml:"title"`
	Year    int           `json:"year,omitempty" yaml:"year,omitempty"`
	Venue   string        `json:"venue,omitempty" yaml:"venue,omitempty"`
	Authors []string      `json:"authors" yaml:"authors"`
	Source  string        `json:"source,omitempty" yaml:"source,omitempty"`
}

// HasIdentifier returns true if the publication has a canonical ID.
func (p *Publication) HasIdentifier() bool {
	return p.ID != ""
}
