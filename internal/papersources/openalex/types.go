// Package openalex provides a publication source backed by the OpenAlex API.
//
// OpenAlex is a free, open catalog of scholarly works and authors. The client resolves a
// member to OpenAlex author records by name, then pages through each author's works.
//
// API Documentation: https://docs.openalex.org/
package openalex

// WorksResponse is the response of the works list endpoint.
type WorksResponse struct {
	Meta    Meta   `json:"meta"`
	Results []Work `json:"results"`
}

// AuthorsResponse is the response of the authors search endpoint.
type AuthorsResponse struct {
	Meta    Meta         `json:"meta"`
	Results []AuthorInfo `json:"results"`
}

// Meta contains metadata about a list response including pagination info.
type Meta struct {
	Count      int    `json:"count"`
	PerPage    int    `json:"per_page"`
	NextCursor string `json:"next_cursor"`
}

// Work represents a scholarly work in OpenAlex.
type Work struct {
	ID              string       `json:"id"`
	DOI             string       `json:"doi"`
	Title           string       `json:"title"`
	DisplayName     string       `json:"display_name"`
	PublicationYear int          `json:"publication_year"`
	Authorships     []Authorship `json:"authorships"`
	PrimaryLocation *Location    `json:"primary_location"`
	IDs             IDs          `json:"ids"`
}

// Authorship represents an author's contribution to a work.
type Authorship struct {
	AuthorPosition string     `json:"author_position"`
	Author         AuthorInfo `json:"author"`
	RawAuthorName  string     `json:"raw_author_name"`
}

// AuthorInfo contains basic author information.
type AuthorInfo struct {
	ID                      string   `json:"id"`
	DisplayName             string   `json:"display_name"`
	DisplayNameAlternatives []string `json:"display_name_alternatives,omitempty"`
	WorksCount              int      `json:"works_count,omitempty"`
}

// Location represents where a work is published.
type Location struct {
	Source *Source `json:"source"`
}

// Source represents a publication venue.
type Source struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// IDs contains external identifiers for a work.
type IDs struct {
	OpenAlex string `json:"openalex"`
	DOI      string `json:"doi"`
}
