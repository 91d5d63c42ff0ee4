package openalex

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dport96/ISERN-Graph/internal/domain"
	"github.com/dport96/ISERN-Graph/internal/observability"
	"github.com/dport96/ISERN-Graph/internal/papersources"
)

const (
	// DefaultBaseURL is the default OpenAlex API base URL.
	DefaultBaseURL = "https://api.openalex.org"

	// DefaultRateLimit is the default rate limit for requests per second.
	// OpenAlex polite pool (with email) allows higher rates.
	DefaultRateLimit = 10.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 10

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default cap on works fetched per author record.
	DefaultMaxResults = 500

	// DefaultMaxAuthors caps how many OpenAlex author records a member maps to.
	DefaultMaxAuthors = 3

	// maxPerPage is the OpenAlex page size limit.
	maxPerPage = 200

	// openAlexIDPrefix is the URL prefix for OpenAlex IDs.
	openAlexIDPrefix = "https://openalex.org/"
)

// SameAuthorFunc decides whether an OpenAlex author record belongs to the queried name.
type SameAuthorFunc func(query, candidate string) bool

// Config holds configuration for the OpenAlex client.
type Config struct {
	// BaseURL is the OpenAlex API base URL.
	BaseURL string

	// Email is the contact email for the polite pool.
	// See: https://docs.openalex.org/how-to-use-the-api/rate-limits-and-authentication
	Email string

	// Timeout is the request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// BreakerThreshold and BreakerCooldown tune the source's circuit breaker.
	BreakerThreshold uint32
	BreakerCooldown  time.Duration

	// MaxResults caps works fetched per author record.
	MaxResults int

	// MaxAuthors caps author records considered per member.
	MaxAuthors int

	// Enabled indicates whether this source is enabled.
	Enabled bool
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.BurstSize == 0 {
		c.BurstSize = DefaultBurstSize
	}
	if c.MaxResults == 0 {
		c.MaxResults = DefaultMaxResults
	}
	if c.MaxAuthors == 0 {
		c.MaxAuthors = DefaultMaxAuthors
	}
}

// Client implements papersources.PublicationSource for OpenAlex.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
	same       SameAuthorFunc
	logger     zerolog.Logger
}

var _ papersources.PublicationSource = (*Client)(nil)

// Option customizes a Client.
type Option func(*Client)

// WithSameAuthor sets the predicate used to accept author records found by name.
// Without it only the top search result is used.
func WithSameAuthor(fn SameAuthorFunc) Option {
	return func(c *Client) { c.same = fn }
}

// SourceName identifies openalex in publication records, logs and metrics.
const SourceName = "openalex"

// WithLogger sets the client logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = observability.WithSourceContext(logger, SourceName) }
}

// WithObserver attaches request telemetry to the default HTTP client.
func WithObserver(obs papersources.RequestObserver) Option {
	return func(c *Client) {
		c.httpClient = newHTTPClient(c.config, obs)
	}
}

func newHTTPClient(cfg Config, obs papersources.RequestObserver) *papersources.HTTPClient {
	ua := "ISERN-Graph/1.0"
	if cfg.Email != "" {
		ua += " (mailto:" + cfg.Email + ")"
	}
	return papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Source:    SourceName,
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: cfg.BurstSize,
		UserAgent: ua,
		Observer:  obs,

		BreakerThreshold: cfg.BreakerThreshold,
		BreakerCooldown:  cfg.BreakerCooldown,
	})
}

// New creates a new OpenAlex client with the given configuration.
func New(cfg Config, opts ...Option) *Client {
	cfg.applyDefaults()
	c := &Client{
		config:     cfg,
		httpClient: newHTTPClient(cfg, nil),
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewWithHTTPClient creates a new OpenAlex client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient, opts ...Option) *Client {
	c := New(cfg, opts...)
	c.httpClient = httpClient
	return c
}

// Name returns the source identifier.
func (c *Client) Name() string {
	return SourceName
}

// IsEnabled reports whether the source is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// Publications lists the works of every OpenAlex author record matching the member.
func (c *Client) Publications(ctx context.Context, member domain.Member) iter.Seq2[domain.Publication, error] {
	return func(yield func(domain.Publication, error) bool) {
		authorIDs, err := c.AuthorIDs(ctx, member)
		if err != nil {
			yield(domain.Publication{}, err)
			return
		}

		seen := make(map[domain.PublicationID]struct{})
		for _, authorID := range authorIDs {
			cursor := "*"
			fetched := 0
			for cursor != "" && fetched < c.config.MaxResults {
				resp, err := c.works(ctx, authorID, cursor, min(maxPerPage, c.config.MaxResults-fetched))
				if err != nil {
					yield(domain.Publication{}, fmt.Errorf("openalex works for %s: %w", authorID, err))
					return
				}
				if len(resp.Results) == 0 {
					break
				}
				fetched += len(resp.Results)
				cursor = resp.Meta.NextCursor

				for i := range resp.Results {
					pub := workToPublication(&resp.Results[i])
					if !pub.HasIdentifier() {
						continue
					}
					if _, dup := seen[pub.ID]; dup {
						continue
					}
					seen[pub.ID] = struct{}{}
					if !yield(pub, nil) {
						return
					}
				}
			}
			c.logger.Debug().
				Str("member_id", string(member.ID)).
				Str("author_id", authorID).
				Int("works", fetched).
				Msg("openalex works fetched")
		}
	}
}

// AuthorIDs resolves the member's names to short OpenAlex author IDs (e.g., "A5023888391").
func (c *Client) AuthorIDs(ctx context.Context, member domain.Member) ([]string, error) {
	var ids []string
	seen := make(map[string]struct{})
	for _, name := range member.SearchNames() {
		q := url.Values{}
		q.Set("search", name)
		q.Set("per_page", "10")
		var resp AuthorsResponse
		if err := c.getJSON(ctx, "authors", "/authors", q, &resp); err != nil {
			return nil, fmt.Errorf("openalex author search for %q: %w", name, err)
		}

		for i, a := range resp.Results {
			if c.same == nil && i > 0 {
				break
			}
			if c.same != nil && !c.sameAny(name, a) {
				continue
			}
			id := normalizeOpenAlexID(a.ID)
			if id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
			if len(ids) >= c.config.MaxAuthors {
				return ids, nil
			}
		}
	}
	return ids, nil
}

func (c *Client) sameAny(query string, a AuthorInfo) bool {
	for _, n := range append([]string{a.DisplayName}, a.DisplayNameAlternatives...) {
		if c.same(query, n) {
			return true
		}
	}
	return false
}

func (c *Client) works(ctx context.Context, authorID, cursor string, perPage int) (*WorksResponse, error) {
	q := url.Values{}
	q.Set("filter", "author.id:"+authorID)
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("cursor", cursor)
	q.Set("select", "id,doi,title,display_name,publication_year,authorships,primary_location,ids")
	var resp WorksResponse
	if err := c.getJSON(ctx, "works", "/works", q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint, path string, q url.Values, out any) error {
	base, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return fmt.Errorf("parsing base URL: %w", err)
	}
	base.Path = strings.TrimSuffix(base.Path, "/") + path
	if c.config.Email != "" {
		q.Set("mailto", c.config.Email)
	}
	base.RawQuery = q.Encode()

	body, err := c.httpClient.Get(ctx, endpoint, base.String(), http.Header{"Accept": {"application/json"}})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// workToPublication converts an OpenAlex Work to a domain Publication. Author names come
// from the raw byline when OpenAlex kept it.
func workToPublication(work *Work) domain.Publication {
	doi := work.DOI
	if doi == "" {
		doi = work.IDs.DOI
	}
	oaID := work.ID
	if oaID == "" {
		oaID = work.IDs.OpenAlex
	}

	authors := make([]string, 0, len(work.Authorships))
	for _, a := range work.Authorships {
		name := strings.TrimSpace(a.RawAuthorName)
		if name == "" {
			name = strings.TrimSpace(a.Author.DisplayName)
		}
		if name != "" {
			authors = append(authors, name)
		}
	}

	title := work.DisplayName
	if title == "" {
		title = work.Title
	}

	var venue string
	if work.PrimaryLocation != nil && work.PrimaryLocation.Source != nil {
		venue = work.PrimaryLocation.Source.DisplayName
	}

	return domain.Publication{
		ID: domain.CanonicalPublicationID(domain.PublicationIdentifiers{
			DOI:        doi,
			OpenAlexID: normalizeOpenAlexID(oaID),
		}),
		Title:   title,
		Year:    work.PublicationYear,
		Venue:   venue,
		Authors: authors,
		Source:  SourceName,
	}
}

// normalizeOpenAlexID extracts the short ID from full OpenAlex URLs.
func normalizeOpenAlexID(id string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(id), openAlexIDPrefix))
}
