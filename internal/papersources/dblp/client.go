package dblp

import (
	"bytes"
	"context"
	"encoding/xml"
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
	// DefaultBaseURL is the default DBLP API base URL.
	DefaultBaseURL = "https://dblp.org"

	// DefaultRateLimit is the default rate limit for requests per second.
	DefaultRateLimit = 1.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 1

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default number of hits requested per name spelling.
	DefaultMaxResults = 1000

	// DefaultMaxVariants caps how many author spellings are queried per member.
	DefaultMaxVariants = 6

	// authorSearchHits is how many candidate persons the author search returns.
	authorSearchHits = 10
)

// SameAuthorFunc decides whether a DBLP spelling belongs to the queried name.
type SameAuthorFunc func(query, candidate string) bool

// Config holds configuration for the DBLP client.
type Config struct {
	// BaseURL is the DBLP API base URL.
	BaseURL string

	// Timeout is the request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// BreakerThreshold and BreakerCooldown tune the source's circuit breaker.
	BreakerThreshold uint32
	BreakerCooldown  time.Duration

	// MaxResults is the number of hits requested per spelling (DBLP caps at 1000).
	MaxResults int

	// MaxVariants caps the looked-up or derived spellings queried per member. Aliases from
	// the roster are queried in addition.
	MaxVariants int

	// AuthorSearch enables the DBLP author-search lookup of spellings and aliases.
	AuthorSearch bool

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
	if c.MaxVariants == 0 {
		c.MaxVariants = DefaultMaxVariants
	}
}

// Client implements papersources.PublicationSource for DBLP.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
	same       SameAuthorFunc
	logger     zerolog.Logger
}

var _ papersources.PublicationSource = (*Client)(nil)

// Option customizes a Client.
type Option func(*Client)

// WithSameAuthor sets the predicate used to accept spellings from the author search.
// Without it every spelling DBLP returns for the query is accepted.
func WithSameAuthor(fn SameAuthorFunc) Option {
	return func(c *Client) { c.same = fn }
}

// SourceName identifies dblp in publication records, logs and metrics.
const SourceName = "dblp"

// WithLogger sets the client logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = observability.WithSourceContext(logger, SourceName) }
}

// WithObserver attaches request telemetry to the default HTTP client.
func WithObserver(obs papersources.RequestObserver) Option {
	return func(c *Client) {
		c.httpClient = papersources.NewHTTPClient(papersources.HTTPClientConfig{
			Source:    SourceName,
			Timeout:   c.config.Timeout,
			RateLimit: c.config.RateLimit,
			BurstSize: c.config.BurstSize,
			Observer:  obs,

			BreakerThreshold: c.config.BreakerThreshold,
			BreakerCooldown:  c.config.BreakerCooldown,
		})
	}
}

// New creates a new DBLP client with the given configuration.
func New(cfg Config, opts ...Option) *Client {
	cfg.applyDefaults()
	c := &Client{
		config: cfg,
		httpClient: papersources.NewHTTPClient(papersources.HTTPClientConfig{
			Source:    SourceName,
			Timeout:   cfg.Timeout,
			RateLimit: cfg.RateLimit,
			BurstSize: cfg.BurstSize,

			BreakerThreshold: cfg.BreakerThreshold,
			BreakerCooldown:  cfg.BreakerCooldown,
		}),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewWithHTTPClient creates a DBLP client with a custom HTTP client.
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

// Publications lists the member's DBLP publications across every known spelling.
// A publication reported under two spellings is yielded once.
func (c *Client) Publications(ctx context.Context, member domain.Member) iter.Seq2[domain.Publication, error] {
	return func(yield func(domain.Publication, error) bool) {
		variants, err := c.Variants(ctx, member)
		if err != nil {
			yield(domain.Publication{}, err)
			return
		}

		seen := make(map[string]struct{})
		for _, variant := range variants {
			hits, err := c.searchPublications(ctx, variant)
			if err != nil {
				yield(domain.Publication{}, fmt.Errorf("dblp publications for %q: %w", variant, err))
				return
			}
			c.logger.Debug().
				Str("member_id", string(member.ID)).
				Str("variant", variant).
				Int("hits", len(hits)).
				Msg("dblp publication search")

			for _, hit := range hits {
				key := hit.Info.Key
				if key == "" {
					key = hit.ID
				}
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}

				pub := infoToPublication(hit.Info, hit.ID)
				if !pub.HasIdentifier() {
					continue
				}
				if !yield(pub, nil) {
					return
				}
			}
		}
	}
}

// Variants returns the spellings to query for member: DBLP's own spellings when the author
// search finds any, otherwise spellings derived from the display name, followed by the
// member's aliases. MaxVariants bounds the looked-up and derived spellings only; configured
// aliases are always queried.
func (c *Client) Variants(ctx context.Context, member domain.Member) ([]string, error) {
	var variants []string
	if c.config.AuthorSearch {
		found, err := c.searchAuthors(ctx, member.DisplayName)
		if err != nil {
			return nil, fmt.Errorf("dblp author search for %q: %w", member.DisplayName, err)
		}
		variants = found
	}
	if len(variants) == 0 {
		variants = ManualVariants(member.DisplayName)
	}
	variants = dedupe(variants)
	if len(variants) > c.config.MaxVariants {
		variants = variants[:c.config.MaxVariants]
	}
	return dedupe(append(variants, member.Aliases...)), nil
}

// ManualVariants derives spellings from a display name: the name itself, then
// "Last, First" and "F. Last" when the name has at least two words.
func ManualVariants(name string) []string {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return nil
	}
	out := []string{name}
	parts := strings.Fields(name)
	if len(parts) >= 2 {
		first, last := parts[0], parts[len(parts)-1]
		out = append(out, last+", "+strings.Join(parts[:len(parts)-1], " "))
		if r := []rune(first); len(r) > 1 {
			out = append(out, string(r[0])+". "+last)
		}
	}
	return out
}

func (c *Client) searchAuthors(ctx context.Context, name string) ([]string, error) {
	q := url.Values{}
	q.Set("q", name)
	q.Set("format", "xml")
	q.Set("h", strconv.Itoa(authorSearchHits))

	res, err := c.fetch(ctx, "author", "/search/author/api", q)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, hit := range res.Hits.Hit {
		for _, candidate := range append([]string{hit.Info.Author}, hit.Info.Aliases...) {
			candidate = strings.TrimSpace(candidate)
			if candidate == "" {
				continue
			}
			if c.same == nil || c.same(name, candidate) {
				out = append(out, candidate)
			}
		}
	}
	return out, nil
}

func (c *Client) searchPublications(ctx context.Context, variant string) ([]Hit, error) {
	q := url.Values{}
	q.Set("q", "author:"+strings.ReplaceAll(variant, " ", "_")+":")
	q.Set("format", "xml")
	q.Set("h", strconv.Itoa(c.config.MaxResults))

	res, err := c.fetch(ctx, "publ", "/search/publ/api", q)
	if err != nil {
		return nil, err
	}
	return res.Hits.Hit, nil
}

func (c *Client) fetch(ctx context.Context, endpoint, path string, q url.Values) (*Result, error) {
	base, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	base.Path = strings.TrimSuffix(base.Path, "/") + path
	base.RawQuery = q.Encode()

	body, err := c.httpClient.Get(ctx, endpoint, base.String(), http.Header{"Accept": {"application/xml"}})
	if err != nil {
		return nil, err
	}

	var res Result
	if err := xml.NewDecoder(bytes.NewReader(body)).Decode(&res); err != nil {
		return nil, fmt.Errorf("decoding dblp response: %w", err)
	}
	return &res, nil
}

func infoToPublication(info Info, hitID string) domain.Publication {
	ids := domain.PublicationIdentifiers{
		DOI:       info.DOI,
		DBLPKey:   info.Key,
		SourceKey: hitID,
	}
	authors := make([]string, 0, len(info.Authors))
	for _, a := range info.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			authors = append(authors, name)
		}
	}
	return domain.Publication{
		ID:      domain.CanonicalPublicationID(ids),
		Title:   strings.TrimSuffix(strings.TrimSpace(info.Title), "."),
		Year:    info.Year,
		Venue:   info.Venue,
		Authors: authors,
		Source:  SourceName,
	}
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		k := strings.ToLower(strings.TrimSpace(s))
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, strings.TrimSpace(s))
	}
	return out
}
