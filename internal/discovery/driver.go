// Package discovery fills a collaboration graph from a publication source.
//
// For every roster member the driver lists the member's publications, resolves each
// coauthor string against the roster and records member-to-member coauthorships. Members
// are fetched in parallel; all graph writes go through the graph's own lock.
package discovery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dport96/ISERN-Graph/internal/domain"
	"github.com/dport96/ISERN-Graph/internal/graph"
	"github.com/dport96/ISERN-Graph/internal/matching"
	"github.com/dport96/ISERN-Graph/internal/observability"
	"github.com/dport96/ISERN-Graph/internal/papersources"
)

// Skip reasons reported to metrics.
const (
	skipNoIdentifier   = "no_identifier"
	skipAuthorNotFound = "author_not_found"
)

// Config tunes a discovery pass.
type Config struct {
	// Workers bounds how many members are fetched concurrently. Values below 1 mean 1.
	Workers int

	// RequireAuthorMatch drops publications on which no author resolves to the queried
	// member (homonyms returned by name-based source lookups).
	RequireAuthorMatch bool

	// RecordContext keeps unresolved coauthors as context nodes.
	RecordContext bool

	// MaxPublications caps publications read per member. Zero means no cap.
	MaxPublications int
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		Workers:            4,
		RequireAuthorMatch: true,
		RecordContext:      true,
	}
}

// ProgressFunc is called after each member finishes, with the number done and the total.
type ProgressFunc func(member domain.Member, done, total int)

// Driver runs discovery passes.
type Driver struct {
	source   papersources.PublicationSource
	resolver *matching.Resolver
	cfg      Config
	logger   zerolog.Logger
	metrics  *observability.Metrics
	progress ProgressFunc
}

// Option customizes a Driver.
type Option func(*Driver)

// WithLogger sets the driver logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(d *Driver) { d.logger = logger.With().Str("component", "discovery").Logger() }
}

// WithMetrics attaches metrics. A nil value disables recording.
func WithMetrics(m *observability.Metrics) Option {
	return func(d *Driver) { d.metrics = m }
}

// WithProgress registers a per-member progress callback. It may be called concurrently.
func WithProgress(fn ProgressFunc) Option {
	return func(d *Driver) { d.progress = fn }
}

// NewDriver creates a driver reading from source and resolving names with resolver.
func NewDriver(source papersources.PublicationSource, resolver *matching.Resolver, cfg Config, opts ...Option) *Driver {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	d := &Driver{
		source:   source,
		resolver: resolver,
		cfg:      cfg,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run discovers coauthorships for every member of g's roster and records them in g.
// Per-member fetch errors are logged and counted; only cancellation of ctx aborts the pass,
// in which case the partial summary is returned with the context error.
func (d *Driver) Run(ctx context.Context, g *graph.Graph) (domain.DiscoverySummary, error) {
	members := g.Roster().Members()
	cache := newResolutionCache(d.resolver)
	logger := observability.LoggerWithContext(ctx, d.logger)

	var (
		mu      sync.Mutex
		summary domain.DiscoverySummary
		done    int
	)

	start := time.Now()
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(d.cfg.Workers)

	for _, m := range members {
		if egCtx.Err() != nil {
			break
		}
		eg.Go(func() error {
			s, err := d.member(egCtx, logger, g, cache, m)

			mu.Lock()
			summary.Add(s)
			done++
			n := done
			mu.Unlock()

			if d.progress != nil {
				d.progress(m, n, len(members))
			}
			return err
		})
	}

	err := eg.Wait()
	if err == nil {
		err = ctx.Err()
	}

	logger.Info().
		Int("members", summary.MembersProcessed).
		Int("publications", summary.PublicationsSeen).
		Int("edges_added", summary.EdgesAdded).
		Int("unresolved", summary.Unresolved).
		Int("fetch_errors", summary.FetchErrors).
		Dur("duration", time.Since(start)).
		Msg("discovery finished")

	return summary, err
}

// member processes one roster member. It returns an error only on cancellation.
func (d *Driver) member(ctx context.Context, logger zerolog.Logger, g *graph.Graph, cache *resolutionCache, m domain.Member) (domain.DiscoverySummary, error) {
	logger = observability.WithMemberContext(logger, string(m.ID), m.DisplayName)
	var s domain.DiscoverySummary
	s.MembersProcessed = 1

	seen := 0
	for pub, err := range d.source.Publications(ctx, m) {
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return s, err
			}
			s.FetchErrors++
			logger.Warn().Err(err).Int("publications_before_error", seen).Msg("publication fetch failed")
			if d.metrics != nil {
				d.metrics.RecordFetchError(d.source.Name())
			}
			break
		}

		seen++
		s.PublicationsSeen++
		if d.metrics != nil {
			d.metrics.RecordPublicationFetched(sourceLabel(pub, d.source))
		}
		d.publication(g, cache, m, pub, &s)

		if d.cfg.MaxPublications > 0 && seen >= d.cfg.MaxPublications {
			break
		}
	}

	if d.metrics != nil {
		d.metrics.RecordMemberProcessed(seen)
	}
	logger.Debug().Int("publications", seen).Msg("member processed")
	return s, nil
}

// publication resolves a publication's byline and records the coauthorships it implies.
func (d *Driver) publication(g *graph.Graph, cache *resolutionCache, m domain.Member, pub domain.Publication, s *domain.DiscoverySummary) {
	if !pub.HasIdentifier() {
		d.skip(s, skipNoIdentifier)
		return
	}

	resolutions := make([]matching.Resolution, len(pub.Authors))
	self := false
	for i, raw := range pub.Authors {
		resolutions[i] = cache.resolve(raw)
		if resolutions[i].Status == matching.StatusResolved && resolutions[i].MemberID == m.ID {
			self = true
		}
	}
	if d.cfg.RequireAuthorMatch && !self {
		d.skip(s, skipAuthorNotFound)
		return
	}

	for _, res := range resolutions {
		s.CoauthorNames++
		outcome := string(res.Status)

		switch res.Status {
		case matching.StatusMalformed:
			s.Malformed++
		case matching.StatusUnresolved:
			s.Unresolved++
			if d.cfg.RecordContext && g.RecordContextCoauthor(m.ID, res.Name.Canonical, res.Raw, pub.ID) {
				s.ContextCoauthors++
			}
		case matching.StatusResolved:
			if res.MemberID == m.ID {
				s.SelfMatches++
				outcome = "self"
				break
			}
			s.Resolved++
			switch o := g.RecordCoauthorship(m.ID, res.MemberID, pub.ID); o {
			case graph.OutcomeAdded:
				s.EdgesAdded++
				d.recordEdge(o)
			case graph.OutcomeDuplicate:
				s.DuplicateDiscoveries++
				d.recordEdge(o)
			default:
				d.recordEdge(o)
			}
		}

		if d.metrics != nil {
			d.metrics.RecordCoauthorName(outcome, res.Ambiguous)
		}
	}
}

func (d *Driver) skip(s *domain.DiscoverySummary, reason string) {
	s.PublicationsSkipped++
	if d.metrics != nil {
		d.metrics.RecordPublicationSkipped(reason)
	}
}

func (d *Driver) recordEdge(o graph.Outcome) {
	if d.metrics != nil {
		d.metrics.RecordEdge(o.String())
	}
}

func sourceLabel(pub domain.Publication, src papersources.PublicationSource) string {
	if pub.Source != "" {
		return pub.Source
	}
	return src.Name()
}

// resolutionCache memoizes Resolver.Resolve by raw string for one pass.
type resolutionCache struct {
	resolver *matching.Resolver
	mu       sync.RWMutex
	byRaw    map[string]matching.Resolution
}

func newResolutionCache(r *matching.Resolver) *resolutionCache {
	return &resolutionCache{resolver: r, byRaw: make(map[string]matching.Resolution)}
}

func (c *resolutionCache) resolve(raw string) matching.Resolution {
	c.mu.RLock()
	res, ok := c.byRaw[raw]
	c.mu.RUnlock()
	if ok {
		return res
	}

	res = c.resolver.Resolve(raw)
	c.mu.Lock()
	c.byRaw[raw] = res
	c.mu.Unlock()
	return res
}
