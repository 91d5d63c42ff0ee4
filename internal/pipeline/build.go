package pipeline

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dport96/ISERN-Graph/internal/config"
	"github.com/dport96/ISERN-Graph/internal/discovery"
	"github.com/dport96/ISERN-Graph/internal/domain"
	"github.com/dport96/ISERN-Graph/internal/matching"
	"github.com/dport96/ISERN-Graph/internal/names"
	"github.com/dport96/ISERN-Graph/internal/observability"
	"github.com/dport96/ISERN-Graph/internal/papersources"
	"github.com/dport96/ISERN-Graph/internal/papersources/dblp"
	"github.com/dport96/ISERN-Graph/internal/papersources/openalex"
	"github.com/dport96/ISERN-Graph/internal/papersources/static"
	"github.com/dport96/ISERN-Graph/internal/roster"
	"github.com/dport96/ISERN-Graph/internal/similarity"
)

// NewEngine builds the matching engine described by cfg.
func NewEngine(cfg config.MatchingConfig) (*matching.Engine, error) {
	sim, err := similarity.NewEngine(cfg.Similarity())
	if err != nil {
		return nil, fmt.Errorf("similarity engine: %w", err)
	}
	return matching.NewEngine(sim), nil
}

// SameAuthor returns the predicate sources use to accept author records found by name.
// Spellings that differ only in middle names, initials or name order are accepted.
func SameAuthor(engine *matching.Engine, threshold float64) func(query, candidate string) bool {
	return func(query, candidate string) bool {
		ok, err := engine.SameAuthor(names.Normalize(query), names.Normalize(candidate), threshold)
		return err == nil && ok
	}
}

// ScoreNames normalizes two raw names and compares them against threshold. It needs no
// roster, so the CLI can score names without loading one.
func ScoreNames(engine *matching.Engine, threshold float64, a, b string) NameScore {
	na, nb := names.Normalize(a), names.Normalize(b)
	sc := engine.Score(na, nb)
	return NameScore{A: na, B: nb, Score: sc, Threshold: threshold, SamePerson: sc.Fused >= threshold}
}

// NewRegistry registers every enabled source in cfg. A configuration with no enabled
// source is rejected.
func NewRegistry(cfg config.SourcesConfig, same func(query, candidate string) bool, logger zerolog.Logger, metrics *observability.Metrics) (*papersources.Registry, error) {
	reg := papersources.NewRegistry()

	if cfg.DBLP.Enabled {
		opts := []dblp.Option{dblp.WithSameAuthor(same), dblp.WithLogger(logger)}
		if metrics != nil {
			opts = append(opts, dblp.WithObserver(metrics))
		}
		reg.Register(dblp.New(dblp.Config{
			Enabled:      true,
			BaseURL:      cfg.DBLP.BaseURL,
			Timeout:      cfg.DBLP.Timeout,
			RateLimit:    cfg.DBLP.RateLimit,
			MaxResults:   cfg.DBLP.MaxResults,
			MaxVariants:  cfg.DBLP.MaxVariants,
			AuthorSearch: cfg.DBLP.AuthorSearch,

			BreakerThreshold: cfg.Breaker.FailureThreshold,
			BreakerCooldown:  cfg.Breaker.Cooldown,
		}, opts...))
	}

	if cfg.OpenAlex.Enabled {
		opts := []openalex.Option{openalex.WithSameAuthor(same), openalex.WithLogger(logger)}
		if metrics != nil {
			opts = append(opts, openalex.WithObserver(metrics))
		}
		reg.Register(openalex.New(openalex.Config{
			Enabled:    true,
			BaseURL:    cfg.OpenAlex.BaseURL,
			Email:      cfg.OpenAlex.Email,
			Timeout:    cfg.OpenAlex.Timeout,
			RateLimit:  cfg.OpenAlex.RateLimit,
			MaxResults: cfg.OpenAlex.MaxResults,
			MaxAuthors: cfg.OpenAlex.MaxAuthors,

			BreakerThreshold: cfg.Breaker.FailureThreshold,
			BreakerCooldown:  cfg.Breaker.Cooldown,
		}, opts...))
	}

	if cfg.Static.Enabled {
		src, err := static.Load(cfg.Static.Path)
		if err != nil {
			return nil, err
		}
		reg.Register(src)
	}

	if !reg.IsEnabled() {
		return nil, fmt.Errorf("no publication source enabled: %w", domain.ErrInvalidConfiguration)
	}
	return reg, nil
}

// FromConfig loads the roster and sources named by cfg and returns a ready Service.
// Configured founders that match no roster member are logged and ignored.
func FromConfig(cfg *config.Config, logger zerolog.Logger, metrics *observability.Metrics, opts ...Option) (*Service, error) {
	loaded, err := roster.LoadFile(cfg.Roster.Path, cfg.Roster.Founders)
	if err != nil {
		return nil, err
	}
	if len(loaded.UnknownFounders) > 0 {
		logger.Warn().
			Str("founders", strings.Join(loaded.UnknownFounders, ", ")).
			Msg("configured founders not found in roster")
	}

	engine, err := NewEngine(cfg.Matching)
	if err != nil {
		return nil, err
	}

	reg, err := NewRegistry(cfg.Sources, SameAuthor(engine, cfg.Matching.Threshold), logger, metrics)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Int("members", loaded.Roster.Len()).
		Int("founders", len(loaded.Roster.Founders())).
		Strs("sources", reg.EnabledNames()).
		Msg("pipeline configured")

	deps := Deps{
		Roster:    loaded.Roster,
		Source:    reg,
		Engine:    engine,
		Threshold: cfg.Matching.Threshold,
		Discovery: discovery.Config{
			Workers:            cfg.Discovery.Workers,
			RequireAuthorMatch: cfg.Discovery.RequireAuthorMatch,
			RecordContext:      cfg.Discovery.RecordContext,
			MaxPublications:    cfg.Discovery.MaxPublications,
		},
		TopK: cfg.Discovery.TopK,
	}
	return New(deps, append([]Option{WithLogger(logger), WithMetrics(metrics)}, opts...)...)
}
