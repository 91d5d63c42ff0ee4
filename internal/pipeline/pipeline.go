// Package pipeline runs a complete ISERN analysis: collaboration discovery over the roster,
// ISERN numbering from the founders, network analysis, and optional persistence of the
// resulting snapshot.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dport96/ISERN-Graph/internal/discovery"
	"github.com/dport96/ISERN-Graph/internal/domain"
	"github.com/dport96/ISERN-Graph/internal/events"
	"github.com/dport96/ISERN-Graph/internal/graph"
	"github.com/dport96/ISERN-Graph/internal/isern"
	"github.com/dport96/ISERN-Graph/internal/matching"
	"github.com/dport96/ISERN-Graph/internal/names"
	"github.com/dport96/ISERN-Graph/internal/network"
	"github.com/dport96/ISERN-Graph/internal/observability"
	"github.com/dport96/ISERN-Graph/internal/papersources"
	"github.com/dport96/ISERN-Graph/internal/repository"
	"github.com/dport96/ISERN-Graph/internal/similarity"
)

// ErrRunInProgress is returned when a run is requested while another is still executing.
var ErrRunInProgress = errors.New("analysis run already in progress")

// persistTimeout bounds the final snapshot write, which runs even after cancellation.
const persistTimeout = 30 * time.Second

// Deps are the collaborators a Service is built from.
type Deps struct {
	Roster    *domain.Roster
	Source    papersources.PublicationSource
	Engine    *matching.Engine
	Threshold float64
	Discovery discovery.Config
	TopK      int
}

// Result is the outcome of a run.
type Result struct {
	Run    *domain.Run
	Graph  *graph.Graph
	Labels isern.Labels
}

// Progress is a point-in-time view of an executing run.
type Progress struct {
	RunID     uuid.UUID `json:"run_id"`
	Done      int       `json:"done"`
	Total     int       `json:"total"`
	Member    string    `json:"member,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// NameScore is the pairwise comparison of two raw names.
type NameScore struct {
	A          names.Name       `json:"a"`
	B          names.Name       `json:"b"`
	Score      similarity.Score `json:"score"`
	Threshold  float64          `json:"threshold"`
	SamePerson bool             `json:"same_person"`
}

// Service executes analysis runs. At most one run executes at a time.
type Service struct {
	roster    *domain.Roster
	source    papersources.PublicationSource
	engine    *matching.Engine
	resolver  *matching.Resolver
	threshold float64
	discovery discovery.Config
	topK      int

	repo     repository.RunRepository
	logger   zerolog.Logger
	metrics  *observability.Metrics
	progress discovery.ProgressFunc
	events   events.Publisher
	emitter  *events.Emitter
	now      func() time.Time

	running  atomic.Bool
	current  atomic.Pointer[Progress]
	inflight sync.WaitGroup
}

// Option customizes a Service.
type Option func(*Service)

// WithRepository persists every run through repo.
func WithRepository(repo repository.RunRepository) Option {
	return func(s *Service) { s.repo = repo }
}

// WithLogger sets the service logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger.With().Str("component", "pipeline").Logger() }
}

// WithMetrics attaches metrics. A nil value disables recording.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithProgress registers an additional per-member progress callback.
func WithProgress(fn discovery.ProgressFunc) Option {
	return func(s *Service) { s.progress = fn }
}

// WithEvents publishes run lifecycle events through p.
func WithEvents(p events.Publisher) Option {
	return func(s *Service) { s.events = p }
}

// New validates deps and returns a Service.
func New(deps Deps, opts ...Option) (*Service, error) {
	if deps.Roster == nil {
		return nil, fmt.Errorf("pipeline: roster is required: %w", domain.ErrInvalidInput)
	}
	if deps.Source == nil {
		return nil, fmt.Errorf("pipeline: publication source is required: %w", domain.ErrInvalidInput)
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("pipeline: matching engine is required: %w", domain.ErrInvalidInput)
	}
	resolver, err := matching.NewResolver(deps.Engine, deps.Roster, deps.Threshold)
	if err != nil {
		return nil, err
	}
	if deps.TopK <= 0 {
		deps.TopK = network.DefaultTopK
	}

	s := &Service{
		roster:    deps.Roster,
		source:    deps.Source,
		engine:    deps.Engine,
		resolver:  resolver,
		threshold: deps.Threshold,
		discovery: deps.Discovery,
		topK:      deps.TopK,
		logger:    zerolog.Nop(),
		emitter:   events.NewEmitter(events.EmitterConfig{}),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Roster returns the roster the service analyzes.
func (s *Service) Roster() *domain.Roster {
	return s.roster
}

// Threshold returns the match threshold.
func (s *Service) Threshold() float64 {
	return s.threshold
}

// Running reports whether a run is executing.
func (s *Service) Running() bool {
	return s.running.Load()
}

// Progress returns the progress of the executing run, if any.
func (s *Service) Progress() (Progress, bool) {
	p := s.current.Load()
	if p == nil {
		return Progress{}, false
	}
	return *p, true
}

// Score compares two raw names under the service's engine and threshold.
func (s *Service) Score(a, b string) NameScore {
	if s.metrics != nil {
		s.metrics.RecordNameScored()
	}
	return ScoreNames(s.engine, s.threshold, a, b)
}

// Run executes an analysis synchronously. With a repository attached the final snapshot
// is saved, including failed runs. The returned error is the discovery or persistence
// error; a failed run still returns its Result.
func (s *Service) Run(ctx context.Context) (*Result, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer s.running.Store(false)
	defer s.current.Store(nil)

	run := s.newRun()
	res, runErr := s.execute(ctx, run)

	if s.repo != nil {
		if err := s.persist(ctx, func(pctx context.Context) error { return s.repo.Save(pctx, run) }); err != nil {
			return res, errors.Join(runErr, fmt.Errorf("save run %s: %w", run.ID, err))
		}
	}
	s.emit(ctx, events.TerminalType(run.Status), run)
	return res, runErr
}

// Start records a running run and executes it in the background. ctx governs the whole
// run, so callers pass a long-lived context rather than a request context. Cancelling it
// fails the run; the failed snapshot is still recorded. Use Wait to block until it ends.
func (s *Service) Start(ctx context.Context) (*domain.Run, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}

	run := s.newRun()
	if s.repo != nil {
		if err := s.repo.Create(ctx, run); err != nil {
			s.running.Store(false)
			return nil, fmt.Errorf("create run: %w", err)
		}
	}
	header := *run
	s.current.Store(s.initialProgress(run))

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer s.running.Store(false)
		defer s.current.Store(nil)

		_, runErr := s.execute(ctx, run)
		if s.repo != nil {
			if err := s.persist(ctx, func(pctx context.Context) error { return s.repo.Finish(pctx, run) }); err != nil {
				s.logger.Error().Err(err).Str("run_id", run.ID.String()).Msg("failed to finish run")
				return
			}
			if runErr != nil {
				s.logger.Warn().Err(runErr).Str("run_id", run.ID.String()).Msg("run recorded as failed")
			}
		}
		s.emit(ctx, events.TerminalType(run.Status), run)
	}()
	return &header, nil
}

// Wait blocks until every background run started by Start has finished.
func (s *Service) Wait() {
	s.inflight.Wait()
}

func (s *Service) newRun() *domain.Run {
	return &domain.Run{
		ID:        uuid.New(),
		Status:    domain.RunStatusRunning,
		Threshold: s.threshold,
		Founders:  s.roster.Founders(),
		Sources:   sourceNames(s.source),
		StartedAt: s.now().UTC(),
	}
}

// execute runs discovery and analysis, filling run in place.
func (s *Service) execute(ctx context.Context, run *domain.Run) (*Result, error) {
	logger := observability.WithRunContext(s.logger, run.ID.String(), s.threshold)
	ctx = observability.WithRunID(ctx, run.ID.String())

	s.current.Store(s.initialProgress(run))

	if s.metrics != nil {
		s.metrics.RecordRunStarted()
	}
	logger.Info().Int("members", s.roster.Len()).Strs("sources", run.Sources).Msg("analysis run started")
	s.emit(ctx, events.TypeRunStarted, run)

	g := graph.New(s.roster)
	driver := discovery.NewDriver(s.source, s.resolver, s.discovery,
		discovery.WithLogger(s.logger),
		discovery.WithMetrics(s.metrics),
		discovery.WithProgress(s.track(run)),
	)
	summary, err := driver.Run(ctx, g)
	run.Summary = summary

	labels := isern.ComputeLabels(g, run.Founders)
	run.Network = network.Analyze(g, s.topK)
	run.Members = snapshotMembers(s.roster, g, labels)
	run.Edges = snapshotEdges(g)
	run.ContextCoauthors = snapshotContext(g)

	completed := s.now().UTC()
	run.CompletedAt = &completed
	res := &Result{Run: run, Graph: g, Labels: labels}

	if err != nil {
		run.Status = domain.RunStatusFailed
		run.ErrorMessage = err.Error()
		if s.metrics != nil {
			s.metrics.RecordRunFailed(run.Duration().Seconds())
		}
		logger.Error().Err(err).Dur("duration", run.Duration()).Msg("analysis run failed")
		return res, fmt.Errorf("discovery: %w", err)
	}

	run.Status = domain.RunStatusCompleted
	if s.metrics != nil {
		s.metrics.RecordRunCompleted(run.Duration().Seconds())
	}
	_, unreachable := labels.Histogram()
	logger.Info().
		Int("edges", run.Network.Edges).
		Int("components", run.Network.Components).
		Int("unreachable", unreachable).
		Dur("duration", run.Duration()).
		Msg("analysis run completed")
	return res, nil
}

func (s *Service) initialProgress(run *domain.Run) *Progress {
	return &Progress{RunID: run.ID, Total: s.roster.Len(), StartedAt: run.StartedAt}
}

func (s *Service) track(run *domain.Run) discovery.ProgressFunc {
	return func(m domain.Member, done, total int) {
		s.current.Store(&Progress{RunID: run.ID, Done: done, Total: total, Member: string(m.ID), StartedAt: run.StartedAt})
		if s.progress != nil {
			s.progress(m, done, total)
		}
	}
}

// persist runs write on a context that survives cancellation of ctx.
func (s *Service) persist(ctx context.Context, write func(context.Context) error) error {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	return write(pctx)
}

// emit publishes a run event. Delivery failures are logged and never fail the run.
func (s *Service) emit(ctx context.Context, eventType string, run *domain.Run) {
	if s.events == nil {
		return
	}
	event, err := s.emitter.RunEvent(eventType, run, observability.RequestIDFromContext(ctx))
	if err == nil {
		err = s.persist(ctx, func(pctx context.Context) error { return s.events.Publish(pctx, event) })
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("run_id", run.ID.String()).Str("event_type", eventType).Msg("failed to publish run event")
	}
}

func snapshotMembers(r *domain.Roster, g *graph.Graph, labels isern.Labels) []domain.RunMember {
	members := r.Members()
	out := make([]domain.RunMember, 0, len(members))
	for _, m := range members {
		out = append(out, domain.RunMember{
			MemberID:    m.ID,
			DisplayName: m.DisplayName,
			Founder:     m.Founder,
			IsernNumber: labels.Get(m.ID).Ptr(),
			Degree:      g.Degree(m.ID),
		})
	}
	return out
}

func snapshotEdges(g *graph.Graph) []domain.RunEdge {
	edges := g.Edges()
	out := make([]domain.RunEdge, 0, len(edges))
	for _, e := range edges {
		out = append(out, domain.RunEdge{
			A:            e.A,
			B:            e.B,
			Multiplicity: e.Multiplicity(),
			Publications: e.Publications,
		})
	}
	return out
}

func snapshotContext(g *graph.Graph) []domain.RunContextNode {
	nodes := g.ContextNodes()
	out := make([]domain.RunContextNode, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, domain.RunContextNode{
			Key:          n.Key,
			DisplayName:  n.DisplayName,
			Publications: n.Publications,
			Members:      n.Members,
		})
	}
	return out
}

func sourceNames(src papersources.PublicationSource) []string {
	if reg, ok := src.(*papersources.Registry); ok {
		return reg.EnabledNames()
	}
	return []string{src.Name()}
}
