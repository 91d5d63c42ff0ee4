package pipeline

import (
	"context"
	"errors"
	"iter"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dport96/ISERN-Graph/internal/config"
	"github.com/dport96/ISERN-Graph/internal/discovery"
	"github.com/dport96/ISERN-Graph/internal/domain"
	"github.com/dport96/ISERN-Graph/internal/events"
	"github.com/dport96/ISERN-Graph/internal/matching"
	"github.com/dport96/ISERN-Graph/internal/observability"
	"github.com/dport96/ISERN-Graph/internal/papersources"
	"github.com/dport96/ISERN-Graph/internal/papersources/static"
	"github.com/dport96/ISERN-Graph/internal/repository"
	"github.com/dport96/ISERN-Graph/internal/similarity"
)

// fakeRepo records writes in memory.
type fakeRepo struct {
	mu        sync.Mutex
	created   []*domain.Run
	saved     []*domain.Run
	finished  []*domain.Run
	createErr error
	saveErr   error
}

var _ repository.RunRepository = (*fakeRepo)(nil)

func (f *fakeRepo) Create(_ context.Context, run *domain.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	cp := *run
	f.created = append(f.created, &cp)
	return nil
}

func (f *fakeRepo) Save(_ context.Context, run *domain.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, run)
	return nil
}

func (f *fakeRepo) Finish(_ context.Context, run *domain.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, run)
	return nil
}

func (f *fakeRepo) Get(context.Context, uuid.UUID) (*domain.Run, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeRepo) Latest(context.Context) (*domain.Run, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeRepo) List(context.Context, repository.RunFilter) ([]*domain.Run, int64, error) {
	return nil, 0, nil
}

func (f *fakeRepo) Delete(context.Context, uuid.UUID) error {
	return nil
}

// blockingSource holds every member's listing open until release is closed.
type blockingSource struct {
	release chan struct{}
}

func (b *blockingSource) Publications(ctx context.Context, _ domain.Member) iter.Seq2[domain.Publication, error] {
	return func(yield func(domain.Publication, error) bool) {
		select {
		case <-b.release:
		case <-ctx.Done():
			yield(domain.Publication{}, ctx.Err())
		}
	}
}

func (b *blockingSource) Name() string    { return "blocking" }
func (b *blockingSource) IsEnabled() bool { return true }

func testRoster(t *testing.T) *domain.Roster {
	t.Helper()
	r, err := domain.NewRoster([]domain.Member{
		{ID: "victor-basili", DisplayName: "Victor Basili", Founder: true},
		{ID: "dan-port", DisplayName: "Dan Port"},
		{ID: "tim-menzies", DisplayName: "Tim Menzies"},
		{ID: "zed-nobody", DisplayName: "Zed Nobody"},
	})
	require.NoError(t, err)
	return r
}

func testSource() *static.Source {
	return static.New([]static.Entry{
		{Member: "victor-basili", ID: "doi:10.1/a", Title: "Experimentation", Authors: []string{"Victor Basili", "Dan Port"}},
		{Member: "dan-port", ID: "doi:10.1/a", Title: "Experimentation", Authors: []string{"Victor Basili", "Dan Port"}},
		{Member: "dan-port", ID: "doi:10.1/b", Title: "Defect Prediction", Authors: []string{"Dan Port", "Tim Menzies", "Ada Outsider"}},
		{Member: "tim-menzies", ID: "doi:10.1/b", Title: "Defect Prediction", Authors: []string{"Dan Port", "Tim Menzies", "Ada Outsider"}},
	})
}

func testEngine(t *testing.T) *matching.Engine {
	t.Helper()
	sim, err := similarity.NewEngine(similarity.DefaultConfig())
	require.NoError(t, err)
	return matching.NewEngine(sim)
}

func newTestService(t *testing.T, src papersources.PublicationSource, opts ...Option) *Service {
	t.Helper()
	svc, err := New(Deps{
		Roster:    testRoster(t),
		Source:    src,
		Engine:    testEngine(t),
		Threshold: 0.85,
		Discovery: discovery.DefaultConfig(),
	}, opts...)
	require.NoError(t, err)
	return svc
}

func member(run *domain.Run, id domain.MemberID) domain.RunMember {
	for _, m := range run.Members {
		if m.MemberID == id {
			return m
		}
	}
	return domain.RunMember{}
}

func TestNew(t *testing.T) {
	engine := testEngine(t)
	r := testRoster(t)

	tests := []struct {
		name    string
		deps    Deps
		wantErr error
	}{
		{"missing roster", Deps{Source: testSource(), Engine: engine, Threshold: 0.85}, domain.ErrInvalidInput},
		{"missing source", Deps{Roster: r, Engine: engine, Threshold: 0.85}, domain.ErrInvalidInput},
		{"missing engine", Deps{Roster: r, Source: testSource(), Threshold: 0.85}, domain.ErrInvalidInput},
		{"threshold above one", Deps{Roster: r, Source: testSource(), Engine: engine, Threshold: 1.5}, domain.ErrInvalidConfiguration},
		{"valid", Deps{Roster: r, Source: testSource(), Engine: engine, Threshold: 0.85}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := New(tt.deps)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 10, svc.topK)
			assert.Equal(t, 0.85, svc.Threshold())
		})
	}
}

func TestService_Run(t *testing.T) {
	repo := &fakeRepo{}
	metrics := observability.NewMetricsWith("test", prometheus.NewRegistry())
	svc := newTestService(t, testSource(), WithRepository(repo), WithMetrics(metrics), WithLogger(zerolog.Nop()))

	res, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res)

	run := res.Run
	assert.Equal(t, domain.RunStatusCompleted, run.Status)
	assert.Equal(t, []domain.MemberID{"victor-basili"}, run.Founders)
	assert.Equal(t, []string{"static"}, run.Sources)
	assert.Equal(t, 0.85, run.Threshold)
	require.NotNil(t, run.CompletedAt)
	assert.Empty(t, run.ErrorMessage)

	t.Run("labels follow hop distance from the founder", func(t *testing.T) {
		assert.Equal(t, 0, *member(run, "victor-basili").IsernNumber)
		assert.Equal(t, 1, *member(run, "dan-port").IsernNumber)
		assert.Equal(t, 2, *member(run, "tim-menzies").IsernNumber)
		assert.Nil(t, member(run, "zed-nobody").IsernNumber)
		assert.Equal(t, []domain.MemberID{"tim-menzies", "dan-port", "victor-basili"}, res.Labels.Path("tim-menzies"))
	})

	t.Run("edges are deduplicated by publication", func(t *testing.T) {
		require.Len(t, run.Edges, 2)
		assert.Equal(t, domain.RunEdge{A: "dan-port", B: "tim-menzies", Multiplicity: 1, Publications: []domain.PublicationID{"doi:10.1/b"}}, run.Edges[0])
		assert.Equal(t, domain.RunEdge{A: "dan-port", B: "victor-basili", Multiplicity: 1, Publications: []domain.PublicationID{"doi:10.1/a"}}, run.Edges[1])
		assert.Equal(t, 2, member(run, "dan-port").Degree)
		assert.Equal(t, 0, member(run, "zed-nobody").Degree)
	})

	t.Run("network summary covers members", func(t *testing.T) {
		assert.Equal(t, 4, run.Network.Nodes)
		assert.Equal(t, 2, run.Network.Edges)
		assert.Equal(t, 2, run.Network.Components)
		assert.Equal(t, 1, run.Network.Isolated)
	})

	t.Run("non-member coauthors are kept as context", func(t *testing.T) {
		assert.Equal(t, []domain.RunContextNode{{
			Key:          "ada outsider",
			DisplayName:  "Ada Outsider",
			Publications: 1,
			Members:      []domain.MemberID{"dan-port", "tim-menzies"},
		}}, run.ContextCoauthors)
	})

	t.Run("run is saved and measured", func(t *testing.T) {
		require.Len(t, repo.saved, 1)
		assert.Same(t, run, repo.saved[0])
		assert.Empty(t, repo.created)
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RunsStarted))
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RunsCompleted))
		assert.Equal(t, 0.0, testutil.ToFloat64(metrics.RunsFailed))
	})

	assert.False(t, svc.Running())
	_, ok := svc.Progress()
	assert.False(t, ok)
}

func TestService_Run_Cancelled(t *testing.T) {
	repo := &fakeRepo{}
	metrics := observability.NewMetricsWith("test", prometheus.NewRegistry())
	svc := newTestService(t, testSource(), WithRepository(repo), WithMetrics(metrics))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := svc.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Equal(t, domain.RunStatusFailed, res.Run.Status)
	assert.Contains(t, res.Run.ErrorMessage, "context canceled")

	require.Len(t, repo.saved, 1, "failed runs are persisted too")
	assert.Equal(t, domain.RunStatusFailed, repo.saved[0].Status)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RunsFailed))
}

func TestService_Run_SaveError(t *testing.T) {
	repo := &fakeRepo{saveErr: errors.New("connection reset")}
	svc := newTestService(t, testSource(), WithRepository(repo))

	res, err := svc.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	require.NotNil(t, res)
	assert.Equal(t, domain.RunStatusCompleted, res.Run.Status)
}

func TestService_Run_WithoutRepository(t *testing.T) {
	var calls int
	var mu sync.Mutex
	svc := newTestService(t, testSource(), WithProgress(func(_ domain.Member, done, total int) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		assert.Equal(t, 4, total)
		assert.LessOrEqual(t, done, total)
	}))

	res, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, res.Run.Status)
	assert.Equal(t, 4, calls)
}

func TestService_Start(t *testing.T) {
	repo := &fakeRepo{}
	src := &blockingSource{release: make(chan struct{})}
	svc := newTestService(t, src, WithRepository(repo))

	header, err := svc.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusRunning, header.Status)
	assert.Nil(t, header.CompletedAt)
	require.Len(t, repo.created, 1)
	assert.Equal(t, header.ID, repo.created[0].ID)

	t.Run("second run is rejected while one executes", func(t *testing.T) {
		assert.True(t, svc.Running())
		_, err := svc.Start(context.Background())
		assert.ErrorIs(t, err, ErrRunInProgress)
		_, err = svc.Run(context.Background())
		assert.ErrorIs(t, err, ErrRunInProgress)
	})

	t.Run("progress is visible while running", func(t *testing.T) {
		p, ok := svc.Progress()
		require.True(t, ok)
		assert.Equal(t, header.ID, p.RunID)
		assert.Equal(t, 4, p.Total)
	})

	close(src.release)
	svc.Wait()

	assert.False(t, svc.Running())
	require.Len(t, repo.finished, 1)
	assert.Equal(t, header.ID, repo.finished[0].ID)
	assert.Equal(t, domain.RunStatusCompleted, repo.finished[0].Status)
	assert.Len(t, repo.finished[0].Members, 4)
}

func TestService_Start_Cancelled(t *testing.T) {
	repo := &fakeRepo{}
	src := &blockingSource{release: make(chan struct{})}
	svc := newTestService(t, src, WithRepository(repo))

	ctx, cancel := context.WithCancel(context.Background())
	_, err := svc.Start(ctx)
	require.NoError(t, err)
	cancel()
	svc.Wait()

	require.Len(t, repo.finished, 1)
	assert.Equal(t, domain.RunStatusFailed, repo.finished[0].Status)
	assert.Contains(t, repo.finished[0].ErrorMessage, "context canceled")
	assert.False(t, svc.Running())
}

// fakePublisher records published events.
type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, evs ...events.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, evs...)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, e := range f.events {
		out[i] = e.EventType
	}
	return out
}

func TestService_Events(t *testing.T) {
	t.Run("completed run emits started then completed", func(t *testing.T) {
		pub := &fakePublisher{}
		svc := newTestService(t, testSource(), WithEvents(pub))

		ctx := observability.WithRequestID(context.Background(), "req-7")
		res, err := svc.Run(ctx)
		require.NoError(t, err)

		assert.Equal(t, []string{events.TypeRunStarted, events.TypeRunCompleted}, pub.types())
		for _, e := range pub.events {
			assert.Equal(t, res.Run.ID.String(), e.AggregateID)
			assert.Equal(t, "req-7", e.Metadata.CorrelationID)
		}
	})

	t.Run("cancelled background run emits failed after recording", func(t *testing.T) {
		pub := &fakePublisher{}
		repo := &fakeRepo{}
		src := &blockingSource{release: make(chan struct{})}
		svc := newTestService(t, src, WithRepository(repo), WithEvents(pub))

		ctx, cancel := context.WithCancel(context.Background())
		_, err := svc.Start(ctx)
		require.NoError(t, err)
		cancel()
		svc.Wait()

		assert.Equal(t, []string{events.TypeRunStarted, events.TypeRunFailed}, pub.types())
		require.Len(t, repo.finished, 1)
	})

	t.Run("publish failures do not fail the run", func(t *testing.T) {
		pub := &fakePublisher{err: errors.New("broker down")}
		svc := newTestService(t, testSource(), WithEvents(pub))

		res, err := svc.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, domain.RunStatusCompleted, res.Run.Status)
	})
}

func TestService_Start_CreateError(t *testing.T) {
	repo := &fakeRepo{createErr: errors.New("db down")}
	svc := newTestService(t, testSource(), WithRepository(repo))

	_, err := svc.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create run")
	assert.False(t, svc.Running(), "a failed start releases the run slot")
}

func TestService_Score(t *testing.T) {
	metrics := observability.NewMetricsWith("test", prometheus.NewRegistry())
	svc := newTestService(t, testSource(), WithMetrics(metrics))

	tests := []struct {
		name     string
		a, b     string
		wantSame bool
		exact    bool
	}{
		{"identical after folding", "Victor Basili", "victor  BASILI", true, true},
		{"different people", "Dan Port", "Tim Menzies", false, false},
		{"empty name", "", "Dan Port", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := svc.Score(tt.a, tt.b)
			assert.Equal(t, tt.wantSame, got.SamePerson)
			assert.Equal(t, tt.exact, got.Score.Exact)
			assert.Equal(t, 0.85, got.Threshold)
		})
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.NamesScored))
}

func TestFromConfig(t *testing.T) {
	dir := t.TempDir()
	rosterPath := filepath.Join(dir, "members.json")
	require.NoError(t, os.WriteFile(rosterPath, []byte(`{
		"isern_members": ["Victor Basili", "Dan Port", "Tim Menzies"],
		"metadata": {"source": "test"}
	}`), 0o600))

	pubsPath := filepath.Join(dir, "publications.yaml")
	require.NoError(t, os.WriteFile(pubsPath, []byte(`publications:
  - member: dan-port
    id: doi:10.1/a
    title: Experimentation
    authors: [Victor Basili, Dan Port]
`), 0o600))

	newCfg := func() *config.Config {
		return &config.Config{
			Matching: config.MatchingConfig{
				Threshold: 0.85,
				Weights:   similarity.DefaultWeights(),
				Phonetic:  string(similarity.PhoneticSoundex),
			},
			Roster:    config.RosterConfig{Path: rosterPath, Founders: []string{"Victor Basili", "Nobody Here"}},
			Discovery: config.DiscoveryConfig{Workers: 2, RequireAuthorMatch: true, TopK: 5},
			Sources:   config.SourcesConfig{Static: config.StaticConfig{Enabled: true, Path: pubsPath}},
		}
	}

	t.Run("builds a runnable service", func(t *testing.T) {
		svc, err := FromConfig(newCfg(), zerolog.Nop(), nil)
		require.NoError(t, err)
		assert.Equal(t, 3, svc.Roster().Len())
		assert.Equal(t, []domain.MemberID{"victor-basili"}, svc.Roster().Founders())
		assert.Equal(t, 5, svc.topK)

		res, err := svc.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"static"}, res.Run.Sources)
		assert.Equal(t, 1, *member(res.Run, "dan-port").IsernNumber)
		assert.Nil(t, member(res.Run, "tim-menzies").IsernNumber)
	})

	t.Run("missing roster", func(t *testing.T) {
		cfg := newCfg()
		cfg.Roster.Path = filepath.Join(dir, "missing.json")
		_, err := FromConfig(cfg, zerolog.Nop(), nil)
		require.Error(t, err)
	})

	t.Run("no source enabled", func(t *testing.T) {
		cfg := newCfg()
		cfg.Sources.Static.Enabled = false
		_, err := FromConfig(cfg, zerolog.Nop(), nil)
		assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
	})

	t.Run("invalid weights", func(t *testing.T) {
		cfg := newCfg()
		cfg.Matching.Weights.Phonetic = 0.9
		_, err := FromConfig(cfg, zerolog.Nop(), nil)
		assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
	})
}

func TestNewRegistry(t *testing.T) {
	metrics := observability.NewMetricsWith("test", prometheus.NewRegistry())
	same := SameAuthor(testEngine(t), 0.85)

	reg, err := NewRegistry(config.SourcesConfig{
		DBLP:     config.DBLPConfig{Enabled: true, RateLimit: 1, Timeout: time.Second},
		OpenAlex: config.OpenAlexConfig{Enabled: true, RateLimit: 10, Timeout: time.Second},
	}, same, zerolog.Nop(), metrics)
	require.NoError(t, err)
	assert.Equal(t, []string{"dblp", "openalex"}, reg.EnabledNames())

	_, err = NewRegistry(config.SourcesConfig{Static: config.StaticConfig{Enabled: true, Path: "/nonexistent.yaml"}}, same, zerolog.Nop(), nil)
	assert.Error(t, err)
}

func TestSameAuthor(t *testing.T) {
	same := SameAuthor(testEngine(t), 0.85)
	assert.True(t, same("Victor Basili", "Victor BASILI"))
	assert.False(t, same("Victor Basili", "Tim Menzies"))
	assert.True(t, same("Jeffrey Carver", "Jeffrey C. Carver"))
	assert.True(t, same("Carolyn Seaman", "Carolyn B. Seaman"))

	invalid := SameAuthor(testEngine(t), 2)
	assert.False(t, invalid("Victor Basili", "Victor Basili"))
}
