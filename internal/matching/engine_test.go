package matching

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dport96/ISERN-Graph/internal/domain"
	"github.com/dport96/ISERN-Graph/internal/names"
	"github.com/dport96/ISERN-Graph/internal/similarity"
)

const defaultThreshold = 0.85

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	s, err := similarity.NewEngine(similarity.DefaultConfig())
	require.NoError(t, err)
	return NewEngine(s)
}

func normalizeAll(raw ...string) []names.Name {
	out := make([]names.Name, len(raw))
	for i, r := range raw {
		out[i] = names.Normalize(r)
	}
	return out
}

func canonicals(r Result) []string {
	out := make([]string, len(r.Candidates))
	for i, c := range r.Candidates {
		out[i] = c.Name.Canonical
	}
	return out
}

// fixedScorer returns a preset fused score per candidate canonical form.
type fixedScorer map[string]float64

func (f fixedScorer) Score(_, b names.Name) similarity.Score {
	return similarity.Score{Fused: f[b.Canonical]}
}

func TestRank_PortScenario(t *testing.T) {
	e := newTestEngine(t)
	query := names.Normalize("Daniel Port")

	res, err := e.Rank(query, normalizeAll("Dan Port", "Daniel Porter", "D. Port"), defaultThreshold)
	require.NoError(t, err)

	assert.Equal(t, []string{"dan port", "d port", "daniel porter"}, canonicals(res))
	assert.True(t, res.Candidates[0].Accepted)
	assert.False(t, res.Candidates[2].Accepted)
	assert.Equal(t, 0, res.Candidates[0].Index)
	assert.Equal(t, 2, res.Candidates[1].Index)
}

func TestFindBestMatches_PortScenario(t *testing.T) {
	e := newTestEngine(t)
	query := names.Normalize("Daniel Port")
	candidates := normalizeAll("Dan Port", "Daniel Porter", "D. Port")

	t.Run("permissive threshold keeps ranking", func(t *testing.T) {
		res, err := e.FindBestMatches(query, candidates, 0.3)
		require.NoError(t, err)
		assert.Equal(t, []string{"dan port", "d port", "daniel porter"}, canonicals(res))
	})

	t.Run("default threshold keeps only the nickname", func(t *testing.T) {
		res, err := e.FindBestMatches(query, candidates, defaultThreshold)
		require.NoError(t, err)
		assert.Equal(t, []string{"dan port"}, canonicals(res))
		assert.Equal(t, 1, res.AcceptedCount())
	})
}

func TestFindBestMatches_OnlyAccepted(t *testing.T) {
	e := NewEngine(fixedScorer{"a": 0.9, "b": 0.5, "c": 0.85})
	res, err := e.FindBestMatches(names.Normalize("q"), normalizeAll("a", "b", "c"), 0.85)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, canonicals(res))
	for _, c := range res.Candidates {
		assert.True(t, c.Accepted)
	}
}

func TestFindBestMatches_EmptyCandidates(t *testing.T) {
	e := newTestEngine(t)
	res, err := e.FindBestMatches(names.Normalize("Daniel Port"), nil, defaultThreshold)
	require.NoError(t, err)
	assert.Empty(t, res.Candidates)
	_, ok := res.Best()
	assert.False(t, ok)
}

func TestRank_TieBreaks(t *testing.T) {
	scorer := fixedScorer{"ann lee": 0.9, "b ann lee": 0.9, "ann kim": 0.9, "zed": 0.9}
	e := NewEngine(scorer)
	query := names.Normalize("Ann Lee")

	res, err := e.Rank(query, normalizeAll("zed", "B. Ann Lee", "Ann Lee", "Ann Kim", "Ann Lee"), 0.5)
	require.NoError(t, err)

	// Two-token candidates first, then canonical order, then input position.
	assert.Equal(t, []string{"ann kim", "ann lee", "ann lee", "b ann lee", "zed"}, canonicals(res))
	assert.Equal(t, 2, res.Candidates[1].Index)
	assert.Equal(t, 4, res.Candidates[2].Index)
}

func TestRank_Deterministic(t *testing.T) {
	e := newTestEngine(t)
	query := names.Normalize("Victor Basili")
	candidates := normalizeAll("V. Basili", "Victor R. Basili", "Basili, Victor", "Vic Basili", "Victor Basilico")

	first, err := e.Rank(query, candidates, 0.5)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := e.Rank(query, candidates, 0.5)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestThresholdValidation(t *testing.T) {
	e := newTestEngine(t)
	a, b := names.Normalize("Daniel Port"), names.Normalize("Dan Port")

	for _, th := range []float64{-0.01, 1.01, math.NaN(), math.Inf(1)} {
		_, err := e.Rank(a, []names.Name{b}, th)
		assert.True(t, errors.Is(err, domain.ErrInvalidConfiguration), "rank %v", th)

		_, err = e.FindBestMatches(a, nil, th)
		assert.True(t, errors.Is(err, domain.ErrInvalidConfiguration), "find %v", th)

		_, err = e.IsLikelySamePerson(a, b, th)
		assert.True(t, errors.Is(err, domain.ErrInvalidConfiguration), "same %v", th)
	}

	for _, th := range []float64{0, 1} {
		_, err := e.Rank(a, []names.Name{b}, th)
		assert.NoError(t, err)
	}
}

func TestIsLikelySamePerson(t *testing.T) {
	e := newTestEngine(t)

	same, err := e.IsLikelySamePerson(names.Normalize("José García"), names.Normalize("Jose Garcia"), defaultThreshold)
	require.NoError(t, err)
	assert.True(t, same)

	same, err = e.IsLikelySamePerson(names.Normalize("Daniel Port"), names.Normalize("Ross Jeffery"), defaultThreshold)
	require.NoError(t, err)
	assert.False(t, same)
}

func TestIsLikelySamePerson_AgreesWithScore(t *testing.T) {
	e := newTestEngine(t)
	pool := normalizeAll("Daniel Port", "Dan Port", "D. Port", "Daniel Porter", "V. R. Basili", "Victor Basili", "", "Ross Jeffery")
	for _, th := range []float64{0, 0.3, 0.5, 0.72, 0.85, 1} {
		for _, a := range pool {
			for _, b := range pool {
				got, err := e.IsLikelySamePerson(a, b, th)
				require.NoError(t, err)
				assert.Equal(t, e.Score(a, b).Fused >= th, got)
			}
		}
	}
}
