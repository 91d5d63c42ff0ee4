package papersources

import (
	"context"
	"errors"
	"iter"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dport96/ISERN-Graph/internal/domain"
)

// mockSource is an in-memory PublicationSource for tests.
type mockSource struct {
	name    string
	enabled bool
	pubs    []domain.Publication
	err     error
	calls   atomic.Int32
}

func (m *mockSource) Publications(_ context.Context, _ domain.Member) iter.Seq2[domain.Publication, error] {
	m.calls.Add(1)
	return func(yield func(domain.Publication, error) bool) {
		for _, p := range m.pubs {
			if !yield(p, nil) {
				return
			}
		}
		if m.err != nil {
			yield(domain.Publication{}, m.err)
		}
	}
}

func (m *mockSource) Name() string    { return m.name }
func (m *mockSource) IsEnabled() bool { return m.enabled }

func pub(id string, authors ...string) domain.Publication {
	return domain.Publication{ID: domain.PublicationID(id), Title: id, Authors: authors}
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	a := &mockSource{name: "dblp", enabled: true}
	b := &mockSource{name: "openalex", enabled: false}
	r.Register(b)
	r.Register(a)

	assert.Same(t, a, r.Get("dblp"))
	assert.Nil(t, r.Get("missing"))
	require.Len(t, r.AllSources(), 2)
	assert.Equal(t, "dblp", r.AllSources()[0].Name())
	assert.Equal(t, []string{"dblp"}, r.EnabledNames())
	assert.True(t, r.IsEnabled())

	replacement := &mockSource{name: "dblp", enabled: false}
	r.Register(replacement)
	assert.Same(t, replacement, r.Get("dblp"))
	assert.False(t, r.IsEnabled())
}

func TestRegistry_Publications(t *testing.T) {
	member := domain.Member{ID: "port", DisplayName: "Dan Port"}

	t.Run("merges and de-duplicates", func(t *testing.T) {
		r := NewRegistry()
		r.Register(&mockSource{name: "dblp", enabled: true, pubs: []domain.Publication{
			pub("doi:10.1/a", "Dan Port", "Tim Menzies"),
			pub("dblp:conf/x/1", "Dan Port"),
		}})
		r.Register(&mockSource{name: "openalex", enabled: true, pubs: []domain.Publication{
			pub("doi:10.1/a", "D. Port", "T. Menzies"),
			pub("openalex:W1", "Dan Port", "Barry Boehm"),
			pub("", "no id"),
		}})
		r.Register(&mockSource{name: "static", enabled: false, pubs: []domain.Publication{pub("local:x")}})

		got, err := Collect(r.Publications(context.Background(), member), 0)
		require.NoError(t, err)

		ids := make([]domain.PublicationID, len(got))
		for i, p := range got {
			ids[i] = p.ID
		}
		assert.Equal(t, []domain.PublicationID{"doi:10.1/a", "dblp:conf/x/1", "openalex:W1"}, ids)
		assert.Equal(t, []string{"Dan Port", "Tim Menzies"}, got[0].Authors)
	})

	t.Run("continues past a failing source", func(t *testing.T) {
		boom := errors.New("boom")
		r := NewRegistry()
		r.Register(&mockSource{name: "a", enabled: true, pubs: []domain.Publication{pub("local:1")}, err: boom})
		r.Register(&mockSource{name: "b", enabled: true, pubs: []domain.Publication{pub("local:2")}})

		var ids []domain.PublicationID
		var gotErr error
		for p, err := range r.Publications(context.Background(), member) {
			if err != nil {
				gotErr = err
				continue
			}
			ids = append(ids, p.ID)
		}
		assert.Equal(t, []domain.PublicationID{"local:1", "local:2"}, ids)
		require.Error(t, gotErr)
		assert.ErrorIs(t, gotErr, boom)

		var srcErr *SourceError
		require.ErrorAs(t, gotErr, &srcErr)
		assert.Equal(t, "a", srcErr.Source)
	})

	t.Run("stops when consumer stops", func(t *testing.T) {
		second := &mockSource{name: "b", enabled: true, pubs: []domain.Publication{pub("local:2")}}
		r := NewRegistry()
		r.Register(&mockSource{name: "a", enabled: true, pubs: []domain.Publication{pub("local:1"), pub("local:3")}})
		r.Register(second)

		got, err := Collect(r.Publications(context.Background(), member), 1)
		require.NoError(t, err)
		assert.Len(t, got, 1)
		assert.Equal(t, int32(0), second.calls.Load())
	})

	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		r := NewRegistry()
		r.Register(&mockSource{name: "a", enabled: true, pubs: []domain.Publication{pub("local:1")}})

		_, err := Collect(r.Publications(ctx, member), 0)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestFromSliceAndFail(t *testing.T) {
	got, err := Collect(FromSlice([]domain.Publication{pub("local:1"), pub("local:2")}), 0)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	boom := errors.New("boom")
	got, err = Collect(Fail(boom), 0)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, got)
}
