package papersources

import (
	"context"
	"errors"
	"iter"
	"sort"
	"sync"

	"github.com/dport96/ISERN-Graph/internal/domain"
)

// SourceError tags an error with the source that produced it.
type SourceError struct {
	Source string
	Err    error
}

// Error implements the error interface.
func (e *SourceError) Error() string {
	return e.Source + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *SourceError) Unwrap() error {
	return e.Err
}

// Registry manages publication sources and merges their output.
// It provides thread-safe registration and retrieval, and itself implements
// PublicationSource by querying every enabled source in name order and de-duplicating
// publications by canonical ID, so a paper listed by both DBLP and OpenAlex counts once.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]PublicationSource
}

// NewRegistry creates a new source registry with an empty source map.
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[string]PublicationSource),
	}
}

// Register adds a source to the registry.
// If a source with the same name already exists, it will be replaced.
func (r *Registry) Register(source PublicationSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[source.Name()] = source
}

// Get returns a source by name, or nil if not found.
func (r *Registry) Get(name string) PublicationSource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sources[name]
}

// AllSources returns all registered sources ordered by name.
func (r *Registry) AllSources() []PublicationSource {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make([]PublicationSource, 0, len(r.sources))
	for _, source := range r.sources {
		sources = append(sources, source)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].Name() < sources[j].Name() })
	return sources
}

// EnabledSources returns only enabled sources ordered by name.
func (r *Registry) EnabledSources() []PublicationSource {
	all := r.AllSources()
	enabled := all[:0]
	for _, s := range all {
		if s.IsEnabled() {
			enabled = append(enabled, s)
		}
	}
	return enabled
}

// EnabledNames returns the names of the enabled sources.
func (r *Registry) EnabledNames() []string {
	var out []string
	for _, s := range r.EnabledSources() {
		out = append(out, s.Name())
	}
	return out
}

// Name implements PublicationSource.
func (r *Registry) Name() string {
	return "registry"
}

// IsEnabled reports whether any registered source is enabled.
func (r *Registry) IsEnabled() bool {
	return len(r.EnabledSources()) > 0
}

// Publications implements PublicationSource. Sources are consulted one after another; a
// failing source does not stop the others. If any source failed, a single joined error is
// yielded after every publication that could be fetched.
func (r *Registry) Publications(ctx context.Context, member domain.Member) iter.Seq2[domain.Publication, error] {
	sources := r.EnabledSources()
	return func(yield func(domain.Publication, error) bool) {
		seen := make(map[domain.PublicationID]struct{})
		var errs []error

		for _, src := range sources {
			if err := ctx.Err(); err != nil {
				errs = append(errs, err)
				break
			}
			for pub, err := range src.Publications(ctx, member) {
				if err != nil {
					errs = append(errs, &SourceError{Source: src.Name(), Err: err})
					break
				}
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

		if len(errs) > 0 {
			yield(domain.Publication{}, errors.Join(errs...))
		}
	}
}
