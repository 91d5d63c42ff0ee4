// Package papersources provides bibliographic sources that list a member's publications.
//
// Each source (DBLP, OpenAlex, a local file) implements PublicationSource. A source answers
// one question: which publications does this member appear on, and who are the other
// authors. The discovery driver consumes the lazy sequence a source returns and never
// restarts it.
//
// Example usage:
//
//	src := dblp.New(cfg, papersources.NewHTTPClient(httpCfg))
//	for pub, err := range src.Publications(ctx, member) {
//		if err != nil {
//			// the sequence ends after an error
//			break
//		}
//		fmt.Println(pub.ID, pub.Authors)
//	}
package papersources

import (
	"context"
	"iter"

	"github.com/dport96/ISERN-Graph/internal/domain"
)

// PublicationSource lists the publications of roster members.
type PublicationSource interface {
	// Publications returns a lazy, finite, single-use sequence of the member's publications.
	// A non-nil error is yielded at most once and ends the sequence. Implementations must
	// respect ctx cancellation between requests.
	Publications(ctx context.Context, member domain.Member) iter.Seq2[domain.Publication, error]

	// Name returns a short source identifier used for logging, metrics and provenance.
	Name() string

	// IsEnabled reports whether the source is configured and should be queried.
	IsEnabled() bool
}

// Collect drains seq into a slice, stopping at the first error or after limit publications
// when limit is positive.
func Collect(seq iter.Seq2[domain.Publication, error], limit int) ([]domain.Publication, error) {
	var out []domain.Publication
	for pub, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, pub)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// FromSlice returns a sequence over pubs. It is used by in-memory sources.
func FromSlice(pubs []domain.Publication) iter.Seq2[domain.Publication, error] {
	return func(yield func(domain.Publication, error) bool) {
		for _, p := range pubs {
			if !yield(p, nil) {
				return
			}
		}
	}
}

// Fail returns a sequence that yields only err.
func Fail(err error) iter.Seq2[domain.Publication, error] {
	return func(yield func(domain.Publication, error) bool) {
		yield(domain.Publication{}, err)
	}
}
