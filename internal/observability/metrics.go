package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the collaboration graph service.
// Metrics are organized by subsystem: runs, discovery, name resolution, graph and sources.
type Metrics struct {
	// RunsStarted counts analysis runs initiated.
	RunsStarted prometheus.Counter

	// RunsCompleted counts analysis runs that finished successfully.
	RunsCompleted prometheus.Counter

	// RunsFailed counts analysis runs that ended in failure.
	RunsFailed prometheus.Counter

	// RunDuration observes the end-to-end duration of runs in seconds.
	RunDuration prometheus.Histogram

	// MembersProcessed counts roster members whose publications were fetched.
	MembersProcessed prometheus.Counter

	// PublicationsFetched counts publications yielded, labeled by source.
	PublicationsFetched *prometheus.CounterVec

	// PublicationsSkipped counts publications dropped before edge recording, labeled by reason.
	PublicationsSkipped *prometheus.CounterVec

	// PublicationsPerMember observes publications fetched per member.
	PublicationsPerMember prometheus.Histogram

	// CoauthorNames counts coauthor name resolutions, labeled by outcome
	// (resolved, unresolved, malformed, self).
	CoauthorNames *prometheus.CounterVec

	// AmbiguousMatches counts resolutions where two members tied for the best score.
	AmbiguousMatches prometheus.Counter

	// EdgesRecorded counts coauthorship recordings, labeled by outcome
	// (added, duplicate, self_loop, unknown_member, no_publication).
	EdgesRecorded *prometheus.CounterVec

	// FetchErrors counts member fetches that ended in an error, labeled by source.
	FetchErrors *prometheus.CounterVec

	// NamesScored counts pairwise score requests served by the API.
	NamesScored prometheus.Counter

	// SourceRequestsTotal counts HTTP requests to publication APIs, labeled by source and endpoint.
	SourceRequestsTotal *prometheus.CounterVec

	// SourceRequestsFailed counts failed HTTP requests, labeled by source, endpoint, and error type.
	SourceRequestsFailed *prometheus.CounterVec

	// SourceRequestDuration observes HTTP request duration to publication APIs in seconds.
	SourceRequestDuration *prometheus.HistogramVec

	// SourceRateLimited counts rate-limited responses, labeled by source.
	SourceRateLimited *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance registered with the default Prometheus registry.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWith creates a Metrics instance registered with reg.
func NewMetricsWith(namespace string, reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		// Runs
		RunsStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Total number of analysis runs started",
		}),
		RunsCompleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_completed_total",
			Help:      "Total number of analysis runs completed successfully",
		}),
		RunsFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_failed_total",
			Help:      "Total number of analysis runs that failed",
		}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of analysis runs in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200, 1800, 3600},
		}),

		// Discovery
		MembersProcessed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "members_processed_total",
			Help:      "Total number of roster members processed",
		}),
		PublicationsFetched: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publications_fetched_total",
			Help:      "Total number of publications fetched by source",
		}, []string{"source"}),
		PublicationsSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publications_skipped_total",
			Help:      "Total number of publications skipped by reason",
		}, []string{"reason"}),
		PublicationsPerMember: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "publications_per_member",
			Help:      "Number of publications fetched per member",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 200, 500, 1000},
		}),

		// Name resolution
		CoauthorNames: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coauthor_names_total",
			Help:      "Total number of coauthor names resolved by outcome",
		}, []string{"outcome"}),
		AmbiguousMatches: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ambiguous_matches_total",
			Help:      "Total number of coauthor names that tied between members",
		}),
		NamesScored: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "names_scored_total",
			Help:      "Total number of pairwise name scores served",
		}),

		// Graph
		EdgesRecorded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edges_recorded_total",
			Help:      "Total number of coauthorship recordings by outcome",
		}, []string{"outcome"}),
		FetchErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_errors_total",
			Help:      "Total number of member fetches that failed by source",
		}, []string{"source"}),

		// Sources
		SourceRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_total",
			Help:      "Total number of requests to publication sources",
		}, []string{"source", "endpoint"}),
		SourceRequestsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_failed_total",
			Help:      "Total number of failed requests to publication sources",
		}, []string{"source", "endpoint", "error_type"}),
		SourceRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_request_duration_seconds",
			Help:      "Duration of requests to publication sources in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"source", "endpoint"}),
		SourceRateLimited: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_rate_limited_total",
			Help:      "Total number of rate limit responses from publication sources",
		}, []string{"source"}),
	}
}

// RecordRunStarted records that a run has started.
func (m *Metrics) RecordRunStarted() {
	m.RunsStarted.Inc()
}

// RecordRunCompleted records that a run has completed.
func (m *Metrics) RecordRunCompleted(durationSeconds float64) {
	m.RunsCompleted.Inc()
	m.RunDuration.Observe(durationSeconds)
}

// RecordRunFailed records that a run has failed.
func (m *Metrics) RecordRunFailed(durationSeconds float64) {
	m.RunsFailed.Inc()
	m.RunDuration.Observe(durationSeconds)
}

// RecordMemberProcessed records a member's fetch with the number of publications seen.
func (m *Metrics) RecordMemberProcessed(publications int) {
	m.MembersProcessed.Inc()
	m.PublicationsPerMember.Observe(float64(publications))
}

// RecordPublicationFetched records a publication yielded by a source.
func (m *Metrics) RecordPublicationFetched(source string) {
	m.PublicationsFetched.WithLabelValues(source).Inc()
}

// RecordPublicationSkipped records a dropped publication.
func (m *Metrics) RecordPublicationSkipped(reason string) {
	m.PublicationsSkipped.WithLabelValues(reason).Inc()
}

// RecordCoauthorName records the outcome of resolving one coauthor name.
func (m *Metrics) RecordCoauthorName(outcome string, ambiguous bool) {
	m.CoauthorNames.WithLabelValues(outcome).Inc()
	if ambiguous {
		m.AmbiguousMatches.Inc()
	}
}

// RecordEdge records the outcome of one coauthorship recording.
func (m *Metrics) RecordEdge(outcome string) {
	m.EdgesRecorded.WithLabelValues(outcome).Inc()
}

// RecordFetchError records a member fetch that ended in an error.
func (m *Metrics) RecordFetchError(source string) {
	m.FetchErrors.WithLabelValues(source).Inc()
}

// RecordNameScored records a pairwise score served by the API.
func (m *Metrics) RecordNameScored() {
	m.NamesScored.Inc()
}

// RecordSourceRequest records a request to a publication source.
func (m *Metrics) RecordSourceRequest(source, endpoint string, durationSeconds float64) {
	m.SourceRequestsTotal.WithLabelValues(source, endpoint).Inc()
	m.SourceRequestDuration.WithLabelValues(source, endpoint).Observe(durationSeconds)
}

// RecordSourceRequestFailed records a failed request to a publication source.
func (m *Metrics) RecordSourceRequestFailed(source, endpoint, errorType string) {
	m.SourceRequestsFailed.WithLabelValues(source, endpoint, errorType).Inc()
}

// RecordSourceRateLimited records a rate limit response from a source.
func (m *Metrics) RecordSourceRateLimited(source string) {
	m.SourceRateLimited.WithLabelValues(source).Inc()
}
