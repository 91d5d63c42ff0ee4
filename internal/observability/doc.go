// Package observability provides logging and metrics support for the collaboration
// graph service.
//
// # Logging
//
// Create a logger from configuration:
//
//	logger := observability.NewLogger(observability.LoggingConfig{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "stderr",
//	})
//	logger = observability.WithRunContext(logger, runID.String(), cfg.Matching.Threshold)
//	logger.Info().Int("members", roster.Len()).Msg("run started")
//
// # Metrics
//
// NewMetrics registers every collector with the default Prometheus registry; use
// NewMetricsWith and a private registry in tests. *Metrics satisfies
// papersources.RequestObserver, so HTTP clients report request telemetry directly.
package observability
