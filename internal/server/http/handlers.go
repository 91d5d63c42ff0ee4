package httpserver

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dport96/ISERN-Graph/internal/domain"
	"github.com/dport96/ISERN-Graph/internal/pipeline"
	"github.com/dport96/ISERN-Graph/internal/repository"
)

// Pagination and validation constants.
const (
	defaultPageSize    = 50
	maxPageSize        = 100
	maxRequestBodySize = 1 << 20 // 1 MB limit for request bodies
)

// startRun handles POST /runs. The run executes in the background; the response carries
// its ID for polling.
func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.runner.Start(s.runCtx)
	if err != nil {
		if errors.Is(err, pipeline.ErrRunInProgress) {
			writeError(w, http.StatusConflict, "an analysis run is already in progress")
			return
		}
		s.logger.Error().Err(err).Msg("failed to start analysis run")
		writeDomainError(w, err)
		return
	}

	s.logger.Info().Str("run_id", run.ID.String()).Msg("analysis run started via API")
	writeJSON(w, http.StatusAccepted, startRunResponse{
		RunID:     run.ID.String(),
		Status:    string(run.Status),
		StartedAt: run.StartedAt,
		Message:   "analysis run started",
	})
}

// listRuns handles GET /runs with optional status filter and page tokens.
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePaginationParams(r)
	filter := repository.RunFilter{Limit: limit, Offset: offset}

	if statusParam := r.URL.Query().Get("status"); statusParam != "" {
		for _, st := range strings.Split(statusParam, ",") {
			filter.Status = append(filter.Status, domain.RunStatus(strings.TrimSpace(st)))
		}
	}

	runs, totalCount, err := s.runRepo.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	summaries := make([]runSummaryResponse, len(runs))
	for i, run := range runs {
		summaries[i] = domainRunToSummary(run)
	}

	writeJSON(w, http.StatusOK, listRunsResponse{
		Runs:          summaries,
		NextPageToken: encodeHTTPPageToken(offset, limit, int(totalCount)),
		TotalCount:    int(totalCount),
	})
}

// getLatestRun handles GET /runs/latest, the most recent completed run.
func (s *Server) getLatestRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.runRepo.Latest(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domainRunToDetail(run))
}

// getCurrentRun handles GET /runs/current, the progress of the executing run.
func (s *Server) getCurrentRun(w http.ResponseWriter, _ *http.Request) {
	p, ok := s.runner.Progress()
	if !ok {
		writeError(w, http.StatusNotFound, "no analysis run in progress")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// getRun handles GET /runs/{runID}.
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, domainRunToDetail(run))
}

// getRunLabels handles GET /runs/{runID}/labels.
func (s *Server) getRunLabels(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, domainRunToLabels(run))
}

// getRunEdges handles GET /runs/{runID}/edges.
func (s *Server) getRunEdges(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	edges := run.Edges
	if edges == nil {
		edges = []domain.RunEdge{}
	}
	writeJSON(w, http.StatusOK, edgesResponse{RunID: run.ID.String(), Edges: edges, TotalCount: len(edges)})
}

// deleteRun handles DELETE /runs/{runID}.
func (s *Server) deleteRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := parseUUID(w, chi.URLParam(r, "runID"), "run_id")
	if !ok {
		return
	}
	if p, running := s.runner.Progress(); running && p.RunID == runID {
		writeError(w, http.StatusConflict, "run is still in progress")
		return
	}
	if err := s.runRepo.Delete(r.Context(), runID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// getRoster handles GET /roster.
func (s *Server) getRoster(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, domainRosterToResponse(s.runner.Roster()))
}

func (s *Server) loadRun(w http.ResponseWriter, r *http.Request) (*domain.Run, bool) {
	runID, ok := parseUUID(w, chi.URLParam(r, "runID"), "run_id")
	if !ok {
		return nil, false
	}
	run, err := s.runRepo.Get(r.Context(), runID)
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	return run, true
}

// writeDomainError maps domain errors to appropriate HTTP status codes and writes a JSON
// error response. Internal error details are not leaked to clients.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, domain.ErrInvalidInput):
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
		} else {
			writeError(w, http.StatusBadRequest, "invalid input")
		}
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "resource already exists")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited")
	case errors.Is(err, domain.ErrServiceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	case errors.Is(err, domain.ErrCancelled):
		writeError(w, http.StatusConflict, "operation cancelled")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// parseUUID parses a UUID from a string, writing a 400 error response if invalid.
// The parse error details are not included to avoid echoing potentially malicious input.
func parseUUID(w http.ResponseWriter, s, fieldName string) (uuid.UUID, bool) {
	id, err := uuid.Parse(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be a valid UUID", fieldName))
		return uuid.Nil, false
	}
	return id, true
}

// parsePaginationParams extracts page_size and page_token from query parameters.
// It applies default and maximum bounds to the page size.
func parsePaginationParams(r *http.Request) (limit, offset int) {
	limit = defaultPageSize
	if pageSizeStr := r.URL.Query().Get("page_size"); pageSizeStr != "" {
		if parsed, err := strconv.Atoi(pageSizeStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	if pageToken := r.URL.Query().Get("page_token"); pageToken != "" {
		decoded, err := base64.StdEncoding.DecodeString(pageToken)
		if err == nil {
			if parsed, parseErr := strconv.Atoi(string(decoded)); parseErr == nil && parsed > 0 {
				offset = parsed
			}
		}
	}

	return limit, offset
}

// encodeHTTPPageToken encodes the next offset as a base64 page token.
// Returns an empty string if there are no more results.
func encodeHTTPPageToken(offset, limit, totalCount int) string {
	nextOffset := offset + limit
	if nextOffset < totalCount {
		return base64.StdEncoding.EncodeToString([]byte(strconv.Itoa(nextOffset)))
	}
	return ""
}
