package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/timechildgames/cloudrelay/internal/dispatch"
)

const maxBodyBytes = 1 << 20

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	available := true
	if s.probe != nil {
		available = s.probe.Reachable()
	}
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:           "ok",
		UptimeSeconds:    int64(time.Since(s.startedAt).Seconds()),
		Outstanding:      s.relay.Outstanding(),
		Queued:           s.relay.Queued(),
		NetworkAvailable: available,
	})
}

// handleFunction submits a cloud function call. Invalid names or params are
// not rejected here: they resolve as failure results like any other error.
func (s *Server) handleFunction(w http.ResponseWriter, r *http.Request) {
	var req FunctionRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := s.relay.Submit(dispatch.Request{
		Function:     chi.URLParam(r, "name"),
		Params:       string(req.Params),
		SessionToken: req.SessionToken,
	})
	respondJSON(w, http.StatusAccepted, SubmitResponse{RequestID: int64(id)})
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	var req RESTRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Method == "" || req.Endpoint == "" {
		s.writeError(w, http.StatusBadRequest, "method and endpoint are required")
		return
	}

	id := s.relay.Submit(dispatch.Request{
		Method:       req.Method,
		Endpoint:     req.Endpoint,
		Body:         string(req.Body),
		SessionToken: req.SessionToken,
	})
	respondJSON(w, http.StatusAccepted, SubmitResponse{RequestID: int64(id)})
}

// handleNextResult pops the oldest completed result, or answers 204.
func (s *Server) handleNextResult(w http.ResponseWriter, r *http.Request) {
	result, ok := s.relay.FetchNext()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleResultLog(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		s.writeError(w, http.StatusNotFound, "result journal is disabled")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			s.writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	entries, err := s.journal.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to read result log", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read result log")
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

// decodeBody decodes an optional JSON body into v.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return errors.New("invalid JSON body")
	}
	return nil
}

// respondJSON is a helper to write JSON responses
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
