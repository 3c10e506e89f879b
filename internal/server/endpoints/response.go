package endpoints

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jackzampolin/proposer/internal/analysis"
	"github.com/jackzampolin/proposer/internal/svcctx"
)

// StatusClientClosedRequest reports a run stopped because the caller went
// away or cancelled it.
const StatusClientClosedRequest = 499

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeAnalysisError maps pipeline errors to responses. Cancellation is an
// expected outcome and is not logged as an error.
func writeAnalysisError(w http.ResponseWriter, r *http.Request, err error) {
	logger := svcctx.LoggerFrom(r.Context())
	switch {
	case analysis.IsCancelled(err):
		logger.Info("analysis cancelled", "path", r.URL.Path)
		writeError(w, StatusClientClosedRequest, "analysis cancelled")
	case analysis.IsFatal(err):
		logger.Error("analysis failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, svcctx.ErrNoProvider):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		logger.Error("analysis failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// analyzerFrom returns an analyzer for the request or writes the error response.
func analyzerFrom(w http.ResponseWriter, r *http.Request) (*analysis.Analyzer, bool) {
	source := svcctx.AnalyzersFrom(r.Context())
	if source == nil {
		writeError(w, http.StatusServiceUnavailable, "analyzer not initialized")
		return nil, false
	}
	a, err := source.Analyzer()
	if err != nil {
		writeAnalysisError(w, r, err)
		return nil, false
	}
	return a, true
}

// decodeBody decodes a JSON request body of at most maxBodyBytes.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// maxBodyBytes bounds request bodies; base64 PDFs are the largest input.
const maxBodyBytes = 64 << 20
