package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/mnslabs/mns-backend/interfaces"
	"github.com/mnslabs/mns-backend/service"
)

// maxBodySize is the maximum allowed request body size (64KB). Registration
// payloads are tiny; anything larger is garbage.
const maxBodySize = 64 * 1024

// RequestError provides structured error information for HTTP responses.
// It includes both an HTTP status code and the underlying error.
type RequestError struct {
	// StatusCode is the HTTP status code to return.
	StatusCode int

	// Err is the underlying error.
	Err error
}

// Error returns the error message from the underlying error.
func (e *RequestError) Error() string {
	return e.Err.Error()
}

// Handler processes the name service API requests and maps service errors to
// HTTP status codes.
type Handler struct {
	svc *service.Service
	log *slog.Logger
}

// NewHandler creates an HTTP request handler over the given service.
func NewHandler(svc *service.Service, log *slog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

type registerRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Version string `json:"version"`
}

// HandleRegister processes registrations.
//
// URL format: PUT /api/register
// Request body: JSON {"name": "...", "address": "0x...", "version": "2"|"2.5"}
//
// Responses: 200 with the registration result, 400 on validation failure,
// 409 when the name is taken, 503 when the network is transiently unavailable.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		h.writeError(w, &RequestError{http.StatusBadRequest, err})
		return
	}

	var req registerRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeError(w, &RequestError{http.StatusBadRequest, err})
		return
	}

	result, err := h.svc.Register(r.Context(), req.Name, req.Address, interfaces.Tier(req.Version))
	if err != nil {
		h.writeError(w, classify(err))
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HandleLookup resolves a name.
//
// URL format: GET /api/lookup?name=...&version=...
// An omitted version resolves against the directory first, then the contract.
func (h *Handler) HandleLookup(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	tier := interfaces.Tier(r.URL.Query().Get("version"))

	result, err := h.svc.Lookup(r.Context(), name, tier)
	if err != nil {
		h.writeError(w, classify(err))
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HandleList enumerates a tier's bindings.
//
// URL format: GET /api/list?version=...
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	tier := interfaces.Tier(r.URL.Query().Get("version"))

	records, err := h.svc.List(r.Context(), tier)
	if err != nil {
		h.writeError(w, classify(err))
		return
	}
	if records == nil {
		records = []interfaces.Record{}
	}
	h.writeJSON(w, http.StatusOK, records)
}

// classify maps service errors onto HTTP status codes.
func classify(err error) *RequestError {
	switch {
	case errors.Is(err, interfaces.ErrValidation):
		return &RequestError{http.StatusBadRequest, err}
	case errors.Is(err, interfaces.ErrNotFound):
		return &RequestError{http.StatusNotFound, err}
	case errors.Is(err, interfaces.ErrConflict):
		return &RequestError{http.StatusConflict, err}
	case interfaces.IsTransient(err):
		return &RequestError{http.StatusServiceUnavailable, err}
	default:
		var subErr *interfaces.SubmissionError
		if errors.As(err, &subErr) {
			return &RequestError{http.StatusBadGateway, err}
		}
		return &RequestError{http.StatusInternalServerError, err}
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("failed to encode response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, reqErr *RequestError) {
	if reqErr.StatusCode >= http.StatusInternalServerError {
		h.log.Error("request failed", "status", reqErr.StatusCode, "err", reqErr.Err)
	} else {
		h.log.Debug("request rejected", "status", reqErr.StatusCode, "err", reqErr.Err)
	}
	h.writeJSON(w, reqErr.StatusCode, map[string]string{"error": reqErr.Error()})
}
