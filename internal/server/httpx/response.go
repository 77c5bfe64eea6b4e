// Package httpx holds the JSON plumbing every HTTP handler shares.
package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	svcErr "github.com/oggyb/amora/internal/errors"
	"github.com/oggyb/amora/internal/logger"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// ErrorBody is the failure envelope.
type ErrorBody struct {
	Error   bool           `json:"error"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// JSON writes v with status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// NoContent writes 204.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Error maps err onto the envelope. Internal causes are logged, never sent.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	e := svcErr.Map(err)
	log := logger.FromContext(r.Context(), nil)
	if e.Status() >= http.StatusInternalServerError {
		log.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	} else {
		log.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", e.Status(), "err", err)
	}
	JSON(w, e.Status(), ErrorBody{Error: true, Message: e.Message, Details: e.Details})
}

// Decode reads a JSON body into dst, rejecting unknown fields.
func Decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return svcErr.InvalidArgument("request body is required")
		}
		return svcErr.InvalidArgument("malformed JSON body")
	}
	return nil
}

// PathID parses a uint64 URL parameter.
func PathID(r *http.Request, name string) (uint64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, svcErr.InvalidArgument(name + " must be a positive integer")
	}
	return id, nil
}

// QueryInt reads an integer query parameter, def when absent.
func QueryInt(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, svcErr.InvalidArgument(name + " must be a non-negative integer")
	}
	return n, nil
}

// Logger returns the request-scoped logger, or fallback.
func Logger(r *http.Request, fallback *slog.Logger) *slog.Logger {
	return logger.FromContext(r.Context(), fallback)
}
