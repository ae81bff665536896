package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"fetchd/internal/domain"
	"fetchd/internal/jobs"
	"fetchd/internal/middleware"
	"fetchd/internal/retrieval"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

type App struct {
	Store      domain.JobStore
	Dispatcher *jobs.Dispatcher
	Delivery   *jobs.Delivery
	Logger     zerolog.Logger
}

func NewApp(store domain.JobStore, dispatcher *jobs.Dispatcher, logger zerolog.Logger) *App {
	return &App{
		Store:      store,
		Dispatcher: dispatcher,
		Delivery:   jobs.NewDelivery(store),
		Logger:     logger.With().Str("component", "http").Logger(),
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, msg string) {
	a.json(w, code, errorResponse{Error: errCode, Message: msg})
}

// fail maps err onto the wire contract. Anything unrecognised is logged and
// answered with a generic 500.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		a.error(w, http.StatusBadRequest, "bad_request", publicMessage(err, domain.ErrValidation))
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "job not found or expired")
	case errors.Is(err, domain.ErrNotReady):
		a.error(w, http.StatusBadRequest, "not_ready", "artifact is not ready yet")
	case errors.Is(err, domain.ErrGone):
		a.error(w, http.StatusGone, "gone", "artifact was already downloaded")
	case errors.Is(err, domain.ErrBusy):
		a.error(w, http.StatusServiceUnavailable, "busy", "server busy, try again later")
	case errors.Is(err, retrieval.ErrRetrieval):
		a.error(w, http.StatusBadRequest, "retrieval_failed", publicMessage(err, retrieval.ErrRetrieval))
	default:
		a.Logger.Error().Err(err).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}

// publicMessage strips the sentinel prefix from a wrapped error.
func publicMessage(err, sentinel error) string {
	msg := strings.TrimPrefix(err.Error(), sentinel.Error()+": ")
	if msg == "" {
		return sentinel.Error()
	}
	return msg
}

// decode reads a JSON body. Empty bodies and syntax errors are validation
// failures.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is required", domain.ErrValidation)
		}
		return fmt.Errorf("%w: invalid JSON body", domain.ErrValidation)
	}
	return nil
}
