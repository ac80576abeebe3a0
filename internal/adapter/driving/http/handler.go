package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ericfisherdev/glucoshare/internal/application"
	"github.com/ericfisherdev/glucoshare/internal/domain/model"
	"github.com/ericfisherdev/glucoshare/internal/domain/port/driven"
)

// ReadingSource is the part of the poller the API exposes. *application.Poller
// satisfies it.
type ReadingSource interface {
	ReadNow(ctx context.Context, opts model.FetchOptions) ([]model.Reading, error)
	Watermark() (model.Reading, bool)
	WaitHint() time.Duration
	NextPollAt() (time.Time, bool)
}

// CredentialUpdater replaces the Share account credentials at runtime.
// *application.CredentialService satisfies it.
type CredentialUpdater interface {
	UpdateCredentials(ctx context.Context, creds model.Credentials) (bool, error)
}

// Handler is the HTTP driving adapter that serves the diagnostics API.
type Handler struct {
	readings ReadingSource
	creds    CredentialUpdater
	metrics  http.Handler
	logger   *slog.Logger
}

// NewHandler creates a Handler with all required dependencies. metrics serves
// /metrics and may be nil to leave the route unregistered.
func NewHandler(
	readings ReadingSource,
	creds CredentialUpdater,
	metrics http.Handler,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		readings: readings,
		creds:    creds,
		metrics:  metrics,
		logger:   logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.HandleFunc("GET /api/v1/readings/latest", h.LatestReadings)
	mux.HandleFunc("GET /api/v1/poll", h.PollStatus)
	mux.HandleFunc("PUT /api/v1/credentials", h.UpdateCredentials)
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics)
	}

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// LatestReadings performs an immediate fetch. The optional minutes and
// maxCount query parameters bound the lookback window.
func (h *Handler) LatestReadings(w http.ResponseWriter, r *http.Request) {
	minutes, err := positiveQueryInt(r, "minutes")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	maxCount, err := positiveQueryInt(r, "maxCount")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	readings, err := h.readings.ReadNow(r.Context(), model.FetchOptions{Minutes: minutes, MaxCount: maxCount})
	if err != nil {
		h.writeReadError(w, err)
		return
	}

	resp := make([]ReadingResponse, 0, len(readings))
	for _, reading := range readings {
		resp = append(resp, toReadingResponse(reading))
	}
	writeJSON(w, http.StatusOK, resp)
}

// PollStatus reports the watermark and when the poller expects the next
// reading.
func (h *Handler) PollStatus(w http.ResponseWriter, _ *http.Request) {
	resp := PollStatusResponse{
		WaitHintSeconds: h.readings.WaitHint().Seconds(),
	}

	if wm, ok := h.readings.Watermark(); ok {
		reading := toReadingResponse(wm)
		resp.HasWatermark = true
		resp.Watermark = &reading
	}
	if at, ok := h.readings.NextPollAt(); ok {
		resp.NextPollAt = at.UTC().Format(time.RFC3339)
	}

	writeJSON(w, http.StatusOK, resp)
}

// UpdateCredentials replaces the Share account credentials. The password is
// never echoed back.
func (h *Handler) UpdateCredentials(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	creds := model.Credentials{
		AccountName:   strings.TrimSpace(req.AccountName),
		Password:      req.Password,
		ApplicationID: strings.TrimSpace(req.ApplicationID),
	}

	persisted, err := h.creds.UpdateCredentials(r.Context(), creds)
	if err != nil {
		if errors.Is(err, application.ErrIncompleteCredentials) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to update credentials", "account", creds, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, CredentialsResponse{
		AccountName: creds.AccountName,
		Persisted:   persisted,
	})
}

// writeReadError maps relay failures to 502 and cancellation to 504.
func (h *Handler) writeReadError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "request canceled")
	case errors.Is(err, driven.ErrAuthFailure),
		errors.Is(err, driven.ErrTransportFailure),
		errors.Is(err, driven.ErrFetchFailure),
		errors.Is(err, driven.ErrMalformedReading),
		errors.Is(err, driven.ErrRetriesExhausted):
		h.logger.Warn("share read failed", "error", err)
		writeError(w, http.StatusBadGateway, "share relay unavailable")
	default:
		h.logger.Error("share read failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// positiveQueryInt returns the named query parameter, or 0 when it is absent.
func positiveQueryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New(name + " must be a positive integer")
	}
	return n, nil
}
