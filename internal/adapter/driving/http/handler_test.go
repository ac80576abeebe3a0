package httphandler_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httphandler "github.com/ericfisherdev/glucoshare/internal/adapter/driving/http"
	"github.com/ericfisherdev/glucoshare/internal/application"
	"github.com/ericfisherdev/glucoshare/internal/domain/model"
	"github.com/ericfisherdev/glucoshare/internal/domain/port/driven"
)

// --- Mock implementations ---

type mockReadingSource struct {
	readings  []model.Reading
	err       error
	gotOpts   model.FetchOptions
	watermark *model.Reading
	waitHint  time.Duration
	nextPoll  time.Time
}

func (m *mockReadingSource) ReadNow(_ context.Context, opts model.FetchOptions) ([]model.Reading, error) {
	m.gotOpts = opts
	return m.readings, m.err
}

func (m *mockReadingSource) Watermark() (model.Reading, bool) {
	if m.watermark == nil {
		return model.Reading{}, false
	}
	return *m.watermark, true
}

func (m *mockReadingSource) WaitHint() time.Duration { return m.waitHint }

func (m *mockReadingSource) NextPollAt() (time.Time, bool) {
	return m.nextPoll, !m.nextPoll.IsZero()
}

type mockCredentialUpdater struct {
	got       model.Credentials
	persisted bool
	err       error
}

func (m *mockCredentialUpdater) UpdateCredentials(_ context.Context, creds model.Credentials) (bool, error) {
	m.got = creds
	return m.persisted, m.err
}

// --- Test helpers ---

var ts = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupMux(readings *mockReadingSource, creds *mockCredentialUpdater, metrics http.Handler) http.Handler {
	logger := discardLogger()
	h := httphandler.NewHandler(readings, creds, metrics, logger)
	return httphandler.NewServeMux(h, logger)
}

func serve(t *testing.T, mux http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

// --- Tests ---

func TestHealth(t *testing.T) {
	rec := serve(t, setupMux(&mockReadingSource{}, &mockCredentialUpdater{}, nil), http.MethodGet, "/api/v1/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

	var resp httphandler.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, resp.Time)
}

func TestLatestReadings(t *testing.T) {
	source := &mockReadingSource{
		readings: []model.Reading{{Value: 120, Trend: model.TrendFlat, Timestamp: ts}},
	}
	rec := serve(t, setupMux(source, &mockCredentialUpdater{}, nil), http.MethodGet, "/api/v1/readings/latest?minutes=30&maxCount=6", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.FetchOptions{Minutes: 30, MaxCount: 6}, source.gotOpts)

	var resp []httphandler.ReadingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, 120, resp[0].Value)
	assert.Equal(t, "6.7", resp[0].MmolL)
	assert.Equal(t, "Flat", resp[0].Trend)
	assert.Equal(t, "→", resp[0].TrendArrow)
	assert.Equal(t, "2026-03-01T12:00:00Z", resp[0].Timestamp)
}

func TestLatestReadings_DefaultsAndEmpty(t *testing.T) {
	source := &mockReadingSource{}
	rec := serve(t, setupMux(source, &mockCredentialUpdater{}, nil), http.MethodGet, "/api/v1/readings/latest", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.FetchOptions{}, source.gotOpts, "zero options defer to the poller defaults")
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestLatestReadings_InvalidQuery(t *testing.T) {
	for _, target := range []string{
		"/api/v1/readings/latest?minutes=abc",
		"/api/v1/readings/latest?minutes=0",
		"/api/v1/readings/latest?maxCount=-1",
	} {
		rec := serve(t, setupMux(&mockReadingSource{}, &mockCredentialUpdater{}, nil), http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestLatestReadings_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"auth", fmt.Errorf("%w: status 500", driven.ErrAuthFailure), http.StatusBadGateway},
		{"transport", fmt.Errorf("%w: dial", driven.ErrTransportFailure), http.StatusBadGateway},
		{"fetch", fmt.Errorf("%w: status 500", driven.ErrFetchFailure), http.StatusBadGateway},
		{"malformed", fmt.Errorf("%w: bad WT", driven.ErrMalformedReading), http.StatusBadGateway},
		{"exhausted", fmt.Errorf("acquiring session: %w", driven.ErrRetriesExhausted), http.StatusBadGateway},
		{"canceled", context.Canceled, http.StatusGatewayTimeout},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := &mockReadingSource{err: tt.err}
			rec := serve(t, setupMux(source, &mockCredentialUpdater{}, nil), http.MethodGet, "/api/v1/readings/latest", "")
			assert.Equal(t, tt.want, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestPollStatus_NoWatermark(t *testing.T) {
	rec := serve(t, setupMux(&mockReadingSource{}, &mockCredentialUpdater{}, nil), http.MethodGet, "/api/v1/poll", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"has_watermark":false,"wait_hint_seconds":0}`, rec.Body.String())
}

func TestPollStatus_WithWatermark(t *testing.T) {
	wm := model.Reading{Value: 95, Trend: model.TrendSingleDown, Timestamp: ts}
	source := &mockReadingSource{
		watermark: &wm,
		waitHint:  250 * time.Second,
		nextPoll:  ts.Add(5*time.Minute + 10*time.Second),
	}
	rec := serve(t, setupMux(source, &mockCredentialUpdater{}, nil), http.MethodGet, "/api/v1/poll", "")

	require.Equal(t, http.StatusOK, rec.Code)

	var resp httphandler.PollStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.HasWatermark)
	require.NotNil(t, resp.Watermark)
	assert.Equal(t, 95, resp.Watermark.Value)
	assert.Equal(t, "SingleDown", resp.Watermark.Trend)
	assert.InDelta(t, 250.0, resp.WaitHintSeconds, 0.001)
	assert.Equal(t, "2026-03-01T12:05:10Z", resp.NextPollAt)
}

func TestUpdateCredentials(t *testing.T) {
	updater := &mockCredentialUpdater{persisted: true}
	body := `{"account_name":"  alice ","password":"hunter2","application_id":"app-1"}`
	rec := serve(t, setupMux(&mockReadingSource{}, updater, nil), http.MethodPut, "/api/v1/credentials", body)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.Credentials{AccountName: "alice", Password: "hunter2", ApplicationID: "app-1"}, updater.got)
	assert.JSONEq(t, `{"account_name":"alice","persisted":true}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "hunter2")
}

func TestUpdateCredentials_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		want int
	}{
		{"invalid json", `{`, nil, http.StatusBadRequest},
		{"incomplete", `{"account_name":"alice"}`, application.ErrIncompleteCredentials, http.StatusBadRequest},
		{"store failure", `{"account_name":"alice","password":"x"}`, errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			updater := &mockCredentialUpdater{err: tt.err}
			rec := serve(t, setupMux(&mockReadingSource{}, updater, nil), http.MethodPut, "/api/v1/credentials", tt.body)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("glucoshare_fetch_cycles_total 1\n"))
	})

	rec := serve(t, setupMux(&mockReadingSource{}, &mockCredentialUpdater{}, metrics), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "glucoshare_fetch_cycles_total")

	rec = serve(t, setupMux(&mockReadingSource{}, &mockCredentialUpdater{}, nil), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	rec := serve(t, setupMux(&mockReadingSource{}, &mockCredentialUpdater{}, nil), http.MethodPost, "/api/v1/poll", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

type panickingSource struct{ mockReadingSource }

func (p *panickingSource) WaitHint() time.Duration { panic("boom") }

func TestRecoveryMiddleware(t *testing.T) {
	logger := discardLogger()
	h := httphandler.NewHandler(&panickingSource{}, &mockCredentialUpdater{}, nil, logger)
	mux := httphandler.NewServeMux(h, logger)

	rec := serve(t, mux, http.MethodGet, "/api/v1/poll", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}
