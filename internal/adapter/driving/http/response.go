package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/glucoshare/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// ReadingResponse is the JSON representation of a glucose reading.
type ReadingResponse struct {
	Value      int    `json:"value"`
	MmolL      string `json:"mmol_l"`
	Trend      string `json:"trend"`
	TrendArrow string `json:"trend_arrow"`
	Timestamp  string `json:"timestamp"`
}

// PollStatusResponse describes the poller's position.
type PollStatusResponse struct {
	HasWatermark    bool             `json:"has_watermark"`
	Watermark       *ReadingResponse `json:"watermark,omitempty"`
	WaitHintSeconds float64          `json:"wait_hint_seconds"`
	NextPollAt      string           `json:"next_poll_at,omitempty"`
}

// CredentialsRequest is the JSON body for the credentials endpoint.
type CredentialsRequest struct {
	AccountName   string `json:"account_name"`
	Password      string `json:"password"`
	ApplicationID string `json:"application_id"`
}

// CredentialsResponse confirms a credential update.
type CredentialsResponse struct {
	AccountName string `json:"account_name"`
	Persisted   bool   `json:"persisted"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

func toReadingResponse(r model.Reading) ReadingResponse {
	return ReadingResponse{
		Value:      r.Value,
		MmolL:      r.MmolL().StringFixed(1),
		Trend:      r.Trend.String(),
		TrendArrow: r.Trend.Arrow(),
		Timestamp:  r.Timestamp.UTC().Format(time.RFC3339),
	}
}
