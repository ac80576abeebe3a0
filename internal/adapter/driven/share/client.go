// Package share implements the ShareClient port against the vendor's cloud
// relay over plain JSON-over-HTTP.
package share

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"github.com/ericfisherdev/glucoshare/internal/domain/model"
	"github.com/ericfisherdev/glucoshare/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ShareClient = (*Client)(nil)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 4 << 20

// Client implements driven.ShareClient.
type Client struct {
	http      HTTPDoer
	endpoints Endpoints
}

// NewClient creates a Client that sends requests through doer to the relay
// described by endpoints.
func NewClient(doer HTTPDoer, endpoints Endpoints) *Client {
	return &Client{
		http:      doer,
		endpoints: endpoints,
	}
}

// loginRequest is the JSON body of the account login call.
type loginRequest struct {
	Password      string `json:"password"`
	ApplicationID string `json:"applicationId"`
	AccountName   string `json:"accountName"`
}

// vendorError is the body the relay sends with most non-2xx responses.
type vendorError struct {
	Code    string `json:"Code"`
	Message string `json:"Message"`
}

// rawReading is one element of the latest-values response.
type rawReading struct {
	WT    string      `json:"WT"`
	ST    string      `json:"ST"`
	DT    string      `json:"DT"`
	Value int         `json:"Value"`
	Trend model.Trend `json:"Trend"`
}

// Login exchanges credentials for a session token. Non-2xx responses and
// empty or all-zero session ids are reported as driven.ErrAuthFailure.
func (c *Client) Login(ctx context.Context, creds model.Credentials) (string, error) {
	appID := creds.ApplicationID
	if appID == "" {
		appID = c.endpoints.ApplicationID
	}

	body, err := json.Marshal(loginRequest{
		Password:      creds.Password,
		ApplicationID: appID,
		AccountName:   creds.AccountName,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling login request: %w", err)
	}

	status, respBody, err := c.post(ctx, c.endpoints.loginURL(), body)
	if err != nil {
		return "", err
	}
	if status < 200 || status > 299 {
		return "", fmt.Errorf("%w: status %d%s", driven.ErrAuthFailure, status, describeVendorError(respBody))
	}

	var token string
	if err := json.Unmarshal(respBody, &token); err != nil {
		return "", fmt.Errorf("%w: decoding session id: %v", driven.ErrAuthFailure, err)
	}
	if token == "" {
		return "", fmt.Errorf("%w: empty session id", driven.ErrAuthFailure)
	}
	if id, err := uuid.Parse(token); err == nil && id == uuid.Nil {
		return "", fmt.Errorf("%w: account rejected", driven.ErrAuthFailure)
	}

	slog.Debug("share login succeeded", "account_name", creds.AccountName)
	return token, nil
}

// ReadLatest fetches up to opts.MaxCount readings from the last opts.Minutes
// minutes, sorted oldest first. A single unparsable timestamp fails the whole
// call with driven.ErrMalformedReading.
func (c *Client) ReadLatest(ctx context.Context, sessionID string, opts model.FetchOptions) ([]model.Reading, error) {
	opts = opts.WithDefaults()

	q := url.Values{}
	q.Set("sessionID", sessionID)
	q.Set("minutes", strconv.Itoa(opts.Minutes))
	q.Set("maxCount", strconv.Itoa(opts.MaxCount))

	status, respBody, err := c.post(ctx, c.endpoints.latestURL()+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, fmt.Errorf("%w: status %d%s", driven.ErrFetchFailure, status, describeVendorError(respBody))
	}

	var records []json.RawMessage
	if err := json.Unmarshal(respBody, &records); err != nil {
		return nil, fmt.Errorf("%w: decoding readings: %v", driven.ErrFetchFailure, err)
	}

	readings := make([]model.Reading, 0, len(records))
	for i, rec := range records {
		r, err := mapReading(rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		readings = append(readings, r)
	}

	model.SortByTimestamp(readings)

	slog.Debug("share readings fetched",
		"minutes", opts.Minutes,
		"max_count", opts.MaxCount,
		"count", len(readings),
	)

	return readings, nil
}

// mapReading converts one raw relay record into a domain Reading.
func mapReading(rec json.RawMessage) (model.Reading, error) {
	var raw rawReading
	if err := json.Unmarshal(rec, &raw); err != nil {
		return model.Reading{}, fmt.Errorf("%w: %v", driven.ErrMalformedReading, err)
	}

	ts, err := parseVendorDate(raw.WT)
	if err != nil {
		return model.Reading{}, err
	}

	return model.Reading{
		Value:     raw.Value,
		Trend:     raw.Trend,
		Timestamp: ts,
		Raw:       append(json.RawMessage(nil), rec...),
	}, nil
}

// post sends a JSON POST and returns the status code and body. Failures to
// get any response are wrapped in driven.ErrTransportFailure.
func (c *Client) post(ctx context.Context, target string, body []byte) (int, []byte, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.endpoints.UserAgent)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, nil, ctxErr
		}
		return 0, nil, fmt.Errorf("%w: %v", driven.ErrTransportFailure, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%w: reading body: %v", driven.ErrTransportFailure, err)
	}

	return resp.StatusCode, respBody, nil
}

// describeVendorError renders the relay's error code for inclusion in an
// error message, or "" when the body has none.
func describeVendorError(body []byte) string {
	var ve vendorError
	if err := json.Unmarshal(body, &ve); err != nil || ve.Code == "" {
		return ""
	}
	if ve.Message == "" {
		return fmt.Sprintf(" (%s)", ve.Code)
	}
	return fmt.Sprintf(" (%s: %s)", ve.Code, ve.Message)
}
