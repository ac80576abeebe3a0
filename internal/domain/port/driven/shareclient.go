package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/glucoshare/internal/domain/model"
)

// Failure taxonomy shared by the Share adapter and the application layer.
// Adapters wrap these so callers can match with errors.Is.
var (
	// ErrAuthFailure is returned when the relay rejects a login.
	ErrAuthFailure = errors.New("share: authentication failed")
	// ErrTransportFailure is returned when a request never produced a response.
	ErrTransportFailure = errors.New("share: transport failure")
	// ErrFetchFailure is returned when a readings request gets a non-success status.
	ErrFetchFailure = errors.New("share: fetch failed")
	// ErrMalformedReading is returned when a record carries an unparsable timestamp.
	ErrMalformedReading = errors.New("share: malformed reading")
	// ErrRetriesExhausted is returned once a retry ceiling is reached.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// ShareClient defines the driven port for the vendor relay.
type ShareClient interface {
	// Login exchanges credentials for a session token. It does not retry.
	Login(ctx context.Context, creds model.Credentials) (string, error)

	// ReadLatest fetches readings for the session, oldest first. It does not
	// retry and does not deduplicate.
	ReadLatest(ctx context.Context, sessionID string, opts model.FetchOptions) ([]model.Reading, error)
}
