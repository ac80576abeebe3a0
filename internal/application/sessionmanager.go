package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ericfisherdev/glucoshare/internal/domain/model"
	"github.com/ericfisherdev/glucoshare/internal/domain/port/driven"
)

// loginMaxAttempts is the fixed ceiling on login attempts per Acquire call.
const loginMaxAttempts = 10

// SessionManager obtains sessions from the relay. It keeps no state between
// calls; the caller owns the returned Session and discards it to force the
// next Acquire.
type SessionManager struct {
	client     driven.ShareClient
	metrics    driven.PollMetrics
	newBackOff func() backoff.BackOff
	now        func() time.Time
}

// SessionOption customizes a SessionManager.
type SessionOption func(*SessionManager)

// WithLoginBackOff replaces the backoff schedule between login attempts. The
// attempt ceiling still applies.
func WithLoginBackOff(newBackOff func() backoff.BackOff) SessionOption {
	return func(m *SessionManager) {
		m.newBackOff = newBackOff
	}
}

// WithSessionMetrics reports login outcomes to metrics.
func WithSessionMetrics(metrics driven.PollMetrics) SessionOption {
	return func(m *SessionManager) {
		m.metrics = metrics
	}
}

// WithSessionClock overrides the clock used to stamp ObtainedAt.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(m *SessionManager) {
		m.now = now
	}
}

// NewSessionManager creates a SessionManager that logs in through client.
func NewSessionManager(client driven.ShareClient, opts ...SessionOption) *SessionManager {
	m := &SessionManager{
		client:  client,
		metrics: NoopMetrics(),
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquire logs in with creds, retrying any failure up to loginMaxAttempts
// times. Once the ceiling is reached the returned error wraps both
// driven.ErrRetriesExhausted and the last login failure. A canceled context
// is returned as-is.
func (m *SessionManager) Acquire(ctx context.Context, creds model.Credentials) (model.Session, error) {
	if !creds.IsComplete() {
		return model.Session{}, fmt.Errorf("%w: no account credentials configured", driven.ErrAuthFailure)
	}

	attempts := 0
	login := func() (string, error) {
		attempts++
		token, err := m.client.Login(ctx, creds)
		if err != nil {
			m.metrics.ObserveLogin(driven.OutcomeFailure)
			return "", err
		}
		m.metrics.ObserveLogin(driven.OutcomeSuccess)
		return token, nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(m.newBackOff(), loginMaxAttempts-1), ctx)
	token, err := backoff.RetryNotifyWithData(login, b, func(err error, next time.Duration) {
		slog.Warn("share login failed, retrying",
			"attempt", attempts,
			"retry_in", next.Round(time.Millisecond),
			"error", err,
		)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return model.Session{}, ctxErr
		}
		return model.Session{}, fmt.Errorf("%w: login failed after %d attempts: %w", driven.ErrRetriesExhausted, attempts, err)
	}

	session := model.Session{Token: token, ObtainedAt: m.now()}
	slog.Debug("share session acquired", "account", creds, "attempts", attempts)
	return session, nil
}

// Invalidate exists for symmetry with Acquire. Sessions are not tracked here,
// so dropping one is entirely the caller's job.
func (m *SessionManager) Invalidate() {}
