package model

import (
	"log/slog"
	"time"
)

// Credentials identifies a Share publisher account. ApplicationID is the
// vendor application identifier sent alongside the account login.
type Credentials struct {
	AccountName   string
	Password      string
	ApplicationID string
}

// IsComplete reports whether both account name and password are set.
func (c Credentials) IsComplete() bool {
	return c.AccountName != "" && c.Password != ""
}

// LogValue keeps the password out of structured logs.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("account_name", c.AccountName),
		slog.String("application_id", c.ApplicationID),
	)
}

// Session is an authenticated vendor session. Token is opaque to everything
// except the Share adapter.
type Session struct {
	Token      string
	ObtainedAt time.Time
}

// LogValue reports only when the session was obtained.
func (s Session) LogValue() slog.Value {
	return slog.GroupValue(slog.Time("obtained_at", s.ObtainedAt))
}
