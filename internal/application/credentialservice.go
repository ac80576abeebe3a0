package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ericfisherdev/glucoshare/internal/domain/model"
	"github.com/ericfisherdev/glucoshare/internal/domain/port/driven"
)

// Stored credential coordinates for the Share account.
const (
	ShareService     = "share"
	keyAccountName   = "account_name"
	keyPassword      = "password"
	keyApplicationID = "application_id"
)

// ErrIncompleteCredentials is returned by UpdateCredentials when the account
// name or password is missing.
var ErrIncompleteCredentials = errors.New("account name and password are required")

// SessionInvalidator drops a cached relay session. *Poller satisfies it.
type SessionInvalidator interface {
	InvalidateSession()
}

// CredentialService keeps the credential provider, the encrypted store and the
// poller's cached session consistent with each other.
type CredentialService struct {
	store    driven.CredentialStore
	provider *CredentialProvider
	sessions SessionInvalidator
}

// NewCredentialService creates a CredentialService. store may be nil, in which
// case credentials live in memory only.
func NewCredentialService(store driven.CredentialStore, provider *CredentialProvider, sessions SessionInvalidator) *CredentialService {
	return &CredentialService{store: store, provider: provider, sessions: sessions}
}

// LoadStored overlays persisted credentials onto the provider. Stored values
// win over the ones the provider started with. It reports whether anything
// was loaded. A store without an encryption key is treated as empty.
func (s *CredentialService) LoadStored(ctx context.Context) (bool, error) {
	if s.store == nil {
		return false, nil
	}

	stored, err := s.store.List(ctx, ShareService)
	if errors.Is(err, driven.ErrEncryptionKeyNotSet) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load stored credentials: %w", err)
	}
	if len(stored) == 0 {
		return false, nil
	}

	creds := s.provider.Get()
	for _, c := range stored {
		switch c.Key {
		case keyAccountName:
			creds.AccountName = c.Value
		case keyPassword:
			creds.Password = c.Value
		case keyApplicationID:
			creds.ApplicationID = c.Value
		}
	}
	s.provider.Replace(creds)
	return true, nil
}

// UpdateCredentials swaps in new credentials and drops the cached session so
// the next fetch logs in with them. When a store is configured the values are
// persisted first; persisted reports whether that happened.
func (s *CredentialService) UpdateCredentials(ctx context.Context, creds model.Credentials) (persisted bool, err error) {
	if !creds.IsComplete() {
		return false, ErrIncompleteCredentials
	}

	if s.store != nil {
		persisted, err = s.persist(ctx, creds)
		if err != nil {
			return false, err
		}
	}

	s.provider.Replace(creds)
	s.sessions.InvalidateSession()
	slog.Info("share credentials updated", "account", creds, "persisted", persisted)
	return persisted, nil
}

func (s *CredentialService) persist(ctx context.Context, creds model.Credentials) (bool, error) {
	values := []struct{ key, value string }{
		{keyAccountName, creds.AccountName},
		{keyPassword, creds.Password},
	}

	for _, v := range values {
		if err := s.store.Set(ctx, ShareService, v.key, v.value); err != nil {
			if errors.Is(err, driven.ErrEncryptionKeyNotSet) {
				slog.Warn("credential store has no encryption key, keeping credentials in memory only")
				return false, nil
			}
			return false, fmt.Errorf("store credential %s: %w", v.key, err)
		}
	}

	if creds.ApplicationID == "" {
		if err := s.store.Delete(ctx, ShareService, keyApplicationID); err != nil {
			return false, fmt.Errorf("clear application id: %w", err)
		}
		return true, nil
	}
	if err := s.store.Set(ctx, ShareService, keyApplicationID, creds.ApplicationID); err != nil {
		return false, fmt.Errorf("store credential %s: %w", keyApplicationID, err)
	}
	return true, nil
}
