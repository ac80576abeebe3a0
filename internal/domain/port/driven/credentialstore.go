package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/glucoshare/internal/domain/model"
)

// ErrEncryptionKeyNotSet is returned by CredentialStore operations when
// GLUCOSHARE_SECRET_KEY has not been configured.
var ErrEncryptionKeyNotSet = errors.New("encryption key not configured: set GLUCOSHARE_SECRET_KEY")

// CredentialStore defines the driven port for encrypted credential persistence.
// The adapter layer is responsible for encryption/decryption; this interface
// operates on plaintext values at the domain boundary.
type CredentialStore interface {
	// Set stores or replaces a single credential value, e.g. ("share", "password").
	Set(ctx context.Context, service, key, plaintext string) error

	// Get retrieves one credential value. Returns ("", nil) if it does not exist.
	Get(ctx context.Context, service, key string) (string, error)

	// List returns all stored credentials for the service with decrypted values.
	List(ctx context.Context, service string) ([]model.StoredCredential, error)

	// Delete removes one credential value.
	Delete(ctx context.Context, service, key string) error
}
