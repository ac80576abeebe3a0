package application

import (
	"sync"

	"github.com/ericfisherdev/glucoshare/internal/domain/model"
)

// CredentialProvider enables runtime hot-swap of the Share account
// credentials. The poller reads the current value on every login, so a
// Replace takes effect at the next re-authentication without a restart.
type CredentialProvider struct {
	mu    sync.RWMutex
	creds model.Credentials
}

// NewCredentialProvider creates a provider holding the given initial
// credentials, which may be empty if none are configured at startup.
func NewCredentialProvider(creds model.Credentials) *CredentialProvider {
	return &CredentialProvider{creds: creds}
}

// Get returns the current credentials.
func (p *CredentialProvider) Get() model.Credentials {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.creds
}

// Replace swaps the current credentials.
func (p *CredentialProvider) Replace(creds model.Credentials) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.creds = creds
}

// HasCredentials returns true if both account name and password are set.
func (p *CredentialProvider) HasCredentials() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.creds.IsComplete()
}
