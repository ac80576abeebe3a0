package application_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/glucoshare/internal/application"
	"github.com/ericfisherdev/glucoshare/internal/domain/model"
)

func TestCredentialProvider_GetReturnsInitial(t *testing.T) {
	creds := model.Credentials{AccountName: "alice", Password: "one"}
	provider := application.NewCredentialProvider(creds)

	assert.Equal(t, creds, provider.Get())
}

func TestCredentialProvider_ReplaceSwaps(t *testing.T) {
	provider := application.NewCredentialProvider(model.Credentials{AccountName: "alice", Password: "one"})

	replacement := model.Credentials{AccountName: "bob", Password: "two", ApplicationID: "app"}
	provider.Replace(replacement)

	assert.Equal(t, replacement, provider.Get())
}

func TestCredentialProvider_HasCredentials(t *testing.T) {
	provider := application.NewCredentialProvider(model.Credentials{})
	require.False(t, provider.HasCredentials())

	provider.Replace(model.Credentials{AccountName: "alice"})
	require.False(t, provider.HasCredentials(), "password is required")

	provider.Replace(model.Credentials{AccountName: "alice", Password: "pw"})
	require.True(t, provider.HasCredentials())
}

func TestCredentialProvider_ConcurrentGetReplaceSafety(t *testing.T) {
	first := model.Credentials{AccountName: "alice", Password: "one"}
	second := model.Credentials{AccountName: "bob", Password: "two"}
	provider := application.NewCredentialProvider(first)

	const goroutines = 100
	var wg sync.WaitGroup
	wg.Add(goroutines * 2)

	for range goroutines {
		go func() {
			defer wg.Done()
			got := provider.Get()
			// Never a torn mix of the two values.
			assert.Contains(t, []model.Credentials{first, second}, got)
		}()
		go func() {
			defer wg.Done()
			provider.Replace(second)
		}()
	}

	wg.Wait()

	assert.Equal(t, second, provider.Get())
}
