package testutil

import (
	"testing"

	"nd-go/internal/nd"
	"nd-go/internal/store"
	"nd-go/internal/vault"
)

// NewTestStore creates an in-memory SQLite store with schema applied
// and a memory vault for content. Closed automatically with the test.
func NewTestStore(t *testing.T) nd.Store {
	t.Helper()
	return NewTestStoreWith(t, vault.NewMemoryVault("test-vault"), nil)
}

// NewTestStoreWith creates an in-memory store over the given vault and
// optional encryptor.
func NewTestStoreWith(t *testing.T, v nd.Vault, enc nd.Encryptor) nd.Store {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:", v, enc)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	if err := s.MigrateUp(); err != nil {
		s.Close()
		t.Fatalf("failed to migrate schema: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})
	return s
}
