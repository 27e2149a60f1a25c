package vault

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"nd-go/internal/nd"
)

// MemoryVault is an in-memory implementation of the Vault interface,
// useful for testing. Safe for concurrent use.
type MemoryVault struct {
	name    string
	content map[string][]byte // content ID -> payload
	mu      sync.RWMutex
}

var _ nd.Vault = (*MemoryVault)(nil)

// NewMemoryVault creates a new in-memory vault with the given name.
func NewMemoryVault(name string) *MemoryVault {
	return &MemoryVault{
		name:    name,
		content: make(map[string][]byte),
	}
}

// PutContent stores content identified by its content ID.
func (m *MemoryVault) PutContent(id string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}

	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Idempotent: storing the same ID multiple times is safe.
	m.content[id] = data
	return nil
}

// GetContent retrieves content by ID.
func (m *MemoryVault) GetContent(id string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.content[id]
	if !ok {
		return fmt.Errorf("content not found: %s", id)
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write content: %w", err)
	}

	return nil
}

// ValidateSetup always succeeds for an in-memory vault.
func (m *MemoryVault) ValidateSetup() error {
	return nil
}

// Corrupt overwrites stored content in place. Only for tests exercising
// integrity failures.
func (m *MemoryVault) Corrupt(id string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.content[id] = data
}
