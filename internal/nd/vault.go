package nd

import "io"

// Vault stores backup snapshot payloads addressed by content ID (the
// snapshot checksum for plaintext, a derived ID for ciphertext). All
// operations stream through io.Reader/io.Writer so large files never
// have to sit in memory twice.
type Vault interface {
	// PutContent stores content under id. Idempotent: storing the same
	// id multiple times is safe. size is the exact number of bytes r yields.
	PutContent(id string, r io.Reader, size int64) error

	// GetContent retrieves content by id and writes it to w.
	GetContent(id string, w io.Writer) error

	// ValidateSetup verifies the vault is accessible and configured.
	ValidateSetup() error
}
