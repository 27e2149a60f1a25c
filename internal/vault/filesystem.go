package vault

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"nd-go/internal/nd"
)

// FileSystemVault stores snapshot payloads as files named by content ID:
//
//	<root>/content/<id>
type FileSystemVault struct {
	name       string
	root       string
	contentDir string
}

var _ nd.Vault = (*FileSystemVault)(nil)

// NewFileSystemVault creates a filesystem vault rooted at the given path.
func NewFileSystemVault(name, root string) (*FileSystemVault, error) {
	contentDir := filepath.Join(root, "content")
	if err := os.MkdirAll(contentDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create content directory: %w", err)
	}

	return &FileSystemVault{
		name:       name,
		root:       root,
		contentDir: contentDir,
	}, nil
}

// PutContent stores content identified by its content ID.
// Idempotent: re-storing an existing ID is safe.
func (v *FileSystemVault) PutContent(id string, r io.Reader, size int64) error {
	destPath := filepath.Join(v.contentDir, id)

	if _, err := os.Stat(destPath); err == nil {
		// Already stored. Consume the reader to keep expected behavior.
		written, err := io.Copy(io.Discard, r)
		if err != nil {
			return fmt.Errorf("failed to read content: %w", err)
		}
		if written != size {
			return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
		}
		return nil
	}

	return v.writeFile(destPath, r, size)
}

// GetContent retrieves content by ID and writes it to w.
func (v *FileSystemVault) GetContent(id string, w io.Writer) error {
	srcPath := filepath.Join(v.contentDir, id)
	f, err := os.Open(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("content not found: %s", id)
		}
		return fmt.Errorf("opening content: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("reading content: %w", err)
	}
	return nil
}

// ValidateSetup verifies that the vault directories are accessible.
func (v *FileSystemVault) ValidateSetup() error {
	info, err := os.Stat(v.root)
	if err != nil {
		return fmt.Errorf("vault root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("vault root is not a directory: %s", v.root)
	}
	if _, err := os.Stat(v.contentDir); err != nil {
		return fmt.Errorf("content directory not accessible: %w", err)
	}
	return nil
}

// writeFile writes content to a temp file and renames it into place so
// a crashed write never leaves a truncated payload under a valid ID.
func (v *FileSystemVault) writeFile(destPath string, r io.Reader, size int64) error {
	tmp, err := os.CreateTemp(v.contentDir, ".partial-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	written, err := io.Copy(tmp, r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing content: %w", err)
	}
	if written != size {
		os.Remove(tmpPath)
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("finalizing content: %w", err)
	}
	return nil
}
