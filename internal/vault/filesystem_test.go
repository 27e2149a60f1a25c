package vault

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileSystemVault(t *testing.T) {
	t.Run("round trips content through the content directory", func(t *testing.T) {
		root := t.TempDir()
		v, err := NewFileSystemVault("test", root)
		if err != nil {
			t.Fatalf("NewFileSystemVault() error = %v", err)
		}

		data := []byte("snapshot payload")
		if err := v.PutContent("abc123", bytes.NewReader(data), int64(len(data))); err != nil {
			t.Fatalf("PutContent() error = %v", err)
		}

		// Stored under <root>/content/<id>.
		if _, err := os.Stat(filepath.Join(root, "content", "abc123")); err != nil {
			t.Errorf("content file not found: %v", err)
		}

		var buf bytes.Buffer
		if err := v.GetContent("abc123", &buf); err != nil {
			t.Fatalf("GetContent() error = %v", err)
		}
		if !bytes.Equal(buf.Bytes(), data) {
			t.Errorf("GetContent() = %q, want %q", buf.Bytes(), data)
		}
	})

	t.Run("re-storing an existing ID leaves the payload intact", func(t *testing.T) {
		root := t.TempDir()
		v, err := NewFileSystemVault("test", root)
		if err != nil {
			t.Fatalf("NewFileSystemVault() error = %v", err)
		}

		original := []byte("original")
		if err := v.PutContent("id-1", bytes.NewReader(original), int64(len(original))); err != nil {
			t.Fatalf("PutContent() error = %v", err)
		}
		// Same ID, same length, different bytes. Content addressing makes
		// this equivalent in practice; the first write wins.
		if err := v.PutContent("id-1", strings.NewReader("ORIGINAL"), int64(len(original))); err != nil {
			t.Fatalf("second PutContent() error = %v", err)
		}

		var buf bytes.Buffer
		if err := v.GetContent("id-1", &buf); err != nil {
			t.Fatalf("GetContent() error = %v", err)
		}
		if !bytes.Equal(buf.Bytes(), original) {
			t.Errorf("GetContent() = %q, want first write %q", buf.Bytes(), original)
		}
	})

	t.Run("rejects a size mismatch and leaves no partial file", func(t *testing.T) {
		root := t.TempDir()
		v, err := NewFileSystemVault("test", root)
		if err != nil {
			t.Fatalf("NewFileSystemVault() error = %v", err)
		}

		if err := v.PutContent("id-1", strings.NewReader("short"), 100); err == nil {
			t.Fatal("PutContent() error = nil, want size mismatch")
		}
		if _, err := os.Stat(filepath.Join(root, "content", "id-1")); !os.IsNotExist(err) {
			t.Error("partial payload left behind under a valid ID")
		}
	})

	t.Run("missing content is an error", func(t *testing.T) {
		root := t.TempDir()
		v, err := NewFileSystemVault("test", root)
		if err != nil {
			t.Fatalf("NewFileSystemVault() error = %v", err)
		}
		var buf bytes.Buffer
		if err := v.GetContent("nope", &buf); err == nil {
			t.Error("GetContent() error = nil, want not found")
		}
	})

	t.Run("ValidateSetup fails when the root is gone", func(t *testing.T) {
		root := t.TempDir()
		v, err := NewFileSystemVault("test", root)
		if err != nil {
			t.Fatalf("NewFileSystemVault() error = %v", err)
		}
		if err := v.ValidateSetup(); err != nil {
			t.Errorf("ValidateSetup() error = %v, want nil", err)
		}

		os.RemoveAll(root)
		if err := v.ValidateSetup(); err == nil {
			t.Error("ValidateSetup() error = nil after root removal, want error")
		}
	})
}
