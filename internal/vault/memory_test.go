package vault

import (
	"bytes"
	"strings"
	"testing"
)

func TestMemoryVault_PutGet(t *testing.T) {
	t.Run("round trips content", func(t *testing.T) {
		v := NewMemoryVault("test")
		data := []byte("snapshot payload")

		if err := v.PutContent("id-1", bytes.NewReader(data), int64(len(data))); err != nil {
			t.Fatalf("PutContent() error = %v", err)
		}

		var buf bytes.Buffer
		if err := v.GetContent("id-1", &buf); err != nil {
			t.Fatalf("GetContent() error = %v", err)
		}
		if !bytes.Equal(buf.Bytes(), data) {
			t.Errorf("GetContent() = %q, want %q", buf.Bytes(), data)
		}
	})

	t.Run("rejects a size mismatch", func(t *testing.T) {
		v := NewMemoryVault("test")
		err := v.PutContent("id-1", strings.NewReader("short"), 100)
		if err == nil {
			t.Error("PutContent() error = nil, want size mismatch")
		}
	})

	t.Run("storing the same ID twice is idempotent", func(t *testing.T) {
		v := NewMemoryVault("test")
		data := []byte("payload")
		for i := 0; i < 2; i++ {
			if err := v.PutContent("id-1", bytes.NewReader(data), int64(len(data))); err != nil {
				t.Fatalf("PutContent() attempt %d error = %v", i+1, err)
			}
		}
	})

	t.Run("missing content is an error", func(t *testing.T) {
		v := NewMemoryVault("test")
		var buf bytes.Buffer
		if err := v.GetContent("nope", &buf); err == nil {
			t.Error("GetContent() error = nil, want not found")
		}
	})
}
