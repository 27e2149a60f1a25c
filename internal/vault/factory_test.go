package vault

import (
	"testing"

	"nd-go/internal/config"
)

func TestNewVaultFromConfig(t *testing.T) {
	t.Run("memory vault", func(t *testing.T) {
		v, err := NewVaultFromConfig(config.VaultConfig{Type: "memory", Name: "m"})
		if err != nil {
			t.Fatalf("NewVaultFromConfig() error = %v", err)
		}
		if _, ok := v.(*MemoryVault); !ok {
			t.Errorf("vault type = %T, want *MemoryVault", v)
		}
	})

	t.Run("filesystem vault", func(t *testing.T) {
		v, err := NewVaultFromConfig(config.VaultConfig{
			Type:        "filesystem",
			Name:        "fs",
			FSVaultRoot: t.TempDir(),
		})
		if err != nil {
			t.Fatalf("NewVaultFromConfig() error = %v", err)
		}
		if _, ok := v.(*FileSystemVault); !ok {
			t.Errorf("vault type = %T, want *FileSystemVault", v)
		}
	})

	t.Run("filesystem vault requires a root", func(t *testing.T) {
		if _, err := NewVaultFromConfig(config.VaultConfig{Type: "filesystem"}); err == nil {
			t.Error("NewVaultFromConfig() error = nil, want missing root")
		}
	})

	t.Run("s3 vault requires a bucket", func(t *testing.T) {
		if _, err := NewVaultFromConfig(config.VaultConfig{Type: "s3"}); err == nil {
			t.Error("NewVaultFromConfig() error = nil, want missing bucket")
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		if _, err := NewVaultFromConfig(config.VaultConfig{Type: "tape"}); err == nil {
			t.Error("NewVaultFromConfig() error = nil, want unknown type")
		}
	})
}
