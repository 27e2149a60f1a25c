package encryption

import (
	"fmt"

	"nd-go/internal/config"
	"nd-go/internal/nd"
)

// NewEncryptorFromConfig creates an Encryptor based on the
// configuration type. Returns (nil, nil) for type "none": snapshot
// content is then stored unencrypted.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (nd.Encryptor, error) {
	switch cfg.Type {
	case "none", "":
		return nil, nil
	case "age":
		return NewAgeEncryptor(cfg), nil
	case "test":
		return NewTestEncryptor(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
