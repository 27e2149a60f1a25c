package nd

import "io"

// Encryptor handles at-rest encryption of backup snapshot content.
// Encryption uses the public key only. Decryption requires a passphrase
// to unlock the private key, producing a DecryptionContext for the
// session.
type Encryptor interface {
	// Setup performs one-time key generation. Called during `nd config init`.
	Setup(passphrase string) error

	// Encrypt encrypts data read from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock decrypts the private key using the passphrase and returns
	// a DecryptionContext valid for the duration of the session.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured returns true if the key material is in place.
	IsConfigured() bool
}

// DecryptionContext holds an unlocked private key in memory for the
// duration of a rollback session. Never written to disk.
type DecryptionContext interface {
	// Decrypt decrypts data read from r and writes plaintext to w.
	Decrypt(r io.Reader, w io.Writer) error
}
