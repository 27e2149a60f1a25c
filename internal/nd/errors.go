package nd

import "errors"

// Sentinel errors callers must be able to distinguish with errors.Is.
var (
	// ErrTimeout marks a connector call abandoned client-side after its
	// deadline. A timeout means "unknown outcome", not "failure": the
	// remote operation may still have completed, and callers should
	// reconcile with a subsequent health check or fetch.
	ErrTimeout = errors.New("request timed out")

	// ErrConnectionNotFound is returned for operations against a
	// nucleus ID with no tracked connection.
	ErrConnectionNotFound = errors.New("connection not found")

	// ErrMalformedResponse marks a remote response whose shape does not
	// match the contract (e.g. a file payload without a string content
	// field). Malformed responses are hard failures, never coerced.
	ErrMalformedResponse = errors.New("malformed remote response")

	// ErrBackupNotFound is returned when a backup record does not exist.
	ErrBackupNotFound = errors.New("backup not found")

	// ErrChecksumMismatch marks an integrity failure: stored content no
	// longer matches its recorded checksum. Fatal to the operation that
	// detects it; never downgraded to a warning.
	ErrChecksumMismatch = errors.New("checksum mismatch")
)
