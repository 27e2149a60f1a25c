package nd

import (
	"time"

	"nd-go/internal/model"
)

// Store provides durable, append-only persistence of backup records and
// operation history. It has no knowledge of deployment strategies.
type Store interface {
	// SaveBackup persists a backup record. Records are never updated or
	// deleted by this subsystem; retention is an external policy.
	SaveBackup(record *model.BackupRecord) error

	// GetBackup returns a backup record with its full file content, or
	// nil when no record exists for the ID. dec is required when the
	// record's content is encrypted at rest; pass nil otherwise. An
	// encrypted record with a nil dec is an error.
	GetBackup(backupID string, dec DecryptionContext) (*model.BackupRecord, error)

	// ListBackups returns backup records newest first, metadata only
	// (Files carry checksums and sizes but no content). An empty
	// nucleusID returns records for all nuclei.
	ListBackups(nucleusID string) ([]*model.BackupRecord, error)

	// SaveScheduledDeployment records an intent to deploy later. No
	// scheduler executes these; an external one may.
	SaveScheduledDeployment(sd *model.ScheduledDeployment) error

	// ListScheduledDeployments returns pending intents newest first.
	ListScheduledDeployments() ([]*model.ScheduledDeployment, error)

	// CreateOperation records the start of a CLI invocation and returns
	// its auto-increment ID.
	CreateOperation(operation, parameters string, startedAt time.Time) (int64, error)

	// FinishOperation finalizes an operation with "success" or "error".
	FinishOperation(id int64, status string, finishedAt time.Time) error

	// ListOperations returns the most recent operations, newest first.
	ListOperations(limit int) ([]*model.Operation, error)

	// Close closes the underlying database connection.
	Close() error
}
