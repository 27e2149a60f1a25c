// Package store persists backup records, scheduled deployment intents
// and operation history in SQLite, with snapshot payloads kept in a
// content vault (optionally encrypted at rest).
package store

import (
	"bytes"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"nd-go/internal/codec"
	"nd-go/internal/model"
	"nd-go/internal/nd"
	"nd-go/internal/store/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore implements the nd.Store interface using SQLite for
// metadata and a vault for snapshot content.
type SQLiteStore struct {
	db        *sql.DB
	vault     nd.Vault
	encryptor nd.Encryptor // nil means plaintext at rest
	path      string
}

var _ nd.Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens a SQLite store at path (":memory:" works).
// encryptor may be nil, in which case snapshot content is stored
// unencrypted.
func NewSQLiteStore(path string, vault nd.Vault, encryptor nd.Encryptor) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db, vault: vault, encryptor: encryptor, path: path}, nil
}

// NewSQLiteStoreFromDB wraps an existing connection. The caller is
// responsible for the connection's PRAGMA configuration.
func NewSQLiteStoreFromDB(db *sql.DB, vault nd.Vault, encryptor nd.Encryptor) *SQLiteStore {
	return &SQLiteStore{db: db, vault: vault, encryptor: encryptor}
}

// OpenConnection opens and configures a SQLite connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// An in-memory database exists per connection; keep the pool at one
	// so migrations and queries see the same database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Foreign keys are OFF by default in SQLite for backward compatibility.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// MigrateUp brings the schema to the latest version.
func (s *SQLiteStore) MigrateUp() error {
	return migrations.MigrateUp(s.db)
}

// CheckMigrations verifies the schema is current.
func (s *SQLiteStore) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// SaveBackup persists a backup record. Content payloads are uploaded to
// the vault first (idempotent by content ID); the metadata rows are then
// inserted in a single transaction. If the transaction fails the worst
// outcome is orphaned vault content, which is harmless.
func (s *SQLiteStore) SaveBackup(record *model.BackupRecord) error {
	type payloadRef struct {
		contentID string
		encrypted bool
	}
	refs := make([]payloadRef, 0, len(record.Files))
	for _, snap := range record.Files {
		contentID, encrypted, err := s.putSnapshot(snap)
		if err != nil {
			return fmt.Errorf("storing content for %s: %w", snap.File, err)
		}
		refs = append(refs, payloadRef{contentID: contentID, encrypted: encrypted})
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO backup_records
		(backup_id, nucleus_id, deployment_id, repository, branch, change_count, total_size, checksum_valid, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.BackupID, record.NucleusID, record.DeploymentID, record.Repository, record.Branch,
		record.ChangeCount, record.TotalSize, record.ChecksumValid, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting backup record: %w", err)
	}

	for i, snap := range record.Files {
		_, err = tx.Exec(`INSERT INTO backup_files
			(backup_id, file, encoding, checksum, size, content_id, encrypted, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			record.BackupID, snap.File, string(snap.Encoding), snap.Checksum, snap.Size,
			refs[i].contentID, refs[i].encrypted, snap.Timestamp)
		if err != nil {
			return fmt.Errorf("inserting snapshot for %s: %w", snap.File, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing backup record: %w", err)
	}
	return nil
}

// putSnapshot uploads one snapshot's decoded bytes to the vault,
// encrypting first when an encryptor is configured. Plaintext content
// is addressed by its checksum so identical content deduplicates;
// ciphertext is addressed by the ciphertext digest.
func (s *SQLiteStore) putSnapshot(snap model.FileSnapshot) (contentID string, encrypted bool, err error) {
	decoded, err := codec.DecodeRaw(snap.Content, snap.Encoding)
	if err != nil {
		return "", false, err
	}

	if s.encryptor != nil {
		var buf bytes.Buffer
		if err := s.encryptor.Encrypt(bytes.NewReader(decoded), &buf); err != nil {
			return "", false, fmt.Errorf("encrypting content: %w", err)
		}
		cipher := buf.Bytes()
		id := codec.Checksum(cipher)
		if err := s.vault.PutContent(id, bytes.NewReader(cipher), int64(len(cipher))); err != nil {
			return "", false, err
		}
		return id, true, nil
	}

	if err := s.vault.PutContent(snap.Checksum, bytes.NewReader(decoded), int64(len(decoded))); err != nil {
		return "", false, err
	}
	return snap.Checksum, false, nil
}

// GetBackup loads a record and reassembles every snapshot's content
// from the vault, preserving the original encoding. Returns (nil, nil)
// when no record exists.
func (s *SQLiteStore) GetBackup(backupID string, dec nd.DecryptionContext) (*model.BackupRecord, error) {
	record, err := s.scanRecord(backupID)
	if err != nil || record == nil {
		return record, err
	}

	rows, err := s.db.Query(`SELECT file, encoding, checksum, size, content_id, encrypted, created_at
		FROM backup_files WHERE backup_id = ? ORDER BY id`, backupID)
	if err != nil {
		return nil, fmt.Errorf("querying snapshots: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var snap model.FileSnapshot
		var encoding, contentID string
		var encrypted bool
		if err := rows.Scan(&snap.File, &encoding, &snap.Checksum, &snap.Size, &contentID, &encrypted, &snap.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		snap.Encoding = model.Encoding(encoding)

		content, err := s.getSnapshotContent(contentID, encrypted, snap.Encoding, dec)
		if err != nil {
			return nil, fmt.Errorf("loading content for %s: %w", snap.File, err)
		}
		snap.Content = content
		record.Files = append(record.Files, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshots: %w", err)
	}
	return record, nil
}

// getSnapshotContent fetches one payload from the vault and rebuilds
// the content string in its original encoding.
func (s *SQLiteStore) getSnapshotContent(contentID string, encrypted bool, encoding model.Encoding, dec nd.DecryptionContext) (string, error) {
	var buf bytes.Buffer
	if err := s.vault.GetContent(contentID, &buf); err != nil {
		return "", err
	}

	plain := buf.Bytes()
	if encrypted {
		if dec == nil {
			return "", fmt.Errorf("content is encrypted but no passphrase was provided")
		}
		var out bytes.Buffer
		if err := dec.Decrypt(bytes.NewReader(plain), &out); err != nil {
			return "", fmt.Errorf("decrypting content: %w", err)
		}
		plain = out.Bytes()
	}

	switch encoding {
	case model.EncodingBase64:
		return base64.StdEncoding.EncodeToString(plain), nil
	default:
		return string(plain), nil
	}
}

func (s *SQLiteStore) scanRecord(backupID string) (*model.BackupRecord, error) {
	row := s.db.QueryRow(`SELECT backup_id, nucleus_id, deployment_id, repository, branch, change_count, total_size, checksum_valid, created_at
		FROM backup_records WHERE backup_id = ?`, backupID)

	var record model.BackupRecord
	err := row.Scan(&record.BackupID, &record.NucleusID, &record.DeploymentID, &record.Repository,
		&record.Branch, &record.ChangeCount, &record.TotalSize, &record.ChecksumValid, &record.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying backup record: %w", err)
	}
	return &record, nil
}

// ListBackups returns records newest first, with snapshot metadata but
// no content. An empty nucleusID lists all nuclei.
func (s *SQLiteStore) ListBackups(nucleusID string) ([]*model.BackupRecord, error) {
	query := `SELECT backup_id, nucleus_id, deployment_id, repository, branch, change_count, total_size, checksum_valid, created_at
		FROM backup_records`
	args := []any{}
	if nucleusID != "" {
		query += " WHERE nucleus_id = ?"
		args = append(args, nucleusID)
	}
	query += " ORDER BY created_at DESC, backup_id DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying backup records: %w", err)
	}
	defer rows.Close()

	var records []*model.BackupRecord
	for rows.Next() {
		var record model.BackupRecord
		if err := rows.Scan(&record.BackupID, &record.NucleusID, &record.DeploymentID, &record.Repository,
			&record.Branch, &record.ChangeCount, &record.TotalSize, &record.ChecksumValid, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning backup record: %w", err)
		}
		records = append(records, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating backup records: %w", err)
	}

	for _, record := range records {
		if err := s.fillSnapshotMetadata(record); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (s *SQLiteStore) fillSnapshotMetadata(record *model.BackupRecord) error {
	rows, err := s.db.Query(`SELECT file, encoding, checksum, size, created_at
		FROM backup_files WHERE backup_id = ? ORDER BY id`, record.BackupID)
	if err != nil {
		return fmt.Errorf("querying snapshot metadata: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var snap model.FileSnapshot
		var encoding string
		if err := rows.Scan(&snap.File, &encoding, &snap.Checksum, &snap.Size, &snap.Timestamp); err != nil {
			return fmt.Errorf("scanning snapshot metadata: %w", err)
		}
		snap.Encoding = model.Encoding(encoding)
		record.Files = append(record.Files, snap)
	}
	return rows.Err()
}

// SaveScheduledDeployment records a deploy-later intent.
func (s *SQLiteStore) SaveScheduledDeployment(sd *model.ScheduledDeployment) error {
	_, err := s.db.Exec(`INSERT INTO scheduled_deployments
		(id, deployment_id, nucleus_id, repository, branch, change_count, run_after, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sd.ID, sd.DeploymentID, sd.NucleusID, sd.Repository, sd.Branch, sd.ChangeCount, sd.RunAfter, sd.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting scheduled deployment: %w", err)
	}
	return nil
}

// ListScheduledDeployments returns pending intents newest first.
func (s *SQLiteStore) ListScheduledDeployments() ([]*model.ScheduledDeployment, error) {
	rows, err := s.db.Query(`SELECT id, deployment_id, nucleus_id, repository, branch, change_count, run_after, created_at
		FROM scheduled_deployments ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying scheduled deployments: %w", err)
	}
	defer rows.Close()

	var out []*model.ScheduledDeployment
	for rows.Next() {
		var sd model.ScheduledDeployment
		if err := rows.Scan(&sd.ID, &sd.DeploymentID, &sd.NucleusID, &sd.Repository, &sd.Branch,
			&sd.ChangeCount, &sd.RunAfter, &sd.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning scheduled deployment: %w", err)
		}
		out = append(out, &sd)
	}
	return out, rows.Err()
}

// CreateOperation records the start of a CLI invocation.
func (s *SQLiteStore) CreateOperation(operation, parameters string, startedAt time.Time) (int64, error) {
	res, err := s.db.Exec(`INSERT INTO operations (operation, parameters, status, started_at)
		VALUES (?, ?, 'running', ?)`, operation, parameters, startedAt)
	if err != nil {
		return 0, fmt.Errorf("inserting operation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading operation id: %w", err)
	}
	return id, nil
}

// FinishOperation finalizes an operation record.
func (s *SQLiteStore) FinishOperation(id int64, status string, finishedAt time.Time) error {
	res, err := s.db.Exec(`UPDATE operations SET status = ?, finished_at = ? WHERE id = ?`,
		status, finishedAt, id)
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("operation %d not found", id)
	}
	return nil
}

// ListOperations returns the most recent operations, newest first.
func (s *SQLiteStore) ListOperations(limit int) ([]*model.Operation, error) {
	rows, err := s.db.Query(`SELECT id, operation, parameters, status, started_at, finished_at
		FROM operations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying operations: %w", err)
	}
	defer rows.Close()

	var out []*model.Operation
	for rows.Next() {
		var op model.Operation
		var finished sql.NullTime
		if err := rows.Scan(&op.ID, &op.Operation, &op.Parameters, &op.Status, &op.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("scanning operation: %w", err)
		}
		if finished.Valid {
			op.FinishedAt = finished.Time
		}
		out = append(out, &op)
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
