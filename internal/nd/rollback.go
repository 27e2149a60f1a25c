package nd

import (
	"context"
	"fmt"

	"nd-go/internal/codec"
	"nd-go/internal/model"
)

// Rollback restores a nucleus's files to the state captured in a backup
// record. Every snapshot's checksum is re-verified before anything is
// pushed; a single mismatch aborts the entire rollback, because a
// corrupted record casts doubt on the integrity of the whole persisted
// batch. dec is required when the record is encrypted at rest.
//
// A failed rollback never partially restores files: the restoration is
// pushed as one atomic commit or not at all.
func (s *Service) Rollback(ctx context.Context, deploymentID, backupID string, dec DecryptionContext) *model.RollbackResult {
	t := &trail{}
	s.logger.Info("rollback started", "deployment", deploymentID, "backup", backupID)
	t.addf("rollback: loading backup %s", backupID)

	record, err := s.store.GetBackup(backupID, dec)
	if err != nil {
		return s.rollbackFail(t, "loading backup: %v", err)
	}
	if record == nil {
		return s.rollbackFail(t, "backup %s: %v", backupID, ErrBackupNotFound)
	}
	if record.DeploymentID != "" && deploymentID != "" && record.DeploymentID != deploymentID {
		return s.rollbackFail(t, "backup %s belongs to deployment %s, not %s", backupID, record.DeploymentID, deploymentID)
	}
	if !record.ChecksumValid {
		return s.rollbackFail(t, "backup %s was flagged invalid at creation time: %v", backupID, ErrChecksumMismatch)
	}

	// Verify every snapshot before restoring any of them.
	var mismatches []string
	for _, snap := range record.Files {
		if !codec.Verify(snap.Content, snap.Encoding, snap.Checksum) {
			mismatches = append(mismatches, snap.File)
		}
	}
	if len(mismatches) > 0 {
		s.logger.Error("rollback aborted, corrupted backup", "backup", backupID, "files", mismatches)
		return s.rollbackFail(t, "%d file(s) failed verification (%v), nothing was restored: %v", len(mismatches), mismatches, ErrChecksumMismatch)
	}
	t.addf("verified %d snapshot(s)", len(record.Files))

	// Build the restoration batch, preserving each file's original
	// encoding exactly: binary stays base64 end-to-end, text stays text.
	changes := make([]model.CodeChange, 0, len(record.Files))
	for _, snap := range record.Files {
		changes = append(changes, model.CodeChange{
			File:     snap.File,
			Action:   model.ActionUpdate,
			Content:  snap.Content,
			Encoding: snap.Encoding,
			Reason:   fmt.Sprintf("restore from backup %s", backupID),
		})
	}

	msg := fmt.Sprintf("Rollback of deployment %s (backup %s)", deploymentID, backupID)
	push, err := s.connector.PushChanges(ctx, record.NucleusID, changes, msg)
	if err != nil {
		return s.rollbackFail(t, "pushing restoration: %v", err)
	}
	t.addf("restored %d file(s) in commit %s", len(changes), push.CommitID)
	s.logger.Info("rollback complete", "backup", backupID, "files", len(changes), "commit", push.CommitID)

	return &model.RollbackResult{
		Success:       true,
		RestoredFiles: len(changes),
		CommitID:      push.CommitID,
		Logs:          t.lines,
	}
}

func (s *Service) rollbackFail(t *trail, format string, args ...any) *model.RollbackResult {
	msg := fmt.Sprintf(format, args...)
	t.addf("FAILED: %s", msg)
	return &model.RollbackResult{
		Success: false,
		Logs:    t.lines,
		Error:   msg,
	}
}
