package store_test

import (
	"strings"
	"testing"
	"time"

	"nd-go/internal/codec"
	"nd-go/internal/encryption"
	"nd-go/internal/model"
	"nd-go/internal/testutil"
	"nd-go/internal/vault"
)

func sampleRecord(backupID string) *model.BackupRecord {
	now := time.Date(2026, 5, 2, 12, 0, 0, 0, time.UTC)
	text := codec.EncodeBytes([]byte("server:\n  port: 8080\n"))
	binary := codec.EncodeBytes([]byte{0x00, 0x01, 0xff, 0xfe})

	return &model.BackupRecord{
		BackupID:     backupID,
		NucleusID:    "nucleus-1",
		DeploymentID: "dep-1",
		Repository:   "repo",
		Branch:       "main",
		Files: []model.FileSnapshot{
			{File: "config.yaml", Content: text.Content, Encoding: text.Encoding, Checksum: text.Checksum, Size: text.Size, Timestamp: now},
			{File: "logo.png", Content: binary.Content, Encoding: binary.Encoding, Checksum: binary.Checksum, Size: binary.Size, Timestamp: now},
		},
		ChangeCount:   2,
		TotalSize:     text.Size + binary.Size,
		ChecksumValid: true,
		CreatedAt:     now,
	}
}

func TestSQLiteStore_SaveGetBackup(t *testing.T) {
	t.Run("round trips a record with text and binary snapshots", func(t *testing.T) {
		st := testutil.NewTestStore(t)
		record := sampleRecord("20260502T120000Z-nucleus-1")

		if err := st.SaveBackup(record); err != nil {
			t.Fatalf("SaveBackup() error = %v", err)
		}

		got, err := st.GetBackup(record.BackupID, nil)
		if err != nil {
			t.Fatalf("GetBackup() error = %v", err)
		}
		if got == nil {
			t.Fatal("GetBackup() = nil, want record")
		}
		if got.NucleusID != "nucleus-1" || got.DeploymentID != "dep-1" {
			t.Errorf("record identity = %s/%s, want nucleus-1/dep-1", got.NucleusID, got.DeploymentID)
		}
		if !got.ChecksumValid {
			t.Error("ChecksumValid = false after round trip")
		}
		if len(got.Files) != 2 {
			t.Fatalf("snapshots = %d, want 2", len(got.Files))
		}
		for i, snap := range got.Files {
			want := record.Files[i]
			if snap.Content != want.Content {
				t.Errorf("snapshot %s content = %q, want %q", snap.File, snap.Content, want.Content)
			}
			if snap.Encoding != want.Encoding {
				t.Errorf("snapshot %s encoding = %q, want %q", snap.File, snap.Encoding, want.Encoding)
			}
			if !codec.Verify(snap.Content, snap.Encoding, snap.Checksum) {
				t.Errorf("snapshot %s fails verification after round trip", snap.File)
			}
		}
	})

	t.Run("missing backup returns nil without error", func(t *testing.T) {
		st := testutil.NewTestStore(t)
		got, err := st.GetBackup("nope", nil)
		if err != nil {
			t.Fatalf("GetBackup() error = %v", err)
		}
		if got != nil {
			t.Errorf("GetBackup() = %+v, want nil", got)
		}
	})

	t.Run("identical content across records deduplicates in the vault", func(t *testing.T) {
		v := vault.NewMemoryVault("test-vault")
		st := testutil.NewTestStoreWith(t, v, nil)

		a := sampleRecord("backup-a")
		b := sampleRecord("backup-b")
		if err := st.SaveBackup(a); err != nil {
			t.Fatalf("SaveBackup(a) error = %v", err)
		}
		if err := st.SaveBackup(b); err != nil {
			t.Fatalf("SaveBackup(b) error = %v", err)
		}

		got, err := st.GetBackup("backup-b", nil)
		if err != nil {
			t.Fatalf("GetBackup() error = %v", err)
		}
		if got.Files[0].Content != a.Files[0].Content {
			t.Error("deduplicated content differs between records")
		}
	})
}

func TestSQLiteStore_encryption(t *testing.T) {
	t.Run("encrypted content round trips with a decryption context", func(t *testing.T) {
		enc := encryption.NewTestEncryptor()
		st := testutil.NewTestStoreWith(t, vault.NewMemoryVault("test-vault"), enc)

		record := sampleRecord("encrypted-backup")
		if err := st.SaveBackup(record); err != nil {
			t.Fatalf("SaveBackup() error = %v", err)
		}

		dec, err := enc.Unlock("passphrase")
		if err != nil {
			t.Fatalf("Unlock() error = %v", err)
		}

		got, err := st.GetBackup("encrypted-backup", dec)
		if err != nil {
			t.Fatalf("GetBackup() error = %v", err)
		}
		for i, snap := range got.Files {
			if snap.Content != record.Files[i].Content {
				t.Errorf("snapshot %s content = %q, want %q", snap.File, snap.Content, record.Files[i].Content)
			}
			if !codec.Verify(snap.Content, snap.Encoding, snap.Checksum) {
				t.Errorf("snapshot %s fails verification after encrypted round trip", snap.File)
			}
		}
	})

	t.Run("encrypted content without a decryption context is an error", func(t *testing.T) {
		enc := encryption.NewTestEncryptor()
		st := testutil.NewTestStoreWith(t, vault.NewMemoryVault("test-vault"), enc)

		if err := st.SaveBackup(sampleRecord("encrypted-backup")); err != nil {
			t.Fatalf("SaveBackup() error = %v", err)
		}

		_, err := st.GetBackup("encrypted-backup", nil)
		if err == nil {
			t.Fatal("GetBackup() error = nil, want missing passphrase error")
		}
		if !strings.Contains(err.Error(), "no passphrase") {
			t.Errorf("error = %v, want passphrase mention", err)
		}
	})

	t.Run("plaintext vault bytes never match the snapshot content", func(t *testing.T) {
		enc := encryption.NewTestEncryptor()
		v := vault.NewMemoryVault("test-vault")
		st := testutil.NewTestStoreWith(t, v, enc)

		record := sampleRecord("encrypted-backup")
		if err := st.SaveBackup(record); err != nil {
			t.Fatalf("SaveBackup() error = %v", err)
		}

		// Content addressed by plaintext checksum must not exist when
		// encryption is on; ciphertext gets its own address.
		var sink strings.Builder
		if err := v.GetContent(record.Files[0].Checksum, &sink); err == nil {
			t.Error("vault stores content under the plaintext checksum despite encryption")
		}
	})
}

func TestSQLiteStore_ListBackups(t *testing.T) {
	st := testutil.NewTestStore(t)

	a := sampleRecord("backup-a")
	a.CreatedAt = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	b := sampleRecord("backup-b")
	b.CreatedAt = time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)
	c := sampleRecord("backup-c")
	c.NucleusID = "nucleus-2"
	c.CreatedAt = time.Date(2026, 5, 3, 0, 0, 0, 0, time.UTC)

	for _, r := range []*model.BackupRecord{a, b, c} {
		if err := st.SaveBackup(r); err != nil {
			t.Fatalf("SaveBackup(%s) error = %v", r.BackupID, err)
		}
	}

	t.Run("returns all records newest first", func(t *testing.T) {
		records, err := st.ListBackups("")
		if err != nil {
			t.Fatalf("ListBackups() error = %v", err)
		}
		if len(records) != 3 {
			t.Fatalf("records = %d, want 3", len(records))
		}
		if records[0].BackupID != "backup-c" || records[2].BackupID != "backup-a" {
			t.Errorf("order = [%s %s %s], want newest first", records[0].BackupID, records[1].BackupID, records[2].BackupID)
		}
	})

	t.Run("filters by nucleus", func(t *testing.T) {
		records, err := st.ListBackups("nucleus-2")
		if err != nil {
			t.Fatalf("ListBackups() error = %v", err)
		}
		if len(records) != 1 || records[0].BackupID != "backup-c" {
			t.Errorf("filtered records = %v, want only backup-c", records)
		}
	})

	t.Run("listing is metadata only", func(t *testing.T) {
		records, err := st.ListBackups("")
		if err != nil {
			t.Fatalf("ListBackups() error = %v", err)
		}
		for _, r := range records {
			if len(r.Files) == 0 {
				t.Errorf("record %s has no snapshot metadata", r.BackupID)
			}
			for _, snap := range r.Files {
				if snap.Content != "" {
					t.Errorf("record %s snapshot %s carries content in a listing", r.BackupID, snap.File)
				}
				if snap.Checksum == "" || snap.Size == 0 {
					t.Errorf("record %s snapshot %s missing metadata", r.BackupID, snap.File)
				}
			}
		}
	})
}

func TestSQLiteStore_scheduledDeployments(t *testing.T) {
	st := testutil.NewTestStore(t)

	first := &model.ScheduledDeployment{
		ID:           "sched-1",
		DeploymentID: "dep-1",
		NucleusID:    "nucleus-1",
		Repository:   "repo",
		Branch:       "main",
		ChangeCount:  2,
		RunAfter:     time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		CreatedAt:    time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	second := &model.ScheduledDeployment{
		ID:           "sched-2",
		DeploymentID: "dep-2",
		NucleusID:    "nucleus-1",
		Repository:   "repo",
		Branch:       "main",
		ChangeCount:  1,
		RunAfter:     time.Date(2026, 6, 2, 0, 0, 0, 0, time.UTC),
		CreatedAt:    time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC),
	}

	if err := st.SaveScheduledDeployment(first); err != nil {
		t.Fatalf("SaveScheduledDeployment() error = %v", err)
	}
	if err := st.SaveScheduledDeployment(second); err != nil {
		t.Fatalf("SaveScheduledDeployment() error = %v", err)
	}

	sds, err := st.ListScheduledDeployments()
	if err != nil {
		t.Fatalf("ListScheduledDeployments() error = %v", err)
	}
	if len(sds) != 2 {
		t.Fatalf("scheduled deployments = %d, want 2", len(sds))
	}
	if sds[0].ID != "sched-2" {
		t.Errorf("first listed = %s, want newest sched-2", sds[0].ID)
	}
	if !sds[1].RunAfter.Equal(first.RunAfter) {
		t.Errorf("RunAfter = %v, want %v", sds[1].RunAfter, first.RunAfter)
	}
}

func TestSQLiteStore_operations(t *testing.T) {
	t.Run("create, finish and list", func(t *testing.T) {
		st := testutil.NewTestStore(t)
		started := time.Date(2026, 5, 2, 12, 0, 0, 0, time.UTC)

		id, err := st.CreateOperation("Deploy", "nucleus-1", started)
		if err != nil {
			t.Fatalf("CreateOperation() error = %v", err)
		}
		if id == 0 {
			t.Fatal("CreateOperation() id = 0, want auto-increment")
		}

		if err := st.FinishOperation(id, "success", started.Add(3*time.Second)); err != nil {
			t.Fatalf("FinishOperation() error = %v", err)
		}

		ops, err := st.ListOperations(10)
		if err != nil {
			t.Fatalf("ListOperations() error = %v", err)
		}
		if len(ops) != 1 {
			t.Fatalf("operations = %d, want 1", len(ops))
		}
		op := ops[0]
		if op.Operation != "Deploy" || op.Status != "success" {
			t.Errorf("operation = %s/%s, want Deploy/success", op.Operation, op.Status)
		}
		if op.FinishedAt.IsZero() {
			t.Error("FinishedAt is zero after FinishOperation")
		}
	})

	t.Run("finishing an unknown operation is an error", func(t *testing.T) {
		st := testutil.NewTestStore(t)
		if err := st.FinishOperation(42, "success", time.Now()); err == nil {
			t.Error("FinishOperation() error = nil, want not found")
		}
	})

	t.Run("list respects the limit, newest first", func(t *testing.T) {
		st := testutil.NewTestStore(t)
		for i := 0; i < 5; i++ {
			if _, err := st.CreateOperation("Deploy", "", time.Now()); err != nil {
				t.Fatalf("CreateOperation() error = %v", err)
			}
		}

		ops, err := st.ListOperations(3)
		if err != nil {
			t.Fatalf("ListOperations() error = %v", err)
		}
		if len(ops) != 3 {
			t.Fatalf("operations = %d, want 3", len(ops))
		}
		if ops[0].ID < ops[1].ID {
			t.Error("operations not ordered newest first")
		}
	})
}
