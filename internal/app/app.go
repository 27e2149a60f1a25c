package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"nd-go/internal/config"
	"nd-go/internal/connector"
	"nd-go/internal/encryption"
	"nd-go/internal/model"
	"nd-go/internal/nd"
	"nd-go/internal/store"
	"nd-go/internal/vault"
)

// NDApp is the application layer between the CLI and the deployment
// service. It constructs all dependencies from config, exposes
// high-level operations, and manages the store lifecycle on Close.
type NDApp struct {
	cfg       *config.Config
	store     nd.Store
	connector nd.Connector
	encryptor nd.Encryptor
	service   *nd.Service
	op        *CLIOperation
	logFile   *os.File
}

// NewNDApp creates a fully wired NDApp from the given config.
// operation identifies the CLI command being run (e.g. "Deploy", "Rollback").
// The caller must call Close when done.
func NewNDApp(cfg *config.Config, operation string) (*NDApp, error) {
	v, err := vault.NewVaultFromConfig(cfg.Vault)
	if err != nil {
		return nil, fmt.Errorf("creating vault: %w", err)
	}
	if err := v.ValidateSetup(); err != nil {
		return nil, fmt.Errorf("validating vault: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	st, err := store.NewStoreFromConfig(cfg.Database, v, enc)
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}

	opID := time.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	adapter := &slogAdapter{l: logger}

	conn := connector.NewHTTPConnector(connector.Options{
		Timeout: time.Duration(cfg.Connector.TimeoutSeconds) * time.Second,
		Retries: cfg.Connector.Retries,
		Logger:  adapter,
		Clock:   nd.RealClock{},
	})

	svc := nd.NewService(conn, st, adapter, nd.RealClock{}, nd.UUIDGenerator{})
	op := NewCLIOperation(operation, "")

	return &NDApp{
		cfg:       cfg,
		store:     st,
		connector: conn,
		encryptor: enc,
		service:   svc,
		op:        op,
		logFile:   logFile,
	}, nil
}

// persistOperation saves the operation to the database, giving it an
// auto-increment ID. This should only be called for mutating commands.
func (a *NDApp) persistOperation() error {
	if a.op.Persisted() {
		return nil // already persisted
	}
	id, err := a.store.CreateOperation(a.op.Operation, a.op.Parameters, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = id
	return nil
}

// ConnectNucleus connects to a nucleus configured under the given ID.
func (a *NDApp) ConnectNucleus(ctx context.Context, nucleusID string) error {
	nc, err := a.cfg.Nucleus(nucleusID)
	if err != nil {
		return err
	}
	cat, err := model.ParseCategory(nc.Category)
	if err != nil {
		return fmt.Errorf("nucleus %s: %w", nucleusID, err)
	}
	return a.connector.Connect(ctx, nd.ConnectRequest{
		ID:         nc.ID,
		Name:       nc.Name,
		Category:   cat,
		BaseURL:    nc.BaseURL,
		Credential: nc.Credential,
	})
}

// ConnectAll connects to every configured nucleus. Failures are
// collected; a single unreachable nucleus does not stop the others.
func (a *NDApp) ConnectAll(ctx context.Context) []error {
	var errs []error
	for _, nc := range a.cfg.Nuclei {
		if err := a.ConnectNucleus(ctx, nc.ID); err != nil {
			errs = append(errs, fmt.Errorf("connecting %s: %w", nc.ID, err))
		}
	}
	return errs
}

// DisconnectNucleus removes a tracked connection.
func (a *NDApp) DisconnectNucleus(nucleusID string) error {
	return a.connector.Disconnect(nucleusID)
}

// Connections returns all tracked nucleus connections.
func (a *NDApp) Connections() []model.NucleusConnection {
	return a.connector.Connections()
}

// HealthCheckAll re-pings every tracked connection and returns the
// refreshed states.
func (a *NDApp) HealthCheckAll(ctx context.Context) []model.NucleusConnection {
	a.connector.HealthCheckAll(ctx)
	return a.connector.Connections()
}

// Deploy connects to the target nucleus and runs the deployment.
// The returned result carries success or failure; err is reserved for
// wiring problems before the orchestrator ran (unknown nucleus,
// operation persistence).
func (a *NDApp) Deploy(ctx context.Context, req *model.DeploymentRequest) (*model.DeploymentResult, error) {
	if req.Strategy.Mutating() {
		if err := a.persistOperation(); err != nil {
			return nil, err
		}
	}
	if err := a.ConnectNucleus(ctx, req.NucleusID); err != nil {
		return nil, fmt.Errorf("connecting to nucleus %s: %w", req.NucleusID, err)
	}
	result := a.service.Deploy(ctx, req)
	if !result.Success {
		a.op.Status = "error"
	}
	return result, nil
}

// Rollback restores a backup onto its nucleus. passphrase unlocks the
// private key when backups are encrypted at rest; it is ignored when
// encryption is not configured.
func (a *NDApp) Rollback(ctx context.Context, deploymentID, backupID, passphrase string) (*model.RollbackResult, error) {
	if err := a.persistOperation(); err != nil {
		return nil, err
	}

	var dec nd.DecryptionContext
	if a.encryptor != nil {
		var err error
		dec, err = a.encryptor.Unlock(passphrase)
		if err != nil {
			return nil, fmt.Errorf("unlocking private key: %w", err)
		}
	}

	record, err := a.store.GetBackup(backupID, dec)
	if err != nil {
		return nil, fmt.Errorf("loading backup %s: %w", backupID, err)
	}
	if record != nil {
		if err := a.ConnectNucleus(ctx, record.NucleusID); err != nil {
			return nil, fmt.Errorf("connecting to nucleus %s: %w", record.NucleusID, err)
		}
	}

	result := a.service.Rollback(ctx, deploymentID, backupID, dec)
	if !result.Success {
		a.op.Status = "error"
	}
	return result, nil
}

// ListBackups returns backup metadata, optionally scoped to one nucleus.
func (a *NDApp) ListBackups(nucleusID string) ([]*model.BackupRecord, error) {
	return a.store.ListBackups(nucleusID)
}

// GetBackup returns a full backup record including file content.
func (a *NDApp) GetBackup(backupID, passphrase string) (*model.BackupRecord, error) {
	var dec nd.DecryptionContext
	if a.encryptor != nil {
		var err error
		dec, err = a.encryptor.Unlock(passphrase)
		if err != nil {
			return nil, fmt.Errorf("unlocking private key: %w", err)
		}
	}
	return a.store.GetBackup(backupID, dec)
}

// ScheduledDeployments returns recorded deployment intents, newest first.
func (a *NDApp) ScheduledDeployments() ([]*model.ScheduledDeployment, error) {
	return a.store.ListScheduledDeployments()
}

// History returns the most recent CLI operations.
func (a *NDApp) History(limit int) ([]*model.Operation, error) {
	return a.store.ListOperations(limit)
}

// EncryptionEnabled reports whether backups are encrypted at rest.
func (a *NDApp) EncryptionEnabled() bool {
	return a.encryptor != nil
}

// SetupEncryption generates the key pair for at-rest encryption.
func (a *NDApp) SetupEncryption(passphrase string) error {
	if a.encryptor == nil {
		return fmt.Errorf("encryption is not enabled in config")
	}
	if a.encryptor.IsConfigured() {
		return fmt.Errorf("encryption keys already exist")
	}
	return a.encryptor.Setup(passphrase)
}

// Close finalizes the operation record and closes all resources.
func (a *NDApp) Close() error {
	var firstErr error

	if a.op.Persisted() {
		if err := a.store.FinishOperation(a.op.ID, a.op.Status, time.Now().UTC()); err != nil {
			firstErr = fmt.Errorf("finishing operation: %w", err)
		}
	}

	if err := a.store.Close(); err != nil {
		if firstErr == nil {
			firstErr = fmt.Errorf("closing store: %w", err)
		}
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}
