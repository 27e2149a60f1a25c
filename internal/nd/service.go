package nd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"nd-go/internal/codec"
	"nd-go/internal/model"
)

// Service is the deployment orchestrator: the single entry point
// coordinating validation, backup, strategy execution and verification.
// All collaborators are injected so tests can substitute fakes.
type Service struct {
	connector Connector
	store     Store
	logger    Logger
	clock     Clock
	idgen     IDGenerator
}

// NewService creates a Service with the provided dependencies.
func NewService(connector Connector, store Store, logger Logger, clock Clock, idgen IDGenerator) *Service {
	return &Service{
		connector: connector,
		store:     store,
		logger:    logger,
		clock:     clock,
		idgen:     idgen,
	}
}

// trail accumulates the ordered, human-readable log lines that end up
// in a DeploymentResult.
type trail struct {
	lines []string
}

func (t *trail) addf(format string, args ...any) {
	t.lines = append(t.lines, fmt.Sprintf(format, args...))
}

// Deploy runs one deployment request through the state machine
// VALIDATING -> BACKING_UP -> APPLYING -> VERIFYING. Every failure is
// surfaced in the result rather than as a returned error; callers
// decide how to present it. No retries are automatic; a failed
// deployment must be resubmitted.
//
// Concurrent deployments against the same nucleus are not serialized
// by this core; that responsibility belongs to the caller.
func (s *Service) Deploy(ctx context.Context, req *model.DeploymentRequest) *model.DeploymentResult {
	t := &trail{}
	if req.ID == "" {
		req.ID = s.idgen.New()
	}
	s.logger.Info("deployment started", "deployment", req.ID, "nucleus", req.NucleusID, "strategy", req.Strategy)
	t.addf("deployment %s: validating %d change(s) for nucleus %s", req.ID, len(req.Changes), req.NucleusID)

	if err := validateRequest(req); err != nil {
		s.logger.Warn("deployment rejected", "deployment", req.ID, "error", err)
		return s.fail(t, "validation failed: %v", err)
	}

	if req.Strategy == model.StrategyDryRun {
		t.addf("dry run: %d change(s) simulated, nothing was sent to the nucleus", len(req.Changes))
		s.logger.Info("dry run complete", "deployment", req.ID, "changes", len(req.Changes))
		return &model.DeploymentResult{
			Success:      true,
			CompletedAt:  s.clock.Now(),
			FilesChanged: len(req.Changes),
			Logs:         t.lines,
		}
	}

	// Backup. Every UPDATE/DELETE must be snapshotted before any remote
	// mutation is attempted; a single missing snapshot aborts the whole
	// deployment. Partial backups are never persisted as trustworthy.
	record, err := s.createBackup(ctx, req, t)
	if err != nil {
		s.logger.Error("backup failed, deployment aborted", "deployment", req.ID, "error", err)
		return s.fail(t, "backup failed, no changes were applied: %v", err)
	}

	backupID := ""
	rollbackAvailable := false
	if record != nil {
		backupID = record.BackupID
		rollbackAvailable = record.ChecksumValid
	}

	result := &model.DeploymentResult{
		FilesChanged:      len(req.Changes),
		RollbackAvailable: rollbackAvailable,
		BackupID:          backupID,
	}

	// Apply. From here on a failure is reported with whatever partial
	// state exists: a persisted backup stays rollback-eligible even if
	// nothing was actually changed on the nucleus.
	switch req.Strategy {
	case model.StrategyCreatePR:
		pr, err := s.applyPullRequest(ctx, req, t)
		if err != nil {
			s.logger.Error("pull request failed", "deployment", req.ID, "error", err)
			return s.failWith(result, t, "creating pull request: %v", err)
		}
		result.PRURL = pr.URL
		result.PRID = pr.ID

	case model.StrategyAutoApply:
		t.addf("auto-apply: pushing %d change(s) directly to branch %s (higher risk than a pull request)", len(req.Changes), branchOrDefault(req.Branch))
		push, err := s.connector.PushChanges(ctx, req.NucleusID, req.Changes, commitMessage(req))
		if err != nil {
			s.logger.Error("push failed", "deployment", req.ID, "error", err)
			return s.failWith(result, t, "pushing changes: %v", err)
		}
		t.addf("pushed commit %s (%d file(s))", push.CommitID, push.FilesChanged)

	case model.StrategyScheduled:
		if err := s.applyScheduled(req, t); err != nil {
			s.logger.Error("scheduling failed", "deployment", req.ID, "error", err)
			return s.failWith(result, t, "recording scheduled deployment: %v", err)
		}
		// Nothing touched the nucleus; no post-mutation verification.
		result.Success = true
		result.CompletedAt = s.clock.Now()
		result.Logs = t.lines
		return result
	}

	// Verify the nucleus is still reachable after the mutation. A
	// dropped connection is a verification failure even when the push
	// itself succeeded: the caller cannot trust post-deploy health.
	if err := s.verifyConnection(ctx, req.NucleusID, t); err != nil {
		s.logger.Error("post-deploy verification failed", "deployment", req.ID, "error", err)
		return s.failWith(result, t, "verification failed: %v", err)
	}

	result.Success = true
	result.CompletedAt = s.clock.Now()
	result.Logs = t.lines
	s.logger.Info("deployment complete", "deployment", req.ID, "files", result.FilesChanged, "backup", backupID)
	return result
}

// createBackup snapshots the current remote content of every file an
// UPDATE or DELETE change is about to mutate, then persists the record.
// Returns (nil, nil) when no change requires a backup (pure CREATE set).
// Any required fetch failing aborts with an error: all-or-nothing.
func (s *Service) createBackup(ctx context.Context, req *model.DeploymentRequest, t *trail) (*model.BackupRecord, error) {
	var required []model.CodeChange
	for _, c := range req.Changes {
		if c.Action == model.ActionUpdate || c.Action == model.ActionDelete {
			required = append(required, c)
		}
	}
	if len(required) == 0 {
		t.addf("no pre-existing files to snapshot, skipping backup")
		return nil, nil
	}

	now := s.clock.Now()
	record := &model.BackupRecord{
		BackupID:     fmt.Sprintf("%s-%s", now.UTC().Format("20060102T150405Z"), req.NucleusID),
		NucleusID:    req.NucleusID,
		DeploymentID: req.ID,
		Repository:   req.Repository,
		Branch:       branchOrDefault(req.Branch),
		CreatedAt:    now,
	}

	valid := true
	for _, c := range required {
		content, err := s.connector.FetchFile(ctx, req.NucleusID, req.Repository, c.File, record.Branch)
		if err != nil {
			return nil, fmt.Errorf("snapshotting %s: %w", c.File, err)
		}
		if content.Size == 0 {
			s.logger.Warn("backed up empty file", "file", c.File)
		}
		if !codec.Verify(content.Content, content.Encoding, content.Checksum) {
			valid = false
		}
		record.Files = append(record.Files, model.FileSnapshot{
			File:      c.File,
			Content:   content.Content,
			Encoding:  content.Encoding,
			Checksum:  content.Checksum,
			Size:      content.Size,
			Timestamp: now,
		})
		record.TotalSize += content.Size
	}
	record.ChangeCount = len(record.Files)
	record.ChecksumValid = valid

	if err := s.store.SaveBackup(record); err != nil {
		return nil, fmt.Errorf("persisting backup record: %w", err)
	}
	t.addf("backup %s: %d file(s), %d byte(s)", record.BackupID, record.ChangeCount, record.TotalSize)
	s.logger.Info("backup created", "backup", record.BackupID, "files", record.ChangeCount)
	return record, nil
}

// applyPullRequest opens a PR on a branch derived from the deployment ID.
func (s *Service) applyPullRequest(ctx context.Context, req *model.DeploymentRequest, t *trail) (model.PullRequest, error) {
	branch := "deploy/" + req.ID
	opts := PullRequestOptions{
		Title:       fmt.Sprintf("Deployment %s: %d change(s)", req.ID, len(req.Changes)),
		Description: buildPRDescription(req.Changes),
		Branch:      branch,
		BaseBranch:  branchOrDefault(req.Branch),
		Changes:     req.Changes,
	}
	pr, err := s.connector.CreatePullRequest(ctx, req.NucleusID, opts)
	if err != nil {
		return model.PullRequest{}, err
	}
	t.addf("opened pull request %s on branch %s: %s", pr.ID, branch, pr.URL)
	return pr, nil
}

// applyScheduled persists the intent to deploy later. The optional
// metadata key "run_after" (RFC 3339) sets the earliest execution time;
// it defaults to now, leaving the intent immediately eligible.
func (s *Service) applyScheduled(req *model.DeploymentRequest, t *trail) error {
	runAfter := s.clock.Now()
	if raw, ok := req.Metadata["run_after"]; ok {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return fmt.Errorf("invalid run_after %q: %w", raw, err)
		}
		runAfter = parsed
	}
	sd := &model.ScheduledDeployment{
		ID:           s.idgen.New(),
		DeploymentID: req.ID,
		NucleusID:    req.NucleusID,
		Repository:   req.Repository,
		Branch:       branchOrDefault(req.Branch),
		ChangeCount:  len(req.Changes),
		RunAfter:     runAfter,
		CreatedAt:    s.clock.Now(),
	}
	if err := s.store.SaveScheduledDeployment(sd); err != nil {
		return err
	}
	t.addf("scheduled deployment %s recorded, eligible after %s (no scheduler executes these yet)", sd.ID, runAfter.UTC().Format(time.RFC3339))
	return nil
}

// verifyConnection re-pings the nucleus and checks its tracked state.
func (s *Service) verifyConnection(ctx context.Context, nucleusID string, t *trail) error {
	conn, err := s.connector.Connection(nucleusID)
	if err != nil {
		return err
	}
	if err := s.connector.Ping(ctx, conn.BaseURL, conn.Credential); err != nil {
		return fmt.Errorf("nucleus %s unreachable after deploy: %w", nucleusID, err)
	}
	t.addf("nucleus %s verified reachable after deploy", nucleusID)
	return nil
}

func (s *Service) fail(t *trail, format string, args ...any) *model.DeploymentResult {
	return s.failWith(&model.DeploymentResult{}, t, format, args...)
}

func (s *Service) failWith(result *model.DeploymentResult, t *trail, format string, args ...any) *model.DeploymentResult {
	msg := fmt.Sprintf(format, args...)
	t.addf("FAILED: %s", msg)
	result.Success = false
	result.Error = msg
	result.CompletedAt = s.clock.Now()
	result.Logs = t.lines
	return result
}

// buildPRDescription groups changes by action type into a readable
// markdown summary.
func buildPRDescription(changes []model.CodeChange) string {
	groups := map[model.Action][]model.CodeChange{}
	for _, c := range changes {
		groups[c.Action] = append(groups[c.Action], c)
	}

	var b strings.Builder
	b.WriteString("Automated deployment.\n")
	for _, section := range []struct {
		action model.Action
		title  string
	}{
		{model.ActionCreate, "Created"},
		{model.ActionUpdate, "Updated"},
		{model.ActionDelete, "Deleted"},
	} {
		list := groups[section.action]
		if len(list) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s:\n", section.title)
		for _, c := range list {
			fmt.Fprintf(&b, "- %s", c.File)
			if c.Reason != "" {
				fmt.Fprintf(&b, " (%s)", c.Reason)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

func commitMessage(req *model.DeploymentRequest) string {
	return fmt.Sprintf("Deployment %s: %d change(s)", req.ID, len(req.Changes))
}

func branchOrDefault(branch string) string {
	if branch == "" {
		return "main"
	}
	return branch
}
