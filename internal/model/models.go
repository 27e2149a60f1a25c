package model

import (
	"fmt"
	"time"
)

// Category classifies a nucleus within the fleet.
type Category string

const (
	CategorySide     Category = "SIDE"
	CategoryAcademy  Category = "ACADEMY"
	CategoryExternal Category = "EXTERNAL"
)

// ParseCategory converts a config string into a Category.
func ParseCategory(s string) (Category, error) {
	switch Category(s) {
	case CategorySide, CategoryAcademy, CategoryExternal:
		return Category(s), nil
	case "":
		return CategoryExternal, nil
	default:
		return "", fmt.Errorf("unknown nucleus category: %q", s)
	}
}

// ConnectionStatus is the liveness state of a nucleus connection.
type ConnectionStatus string

const (
	StatusConnected    ConnectionStatus = "CONNECTED"
	StatusDisconnected ConnectionStatus = "DISCONNECTED"
	StatusError        ConnectionStatus = "ERROR"
)

// Encoding tags how content is represented on the wire and in backups.
type Encoding string

const (
	EncodingUTF8   Encoding = "utf-8"
	EncodingBase64 Encoding = "base64"
)

// Action is the kind of mutation a CodeChange requests.
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

// Strategy selects how a deployment is applied to the remote nucleus.
type Strategy string

const (
	StrategyDryRun    Strategy = "DRY_RUN"
	StrategyCreatePR  Strategy = "CREATE_PR"
	StrategyAutoApply Strategy = "AUTO_APPLY"
	StrategyScheduled Strategy = "SCHEDULED"
)

// Mutating reports whether the strategy touches the remote nucleus.
func (s Strategy) Mutating() bool {
	return s == StrategyCreatePR || s == StrategyAutoApply || s == StrategyScheduled
}

// NucleusConnection is the connector-owned state for one remote platform.
// It is created on explicit connect, removed on disconnect, and mutated
// only by the connector's own connect/ping/disconnect operations.
type NucleusConnection struct {
	ID         string
	Name       string
	Category   Category
	BaseURL    string
	Credential string
	Status     ConnectionStatus
	LastPing   time.Time
}

// EncodedContent is an immutable content value. Checksum is the SHA-256
// hex digest over the decoded byte sequence and Size the decoded length;
// both are derived by the codec, never set by callers.
type EncodedContent struct {
	Content  string
	Encoding Encoding
	Size     int64
	Checksum string
}

// CodeChange is one requested file mutation. It is supplied by the
// caller and only ever persisted embedded in a deployment request or,
// post-snapshot, inside a backup record.
type CodeChange struct {
	File     string   `json:"file"`
	Action   Action   `json:"action"`
	Content  string   `json:"content,omitempty"`
	Encoding Encoding `json:"encoding,omitempty"`
	Reason   string   `json:"reason"`
}

// FileSnapshot is the pre-change state of a single file inside a backup
// record.
type FileSnapshot struct {
	File      string
	Content   string
	Encoding  Encoding
	Checksum  string
	Size      int64
	Timestamp time.Time
}

// BackupRecord is the durable pre-deployment snapshot of every file a
// deployment is about to overwrite or delete. Records are append-only:
// created once, read many times during rollback, never mutated.
type BackupRecord struct {
	BackupID      string
	NucleusID     string
	DeploymentID  string
	Repository    string
	Branch        string
	Files         []FileSnapshot
	ChangeCount   int
	TotalSize     int64
	ChecksumValid bool
	CreatedAt     time.Time
}

// DeploymentRequest is the caller-facing deployment input.
type DeploymentRequest struct {
	ID         string            `json:"id"`
	NucleusID  string            `json:"nucleusId"`
	Repository string            `json:"repository"`
	Branch     string            `json:"branch,omitempty"`
	Changes    []CodeChange      `json:"changes"`
	Strategy   Strategy          `json:"strategy"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// DeploymentResult is produced once per deployment invocation. It is
// not persisted by the core; the caller may log it.
type DeploymentResult struct {
	Success           bool
	CompletedAt       time.Time
	FilesChanged      int
	RollbackAvailable bool
	Logs              []string
	PRURL             string
	PRID              string
	BackupID          string
	Error             string
}

// RollbackResult reports the outcome of restoring a backup record.
type RollbackResult struct {
	Success       bool
	RestoredFiles int
	CommitID      string
	Logs          []string
	Error         string
}

// FileInfo is per-file metadata in a codebase listing (no content).
type FileInfo struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// CodebaseListing is the result of a directory/commit-scoped listing.
type CodebaseListing struct {
	Repository string     `json:"repository"`
	Branch     string     `json:"branch"`
	Commit     string     `json:"commit,omitempty"`
	TotalFiles int        `json:"totalFiles"`
	Files      []FileInfo `json:"files,omitempty"`
}

// PushResult is the remote commit acknowledgement for a change batch.
type PushResult struct {
	CommitID     string
	FilesChanged int
	Timestamp    time.Time
}

// PullRequest identifies a pull request opened on a nucleus.
type PullRequest struct {
	URL string
	ID  string
}

// Operation records one CLI invocation against the core, for the
// operation history. Status is "success" or "error".
type Operation struct {
	ID         int64
	Operation  string
	Parameters string
	Status     string
	StartedAt  time.Time
	FinishedAt time.Time
}

// ScheduledDeployment is a persisted intent to deploy later. No
// scheduler executes these yet; they are recorded for an external one.
type ScheduledDeployment struct {
	ID           string
	DeploymentID string
	NucleusID    string
	Repository   string
	Branch       string
	ChangeCount  int
	RunAfter     time.Time
	CreatedAt    time.Time
}
