package nd

import (
	"context"

	"nd-go/internal/model"
)

// ConnectRequest describes a nucleus to connect to.
type ConnectRequest struct {
	ID         string
	Name       string
	Category   model.Category
	BaseURL    string
	Credential string
}

// FetchOptions scope a codebase listing request.
type FetchOptions struct {
	Branch string
	Commit string
	Path   string
}

// PullRequestOptions carry everything needed to open a PR.
type PullRequestOptions struct {
	Title       string
	Description string
	Branch      string
	BaseBranch  string
	Changes     []model.CodeChange
}

// Connector performs all network I/O with remote nuclei. It owns the
// per-nucleus connection state exclusively; no business logic about
// backups or strategies lives here.
//
// Every call may block for up to the configured timeout. Timeouts are
// surfaced as ErrTimeout and mean "unknown outcome" (see errors.go).
type Connector interface {
	// Connect pings the target and records a CONNECTED connection on
	// success, an ERROR connection plus a returned error on failure.
	// Idempotent per nucleus ID: reconnecting replaces prior state.
	Connect(ctx context.Context, req ConnectRequest) error

	// Disconnect removes a tracked connection. Returns
	// ErrConnectionNotFound if no such connection exists.
	Disconnect(nucleusID string) error

	// Connection returns a copy of the tracked connection state, or
	// ErrConnectionNotFound.
	Connection(nucleusID string) (model.NucleusConnection, error)

	// Connections returns a copy of all tracked connections.
	Connections() []model.NucleusConnection

	// Ping is a lightweight liveness probe against a base URL.
	Ping(ctx context.Context, baseURL, credential string) error

	// FetchFile reads a single file. The response must contain a string
	// content field or ErrMalformedResponse is returned. An encoding
	// hint in the response is trusted; otherwise encoding is detected.
	FetchFile(ctx context.Context, nucleusID, repository, path, branch string) (model.EncodedContent, error)

	// FetchCodebase returns file metadata for a repository; no bulk content.
	FetchCodebase(ctx context.Context, nucleusID, repository string, opts FetchOptions) (model.CodebaseListing, error)

	// PushChanges sends the full batch as one atomic remote commit.
	// Remote failure is surfaced as-is; there are no partial-success
	// semantics. The remote side is the unit of atomicity.
	PushChanges(ctx context.Context, nucleusID string, changes []model.CodeChange, commitMessage string) (model.PushResult, error)

	// CreatePullRequest opens a PR carrying the change batch.
	CreatePullRequest(ctx context.Context, nucleusID string, opts PullRequestOptions) (model.PullRequest, error)

	// HealthCheckAll re-pings every tracked connection concurrently and
	// updates each connection's liveness state independently. A failure
	// pinging one nucleus never affects another's recorded state.
	HealthCheckAll(ctx context.Context)
}
