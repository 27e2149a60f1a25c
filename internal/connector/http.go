// Package connector implements the remote platform connector: all
// network I/O with remote nuclei over their HTTP API, plus the tracked
// per-nucleus connection state.
package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"nd-go/internal/codec"
	"nd-go/internal/model"
	"nd-go/internal/nd"
)

const (
	defaultTimeout = 10 * time.Second
	defaultRetries = 2
	defaultBackoff = time.Second
)

// Options configure an HTTPConnector. Zero values fall back to the
// defaults above.
type Options struct {
	Timeout time.Duration
	Retries int
	Backoff time.Duration
	Logger  nd.Logger
	Clock   nd.Clock
}

// HTTPConnector talks to nuclei over HTTP and owns their connection
// state. Safe for concurrent use.
type HTTPConnector struct {
	client  *http.Client
	timeout time.Duration
	retries int
	backoff time.Duration
	logger  nd.Logger
	clock   nd.Clock

	mu    sync.RWMutex
	conns map[string]*model.NucleusConnection
}

var _ nd.Connector = (*HTTPConnector)(nil)

// NewHTTPConnector creates a connector with the given options.
func NewHTTPConnector(opts Options) *HTTPConnector {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Retries <= 0 {
		opts.Retries = defaultRetries
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	if opts.Logger == nil {
		opts.Logger = nd.NewNopLogger()
	}
	if opts.Clock == nil {
		opts.Clock = nd.RealClock{}
	}
	return &HTTPConnector{
		client:  &http.Client{},
		timeout: opts.Timeout,
		retries: opts.Retries,
		backoff: opts.Backoff,
		logger:  opts.Logger,
		clock:   opts.Clock,
		conns:   make(map[string]*model.NucleusConnection),
	}
}

// Connect pings the nucleus and records the connection. On ping failure
// an ERROR connection is recorded and the cause returned. Reconnecting
// an already-tracked nucleus replaces its state.
func (c *HTTPConnector) Connect(ctx context.Context, req nd.ConnectRequest) error {
	conn := &model.NucleusConnection{
		ID:         req.ID,
		Name:       req.Name,
		Category:   req.Category,
		BaseURL:    req.BaseURL,
		Credential: req.Credential,
	}

	if err := c.Ping(ctx, req.BaseURL, req.Credential); err != nil {
		conn.Status = model.StatusError
		c.put(conn)
		c.logger.Error("connect failed", "nucleus", req.ID, "error", err)
		return fmt.Errorf("connecting to nucleus %s: %w", req.ID, err)
	}

	conn.Status = model.StatusConnected
	conn.LastPing = c.clock.Now()
	c.put(conn)
	c.logger.Info("nucleus connected", "nucleus", req.ID, "url", req.BaseURL)
	return nil
}

// Disconnect removes a tracked connection.
func (c *HTTPConnector) Disconnect(nucleusID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.conns[nucleusID]; !ok {
		return fmt.Errorf("nucleus %s: %w", nucleusID, nd.ErrConnectionNotFound)
	}
	delete(c.conns, nucleusID)
	c.logger.Info("nucleus disconnected", "nucleus", nucleusID)
	return nil
}

// Connection returns a copy of the tracked connection state.
func (c *HTTPConnector) Connection(nucleusID string) (model.NucleusConnection, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	conn, ok := c.conns[nucleusID]
	if !ok {
		return model.NucleusConnection{}, fmt.Errorf("nucleus %s: %w", nucleusID, nd.ErrConnectionNotFound)
	}
	return *conn, nil
}

// Connections returns copies of all tracked connections.
func (c *HTTPConnector) Connections() []model.NucleusConnection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.NucleusConnection, 0, len(c.conns))
	for _, conn := range c.conns {
		out = append(out, *conn)
	}
	return out
}

func (c *HTTPConnector) put(conn *model.NucleusConnection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conns[conn.ID] = conn
}

// healthResponse accepts both shapes the fleet exposes.
type healthResponse struct {
	Status string `json:"status"`
	OK     bool   `json:"ok"`
}

// Ping probes {base}/api/health.
func (c *HTTPConnector) Ping(ctx context.Context, baseURL, credential string) error {
	var health healthResponse
	if err := c.doJSON(ctx, http.MethodGet, baseURL+"/api/health", credential, nil, &health); err != nil {
		return err
	}
	if health.Status != "healthy" && !health.OK {
		return fmt.Errorf("nucleus reported unhealthy status %q", health.Status)
	}
	return nil
}

// fileResponse is the wire shape of a single-file read. Content must be
// present as a string; anything else is a hard failure.
type fileResponse struct {
	Content  *string `json:"content"`
	Encoding string  `json:"encoding"`
}

// FetchFile reads one file from a nucleus repository.
func (c *HTTPConnector) FetchFile(ctx context.Context, nucleusID, repository, path, branch string) (model.EncodedContent, error) {
	conn, err := c.Connection(nucleusID)
	if err != nil {
		return model.EncodedContent{}, err
	}

	q := url.Values{}
	q.Set("repository", repository)
	q.Set("file", path)
	q.Set("branch", branch)
	endpoint := conn.BaseURL + "/api/codebase/file?" + q.Encode()

	var resp fileResponse
	if err := c.doJSON(ctx, http.MethodGet, endpoint, conn.Credential, nil, &resp); err != nil {
		return model.EncodedContent{}, fmt.Errorf("fetching %s: %w", path, err)
	}
	if resp.Content == nil {
		return model.EncodedContent{}, fmt.Errorf("fetching %s: no content field in response: %w", path, nd.ErrMalformedResponse)
	}

	// The remote already labeled the payload; trust its hint over
	// re-detection.
	content, err := codec.Encode(*resp.Content, model.Encoding(resp.Encoding))
	if err != nil {
		return model.EncodedContent{}, fmt.Errorf("fetching %s: %w: %v", path, nd.ErrMalformedResponse, err)
	}
	return content, nil
}

// FetchCodebase lists repository files; metadata only, no bulk content.
func (c *HTTPConnector) FetchCodebase(ctx context.Context, nucleusID, repository string, opts nd.FetchOptions) (model.CodebaseListing, error) {
	conn, err := c.Connection(nucleusID)
	if err != nil {
		return model.CodebaseListing{}, err
	}

	q := url.Values{}
	q.Set("repository", repository)
	if opts.Branch != "" {
		q.Set("branch", opts.Branch)
	}
	if opts.Commit != "" {
		q.Set("commit", opts.Commit)
	}
	if opts.Path != "" {
		q.Set("path", opts.Path)
	}
	endpoint := conn.BaseURL + "/api/codebase/fetch?" + q.Encode()

	var listing model.CodebaseListing
	if err := c.doJSON(ctx, http.MethodGet, endpoint, conn.Credential, nil, &listing); err != nil {
		return model.CodebaseListing{}, fmt.Errorf("fetching codebase %s: %w", repository, err)
	}
	return listing, nil
}

type pushRequest struct {
	Changes       []model.CodeChange `json:"changes"`
	CommitMessage string             `json:"commitMessage"`
	Timestamp     time.Time          `json:"timestamp"`
}

type pushResponse struct {
	CommitID     string `json:"commitId"`
	FilesChanged int    `json:"filesChanged"`
}

// PushChanges sends the whole batch as one remote commit. The remote
// side is the unit of atomicity; failures surface as-is.
func (c *HTTPConnector) PushChanges(ctx context.Context, nucleusID string, changes []model.CodeChange, commitMessage string) (model.PushResult, error) {
	conn, err := c.Connection(nucleusID)
	if err != nil {
		return model.PushResult{}, err
	}

	body := pushRequest{Changes: changes, CommitMessage: commitMessage, Timestamp: c.clock.Now()}
	var resp pushResponse
	if err := c.doJSON(ctx, http.MethodPost, conn.BaseURL+"/api/codebase/push", conn.Credential, body, &resp); err != nil {
		return model.PushResult{}, fmt.Errorf("pushing %d change(s): %w", len(changes), err)
	}

	filesChanged := resp.FilesChanged
	if filesChanged == 0 {
		filesChanged = len(changes)
	}
	return model.PushResult{
		CommitID:     resp.CommitID,
		FilesChanged: filesChanged,
		Timestamp:    c.clock.Now(),
	}, nil
}

type prRequest struct {
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Branch      string             `json:"branch"`
	BaseBranch  string             `json:"baseBranch"`
	Changes     []model.CodeChange `json:"changes"`
	Timestamp   time.Time          `json:"timestamp"`
}

type prResponse struct {
	PRURL string `json:"prUrl"`
	PRID  string `json:"prId"`
}

// CreatePullRequest opens a pull request carrying the change batch.
func (c *HTTPConnector) CreatePullRequest(ctx context.Context, nucleusID string, opts nd.PullRequestOptions) (model.PullRequest, error) {
	conn, err := c.Connection(nucleusID)
	if err != nil {
		return model.PullRequest{}, err
	}

	body := prRequest{
		Title:       opts.Title,
		Description: opts.Description,
		Branch:      opts.Branch,
		BaseBranch:  opts.BaseBranch,
		Changes:     opts.Changes,
		Timestamp:   c.clock.Now(),
	}
	var resp prResponse
	if err := c.doJSON(ctx, http.MethodPost, conn.BaseURL+"/api/pull-request/create", conn.Credential, body, &resp); err != nil {
		return model.PullRequest{}, fmt.Errorf("creating pull request: %w", err)
	}
	if resp.PRURL == "" {
		return model.PullRequest{}, fmt.Errorf("pull request response missing prUrl: %w", nd.ErrMalformedResponse)
	}
	return model.PullRequest{URL: resp.PRURL, ID: resp.PRID}, nil
}

// HealthCheckAll re-pings every tracked connection concurrently and
// records the outcome per connection. One nucleus failing never affects
// another's state.
func (c *HTTPConnector) HealthCheckAll(ctx context.Context) {
	snapshot := c.Connections()

	var wg sync.WaitGroup
	for _, conn := range snapshot {
		wg.Add(1)
		go func(conn model.NucleusConnection) {
			defer wg.Done()
			err := c.Ping(ctx, conn.BaseURL, conn.Credential)
			c.recordPing(conn.ID, err)
		}(conn)
	}
	wg.Wait()
}

// recordPing transitions a connection's liveness state after a ping.
// The connection may have been disconnected while the ping was in
// flight; its state is not resurrected in that case.
func (c *HTTPConnector) recordPing(nucleusID string, pingErr error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	conn, ok := c.conns[nucleusID]
	if !ok {
		return
	}
	if pingErr != nil {
		conn.Status = model.StatusError
		c.logger.Warn("health check failed", "nucleus", nucleusID, "error", pingErr)
		return
	}
	conn.Status = model.StatusConnected
	conn.LastPing = c.clock.Now()
	c.logger.Debug("health check ok", "nucleus", nucleusID)
}

// doJSON performs one HTTP exchange with a fixed per-attempt timeout
// and a bounded retry loop on transient failure (network errors and
// 5xx responses). Timeouts surface as nd.ErrTimeout, distinct from
// application-level HTTP errors.
func (c *HTTPConnector) doJSON(ctx context.Context, method, endpoint, credential string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.backoff):
			case <-ctx.Done():
				return classifyTransport(ctx.Err())
			}
			c.logger.Debug("retrying request", "url", endpoint, "attempt", attempt)
		}

		retryable, err := c.attempt(ctx, method, endpoint, credential, payload, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			return err
		}
	}
	return lastErr
}

// attempt performs a single request. retryable reports whether the
// failure is transient and worth another attempt.
func (c *HTTPConnector) attempt(ctx context.Context, method, endpoint, credential string, payload []byte, out any) (retryable bool, err error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(attemptCtx, method, endpoint, reqBody)
	if err != nil {
		return false, fmt.Errorf("building request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return true, classifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return true, fmt.Errorf("remote error: %s returned %s", endpoint, resp.Status)
	}
	if resp.StatusCode >= 400 {
		return false, fmt.Errorf("request rejected: %s returned %s", endpoint, resp.Status)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return false, fmt.Errorf("decoding response from %s: %w: %v", endpoint, nd.ErrMalformedResponse, err)
		}
	}
	return false, nil
}

// classifyTransport maps deadline errors to the timeout sentinel so
// callers can tell "unknown outcome" apart from a definite failure.
func classifyTransport(err error) error {
	var nerr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &nerr) && nerr.Timeout()) {
		return fmt.Errorf("%w: %v", nd.ErrTimeout, err)
	}
	return err
}
