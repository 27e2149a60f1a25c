package testutil

import (
	"context"
	"fmt"
	"sync"

	"nd-go/internal/codec"
	"nd-go/internal/model"
	"nd-go/internal/nd"
)

// StubConnector is an in-memory nd.Connector for orchestrator tests.
// It serves file content from a map, records every push and pull
// request, and counts network calls so tests can assert that an
// operation performed zero remote I/O.
type StubConnector struct {
	mu sync.Mutex

	Files    map[string]model.EncodedContent // path -> current remote content
	FetchErr map[string]error                // path -> forced fetch error
	PingErr  error
	PushErr  error
	PRErr    error

	conns map[string]model.NucleusConnection

	PushedBatches  [][]model.CodeChange
	PushedMessages []string
	PullRequests   []nd.PullRequestOptions

	NetworkCalls int
	nextCommit   int
}

var _ nd.Connector = (*StubConnector)(nil)

// NewStubConnector creates an empty stub.
func NewStubConnector() *StubConnector {
	return &StubConnector{
		Files:    make(map[string]model.EncodedContent),
		FetchErr: make(map[string]error),
		conns:    make(map[string]model.NucleusConnection),
	}
}

// AddFile sets the remote content of a file, detecting its encoding.
func (s *StubConnector) AddFile(path, content string) {
	ec, err := codec.Encode(content, "")
	if err != nil {
		panic(err)
	}
	s.Files[path] = ec
}

// AddConnection registers a CONNECTED nucleus.
func (s *StubConnector) AddConnection(nucleusID string) {
	s.conns[nucleusID] = model.NucleusConnection{
		ID:      nucleusID,
		Name:    nucleusID,
		BaseURL: "http://" + nucleusID + ".test",
		Status:  model.StatusConnected,
	}
}

func (s *StubConnector) Connect(ctx context.Context, req nd.ConnectRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.NetworkCalls++
	if s.PingErr != nil {
		s.conns[req.ID] = model.NucleusConnection{ID: req.ID, BaseURL: req.BaseURL, Status: model.StatusError}
		return s.PingErr
	}
	s.conns[req.ID] = model.NucleusConnection{ID: req.ID, Name: req.Name, BaseURL: req.BaseURL, Status: model.StatusConnected}
	return nil
}

func (s *StubConnector) Disconnect(nucleusID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conns[nucleusID]; !ok {
		return fmt.Errorf("nucleus %s: %w", nucleusID, nd.ErrConnectionNotFound)
	}
	delete(s.conns, nucleusID)
	return nil
}

func (s *StubConnector) Connection(nucleusID string) (model.NucleusConnection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.conns[nucleusID]
	if !ok {
		return model.NucleusConnection{}, fmt.Errorf("nucleus %s: %w", nucleusID, nd.ErrConnectionNotFound)
	}
	return conn, nil
}

func (s *StubConnector) Connections() []model.NucleusConnection {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.NucleusConnection, 0, len(s.conns))
	for _, conn := range s.conns {
		out = append(out, conn)
	}
	return out
}

func (s *StubConnector) Ping(ctx context.Context, baseURL, credential string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.NetworkCalls++
	return s.PingErr
}

func (s *StubConnector) FetchFile(ctx context.Context, nucleusID, repository, path, branch string) (model.EncodedContent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.NetworkCalls++
	if _, ok := s.conns[nucleusID]; !ok {
		return model.EncodedContent{}, fmt.Errorf("nucleus %s: %w", nucleusID, nd.ErrConnectionNotFound)
	}
	if err, ok := s.FetchErr[path]; ok {
		return model.EncodedContent{}, err
	}
	ec, ok := s.Files[path]
	if !ok {
		return model.EncodedContent{}, fmt.Errorf("file not found: %s", path)
	}
	return ec, nil
}

func (s *StubConnector) FetchCodebase(ctx context.Context, nucleusID, repository string, opts nd.FetchOptions) (model.CodebaseListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.NetworkCalls++
	listing := model.CodebaseListing{Repository: repository, Branch: opts.Branch}
	for path, ec := range s.Files {
		listing.Files = append(listing.Files, model.FileInfo{Path: path, Size: ec.Size})
	}
	listing.TotalFiles = len(listing.Files)
	return listing, nil
}

func (s *StubConnector) PushChanges(ctx context.Context, nucleusID string, changes []model.CodeChange, commitMessage string) (model.PushResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.NetworkCalls++
	if _, ok := s.conns[nucleusID]; !ok {
		return model.PushResult{}, fmt.Errorf("nucleus %s: %w", nucleusID, nd.ErrConnectionNotFound)
	}
	if s.PushErr != nil {
		return model.PushResult{}, s.PushErr
	}
	s.nextCommit++
	s.PushedBatches = append(s.PushedBatches, changes)
	s.PushedMessages = append(s.PushedMessages, commitMessage)
	return model.PushResult{
		CommitID:     fmt.Sprintf("commit-%d", s.nextCommit),
		FilesChanged: len(changes),
	}, nil
}

func (s *StubConnector) CreatePullRequest(ctx context.Context, nucleusID string, opts nd.PullRequestOptions) (model.PullRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.NetworkCalls++
	if _, ok := s.conns[nucleusID]; !ok {
		return model.PullRequest{}, fmt.Errorf("nucleus %s: %w", nucleusID, nd.ErrConnectionNotFound)
	}
	if s.PRErr != nil {
		return model.PullRequest{}, s.PRErr
	}
	s.PullRequests = append(s.PullRequests, opts)
	id := fmt.Sprintf("%d", len(s.PullRequests))
	return model.PullRequest{URL: "https://nucleus.test/pr/" + id, ID: id}, nil
}

func (s *StubConnector) HealthCheckAll(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, conn := range s.conns {
		s.NetworkCalls++
		if s.PingErr != nil {
			conn.Status = model.StatusError
		} else {
			conn.Status = model.StatusConnected
		}
		s.conns[id] = conn
	}
}
