package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"pnodedash/models"
)

// SnapshotSource supplies the raw node records of one refresh cycle.
type SnapshotSource interface {
	Load(ctx context.Context) ([]models.RawNode, error)
	Name() string
}

// ErrSnapshotDecode wraps snapshot payloads that are neither a node array
// nor a {"nodes": [...]} object.
var ErrSnapshotDecode = errors.New("malformed snapshot")

// FileSnapshotSource reads a JSON snapshot from disk on every Load.
type FileSnapshotSource struct {
	path string
}

func NewFileSnapshotSource(path string) *FileSnapshotSource {
	return &FileSnapshotSource{path: path}
}

func (s *FileSnapshotSource) Name() string { return "file:" + s.path }

func (s *FileSnapshotSource) Load(ctx context.Context) ([]models.RawNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	nodes, err := models.DecodeSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotDecode, err)
	}
	return nodes, nil
}

// HTTPSnapshotSource fetches a JSON snapshot from an API endpoint, retrying
// transport errors, 5xx and 429 with exponential backoff.
type HTTPSnapshotSource struct {
	url        string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	logger     *zap.Logger
}

func NewHTTPSnapshotSource(url string, timeout time.Duration, maxRetries int, logger *zap.Logger) *HTTPSnapshotSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxRetries <= 0 {
		maxRetries = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &HTTPSnapshotSource{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     30 * time.Second,
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
			},
		},
		maxRetries: maxRetries,
		baseDelay:  200 * time.Millisecond,
		logger:     logger,
	}
}

func (s *HTTPSnapshotSource) Name() string { return s.url }

func (s *HTTPSnapshotSource) Load(ctx context.Context) ([]models.RawNode, error) {
	var (
		body []byte
		err  error
	)
	delay := s.baseDelay

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		var retry bool
		body, retry, err = s.fetch(ctx)
		if err == nil {
			break
		}
		if !retry || attempt == s.maxRetries {
			break
		}

		s.logger.Warn("Snapshot fetch failed, retrying",
			zap.String("url", s.url),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		delay *= 2
	}
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}

	nodes, err := models.DecodeSnapshot(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotDecode, err)
	}
	return nodes, nil
}

// fetch performs one request. The bool reports whether a failure is worth
// retrying.
func (s *HTTPSnapshotSource) fetch(ctx context.Context) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, true, fmt.Errorf("server error: %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("http error %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read body: %w", err)
	}
	return body, false, nil
}

// StaticSnapshotSource serves a fixed node list. Imports and the CLI use it
// to run the pipeline over records that did not come from the live source.
type StaticSnapshotSource struct {
	name  string
	nodes []models.RawNode
}

func NewStaticSnapshotSource(name string, nodes []models.RawNode) *StaticSnapshotSource {
	return &StaticSnapshotSource{name: name, nodes: nodes}
}

func (s *StaticSnapshotSource) Name() string { return s.name }

func (s *StaticSnapshotSource) Load(ctx context.Context) ([]models.RawNode, error) {
	out := make([]models.RawNode, len(s.nodes))
	copy(out, s.nodes)
	return out, ctx.Err()
}
