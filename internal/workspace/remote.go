package workspace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/codefionn/runpad/internal/apperr"
	"github.com/codefionn/runpad/internal/logger"
)

// Remote is the workspace service contract.
type Remote interface {
	Tree(ctx context.Context) (*FileNode, error)
	Open(ctx context.Context, path string) (string, error)
	Save(ctx context.Context, path, content string) error
	Upload(ctx context.Context, entries []Entry) error
}

// RemoteConfig holds RemoteClient configuration.
type RemoteConfig struct {
	BaseURL string
	// Timeout bounds each HTTP request.
	Timeout time.Duration
	// MaxRetries bounds tree fetch retries on network errors and 5xx.
	// Zero means DefaultRemoteRetries; a negative value disables retries.
	MaxRetries int
	// RetryInitialInterval is the first backoff delay.
	RetryInitialInterval time.Duration
}

// DefaultRemoteRetries is the tree fetch retry limit when none is configured.
const DefaultRemoteRetries = 3

// RemoteClient talks to the workspace service over HTTP.
type RemoteClient struct {
	baseURL    string
	httpClient *http.Client
	maxRetries uint64
	retryDelay time.Duration
	log        *logger.Logger

	mu     sync.RWMutex
	online bool
}

// NewRemoteClient creates a new client.
func NewRemoteClient(cfg RemoteConfig) *RemoteClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RetryInitialInterval == 0 {
		cfg.RetryInitialInterval = 200 * time.Millisecond
	}
	var retries uint64
	switch {
	case cfg.MaxRetries == 0:
		retries = DefaultRemoteRetries
	case cfg.MaxRetries > 0:
		retries = uint64(cfg.MaxRetries)
	}

	return &RemoteClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   cfg.Timeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		maxRetries: retries,
		retryDelay: cfg.RetryInitialInterval,
		log:        logger.Global().WithPrefix("workspace-remote"),
		online:     true,
	}
}

// IsOnline reports whether the last request reached the service.
func (c *RemoteClient) IsOnline() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.online
}

func (c *RemoteClient) setOnline(online bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.online != online {
		if online {
			c.log.Info("Workspace service is reachable again")
		} else {
			c.log.Warn("Workspace service is unreachable, continuing local-only")
		}
	}
	c.online = online
}

// statusError is a non-2xx response.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	if e.body != "" {
		return fmt.Sprintf("workspace service returned %d: %s", e.code, e.body)
	}
	return fmt.Sprintf("workspace service returned %d", e.code)
}

func (c *RemoteClient) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.setOnline(false)
		return apperr.Wrap(err, apperr.KindUnavailable, "workspace request failed")
	}
	defer resp.Body.Close()
	c.setOnline(true)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		se := &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(body))}
		if resp.StatusCode == http.StatusNotFound {
			return apperr.Wrap(se, apperr.KindNotFound, "not found")
		}
		return apperr.Wrap(se, apperr.KindUnavailable, "workspace request rejected")
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.Wrap(err, apperr.KindUnavailable, "failed to decode workspace response")
	}
	return nil
}

func (c *RemoteClient) postJSON(ctx context.Context, endpoint string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

// Ping checks the service health endpoint.
func (c *RemoteClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// Tree fetches the remote file tree, retrying network errors and 5xx
// responses with exponential backoff.
func (c *RemoteClient) Tree(ctx context.Context) (*FileNode, error) {
	var root *FileNode

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/files", nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		var node FileNode
		if err := c.do(req, &node); err != nil {
			var se *statusError
			if errors.As(err, &se) && se.code < 500 {
				return backoff.Permanent(err)
			}
			return err
		}
		root = &node
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryDelay
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx)

	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	if root.Kind == "" {
		root.Kind = KindFolder
	}
	return root, nil
}

type openRequest struct {
	Path string `json:"path"`
}

type openResponse struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Open fetches a file's content. A 404 yields apperr.KindNotFound.
func (c *RemoteClient) Open(ctx context.Context, p string) (string, error) {
	var resp openResponse
	if err := c.postJSON(ctx, "/files/open", openRequest{Path: p}, &resp); err != nil {
		return "", err
	}
	return resp.Content, nil
}

// Save writes a file's content.
func (c *RemoteClient) Save(ctx context.Context, p, content string) error {
	return c.postJSON(ctx, "/files/save", Entry{Path: p, Content: content}, nil)
}

// Upload sends entries as multipart file sets, one request per destination
// directory, since the service stores each part under dest/filename.
func (c *RemoteClient) Upload(ctx context.Context, entries []Entry) error {
	byDir := make(map[string][]Entry)
	for _, e := range entries {
		dir := path.Dir(e.Path)
		if dir == "." {
			dir = ""
		}
		byDir[dir] = append(byDir[dir], e)
	}

	dirs := make([]string, 0, len(byDir))
	for dir := range byDir {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	for _, dir := range dirs {
		if err := c.uploadDir(ctx, dir, byDir[dir]); err != nil {
			return err
		}
	}
	return nil
}

func (c *RemoteClient) uploadDir(ctx context.Context, dest string, entries []Entry) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("dest", dest); err != nil {
		return err
	}
	for _, e := range entries {
		part, err := mw.CreateFormFile("files", path.Base(e.Path))
		if err != nil {
			return err
		}
		if _, err := io.WriteString(part, e.Content); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files/upload", &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req, nil)
}
