// Package download provides the HTTP transfer layer used by remote source
// adapters: plain GETs with a fixed user agent and optional credentials, bounded
// parallel batches, and cached downloads verified by SHA-256.
package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/glorpus-work/promptreg/pkg/auth"
	pkgerrors "github.com/glorpus-work/promptreg/pkg/errors"
	"github.com/glorpus-work/promptreg/pkg/fsutil"
	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 4

// Client is an HTTP-based Fetcher.
type Client struct {
	client    *http.Client
	userAgent string
	auth      auth.Authenticator
}

// NewClient creates a new download client with the given timeout and user agent.
// authn may be nil for anonymous requests.
func NewClient(timeout time.Duration, userAgent string, authn auth.Authenticator) *Client {
	if userAgent == "" {
		userAgent = "promptreg/dev"
	}
	return &Client{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		auth:      authn,
	}
}

// WithAuth returns a client sharing c's transport that authenticates with authn.
func (c *Client) WithAuth(authn auth.Authenticator) *Client {
	clone := *c
	clone.auth = authn
	return &clone
}

// Get returns the body of url.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.doRequest(ctx, url)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to read response from %s", url)
	}
	return data, nil
}

// GetJSON decodes the JSON body of url into v.
func (c *Client) GetJSON(ctx context.Context, url string, v any) error {
	data, err := c.Get(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return pkgerrors.Wrapf(err, "failed to decode JSON from %s", url)
	}
	return nil
}

// GetAll downloads every url with at most concurrency requests in flight.
// Duplicate urls are fetched once. The first error cancels the batch.
func (c *Client) GetAll(ctx context.Context, urls []string, concurrency int) (map[string][]byte, error) {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	out := make(map[string][]byte, len(urls))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	seen := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		g.Go(func() error {
			data, err := c.Get(ctx, u)
			if err != nil {
				return err
			}
			mu.Lock()
			out[u] = data
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Fetch downloads a single item and returns the path to the downloaded file.
// A cached file whose checksum still matches is reused without a request.
func (c *Client) Fetch(ctx context.Context, item Item, opts Options) (string, error) {
	if opts.Dir == "" || !filepath.IsAbs(opts.Dir) {
		return "", fmt.Errorf("download dir must be absolute: %s: %w", opts.Dir, pkgerrors.ErrInvalidPath)
	}
	if err := os.MkdirAll(opts.Dir, fsutil.DirModeSecure); err != nil {
		return "", pkgerrors.Wrap(err, "could not create download dir")
	}
	if item.URL == nil {
		return "", fmt.Errorf("nil URL: %w", pkgerrors.ErrDownloadFailed)
	}

	absPath := filepath.Join(opts.Dir, selectFilename(item))
	if reuse, ok := tryReuseExisting(absPath, item.Checksum); ok {
		return reuse, nil
	}

	data, err := c.Get(ctx, item.URL.String())
	if err != nil {
		return "", err
	}
	if item.Checksum != "" && fsutil.Checksum(data) != normalizeHex(item.Checksum) {
		return "", fmt.Errorf("checksum mismatch for %s: %w", item.URL, pkgerrors.ErrChecksumMismatch)
	}
	if err := fsutil.WriteFileAtomic(absPath, data, fsutil.FileModeSecure); err != nil {
		return "", pkgerrors.Wrap(err, "could not finalize file")
	}
	return absPath, nil
}

func selectFilename(item Item) string {
	if item.Filename != "" {
		return item.Filename
	}
	if item.Checksum != "" {
		return normalizeHex(item.Checksum)
	}
	h := sha256.Sum256([]byte(item.URL.String()))
	return hex.EncodeToString(h[:])
}

func tryReuseExisting(absPath, checksum string) (string, bool) {
	st, err := os.Stat(absPath)
	if err != nil || st.Size() == 0 {
		return "", false
	}
	if checksum == "" {
		return absPath, true
	}
	got, err := fsutil.FileChecksum(absPath)
	if err == nil && got == normalizeHex(checksum) {
		return absPath, true
	}
	return "", false
}

func (c *Client) doRequest(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	if c.auth != nil {
		if err := c.auth.Apply(req); err != nil {
			return nil, pkgerrors.Wrap(err, "failed to authenticate request")
		}
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "download failed")
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		_ = resp.Body.Close()
		return nil, pkgerrors.Wrapf(pkgerrors.ErrNotFound, "GET %s", url)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		_ = resp.Body.Close()
		return nil, fmt.Errorf("GET %s: unexpected status code: %d: %w", url, resp.StatusCode, pkgerrors.ErrDownloadFailed)
	}
	return resp, nil
}

func normalizeHex(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
