package download

import (
	"context"
	"net/url"
)

// Fetcher defines the interface for retrieving remote content (catalogs,
// manifests, raw content files and bundle archives). Source adapters depend
// on it rather than on net/http directly so tests can substitute fixtures.
type Fetcher interface {
	// Get returns the body of url.
	Get(ctx context.Context, url string) ([]byte, error)

	// GetJSON decodes the JSON body of url into v.
	GetJSON(ctx context.Context, url string, v any) error

	// GetAll downloads every url with at most concurrency requests in flight.
	// The result is keyed by url.
	GetAll(ctx context.Context, urls []string, concurrency int) (map[string][]byte, error)

	// Fetch downloads a single item to a deterministic location (within opts.Dir).
	// It returns the absolute local file path.
	Fetch(ctx context.Context, item Item, opts Options) (string, error)
}

// Item represents one remote resource to download into the cache.
type Item struct {
	ID       string   // stable identifier (e.g., bundle id)
	URL      *url.URL // source URL to download
	Checksum string   // optional hex-encoded SHA-256 checksum; if provided, will be verified
	Filename string   // optional preferred filename; if empty, a name will be derived
}

// Options control where Fetch stores its files.
type Options struct {
	Dir string // destination directory (cache). Must be absolute.
}
