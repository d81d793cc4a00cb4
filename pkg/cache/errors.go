package cache

import "fmt"

// Common cache errors.
var (
	// ErrCacheDirectory is returned when the cache directory is unusable.
	ErrCacheDirectory = fmt.Errorf("invalid cache directory")

	// ErrCacheSource is returned when a source id cannot name a cache sub-directory.
	ErrCacheSource = fmt.Errorf("invalid cache source")
)
