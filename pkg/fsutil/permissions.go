// Package fsutil provides checksum computation, existence helpers, atomic
// writes and repository-relative path handling.
package fsutil

// File and directory permission constants.
const (
	FileModeDefault = 0o644 // -rw-r--r--
	FileModeSecure  = 0o600 // -rw-------

	DirModeDefault = 0o755 // drwxr-xr-x
	DirModeSecure  = 0o700 // drwx------
)
