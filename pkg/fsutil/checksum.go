package fsutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// Checksum returns the hex-encoded SHA-256 digest of data.
func Checksum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// FileChecksum returns the hex-encoded SHA-256 digest of the file at path.
func FileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// PathChecksum pairs a relative path with its checksum.
type PathChecksum struct {
	Path     string
	Checksum string
}

// AggregateChecksum digests a set of file checksums independently of their order.
func AggregateChecksum(files []PathChecksum) string {
	lines := make([]string, 0, len(files))
	for _, f := range files {
		lines = append(lines, f.Path+":"+f.Checksum)
	}
	sort.Strings(lines)
	return Checksum([]byte(strings.Join(lines, "\n")))
}
