// Package archive provides the in-memory bundle archive exchanged between
// source adapters and the registry, and its conversion from and to the
// zip and tar formats bundles are published in.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	pkgerrors "github.com/glorpus-work/promptreg/pkg/errors"
	"github.com/glorpus-work/promptreg/pkg/fsutil"
	"github.com/mholt/archives"
)

// ManifestFile is the deployment manifest carried at the root of every bundle archive.
const ManifestFile = "deployment-manifest.yml"

// Entry is one file inside an Archive.
type Entry struct {
	Path string
	Data []byte
}

// Archive is an ordered set of files with forward-slash relative paths.
type Archive struct {
	Entries []Entry
}

// Add appends a file, replacing an existing entry with the same path.
func (a *Archive) Add(p string, data []byte) error {
	cleaned, err := fsutil.CleanRelPath(p)
	if err != nil {
		return err
	}
	for i := range a.Entries {
		if a.Entries[i].Path == cleaned {
			a.Entries[i].Data = data
			return nil
		}
	}
	a.Entries = append(a.Entries, Entry{Path: cleaned, Data: data})
	return nil
}

// Get returns the content stored at p.
func (a *Archive) Get(p string) ([]byte, bool) {
	for _, e := range a.Entries {
		if e.Path == p {
			return e.Data, true
		}
	}
	return nil, false
}

// Paths returns the entry paths in archive order.
func (a *Archive) Paths() []string {
	out := make([]string, len(a.Entries))
	for i, e := range a.Entries {
		out[i] = e.Path
	}
	return out
}

// Extract identifies the format of data and loads its regular files into an
// Archive. Entries are sorted by path. When every entry lives under one
// top-level directory that directly holds the deployment manifest (as in
// repository zipballs), that directory is stripped.
func Extract(ctx context.Context, data []byte) (*Archive, error) {
	format, _, err := archives.Identify(ctx, "", bytes.NewReader(data))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to identify archive format")
	}
	extractor, ok := format.(archives.Extractor)
	if !ok {
		return nil, fmt.Errorf("format %s cannot be extracted: %w", format.MediaType(), pkgerrors.ErrInvalidPath)
	}

	out := &Archive{}
	err = extractor.Extract(ctx, bytes.NewReader(data), func(_ context.Context, info archives.FileInfo) error {
		if info.IsDir() || !info.Mode().IsRegular() {
			return nil
		}
		name, err := fsutil.CleanRelPath(info.NameInArchive)
		if err != nil {
			return err
		}
		f, err := info.Open()
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", name, err)
		}
		defer func() { _ = f.Close() }()
		content, err := io.ReadAll(f)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", name, err)
		}
		out.Entries = append(out.Entries, Entry{Path: name, Data: content})
		return nil
	})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to extract archive")
	}

	sort.Slice(out.Entries, func(i, j int) bool { return out.Entries[i].Path < out.Entries[j].Path })
	stripWrapperDir(out)
	return out, nil
}

func stripWrapperDir(a *Archive) {
	if len(a.Entries) == 0 {
		return
	}
	top, _, found := strings.Cut(a.Entries[0].Path, "/")
	if !found {
		return
	}
	prefix := top + "/"
	for _, e := range a.Entries {
		if !strings.HasPrefix(e.Path, prefix) {
			return
		}
	}
	if _, ok := a.Get(prefix + ManifestFile); !ok {
		return
	}
	for i := range a.Entries {
		a.Entries[i].Path = strings.TrimPrefix(a.Entries[i].Path, prefix)
	}
}

// WriteZip writes a as a zip archive to w.
func WriteZip(ctx context.Context, w io.Writer, a *Archive) error {
	now := time.Now()
	files := make([]archives.FileInfo, 0, len(a.Entries))
	for _, e := range a.Entries {
		info := memFileInfo{name: path.Base(e.Path), size: int64(len(e.Data)), modTime: now}
		data := e.Data
		files = append(files, archives.FileInfo{
			FileInfo:      info,
			NameInArchive: e.Path,
			Open: func() (fs.File, error) {
				return &memFile{Reader: bytes.NewReader(data), info: info}, nil
			},
		})
	}
	if err := (archives.Zip{}).Archive(ctx, w, files); err != nil {
		return pkgerrors.Wrap(err, "failed to create zip archive")
	}
	return nil
}

type memFileInfo struct {
	name    string
	size    int64
	modTime time.Time
}

func (i memFileInfo) Name() string       { return i.name }
func (i memFileInfo) Size() int64        { return i.size }
func (i memFileInfo) Mode() fs.FileMode  { return fsutil.FileModeDefault }
func (i memFileInfo) ModTime() time.Time { return i.modTime }
func (i memFileInfo) IsDir() bool        { return false }
func (i memFileInfo) Sys() any           { return nil }

type memFile struct {
	*bytes.Reader
	info memFileInfo
}

func (f *memFile) Stat() (fs.FileInfo, error) { return f.info, nil }
func (f *memFile) Close() error               { return nil }
