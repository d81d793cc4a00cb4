package hub

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/glorpus-work/promptreg/pkg/adapter"
	"github.com/glorpus-work/promptreg/pkg/download"
	pkgerrors "github.com/glorpus-work/promptreg/pkg/errors"
	"github.com/glorpus-work/promptreg/pkg/fsutil"
	"github.com/glorpus-work/promptreg/pkg/model"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the hub document looked up in repositories and directories.
const ConfigFileName = "hub-config.yml"

//go:generate mockgen -destination=./mocks/hub.go -package=mocks . Fetcher,BundleInstaller,SyncRecorder

// Fetcher retrieves the raw hub document a reference points at.
type Fetcher interface {
	Fetch(ctx context.Context, ref model.HubReference) ([]byte, error)
}

// RefFetcher fetches hub documents over HTTP or from disk.
type RefFetcher struct {
	client  download.Fetcher
	rawBase string
}

// NewRefFetcher creates a Fetcher. rawBase defaults to the GitHub raw content host.
func NewRefFetcher(client download.Fetcher, rawBase string) *RefFetcher {
	if rawBase == "" {
		rawBase = adapter.DefaultRawBase
	}
	return &RefFetcher{client: client, rawBase: strings.TrimRight(rawBase, "/")}
}

// Fetch implements Fetcher.
func (f *RefFetcher) Fetch(ctx context.Context, ref model.HubReference) ([]byte, error) {
	switch ref.Type {
	case model.HubReferenceGitHub:
		branch := ref.Ref
		if branch == "" {
			branch = adapter.DefaultBranch
		}
		return f.client.Get(ctx, f.rawBase+"/"+strings.Trim(ref.Location, "/")+"/"+branch+"/"+ConfigFileName)
	case model.HubReferenceURL:
		return f.client.Get(ctx, ref.Location)
	case model.HubReferenceLocal:
		path := strings.TrimPrefix(ref.Location, "file://")
		if fsutil.IsDir(path) {
			path = filepath.Join(path, ConfigFileName)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "failed to read hub document %s", path)
		}
		return data, nil
	default:
		return nil, pkgerrors.NewConfigError("type", string(ref.Type), "expected github, url or local")
	}
}

// ParseHub decodes a hub document. JSON documents are accepted as YAML.
func ParseHub(data []byte) (*model.Hub, error) {
	var h model.Hub
	if err := yaml.Unmarshal(data, &h); err != nil {
		return nil, pkgerrors.NewConfigError("hub", "", "not a hub document: "+err.Error())
	}
	return &h, nil
}
