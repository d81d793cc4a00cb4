package lockfile

import (
	"path/filepath"
	"sync"

	pkgerrors "github.com/glorpus-work/promptreg/pkg/errors"
)

// Provider hands out the single Manager of a process for one repository root.
type Provider struct {
	generatedBy string

	mu      sync.Mutex
	root    string
	manager *Manager
}

// NewProvider creates a Provider whose managers stamp generatedBy into the lockfile.
func NewProvider(generatedBy string) *Provider {
	return &Provider{generatedBy: generatedBy}
}

// Get returns the Manager for root. The first call must name a root; later
// calls may pass "" or the same root. A different root requires Reset first.
func (p *Provider) Get(root string) (*Manager, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.manager == nil {
		if root == "" {
			return nil, pkgerrors.ErrRepositoryPathRequired
		}
		p.root = filepath.Clean(root)
		p.manager = NewManager(p.root, p.generatedBy)
		return p.manager, nil
	}
	if root != "" && filepath.Clean(root) != p.root {
		return nil, pkgerrors.Wrapf(pkgerrors.ErrRepositoryPathMismatch, "have %s, requested %s", p.root, root)
	}
	return p.manager, nil
}

// Reset drops the current Manager so another root can be requested.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.root = ""
	p.manager = nil
}
