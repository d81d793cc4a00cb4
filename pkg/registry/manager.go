// Package registry aggregates the configured sources into one bundle catalog
// and installs bundles into the user, workspace and repository scopes.
package registry

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/glorpus-work/promptreg/internal/logger"
	"github.com/glorpus-work/promptreg/pkg/adapter"
	pkgerrors "github.com/glorpus-work/promptreg/pkg/errors"
	"github.com/glorpus-work/promptreg/pkg/lockfile"
	"github.com/glorpus-work/promptreg/pkg/model"
	"github.com/glorpus-work/promptreg/pkg/scope"
	"github.com/glorpus-work/promptreg/pkg/state"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultCacheTTL is how long a merged catalog is served without refetching.
	DefaultCacheTTL = 5 * time.Minute

	defaultConcurrency = 4
)

// AdapterFactory builds the adapter of a source.
type AdapterFactory func(source model.Source, opts adapter.Options) (adapter.Adapter, error)

// SourceSynced is emitted every time a source catalog is refreshed.
type SourceSynced struct {
	SourceID    string
	BundleCount int
}

// Preferences are the scope defaults exported together with the sources.
type Preferences struct {
	DefaultScope model.Scope      `json:"defaultScope"`
	CommitMode   model.CommitMode `json:"commitMode"`
}

// Options configures a Manager.
type Options struct {
	Sources     []model.Source
	Stores      state.Stores
	Lockfiles   *lockfile.Provider
	ScopeRoots  map[model.Scope]string
	Preferences Preferences
	CacheTTL    time.Duration
	Concurrency int

	Adapter        adapter.Options
	ResolveAdapter AdapterFactory

	// SourcesChanged is called with the full source list after every
	// successful source mutation so the caller can persist it.
	SourcesChanged func([]model.Source) error

	Registerer prometheus.Registerer
	Logger     *slog.Logger
	Now        func() time.Time
}

// Manager is the registry. It is safe for concurrent use.
type Manager struct {
	opts     Options
	log      *slog.Logger
	metrics  *metrics
	resolver *scope.Resolver

	mu       sync.RWMutex
	sources  []model.Source
	adapters map[string]adapter.Adapter

	cacheMu  sync.Mutex
	cached   []model.Bundle
	cachedAt time.Time

	subMu  sync.Mutex
	nextID int
	subs   map[int]func(SourceSynced)

	bundleMu    sync.Mutex
	bundleLocks map[string]*sync.Mutex
}

// New creates a Manager. Every configured source is resolved eagerly so a
// malformed source is reported here.
func New(opts Options) (*Manager, error) {
	if opts.Stores == nil {
		return nil, pkgerrors.NewConfigError("stores", "", "installed bundle stores are required")
	}
	if opts.Lockfiles == nil {
		opts.Lockfiles = lockfile.NewProvider("promptreg")
	}
	if opts.ResolveAdapter == nil {
		opts.ResolveAdapter = adapter.Resolve
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.Preferences.DefaultScope == "" {
		opts.Preferences.DefaultScope = model.ScopeUser
	}
	if opts.Preferences.CommitMode == "" {
		opts.Preferences.CommitMode = model.CommitModeCommit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	if opts.Adapter.Logger == nil {
		opts.Adapter.Logger = log
	}

	m := &Manager{
		opts:        opts,
		log:         log,
		metrics:     newMetrics(opts.Registerer),
		resolver:    scope.NewResolver(opts.Stores, log),
		adapters:    make(map[string]adapter.Adapter),
		subs:        make(map[int]func(SourceSynced)),
		bundleLocks: make(map[string]*sync.Mutex),
	}
	for _, s := range opts.Sources {
		if err := m.addSourceLocked(s); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Resolver returns the scope conflict resolver used by installs.
func (m *Manager) Resolver() *scope.Resolver { return m.resolver }

// Preferences returns the current scope preferences.
func (m *Manager) Preferences() Preferences {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.opts.Preferences
}

// Subscribe registers fn for SourceSynced events and returns a function that removes it.
func (m *Manager) Subscribe(fn func(SourceSynced)) func() {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	return func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		delete(m.subs, id)
	}
}

func (m *Manager) emit(ev SourceSynced) {
	m.subMu.Lock()
	fns := make([]func(SourceSynced), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.subMu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// Sources returns the configured sources in insertion order.
func (m *Manager) Sources() []model.Source {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.Source(nil), m.sources...)
}

// GetSource returns the source with the given id.
func (m *Manager) GetSource(id string) (*model.Source, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := range m.sources {
		if m.sources[i].ID == id {
			s := m.sources[i]
			return &s, nil
		}
	}
	return nil, pkgerrors.NewNotFoundError(pkgerrors.KindSource, id)
}

func (m *Manager) validateSource(s model.Source) error {
	if strings.TrimSpace(s.ID) == "" {
		return pkgerrors.NewConfigError("id", "", "source id is required")
	}
	if !s.Type.Valid() {
		return pkgerrors.NewConfigError("type", string(s.Type), "unsupported source type")
	}
	return nil
}

func (m *Manager) addSourceLocked(s model.Source) error {
	if err := m.validateSource(s); err != nil {
		return err
	}
	for _, existing := range m.sources {
		if existing.ID == s.ID {
			return pkgerrors.NewConfigError("id", s.ID, "source already exists")
		}
	}
	a, err := m.opts.ResolveAdapter(s, m.opts.Adapter)
	if err != nil {
		return pkgerrors.Wrapf(err, "source %s", s.ID)
	}
	m.sources = append(m.sources, s)
	m.adapters[s.ID] = a
	return nil
}

// AddSource registers a new source.
func (m *Manager) AddSource(s model.Source) error {
	m.mu.Lock()
	err := m.addSourceLocked(s)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.log.Info("source added", "source", s.ID, "type", string(s.Type))
	return m.sourcesChanged()
}

// UpdateSource replaces the configuration of an existing source.
func (m *Manager) UpdateSource(s model.Source) error {
	if err := m.validateSource(s); err != nil {
		return err
	}
	m.mu.Lock()
	idx := -1
	for i := range m.sources {
		if m.sources[i].ID == s.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return pkgerrors.NewNotFoundError(pkgerrors.KindSource, s.ID)
	}
	a, err := m.opts.ResolveAdapter(s, m.opts.Adapter)
	if err != nil {
		m.mu.Unlock()
		return pkgerrors.Wrapf(err, "source %s", s.ID)
	}
	m.sources[idx] = s
	m.adapters[s.ID] = a
	m.mu.Unlock()

	m.log.Info("source updated", "source", s.ID)
	return m.sourcesChanged()
}

// EnsureSource adds s, or updates it when a source with the same id exists.
func (m *Manager) EnsureSource(s model.Source) error {
	if _, err := m.GetSource(s.ID); err == nil {
		return m.UpdateSource(s)
	}
	return m.AddSource(s)
}

// RemoveSource unregisters a source. Installed bundles are left in place.
func (m *Manager) RemoveSource(id string) error {
	m.mu.Lock()
	idx := -1
	for i := range m.sources {
		if m.sources[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return pkgerrors.NewNotFoundError(pkgerrors.KindSource, id)
	}
	m.sources = append(m.sources[:idx], m.sources[idx+1:]...)
	delete(m.adapters, id)
	m.mu.Unlock()

	m.log.Info("source removed", "source", id)
	return m.sourcesChanged()
}

func (m *Manager) sourcesChanged() error {
	m.InvalidateCache()
	if m.opts.SourcesChanged == nil {
		return nil
	}
	return m.opts.SourcesChanged(m.Sources())
}

// Adapter returns the adapter of a source.
func (m *Manager) Adapter(sourceID string) (adapter.Adapter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.adapters[sourceID]
	if !ok {
		return nil, pkgerrors.NewNotFoundError(pkgerrors.KindSource, sourceID)
	}
	return a, nil
}

// ValidateSource runs the adapter validation of a source.
func (m *Manager) ValidateSource(ctx context.Context, id string) (model.ValidationResult, error) {
	a, err := m.Adapter(id)
	if err != nil {
		return model.ValidationResult{}, err
	}
	return a.Validate(ctx), nil
}

// InvalidateCache drops the merged catalog.
func (m *Manager) InvalidateCache() {
	m.cacheMu.Lock()
	m.cached = nil
	m.cachedAt = time.Time{}
	m.cacheMu.Unlock()
	m.metrics.invalidations.Inc()
	m.metrics.cachedBundles.Set(0)
}

type sourceAdapter struct {
	source  model.Source
	adapter adapter.Adapter
}

func (m *Manager) enabledAdapters() []sourceAdapter {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]sourceAdapter, 0, len(m.sources))
	for _, s := range m.sources {
		if !s.Enabled {
			continue
		}
		out = append(out, sourceAdapter{source: s, adapter: m.adapters[s.ID]})
	}
	return out
}

// ListBundles returns the merged catalog of every enabled source. A failing
// source is logged and skipped unless every source fails.
func (m *Manager) ListBundles(ctx context.Context) ([]model.Bundle, error) {
	m.cacheMu.Lock()
	if m.cached != nil && m.opts.Now().Sub(m.cachedAt) < m.opts.CacheTTL {
		out := append([]model.Bundle(nil), m.cached...)
		m.cacheMu.Unlock()
		return out, nil
	}
	m.cacheMu.Unlock()

	sources := m.enabledAdapters()
	results := make([][]model.Bundle, len(sources))
	errs := make([]error, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.Concurrency)
	for i, sa := range sources {
		g.Go(func() error {
			bundles, err := sa.adapter.FetchBundles(gctx)
			if err != nil {
				errs[i] = err
				m.metrics.sourceSyncs.WithLabelValues(sa.source.ID, "error").Inc()
				m.log.Warn("failed to fetch bundles", "source", sa.source.ID, "error", err)
				return nil
			}
			results[i] = bundles
			m.metrics.sourceSyncs.WithLabelValues(sa.source.ID, "ok").Inc()
			m.emit(SourceSynced{SourceID: sa.source.ID, BundleCount: len(bundles)})
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	failed := 0
	var firstErr error
	for _, err := range errs {
		if err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if len(sources) > 0 && failed == len(sources) {
		return nil, firstErr
	}

	merged := mergeBundles(sources, results)

	m.cacheMu.Lock()
	m.cached = merged
	m.cachedAt = m.opts.Now()
	m.cacheMu.Unlock()
	m.metrics.cachedBundles.Set(float64(len(merged)))

	return append([]model.Bundle(nil), merged...), nil
}

// mergeBundles keeps one bundle per id: the one from the higher-priority
// source, or the first seen on a tie. The result is sorted by id.
func mergeBundles(sources []sourceAdapter, results [][]model.Bundle) []model.Bundle {
	type pick struct {
		bundle   model.Bundle
		priority int
	}
	picks := make(map[string]pick)
	for i, bundles := range results {
		for _, b := range bundles {
			if b.SourceID == "" {
				b.SourceID = sources[i].source.ID
			}
			cur, ok := picks[b.ID]
			if ok && sources[i].source.Priority <= cur.priority {
				continue
			}
			picks[b.ID] = pick{bundle: b, priority: sources[i].source.Priority}
		}
	}
	out := make([]model.Bundle, 0, len(picks))
	for _, p := range picks {
		out = append(out, p.bundle)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SearchBundles returns catalog bundles whose id, name, description or tags
// contain query, case-insensitively. An empty query matches everything.
func (m *Manager) SearchBundles(ctx context.Context, query string) ([]model.Bundle, error) {
	bundles, err := m.ListBundles(ctx)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return bundles, nil
	}
	out := make([]model.Bundle, 0, len(bundles))
	for _, b := range bundles {
		if matches(b, q) {
			out = append(out, b)
		}
	}
	return out, nil
}

func matches(b model.Bundle, q string) bool {
	if strings.Contains(strings.ToLower(b.ID), q) ||
		strings.Contains(strings.ToLower(b.Name), q) ||
		strings.Contains(strings.ToLower(b.Description), q) {
		return true
	}
	for _, t := range b.Tags {
		if strings.Contains(strings.ToLower(t), q) {
			return true
		}
	}
	return false
}

// GetBundle returns the merged catalog entry of id.
func (m *Manager) GetBundle(ctx context.Context, id string) (*model.Bundle, error) {
	bundles, err := m.ListBundles(ctx)
	if err != nil {
		return nil, err
	}
	for i := range bundles {
		if bundles[i].ID == id {
			return &bundles[i], nil
		}
	}
	return nil, pkgerrors.NewNotFoundError(pkgerrors.KindBundle, id)
}

// SyncSource drops the cached catalog of one source, refetches it and emits SourceSynced.
func (m *Manager) SyncSource(ctx context.Context, id string) (int, error) {
	a, err := m.Adapter(id)
	if err != nil {
		return 0, err
	}
	a.Invalidate()
	m.InvalidateCache()

	bundles, err := a.FetchBundles(ctx)
	if err != nil {
		m.metrics.sourceSyncs.WithLabelValues(id, "error").Inc()
		return 0, err
	}
	m.metrics.sourceSyncs.WithLabelValues(id, "ok").Inc()
	m.log.Info("source synced", "source", id, "bundles", len(bundles))
	m.emit(SourceSynced{SourceID: id, BundleCount: len(bundles)})
	return len(bundles), nil
}

// SyncAll syncs every enabled source concurrently. The bundle count per
// source is returned for those that succeeded.
func (m *Manager) SyncAll(ctx context.Context) (map[string]int, error) {
	sources := m.enabledAdapters()
	counts := make(map[string]int, len(sources))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.Concurrency)
	for _, sa := range sources {
		g.Go(func() error {
			n, err := m.SyncSource(gctx, sa.source.ID)
			if err != nil {
				return pkgerrors.NewOperationError("sync "+sa.source.ID, err)
			}
			mu.Lock()
			counts[sa.source.ID] = n
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	return counts, err
}
