// Package scope enforces that a bundle id is installed in at most one scope
// and moves bundles between scopes.
package scope

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/glorpus-work/promptreg/internal/logger"
	"github.com/glorpus-work/promptreg/pkg/model"
	"github.com/glorpus-work/promptreg/pkg/state"
)

// Conflict reports that a bundle already lives in a scope other than the requested one.
type Conflict struct {
	BundleID      string      `json:"bundleId"`
	ExistingScope model.Scope `json:"existingScope"`
	TargetScope   model.Scope `json:"targetScope"`
}

// String renders the conflict for display.
func (c *Conflict) String() string {
	return fmt.Sprintf("bundle %s is already installed at %s scope (requested %s)", c.BundleID, c.ExistingScope, c.TargetScope)
}

// Resolver answers scope questions from the per-scope record stores.
type Resolver struct {
	stores state.Stores
	log    *slog.Logger
}

// NewResolver creates a Resolver. A nil log discards output.
func NewResolver(stores state.Stores, log *slog.Logger) *Resolver {
	if log == nil {
		log = logger.Discard()
	}
	return &Resolver{stores: stores, log: log}
}

// CheckConflict returns the conflict for installing id at target, or nil when
// no scope other than target holds a record for id.
func (r *Resolver) CheckConflict(id string, target model.Scope) (*Conflict, error) {
	for _, s := range model.AllScopes() {
		if s == target {
			continue
		}
		rec, err := r.stores.Lookup(s, id)
		if err != nil {
			return nil, fmt.Errorf("failed to check %s scope for %s: %w", s, id, err)
		}
		if rec != nil {
			return &Conflict{BundleID: id, ExistingScope: s, TargetScope: target}, nil
		}
	}
	return nil, nil
}

// ConflictingScopes returns every scope currently holding a record for id.
func (r *Resolver) ConflictingScopes(id string) ([]model.Scope, error) {
	var out []model.Scope
	for _, s := range model.AllScopes() {
		rec, err := r.stores.Lookup(s, id)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			out = append(out, s)
		}
	}
	return out, nil
}

// MigrationResult is the outcome of MigrateBundle.
type MigrationResult struct {
	Success  bool
	BundleID string
	From     model.Scope
	To       model.Scope
	Err      error
	// InstalledNowhere is set when the uninstall step succeeded but the
	// install step failed. The bundle is not restored at From.
	InstalledNowhere bool
}

// StepFunc performs one half of a migration.
type StepFunc func(ctx context.Context) error

// MigrateBundle uninstalls id from one scope and installs it into another
// using the supplied callbacks. Failures are reported in the result and never retried.
func (r *Resolver) MigrateBundle(ctx context.Context, id string, from, to model.Scope, uninstall, install StepFunc) MigrationResult {
	res := MigrationResult{BundleID: id, From: from, To: to}
	if from == to {
		res.Err = fmt.Errorf("bundle %s is already at %s scope", id, to)
		return res
	}

	if err := uninstall(ctx); err != nil {
		r.log.Warn("migration uninstall step failed", "bundle", id, "from", from, "error", err)
		res.Err = fmt.Errorf("failed to uninstall %s from %s scope: %w", id, from, err)
		return res
	}
	if err := install(ctx); err != nil {
		r.log.Error("migration install step failed, bundle is not installed in any scope", "bundle", id, "to", to, "error", err)
		res.Err = fmt.Errorf("failed to install %s into %s scope: %w", id, to, err)
		res.InstalledNowhere = true
		return res
	}

	r.log.Info("bundle migrated", "bundle", id, "from", from, "to", to)
	res.Success = true
	return res
}
