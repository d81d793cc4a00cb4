package registry

import (
	"encoding/json"
	"fmt"
	"time"

	pkgerrors "github.com/glorpus-work/promptreg/pkg/errors"
	"github.com/glorpus-work/promptreg/pkg/model"
	"github.com/hashicorp/go-version"
)

// SettingsVersion is the format version written by ExportSettings.
const SettingsVersion = "1.0.0"

// Settings is the exported registry configuration.
type Settings struct {
	Version     string         `json:"version"`
	ExportedAt  time.Time      `json:"exportedAt"`
	Sources     []model.Source `json:"sources"`
	Preferences Preferences    `json:"preferences"`
}

// ExportSettings serializes the configured sources and scope preferences.
func (m *Manager) ExportSettings() ([]byte, error) {
	s := Settings{
		Version:     SettingsVersion,
		ExportedAt:  m.opts.Now().UTC(),
		Sources:     m.Sources(),
		Preferences: m.Preferences(),
	}
	if s.Sources == nil {
		s.Sources = []model.Source{}
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to marshal settings")
	}
	return data, nil
}

// ImportSettings restores sources and preferences from an exported document.
// Sources with an id already configured are replaced; others are added.
// Settings of a newer major format version are rejected.
func (m *Manager) ImportSettings(data []byte) error {
	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return pkgerrors.NewConfigError("settings", "", fmt.Sprintf("not a settings document: %v", err))
	}
	if err := checkSettingsVersion(s.Version); err != nil {
		return err
	}
	for _, src := range s.Sources {
		if err := m.validateSource(src); err != nil {
			return err
		}
	}

	m.mu.Lock()
	for _, src := range s.Sources {
		a, err := m.opts.ResolveAdapter(src, m.opts.Adapter)
		if err != nil {
			m.mu.Unlock()
			return pkgerrors.Wrapf(err, "source %s", src.ID)
		}
		replaced := false
		for i := range m.sources {
			if m.sources[i].ID == src.ID {
				m.sources[i] = src
				replaced = true
				break
			}
		}
		if !replaced {
			m.sources = append(m.sources, src)
		}
		m.adapters[src.ID] = a
	}
	if s.Preferences.DefaultScope.Valid() {
		m.opts.Preferences.DefaultScope = s.Preferences.DefaultScope
	}
	if s.Preferences.CommitMode.Valid() {
		m.opts.Preferences.CommitMode = s.Preferences.CommitMode
	}
	m.mu.Unlock()

	m.log.Info("settings imported", "sources", len(s.Sources))
	return m.sourcesChanged()
}

func checkSettingsVersion(v string) error {
	if v == "" {
		return pkgerrors.NewConfigError("version", "", "settings version is required")
	}
	got, err := version.NewVersion(v)
	if err != nil {
		return pkgerrors.NewConfigError("version", v, "not a semantic version")
	}
	supported := version.Must(version.NewVersion(SettingsVersion))
	if got.Segments()[0] > supported.Segments()[0] {
		return pkgerrors.NewConfigError("version", v, "unsupported settings version, expected "+SettingsVersion)
	}
	return nil
}
