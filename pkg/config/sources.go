package config

import (
	pkgerrors "github.com/glorpus-work/promptreg/pkg/errors"
	"github.com/glorpus-work/promptreg/pkg/model"
)

// IsEnabled reports whether the source is enabled; sources are enabled unless disabled explicitly.
func (s SourceConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// ToSource converts the configuration entry to a registry source.
func (s SourceConfig) ToSource() model.Source {
	name := s.Name
	if name == "" {
		name = s.ID
	}
	return model.Source{
		ID:       s.ID,
		Name:     name,
		Type:     s.Type,
		URL:      s.URL,
		Enabled:  s.IsEnabled(),
		Priority: s.Priority,
		Config: model.SourceConfig{
			Branch:          s.Branch,
			CollectionsPath: s.CollectionsPath,
			Token:           s.Token,
		},
	}
}

// FromSource converts a registry source to a configuration entry.
func FromSource(s model.Source) SourceConfig {
	enabled := s.Enabled
	return SourceConfig{
		ID:              s.ID,
		Name:            s.Name,
		Type:            s.Type,
		URL:             s.URL,
		Enabled:         &enabled,
		Priority:        s.Priority,
		Branch:          s.Config.Branch,
		CollectionsPath: s.Config.CollectionsPath,
		Token:           s.Config.Token,
	}
}

// RegistrySources returns the configured sources as registry sources.
func (c *Config) RegistrySources() []model.Source {
	out := make([]model.Source, 0, len(c.Sources))
	for _, s := range c.Sources {
		out = append(out, s.ToSource())
	}
	return out
}

// SetSources replaces the configured sources.
func (c *Config) SetSources(sources []model.Source) {
	c.Sources = make([]SourceConfig, 0, len(sources))
	for _, s := range sources {
		c.Sources = append(c.Sources, FromSource(s))
	}
}

// AddSource adds a source to the configuration.
// Returns an error if a source with the same id already exists.
func (c *Config) AddSource(s SourceConfig) error {
	if c.GetSource(s.ID) != nil {
		return pkgerrors.NewConfigError("id", s.ID, "source already exists")
	}
	c.Sources = append(c.Sources, s)
	return validateSources(c.Sources)
}

// RemoveSource removes a source from the configuration.
func (c *Config) RemoveSource(id string) bool {
	for i, s := range c.Sources {
		if s.ID == id {
			c.Sources = append(c.Sources[:i], c.Sources[i+1:]...)
			return true
		}
	}
	return false
}

// GetSource gets a source configuration by id.
func (c *Config) GetSource(id string) *SourceConfig {
	for i := range c.Sources {
		if c.Sources[i].ID == id {
			return &c.Sources[i]
		}
	}
	return nil
}
