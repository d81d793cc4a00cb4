package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/glorpus-work/promptreg/pkg/model"
	"github.com/glorpus-work/promptreg/pkg/state"
)

// SetValue sets a settings value by its YAML key, for example
// "default_scope" or "cache_ttl". The resulting configuration is validated.
func (c *Config) SetValue(key, value string) error {
	s := &c.Settings
	switch key {
	case "storage_dir":
		s.StorageDir = value
	case "cache_dir":
		s.CacheDir = value
	case "user_dir":
		s.UserDir = value
	case "workspace_dir":
		s.WorkspaceDir = value
	case "repository_root":
		s.RepositoryRoot = value
	case "default_scope":
		s.DefaultScope = model.Scope(value)
	case "commit_mode":
		s.CommitMode = model.CommitMode(value)
	case "state_backend":
		s.StateBackend = state.Backend(value)
	case "http_timeout", "cache_ttl":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration value for %s: %s", key, value)
		}
		if key == "http_timeout" {
			s.HTTPTimeout = d
		} else {
			s.CacheTTL = d
		}
	case "max_concurrent":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %s", key, value)
		}
		s.MaxConcurrent = n
	case "github_token":
		s.GitHubToken = value
	case "output_format":
		s.OutputFormat = value
	case "log_level":
		s.LogLevel = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return c.Validate()
}

// GetValue returns a settings value by its YAML key.
func (c *Config) GetValue(key string) (string, error) {
	v, ok := c.ToMap()[key]
	if !ok {
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
	return v, nil
}

// ToMap renders the settings keyed by their YAML names. The GitHub token is masked.
func (c *Config) ToMap() map[string]string {
	result := make(map[string]string)

	settingsValue := reflect.ValueOf(c.Settings)
	settingsType := settingsValue.Type()

	for i := 0; i < settingsValue.NumField(); i++ {
		field := settingsType.Field(i)
		yamlTag := field.Tag.Get("yaml")
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		yamlKey := strings.Split(yamlTag, ",")[0]

		fieldValue := settingsValue.Field(i)
		switch v := fieldValue.Interface().(type) {
		case time.Duration:
			result[yamlKey] = v.String()
		case int:
			result[yamlKey] = strconv.Itoa(v)
		default:
			result[yamlKey] = fieldValue.String()
		}
	}

	if result["github_token"] != "" {
		result["github_token"] = "********"
	}
	return result
}
