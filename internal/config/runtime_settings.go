package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
)

const DefaultRuntimeSettingsFile = "data/settings.json"

// RuntimeSettings are the docking parameters that can be adjusted through
// the API without restarting the service.
type RuntimeSettings struct {
	NumModes        int    `json:"num_modes"`
	Exhaustiveness  int    `json:"exhaustiveness"`
	CleanupCronExpr string `json:"cleanup_cron_expr"`
	RetentionHours  int    `json:"retention_hours"`
}

func RuntimeSettingsFilePath() string {
	return getEnvString("SETTINGS_FILE", DefaultRuntimeSettingsFile)
}

func (s RuntimeSettings) Validate() error {
	if s.NumModes <= 0 || s.NumModes > 9 {
		return fmt.Errorf("num_modes must be between 1 and 9")
	}
	if s.Exhaustiveness <= 0 || s.Exhaustiveness > 32 {
		return fmt.Errorf("exhaustiveness must be between 1 and 32")
	}
	if strings.TrimSpace(s.CleanupCronExpr) == "" {
		return fmt.Errorf("cleanup_cron_expr is required")
	}
	if _, err := cron.ParseStandard(s.CleanupCronExpr); err != nil {
		return fmt.Errorf("invalid cleanup_cron_expr: %w", err)
	}
	if s.RetentionHours <= 0 {
		return fmt.Errorf("retention_hours must be positive")
	}
	return nil
}

func (c *Config) RuntimeSettings() RuntimeSettings {
	return RuntimeSettings{
		NumModes:        c.Docking.NumModes,
		Exhaustiveness:  c.Docking.Exhaustiveness,
		CleanupCronExpr: c.Workspace.CleanupCronExpr,
		RetentionHours:  c.Workspace.RetentionHours,
	}
}

func WithRuntimeSettings(settings RuntimeSettings) Option {
	return func(c *Config) {
		if settings.NumModes > 0 {
			c.Docking.NumModes = settings.NumModes
		}
		if settings.Exhaustiveness > 0 {
			c.Docking.Exhaustiveness = settings.Exhaustiveness
		}
		if strings.TrimSpace(settings.CleanupCronExpr) != "" {
			c.Workspace.CleanupCronExpr = settings.CleanupCronExpr
		}
		if settings.RetentionHours > 0 {
			c.Workspace.RetentionHours = settings.RetentionHours
		}
	}
}

func LoadRuntimeSettingsFile(path string) (RuntimeSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuntimeSettings{}, err
	}
	var settings RuntimeSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return RuntimeSettings{}, fmt.Errorf("invalid settings file: %w", err)
	}
	return settings, nil
}

func WriteRuntimeSettingsFile(path string, settings RuntimeSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	content, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	content = append(content, '\n')

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

type RuntimeSettingsStore struct {
	path string

	mu      sync.RWMutex
	current RuntimeSettings
}

func NewRuntimeSettingsStore(path string, initial RuntimeSettings) (*RuntimeSettingsStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("settings file path is required")
	}
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	return &RuntimeSettingsStore{
		path:    path,
		current: initial,
	}, nil
}

func (s *RuntimeSettingsStore) GetRuntimeSettings() (RuntimeSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, nil
}

func (s *RuntimeSettingsStore) UpdateRuntimeSettings(next RuntimeSettings) (RuntimeSettings, error) {
	if err := next.Validate(); err != nil {
		return RuntimeSettings{}, err
	}
	if err := WriteRuntimeSettingsFile(s.path, next); err != nil {
		return RuntimeSettings{}, err
	}

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()
	return next, nil
}
