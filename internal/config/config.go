package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration
type Config struct {
	BackupDir string          `yaml:"backup_dir"`
	DBPath    string          `yaml:"db_path"`
	Username  string          `yaml:"username"`
	Password  string          `yaml:"password"`
	UserAgent string          `yaml:"user_agent"`
	Formats   []string        `yaml:"formats"`
	Endpoints EndpointsConfig `yaml:"endpoints"`
}

// EndpointsConfig allows overriding the remote service endpoints, mainly
// useful for testing against a local stand-in.
type EndpointsConfig struct {
	BaseURL string `yaml:"base_url"`
	SSOURL  string `yaml:"sso_url"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	backupDir := "activities"
	if home, err := os.UserHomeDir(); err == nil {
		backupDir = filepath.Join(home, "garmin-backup")
	}
	return &Config{
		BackupDir: backupDir,
		UserAgent: "gcbackup/1.0",
	}
}

// Load reads a config file from the given path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// FindConfigFile searches for a config file in standard locations
func FindConfigFile() (string, error) {
	searchPaths := []string{
		"gcbackup.yaml",
	}

	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths,
			filepath.Join(home, ".config", "gcbackup", "gcbackup.yaml"),
		)
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", searchPaths)
}

// DatabasePath returns the run-history database path for the given backup
// directory, honoring an explicit db_path override.
func (c *Config) DatabasePath(backupDir string) string {
	if c.DBPath != "" {
		return c.DBPath
	}
	return filepath.Join(backupDir, ".gcbackup.db")
}
