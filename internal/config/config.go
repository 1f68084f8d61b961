// Package config loads the HUD configuration from a yaml file under the
// data directory. Values are passed explicitly into constructors; there
// is no package-level configuration state.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Username string       `yaml:"username"`
	GitLab   GitLabConfig `yaml:"gitlab"`
	Sync     SyncConfig   `yaml:"sync"`
	Log      LogConfig    `yaml:"log"`
}

type GitLabConfig struct {
	URL          string `yaml:"url"`
	Token        string `yaml:"token"`
	ProjectID    int64  `yaml:"project_id"`
	TargetBranch string `yaml:"target_branch"`
}

type SyncConfig struct {
	PerPage  int `yaml:"per_page"`
	MaxFetch int `yaml:"max_fetch"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DataDir returns the directory holding the config file, cache, and
// logs: $GITLAB_HUD_DIR if set, otherwise ~/.gitlab-hud.
func DataDir() (string, error) {
	if dir := os.Getenv("GITLAB_HUD_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".gitlab-hud"), nil
}

// DefaultPath returns the default config file location.
func DefaultPath() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.setDefaults(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) setDefaults() error {
	if c.GitLab.URL == "" {
		c.GitLab.URL = "https://gitlab.com"
	}
	if c.GitLab.Token == "" {
		c.GitLab.Token = os.Getenv("GITLAB_TOKEN")
	}
	if c.GitLab.TargetBranch == "" {
		c.GitLab.TargetBranch = "master"
	}
	if c.Sync.PerPage == 0 {
		c.Sync.PerPage = 10
	}
	if c.Sync.MaxFetch == 0 {
		c.Sync.MaxFetch = 50
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.File == "" {
		dir, err := DataDir()
		if err != nil {
			return err
		}
		c.Log.File = filepath.Join(dir, "hud.log")
	}
	return nil
}

func (c *Config) validate() error {
	if c.Username == "" {
		return fmt.Errorf("username required")
	}
	if c.GitLab.ProjectID == 0 {
		return fmt.Errorf("gitlab.project_id required")
	}
	if c.GitLab.Token == "" {
		return fmt.Errorf("gitlab.token required (or set GITLAB_TOKEN)")
	}
	if c.Sync.PerPage < 0 || c.Sync.MaxFetch < 0 {
		return fmt.Errorf("sync.per_page and sync.max_fetch must be positive")
	}
	return nil
}

const defaultConfig = `# gitlab-hud configuration
username: ""        # your GitLab username (the viewing user)
gitlab:
  url: https://gitlab.com
  token: ""         # personal access token, or set GITLAB_TOKEN
  project_id: 0     # numeric project ID to watch
  target_branch: master
sync:
  per_page: 10
  max_fetch: 50
log:
  level: info
`

// WriteDefault writes a commented skeleton config to path unless one
// already exists. Used by the --setup flow.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultConfig), 0600); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	return nil
}
