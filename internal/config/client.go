package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultServerURL = "http://localhost:8080"

// ClientConfig is what the terminal client needs to reach the backend.
type ClientConfig struct {
	Server string `yaml:"server"`
	Token  string `yaml:"token,omitempty"`

	path string
}

// ClientConfigPath returns $COVA_CONFIG or ~/.config/cova/config.yaml.
func ClientConfigPath() string {
	if p := os.Getenv("COVA_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "cova.yaml"
	}
	return filepath.Join(home, ".config", "cova", "config.yaml")
}

// LoadClientConfig reads the YAML file at path (a missing file is not an
// error) and applies non-empty COVA_SERVER / COVA_TOKEN overrides.
func LoadClientConfig(path string) (*ClientConfig, error) {
	_ = godotenv.Load()

	cfg := &ClientConfig{Server: defaultServerURL, path: path}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if v := os.Getenv("COVA_SERVER"); v != "" {
		cfg.Server = v
	}
	if v := os.Getenv("COVA_TOKEN"); v != "" {
		cfg.Token = v
	}
	if cfg.Server == "" {
		cfg.Server = defaultServerURL
	}
	return cfg, nil
}

// Save writes the config back to the file it was loaded from.
func (c *ClientConfig) Save() error {
	if c.path == "" {
		return fmt.Errorf("client config has no path")
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(c.path, data, 0o600)
}
