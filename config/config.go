package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

var (
	ConfigFile    string
	Verbose       bool
	DefaultConfig = &Config{
		Verbose:           false,
		MaxRedirects:      20,
		AllowedCacheModes: []string{"no-store"},
	}
)

// Config holds the runtime configuration for the fetch core. The compatibility
// gates mirror the platform's deployment-level feature flags: entities and
// routers consult them at construction and dispatch time.
type Config struct {
	// Stable identifier for this runtime instance, a UUID string.
	InstanceID string `yaml:"instance_id,omitempty"`
	// Whether to enable verbose logging.
	Verbose bool `yaml:"verbose,omitempty"`
	// Maximum number of redirect hops followed by a single fetch.
	MaxRedirects int `yaml:"max_redirects,omitempty"`
	// Cache modes accepted on Request construction. An empty list rejects
	// any explicit cache mode.
	AllowedCacheModes []string `yaml:"allowed_cache_modes,omitempty"`
	// Removes the get/put/delete helper verbs from fetchers to free the
	// names up for RPC methods.
	DisableVerbHelpers bool `yaml:"disable_verb_helpers,omitempty"`
	// Enables the queue() and scheduled() event helpers on fetchers.
	EnableExtraHandlers bool `yaml:"enable_extra_handlers,omitempty"`
	// Enables wildcard RPC method resolution on fetchers.
	EnableRPCMethods bool `yaml:"enable_rpc_methods,omitempty"`
}

// PlexarDir returns the path to the Plexar configuration directory.
func PlexarDir() string {
	return filepath.Join(os.Getenv("HOME"), ".plexar")
}

func getDefaultConfigPath() string {
	return filepath.Join(PlexarDir(), "config.yaml")
}

func Load() (*Config, error) {
	if ConfigFile == "" {
		ConfigFile = getDefaultConfigPath()
	}
	if _, err := os.Stat(ConfigFile); os.IsNotExist(err) {
		return DefaultConfig, nil
	}
	yamlFile, err := os.ReadFile(ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("error reading YAML file: %v", err)
	}
	cfg := new(Config)
	if err := yaml.Unmarshal(yamlFile, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %v", err)
	}
	if cfg.InstanceID != "" {
		if _, err := uuid.Parse(cfg.InstanceID); err != nil {
			return nil, fmt.Errorf("invalid instance_id: %v", err)
		}
	}
	if cfg.MaxRedirects == 0 {
		cfg.MaxRedirects = DefaultConfig.MaxRedirects
	}

	if Verbose || cfg.Verbose {
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		slog.SetDefault(logger)
		slog.Debug("Verbose logging enabled")
	}

	return cfg, nil
}

func ensureDirExists(filePath string) error {
	dir := filepath.Dir(filePath)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		// Create the directory if it doesn't exist
		err := os.MkdirAll(dir, 0755)
		if err != nil {
			return fmt.Errorf("failed to create directory: %v", err)
		}
	}
	return nil
}

func Store(cfg *Config) error {
	yamlFile, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %v", err)
	}
	if ConfigFile == "" {
		ConfigFile = getDefaultConfigPath()
	}
	if err := ensureDirExists(ConfigFile); err != nil {
		return fmt.Errorf("failed to ensure directory exists: %v", err)
	}
	if err := os.WriteFile(ConfigFile, yamlFile, 0644); err != nil {
		return fmt.Errorf("failed to write YAML file: %v", err)
	}
	return nil
}
