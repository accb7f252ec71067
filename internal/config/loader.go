package config

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from the specified file path.
// It supports YAML files and performs environment variable substitution.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return LoadFromViper(v)
}

// LoadFromViper creates a Config from an existing Viper instance.
// Useful for testing or when Viper is configured externally.
func LoadFromViper(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	substituteEnvVars(cfg)
	normalizeCollections(cfg)

	return cfg, nil
}

// envVarPattern matches ${VAR_NAME} or $VAR_NAME patterns
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// substituteEnvVars replaces ${VAR_NAME} patterns in URLs, paths and secrets.
func substituteEnvVars(cfg *Config) {
	cfg.Backend.BaseURL = expandEnvVar(cfg.Backend.BaseURL)
	cfg.Backend.Token = expandEnvVar(cfg.Backend.Token)

	cfg.Frontend.ContentDir = expandEnvVar(cfg.Frontend.ContentDir)

	cfg.History.Host = expandEnvVar(cfg.History.Host)
	cfg.History.User = expandEnvVar(cfg.History.User)
	cfg.History.Password = expandEnvVar(cfg.History.Password)
	cfg.History.Database = expandEnvVar(cfg.History.Database)

	cfg.Server.Listen = expandEnvVar(cfg.Server.Listen)
	cfg.Logging.Output = expandEnvVar(cfg.Logging.Output)
}

// normalizeCollections lowercases key strategies so "ID" and "id" behave the same.
func normalizeCollections(cfg *Config) {
	for name, coll := range cfg.Collections {
		coll.KeyBy = strings.ToLower(strings.TrimSpace(coll.KeyBy))
		cfg.Collections[name] = coll
	}
}

// expandEnvVar expands environment variables in the format ${VAR} or $VAR.
func expandEnvVar(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// Return original if env var not found
		return match
	})
}

// ListCollections returns all collection names in sorted order.
func (c *Config) ListCollections() []string {
	names := c.CollectionNames()
	sort.Strings(names)
	return names
}

// ApplyOverrides applies CLI flag overrides to the global configuration.
// Only non-zero/non-empty values are applied.
func (c *Config) ApplyOverrides(logLevel, logFormat string, itemDelay float64, skipVerify bool) {
	if logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFormat != "" {
		c.Logging.Format = logFormat
	}
	if itemDelay > 0 {
		c.Processing.ItemDelaySeconds = itemDelay
	}
	if skipVerify {
		c.Verification.SkipVerification = true
	}
}

// ApplyCollectionOverrides combines global, collection-specific and CLI processing values.
func (c *Config) ApplyCollectionOverrides(name string, itemDelay float64) ProcessingConfig {
	processing := c.GetCollectionProcessing(name)
	if itemDelay > 0 {
		processing.ItemDelaySeconds = itemDelay
	}
	return processing
}
