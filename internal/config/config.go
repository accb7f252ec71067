// Package config provides configuration structures and loading for contentsync.
package config

import "fmt"

// Config represents the complete application configuration.
type Config struct {
	Backend      BackendConfig               `yaml:"backend" mapstructure:"backend"`
	Frontend     FrontendConfig              `yaml:"frontend" mapstructure:"frontend"`
	Collections  map[string]CollectionConfig `yaml:"collections" mapstructure:"collections"`
	Processing   ProcessingConfig            `yaml:"processing" mapstructure:"processing"`
	Verification VerificationConfig          `yaml:"verification" mapstructure:"verification"`
	History      HistoryConfig               `yaml:"history" mapstructure:"history"`
	Server       ServerConfig                `yaml:"server" mapstructure:"server"`
	Logging      LoggingConfig               `yaml:"logging" mapstructure:"logging"`
}

// BackendConfig describes the backoffice REST API.
type BackendConfig struct {
	BaseURL          string  `yaml:"base_url" mapstructure:"base_url"`
	APIPrefix        string  `yaml:"api_prefix" mapstructure:"api_prefix"`
	Token            string  `yaml:"token" mapstructure:"token"`
	TimeoutSeconds   int     `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
	MaxRetries       int     `yaml:"max_retries" mapstructure:"max_retries"` // list calls only
	RateLimit        float64 `yaml:"rate_limit" mapstructure:"rate_limit"`   // requests per second, 0 = unlimited
	MaxResponseBytes int64   `yaml:"max_response_bytes" mapstructure:"max_response_bytes"`
}

// FrontendConfig describes where the static content files live.
type FrontendConfig struct {
	ContentDir       string `yaml:"content_dir" mapstructure:"content_dir"`
	SchemaValidation bool   `yaml:"schema_validation" mapstructure:"schema_validation"`
}

// CollectionConfig represents one reconciled content type.
type CollectionConfig struct {
	KeyBy            string              `yaml:"key_by" mapstructure:"key_by"` // id or name
	IgnoreFields     []string            `yaml:"ignore_fields" mapstructure:"ignore_fields"`
	DependsOn        []string            `yaml:"depends_on" mapstructure:"depends_on"`
	ResolutionPolicy PolicyConfig        `yaml:"resolution_policy" mapstructure:"resolution_policy"`
	Processing       *ProcessingConfig   `yaml:"processing,omitempty" mapstructure:"processing"`
	Verification     *VerificationConfig `yaml:"verification,omitempty" mapstructure:"verification"`
}

// PolicyConfig overrides the suggested resolution per difference kind.
type PolicyConfig struct {
	MissingInBackend  string `yaml:"missing_in_backend" mapstructure:"missing_in_backend"`
	MissingInFrontend string `yaml:"missing_in_frontend" mapstructure:"missing_in_frontend"`
	Mismatch          string `yaml:"mismatch" mapstructure:"mismatch"`
}

// ProcessingConfig represents batch processing settings.
type ProcessingConfig struct {
	ItemDelaySeconds float64 `yaml:"item_delay_seconds" mapstructure:"item_delay_seconds"`
}

// VerificationConfig represents post-sync convergence checks.
type VerificationConfig struct {
	Method           string `yaml:"method" mapstructure:"method"` // "count", "sha256" or "skip"
	SkipVerification bool   `yaml:"skip_verification" mapstructure:"skip_verification"`
}

// HistoryConfig represents the optional MySQL sync journal.
type HistoryConfig struct {
	Enabled            bool   `yaml:"enabled" mapstructure:"enabled"`
	Host               string `yaml:"host" mapstructure:"host"`
	Port               int    `yaml:"port" mapstructure:"port"`
	User               string `yaml:"user" mapstructure:"user"`
	Password           string `yaml:"password" mapstructure:"password"`
	Database           string `yaml:"database" mapstructure:"database"`
	TLS                string `yaml:"tls" mapstructure:"tls"` // disable, preferred, required
	TablePrefix        string `yaml:"table_prefix" mapstructure:"table_prefix"`
	MaxConnections     int    `yaml:"max_connections" mapstructure:"max_connections"`
	MaxIdleConnections int    `yaml:"max_idle_connections" mapstructure:"max_idle_connections"`
}

// ServerConfig represents the HTTP API settings.
type ServerConfig struct {
	Listen string `yaml:"listen" mapstructure:"listen"`
}

// LoggingConfig represents logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json or text
	Output string `yaml:"output" mapstructure:"output"` // stdout, stderr, or file path
}

// DefaultMaxResponseBytes leaves room for list responses carrying inline data: images.
const DefaultMaxResponseBytes = 32 << 20

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			APIPrefix:        "/api",
			TimeoutSeconds:   30,
			MaxRetries:       2,
			MaxResponseBytes: DefaultMaxResponseBytes,
		},
		Frontend: FrontendConfig{
			ContentDir:       "content",
			SchemaValidation: true,
		},
		Processing: ProcessingConfig{
			ItemDelaySeconds: 0,
		},
		Verification: VerificationConfig{
			Method:           "count",
			SkipVerification: false,
		},
		History: HistoryConfig{
			Enabled:            false,
			Port:               3306,
			TLS:                "preferred",
			TablePrefix:        "contentsync_",
			MaxConnections:     5,
			MaxIdleConnections: 2,
		},
		Server: ServerConfig{
			Listen: ":8089",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
	}
}

// GetCollection returns a collection configuration by name.
func (c *Config) GetCollection(name string) (*CollectionConfig, error) {
	coll, ok := c.Collections[name]
	if !ok {
		return nil, fmt.Errorf("collection %q not found in configuration", name)
	}
	return &coll, nil
}

// CollectionNames returns every configured collection name.
func (c *Config) CollectionNames() []string {
	names := make([]string, 0, len(c.Collections))
	for name := range c.Collections {
		names = append(names, name)
	}
	return names
}

// GetCollectionProcessing returns the processing config for a collection, falling back to global if not set.
func (c *Config) GetCollectionProcessing(name string) ProcessingConfig {
	coll, err := c.GetCollection(name)
	if err != nil || coll.Processing == nil {
		return c.Processing
	}
	result := c.Processing
	if coll.Processing.ItemDelaySeconds > 0 {
		result.ItemDelaySeconds = coll.Processing.ItemDelaySeconds
	}
	return result
}

// GetCollectionVerification returns the verification config for a collection, falling back to global if not set.
func (c *Config) GetCollectionVerification(name string) VerificationConfig {
	coll, err := c.GetCollection(name)
	if err != nil || coll.Verification == nil {
		return c.Verification
	}
	result := c.Verification
	if coll.Verification.Method != "" {
		result.Method = coll.Verification.Method
	}
	result.SkipVerification = coll.Verification.SkipVerification || c.Verification.SkipVerification
	return result
}
