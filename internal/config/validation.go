package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// knownFields are the canonical record fields that ignore_fields may name.
var knownFields = map[string]bool{
	"name": true, "title": true, "bio": true, "email": true, "phone": true,
	"specialties": true, "certifications": true, "is_founder": true,
	"visible": true, "image": true, "order": true,
}

// policyChoices lists the resolutions each policy slot accepts.
var policyChoices = map[string][]string{
	"missing_in_backend":  {"CREATE_IN_BACKEND", "DELETE_IN_FRONTEND"},
	"missing_in_frontend": {"USE_BACKEND"},
	"mismatch":            {"USE_FRONTEND", "USE_BACKEND"},
}

// Validate checks the configuration for required fields and valid values.
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateBackend()...)
	errors = append(errors, c.validateFrontend()...)

	if len(c.Collections) == 0 {
		errors = append(errors, ValidationError{
			Field:   "collections",
			Message: "at least one collection must be defined",
		})
	}
	// Sorted for a stable error order.
	for _, name := range c.ListCollections() {
		coll := c.Collections[name]
		errors = append(errors, c.validateCollection(name, &coll)...)
	}

	errors = append(errors, c.validateProcessing()...)
	errors = append(errors, c.validateVerification("verification", c.Verification)...)

	if c.History.Enabled {
		errors = append(errors, c.validateHistory()...)
	}

	errors = append(errors, c.validateLogging()...)

	if len(errors) > 0 {
		return errors
	}
	return nil
}

func (c *Config) validateBackend() ValidationErrors {
	var errors ValidationErrors

	if c.Backend.BaseURL == "" {
		errors = append(errors, ValidationError{
			Field:   "backend.base_url",
			Message: "base_url is required",
		})
	} else if u, err := url.Parse(c.Backend.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "backend.base_url",
			Message: "base_url must be an absolute http(s) URL",
		})
	}

	if c.Backend.TimeoutSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "backend.timeout_seconds",
			Message: "timeout_seconds cannot be negative",
		})
	}

	if c.Backend.MaxRetries < 0 {
		errors = append(errors, ValidationError{
			Field:   "backend.max_retries",
			Message: "max_retries cannot be negative",
		})
	}

	if c.Backend.MaxResponseBytes < 0 {
		errors = append(errors, ValidationError{
			Field:   "backend.max_response_bytes",
			Message: "max_response_bytes cannot be negative",
		})
	}

	if c.Backend.RateLimit < 0 {
		errors = append(errors, ValidationError{
			Field:   "backend.rate_limit",
			Message: "rate_limit cannot be negative",
		})
	}

	return errors
}

func (c *Config) validateFrontend() ValidationErrors {
	var errors ValidationErrors

	if c.Frontend.ContentDir == "" {
		errors = append(errors, ValidationError{
			Field:   "frontend.content_dir",
			Message: "content_dir is required",
		})
	}

	return errors
}

func (c *Config) validateCollection(name string, coll *CollectionConfig) ValidationErrors {
	var errors ValidationErrors
	prefix := fmt.Sprintf("collections.%s", name)

	validKeys := map[string]bool{"id": true, "name": true, "": true}
	if !validKeys[coll.KeyBy] {
		errors = append(errors, ValidationError{
			Field:   prefix + ".key_by",
			Message: "key_by must be 'id' or 'name'",
		})
	}

	for _, f := range coll.IgnoreFields {
		if !knownFields[f] {
			errors = append(errors, ValidationError{
				Field:   prefix + ".ignore_fields",
				Message: fmt.Sprintf("unknown field %q", f),
			})
		}
	}

	for _, dep := range coll.DependsOn {
		if dep == name {
			errors = append(errors, ValidationError{
				Field:   prefix + ".depends_on",
				Message: "a collection cannot depend on itself",
			})
			continue
		}
		if _, ok := c.Collections[dep]; !ok {
			errors = append(errors, ValidationError{
				Field:   prefix + ".depends_on",
				Message: fmt.Sprintf("unknown collection %q", dep),
			})
		}
	}

	policy := map[string]string{
		"missing_in_backend":  coll.ResolutionPolicy.MissingInBackend,
		"missing_in_frontend": coll.ResolutionPolicy.MissingInFrontend,
		"mismatch":            coll.ResolutionPolicy.Mismatch,
	}
	slots := make([]string, 0, len(policy))
	for slot := range policy {
		slots = append(slots, slot)
	}
	sort.Strings(slots)
	for _, slot := range slots {
		value := policy[slot]
		if value == "" {
			continue
		}
		normalized := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(value), "-", "_"))
		if !contains(policyChoices[slot], normalized) {
			errors = append(errors, ValidationError{
				Field:   prefix + ".resolution_policy." + slot,
				Message: fmt.Sprintf("must be one of %s", strings.Join(policyChoices[slot], ", ")),
			})
		}
	}

	if coll.Processing != nil && coll.Processing.ItemDelaySeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   prefix + ".processing.item_delay_seconds",
			Message: "item_delay_seconds cannot be negative",
		})
	}

	if coll.Verification != nil {
		errors = append(errors, c.validateVerification(prefix+".verification", *coll.Verification)...)
	}

	return errors
}

func (c *Config) validateProcessing() ValidationErrors {
	var errors ValidationErrors

	if c.Processing.ItemDelaySeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "processing.item_delay_seconds",
			Message: "item_delay_seconds cannot be negative",
		})
	}

	return errors
}

func (c *Config) validateVerification(prefix string, v VerificationConfig) ValidationErrors {
	var errors ValidationErrors

	validMethods := map[string]bool{"count": true, "sha256": true, "skip": true, "": true}
	if !validMethods[v.Method] {
		errors = append(errors, ValidationError{
			Field:   prefix + ".method",
			Message: "method must be 'count', 'sha256' or 'skip'",
		})
	}

	return errors
}

func (c *Config) validateHistory() ValidationErrors {
	var errors ValidationErrors
	h := c.History

	if h.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "history.host",
			Message: "host is required when history is enabled",
		})
	}

	if h.Port <= 0 || h.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "history.port",
			Message: "port must be between 1 and 65535",
		})
	}

	if h.User == "" {
		errors = append(errors, ValidationError{
			Field:   "history.user",
			Message: "user is required when history is enabled",
		})
	}

	if h.Database == "" {
		errors = append(errors, ValidationError{
			Field:   "history.database",
			Message: "database name is required when history is enabled",
		})
	}

	validTLS := map[string]bool{"disable": true, "preferred": true, "required": true, "": true}
	if !validTLS[h.TLS] {
		errors = append(errors, ValidationError{
			Field:   "history.tls",
			Message: "tls must be 'disable', 'preferred', or 'required'",
		})
	}

	for _, r := range h.TablePrefix {
		if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			errors = append(errors, ValidationError{
				Field:   "history.table_prefix",
				Message: "table_prefix may only contain letters, digits and underscores",
			})
			break
		}
	}

	if h.MaxConnections < 0 {
		errors = append(errors, ValidationError{
			Field:   "history.max_connections",
			Message: "max_connections cannot be negative",
		})
	}

	return errors
}

func (c *Config) validateLogging() ValidationErrors {
	var errors ValidationErrors

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "": true}
	if !validLevels[c.Logging.Level] {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Message: "level must be 'debug', 'info', 'warn', or 'error'",
		})
	}

	validFormats := map[string]bool{"json": true, "text": true, "": true}
	if !validFormats[c.Logging.Format] {
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Message: "format must be 'json' or 'text'",
		})
	}

	return errors
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
