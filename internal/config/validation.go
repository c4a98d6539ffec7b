// validation.go - Configuration validation.
//
// Validates the merged configuration at startup so the process fails fast
// with every problem listed, rather than on the first request.
package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ValidationError represents a single configuration problem.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validator collects validation errors.
type Validator struct {
	errors []ValidationError
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make([]ValidationError, 0),
	}
}

// AddError adds a validation error.
func (v *Validator) AddError(field, message string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Message: message,
	})
}

// HasErrors returns true if there are validation errors.
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Errors returns all validation errors.
func (v *Validator) Errors() []ValidationError {
	return v.errors
}

// ErrorString returns a formatted string of all errors.
func (v *Validator) ErrorString() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d error(s):\n", len(v.errors)))
	for i, err := range v.errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidateRequired records an error when value is empty.
func (v *Validator) ValidateRequired(field, value string) {
	if value == "" {
		v.AddError(field, "required value not set")
	}
}

// ValidateURL validates that a value is an http(s) URL.
func (v *Validator) ValidateURL(field, value string) {
	if value == "" {
		return
	}

	parsed, err := url.Parse(value)
	if err != nil {
		v.AddError(field, fmt.Sprintf("invalid URL format: %v", err))
		return
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		v.AddError(field, "URL must use http or https scheme")
	}
}

// ValidateAddr validates a listen address of the form "host:port" or ":port".
func (v *Validator) ValidateAddr(field, value string) {
	if value == "" {
		v.AddError(field, "listen address must not be empty")
		return
	}

	i := strings.LastIndex(value, ":")
	if i < 0 {
		v.AddError(field, "listen address must contain a port")
		return
	}

	port, err := strconv.Atoi(value[i+1:])
	if err != nil {
		v.AddError(field, "port must be a number")
		return
	}

	if port < 1 || port > 65535 {
		v.AddError(field, "port must be between 1 and 65535")
	}
}

// ValidateEnum validates that a value is one of allowed options.
func (v *Validator) ValidateEnum(field, value string, allowed []string) {
	for _, opt := range allowed {
		if value == opt {
			return
		}
	}

	v.AddError(field, fmt.Sprintf("must be one of: %s (got: %s)", strings.Join(allowed, ", "), value))
}

// ValidateNonNegative validates that a number is zero or greater.
func (v *Validator) ValidateNonNegative(field string, value int64) {
	if value < 0 {
		v.AddError(field, "must not be negative")
	}
}

// ValidatePositive validates that a number is greater than zero.
func (v *Validator) ValidatePositive(field string, value int64) {
	if value <= 0 {
		v.AddError(field, "must be positive")
	}
}

// Validate checks a merged configuration and returns an error listing
// every problem found.
func Validate(cfg Config) error {
	v := NewValidator()

	v.ValidateAddr("addr", cfg.Addr)
	v.ValidateRequired("frontend", cfg.Frontend)
	v.ValidateNonNegative("max_upload_bytes", cfg.MaxUploadBytes)
	v.ValidateNonNegative("upload_rate_per_minute", int64(cfg.UploadRatePerMinute))
	v.ValidatePositive("idle_timeout", int64(cfg.IdleTimeout))
	v.ValidateEnum("content_type_policy", cfg.ContentTypePolicy, []string{PolicyDeclared, PolicyVerify})
	v.ValidateEnum("log.format", cfg.Log.Format, []string{"text", "json"})
	v.ValidateEnum("log.level", cfg.Log.Level, []string{"debug", "info", "warn", "warning", "error"})
	v.ValidateEnum("storage.backend", cfg.Storage.Backend, []string{BackendLocal, BackendS3})

	switch cfg.Storage.Backend {
	case BackendLocal:
		v.ValidateRequired("root", cfg.Root)
		v.ValidatePositive("cleanup.interval", int64(cfg.Cleanup.Interval))
		v.ValidatePositive("cleanup.max_age", int64(cfg.Cleanup.MaxAge))
	case BackendS3:
		v.ValidateRequired("storage.s3.endpoint", cfg.Storage.S3.Endpoint)
		v.ValidateRequired("storage.s3.access_key", cfg.Storage.S3.AccessKey)
		v.ValidateRequired("storage.s3.secret_key", cfg.Storage.S3.SecretKey)
		v.ValidateRequired("storage.s3.bucket", cfg.Storage.S3.Bucket)
		// Can be host:port or URL
		if strings.Contains(cfg.Storage.S3.Endpoint, "://") {
			v.ValidateURL("storage.s3.endpoint", cfg.Storage.S3.Endpoint)
		}
	}

	if cfg.DatabaseURL != "" &&
		!strings.HasPrefix(cfg.DatabaseURL, "postgres://") &&
		!strings.HasPrefix(cfg.DatabaseURL, "postgresql://") {
		v.AddError("database_url", "must be a valid PostgreSQL connection string")
	}

	if v.HasErrors() {
		return fmt.Errorf("%s", v.ErrorString())
	}
	return nil
}
