// Package config loads the server configuration from an optional YAML file,
// SFS_* environment variables and defaults, in that order of precedence
// (environment wins over file, file wins over defaults).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendLocal = "local"
	BackendS3    = "s3"

	PolicyDeclared = "declared"
	PolicyVerify   = "verify"
)

type S3 struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
}

type Storage struct {
	Backend string `yaml:"backend"`
	S3      S3     `yaml:"s3"`
}

type Cleanup struct {
	Interval time.Duration `yaml:"interval"`
	MaxAge   time.Duration `yaml:"max_age"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the full process configuration.
type Config struct {
	Addr              string        `yaml:"addr"`
	Root              string        `yaml:"root"`
	Frontend          string        `yaml:"frontend"`
	MaxUploadBytes    int64         `yaml:"max_upload_bytes"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	ContentTypePolicy string        `yaml:"content_type_policy"`
	DatabaseURL       string        `yaml:"database_url"`

	// UploadRatePerMinute caps uploads per client IP; 0 disables the limit.
	UploadRatePerMinute int `yaml:"upload_rate_per_minute"`

	Storage Storage `yaml:"storage"`
	Cleanup Cleanup `yaml:"cleanup"`
	Log     Log     `yaml:"log"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Addr:              ":8000",
		Root:              "./data",
		Frontend:          "web/index.html",
		IdleTimeout:       30 * time.Second,
		ContentTypePolicy: PolicyDeclared,
		Storage:           Storage{Backend: BackendLocal},
		Cleanup: Cleanup{
			Interval: time.Hour,
			MaxAge:   24 * time.Hour,
		},
		Log: Log{Level: "info", Format: "text"},
	}
}

// Load merges defaults, the optional YAML file at path and the environment.
// The result is not validated: callers apply their own overrides first and
// then call Validate.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Addr, "SFS_ADDR")
	setString(&cfg.Root, "SFS_ROOT")
	setString(&cfg.Frontend, "SFS_FRONTEND")
	setString(&cfg.ContentTypePolicy, "SFS_CONTENT_TYPE_POLICY")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.Storage.Backend, "SFS_STORAGE")
	setString(&cfg.Storage.S3.Endpoint, "SFS_S3_ENDPOINT")
	setString(&cfg.Storage.S3.AccessKey, "SFS_S3_ACCESS_KEY")
	setString(&cfg.Storage.S3.SecretKey, "SFS_S3_SECRET_KEY")
	setString(&cfg.Storage.S3.Bucket, "SFS_BUCKET")
	setString(&cfg.Log.Level, "SFS_LOG_LEVEL")
	setString(&cfg.Log.Format, "SFS_LOG_FORMAT")

	if raw := os.Getenv("SFS_MAX_UPLOAD_BYTES"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return ValidationError{Field: "SFS_MAX_UPLOAD_BYTES", Message: "must be a valid integer"}
		}
		cfg.MaxUploadBytes = n
	}
	if raw := os.Getenv("SFS_UPLOAD_RATE_PER_MINUTE"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return ValidationError{Field: "SFS_UPLOAD_RATE_PER_MINUTE", Message: "must be a valid integer"}
		}
		cfg.UploadRatePerMinute = n
	}
	for key, dst := range map[string]*time.Duration{
		"SFS_IDLE_TIMEOUT":     &cfg.IdleTimeout,
		"SFS_CLEANUP_INTERVAL": &cfg.Cleanup.Interval,
		"SFS_CLEANUP_MAX_AGE":  &cfg.Cleanup.MaxAge,
	} {
		raw := os.Getenv(key)
		if raw == "" {
			continue
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return ValidationError{Field: key, Message: "must be a duration such as 30s or 1h"}
		}
		*dst = d
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
