// Package config loads settings from the environment, optionally layered
// over a YAML file.
package config

import (
	"crypto/tls"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"github.com/stackhead/task-management-app/baas"
)

const (
	BackendTables = "tables"
	BackendSQLite = "sqlite"
)

// Config holds every setting of the service. Keys match the environment
// variable names in lower case.
type Config struct {
	StorageConnectionString string `mapstructure:"storage_connection_string"`
	ColumnsTable            string `mapstructure:"columns_table"`
	TasksTable              string `mapstructure:"tasks_table"`
	ProfilesTable           string `mapstructure:"profiles_table"`
	PreferencesTable        string `mapstructure:"preferences_table"`
	CleanupQueue            string `mapstructure:"cleanup_queue"`

	DocumentBackend  string        `mapstructure:"document_backend"`
	SQLitePath       string        `mapstructure:"sqlite_path"`
	DocumentCacheTTL time.Duration `mapstructure:"document_cache_ttl"`

	RedisConnectionString string `mapstructure:"redis_connection_string"`

	AccountEndpoint string `mapstructure:"account_endpoint"`
	AccountProject  string `mapstructure:"account_project"`
	AccountAPIKey   string `mapstructure:"account_api_key"`

	AuthJWKSURL           string `mapstructure:"auth_jwks_url"`
	AuthAudience          string `mapstructure:"auth_audience"`
	AuthIssuer            string `mapstructure:"auth_issuer"`
	LocalAuthMode         bool   `mapstructure:"local_auth_mode"`
	LocalAuthSharedSecret string `mapstructure:"local_auth_shared_secret"`

	PublicOrigin   string        `mapstructure:"public_origin"`
	ListenAddr     string        `mapstructure:"listen_addr"`
	SessionTTL     time.Duration `mapstructure:"session_ttl"`
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
	EnablePprof    bool          `mapstructure:"enable_pprof"`

	JanitorWorkers int `mapstructure:"janitor_workers"`

	Debug bool `mapstructure:"debug"`
}

var defaults = map[string]any{
	"storage_connection_string": "",
	"columns_table":             "Columns",
	"tasks_table":               "Tasks",
	"profiles_table":            "Profiles",
	"preferences_table":         "Preferences",
	"cleanup_queue":             "cleanup-jobs",
	"document_backend":          BackendTables,
	"sqlite_path":               "board.sqlite",
	"document_cache_ttl":        "30s",
	"redis_connection_string":   "",
	"account_endpoint":          "",
	"account_project":           "",
	"account_api_key":           "",
	"auth_jwks_url":             "",
	"auth_audience":             "",
	"auth_issuer":               "",
	"local_auth_mode":           false,
	"local_auth_shared_secret":  "",
	"public_origin":             "http://localhost:3000",
	"listen_addr":               ":8080",
	"session_ttl":               "24h",
	"idempotency_ttl":           "24h",
	"enable_pprof":              false,
	"janitor_workers":           4,
	"debug":                     false,
}

// Load reads the environment and, when path is not empty, the YAML file at
// path. Environment variables win over the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()
	// Azure Functions custom handlers receive their port this way.
	_ = v.BindEnv("functions_customhandler_port", "FUNCTIONS_CUSTOMHANDLER_PORT")

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if port := v.GetString("functions_customhandler_port"); port != "" {
		cfg.ListenAddr = ":" + port
	}
	cfg.DocumentBackend = strings.ToLower(strings.TrimSpace(cfg.DocumentBackend))
	return cfg, nil
}

// Tables maps collection names to configured table names.
func (c *Config) Tables() map[baas.Collection]string {
	return map[baas.Collection]string{
		baas.Columns:     c.ColumnsTable,
		baas.Tasks:       c.TasksTable,
		baas.Profiles:    c.ProfilesTable,
		baas.Preferences: c.PreferencesTable,
	}
}

// ValidateServe reports settings missing for the HTTP server.
func (c *Config) ValidateServe() error {
	var errs []error
	switch c.DocumentBackend {
	case BackendTables:
		if c.StorageConnectionString == "" {
			errs = append(errs, errors.New("missing STORAGE_CONNECTION_STRING"))
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("missing SQLITE_PATH"))
		}
	default:
		errs = append(errs, errors.New("DOCUMENT_BACKEND must be tables or sqlite"))
	}
	if c.AccountEndpoint == "" || c.AccountProject == "" {
		errs = append(errs, errors.New("missing account config"))
	}
	if c.AccountAPIKey == "" {
		errs = append(errs, errors.New("missing ACCOUNT_API_KEY"))
	}
	if c.RedisConnectionString == "" {
		errs = append(errs, errors.New("missing redis config"))
	}
	if c.LocalAuthMode {
		if c.LocalAuthSharedSecret == "" {
			errs = append(errs, errors.New("missing LOCAL_AUTH_SHARED_SECRET"))
		}
	} else if c.AuthJWKSURL == "" || c.AuthAudience == "" {
		errs = append(errs, errors.New("missing auth config"))
	}
	if c.SessionTTL <= 0 || c.IdempotencyTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL and IDEMPOTENCY_TTL must be positive"))
	}
	return errors.Join(errs...)
}

// ValidateStorage reports settings missing for Azure Storage access.
func (c *Config) ValidateStorage() error {
	if c.StorageConnectionString == "" {
		return errors.New("missing STORAGE_CONNECTION_STRING")
	}
	if c.CleanupQueue == "" {
		return errors.New("missing CLEANUP_QUEUE")
	}
	return nil
}

// RedisOptions parses a redis:// URL or a host:port,password=...,ssl=True
// connection string.
func RedisOptions(conn string) (*redis.Options, error) {
	if conn == "" {
		return nil, errors.New("empty redis connection string")
	}
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts, nil
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts, nil
}
