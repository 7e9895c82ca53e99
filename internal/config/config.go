// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Store drivers.
const (
	DriverBadger   = "badger"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds the application configuration.
type Config struct {
	App    AppConfig
	Logger LoggerConfig
	Data   DataConfig
	Server ServerConfig
	Auth   AuthConfig
	Store  StoreConfig
	Sync   SyncConfig
	Blob   BlobConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level      string
	File       string // Optional; mirrors output to a rotated file
	MaxSizeMB  int    // Rotate after this many megabytes (default: 100)
	MaxBackups int    // Rotated files to keep (default: 5)
}

// DataConfig holds local storage configuration.
type DataConfig struct {
	Path string
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Port           string        // Server port (default: 8080)
	ReadTimeout    time.Duration // HTTP read timeout (default: 15s)
	WriteTimeout   time.Duration // HTTP write timeout (default: 15s)
	IdleTimeout    time.Duration // HTTP idle timeout (default: 60s)
	AllowedOrigins []string      // CORS origins (default: *)
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	// KeyPath is where the PASETO key lives (default: {data}/auth.key)
	KeyPath string
	// PASETO v4 symmetric key for access tokens (32 bytes)
	AccessTokenKey []byte
	AccessTokenDuration time.Duration // e.g., 15m
}

// StoreConfig selects the entity store backend.
type StoreConfig struct {
	Driver string
	// DSN is a Postgres connection string, or a file path for badger and sqlite.
	// File backends default to a location under the data path.
	DSN string
}

// SyncConfig bounds push and pull work.
type SyncConfig struct {
	PageSize        int
	MaxPageSize     int
	MaxBatchSize    int
	PushConcurrency int
	RateLimitRPS    float64
	RateLimitBurst  int
}

// BlobConfig configures the S3-compatible photo bucket.
type BlobConfig struct {
	Endpoint      string
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
	UploadExpiry  time.Duration
	UsePathStyle  bool // MinIO and other self-hosted endpoints
}

// Enabled reports whether enough is configured to talk to the bucket.
func (b BlobConfig) Enabled() bool {
	return b.Bucket != "" && b.AccessKey != "" && b.SecretKey != ""
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig() (*Config, error) {
	return Load(flag.CommandLine, os.Args[1:])
}

// Load is LoadConfig over an explicit flag set and argument list.
func Load(fs *flag.FlagSet, args []string) (*Config, error) {
	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	logFile := fs.String("log-file", "", "Also write logs to this rotated file")
	dataPath := fs.String("data-path", "", "Base path for local data")

	// Server flags
	serverPort := fs.String("port", "", "Server port (default: 8080)")
	readTimeout := fs.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := fs.String("write-timeout", "", "HTTP write timeout (default: 15s)")
	idleTimeout := fs.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")
	corsOrigins := fs.String("cors-origins", "", "Comma separated CORS origins (default: *)")

	// Auth flags
	authKeyPath := fs.String("auth-key-path", "", "Path to the token signing key")
	accessTokenDuration := fs.String("access-token-duration", "", "Access token lifetime (e.g., 15m)")

	// Store flags
	storeDriver := fs.String("store-driver", "", "Entity store backend (badger, sqlite, postgres)")
	storeDSN := fs.String("store-dsn", "", "Store location or connection string")

	// Sync flags
	pageSize := fs.String("sync-page-size", "", "Default pull page size (default: 500)")
	maxPageSize := fs.String("sync-max-page-size", "", "Largest pull page a client may request (default: 1000)")
	maxBatchSize := fs.String("sync-max-batch-size", "", "Most changes accepted in one push (default: 500)")
	pushConcurrency := fs.String("sync-push-concurrency", "", "Records applied in parallel per push (default: 8)")

	envFile := fs.String("env-file", ".env", "Path to .env file")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level:      getConfigValue(*logLevel, "LOG_LEVEL", "info"),
			File:       getConfigValue(*logFile, "LOG_FILE", ""),
			MaxSizeMB:  getIntConfigValue("", "LOG_MAX_SIZE_MB", 100),
			MaxBackups: getIntConfigValue("", "LOG_MAX_BACKUPS", 5),
		},
		Data: DataConfig{
			Path: getConfigValue(*dataPath, "DATA_PATH", ""),
		},
		Server: ServerConfig{
			Port:           getConfigValue(*serverPort, "SERVER_PORT", "8080"),
			AllowedOrigins: splitList(getConfigValue(*corsOrigins, "CORS_ALLOWED_ORIGINS", "*")),
		},
		Auth: AuthConfig{
			KeyPath:        getConfigValue(*authKeyPath, "AUTH_KEY_PATH", ""),
			AccessTokenKey: nil, // Will be set by auth.LoadOrGenerateKey at startup
		},
		Store: StoreConfig{
			Driver: strings.ToLower(getConfigValue(*storeDriver, "STORE_DRIVER", DriverBadger)),
			DSN:    getConfigValue(*storeDSN, "STORE_DSN", ""),
		},
		Sync: SyncConfig{
			PageSize:        getIntConfigValue(*pageSize, "SYNC_PAGE_SIZE", 500),
			MaxPageSize:     getIntConfigValue(*maxPageSize, "SYNC_MAX_PAGE_SIZE", 1000),
			MaxBatchSize:    getIntConfigValue(*maxBatchSize, "SYNC_MAX_BATCH_SIZE", 500),
			PushConcurrency: getIntConfigValue(*pushConcurrency, "SYNC_PUSH_CONCURRENCY", 8),
			RateLimitRPS:    getFloatConfigValue("", "SYNC_RATE_LIMIT_RPS", 20),
			RateLimitBurst:  getIntConfigValue("", "SYNC_RATE_LIMIT_BURST", 40),
		},
		Blob: BlobConfig{
			Endpoint:      getConfigValue("", "BLOB_ENDPOINT", ""),
			Region:        getConfigValue("", "BLOB_REGION", "nyc3"),
			Bucket:        getConfigValue("", "BLOB_BUCKET", "fuelup-photos"),
			AccessKey:     getConfigValue("", "BLOB_ACCESS_KEY", ""),
			SecretKey:     getConfigValue("", "BLOB_SECRET_KEY", ""),
			PublicBaseURL: strings.TrimRight(getConfigValue("", "BLOB_PUBLIC_BASE_URL", ""), "/"),
			UsePathStyle:  getBoolConfigValue("", "BLOB_USE_PATH_STYLE", false),
		},
	}

	var err error
	if cfg.Auth.AccessTokenDuration, err = getDurationConfigValue(*accessTokenDuration, "ACCESS_TOKEN_DURATION", "15m"); err != nil {
		return nil, err
	}
	if cfg.Server.ReadTimeout, err = getDurationConfigValue(*readTimeout, "SERVER_READ_TIMEOUT", "15s"); err != nil {
		return nil, err
	}
	if cfg.Server.WriteTimeout, err = getDurationConfigValue(*writeTimeout, "SERVER_WRITE_TIMEOUT", "15s"); err != nil {
		return nil, err
	}
	if cfg.Server.IdleTimeout, err = getDurationConfigValue(*idleTimeout, "SERVER_IDLE_TIMEOUT", "60s"); err != nil {
		return nil, err
	}
	if cfg.Blob.UploadExpiry, err = getDurationConfigValue("", "BLOB_UPLOAD_EXPIRY", "1h"); err != nil {
		return nil, err
	}

	if err := cfg.expandDataPath(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}
	if err := cfg.expandDerivedPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Data.Path == "" {
		return errors.New("data path cannot be empty after expansion")
	}

	switch c.Store.Driver {
	case DriverBadger, DriverSQLite:
	case DriverPostgres:
		if c.Store.DSN == "" {
			return errors.New("STORE_DSN is required for the postgres driver")
		}
	default:
		return fmt.Errorf("invalid store driver: %s (must be badger, sqlite, or postgres)", c.Store.Driver)
	}

	if c.Sync.PageSize <= 0 || c.Sync.MaxPageSize <= 0 {
		return errors.New("sync page sizes must be positive")
	}
	if c.Sync.PageSize > c.Sync.MaxPageSize {
		return fmt.Errorf("sync page size %d exceeds max page size %d", c.Sync.PageSize, c.Sync.MaxPageSize)
	}
	if c.Sync.MaxBatchSize <= 0 {
		return errors.New("sync max batch size must be positive")
	}
	if c.Sync.PushConcurrency <= 0 {
		return errors.New("sync push concurrency must be positive")
	}

	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	// Expand tilde.
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	// Make absolute if needed.
	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandDataPath expands ~ and makes the path absolute.
func (c *Config) expandDataPath() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	defaultPath := filepath.Join(homeDir, "FuelUp", "data")

	expanded, err := expandPath(c.Data.Path, defaultPath)
	if err != nil {
		return err
	}
	c.Data.Path = expanded
	return nil
}

// expandDerivedPaths fills file locations that default to the data path.
func (c *Config) expandDerivedPaths() error {
	keyPath, err := expandPath(c.Auth.KeyPath, filepath.Join(c.Data.Path, "auth.key"))
	if err != nil {
		return fmt.Errorf("invalid auth key path: %w", err)
	}
	c.Auth.KeyPath = keyPath

	var defaultStore string
	switch c.Store.Driver {
	case DriverBadger:
		defaultStore = filepath.Join(c.Data.Path, "badger")
	case DriverSQLite:
		defaultStore = filepath.Join(c.Data.Path, "fuelup.db")
	default:
		return nil
	}
	dsn, err := expandPath(c.Store.DSN, defaultStore)
	if err != nil {
		return fmt.Errorf("invalid store path: %w", err)
	}
	c.Store.DSN = dsn
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	// Priority 1: Command-line flag.
	if flagValue != "" {
		return flagValue
	}

	// Priority 2: Environment variable.
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}

	// Priority 3: Default value.
	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	result, err := strconv.Atoi(strings.TrimSpace(strValue))
	if err != nil {
		return defaultValue
	}
	return result
}

// getFloatConfigValue returns a float from flag, env var, or default.
func getFloatConfigValue(flagValue, envKey string, defaultValue float64) float64 {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	result, err := strconv.ParseFloat(strings.TrimSpace(strValue), 64)
	if err != nil {
		return defaultValue
	}
	return result
}

// getDurationConfigValue parses a duration from flag, env var, or default.
func getDurationConfigValue(flagValue, envKey, defaultValue string) (time.Duration, error) {
	strValue := getConfigValue(flagValue, envKey, defaultValue)
	d, err := time.ParseDuration(strValue)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", envKey, strValue, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments.
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=value.
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present.
		value = strings.Trim(value, `"'`)

		// Only set if not already set (env vars take precedence over .env file).
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
