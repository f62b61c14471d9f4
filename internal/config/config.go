// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverBadger   = "badger"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverMemory   = "memory"
)

// Config holds the application configuration.
type Config struct {
	App     AppConfig
	Logger  LoggerConfig
	Data    DataConfig
	Server  ServerConfig
	Store   StoreConfig
	Auth    AuthConfig
	Ledger  LedgerConfig
	Suggest SuggestConfig
	Search  SearchConfig
	Inbox   InboxConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// DataConfig holds the root directory for on-disk state.
type DataConfig struct {
	BasePath string
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Name           string
	Host           string
	Port           string        // Server port (default: 8080)
	ReadTimeout    time.Duration // HTTP read timeout (default: 15s)
	WriteTimeout   time.Duration // HTTP write timeout (default: 15s); SSE streams extend their own deadlines
	IdleTimeout    time.Duration // HTTP idle timeout (default: 60s)
	MaxConnections int           // Concurrent connection cap, 0 = unlimited
	CORSOrigins    []string
	AdvertiseMDNS  bool
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Driver string // sqlite, badger, postgres, mysql, memory
	Path   string // File or directory for embedded drivers
	DSN    string // Connection string for postgres and mysql
	// UsePGX selects the pgxpool adapter for postgres instead of database/sql.
	UsePGX   bool
	MaxConns int
	MinConns int
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	// PASETO v4 symmetric key for access tokens (32 bytes)
	AccessTokenKey       []byte
	AccessTokenDuration  time.Duration // e.g., 15m
	RefreshTokenDuration time.Duration // e.g., 720h (30 days)
	LoginRatePerMinute   int
}

// LedgerConfig holds borrowing policy switches.
type LedgerConfig struct {
	// ClearPaidFines stops fines marked paid from counting toward delinquency.
	ClearPaidFines bool
	// QuoteTTL bounds how long a computed return fine stays valid.
	QuoteTTL time.Duration
}

// SuggestConfig configures the external book-suggestion service.
type SuggestConfig struct {
	URL               string // Empty disables suggestions
	APIKey            string
	Timeout           time.Duration
	RequestsPerMinute int
	MaxInFlight       int
}

// SearchConfig configures the full-text book index.
type SearchConfig struct {
	Enabled bool
	Path    string
}

// InboxConfig configures the catalog import drop folder.
type InboxConfig struct {
	Path string // Empty disables the watcher
}

// Flags holds raw flag values before precedence is applied.
type Flags struct {
	env, logLevel, dataPath, envFile                                      string
	serverName, host, port, readTimeout, writeTimeout, idleTimeout        string
	maxConnections, corsOrigins, advertiseMDNS                            string
	storeDriver, storePath, storeDSN, storePGX                            string
	accessTokenDuration, refreshTokenDuration, loginRate                  string
	clearPaidFines, quoteTTL                                              string
	suggestURL, suggestTimeout, suggestRate, suggestInFlight, searchOn    string
	inboxPath                                                             string
}

// BindFlags registers every configuration flag on fs.
func BindFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{}
	fs.StringVar(&f.env, "env", "", "Environment (development, staging, production)")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.dataPath, "data-path", "", "Base path for on-disk state")
	fs.StringVar(&f.envFile, "env-file", ".env", "Path to .env file")

	fs.StringVar(&f.serverName, "server-name", "", "Name advertised for this server")
	fs.StringVar(&f.host, "host", "", "Listen address (default: all interfaces)")
	fs.StringVar(&f.port, "port", "", "Server port (default: 8080)")
	fs.StringVar(&f.readTimeout, "read-timeout", "", "HTTP read timeout (default: 15s)")
	fs.StringVar(&f.writeTimeout, "write-timeout", "", "HTTP write timeout (default: 15s)")
	fs.StringVar(&f.idleTimeout, "idle-timeout", "", "HTTP idle timeout (default: 60s)")
	fs.StringVar(&f.maxConnections, "max-connections", "", "Maximum concurrent connections (default: 512)")
	fs.StringVar(&f.corsOrigins, "cors-origins", "", "Comma-separated allowed CORS origins")
	fs.StringVar(&f.advertiseMDNS, "advertise-mdns", "", "Advertise via mDNS/Zeroconf (default: false)")

	fs.StringVar(&f.storeDriver, "store", "", "Store driver: sqlite, badger, postgres, mysql, memory")
	fs.StringVar(&f.storePath, "store-path", "", "Database file or directory for embedded stores")
	fs.StringVar(&f.storeDSN, "store-dsn", "", "Connection string for postgres or mysql")
	fs.StringVar(&f.storePGX, "store-pgx", "", "Use pgxpool for postgres (default: true)")

	fs.StringVar(&f.accessTokenDuration, "access-token-duration", "", "Access token lifetime (e.g., 15m)")
	fs.StringVar(&f.refreshTokenDuration, "refresh-token-duration", "", "Refresh token lifetime (e.g., 720h)")
	fs.StringVar(&f.loginRate, "login-rate", "", "Login attempts per minute per client (default: 20)")

	fs.StringVar(&f.clearPaidFines, "clear-paid-fines", "", "Exclude paid fines from delinquency (default: false)")
	fs.StringVar(&f.quoteTTL, "quote-ttl", "", "Lifetime of a computed return fine (default: 5m)")

	fs.StringVar(&f.suggestURL, "suggest-url", "", "Book suggestion service endpoint")
	fs.StringVar(&f.suggestTimeout, "suggest-timeout", "", "Suggestion call timeout (default: 5s)")
	fs.StringVar(&f.suggestRate, "suggest-rate", "", "Suggestion calls per minute (default: 30)")
	fs.StringVar(&f.suggestInFlight, "suggest-max-in-flight", "", "Concurrent suggestion calls (default: 4)")

	fs.StringVar(&f.searchOn, "search-enabled", "", "Maintain a full-text book index (default: true)")
	fs.StringVar(&f.inboxPath, "inbox-path", "", "Directory watched for catalog manifests")
	return f
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig() (*Config, error) {
	f := BindFlags(flag.CommandLine)
	flag.Parse()
	return Load(f)
}

// Load applies precedence to already-parsed flags.
func Load(f *Flags) (*Config, error) {
	if f == nil {
		f = &Flags{}
	}
	envFile := f.envFile
	if envFile == "" {
		envFile = ".env"
	}

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(f.env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(f.logLevel, "LOG_LEVEL", "info"),
		},
		Data: DataConfig{
			BasePath: getConfigValue(f.dataPath, "DATA_PATH", ""),
		},
		Server: ServerConfig{
			Name:           getConfigValue(f.serverName, "SERVER_NAME", "Library Ledger"),
			Host:           getConfigValue(f.host, "SERVER_HOST", ""),
			Port:           getConfigValue(f.port, "SERVER_PORT", "8080"),
			MaxConnections: getIntConfigValue(f.maxConnections, "SERVER_MAX_CONNECTIONS", 512),
			CORSOrigins:    splitList(getConfigValue(f.corsOrigins, "CORS_ORIGINS", "*")),
			AdvertiseMDNS:  getBoolConfigValue(f.advertiseMDNS, "ADVERTISE_MDNS", false),
		},
		Store: StoreConfig{
			Driver:   strings.ToLower(getConfigValue(f.storeDriver, "STORE_DRIVER", DriverSQLite)),
			Path:     getConfigValue(f.storePath, "STORE_PATH", ""),
			DSN:      getConfigValue(f.storeDSN, "STORE_DSN", ""),
			UsePGX:   getBoolConfigValue(f.storePGX, "STORE_PGX", true),
			MaxConns: getIntConfigValue("", "STORE_MAX_CONNS", 8),
			MinConns: getIntConfigValue("", "STORE_MIN_CONNS", 2),
		},
		Auth: AuthConfig{
			AccessTokenKey:     nil, // Set by auth.LoadOrGenerateKey during wiring
			LoginRatePerMinute: getIntConfigValue(f.loginRate, "LOGIN_RATE_PER_MINUTE", 20),
		},
		Ledger: LedgerConfig{
			ClearPaidFines: getBoolConfigValue(f.clearPaidFines, "LEDGER_CLEAR_PAID_FINES", false),
		},
		Suggest: SuggestConfig{
			URL:               getConfigValue(f.suggestURL, "SUGGEST_URL", ""),
			APIKey:            getConfigValue("", "SUGGEST_API_KEY", ""),
			RequestsPerMinute: getIntConfigValue(f.suggestRate, "SUGGEST_REQUESTS_PER_MINUTE", 30),
			MaxInFlight:       getIntConfigValue(f.suggestInFlight, "SUGGEST_MAX_IN_FLIGHT", 4),
		},
		Search: SearchConfig{
			Enabled: getBoolConfigValue(f.searchOn, "SEARCH_ENABLED", true),
		},
		Inbox: InboxConfig{
			Path: getConfigValue(f.inboxPath, "INBOX_PATH", ""),
		},
	}

	durations := []struct {
		target  *time.Duration
		flag    string
		env     string
		def     string
		display string
	}{
		{&cfg.Auth.AccessTokenDuration, f.accessTokenDuration, "ACCESS_TOKEN_DURATION", "15m", "access token duration"},
		{&cfg.Auth.RefreshTokenDuration, f.refreshTokenDuration, "REFRESH_TOKEN_DURATION", "720h", "refresh token duration"},
		{&cfg.Server.ReadTimeout, f.readTimeout, "SERVER_READ_TIMEOUT", "15s", "read timeout"},
		{&cfg.Server.WriteTimeout, f.writeTimeout, "SERVER_WRITE_TIMEOUT", "15s", "write timeout"},
		{&cfg.Server.IdleTimeout, f.idleTimeout, "SERVER_IDLE_TIMEOUT", "60s", "idle timeout"},
		{&cfg.Ledger.QuoteTTL, f.quoteTTL, "LEDGER_QUOTE_TTL", "5m", "quote ttl"},
		{&cfg.Suggest.Timeout, f.suggestTimeout, "SUGGEST_TIMEOUT", "5s", "suggest timeout"},
	}
	for _, d := range durations {
		value := getConfigValue(d.flag, d.env, d.def)
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", d.display, value, err)
		}
		*d.target = parsed
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
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

	switch c.Store.Driver {
	case DriverSQLite, DriverBadger, DriverMemory:
	case DriverPostgres, DriverMySQL:
		if c.Store.DSN == "" {
			return fmt.Errorf("store driver %s requires STORE_DSN", c.Store.Driver)
		}
	default:
		return fmt.Errorf("invalid store driver: %s (must be sqlite, badger, postgres, mysql, or memory)", c.Store.Driver)
	}

	if c.Ledger.QuoteTTL <= 0 {
		return errors.New("quote ttl must be positive")
	}

	if c.Suggest.URL != "" {
		if c.Suggest.Timeout <= 0 || c.Suggest.Timeout > time.Minute {
			return fmt.Errorf("suggest timeout %s out of range (0, 1m]", c.Suggest.Timeout)
		}
		if c.Suggest.MaxInFlight < 1 {
			return errors.New("suggest max in flight must be at least 1")
		}
	}

	if c.Server.MaxConnections < 0 {
		return errors.New("max connections cannot be negative")
	}

	return nil
}

// Addr returns the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandPaths resolves the data directory and everything that defaults under it.
func (c *Config) expandPaths() error {
	defaultBase := ""
	if c.Data.BasePath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		defaultBase = filepath.Join(homeDir, "LibraryLedger")
	}

	base, err := expandPath(c.Data.BasePath, defaultBase)
	if err != nil {
		return err
	}
	c.Data.BasePath = base

	storeDefault := ""
	switch c.Store.Driver {
	case DriverSQLite:
		storeDefault = filepath.Join(base, "ledger.db")
	case DriverBadger:
		storeDefault = filepath.Join(base, "badger")
	}
	if c.Store.Path, err = expandPath(c.Store.Path, storeDefault); err != nil {
		return err
	}

	if c.Search.Path, err = expandPath(c.Search.Path, filepath.Join(base, "search")); err != nil {
		return err
	}

	if c.Inbox.Path, err = expandPath(c.Inbox.Path, ""); err != nil {
		return err
	}
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}

	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}

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
	var result int
	if _, err := fmt.Sscanf(strValue, "%d", &result); err != nil {
		return defaultValue
	}
	return result
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

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		// Real environment variables win over the file.
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
