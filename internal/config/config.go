// Package config provides configuration management for the bookstore service.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/vyrodovalexey/bookstore/internal/auth"
)

// Default configuration values.
const (
	DefaultServerPort        = 8080
	DefaultLogLevel          = "info"
	DefaultShutdownTimeout   = 30 * time.Second
	DefaultMetricsEnabled    = true
	DefaultDataFile          = "data/books.xml"
	DefaultStoreBackend      = StoreXML
	DefaultCacheBackend      = CacheMemory
	DefaultCacheListTTL      = 30 * time.Second
	DefaultCacheAggregateTTL = 10 * time.Minute
	DefaultRedisAddr         = "localhost:6379"
	DefaultMaxPageSize       = 20
	DefaultAllowedOrigins    = "http://localhost:4200"
	DefaultAuthMode          = "none"
)

// Store backends.
const (
	StoreXML    = "xml"
	StoreMemory = "memory"
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Environment variable names.
const (
	EnvConfigFile        = "APP_CONFIG_FILE"
	EnvServerPort        = "APP_SERVER_PORT"
	EnvLogLevel          = "APP_LOG_LEVEL"
	EnvShutdownTimeout   = "APP_SHUTDOWN_TIMEOUT"
	EnvMetricsEnabled    = "APP_METRICS_ENABLED"
	EnvDataFile          = "APP_DATA_FILE"
	EnvStoreBackend      = "APP_STORE_BACKEND"
	EnvCacheBackend      = "APP_CACHE_BACKEND"
	EnvCacheListTTL      = "APP_CACHE_LIST_TTL"
	EnvCacheAggregateTTL = "APP_CACHE_AGGREGATE_TTL"
	EnvRedisAddr         = "APP_REDIS_ADDR"
	EnvRedisPassword     = "APP_REDIS_PASSWORD" //nolint:gosec // env var name, not a credential
	EnvRedisDB           = "APP_REDIS_DB"
	EnvMaxPageSize       = "APP_MAX_PAGE_SIZE"
	EnvAllowedOrigins    = "APP_ALLOWED_ORIGINS"
	EnvAuthMode          = "APP_AUTH_MODE"
	EnvBasicAuthUsers    = "APP_BASIC_AUTH_USERS"
	EnvAPIKeys           = "APP_API_KEYS" //nolint:gosec // env var name, not a credential
)

const envPrefix = "APP"

// Config holds the application configuration.
type Config struct {
	// Server settings.
	ServerPort      int
	LogLevel        string
	ShutdownTimeout time.Duration
	MetricsEnabled  bool
	MaxPageSize     int
	AllowedOrigins  []string

	// Storage.
	DataFile     string
	StoreBackend string

	// Read cache.
	CacheBackend      string
	CacheListTTL      time.Duration
	CacheAggregateTTL time.Duration
	RedisAddr         string
	RedisPassword     string
	RedisDB           int

	// Write protection: none, basic, apikey, multi.
	AuthMode       string
	BasicAuthUsers string
	APIKeys        string
}

// Validation errors.
var (
	ErrInvalidServerPort      = errors.New("server port must be between 1 and 65535")
	ErrInvalidLogLevel        = errors.New("log level must be one of: debug, info, warn, error")
	ErrInvalidShutdownTimeout = errors.New("shutdown timeout must be positive")
	ErrInvalidMaxPageSize     = errors.New("max page size must be at least 1")
	ErrInvalidStoreBackend    = errors.New("store backend must be one of: xml, memory")
	ErrInvalidDataFile        = errors.New("data file must be set when the store backend is xml")
	ErrInvalidCacheBackend    = errors.New("cache backend must be one of: memory, redis")
	ErrInvalidCacheTTL        = errors.New("cache TTLs must not be negative")
	ErrInvalidRedisAddr       = errors.New("redis address must be set when the cache backend is redis")
	ErrInvalidRedisDB         = errors.New("redis DB must not be negative")
	ErrInvalidAuthMode        = errors.New("auth mode must be one of: none, basic, apikey, multi")
	ErrInvalidBasicAuthConfig = errors.New("basic auth users must be set when auth mode is basic")
	ErrInvalidAPIKeyConfig    = errors.New("API keys must be set when auth mode is apikey")
	ErrInvalidMultiAuthConfig = errors.New(
		"basic auth users or API keys must be set when auth mode is multi",
	)
)

// Option adjusts how Load reads configuration.
type Option func(*loader) error

type loader struct {
	v          *viper.Viper
	configFile string
}

// WithConfigFile reads a YAML file before the environment is applied.
// An empty path falls back to APP_CONFIG_FILE.
func WithConfigFile(path string) Option {
	return func(l *loader) error {
		l.configFile = path
		return nil
	}
}

// WithFlag lets a changed command-line flag override the setting named by env.
func WithFlag(env string, flag *pflag.Flag) Option {
	return func(l *loader) error {
		if flag == nil {
			return nil
		}
		if err := l.v.BindPFlag(key(env), flag); err != nil {
			return fmt.Errorf("binding flag %s: %w", flag.Name, err)
		}
		return nil
	}
}

// Load reads configuration. Precedence, highest first: changed flags,
// environment variables, the YAML file, defaults.
func Load(opts ...Option) (*Config, error) {
	l := &loader{v: newViper()}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}

	if l.configFile == "" {
		l.configFile = l.v.GetString(key(EnvConfigFile))
	}
	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", l.configFile, err)
		}
	}

	cfg := fromViper(l.v)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// key maps APP_SERVER_PORT to the viper key server_port; with the APP prefix
// and AutomaticEnv the key resolves back to the same variable.
func key(env string) string {
	return strings.ToLower(strings.TrimPrefix(env, envPrefix+"_"))
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	v.SetDefault(key(EnvConfigFile), "")
	v.SetDefault(key(EnvServerPort), DefaultServerPort)
	v.SetDefault(key(EnvLogLevel), DefaultLogLevel)
	v.SetDefault(key(EnvShutdownTimeout), DefaultShutdownTimeout)
	v.SetDefault(key(EnvMetricsEnabled), DefaultMetricsEnabled)
	v.SetDefault(key(EnvDataFile), DefaultDataFile)
	v.SetDefault(key(EnvStoreBackend), DefaultStoreBackend)
	v.SetDefault(key(EnvCacheBackend), DefaultCacheBackend)
	v.SetDefault(key(EnvCacheListTTL), DefaultCacheListTTL)
	v.SetDefault(key(EnvCacheAggregateTTL), DefaultCacheAggregateTTL)
	v.SetDefault(key(EnvRedisAddr), DefaultRedisAddr)
	v.SetDefault(key(EnvRedisPassword), "")
	v.SetDefault(key(EnvRedisDB), 0)
	v.SetDefault(key(EnvMaxPageSize), DefaultMaxPageSize)
	v.SetDefault(key(EnvAllowedOrigins), DefaultAllowedOrigins)
	v.SetDefault(key(EnvAuthMode), DefaultAuthMode)
	v.SetDefault(key(EnvBasicAuthUsers), "")
	v.SetDefault(key(EnvAPIKeys), "")

	return v
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		ServerPort:        v.GetInt(key(EnvServerPort)),
		LogLevel:          strings.ToLower(strings.TrimSpace(v.GetString(key(EnvLogLevel)))),
		ShutdownTimeout:   v.GetDuration(key(EnvShutdownTimeout)),
		MetricsEnabled:    v.GetBool(key(EnvMetricsEnabled)),
		MaxPageSize:       v.GetInt(key(EnvMaxPageSize)),
		AllowedOrigins:    splitList(v.Get(key(EnvAllowedOrigins))),
		DataFile:          strings.TrimSpace(v.GetString(key(EnvDataFile))),
		StoreBackend:      strings.ToLower(v.GetString(key(EnvStoreBackend))),
		CacheBackend:      strings.ToLower(v.GetString(key(EnvCacheBackend))),
		CacheListTTL:      v.GetDuration(key(EnvCacheListTTL)),
		CacheAggregateTTL: v.GetDuration(key(EnvCacheAggregateTTL)),
		RedisAddr:         v.GetString(key(EnvRedisAddr)),
		RedisPassword:     v.GetString(key(EnvRedisPassword)),
		RedisDB:           v.GetInt(key(EnvRedisDB)),
		AuthMode:          strings.ToLower(v.GetString(key(EnvAuthMode))),
		BasicAuthUsers:    v.GetString(key(EnvBasicAuthUsers)),
		APIKeys:           v.GetString(key(EnvAPIKeys)),
	}
}

// splitList accepts a comma-separated string (environment) or a YAML list.
func splitList(raw any) []string {
	var parts []string
	switch val := raw.(type) {
	case string:
		parts = strings.Split(val, ",")
	case []string:
		parts = val
	case []any:
		for _, p := range val {
			parts = append(parts, fmt.Sprint(p))
		}
	}

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks if the configuration values are valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateStorage(); err != nil {
		return err
	}

	return c.validateAuth()
}

func (c *Config) validateServer() error {
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return ErrInvalidServerPort
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return ErrInvalidLogLevel
	}

	if c.ShutdownTimeout <= 0 {
		return ErrInvalidShutdownTimeout
	}

	if c.MaxPageSize < 1 {
		return ErrInvalidMaxPageSize
	}

	return nil
}

func (c *Config) validateStorage() error {
	switch c.StoreBackend {
	case StoreXML:
		if c.DataFile == "" {
			return ErrInvalidDataFile
		}
	case StoreMemory:
	default:
		return ErrInvalidStoreBackend
	}

	if c.CacheListTTL < 0 || c.CacheAggregateTTL < 0 {
		return ErrInvalidCacheTTL
	}

	switch c.CacheBackend {
	case CacheMemory:
	case CacheRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			return ErrInvalidRedisAddr
		}
		if c.RedisDB < 0 {
			return ErrInvalidRedisDB
		}
	default:
		return ErrInvalidCacheBackend
	}

	return nil
}

func (c *Config) validateAuth() error {
	switch auth.Mode(c.AuthMode) {
	case auth.ModeNone, "":
	case auth.ModeBasic:
		if c.BasicAuthUsers == "" {
			return ErrInvalidBasicAuthConfig
		}
	case auth.ModeAPIKey:
		if c.APIKeys == "" {
			return ErrInvalidAPIKeyConfig
		}
	case auth.ModeMulti:
		if c.BasicAuthUsers == "" && c.APIKeys == "" {
			return ErrInvalidMultiAuthConfig
		}
	default:
		return ErrInvalidAuthMode
	}

	return nil
}

// AuthSettings returns the settings for auth.New.
func (c *Config) AuthSettings() auth.Settings {
	return auth.Settings{
		Mode:       auth.Mode(c.AuthMode),
		BasicUsers: c.BasicAuthUsers,
		APIKeys:    c.APIKeys,
	}
}

// Address returns the server address in host:port format.
func (c *Config) Address() string {
	return fmt.Sprintf(":%d", c.ServerPort)
}
