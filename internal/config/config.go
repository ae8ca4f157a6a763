package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix             = "CUISINE"
	defaultHTTPAddress    = "0.0.0.0:8080"
	defaultLogLevel       = "info"
	defaultLogFormat      = "json"
	defaultDatabaseDriver = "sqlite"
	defaultDatabaseDSN    = "cuisine.db"
	defaultAudience       = "authenticated"
	defaultCacheTTL       = 20
	defaultPostgRESTWait  = 10
	defaultRateLimitRPS   = 20.0
	defaultRateLimitBurst = 40

	StoreBackendPostgREST = "postgrest"
	StoreBackendDatabase  = "database"
	CacheBackendMemory    = "memory"
	CacheBackendRedis     = "redis"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress string
	LogLevel    string
	LogFormat   string

	StoreBackend     string
	PostgRESTURL     string
	PostgRESTAnonKey string
	PostgRESTTimeout time.Duration
	DatabaseDriver   string
	DatabaseDSN      string

	JWTSecret   string
	JWTIssuer   string
	JWTAudience string

	CacheBackend  string
	CacheTTL      time.Duration
	RedisAddress  string
	RedisPassword string
	RedisDB       int

	EditorInviteCode   string
	RateLimitRPS       float64
	RateLimitBurst     int
	CORSAllowedOrigins []string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("store.backend", StoreBackendPostgREST)
	configViper.SetDefault("postgrest.timeout_seconds", defaultPostgRESTWait)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.dsn", defaultDatabaseDSN)
	configViper.SetDefault("auth.audience", defaultAudience)
	configViper.SetDefault("cache.backend", CacheBackendMemory)
	configViper.SetDefault("cache.ttl_seconds", defaultCacheTTL)
	configViper.SetDefault("redis.db", 0)
	configViper.SetDefault("ratelimit.rps", defaultRateLimitRPS)
	configViper.SetDefault("ratelimit.burst", defaultRateLimitBurst)
	configViper.SetDefault("cors.allowed_origins", []string{"*"})
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:        strings.TrimSpace(configViper.GetString("http.address")),
		LogLevel:           configViper.GetString("log.level"),
		LogFormat:          configViper.GetString("log.format"),
		StoreBackend:       strings.ToLower(strings.TrimSpace(configViper.GetString("store.backend"))),
		PostgRESTURL:       strings.TrimSpace(configViper.GetString("postgrest.url")),
		PostgRESTAnonKey:   strings.TrimSpace(configViper.GetString("postgrest.anon_key")),
		PostgRESTTimeout:   time.Duration(configViper.GetInt("postgrest.timeout_seconds")) * time.Second,
		DatabaseDriver:     strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabaseDSN:        strings.TrimSpace(configViper.GetString("database.dsn")),
		JWTSecret:          configViper.GetString("auth.jwt_secret"),
		JWTIssuer:          strings.TrimSpace(configViper.GetString("auth.issuer")),
		JWTAudience:        strings.TrimSpace(configViper.GetString("auth.audience")),
		CacheBackend:       strings.ToLower(strings.TrimSpace(configViper.GetString("cache.backend"))),
		CacheTTL:           time.Duration(configViper.GetInt("cache.ttl_seconds")) * time.Second,
		RedisAddress:       strings.TrimSpace(configViper.GetString("redis.address")),
		RedisPassword:      configViper.GetString("redis.password"),
		RedisDB:            configViper.GetInt("redis.db"),
		EditorInviteCode:   strings.TrimSpace(configViper.GetString("editor.invite_code")),
		RateLimitRPS:       configViper.GetFloat64("ratelimit.rps"),
		RateLimitBurst:     configViper.GetInt("ratelimit.burst"),
		CORSAllowedOrigins: splitOrigins(configViper.GetStringSlice("cors.allowed_origins")),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// splitOrigins accepts both list values and a single comma-separated env value.
func splitOrigins(values []string) []string {
	origins := make([]string, 0, len(values))
	for _, value := range values {
		for _, origin := range strings.Split(value, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				origins = append(origins, origin)
			}
		}
	}
	return origins
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.HTTPAddress) == "" {
		return fmt.Errorf("http.address is required")
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	switch c.StoreBackend {
	case StoreBackendPostgREST:
		if c.PostgRESTURL == "" {
			return fmt.Errorf("postgrest.url is required")
		}
		if c.PostgRESTAnonKey == "" {
			return fmt.Errorf("postgrest.anon_key is required")
		}
		if c.PostgRESTTimeout <= 0 {
			return fmt.Errorf("postgrest.timeout_seconds must be positive")
		}
	case StoreBackendDatabase:
		if c.DatabaseDSN == "" {
			return fmt.Errorf("database.dsn is required")
		}
	default:
		return fmt.Errorf("store.backend must be %q or %q", StoreBackendPostgREST, StoreBackendDatabase)
	}
	switch c.CacheBackend {
	case CacheBackendMemory:
	case CacheBackendRedis:
		if c.RedisAddress == "" {
			return fmt.Errorf("redis.address is required")
		}
	default:
		return fmt.Errorf("cache.backend must be %q or %q", CacheBackendMemory, CacheBackendRedis)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("cache.ttl_seconds must not be negative")
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("ratelimit values must not be negative")
	}
	return nil
}
