package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const DefaultConfigPath = "config/config.json"

type Config struct {
	Server   ServerConfig   `json:"server"`
	Snapshot SnapshotConfig `json:"snapshot"`
	Polling  PollingConfig  `json:"polling"`
	Cache    CacheConfig    `json:"cache"`
	Redis    RedisConfig    `json:"redis"`
	GeoIP    GeoIPConfig    `json:"geoip"`
	Scoring  ScoringConfig  `json:"scoring"`
	Import   ImportConfig   `json:"import"`
	Log      LogConfig      `json:"log"`
}

type ServerConfig struct {
	Port           int      `json:"port"`
	Host           string   `json:"host"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// SnapshotConfig selects where raw node records come from. When URL is set
// it wins over Path.
type SnapshotConfig struct {
	Path       string `json:"path"`
	URL        string `json:"url"`
	Timeout    int    `json:"timeout_seconds"`
	MaxRetries int    `json:"max_retries"`
}

type PollingConfig struct {
	RefreshInterval     int `json:"refresh_interval_seconds"`
	HealthCheckInterval int `json:"health_check_interval_seconds"`
}

type CacheConfig struct {
	TTL     int `json:"ttl_seconds"`
	NodeTTL int `json:"node_ttl_seconds"`
}

type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Enabled  bool   `json:"enabled"`
	UseTLS   bool   `json:"use_tls"`
}

type GeoIPConfig struct {
	DBPath         string `json:"db_path"`
	APIURL         string `json:"api_url"`
	Timeout        int    `json:"timeout_seconds"`
	RatePerMinute  int    `json:"rate_per_minute"`
	CacheTTL       int    `json:"cache_ttl_minutes"`
	MaxConcurrency int    `json:"max_concurrency"`
}

type ScoringConfig struct {
	FallbackLatestVersion string `json:"fallback_latest_version"`
	MinSupported          string `json:"min_supported"`
	Deprecated            string `json:"deprecated"`
}

type ImportConfig struct {
	PreviewRows  int   `json:"preview_rows"`
	MaxErrors    int   `json:"max_errors"`
	MaxBodyBytes int64 `json:"max_body_bytes"`
}

type LogConfig struct {
	Level       string `json:"level"`
	Development bool   `json:"development"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			Host:           "0.0.0.0",
			AllowedOrigins: []string{"*"},
		},
		Snapshot: SnapshotConfig{
			Path:       "data/pnodes.json",
			Timeout:    10,
			MaxRetries: 3,
		},
		Polling: PollingConfig{
			RefreshInterval:     30,
			HealthCheckInterval: 30,
		},
		Cache: CacheConfig{
			TTL:     60,
			NodeTTL: 60,
		},
		Redis: RedisConfig{
			Address: "localhost:6379",
			Enabled: false,
		},
		GeoIP: GeoIPConfig{
			APIURL:         "http://ip-api.com/json/",
			Timeout:        5,
			RatePerMinute:  45,
			CacheTTL:       24 * 60,
			MaxConcurrency: 8,
		},
		Scoring: ScoringConfig{
			FallbackLatestVersion: "0.8.0",
			MinSupported:          "0.7.3",
			Deprecated:            "0.7.2",
		},
		Import: ImportConfig{
			PreviewRows:  10,
			MaxErrors:    50,
			MaxBodyBytes: 10 << 20,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadConfig layers defaults, the JSON config file, .env and the process
// environment. An empty path means CONFIG_FILE or DefaultConfigPath. A
// missing file is not an error; a malformed one is.
func LoadConfig(path string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path == "" {
		path = DefaultConfigPath
	}

	if err := loadFile(cfg, path); err != nil {
		return nil, err
	}

	// Environment overrides the config file
	loadEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	return nil
}

func envInt(key string, dst *int) {
	if val := os.Getenv(key); val != "" {
		if p, err := strconv.Atoi(val); err == nil {
			*dst = p
		}
	}
}

func envString(key string, dst *string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func envBool(key string, dst *bool) {
	if val := os.Getenv(key); val != "" {
		*dst = val == "true" || val == "1"
	}
}

func loadEnv(cfg *Config) {
	// Server configuration
	envInt("SERVER_PORT", &cfg.Server.Port)
	envString("SERVER_HOST", &cfg.Server.Host)
	if val := os.Getenv("ALLOWED_ORIGINS"); val != "" {
		parts := strings.Split(val, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		cfg.Server.AllowedOrigins = parts
	}

	// Snapshot source
	envString("SNAPSHOT_PATH", &cfg.Snapshot.Path)
	envString("SNAPSHOT_URL", &cfg.Snapshot.URL)
	envInt("SNAPSHOT_TIMEOUT", &cfg.Snapshot.Timeout)
	envInt("SNAPSHOT_MAX_RETRIES", &cfg.Snapshot.MaxRetries)

	// Polling and cache
	envInt("REFRESH_INTERVAL", &cfg.Polling.RefreshInterval)
	envInt("HEALTH_CHECK_INTERVAL", &cfg.Polling.HealthCheckInterval)
	envInt("CACHE_TTL", &cfg.Cache.TTL)
	envInt("CACHE_NODE_TTL", &cfg.Cache.NodeTTL)

	// Redis configuration
	envString("REDIS_ADDRESS", &cfg.Redis.Address)
	envString("REDIS_PASSWORD", &cfg.Redis.Password)
	envInt("REDIS_DB", &cfg.Redis.DB)
	envBool("REDIS_ENABLED", &cfg.Redis.Enabled)
	envBool("REDIS_USE_TLS", &cfg.Redis.UseTLS)

	// GeoIP configuration
	envString("GEOIP_DB_PATH", &cfg.GeoIP.DBPath)
	envString("GEOIP_API_URL", &cfg.GeoIP.APIURL)
	envInt("GEOIP_TIMEOUT", &cfg.GeoIP.Timeout)
	envInt("GEOIP_RATE_PER_MINUTE", &cfg.GeoIP.RatePerMinute)
	envInt("GEOIP_MAX_CONCURRENCY", &cfg.GeoIP.MaxConcurrency)

	// Scoring
	envString("FALLBACK_LATEST_VERSION", &cfg.Scoring.FallbackLatestVersion)
	envString("MIN_SUPPORTED_VERSION", &cfg.Scoring.MinSupported)
	envString("DEPRECATED_VERSION", &cfg.Scoring.Deprecated)

	// Import
	envInt("IMPORT_PREVIEW_ROWS", &cfg.Import.PreviewRows)
	envInt("IMPORT_MAX_ERRORS", &cfg.Import.MaxErrors)

	envString("LOG_LEVEL", &cfg.Log.Level)
	envBool("LOG_DEVELOPMENT", &cfg.Log.Development)
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Snapshot.Path == "" && c.Snapshot.URL == "" {
		errs = append(errs, errors.New("snapshot.path or snapshot.url is required"))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, fmt.Errorf("cache.ttl_seconds must be positive, got %d", c.Cache.TTL))
	}
	if c.Polling.RefreshInterval <= 0 {
		errs = append(errs, fmt.Errorf("polling.refresh_interval_seconds must be positive, got %d", c.Polling.RefreshInterval))
	}
	if c.Import.PreviewRows < 0 || c.Import.MaxErrors < 0 {
		errs = append(errs, errors.New("import limits must not be negative"))
	}
	if c.GeoIP.MaxConcurrency < 0 {
		errs = append(errs, errors.New("geoip.max_concurrency must not be negative"))
	}

	return errors.Join(errs...)
}

// Helper methods for duration conversion
func (c *Config) SnapshotTimeoutDuration() time.Duration {
	return time.Duration(c.Snapshot.Timeout) * time.Second
}

func (c *Config) RefreshIntervalDuration() time.Duration {
	return time.Duration(c.Polling.RefreshInterval) * time.Second
}

func (c *Config) HealthCheckIntervalDuration() time.Duration {
	return time.Duration(c.Polling.HealthCheckInterval) * time.Second
}

func (c *Config) CacheTTLDuration() time.Duration {
	return time.Duration(c.Cache.TTL) * time.Second
}

func (c *Config) NodeTTLDuration() time.Duration {
	return time.Duration(c.Cache.NodeTTL) * time.Second
}

func (c *Config) GeoTimeoutDuration() time.Duration {
	return time.Duration(c.GeoIP.Timeout) * time.Second
}

func (c *Config) GeoCacheTTLDuration() time.Duration {
	return time.Duration(c.GeoIP.CacheTTL) * time.Minute
}

// Address is the listen address of the HTTP server.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
