// Package config loads mapcluster settings from config.yaml and
// MAPCLUSTER_* environment variables.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pickupsports/mapcluster/internal/cluster"
	"github.com/pickupsports/mapcluster/internal/facility"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig      `yaml:"store" mapstructure:"store"`
	Server    ServerConfig     `yaml:"server" mapstructure:"server"`
	Log       LogConfig        `yaml:"log" mapstructure:"log"`
	Cluster   ClusterConfig    `yaml:"cluster" mapstructure:"cluster"`
	Cache     CacheConfig      `yaml:"cache" mapstructure:"cache"`
	RateLimit RateLimitConfig  `yaml:"ratelimit" mapstructure:"ratelimit"`
	Breaker   BreakerConfig    `yaml:"breaker" mapstructure:"breaker"`
	Dedupe    facility.Options `yaml:"dedupe" mapstructure:"dedupe"`
	Geocode   GeocodeConfig    `yaml:"geocode" mapstructure:"geocode"`
	Import    ImportConfig     `yaml:"import" mapstructure:"import"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver          string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL     string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath      string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns        int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns        int32  `yaml:"min_conns" mapstructure:"min_conns"`
	ConnectAttempts int    `yaml:"connect_attempts" mapstructure:"connect_attempts"`
}

// ServerConfig configures the HTTP map API.
type ServerConfig struct {
	Port                  int      `yaml:"port" mapstructure:"port"`
	ReadHeaderTimeoutSecs int      `yaml:"read_header_timeout_secs" mapstructure:"read_header_timeout_secs"`
	ShutdownTimeoutSecs   int      `yaml:"shutdown_timeout_secs" mapstructure:"shutdown_timeout_secs"`
	CORSOrigins           []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ClusterConfig selects cluster profiles and optional overrides applied to
// every profile.
type ClusterConfig struct {
	ProfilesFile string  `yaml:"profiles_file" mapstructure:"profiles_file"`
	Linkage      string  `yaml:"linkage" mapstructure:"linkage"`
	Factor       float64 `yaml:"factor" mapstructure:"factor"`
	MinSpan      float64 `yaml:"min_span" mapstructure:"min_span"`
}

// CacheConfig sizes the cluster result cache. MaxEntries 0 disables it.
type CacheConfig struct {
	MaxEntries int `yaml:"max_entries" mapstructure:"max_entries"`
	TTLSecs    int `yaml:"ttl_secs" mapstructure:"ttl_secs"`
}

// TTL returns the entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSecs) * time.Second
}

// RateLimitConfig throttles API requests per client. RPS 0 disables it.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" mapstructure:"rps"`
	Burst int     `yaml:"burst" mapstructure:"burst"`
}

// BreakerConfig guards store reads in the API.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// GeocodeConfig configures address lookup for imported rows without
// coordinates.
type GeocodeConfig struct {
	Enabled     bool    `yaml:"enabled" mapstructure:"enabled"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	Benchmark   string  `yaml:"benchmark" mapstructure:"benchmark"`
	RPS         float64 `yaml:"rps" mapstructure:"rps"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ImportConfig configures file ingestion.
type ImportConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
	BatchSize   int `yaml:"batch_size" mapstructure:"batch_size"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("MAPCLUSTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.sqlite_path", "mapcluster.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("store.connect_attempts", 5)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_header_timeout_secs", 10)
	v.SetDefault("server.shutdown_timeout_secs", 15)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("cluster.profiles_file", "")
	v.SetDefault("cluster.linkage", "")
	v.SetDefault("cluster.factor", 0)
	v.SetDefault("cluster.min_span", 0)
	v.SetDefault("cache.max_entries", 512)
	v.SetDefault("cache.ttl_secs", 60)
	v.SetDefault("ratelimit.rps", 20)
	v.SetDefault("ratelimit.burst", 40)
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.reset_timeout_secs", 30)
	v.SetDefault("dedupe.max_distance_m", facility.DefaultMaxDistance)
	v.SetDefault("dedupe.name_similarity", facility.DefaultNameSimilarity)
	v.SetDefault("dedupe.prefer_richest", false)
	v.SetDefault("geocode.enabled", false)
	v.SetDefault("geocode.base_url", "https://geocoding.geo.census.gov")
	v.SetDefault("geocode.benchmark", "Public_AR_Current")
	v.SetDefault("geocode.rps", 5)
	v.SetDefault("geocode.timeout_secs", 15)
	v.SetDefault("import.concurrency", 4)
	v.SetDefault("import.batch_size", 1000)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. mode is one of "serve",
// "import", "dedupe", "migrate" or "cluster".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "serve", "import", "migrate":
		errs = append(errs, c.validateStore()...)
	case "dedupe", "cluster":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if mode == "serve" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
		if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
			errs = append(errs, "ratelimit.rps and ratelimit.burst must be >= 0")
		}
		if c.Cache.MaxEntries < 0 {
			errs = append(errs, "cache.max_entries must be >= 0")
		}
		if c.Cache.MaxEntries > 0 && c.Cache.TTLSecs <= 0 {
			errs = append(errs, "cache.ttl_secs must be > 0 when the cache is enabled")
		}
	}

	if mode == "import" || mode == "dedupe" {
		if c.Dedupe.NameSimilarity < 0 || c.Dedupe.NameSimilarity > 1 {
			errs = append(errs, "dedupe.name_similarity must be between 0 and 1")
		}
		if c.Dedupe.MaxDistance < 0 {
			errs = append(errs, "dedupe.max_distance_m must be >= 0")
		}
	}

	if mode == "import" && c.Geocode.Enabled && c.Geocode.BaseURL == "" {
		errs = append(errs, "geocode.base_url is required when geocoding is enabled")
	}

	if c.Cluster.Factor < 0 || c.Cluster.MinSpan < 0 {
		errs = append(errs, "cluster.factor and cluster.min_span must be >= 0")
	}
	if _, err := cluster.ParseLinkage(c.Cluster.Linkage); err != nil {
		errs = append(errs, "cluster.linkage must be seed or transitive")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required for the postgres driver"}
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return []string{"store.sqlite_path is required for the sqlite driver"}
		}
	default:
		return []string{"store.driver must be postgres or sqlite"}
	}
	return nil
}

// Profiles returns the cluster profiles from ProfilesFile, or the built-in
// defaults, with any global overrides applied.
func (c ClusterConfig) Profiles() (cluster.Profiles, error) {
	profiles := cluster.DefaultProfiles()
	if c.ProfilesFile != "" {
		loaded, err := cluster.LoadProfiles(c.ProfilesFile)
		if err != nil {
			return nil, err
		}
		profiles = loaded
	}

	linkage, err := cluster.ParseLinkage(c.Linkage)
	if err != nil {
		return nil, eris.Wrap(err, "config: cluster.linkage")
	}
	for name, opts := range profiles {
		if c.Linkage != "" {
			opts.Linkage = linkage
		}
		if c.Factor > 0 {
			opts.Factor = c.Factor
		}
		if c.MinSpan > 0 {
			opts.MinSpan = c.MinSpan
		}
		profiles[name] = opts
	}
	return profiles, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
