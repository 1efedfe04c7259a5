package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. FRIENDHUB_SECURITY_JWT_SECRET.
const EnvPrefix = "FRIENDHUB"

// ErrMissingSecret is returned when no JWT signing secret is configured.
var ErrMissingSecret = errors.New("config: security.jwt_secret is required")

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Security SecurityConfig `mapstructure:"security"`
	Audit    AuditConfig    `mapstructure:"audit"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	Debug        bool          `mapstructure:"debug"`
	AdminKey     string        `mapstructure:"admin_key"`
	AdminIPs     []string      `mapstructure:"admin_ips"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// AllowedOrigins limits WebSocket upgrades. Empty allows every origin.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// TrustedProxies may set X-Forwarded-For. Empty trusts no proxy.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

type DatabaseConfig struct {
	Mode        string        `mapstructure:"mode"` // sqlite | memory | mysql | postgres
	SQLitePath  string        `mapstructure:"sqlite_path"`
	MySQLDSN    string        `mapstructure:"mysql_dsn"`
	PostgresDSN string        `mapstructure:"postgres_dsn"`
	MaxOpen     int           `mapstructure:"max_open"`
	MaxIdle     int           `mapstructure:"max_idle"`
	MaxLife     time.Duration `mapstructure:"max_life"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	RedisPrefix     string        `mapstructure:"redis_prefix"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
	ProfileTTL      time.Duration `mapstructure:"profile_ttl"`
}

type SecurityConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTTTL         time.Duration `mapstructure:"jwt_ttl"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`

	// Argon2id cost for new password hashes.
	ArgonMemoryKiB   uint32 `mapstructure:"argon_memory_kib"`
	ArgonIterations  uint32 `mapstructure:"argon_iterations"`
	ArgonParallelism uint8  `mapstructure:"argon_parallelism"`
}

type AuditConfig struct {
	Retention     time.Duration `mapstructure:"retention"`
	PurgeInterval time.Duration `mapstructure:"purge_interval"`
}

// Load reads config from the given YAML file path. An empty path skips the
// file and relies on defaults plus environment overrides. A .env file in the
// working directory, if present, is loaded into the environment first.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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
	if cfg.Security.JWTSecret == "" {
		return nil, ErrMissingSecret
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ErrInvalid wraps every out-of-range setting reported by Load.
var ErrInvalid = errors.New("config: invalid value")

func (c *Config) validate() error {
	checks := []struct {
		key string
		ok  bool
	}{
		{"security.jwt_ttl", c.Security.JWTTTL > 0},
		{"security.rate_limit_rps", c.Security.RateLimitRPS > 0},
		{"security.rate_limit_burst", c.Security.RateLimitBurst >= 1},
		{"security.argon_memory_kib", c.Security.ArgonMemoryKiB >= 1},
		{"security.argon_iterations", c.Security.ArgonIterations >= 1},
		{"security.argon_parallelism", c.Security.ArgonParallelism >= 1},
		{"audit.retention", c.Audit.Retention > 0},
		{"audit.purge_interval", c.Audit.PurgeInterval > 0},
		{"cache.profile_ttl", c.Cache.ProfileTTL > 0},
	}
	for _, ck := range checks {
		if !ck.ok {
			return fmt.Errorf("%w: %s", ErrInvalid, ck.key)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3333)
	v.SetDefault("server.debug", false)
	v.SetDefault("server.admin_key", "")
	v.SetDefault("server.admin_ips", []string{})
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.trusted_proxies", []string{})

	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/friendhub.db")
	v.SetDefault("database.mysql_dsn", "")
	v.SetDefault("database.postgres_dsn", "")
	v.SetDefault("database.max_open", 25)
	v.SetDefault("database.max_idle", 5)
	v.SetDefault("database.max_life", "1h")

	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.redis_prefix", "friendhub:")
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", 64)
	v.SetDefault("cache.profile_ttl", "1m")

	// Keys without a default are invisible to AutomaticEnv during Unmarshal.
	v.SetDefault("security.jwt_secret", "")
	v.SetDefault("security.jwt_ttl", "15m")
	v.SetDefault("security.rate_limit_rps", 20)
	v.SetDefault("security.rate_limit_burst", 40)
	v.SetDefault("security.argon_memory_kib", 64*1024)
	v.SetDefault("security.argon_iterations", 3)
	v.SetDefault("security.argon_parallelism", 2)

	v.SetDefault("audit.retention", "720h")
	v.SetDefault("audit.purge_interval", "1h")
}
