package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jacksonlee411/lease-signflow/internal/archive"
	"github.com/jacksonlee411/lease-signflow/internal/notify"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Authz     AuthzConfig     `yaml:"authz"`
	Lock      LockConfig      `yaml:"lock"`
	Notify    NotifyConfig    `yaml:"notify"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Expiry    ExpiryConfig    `yaml:"expiry"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
}

type ServerConfig struct {
	Addr          string        `yaml:"addr"`
	AllowlistPath string        `yaml:"allowlist_path"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DatabaseConfig is either a DSN or its parts. An empty DSN is built from the parts.
type DatabaseConfig struct {
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
	// Memory runs on in-process stores; for local development and demos only.
	Memory bool `yaml:"memory"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	Issuer    string        `yaml:"issuer"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type AuthzConfig struct {
	Mode       string `yaml:"mode"`
	ModelPath  string `yaml:"model_path"`
	PolicyPath string `yaml:"policy_path"`
}

type LockConfig struct {
	// Backend is "memory" or "redis".
	Backend       string        `yaml:"backend"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	TTL           time.Duration `yaml:"ttl"`
	WaitTimeout   time.Duration `yaml:"wait_timeout"`
}

type NotifyConfig struct {
	// Mode "inline" dispatches after commit in the request; "outbox" leaves it to the relay.
	Mode          string                   `yaml:"mode"`
	RulesPath     string                   `yaml:"rules_path"`
	Rules         []notify.Rule            `yaml:"rules"`
	Channels      map[string]ChannelConfig `yaml:"channels"`
	RelayInterval time.Duration            `yaml:"relay_interval"`
	RelayBatch    int                      `yaml:"relay_batch"`
	MaxAttempts   int                      `yaml:"max_attempts"`
}

type ChannelConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Token    string        `yaml:"token"`
	Timeout  time.Duration `yaml:"timeout"`
}

type ArchiveConfig struct {
	Enabled        bool `yaml:"enabled"`
	archive.Config `yaml:",inline"`
}

type ExpiryConfig struct {
	PolicyPath string        `yaml:"policy_path"`
	MaxWait    time.Duration `yaml:"max_wait"`
	Batch      int           `yaml:"batch"`
	Interval   time.Duration `yaml:"interval"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{Addr: ":8080", ReadTimeout: 15 * time.Second, WriteTimeout: 15 * time.Second},
		Log:    LogConfig{Level: "info", Format: "json"},
		Database: DatabaseConfig{
			Host: "127.0.0.1", Port: "5438", User: "app", Password: "app",
			Name: "lease_signflow", SSLMode: "disable",
		},
		Auth:      AuthConfig{Issuer: "lease-signflow", TokenTTL: time.Hour},
		Authz:     AuthzConfig{Mode: "enforce", ModelPath: "config/access/model.conf", PolicyPath: "config/access/policy.csv"},
		Lock:      LockConfig{Backend: "memory", TTL: 10 * time.Second, WaitTimeout: 5 * time.Second},
		Notify:    NotifyConfig{Mode: "outbox", RelayInterval: 5 * time.Second, RelayBatch: 100, MaxAttempts: 10},
		Archive:   ArchiveConfig{Config: archive.Config{Bucket: "signflow-archive", Prefix: "contracts"}},
		Expiry:    ExpiryConfig{MaxWait: 720 * time.Hour, Batch: 500, Interval: time.Hour},
		RateLimit: RateLimitConfig{RPS: 20, Burst: 40},
	}
}

// Load reads path (when non-empty) over the defaults, then applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Server.Addr, "HTTP_ADDR")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")
	setString(&c.Database.DSN, "DATABASE_URL")
	setString(&c.Database.Host, "DB_HOST")
	setString(&c.Database.Port, "DB_PORT")
	setString(&c.Database.User, "DB_USER")
	setString(&c.Database.Password, "DB_PASSWORD")
	setString(&c.Database.Name, "DB_NAME")
	setString(&c.Database.SSLMode, "DB_SSLMODE")
	setString(&c.Auth.JWTSecret, "JWT_SECRET")
	setString(&c.Authz.Mode, "AUTHZ_MODE")
	setString(&c.Lock.RedisAddr, "REDIS_ADDR")
	setString(&c.Lock.RedisPassword, "REDIS_PASSWORD")
	setString(&c.Archive.Endpoint, "MINIO_ENDPOINT")
	setString(&c.Archive.AccessKey, "MINIO_ACCESS_KEY")
	setString(&c.Archive.SecretKey, "MINIO_SECRET_KEY")
	setString(&c.Notify.Mode, "NOTIFY_MODE")
	if c.Lock.RedisAddr != "" && os.Getenv("REDIS_ADDR") != "" {
		c.Lock.Backend = "redis"
	}
	if raw := strings.TrimSpace(os.Getenv("RATE_LIMIT_RPS")); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("RATE_LIMIT_RPS: %w", err)
		}
		c.RateLimit.RPS = v
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	switch c.Lock.Backend {
	case "memory":
	case "redis":
		if c.Lock.RedisAddr == "" {
			errs = append(errs, errors.New("lock.redis_addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("lock.backend %q (expected memory|redis)", c.Lock.Backend))
	}
	switch c.Notify.Mode {
	case "inline", "outbox":
	default:
		errs = append(errs, fmt.Errorf("notify.mode %q (expected inline|outbox)", c.Notify.Mode))
	}
	if c.Notify.Mode == "outbox" && c.Database.Memory {
		errs = append(errs, errors.New("notify.mode outbox needs a database"))
	}
	if c.Archive.Enabled && (c.Archive.Endpoint == "" || c.Archive.Bucket == "") {
		errs = append(errs, errors.New("archive.endpoint and archive.bucket are required when archive is enabled"))
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("ratelimit values must not be negative"))
	}
	return errors.Join(errs...)
}

// URL returns Database.DSN or a postgres URL built from the parts.
func (d DatabaseConfig) URL() string {
	if d.DSN != "" {
		return d.DSN
	}
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   d.Host + ":" + d.Port,
		Path:   "/" + d.Name,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}
