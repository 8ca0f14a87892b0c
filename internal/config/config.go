package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config aggregates application settings that may be sourced from files or environment variables.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Mail     MailConfig     `mapstructure:"mail"`
	Clamd    ClamdConfig    `mapstructure:"clamd"`
	Limits   LimitsConfig   `mapstructure:"limits"`
	Worker   WorkerConfig   `mapstructure:"worker"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Port                 int    `mapstructure:"port"`
	CookieDomain         string `mapstructure:"cookie_domain"`
	AllowedOrigins       string `mapstructure:"allowed_origins"`
	FrontendBaseURL      string `mapstructure:"frontend_base_url"`
	RequireVerifiedLogin bool   `mapstructure:"require_verified_login"`
	MetricsSecret        string `mapstructure:"metrics_secret"`
}

// Origins 将逗号分隔的来源列表拆分为切片。
func (a APIConfig) Origins() []string {
	var out []string
	for _, o := range strings.Split(a.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// DatabaseConfig contains connection options for PostgreSQL.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig 包含 Redis 连接配置。
type RedisConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr 返回 host:port 形式的地址。
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// MinIOConfig contains connection options for MinIO/S3-compatible storage.
type MinIOConfig struct {
	Endpoint         string `mapstructure:"endpoint"`
	PublicEndpoint   string `mapstructure:"public_endpoint"`
	AccessKeyID      string `mapstructure:"access_key_id"`
	SecretAccessKey  string `mapstructure:"secret_access_key"`
	UseSSL           bool   `mapstructure:"use_ssl"`
	Bucket           string `mapstructure:"bucket"`
	Region           string `mapstructure:"region"`
	BucketLookup     string `mapstructure:"bucket_lookup"`
	AutoCreateBucket bool   `mapstructure:"auto_create_bucket"`
}

// JWTConfig 描述 RS256 密钥位置与令牌有效期。
type JWTConfig struct {
	PrivateKeyPath string        `mapstructure:"private_key_path"`
	PublicKeyPath  string        `mapstructure:"public_key_path"`
	AccessTTL      time.Duration `mapstructure:"access_ttl"`
	RefreshTTL     time.Duration `mapstructure:"refresh_ttl"`
}

// MailConfig contains SMTP delivery settings used by the worker.
type MailConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	TLS      bool   `mapstructure:"tls"`
}

// ClamdConfig 为空地址时跳过病毒扫描。
type ClamdConfig struct {
	Addr string `mapstructure:"addr"`
}

// LimitsConfig groups abuse-protection knobs.
type LimitsConfig struct {
	LoginRatePerHour   int           `mapstructure:"login_rate_per_hour"`
	LoginLockThreshold int           `mapstructure:"login_lock_threshold"`
	LoginLockTTL       time.Duration `mapstructure:"login_lock_ttl"`
	UploadMaxBytes     int64         `mapstructure:"upload_max_bytes"`
	ChatEventsPerSec   float64       `mapstructure:"chat_events_per_sec"`
}

// WorkerConfig 包含后台任务相关配置。
type WorkerConfig struct {
	Concurrency int    `mapstructure:"concurrency"`
	PurgeCron   string `mapstructure:"purge_cron"`
	MetricsPort int    `mapstructure:"metrics_port"`
}

// DSN builds a lib/pq compatible connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

// Load reads configuration solely from environment variables (with optional defaults).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MustLoad wraps Load and panics on failure.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.frontend_base_url", "http://localhost:5173")
	v.SetDefault("api.require_verified_login", true)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "hirehub")
	v.SetDefault("database.user", "hirehub")
	v.SetDefault("database.password", "hirehub")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.public_endpoint", "http://localhost:9000")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", "hirehub")
	v.SetDefault("minio.bucket_lookup", "auto")
	v.SetDefault("minio.auto_create_bucket", true)
	v.SetDefault("jwt.private_key_path", "keys/jwt_private.pem")
	v.SetDefault("jwt.public_key_path", "keys/jwt_public.pem")
	v.SetDefault("jwt.access_ttl", 15*time.Minute)
	v.SetDefault("jwt.refresh_ttl", 7*24*time.Hour)
	v.SetDefault("mail.host", "localhost")
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.from", "HireHub <no-reply@hirehub.local>")
	v.SetDefault("mail.tls", true)
	v.SetDefault("limits.login_rate_per_hour", 10)
	v.SetDefault("limits.login_lock_threshold", 5)
	v.SetDefault("limits.login_lock_ttl", 15*time.Minute)
	v.SetDefault("limits.upload_max_bytes", 5*1024*1024)
	v.SetDefault("limits.chat_events_per_sec", 5.0)
	v.SetDefault("worker.concurrency", 10)
	v.SetDefault("worker.purge_cron", "@every 10m")
	v.SetDefault("worker.metrics_port", 9091)
}

func bindEnv(v *viper.Viper) error {
	mappings := map[string]string{
		"api.port":                    "API_PORT",
		"api.cookie_domain":           "API_COOKIE_DOMAIN",
		"api.allowed_origins":         "API_ALLOWED_ORIGINS",
		"api.frontend_base_url":       "FRONTEND_BASE_URL",
		"api.require_verified_login":  "API_REQUIRE_VERIFIED_LOGIN",
		"api.metrics_secret":          "METRICS_SECRET",
		"database.host":               "DATABASE_HOST",
		"database.port":               "DATABASE_PORT",
		"database.name":               "POSTGRES_DB",
		"database.user":               "POSTGRES_USER",
		"database.password":           "POSTGRES_PASSWORD",
		"database.sslmode":            "DATABASE_SSLMODE",
		"redis.host":                  "REDIS_HOST",
		"redis.port":                  "REDIS_PORT",
		"minio.endpoint":              "MINIO_ENDPOINT",
		"minio.public_endpoint":       "MINIO_PUBLIC_ENDPOINT",
		"minio.access_key_id":         "MINIO_ACCESS_KEY_ID",
		"minio.secret_access_key":     "MINIO_SECRET_ACCESS_KEY",
		"minio.use_ssl":               "MINIO_USE_SSL",
		"minio.bucket":                "MINIO_BUCKET",
		"minio.region":                "MINIO_REGION",
		"minio.bucket_lookup":         "MINIO_BUCKET_LOOKUP",
		"minio.auto_create_bucket":    "MINIO_AUTO_CREATE_BUCKET",
		"jwt.private_key_path":        "JWT_PRIVATE_KEY_PATH",
		"jwt.public_key_path":         "JWT_PUBLIC_KEY_PATH",
		"jwt.access_ttl":              "JWT_ACCESS_TTL",
		"jwt.refresh_ttl":             "JWT_REFRESH_TTL",
		"mail.host":                   "SMTP_HOST",
		"mail.port":                   "SMTP_PORT",
		"mail.username":               "SMTP_USERNAME",
		"mail.password":               "SMTP_PASSWORD",
		"mail.from":                   "MAIL_FROM",
		"mail.tls":                    "SMTP_TLS",
		"clamd.addr":                  "CLAMD_ADDR",
		"limits.login_rate_per_hour":  "LOGIN_RATE_PER_HOUR",
		"limits.login_lock_threshold": "LOGIN_LOCK_THRESHOLD",
		"limits.login_lock_ttl":       "LOGIN_LOCK_TTL",
		"limits.upload_max_bytes":     "UPLOAD_MAX_BYTES",
		"limits.chat_events_per_sec":  "CHAT_EVENTS_PER_SEC",
		"worker.concurrency":          "WORKER_CONCURRENCY",
		"worker.purge_cron":           "WORKER_PURGE_CRON",
		"worker.metrics_port":         "WORKER_METRICS_PORT",
	}

	for key, env := range mappings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	return nil
}

func validate(cfg Config) error {
	if cfg.API.Port <= 0 {
		return errors.New("api port must be positive")
	}
	if cfg.Database.Host == "" {
		return errors.New("database host is required")
	}
	if cfg.Database.Port <= 0 {
		return errors.New("database port must be positive")
	}
	if cfg.Database.Name == "" {
		return errors.New("database name is required")
	}
	if cfg.Database.User == "" {
		return errors.New("database user is required")
	}
	if cfg.Database.Password == "" {
		return errors.New("database password is required")
	}
	if cfg.Database.SSLMode == "" {
		return errors.New("database sslmode is required")
	}
	if cfg.Redis.Host == "" {
		return errors.New("redis host is required")
	}
	if cfg.Redis.Port <= 0 {
		return errors.New("redis port must be positive")
	}
	if cfg.MinIO.Endpoint == "" {
		return errors.New("minio endpoint is required")
	}
	if cfg.MinIO.AccessKeyID == "" {
		return errors.New("minio access key id is required")
	}
	if cfg.MinIO.SecretAccessKey == "" {
		return errors.New("minio secret access key is required")
	}
	if cfg.MinIO.Bucket == "" {
		return errors.New("minio bucket is required")
	}
	if cfg.JWT.AccessTTL <= 0 || cfg.JWT.RefreshTTL <= 0 {
		return errors.New("jwt ttl must be positive")
	}
	if cfg.Mail.Port <= 0 {
		return errors.New("mail port must be positive")
	}
	if cfg.Limits.UploadMaxBytes <= 0 {
		return errors.New("upload max bytes must be positive")
	}
	if cfg.Limits.ChatEventsPerSec <= 0 {
		return errors.New("chat events per second must be positive")
	}
	if cfg.Worker.Concurrency <= 0 {
		return errors.New("worker concurrency must be positive")
	}
	return nil
}
