package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		ENV     string `yaml:"env"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"app"`

	Log struct {
		Level     string `yaml:"level"`
		Format    string `yaml:"format"`
		Component string `yaml:"component"`
		Source    bool   `yaml:"source"`
	} `yaml:"log"`

	DB struct {
		Driver   string `yaml:"driver"`
		DSN      string `yaml:"dsn"`
		Host     string `yaml:"host"`
		Port     string `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		LogSQL   bool   `yaml:"log_sql"`
	} `yaml:"db"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	GRPC struct {
		Host string `yaml:"host"`
		Port string `yaml:"port"`
	} `yaml:"grpc"`

	HTTP struct {
		Addr           string        `yaml:"addr"`
		RequestTimeout time.Duration `yaml:"request_timeout"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
	} `yaml:"http"`

	Auth struct {
		JWTSecret      string        `yaml:"jwt_secret"`
		Issuer         string        `yaml:"issuer"`
		AccessTTL      time.Duration `yaml:"access_ttl"`
		VerifyEmailTTL time.Duration `yaml:"verify_email_ttl"`
		LoginAttempts  int           `yaml:"login_attempts"`
		LoginWindow    time.Duration `yaml:"login_window"`
	} `yaml:"auth"`

	Firebase struct {
		ProjectID         string `yaml:"project_id"`
		CredentialsFile   string `yaml:"credentials_file"`
		CredentialsBase64 string `yaml:"credentials_base64"`
	} `yaml:"firebase"`

	Storage struct {
		Driver        string        `yaml:"driver"`
		Bucket        string        `yaml:"bucket"`
		PrivateBucket string        `yaml:"private_bucket"`
		PublicBaseURL string        `yaml:"public_base_url"`
		Endpoint      string        `yaml:"endpoint"`
		AccessKey     string        `yaml:"access_key"`
		SecretKey     string        `yaml:"secret_key"`
		UseSSL        bool          `yaml:"use_ssl"`
		SignedURLTTL  time.Duration `yaml:"signed_url_ttl"`
	} `yaml:"storage"`

	AMQP struct {
		URL          string        `yaml:"url"`
		Queue        string        `yaml:"queue"`
		MaxAttempts  int           `yaml:"max_attempts"`
		RetryBackoff time.Duration `yaml:"retry_backoff"`
		Prefetch     int           `yaml:"prefetch"`
		Workers      int           `yaml:"workers"`
		InlineWorker int           `yaml:"inline_workers"`
	} `yaml:"amqp"`

	SMTP struct {
		Host     string `yaml:"host"`
		Port     string `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		From     string `yaml:"from"`
	} `yaml:"smtp"`

	Payments struct {
		WebhookSecret string        `yaml:"webhook_secret"`
		Tolerance     time.Duration `yaml:"tolerance"`
	} `yaml:"payments"`

	Quota struct {
		FreeDailyLikes      int    `yaml:"free_daily_likes"`
		FreeDailySuperLikes int    `yaml:"free_daily_super_likes"`
		Timezone            string `yaml:"timezone"`
	} `yaml:"quota"`

	Discovery struct {
		CacheTTL     time.Duration `yaml:"cache_ttl"`
		PassCooldown time.Duration `yaml:"pass_cooldown"`
		MaxScan      int           `yaml:"max_scan"`
		DefaultLimit int           `yaml:"default_limit"`
		MaxLimit     int           `yaml:"max_limit"`
	} `yaml:"discovery"`

	OTel struct {
		Enabled     bool    `yaml:"enabled"`
		ServiceName string  `yaml:"service_name"`
		Endpoint    string  `yaml:"endpoint"`
		SampleRatio float64 `yaml:"sample_ratio"`
	} `yaml:"otel"`
}

// New builds the configuration: .env (optional), then CONFIG_FILE yaml (optional),
// then environment variables, which always win.
func New() *Config {
	_ = godotenv.Load()

	cfg := Default()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := cfg.loadYAML(path); err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
		}
	}
	cfg.applyEnv()
	return cfg
}

// Default returns a config with every field set to its development default.
func Default() *Config {
	cfg := &Config{}

	cfg.App.ENV = "development"
	cfg.App.BaseURL = "http://localhost:8080"

	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	cfg.Log.Component = "api"

	cfg.DB.Driver = "mysql"
	cfg.DB.Host = "localhost"
	cfg.DB.Port = "3306"
	cfg.DB.User = "root"
	cfg.DB.Password = "root"
	cfg.DB.Name = "amora"

	cfg.Redis.Addr = "localhost:6379"

	cfg.GRPC.Host = "127.0.0.1"
	cfg.GRPC.Port = "50051"

	cfg.HTTP.Addr = ":8080"
	cfg.HTTP.RequestTimeout = 30 * time.Second
	cfg.HTTP.AllowedOrigins = []string{"*"}

	cfg.Auth.JWTSecret = "dev-secret-change-me"
	cfg.Auth.Issuer = "amora"
	cfg.Auth.AccessTTL = 24 * time.Hour
	cfg.Auth.VerifyEmailTTL = 48 * time.Hour
	cfg.Auth.LoginAttempts = 10
	cfg.Auth.LoginWindow = 15 * time.Minute

	cfg.Storage.SignedURLTTL = 15 * time.Minute

	cfg.AMQP.Queue = "notifications.dispatch"
	cfg.AMQP.MaxAttempts = 5
	cfg.AMQP.RetryBackoff = 2 * time.Second
	cfg.AMQP.Prefetch = 50
	cfg.AMQP.Workers = 8
	cfg.AMQP.InlineWorker = 4

	cfg.SMTP.Port = "587"
	cfg.SMTP.From = "no-reply@amora.app"

	cfg.Payments.Tolerance = 5 * time.Minute

	cfg.Quota.FreeDailyLikes = 35
	cfg.Quota.FreeDailySuperLikes = 1
	cfg.Quota.Timezone = "UTC"

	cfg.Discovery.CacheTTL = 30 * time.Second
	cfg.Discovery.PassCooldown = 720 * time.Hour
	cfg.Discovery.MaxScan = 1000
	cfg.Discovery.DefaultLimit = 20
	cfg.Discovery.MaxLimit = 100

	cfg.OTel.ServiceName = "amora"
	cfg.OTel.SampleRatio = 1

	return cfg
}

func (c *Config) loadYAML(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.App.ENV = getEnvDefault("ENV", c.App.ENV)
	c.App.BaseURL = getEnvDefault("APP_BASE_URL", c.App.BaseURL)

	// Logger
	c.Log.Level = getEnvDefault("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnvDefault("LOG_FORMAT", c.Log.Format)
	c.Log.Component = getEnvDefault("LOG_COMPONENT", c.Log.Component)
	c.Log.Source = boolEnv("LOG_SOURCE", c.Log.Source)

	// Database
	c.DB.Driver = strings.ToLower(getEnvDefault("DB_DRIVER", c.DB.Driver))
	c.DB.Host = getEnvDefault("DB_HOST", c.DB.Host)
	c.DB.Port = getEnvDefault("DB_PORT", c.DB.Port)
	c.DB.User = getEnvDefault("DB_USER", c.DB.User)
	c.DB.Password = getEnvDefault("DB_PASSWORD", c.DB.Password)
	c.DB.Name = getEnvDefault("DB_NAME", c.DB.Name)
	c.DB.LogSQL = boolEnv("DB_LOG_SQL", c.DB.LogSQL)
	c.DB.DSN = getEnvDefault("DB_DSN", getEnvDefault("MYSQL_DSN", c.DB.DSN))
	if c.DB.DSN == "" {
		c.DB.DSN = c.buildDSN()
	}

	// Redis
	c.Redis.Addr = getEnvDefault("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnvDefault("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = intEnv("REDIS_DB", c.Redis.DB)

	// gRPC
	c.GRPC.Host = getEnvDefault("GRPC_HOST", c.GRPC.Host)
	c.GRPC.Port = getEnvDefault("GRPC_PORT", c.GRPC.Port)

	// HTTP
	c.HTTP.Addr = getEnvDefault("HTTP_ADDR", c.HTTP.Addr)
	c.HTTP.RequestTimeout = durationEnv("HTTP_REQUEST_TIMEOUT", c.HTTP.RequestTimeout)
	if v := getEnvDefault("HTTP_ALLOWED_ORIGINS", ""); v != "" {
		c.HTTP.AllowedOrigins = splitList(v)
	}

	// Auth
	c.Auth.JWTSecret = getEnvDefault("JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.Issuer = getEnvDefault("JWT_ISSUER", c.Auth.Issuer)
	c.Auth.AccessTTL = durationEnv("JWT_ACCESS_TTL", c.Auth.AccessTTL)
	c.Auth.VerifyEmailTTL = durationEnv("VERIFY_EMAIL_TTL", c.Auth.VerifyEmailTTL)
	c.Auth.LoginAttempts = intEnv("LOGIN_MAX_ATTEMPTS", c.Auth.LoginAttempts)
	c.Auth.LoginWindow = durationEnv("LOGIN_WINDOW", c.Auth.LoginWindow)

	// Firebase
	c.Firebase.ProjectID = getEnvDefault("FIREBASE_PROJECT_ID", c.Firebase.ProjectID)
	c.Firebase.CredentialsFile = getEnvDefault("GOOGLE_APPLICATION_CREDENTIALS", c.Firebase.CredentialsFile)
	c.Firebase.CredentialsBase64 = getEnvDefault("FIREBASE_SERVICE_ACCOUNT_JSON_BASE64", c.Firebase.CredentialsBase64)

	// Storage
	c.Storage.Driver = strings.ToLower(getEnvDefault("STORAGE_DRIVER", c.Storage.Driver))
	c.Storage.Bucket = getEnvDefault("STORAGE_BUCKET", c.Storage.Bucket)
	c.Storage.PrivateBucket = getEnvDefault("STORAGE_PRIVATE_BUCKET", c.Storage.PrivateBucket)
	c.Storage.PublicBaseURL = getEnvDefault("STORAGE_PUBLIC_BASE_URL", c.Storage.PublicBaseURL)
	c.Storage.Endpoint = getEnvDefault("S3_ENDPOINT", c.Storage.Endpoint)
	c.Storage.AccessKey = getEnvDefault("S3_ACCESS_KEY", c.Storage.AccessKey)
	c.Storage.SecretKey = getEnvDefault("S3_SECRET_KEY", c.Storage.SecretKey)
	c.Storage.UseSSL = boolEnv("S3_USE_SSL", c.Storage.UseSSL)
	c.Storage.SignedURLTTL = durationEnv("STORAGE_SIGNED_URL_TTL", c.Storage.SignedURLTTL)

	// AMQP
	c.AMQP.URL = getEnvDefault("AMQP_URL", getEnvDefault("RABBITMQ_URL", c.AMQP.URL))
	c.AMQP.Queue = getEnvDefault("AMQP_QUEUE", c.AMQP.Queue)
	c.AMQP.MaxAttempts = intEnv("AMQP_MAX_ATTEMPTS", c.AMQP.MaxAttempts)
	c.AMQP.RetryBackoff = durationEnv("AMQP_RETRY_BACKOFF", c.AMQP.RetryBackoff)
	c.AMQP.Prefetch = intEnv("AMQP_PREFETCH", c.AMQP.Prefetch)
	c.AMQP.Workers = intEnv("AMQP_WORKERS", c.AMQP.Workers)
	c.AMQP.InlineWorker = intEnv("DISPATCH_INLINE_WORKERS", c.AMQP.InlineWorker)

	// SMTP
	c.SMTP.Host = getEnvDefault("SMTP_HOST", c.SMTP.Host)
	c.SMTP.Port = getEnvDefault("SMTP_PORT", c.SMTP.Port)
	c.SMTP.User = getEnvDefault("SMTP_USER", c.SMTP.User)
	c.SMTP.Password = getEnvDefault("SMTP_PASSWORD", c.SMTP.Password)
	c.SMTP.From = getEnvDefault("SMTP_FROM", c.SMTP.From)

	// Payments
	c.Payments.WebhookSecret = getEnvDefault("PAYMENT_WEBHOOK_SECRET", c.Payments.WebhookSecret)
	c.Payments.Tolerance = durationEnv("PAYMENT_WEBHOOK_TOLERANCE", c.Payments.Tolerance)

	// Quotas
	c.Quota.FreeDailyLikes = intEnv("FREE_DAILY_LIKES", c.Quota.FreeDailyLikes)
	c.Quota.FreeDailySuperLikes = intEnv("FREE_DAILY_SUPER_LIKES", c.Quota.FreeDailySuperLikes)
	c.Quota.Timezone = getEnvDefault("QUOTA_TIMEZONE", c.Quota.Timezone)

	// Discovery
	c.Discovery.CacheTTL = durationEnv("DISCOVERY_CACHE_TTL", c.Discovery.CacheTTL)
	c.Discovery.PassCooldown = durationEnv("DISCOVERY_PASS_COOLDOWN", c.Discovery.PassCooldown)
	c.Discovery.MaxScan = intEnv("DISCOVERY_MAX_SCAN", c.Discovery.MaxScan)

	// Tracing
	c.OTel.Enabled = boolEnv("OTEL_ENABLED", c.OTel.Enabled)
	c.OTel.ServiceName = getEnvDefault("OTEL_SERVICE_NAME", c.OTel.ServiceName)
	c.OTel.Endpoint = getEnvDefault("OTEL_EXPORTER_OTLP_ENDPOINT", c.OTel.Endpoint)
	if v := getEnvDefault("OTEL_SAMPLE_RATIO", ""); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.OTel.SampleRatio = f
		}
	}
}

// buildDSN assembles a DSN for the configured driver from DB_* parts.
func (c *Config) buildDSN() string {
	switch c.DB.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
			c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Name,
		)
	case "sqlite":
		return c.DB.Name + ".db"
	default:
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
			c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name,
		)
	}
}

func getEnvDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func boolEnv(k string, def bool) bool {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return isTruthy(v)
	}
	return def
}

func intEnv(k string, def int) int {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func durationEnv(k string, def time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}
