// Package config loads service configuration from defaults, an optional YAML
// file and environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	HTTP          HTTPConfig          `yaml:"http"`
	Database      DatabaseConfig      `yaml:"database"`
	Log           LogConfig           `yaml:"log"`
	Auth          AuthConfig          `yaml:"auth"`
	Queue         QueueConfig         `yaml:"queue"`
	Directory     DirectoryConfig     `yaml:"directory"`
	Timeseries    TimeseriesConfig    `yaml:"timeseries"`
	Alerts        AlertsConfig        `yaml:"alerts"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Email         EmailConfig         `yaml:"email"`
	Realtime      RealtimeConfig      `yaml:"realtime"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type QueueConfig struct {
	Driver            string        `yaml:"driver"`
	Workers           int           `yaml:"workers"`
	InFlight          int           `yaml:"in_flight"`
	ProcessingTimeout time.Duration `yaml:"processing_timeout"`
	NATS              NATSConfig    `yaml:"nats"`
	Kafka             KafkaConfig   `yaml:"kafka"`
}

type NATSConfig struct {
	URL          string        `yaml:"url"`
	Stream       string        `yaml:"stream"`
	Subject      string        `yaml:"subject"`
	Durable      string        `yaml:"durable"`
	CreateStream bool          `yaml:"create_stream"`
	AckWait      time.Duration `yaml:"ack_wait"`
}

type KafkaConfig struct {
	Brokers string        `yaml:"brokers"`
	Topic   string        `yaml:"topic"`
	GroupID string        `yaml:"group_id"`
	MaxWait time.Duration `yaml:"max_wait"`
}

type DirectoryConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type TimeseriesConfig struct {
	Table         string        `yaml:"table"`
	Timeout       time.Duration `yaml:"timeout"`
	BatchSize     int           `yaml:"batch_size"`
	BufferSize    int           `yaml:"buffer_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	FlushTimeout  time.Duration `yaml:"flush_timeout"`
}

type AlertsConfig struct {
	RehydrateOnStart bool `yaml:"rehydrate_on_start"`
}

type NotificationsConfig struct {
	ExpiresAfter     time.Duration `yaml:"expires_after"`
	Priority         int           `yaml:"priority"`
	EmailTimeout     time.Duration `yaml:"email_timeout"`
	EmailConcurrency int           `yaml:"email_concurrency"`
	WebhookURL       string        `yaml:"webhook_url"`
	Template         string        `yaml:"template"`
	DedupeWindow     time.Duration `yaml:"dedupe_window"`
}

type EmailConfig struct {
	Provider string       `yaml:"provider"`
	Fallback []string     `yaml:"fallback"`
	From     string       `yaml:"from"`
	SMTP     SMTPConfig   `yaml:"smtp"`
	Resend   ResendConfig `yaml:"resend"`
	SES      SESConfig    `yaml:"ses"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

type ResendConfig struct {
	APIKey string `yaml:"api_key"`
}

type SESConfig struct {
	Region string `yaml:"region"`
}

type RealtimeConfig struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisChannel  string `yaml:"redis_channel"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		HTTP:     HTTPConfig{Addr: ":8080", ShutdownTimeout: 10 * time.Second},
		Database: DatabaseConfig{MaxOpenConns: 20},
		Log:      LogConfig{Level: "info", Format: "json"},
		Queue: QueueConfig{
			Driver:            "nats",
			Workers:           8,
			InFlight:          64,
			ProcessingTimeout: 10 * time.Second,
			NATS: NATSConfig{
				URL:     "nats://127.0.0.1:4222",
				Stream:  "READINGS",
				Subject: "readings.>",
				Durable: "signal-alerts",
				AckWait: 30 * time.Second,
			},
			Kafka: KafkaConfig{Topic: "readings", GroupID: "signal-alerts", MaxWait: time.Second},
		},
		Directory:  DirectoryConfig{CacheTTL: 5 * time.Minute},
		Timeseries: TimeseriesConfig{
			Table:         "signal_readings",
			Timeout:       2 * time.Second,
			BatchSize:     100,
			BufferSize:    1024,
			FlushInterval: time.Second,
			FlushTimeout:  5 * time.Second,
		},
		Alerts:     AlertsConfig{RehydrateOnStart: true},
		Notifications: NotificationsConfig{
			ExpiresAfter:     24 * time.Hour,
			Priority:         1,
			EmailTimeout:     10 * time.Second,
			EmailConcurrency: 4,
		},
		Email: EmailConfig{
			Provider: "smtp",
			From:     "alerts@signal-alerts.local",
			SMTP:     SMTPConfig{Port: 587},
			SES:      SESConfig{Region: "us-east-1"},
		},
		Realtime: RealtimeConfig{RedisChannel: "signal-alerts:notifications"},
	}
}

// Load reads .env files, the YAML file named by ALERTS_CONFIG, then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if path := os.Getenv("ALERTS_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.HTTP.Addr = getenvDefault("HTTP_ADDR", cfg.HTTP.Addr)
	cfg.HTTP.ShutdownTimeout = getenvDuration("HTTP_SHUTDOWN_TIMEOUT", cfg.HTTP.ShutdownTimeout)

	cfg.Database.URL = getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", cfg.Database.URL))
	cfg.Database.MaxOpenConns = getenvIntDefault("DATABASE_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns)

	cfg.Log.Level = getenvDefault("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getenvDefault("LOG_FORMAT", cfg.Log.Format)

	cfg.Auth.JWTSecret = getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", cfg.Auth.JWTSecret))

	cfg.Queue.Driver = getenvDefault("QUEUE_DRIVER", cfg.Queue.Driver)
	cfg.Queue.Workers = getenvIntDefault("QUEUE_WORKERS", cfg.Queue.Workers)
	cfg.Queue.InFlight = getenvIntDefault("QUEUE_IN_FLIGHT", cfg.Queue.InFlight)
	cfg.Queue.ProcessingTimeout = getenvDuration("QUEUE_PROCESSING_TIMEOUT", cfg.Queue.ProcessingTimeout)
	cfg.Queue.NATS.URL = getenvDefault("NATS_URL", cfg.Queue.NATS.URL)
	cfg.Queue.NATS.Stream = getenvDefault("NATS_STREAM", cfg.Queue.NATS.Stream)
	cfg.Queue.NATS.Subject = getenvDefault("NATS_SUBJECT", cfg.Queue.NATS.Subject)
	cfg.Queue.NATS.Durable = getenvDefault("NATS_DURABLE", cfg.Queue.NATS.Durable)
	cfg.Queue.NATS.CreateStream = getenvBool("NATS_CREATE_STREAM", cfg.Queue.NATS.CreateStream)
	cfg.Queue.NATS.AckWait = getenvDuration("NATS_ACK_WAIT", cfg.Queue.NATS.AckWait)
	cfg.Queue.Kafka.Brokers = getenvDefault("KAFKA_BROKERS", cfg.Queue.Kafka.Brokers)
	cfg.Queue.Kafka.Topic = getenvDefault("KAFKA_TOPIC", cfg.Queue.Kafka.Topic)
	cfg.Queue.Kafka.GroupID = getenvDefault("KAFKA_GROUP_ID", cfg.Queue.Kafka.GroupID)

	cfg.Directory.CacheTTL = getenvDuration("DIRECTORY_CACHE_TTL", cfg.Directory.CacheTTL)
	cfg.Timeseries.Table = getenvDefault("TIMESERIES_TABLE", cfg.Timeseries.Table)
	cfg.Timeseries.Timeout = getenvDuration("TIMESERIES_TIMEOUT", cfg.Timeseries.Timeout)
	cfg.Timeseries.BatchSize = getenvIntDefault("TIMESERIES_BATCH_SIZE", cfg.Timeseries.BatchSize)
	cfg.Timeseries.BufferSize = getenvIntDefault("TIMESERIES_BUFFER_SIZE", cfg.Timeseries.BufferSize)
	cfg.Timeseries.FlushInterval = getenvDuration("TIMESERIES_FLUSH_INTERVAL", cfg.Timeseries.FlushInterval)
	cfg.Timeseries.FlushTimeout = getenvDuration("TIMESERIES_FLUSH_TIMEOUT", cfg.Timeseries.FlushTimeout)
	cfg.Alerts.RehydrateOnStart = getenvBool("ALERTS_REHYDRATE_ON_START", cfg.Alerts.RehydrateOnStart)

	cfg.Notifications.ExpiresAfter = getenvDuration("NOTIFICATIONS_EXPIRES_AFTER", cfg.Notifications.ExpiresAfter)
	cfg.Notifications.Priority = getenvIntDefault("NOTIFICATIONS_PRIORITY", cfg.Notifications.Priority)
	cfg.Notifications.EmailTimeout = getenvDuration("NOTIFICATIONS_EMAIL_TIMEOUT", cfg.Notifications.EmailTimeout)
	cfg.Notifications.EmailConcurrency = getenvIntDefault("NOTIFICATIONS_EMAIL_CONCURRENCY", cfg.Notifications.EmailConcurrency)
	cfg.Notifications.WebhookURL = getenvDefault("NOTIFICATIONS_WEBHOOK_URL", cfg.Notifications.WebhookURL)
	cfg.Notifications.DedupeWindow = getenvDuration("NOTIFICATIONS_DEDUPE_WINDOW", cfg.Notifications.DedupeWindow)

	cfg.Email.Provider = getenvDefault("EMAIL_PROVIDER", cfg.Email.Provider)
	if fallback := splitCSV(os.Getenv("EMAIL_FALLBACK")); len(fallback) > 0 {
		cfg.Email.Fallback = fallback
	}
	cfg.Email.From = getenvDefault("EMAIL_FROM", cfg.Email.From)
	cfg.Email.SMTP.Host = getenvDefault("SMTP_HOST", cfg.Email.SMTP.Host)
	cfg.Email.SMTP.Port = getenvIntDefault("SMTP_PORT", cfg.Email.SMTP.Port)
	cfg.Email.SMTP.User = getenvDefault("SMTP_USER", cfg.Email.SMTP.User)
	cfg.Email.SMTP.Password = getenvDefault("SMTP_PASSWORD", cfg.Email.SMTP.Password)
	cfg.Email.Resend.APIKey = getenvDefault("RESEND_API_KEY", cfg.Email.Resend.APIKey)
	cfg.Email.SES.Region = getenvDefault("AWS_REGION", cfg.Email.SES.Region)

	cfg.Realtime.RedisAddr = getenvDefault("REDIS_ADDR", cfg.Realtime.RedisAddr)
	cfg.Realtime.RedisPassword = getenvDefault("REDIS_PASSWORD", cfg.Realtime.RedisPassword)
	cfg.Realtime.RedisChannel = getenvDefault("REDIS_CHANNEL", cfg.Realtime.RedisChannel)
}

// Validate reports the first missing or inconsistent setting.
func (c Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("config: DATABASE_URL or PG_DSN is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("config: AUTH_JWT_SECRET is required")
	}
	switch c.Queue.Driver {
	case "nats":
		if c.Queue.NATS.URL == "" || c.Queue.NATS.Stream == "" || c.Queue.NATS.Durable == "" {
			return errors.New("config: nats url, stream and durable are required")
		}
	case "kafka":
		if c.Queue.Kafka.Brokers == "" || c.Queue.Kafka.Topic == "" || c.Queue.Kafka.GroupID == "" {
			return errors.New("config: kafka brokers, topic and group_id are required")
		}
	default:
		return fmt.Errorf("config: unknown queue driver %q", c.Queue.Driver)
	}
	if c.Queue.Workers <= 0 || c.Queue.InFlight <= 0 {
		return errors.New("config: queue workers and in_flight must be positive")
	}
	if c.Queue.ProcessingTimeout <= 0 {
		return errors.New("config: queue processing_timeout must be positive")
	}
	// Each worker pins one connection for its unit of work; notification
	// persistence needs another from the same pool. Zero means unlimited.
	if c.Database.MaxOpenConns > 0 && c.Database.MaxOpenConns <= c.Queue.Workers {
		return fmt.Errorf("config: database max_open_conns (%d) must exceed queue workers (%d)",
			c.Database.MaxOpenConns, c.Queue.Workers)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Log.Level)
	}
	return nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	var result []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
