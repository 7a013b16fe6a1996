package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

// Config holds all application configuration.
type Config struct {
	LogLevel        string `env:"LOG_LEVEL" envDefault:"info"`
	APIServerAddr   string `env:"API_SERVER_ADDR" envDefault:":8080"`
	AdminServerAddr string `env:"ADMIN_SERVER_ADDR" envDefault:":9091"`

	PostgresURL    string        `env:"POSTGRES_URL,required,notEmpty"`
	RedisAddr      string        `env:"REDIS_ADDR,required,notEmpty"`
	RedisDLQStream string        `env:"REDIS_DLQ_STREAM" envDefault:"leads_dlq"`
	StoreTimeout   time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`

	JWTSecret string `env:"JWT_SECRET,required,notEmpty"`
	JWTIssuer string `env:"JWT_ISSUER"`

	// PublicBaseURL overrides the scheme://host[:port] used in webhook URLs.
	PublicBaseURL    string `env:"PUBLIC_BASE_URL"`
	CredentialLength int    `env:"CREDENTIAL_LENGTH" envDefault:"20"`

	WebhookVerifyKey   bool    `env:"WEBHOOK_VERIFY_KEY" envDefault:"true"`
	MaxWebhookBodySize int64   `env:"MAX_WEBHOOK_BODY_BYTES" envDefault:"65536"`
	WebhookRateLimit   float64 `env:"WEBHOOK_RATE_LIMIT" envDefault:"50"`
	WebhookRateBurst   int     `env:"WEBHOOK_RATE_BURST" envDefault:"100"`

	WALPath        string `env:"WAL_PATH" envDefault:"./data/wal"`
	WALSegmentSize int64  `env:"WAL_SEGMENT_SIZE_BYTES" envDefault:"16777216"`   // 16MB
	WALMaxDiskSize int64  `env:"WAL_MAX_DISK_SIZE_BYTES" envDefault:"268435456"` // 256MB

	// Lead notifications go to Kafka when brokers are set and to the log otherwise.
	NotifyKafkaBrokers []string `env:"NOTIFY_KAFKA_BROKERS" envSeparator:","`
	NotifyKafkaTopic   string   `env:"NOTIFY_KAFKA_TOPIC" envDefault:"lead-notifications"`

	PIIRedactionFields []string `env:"PII_REDACTION_FIELDS" envSeparator:"," envDefault:"FULL_NAME,FIRST_NAME,LAST_NAME,EMAIL,PHONE_NUMBER,STREET_ADDRESS,POSTAL_CODE"`

	SinkBatchSize    int           `env:"SINK_BATCH_SIZE" envDefault:"500"`
	SinkRetryCount   int           `env:"SINK_RETRY_COUNT" envDefault:"3"`
	SinkRetryBackoff time.Duration `env:"SINK_RETRY_BACKOFF" envDefault:"1s"`
	ConsumerInterval time.Duration `env:"CONSUMER_INTERVAL" envDefault:"1s"`
	// ConsumerMetricsAddr is where the consumer serves /metrics. Empty disables it.
	ConsumerMetricsAddr string `env:"CONSUMER_METRICS_ADDR" envDefault:":9092"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks values env tags cannot express.
func (c *Config) Validate() error {
	var errs []error
	if c.CredentialLength < 16 {
		errs = append(errs, fmt.Errorf("CREDENTIAL_LENGTH must be at least 16, got %d", c.CredentialLength))
	}
	if c.StoreTimeout <= 0 {
		errs = append(errs, errors.New("STORE_TIMEOUT must be positive"))
	}
	if c.MaxWebhookBodySize <= 0 {
		errs = append(errs, errors.New("MAX_WEBHOOK_BODY_BYTES must be positive"))
	}
	if c.WebhookRateLimit <= 0 || c.WebhookRateBurst <= 0 {
		errs = append(errs, errors.New("WEBHOOK_RATE_LIMIT and WEBHOOK_RATE_BURST must be positive"))
	}
	if c.SinkBatchSize <= 0 || c.SinkRetryCount <= 0 {
		errs = append(errs, errors.New("SINK_BATCH_SIZE and SINK_RETRY_COUNT must be positive"))
	}
	if c.PublicBaseURL != "" {
		u, err := url.Parse(c.PublicBaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PUBLIC_BASE_URL %q must be an absolute URL", c.PublicBaseURL))
		}
	}
	return errors.Join(errs...)
}

// RedisOptions turns REDIS_ADDR into client options. Both redis:// URLs and
// bare host:port addresses are accepted.
func (c *Config) RedisOptions() (*redis.Options, error) {
	if strings.Contains(c.RedisAddr, "://") {
		opts, err := redis.ParseURL(c.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_ADDR: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{Addr: c.RedisAddr}, nil
}
