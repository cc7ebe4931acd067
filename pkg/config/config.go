package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Settlement   SettlementConfig
	Cron         CronConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MEDSTOCK_APP_ENV" required:"true"`
	Port         string `envconfig:"MEDSTOCK_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MEDSTOCK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MEDSTOCK_LOG_WARN_STACK" default:"false"`

	CORSAllowedOrigins []string `envconfig:"MEDSTOCK_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MEDSTOCK_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"MEDSTOCK_DB_DSN"`
	Driver string `envconfig:"MEDSTOCK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MEDSTOCK_DB_HOST"`
	LegacyPort     int    `envconfig:"MEDSTOCK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MEDSTOCK_DB_USER"`
	LegacyPassword string `envconfig:"MEDSTOCK_DB_PASSWORD"`
	LegacyName     string `envconfig:"MEDSTOCK_DB_NAME"`
	LegacySSLMode  string `envconfig:"MEDSTOCK_DB_SSLMODE" default:"disable"`

	MaxOpenConns     int           `envconfig:"MEDSTOCK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns     int           `envconfig:"MEDSTOCK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime  time.Duration `envconfig:"MEDSTOCK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime  time.Duration `envconfig:"MEDSTOCK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	StatementTimeout time.Duration `envconfig:"MEDSTOCK_DB_STATEMENT_TIMEOUT" default:"8s"`
	SlowQuery        time.Duration `envconfig:"MEDSTOCK_DB_SLOW_QUERY" default:"250ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MEDSTOCK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MEDSTOCK_REDIS_ADDR"`
	Password     string        `envconfig:"MEDSTOCK_REDIS_PASSWORD"`
	DB           int           `envconfig:"MEDSTOCK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MEDSTOCK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MEDSTOCK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MEDSTOCK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MEDSTOCK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MEDSTOCK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"MEDSTOCK_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"MEDSTOCK_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"MEDSTOCK_JWT_EXPIRATION_MINUTES" required:"true"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"MEDSTOCK_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"MEDSTOCK_EVENTING_IDEMPOTENCY_TTL" default:"24h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"MEDSTOCK_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	DomainTopic        string `envconfig:"MEDSTOCK_PUBSUB_DOMAIN_TOPIC" default:"medstock-domain-events"`
	DomainSubscription string `envconfig:"MEDSTOCK_PUBSUB_DOMAIN_SUBSCRIPTION"`
	// TopicOverrides routes single event types elsewhere, as
	// "points.charged:points-events,points.refunded:points-events".
	TopicOverrides map[string]string `envconfig:"MEDSTOCK_PUBSUB_TOPIC_OVERRIDES"`
}

// Topics lists the domain topic plus every distinct override target.
func (c PubSubConfig) Topics() []string {
	topics := []string{c.DomainTopic}
	seen := map[string]bool{c.DomainTopic: true}
	keys := make([]string, 0, len(c.TopicOverrides))
	for k := range c.TopicOverrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if t := c.TopicOverrides[k]; t != "" && !seen[t] {
			seen[t] = true
			topics = append(topics, t)
		}
	}
	return topics
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"MEDSTOCK_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"MEDSTOCK_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"MEDSTOCK_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// SettlementConfig tunes the approval workflow.
type SettlementConfig struct {
	// Strict makes the purchase order and the report succeed or fail together.
	Strict        bool   `envconfig:"MEDSTOCK_SETTLEMENT_STRICT" default:"true"`
	TxMaxAttempts int    `envconfig:"MEDSTOCK_SETTLEMENT_TX_MAX_ATTEMPTS" default:"3"`
	ReportPrefix  string `envconfig:"MEDSTOCK_SETTLEMENT_REPORT_PREFIX" default:"SAR"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"MEDSTOCK_CRON_INTERVAL" default:"1h"`
	LockTTL  time.Duration `envconfig:"MEDSTOCK_CRON_LOCK_TTL" default:"55m"`

	OutboxRetention      time.Duration `envconfig:"MEDSTOCK_CRON_OUTBOX_RETENTION" default:"720h"`
	OutboxRetentionBatch int           `envconfig:"MEDSTOCK_CRON_OUTBOX_RETENTION_BATCH" default:"500"`
}

// RateLimitConfig throttles the authenticated API routes.
type RateLimitConfig struct {
	Window    time.Duration `envconfig:"MEDSTOCK_RATE_LIMIT_WINDOW" default:"1m"`
	IPLimit   int           `envconfig:"MEDSTOCK_RATE_LIMIT_IP" default:"120"`
	UserLimit int           `envconfig:"MEDSTOCK_RATE_LIMIT_USER" default:"60"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
