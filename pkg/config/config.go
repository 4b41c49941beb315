package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
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
	Env          string `envconfig:"USERMAIL_APP_ENV" required:"true"`
	Port         string `envconfig:"USERMAIL_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"USERMAIL_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"USERMAIL_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"USERMAIL_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"USERMAIL_DB_DSN"`
	Driver string `envconfig:"USERMAIL_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"USERMAIL_DB_HOST"`
	LegacyPort     int    `envconfig:"USERMAIL_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"USERMAIL_DB_USER"`
	LegacyPassword string `envconfig:"USERMAIL_DB_PASSWORD"`
	LegacyName     string `envconfig:"USERMAIL_DB_NAME"`
	LegacySSLMode  string `envconfig:"USERMAIL_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"USERMAIL_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"USERMAIL_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"USERMAIL_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"USERMAIL_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"USERMAIL_REDIS_URL" required:"true"`
	Address      string        `envconfig:"USERMAIL_REDIS_ADDR"`
	Password     string        `envconfig:"USERMAIL_REDIS_PASSWORD"`
	DB           int           `envconfig:"USERMAIL_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"USERMAIL_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"USERMAIL_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"USERMAIL_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"USERMAIL_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"USERMAIL_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type RateLimitConfig struct {
	RegisterWindow     time.Duration `envconfig:"USERMAIL_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"USERMAIL_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"USERMAIL_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"USERMAIL_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"USERMAIL_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"USERMAIL_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"USERMAIL_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	EmailTopic        string `envconfig:"USERMAIL_PUBSUB_EMAIL_TOPIC" default:"usermail-email-events"`
	EmailSubscription string `envconfig:"USERMAIL_PUBSUB_EMAIL_SUBSCRIPTION" required:"true"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"USERMAIL_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"USERMAIL_OUTBOX_PUBLISH_POLL_MS" default:"1000"`
	MaxAttempts    int `envconfig:"USERMAIL_OUTBOX_MAX_ATTEMPTS" default:"3"`
	LeaseSeconds   int `envconfig:"USERMAIL_OUTBOX_CLAIM_LEASE_SECONDS" default:"60"`
	RetentionDays  int `envconfig:"USERMAIL_OUTBOX_RETENTION_DAYS" default:"30"`
}

// Lease returns the claim lease as a duration.
func (o OutboxConfig) Lease() time.Duration {
	if o.LeaseSeconds <= 0 {
		return 0
	}
	return time.Duration(o.LeaseSeconds) * time.Second
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
