package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "CAMPUSMARKET_DB_DSN"
	EnvDBHost = "CAMPUSMARKET_DB_HOST"
	EnvDBUser = "CAMPUSMARKET_DB_USER"
	EnvDBName = "CAMPUSMARKET_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Stripe       StripeConfig
	FeatureFlags FeatureFlagsConfig
	Webhooks     WebhookConfig
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
	Env          string `envconfig:"CAMPUSMARKET_APP_ENV" required:"true"`
	Port         string `envconfig:"CAMPUSMARKET_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CAMPUSMARKET_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CAMPUSMARKET_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"CAMPUSMARKET_DB_DSN"`
	Driver string `envconfig:"CAMPUSMARKET_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CAMPUSMARKET_DB_HOST"`
	LegacyPort     int    `envconfig:"CAMPUSMARKET_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CAMPUSMARKET_DB_USER"`
	LegacyPassword string `envconfig:"CAMPUSMARKET_DB_PASSWORD"`
	LegacyName     string `envconfig:"CAMPUSMARKET_DB_NAME"`
	LegacySSLMode  string `envconfig:"CAMPUSMARKET_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CAMPUSMARKET_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CAMPUSMARKET_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CAMPUSMARKET_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CAMPUSMARKET_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CAMPUSMARKET_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CAMPUSMARKET_REDIS_ADDR"`
	Password     string        `envconfig:"CAMPUSMARKET_REDIS_PASSWORD"`
	DB           int           `envconfig:"CAMPUSMARKET_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CAMPUSMARKET_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CAMPUSMARKET_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CAMPUSMARKET_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CAMPUSMARKET_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CAMPUSMARKET_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"CAMPUSMARKET_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"CAMPUSMARKET_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"CAMPUSMARKET_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"CAMPUSMARKET_AUTO_MIGRATE" default:"false"`
}

type StripeConfig struct {
	APIKey          string        `envconfig:"CAMPUSMARKET_STRIPE_API_KEY"`
	Secret          string        `envconfig:"CAMPUSMARKET_STRIPE_SECRET"`
	Env             string        `envconfig:"CAMPUSMARKET_STRIPE_ENV" default:"test"`
	SuccessURL      string        `envconfig:"CAMPUSMARKET_STRIPE_SUCCESS_URL" default:"http://localhost:3000/checkout/success"`
	CancelURL       string        `envconfig:"CAMPUSMARKET_STRIPE_CANCEL_URL" default:"http://localhost:3000/checkout/cancel"`
	DefaultCurrency string        `envconfig:"CAMPUSMARKET_STRIPE_CURRENCY" default:"usd"`
	CallTimeout     time.Duration `envconfig:"CAMPUSMARKET_STRIPE_CALL_TIMEOUT" default:"10s"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type WebhookConfig struct {
	EventTTL time.Duration `envconfig:"CAMPUSMARKET_WEBHOOK_EVENT_TTL" default:"720h"`
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
