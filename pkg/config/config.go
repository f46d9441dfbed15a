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
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Mpesa        MpesaConfig
	Stripe       StripeConfig
	Flutterwave  FlutterwaveConfig
	RateLimit    RateLimitConfig
	Security     SecurityConfig
	Sweep        SweepConfig
	FeatureFlags FeatureFlagsConfig
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
	Env          string `envconfig:"NYUMBA_APP_ENV" required:"true"`
	Port         string `envconfig:"NYUMBA_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"NYUMBA_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"NYUMBA_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"NYUMBA_DB_DSN"`
	Driver string `envconfig:"NYUMBA_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"NYUMBA_DB_HOST"`
	LegacyPort     int    `envconfig:"NYUMBA_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"NYUMBA_DB_USER"`
	LegacyPassword string `envconfig:"NYUMBA_DB_PASSWORD"`
	LegacyName     string `envconfig:"NYUMBA_DB_NAME"`
	LegacySSLMode  string `envconfig:"NYUMBA_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"NYUMBA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"NYUMBA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"NYUMBA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"NYUMBA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"NYUMBA_REDIS_URL" required:"true"`
	Address      string        `envconfig:"NYUMBA_REDIS_ADDR"`
	Password     string        `envconfig:"NYUMBA_REDIS_PASSWORD"`
	DB           int           `envconfig:"NYUMBA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"NYUMBA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"NYUMBA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"NYUMBA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"NYUMBA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"NYUMBA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"NYUMBA_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"NYUMBA_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"NYUMBA_JWT_EXPIRATION_MINUTES" default:"60"`
}

// MpesaConfig carries Daraja API credentials for the STK push flow.
type MpesaConfig struct {
	Env            string        `envconfig:"NYUMBA_MPESA_ENV" default:"sandbox"`
	ConsumerKey    string        `envconfig:"NYUMBA_MPESA_CONSUMER_KEY"`
	ConsumerSecret string        `envconfig:"NYUMBA_MPESA_CONSUMER_SECRET"`
	Shortcode      string        `envconfig:"NYUMBA_MPESA_SHORTCODE"`
	Passkey        string        `envconfig:"NYUMBA_MPESA_PASSKEY"`
	CallbackURL    string        `envconfig:"NYUMBA_MPESA_CALLBACK_URL"`
	HTTPTimeout    time.Duration `envconfig:"NYUMBA_MPESA_HTTP_TIMEOUT" default:"30s"`
}

// Environment returns the normalized Daraja environment (sandbox/production).
func (m MpesaConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(m.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

// HasCredentials reports whether the Daraja credential set is complete.
func (m MpesaConfig) HasCredentials() bool {
	return m.ConsumerKey != "" && m.ConsumerSecret != "" && m.Shortcode != "" && m.Passkey != ""
}

type StripeConfig struct {
	APIKey string `envconfig:"NYUMBA_STRIPE_API_KEY"`
	Env    string `envconfig:"NYUMBA_STRIPE_ENV" default:"test"`
}

type FlutterwaveConfig struct {
	SecretKey   string        `envconfig:"NYUMBA_FLW_SECRET_KEY"`
	BaseURL     string        `envconfig:"NYUMBA_FLW_BASE_URL" default:"https://api.flutterwave.com/v3"`
	HTTPTimeout time.Duration `envconfig:"NYUMBA_FLW_HTTP_TIMEOUT" default:"30s"`
}

type RateLimitConfig struct {
	PaymentWindow time.Duration `envconfig:"NYUMBA_RATE_LIMIT_PAYMENT_WINDOW" default:"15m"`
	PaymentLimit  int           `envconfig:"NYUMBA_RATE_LIMIT_PAYMENT_LIMIT" default:"5"`
	StkWindow     time.Duration `envconfig:"NYUMBA_RATE_LIMIT_STK_WINDOW" default:"1h"`
	StkLimit      int           `envconfig:"NYUMBA_RATE_LIMIT_STK_LIMIT" default:"3"`
	RefundWindow  time.Duration `envconfig:"NYUMBA_RATE_LIMIT_REFUND_WINDOW" default:"24h"`
	RefundLimit   int           `envconfig:"NYUMBA_RATE_LIMIT_REFUND_LIMIT" default:"2"`
}

type SecurityConfig struct {
	SuspiciousIPRanges []string `envconfig:"NYUMBA_SECURITY_SUSPICIOUS_IP_RANGES"`
	EventQueueSize     int      `envconfig:"NYUMBA_SECURITY_EVENT_QUEUE_SIZE" default:"256"`
}

type SweepConfig struct {
	Interval   time.Duration `envconfig:"NYUMBA_SWEEP_INTERVAL" default:"5m"`
	StuckAfter time.Duration `envconfig:"NYUMBA_SWEEP_STUCK_AFTER" default:"10m"`
	BatchSize  int           `envconfig:"NYUMBA_SWEEP_BATCH_SIZE" default:"50"`
	LockTTL    time.Duration `envconfig:"NYUMBA_SWEEP_LOCK_TTL" default:"4m"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"NYUMBA_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		"NYUMBA_DB_HOST": db.LegacyHost,
		"NYUMBA_DB_USER": db.LegacyUser,
		"NYUMBA_DB_NAME": db.LegacyName,
	}
	for _, name := range []string{"NYUMBA_DB_HOST", "NYUMBA_DB_USER", "NYUMBA_DB_NAME"} {
		if legacyValues[name] == "" {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either NYUMBA_DB_DSN or %s are required", strings.Join(missing, ", "))
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
