package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	FeatureFlags FeatureFlagsConfig
	HTTP         HTTPConfig
	JWT          JWTConfig
	DB           DBConfig
	Redis        RedisConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Cart         CartConfig
	Pricing      PricingConfig
	Expiration   ExpirationConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Cart.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Pricing.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CART_APP_ENV" required:"true"`
	Port         string `envconfig:"CART_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"CART_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"CART_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"CART_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"CART_AUTO_MIGRATE" default:"false"`
}

type ServiceConfig struct {
	Kind string `envconfig:"CART_SERVICE_KIND" default:"api"`
}

// HTTPConfig shapes the API surface.
type HTTPConfig struct {
	CORSAllowedOrigins []string      `envconfig:"CART_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	RateLimitWindow    time.Duration `envconfig:"CART_RATE_LIMIT_WINDOW" default:"1m"`
	RateLimitMutations int           `envconfig:"CART_RATE_LIMIT_MUTATIONS" default:"120"`
	ReadTimeout        time.Duration `envconfig:"CART_HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout       time.Duration `envconfig:"CART_HTTP_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout    time.Duration `envconfig:"CART_HTTP_SHUTDOWN_TIMEOUT" default:"20s"`
}

// JWTConfig enables bearer-token identity. With no secret the gateway header is trusted.
type JWTConfig struct {
	Secret            string `envconfig:"CART_JWT_SECRET"`
	Issuer            string `envconfig:"CART_JWT_ISSUER" default:"packfinderz"`
	ExpirationMinutes int    `envconfig:"CART_JWT_EXPIRATION_MINUTES" default:"60"`
}

// Enabled reports whether bearer tokens are verified.
func (j JWTConfig) Enabled() bool {
	return strings.TrimSpace(j.Secret) != ""
}

// DBConfig points at the catalog database the cart reads product and inventory rows from.
type DBConfig struct {
	DSN             string        `envconfig:"CART_CATALOG_DB_DSN" required:"true"`
	MaxOpenConns    int           `envconfig:"CART_CATALOG_DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"CART_CATALOG_DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"CART_CATALOG_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CART_CATALOG_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"CART_CATALOG_DB_SLOW_QUERY" default:"250ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CART_REDIS_URL"`
	Address      string        `envconfig:"CART_REDIS_ADDR"`
	Password     string        `envconfig:"CART_REDIS_PASSWORD"`
	DB           int           `envconfig:"CART_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CART_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CART_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CART_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CART_REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"CART_REDIS_WRITE_TIMEOUT" default:"3s"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"CART_GCP_PROJECT_ID" required:"true"`
}

type PubSubConfig struct {
	CartEventsTopic string        `envconfig:"CART_PUBSUB_CART_EVENTS_TOPIC" default:"cart-events"`
	PublishTimeout  time.Duration `envconfig:"CART_PUBSUB_PUBLISH_TIMEOUT" default:"15s"`

	// Endpoint overrides the Pub/Sub API host, e.g. a local emulator. Auth is skipped when set.
	Endpoint string `envconfig:"CART_PUBSUB_ENDPOINT"`
}

// CartConfig bounds cart contents and lifecycle.
type CartConfig struct {
	MaxItems                  int             `envconfig:"CART_MAX_ITEMS" default:"50"`
	MaxQuantityPerItem        int             `envconfig:"CART_MAX_QUANTITY_PER_ITEM" default:"99"`
	ExpirationDays            int             `envconfig:"CART_EXPIRATION_DAYS" default:"30"`
	MinOrderAmount            decimal.Decimal `envconfig:"CART_MIN_ORDER_AMOUNT" default:"0"`
	ReservationTimeoutMinutes int             `envconfig:"CART_RESERVATION_TIMEOUT_MINUTES" default:"15"`
	LockTTL                   time.Duration   `envconfig:"CART_LOCK_TTL" default:"10s"`
	LockWait                  time.Duration   `envconfig:"CART_LOCK_WAIT" default:"3s"`
	EnrichmentConcurrency     int             `envconfig:"CART_ENRICHMENT_CONCURRENCY" default:"16"`
}

// ReservationTimeout returns the checkout reservation TTL.
func (c CartConfig) ReservationTimeout() time.Duration {
	if c.ReservationTimeoutMinutes <= 0 {
		return 0
	}
	return time.Duration(c.ReservationTimeoutMinutes) * time.Minute
}

// Expiration returns the cart lifetime.
func (c CartConfig) Expiration() time.Duration {
	return time.Duration(c.ExpirationDays) * 24 * time.Hour
}

func (c CartConfig) validate() error {
	if c.MaxItems <= 0 {
		return fmt.Errorf("%s must be positive", EnvMaxItems)
	}
	if c.MaxQuantityPerItem <= 0 {
		return fmt.Errorf("%s must be positive", EnvMaxQuantityPerItem)
	}
	if c.ExpirationDays <= 0 {
		return fmt.Errorf("%s must be positive", EnvExpirationDays)
	}
	if c.MinOrderAmount.IsNegative() {
		return fmt.Errorf("%s must be non-negative", EnvMinOrderAmount)
	}
	return nil
}

type PricingConfig struct {
	TaxRate               decimal.Decimal `envconfig:"CART_TAX_RATE" default:"0.1"`
	ShippingCost          decimal.Decimal `envconfig:"CART_SHIPPING_COST" default:"20000"`
	FreeShippingThreshold decimal.Decimal `envconfig:"CART_FREE_SHIPPING_THRESHOLD" default:"500000"`
	DecimalPlaces         int32           `envconfig:"CART_DECIMAL_PLACES" default:"2"`
	Currency              string          `envconfig:"CART_CURRENCY" default:"VND"`
}

func (p PricingConfig) validate() error {
	if p.TaxRate.IsNegative() || p.ShippingCost.IsNegative() || p.FreeShippingThreshold.IsNegative() {
		return fmt.Errorf("pricing amounts must be non-negative")
	}
	if p.DecimalPlaces < 0 {
		return fmt.Errorf("%s must be non-negative", EnvDecimalPlaces)
	}
	return nil
}

type ExpirationConfig struct {
	Enabled         bool `envconfig:"CART_EXPIRATION_SCANNER_ENABLED" default:"true"`
	WarningDays     int  `envconfig:"CART_EXPIRATION_WARNING_DAYS" default:"3"`
	CheckIntervalMS int  `envconfig:"CART_EXPIRATION_CHECK_INTERVAL_MS" default:"86400000"`
}

// CheckInterval returns the sweep cadence.
func (e ExpirationConfig) CheckInterval() time.Duration {
	if e.CheckIntervalMS <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(e.CheckIntervalMS) * time.Millisecond
}
