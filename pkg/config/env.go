package config

// EnvPrefix is handed to envconfig; every field carries an explicit name so it only scopes lookups.
const EnvPrefix = "CART"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv       = "CART_APP_ENV"
	EnvPort         = "CART_APP_PORT"
	EnvCatalogDSN   = "CART_CATALOG_DB_DSN"
	EnvRedisURL     = "CART_REDIS_URL"
	EnvGCPProjectID = "CART_GCP_PROJECT_ID"

	EnvMaxItems                  = "CART_MAX_ITEMS"
	EnvMaxQuantityPerItem        = "CART_MAX_QUANTITY_PER_ITEM"
	EnvExpirationDays            = "CART_EXPIRATION_DAYS"
	EnvMinOrderAmount            = "CART_MIN_ORDER_AMOUNT"
	EnvReservationTimeoutMinutes = "CART_RESERVATION_TIMEOUT_MINUTES"
	EnvTaxRate                   = "CART_TAX_RATE"
	EnvShippingCost              = "CART_SHIPPING_COST"
	EnvFreeShippingThreshold     = "CART_FREE_SHIPPING_THRESHOLD"
	EnvDecimalPlaces             = "CART_DECIMAL_PLACES"
	EnvCurrency                  = "CART_CURRENCY"
	EnvExpirationWarningDays     = "CART_EXPIRATION_WARNING_DAYS"
	EnvCheckIntervalMS           = "CART_EXPIRATION_CHECK_INTERVAL_MS"
)
