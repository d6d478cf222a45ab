package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config captures runtime configuration for the API service.
type Config struct {
	HTTP      HTTPConfig
	Database  DatabaseConfig
	Kafka     KafkaConfig
	Telemetry TelemetryConfig
	Service   ServiceConfig
	Checkout  CheckoutConfig
	Catalog   CatalogConfig
	Pricing   PricingConfig
}

type HTTPConfig struct {
	Port          int
	MetricsPath   string
	ShutdownGrace int
}

type DatabaseConfig struct {
	URL            string
	AutoMigrate    bool
	MigrationsPath string
}

type KafkaConfig struct {
	Brokers []string
}

type TelemetryConfig struct {
	LogLevel      string
	OTelEndpoint  string
	EnableTracing bool
	EnableMetrics bool
	SampleRate    float64
}

type ServiceConfig struct {
	Name        string
	Version     string
	Environment string
}

// CheckoutConfig carries the checkout engine tunables.
type CheckoutConfig struct {
	Currency       string
	PriceStaleness time.Duration
	PriceTolerance decimal.Decimal
	ReservationTTL time.Duration
	ReserveRetries uint64
	Timeout        time.Duration
	CartTTL        time.Duration
	SweepInterval  time.Duration
}

// CatalogConfig locates the product catalog service.
type CatalogConfig struct {
	BaseURL string
}

// PricingConfig carries the static tax and shipping defaults used until the
// external tax and carrier services are wired.
type PricingConfig struct {
	DefaultTaxRate decimal.Decimal
	ShippingBase   decimal.Decimal
	ShippingPerKg  decimal.Decimal
}

const (
	defaultHTTPPort       = 8080
	defaultMetricsPath    = "/metrics"
	defaultShutdownGrace  = 15
	defaultMigrationsPath = "migrations"
	defaultAutoMigrate    = true
	defaultServiceName    = "checkout-api"
	defaultServiceVersion = "0.1.0"
	defaultEnvironment    = "development"
	defaultLogLevel       = "info"
	defaultOTelSampleRate = 1.0

	defaultCurrency       = "USD"
	defaultPriceStaleness = 15 * time.Minute
	defaultReservationTTL = 10 * time.Minute
	defaultReserveRetries = 5
	defaultTimeout        = 10 * time.Second
	defaultCartTTL        = 30 * 24 * time.Hour
	defaultSweepInterval  = time.Minute

	defaultCatalogBaseURL = "http://localhost:9090"
	defaultTaxRate        = "0.08"
	defaultShippingBase   = "5.00"
	defaultShippingPerKg  = "2.50"
)

// Load reads configuration from environment variables, applying defaults when needed.
func Load() (*Config, error) {
	httpCfg, err := loadHTTPConfig()
	if err != nil {
		return nil, fmt.Errorf("loading HTTP config: %w", err)
	}

	dbCfg := loadDatabaseConfig()
	kafkaCfg := loadKafkaConfig()
	telCfg, err := loadTelemetryConfig()
	if err != nil {
		return nil, fmt.Errorf("loading telemetry config: %w", err)
	}

	checkoutCfg, err := loadCheckoutConfig()
	if err != nil {
		return nil, fmt.Errorf("loading checkout config: %w", err)
	}

	pricingCfg, err := loadPricingConfig()
	if err != nil {
		return nil, fmt.Errorf("loading pricing config: %w", err)
	}

	return &Config{
		HTTP:      httpCfg,
		Database:  dbCfg,
		Kafka:     kafkaCfg,
		Telemetry: telCfg,
		Service:   loadServiceConfig(),
		Checkout:  checkoutCfg,
		Catalog:   CatalogConfig{BaseURL: getEnvOrDefault("CATALOG_BASE_URL", defaultCatalogBaseURL)},
		Pricing:   pricingCfg,
	}, nil
}

func loadHTTPConfig() (HTTPConfig, error) {
	port := defaultHTTPPort
	if value, ok := os.LookupEnv("API_HTTP_PORT"); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return HTTPConfig{}, fmt.Errorf("invalid API_HTTP_PORT: %w", err)
		}
		port = parsed
	}

	shutdownGrace := defaultShutdownGrace
	if value, ok := os.LookupEnv("API_SHUTDOWN_GRACE_SECONDS"); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return HTTPConfig{}, fmt.Errorf("invalid API_SHUTDOWN_GRACE_SECONDS: %w", err)
		}
		shutdownGrace = parsed
	}

	metricsPath := getEnvOrDefault("API_METRICS_PATH", defaultMetricsPath)

	return HTTPConfig{
		Port:          port,
		MetricsPath:   metricsPath,
		ShutdownGrace: shutdownGrace,
	}, nil
}

func loadDatabaseConfig() DatabaseConfig {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		databaseURL = buildDatabaseURL()
	}

	autoMigrate := defaultAutoMigrate
	if value, ok := os.LookupEnv("AUTO_MIGRATE"); ok {
		autoMigrate = value == "true"
	}

	migrationsPath := getEnvOrDefault("MIGRATIONS_PATH", defaultMigrationsPath)

	return DatabaseConfig{
		URL:            databaseURL,
		AutoMigrate:    autoMigrate,
		MigrationsPath: migrationsPath,
	}
}

func loadKafkaConfig() KafkaConfig {
	var brokers []string
	if value, ok := os.LookupEnv("KAFKA_BROKERS"); ok && value != "" {
		brokers = strings.Split(value, ",")
	}

	return KafkaConfig{
		Brokers: brokers,
	}
}

func loadTelemetryConfig() (TelemetryConfig, error) {
	logLevel := getEnvOrDefault("LOG_LEVEL", defaultLogLevel)
	otelEndpoint := getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	enableTracing := getBoolEnv("OTEL_ENABLE_TRACING", true)
	enableMetrics := getBoolEnv("OTEL_ENABLE_METRICS", true)

	sampleRate := defaultOTelSampleRate
	if value, ok := os.LookupEnv("OTEL_SAMPLE_RATE"); ok {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return TelemetryConfig{}, fmt.Errorf("invalid OTEL_SAMPLE_RATE: %w", err)
		}
		sampleRate = parsed
	}

	return TelemetryConfig{
		LogLevel:      logLevel,
		OTelEndpoint:  otelEndpoint,
		EnableTracing: enableTracing,
		EnableMetrics: enableMetrics,
		SampleRate:    sampleRate,
	}, nil
}

func loadCheckoutConfig() (CheckoutConfig, error) {
	staleness, err := getDurationEnv("CHECKOUT_PRICE_STALENESS", defaultPriceStaleness)
	if err != nil {
		return CheckoutConfig{}, err
	}

	tolerance, err := getDecimalEnv("CHECKOUT_PRICE_TOLERANCE", decimal.Zero)
	if err != nil {
		return CheckoutConfig{}, err
	}

	reservationTTL, err := getDurationEnv("CHECKOUT_RESERVATION_TTL", defaultReservationTTL)
	if err != nil {
		return CheckoutConfig{}, err
	}

	retries := uint64(defaultReserveRetries)
	if value, ok := os.LookupEnv("CHECKOUT_RESERVE_RETRIES"); ok {
		parsed, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return CheckoutConfig{}, fmt.Errorf("invalid CHECKOUT_RESERVE_RETRIES: %w", err)
		}
		retries = parsed
	}

	timeout, err := getDurationEnv("CHECKOUT_TIMEOUT", defaultTimeout)
	if err != nil {
		return CheckoutConfig{}, err
	}

	cartTTL, err := getDurationEnv("CHECKOUT_CART_TTL", defaultCartTTL)
	if err != nil {
		return CheckoutConfig{}, err
	}

	sweepInterval, err := getDurationEnv("CHECKOUT_SWEEP_INTERVAL", defaultSweepInterval)
	if err != nil {
		return CheckoutConfig{}, err
	}

	return CheckoutConfig{
		Currency:       getEnvOrDefault("CHECKOUT_CURRENCY", defaultCurrency),
		PriceStaleness: staleness,
		PriceTolerance: tolerance,
		ReservationTTL: reservationTTL,
		ReserveRetries: retries,
		Timeout:        timeout,
		CartTTL:        cartTTL,
		SweepInterval:  sweepInterval,
	}, nil
}

func loadPricingConfig() (PricingConfig, error) {
	taxRate, err := getDecimalEnv("TAX_DEFAULT_RATE", decimal.RequireFromString(defaultTaxRate))
	if err != nil {
		return PricingConfig{}, err
	}

	shippingBase, err := getDecimalEnv("SHIPPING_BASE_COST", decimal.RequireFromString(defaultShippingBase))
	if err != nil {
		return PricingConfig{}, err
	}

	shippingPerKg, err := getDecimalEnv("SHIPPING_PER_KG", decimal.RequireFromString(defaultShippingPerKg))
	if err != nil {
		return PricingConfig{}, err
	}

	return PricingConfig{
		DefaultTaxRate: taxRate,
		ShippingBase:   shippingBase,
		ShippingPerKg:  shippingPerKg,
	}, nil
}

func loadServiceConfig() ServiceConfig {
	return ServiceConfig{
		Name:        getEnvOrDefault("API_SERVICE_NAME", defaultServiceName),
		Version:     getEnvOrDefault("SERVICE_VERSION", defaultServiceVersion),
		Environment: getEnvOrDefault("ENVIRONMENT", defaultEnvironment),
	}
}

func buildDatabaseURL() string {
	host := getEnvOrDefault("DB_HOST", "localhost")
	port := getEnvOrDefault("DB_PORT", "5432")
	user := getEnvOrDefault("DB_USER", "postgres")
	password := getEnvOrDefault("DB_PASSWORD", "postgres")
	dbName := getEnvOrDefault("DB_NAME", "checkout")
	sslMode := getEnvOrDefault("DB_SSLMODE", "disable")

	maxConns := getEnvOrDefault("DB_MAX_CONNS", "25")
	minConns := getEnvOrDefault("DB_MIN_CONNS", "5")
	maxLifetime := getEnvOrDefault("DB_MAX_CONN_LIFETIME", "5m")

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s&pool_max_conns=%s&pool_min_conns=%s&pool_max_conn_lifetime=%s",
		user, password, host, port, dbName, sslMode, maxConns, minConns, maxLifetime,
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		return value == "true"
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func getDecimalEnv(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue, nil
	}
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}
