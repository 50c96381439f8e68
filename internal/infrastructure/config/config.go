package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jmanzanog/price-reconciler/internal/domain"
	"github.com/jmanzanog/price-reconciler/internal/infrastructure/referencesite"
	"gopkg.in/yaml.v3"
)

const (
	DBDriverPostgres = "postgres"
	DBDriverOracle   = "oracle"
	DBDriverSQLite   = "sqlite"
	DBDriverMemory   = "memory"

	RecordStoreRedis  = "redis"
	RecordStoreMemory = "memory"
)

// DefaultIndexNames is the index include list used when no filter file is
// configured.
var DefaultIndexNames = []string{
	"Euro Stoxx 50",
	"CAC 40",
	"DAX",
	"FTSE 100",
	"Dow Jones",
	"S&P 500",
	"Small Cap 2000",
	"S&P 500 VIX",
	"Nasdaq",
}

type Config struct {
	AlphaVantageURL     string
	AlphaVantageAPIKey  string
	YahooBaseURL        string
	TwelveDataURL       string
	TwelveDataAPIKey    string
	FinnhubURL          string
	FinnhubAPIKey       string
	BinanceURL          string
	ReferenceSiteURL    string
	SourceOrder         []domain.SourceID
	PriceTolerance      float64
	FreshnessWindow     time.Duration
	AlphaVantageMinGap  time.Duration
	ReferenceSiteMinGap time.Duration
	ReferenceSitePause  time.Duration
	ProviderMinGap      time.Duration
	HTTPTimeout         time.Duration
	RecordStore         string
	RedisAddr           string
	RedisPassword       string
	RedisDB             int
	RedisPrefix         string
	DBDriver            string
	DBDSN               string
	ServerPort          string
	ServerHost          string
	RefreshSchedule     string
	SyncSchedule        string
	RefreshConcurrency  int
	LogLevel            string
	Filters             referencesite.Filters
}

func Load() (*Config, error) {
	cfg := &Config{
		AlphaVantageURL:    getEnvOrDefault("ALPHA_VANTAGE_URL", "https://www.alphavantage.co"),
		AlphaVantageAPIKey: os.Getenv("ALPHA_VANTAGE_KEY"),
		YahooBaseURL:       getEnvOrDefault("YAHOO_BASE_URL", "https://query1.finance.yahoo.com"),
		TwelveDataURL:      getEnvOrDefault("TWELVE_DATA_URL", "https://api.twelvedata.com"),
		TwelveDataAPIKey:   os.Getenv("TWELVE_DATA_API_KEY"),
		FinnhubURL:         getEnvOrDefault("FINNHUB_URL", "https://finnhub.io/api/v1"),
		FinnhubAPIKey:      os.Getenv("FINNHUB_API_KEY"),
		BinanceURL:         getEnvOrDefault("BINANCE_URL", "https://api.binance.com"),
		ReferenceSiteURL:   getEnvOrDefault("REFERENCE_SITE_URL", "https://www.investing.com"),
		RecordStore:        getEnvOrDefault("RECORD_STORE", RecordStoreRedis),
		RedisAddr:          getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisPrefix:        getEnvOrDefault("REDIS_PREFIX", "prod"),
		DBDriver:           getEnvOrDefault("DB_DRIVER", DBDriverPostgres),
		DBDSN:              os.Getenv("DB_DSN"),
		ServerPort:         getEnvOrDefault("SERVER_PORT", "8080"),
		ServerHost:         getEnvOrDefault("SERVER_HOST", "localhost"),
		RefreshSchedule:    getEnvOrDefault("REFRESH_SCHEDULE", "0 22 * * 1-5"),
		SyncSchedule:       getEnvOrDefault("SYNC_SCHEDULE", "0 6 * * 1"),
		LogLevel:           getEnvOrDefault("LOG_LEVEL", "info"),
	}

	if os.Getenv("TEST") == "true" {
		cfg.RedisPrefix = "test"
	}

	var err error
	if cfg.SourceOrder, err = parseSourceOrder(getEnvOrDefault("SOURCE_ORDER", "yahoo,alpha_vantage,twelvedata,finnhub,binance")); err != nil {
		return nil, err
	}

	if cfg.PriceTolerance, err = strconv.ParseFloat(getEnvOrDefault("PRICE_TOLERANCE", "0.9"), 64); err != nil {
		return nil, fmt.Errorf("invalid PRICE_TOLERANCE: %w", err)
	}
	if cfg.RedisDB, err = strconv.Atoi(getEnvOrDefault("REDIS_DB", "0")); err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	if cfg.RefreshConcurrency, err = strconv.Atoi(getEnvOrDefault("REFRESH_CONCURRENCY", "1")); err != nil {
		return nil, fmt.Errorf("invalid REFRESH_CONCURRENCY: %w", err)
	}

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"FRESHNESS_WINDOW", "72h", &cfg.FreshnessWindow},
		{"ALPHA_VANTAGE_MIN_INTERVAL", "12s", &cfg.AlphaVantageMinGap},
		{"REFERENCE_SITE_MIN_INTERVAL", "10s", &cfg.ReferenceSiteMinGap},
		{"REFERENCE_SITE_DETAIL_PAUSE", "10s", &cfg.ReferenceSitePause},
		{"PROVIDER_MIN_INTERVAL", "1s", &cfg.ProviderMinGap},
		{"HTTP_TIMEOUT", "10s", &cfg.HTTPTimeout},
	}
	for _, d := range durations {
		if *d.dst, err = time.ParseDuration(getEnvOrDefault(d.key, d.def)); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
	}

	if cfg.Filters, err = LoadFilters(os.Getenv("LISTING_FILTERS_FILE")); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports configuration errors that make the service unusable.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case DBDriverPostgres, DBDriverOracle:
		if c.DBDSN == "" {
			return fmt.Errorf("DB_DSN environment variable is required for %s driver", c.DBDriver)
		}
	case DBDriverSQLite, DBDriverMemory:
	default:
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.DBDriver)
	}

	if c.RecordStore != RecordStoreRedis && c.RecordStore != RecordStoreMemory {
		return fmt.Errorf("unsupported RECORD_STORE: %s", c.RecordStore)
	}
	if c.PriceTolerance <= 0 || c.PriceTolerance >= 1 {
		return fmt.Errorf("PRICE_TOLERANCE must be in (0, 1), got %v", c.PriceTolerance)
	}
	if c.FreshnessWindow <= 0 {
		return fmt.Errorf("FRESHNESS_WINDOW must be positive")
	}
	if c.RefreshConcurrency < 1 {
		return fmt.Errorf("REFRESH_CONCURRENCY must be at least 1")
	}
	if len(c.SourceOrder) == 0 {
		return fmt.Errorf("SOURCE_ORDER must name at least one source")
	}
	if slices.Contains(c.SourceOrder, domain.SourceAlphaVantage) && c.AlphaVantageAPIKey == "" {
		return fmt.Errorf("ALPHA_VANTAGE_KEY environment variable is required for alpha_vantage source")
	}
	return nil
}

// Address is the listen address of the HTTP server.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%s", c.ServerHost, c.ServerPort)
}

// LoadFilters reads listing filters from a YAML file. An empty path returns
// the default index include list.
func LoadFilters(path string) (referencesite.Filters, error) {
	if path == "" {
		return DefaultFilters(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read LISTING_FILTERS_FILE: %w", err)
	}

	var filters referencesite.Filters
	if err := yaml.Unmarshal(data, &filters); err != nil {
		return nil, fmt.Errorf("invalid LISTING_FILTERS_FILE: %w", err)
	}
	for listingType := range filters {
		if listingType != referencesite.ListingIndex && listingType != referencesite.ListingAsset {
			return nil, fmt.Errorf("invalid LISTING_FILTERS_FILE: unknown listing type %q", listingType)
		}
	}
	return filters, nil
}

func DefaultFilters() referencesite.Filters {
	return referencesite.Filters{
		referencesite.ListingIndex: {
			Include: referencesite.FieldValues{"name": slices.Clone(DefaultIndexNames)},
		},
	}
}

func parseSourceOrder(raw string) ([]domain.SourceID, error) {
	known := []domain.SourceID{
		domain.SourceYahoo,
		domain.SourceAlphaVantage,
		domain.SourceTwelveData,
		domain.SourceFinnhub,
		domain.SourceBinance,
	}

	var order []domain.SourceID
	for _, part := range strings.Split(raw, ",") {
		id := domain.SourceID(strings.TrimSpace(part))
		if id == "" {
			continue
		}
		if !slices.Contains(known, id) {
			return nil, fmt.Errorf("unsupported source in SOURCE_ORDER: %s", id)
		}
		if !slices.Contains(order, id) {
			order = append(order, id)
		}
	}
	return order, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
