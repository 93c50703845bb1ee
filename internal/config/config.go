package config

import (
	"errors"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	CORSOrigins     []string

	// Inbound throttle for /api and /ws. Zero rate disables it.
	LookupRateLimit float64
	LookupRateBurst int

	// Nominatim geocoding.
	NominatimURL       string
	NominatimUserAgent string
	GeocodeMinInterval time.Duration

	// ArcGIS WBD HUC8 layer.
	ArcGISQueryURL string

	// ProviderTimeout bounds each outbound request. Zero leaves the
	// transport default in place.
	ProviderTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	minInterval, err := time.ParseDuration(sharedcfg.EnvOrDefault("GEOCODE_MIN_INTERVAL", "1100ms"))
	if err != nil || minInterval < 0 {
		return nil, errors.New("invalid GEOCODE_MIN_INTERVAL")
	}

	providerTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("PROVIDER_TIMEOUT", "0s"))
	if err != nil || providerTimeout < 0 {
		return nil, errors.New("invalid PROVIDER_TIMEOUT")
	}

	rateLimit, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("LOOKUP_RATE_LIMIT", "5"), 64)
	if err != nil || rateLimit < 0 {
		return nil, errors.New("invalid LOOKUP_RATE_LIMIT: must be a non-negative number")
	}

	rateBurst, err := strconv.Atoi(sharedcfg.EnvOrDefault("LOOKUP_RATE_BURST", "10"))
	if err != nil || rateBurst < 1 {
		return nil, errors.New("invalid LOOKUP_RATE_BURST: must be a positive integer")
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		// ParseBrokers is the shared comma-list splitter; it trims and drops blanks.
		CORSOrigins:     sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("CORS_ORIGINS", "*")),
		LookupRateLimit: rateLimit,
		LookupRateBurst: rateBurst,

		NominatimURL:       sharedcfg.EnvOrDefault("NOMINATIM_URL", "https://nominatim.openstreetmap.org/search"),
		NominatimUserAgent: sharedcfg.EnvOrDefault("NOMINATIM_USER_AGENT", "watershed-finder/1.0"),
		GeocodeMinInterval: minInterval,

		ArcGISQueryURL:  sharedcfg.EnvOrDefault("ARCGIS_QUERY_URL", "https://hydro.nationalmap.gov/arcgis/rest/services/wbd/MapServer/4/query"),
		ProviderTimeout: providerTimeout,
	}

	if len(cfg.CORSOrigins) == 0 {
		return nil, errors.New("CORS_ORIGINS must list at least one origin")
	}

	return cfg, nil
}
