package webapi

import (
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/donateboard/pkg/donate"
)

const (
	defaultListenAddr      = ":9090"
	defaultAllowedOrigin   = "http://localhost:8000"
	defaultStoreDriver     = StoreDriverSQLite
	defaultStoreDSN        = "donateboard.db"
	defaultAppBaseURL      = "http://localhost:8000"
	defaultBrandName       = "DONATE GAME"
	defaultProviderTimeout = 10 * time.Second
)

// Store driver names accepted by Config.StoreDriver.
const (
	StoreDriverSQLite   = "sqlite"
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config aggregates runtime settings for the donation API.
type Config struct {
	ListenAddr       string
	AllowedOrigins   []string
	AppBaseURL       string
	StoreDriver      string
	StoreDSN         string
	LeaderboardLimit int
	MockDonations    bool
	ProviderTimeout  time.Duration

	PayPalBaseURL   string
	PayPalClientID  string
	PayPalSecret    string
	PayPalWebhookID string
	PayPalBrandName string

	BTCPayBaseURL string
	BTCPayStoreID string
	BTCPayAPIKey  string
}

// Validate ensures the configuration contains sane values.
func (cfg *Config) Validate() error {
	cfg.ListenAddr = defaultIfEmpty(cfg.ListenAddr, defaultListenAddr)
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{defaultAllowedOrigin}
	}
	cfg.AppBaseURL = defaultIfEmpty(cfg.AppBaseURL, defaultAppBaseURL)
	cfg.StoreDriver = defaultIfEmpty(cfg.StoreDriver, defaultStoreDriver)
	cfg.StoreDSN = defaultIfEmpty(cfg.StoreDSN, defaultStoreDSN)
	if cfg.LeaderboardLimit <= 0 {
		cfg.LeaderboardLimit = donate.DefaultLeaderboardLimit
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = defaultProviderTimeout
	}
	cfg.PayPalBrandName = defaultIfEmpty(cfg.PayPalBrandName, defaultBrandName)

	switch cfg.StoreDriver {
	case StoreDriverSQLite, StoreDriverPostgres, StoreDriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	if cfg.PayPalEnabled() {
		if strings.TrimSpace(cfg.PayPalClientID) == "" || strings.TrimSpace(cfg.PayPalSecret) == "" {
			return fmt.Errorf("paypal client credentials are required")
		}
		if strings.TrimSpace(cfg.PayPalWebhookID) == "" {
			return fmt.Errorf("paypal webhook id is required")
		}
	}
	if cfg.BTCPayEnabled() {
		if strings.TrimSpace(cfg.BTCPayStoreID) == "" {
			return fmt.Errorf("btcpay store id is required")
		}
		if strings.TrimSpace(cfg.BTCPayAPIKey) == "" {
			return fmt.Errorf("btcpay api key is required")
		}
	}
	if !cfg.PayPalEnabled() && !cfg.BTCPayEnabled() && !cfg.MockDonations {
		return fmt.Errorf("at least one donation path must be configured")
	}
	return nil
}

// PayPalEnabled reports whether the PayPal provider is configured.
func (cfg *Config) PayPalEnabled() bool {
	return strings.TrimSpace(cfg.PayPalBaseURL) != ""
}

// BTCPayEnabled reports whether the BTCPay provider is configured.
func (cfg *Config) BTCPayEnabled() bool {
	return strings.TrimSpace(cfg.BTCPayBaseURL) != ""
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// ParseAllowedOrigins splits comma-delimited origins into a slice.
func ParseAllowedOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}
