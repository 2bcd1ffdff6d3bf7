// Package config provides configuration loading and validation for the
// trading engine: a YAML document of bot entries plus environment-sourced
// venue credentials.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/deltaneutral/perp-arb-engine/internal/secret"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Bots      []BotConfig     `mapstructure:"bots"`
	Risk      RiskConfig      `mapstructure:"risk"`

	// Venues is populated from the environment only, never from the config
	// file, and is never round-tripped through mapstructure.
	Venues VenuesConfig `mapstructure:"-"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // json | tui
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	OTLPHeaders    string `mapstructure:"otlp_headers"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
}

// BotConfig describes one configured pairing between venue A and venue B for
// a single underlying. The process runs exactly one bot in V1 (no ordering
// fairness across pairs), but the schema is an ordered sequence
// to match the config document's shape.
type BotConfig struct {
	ID           string  `mapstructure:"id"`
	Pair         string  `mapstructure:"pair"`   // e.g. "BTC-PERP"
	DexA         string  `mapstructure:"dex_a"`  // venue A market identifier
	DexB         string  `mapstructure:"dex_b"`  // venue B market identifier
	SpreadEntry  float64 `mapstructure:"spread_entry"`
	SpreadExit   float64 `mapstructure:"spread_exit"`
	Leverage     int     `mapstructure:"leverage"`
	PositionSize float64 `mapstructure:"position_size"`
}

// Validate checks the BotConfig invariants from the data model: 0 <
// spread_exit < spread_entry; 1 <= leverage <= 50; position_size > 0.
func (b BotConfig) Validate() error {
	if b.ID == "" {
		return fmt.Errorf("bot: id is required")
	}
	if b.Pair == "" {
		return fmt.Errorf("bot %s: pair is required", b.ID)
	}
	if !(b.SpreadExit > 0 && b.SpreadExit < b.SpreadEntry) {
		return fmt.Errorf("bot %s: spread_exit (%v) must be > 0 and < spread_entry (%v)", b.ID, b.SpreadExit, b.SpreadEntry)
	}
	if b.Leverage < 1 || b.Leverage > 50 {
		return fmt.Errorf("bot %s: leverage %d must be in [1, 50]", b.ID, b.Leverage)
	}
	if b.PositionSize <= 0 {
		return fmt.Errorf("bot %s: position_size must be > 0", b.ID)
	}
	return nil
}

// VenueASymbol maps the internal <BASE>-PERP symbol to venue A's symbol,
// which is unchanged.
func (b BotConfig) VenueASymbol() string { return b.Pair }

// VenueBSymbol maps the internal <BASE>-PERP symbol to venue B's symbol,
// <BASE>-USD-PERP.
func (b BotConfig) VenueBSymbol() string {
	base := b.Pair
	const suffix = "-PERP"
	if len(base) > len(suffix) && base[len(base)-len(suffix):] == suffix {
		base = base[:len(base)-len(suffix)]
	}
	return base + "-USD-PERP"
}

// RiskConfig is a read-only passthrough in V1; not enforced by the core.
type RiskConfig struct {
	MaxPositionUSD  float64 `mapstructure:"max_position_usd"`
	MaxDailyLossUSD float64 `mapstructure:"max_daily_loss_usd"`
	MaxDrawdownPct  float64 `mapstructure:"max_drawdown_pct"`
}

// VenuesConfig groups the two venues' credentials, sourced only from the
// environment and never logged in clear.
type VenuesConfig struct {
	A VenueACredentials
	B VenueBCredentials
}

// VenueACredentials are the EVM-authenticated venue's secrets and endpoints.
type VenueACredentials struct {
	Address     string
	APIKey      secret.String
	SigningKey  secret.String
	Testnet     bool
	WSURL       string
	RESTBaseURL string
}

// VenueBCredentials are the Starknet-authenticated venue's secrets and
// endpoints.
type VenueBCredentials struct {
	PrivateKey     secret.String
	AccountAddress string
	Testnet        bool
	WSURL          string
	RESTBaseURL    string
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("ARB")
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK; bots may still come entirely from env
		// in tests, but in practice V1 requires at least one bot entry.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Venues = loadVenueCredentials()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Default wire endpoints, overridable per venue via *_WS_URL / *_REST_URL so
// a testnet deployment never has to touch code, only environment.
const (
	venueAMainnetWS   = "wss://stream.venue-a.example/v1"
	venueAMainnetREST = "https://api.venue-a.example/v1"
	venueATestnetWS   = "wss://testnet-stream.venue-a.example/v1"
	venueATestnetREST = "https://testnet-api.venue-a.example/v1"

	venueBMainnetWS   = "wss://stream.venue-b.example/v1"
	venueBMainnetREST = "https://api.venue-b.example/v1"
	venueBTestnetWS   = "wss://testnet-stream.venue-b.example/v1"
	venueBTestnetREST = "https://testnet-api.venue-b.example/v1"
)

func loadVenueCredentials() VenuesConfig {
	aTestnet := os.Getenv("VENUE_A_TESTNET") == "true"
	bTestnet := os.Getenv("VENUE_B_TESTNET") == "true"

	aWS, aREST := venueAMainnetWS, venueAMainnetREST
	if aTestnet {
		aWS, aREST = venueATestnetWS, venueATestnetREST
	}
	bWS, bREST := venueBMainnetWS, venueBMainnetREST
	if bTestnet {
		bWS, bREST = venueBTestnetWS, venueBTestnetREST
	}

	return VenuesConfig{
		A: VenueACredentials{
			Address:     os.Getenv("VENUE_A_ADDRESS"),
			APIKey:      secret.String(os.Getenv("VENUE_A_API_KEY")),
			SigningKey:  secret.String(os.Getenv("VENUE_A_SIGNING_KEY")),
			Testnet:     aTestnet,
			WSURL:       envOr("VENUE_A_WS_URL", aWS),
			RESTBaseURL: envOr("VENUE_A_REST_URL", aREST),
		},
		B: VenueBCredentials{
			PrivateKey:     secret.String(os.Getenv("VENUE_B_PRIVATE_KEY")),
			AccountAddress: os.Getenv("VENUE_B_ACCOUNT_ADDRESS"),
			Testnet:        bTestnet,
			WSURL:          envOr("VENUE_B_WS_URL", bWS),
			RESTBaseURL:    envOr("VENUE_B_REST_URL", bREST),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func bindEnvVars(v *viper.Viper) {
	v.BindEnv("app.name", "ARB_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "ARB_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "ARB_LOG_LEVEL", "LOG_LEVEL")
	v.BindEnv("app.log_format", "ARB_LOG_FORMAT", "LOG_FORMAT")

	v.BindEnv("telemetry.enabled", "ARB_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "ARB_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.otlp_endpoint", "ARB_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "perp-arb-engine")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "json")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "perp-arb-engine")
	v.SetDefault("telemetry.prometheus_port", 9090)
}

// Validate validates the configuration as a whole.
func (c *Config) Validate() error {
	if len(c.Bots) == 0 {
		return fmt.Errorf("at least one bot entry is required")
	}
	for _, b := range c.Bots {
		if err := b.Validate(); err != nil {
			return err
		}
	}
	if c.Venues.A.Address == "" {
		return fmt.Errorf("VENUE_A_ADDRESS is required")
	}
	if c.Venues.B.AccountAddress == "" {
		return fmt.Errorf("VENUE_B_ACCOUNT_ADDRESS is required")
	}
	return nil
}

// StalenessThreshold is the default age beyond which a ConnectionHealth is
// considered stale.
const StalenessThreshold = 5 * time.Second
