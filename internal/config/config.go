package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/Siberianok/arbitrage-telebot-sub000/internal/model"
)

// Config is the full application configuration. The scanning core treats it
// as read-only input; loading, merging and persisting live here at the
// boundary.
type Config struct {
	Pairs                  []string `mapstructure:"pairs"`
	Strategies             []string `mapstructure:"strategies"`
	ThresholdPercent       float64  `mapstructure:"threshold_percent"`
	SimulationCapitalQuote float64  `mapstructure:"simulation_capital_quote"`

	Venues        map[string]VenueConfig  `mapstructure:"venues"`
	QuoteQuality  QualityConfig           `mapstructure:"quote_quality"`
	AccountLimits AccountLimitsConfig     `mapstructure:"account_limits"`
	P2PExecution  P2PExecutionConfig      `mapstructure:"p2p_execution"`
	Scoring       ScoringConfig           `mapstructure:"scoring"`
	Acquisition   AcquisitionConfig       `mapstructure:"acquisition"`
	Transfers     []TransferPath          `mapstructure:"transfers"`
	History       HistoryConfig           `mapstructure:"history"`
	Telegram      TelegramConfig          `mapstructure:"telegram"`
	Dashboard     DashboardConfig         `mapstructure:"dashboard"`
	Postgres      PostgresConfig          `mapstructure:"postgres"`
	Redis         RedisConfig             `mapstructure:"redis"`
	LogLevel      string                  `mapstructure:"log_level"`
}

// VenueConfig describes one exchange or P2P marketplace.
type VenueConfig struct {
	Enabled bool                         `mapstructure:"enabled"`
	Kind    string                       `mapstructure:"kind"` // ticker|p2p|offline
	Fees    map[string]model.FeeSchedule `mapstructure:"fees"` // per pair, "default" required
	P2P     P2PVenueConfig               `mapstructure:"p2p"`
}

// P2PVenueConfig holds marketplace-specific settings for a P2P venue.
type P2PVenueConfig struct {
	Fiat           string   `mapstructure:"fiat"`
	PaymentMethods []string `mapstructure:"payment_methods"`
	MinReputation  float64  `mapstructure:"min_reputation"`
}

// QualityConfig bounds quote acceptance.
type QualityConfig struct {
	// MaxAgeSeconds per venue with a mandatory "default" ceiling.
	MaxAgeSeconds          map[string]float64 `mapstructure:"max_age_seconds"`
	MaxMidDeviationPercent float64            `mapstructure:"max_mid_deviation_percent"`
	MaxSpreadPercent       float64            `mapstructure:"max_spread_percent"`
	// MaxSkewSeconds per source kind (ticker|p2p|offline).
	MaxSkewSeconds map[string]float64 `mapstructure:"max_skew_seconds"`
}

// AccountLimitsConfig caps consumption per venue and payment method.
type AccountLimitsConfig struct {
	Profiles        map[string]AccountLimitProfile `mapstructure:"profiles"` // keyed by venue
	CooldownSeconds int                            `mapstructure:"cooldown_seconds"`
}

// AccountLimitProfile is one venue's consumption caps.
type AccountLimitProfile struct {
	MonthlyFiatLimit float64            `mapstructure:"monthly_fiat_limit"`
	DailyMethodCaps  map[string]float64 `mapstructure:"daily_method_caps"` // payment method -> cap
}

// P2PExecutionConfig filters which P2P advertisements are executable.
type P2PExecutionConfig struct {
	AllowedPaymentMethods []string `mapstructure:"allowed_payment_methods"`
	MinReputation         float64  `mapstructure:"min_reputation"`
}

// ScoringConfig holds weights and confidence band boundaries.
type ScoringConfig struct {
	NetWeight        float64 `mapstructure:"net_weight"`
	LiquidityWeight  float64 `mapstructure:"liquidity_weight"`
	VolatilityWeight float64 `mapstructure:"volatility_weight"`
	// MinDepthCoverage is the fraction of the required quantity each leg's
	// book must cover before liquidity scores above zero.
	MinDepthCoverage float64 `mapstructure:"min_depth_coverage"`

	// Confidence band boundaries; configuration, not domain constants.
	AltaExcessPercent  float64 `mapstructure:"alta_excess_percent"`
	AltaMinLiquidity   float64 `mapstructure:"alta_min_liquidity"`
	AltaMaxVolatility  float64 `mapstructure:"alta_max_volatility"`
	MediaExcessPercent float64 `mapstructure:"media_excess_percent"`
	MediaMinLiquidity  float64 `mapstructure:"media_min_liquidity"`
}

// AcquisitionConfig bounds the fetch worker pool.
type AcquisitionConfig struct {
	Workers        int     `mapstructure:"workers"`
	TimeoutSeconds float64 `mapstructure:"timeout_seconds"`
	IntervalSec    int     `mapstructure:"interval_sec"`
}

// TransferPath declares a known asset transfer route between two venues.
// Cross-venue fiat roundtrips require one.
type TransferPath struct {
	From  string `mapstructure:"from"`
	To    string `mapstructure:"to"`
	Asset string `mapstructure:"asset"`
}

// HistoryConfig locates the outcome log and schedules re-analysis.
type HistoryConfig struct {
	LogPath      string  `mapstructure:"log_path"`
	AnalyzeCron  string  `mapstructure:"analyze_cron"`
	MinSamples   int     `mapstructure:"min_samples"`
	CapitalQuote float64 `mapstructure:"capital_quote"`
}

// TelegramConfig configures the alert collaborator.
type TelegramConfig struct {
	Enabled  bool    `mapstructure:"enabled"`
	BotToken string  `mapstructure:"bot_token"`
	ChatIDs  []int64 `mapstructure:"chat_ids"`
	// MinRenotifyDeltaPercent suppresses re-alerts for an opportunity until
	// its net percent moved by at least this much.
	MinRenotifyDeltaPercent float64 `mapstructure:"min_renotify_delta_percent"`
}

// DashboardConfig configures the HTTP server.
type DashboardConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// PostgresConfig configures the outcome repository.
type PostgresConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

// RedisConfig configures the optional Redis-backed account ledger and
// quote cache. A zero QuoteCacheTTLSec disables the quote cache while
// leaving the ledger active.
type RedisConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	Addr             string `mapstructure:"addr"`
	DB               int    `mapstructure:"db"`
	QuoteCacheTTLSec int    `mapstructure:"quote_cache_ttl_sec"`
}

// Load reads configuration from a yaml file plus environment overrides and
// validates it eagerly. A schema violation here is fatal at startup.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("ARBRUN")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("simulation_capital_quote", 1000.0)
	v.SetDefault("acquisition.workers", 8)
	v.SetDefault("acquisition.timeout_seconds", 10.0)
	v.SetDefault("acquisition.interval_sec", 30)
	v.SetDefault("quote_quality.max_age_seconds", map[string]any{"default": 120.0})
	v.SetDefault("quote_quality.max_mid_deviation_percent", 5.0)
	v.SetDefault("quote_quality.max_spread_percent", 8.0)
	v.SetDefault("scoring.net_weight", 1.0)
	v.SetDefault("scoring.liquidity_weight", 0.5)
	v.SetDefault("scoring.volatility_weight", 0.5)
	v.SetDefault("scoring.min_depth_coverage", 0.25)
	v.SetDefault("scoring.alta_excess_percent", 0.5)
	v.SetDefault("scoring.alta_min_liquidity", 0.6)
	v.SetDefault("scoring.alta_max_volatility", 0.4)
	v.SetDefault("scoring.media_excess_percent", 0.1)
	v.SetDefault("scoring.media_min_liquidity", 0.3)
	v.SetDefault("history.analyze_cron", "0 3 * * *")
	v.SetDefault("history.min_samples", 10)
}

// Validate checks the schema eagerly so misconfiguration fails at load time
// instead of at point of use.
func (c *Config) Validate() error {
	if len(c.Pairs) == 0 {
		return fmt.Errorf("pairs must not be empty")
	}
	for _, p := range c.Pairs {
		parts := strings.Split(p, "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return fmt.Errorf("pair %q is not BASE/QUOTE", p)
		}
	}
	if c.ThresholdPercent <= 0 {
		return fmt.Errorf("threshold_percent must be positive, got %v", c.ThresholdPercent)
	}
	if c.SimulationCapitalQuote <= 0 {
		return fmt.Errorf("simulation_capital_quote must be positive")
	}
	if c.Acquisition.Workers <= 0 {
		return fmt.Errorf("acquisition.workers must be positive")
	}
	enabled := 0
	for name, vc := range c.Venues {
		if !vc.Enabled {
			continue
		}
		enabled++
		if _, ok := vc.Fees[model.DefaultKey]; !ok {
			return fmt.Errorf("venue %s: fees missing %q entry", name, model.DefaultKey)
		}
	}
	if enabled == 0 {
		return fmt.Errorf("no venues enabled")
	}
	if _, ok := c.QuoteQuality.MaxAgeSeconds[model.DefaultKey]; !ok {
		return fmt.Errorf("quote_quality.max_age_seconds missing %q ceiling", model.DefaultKey)
	}
	if c.QuoteQuality.MaxMidDeviationPercent <= 0 {
		return fmt.Errorf("quote_quality.max_mid_deviation_percent must be positive")
	}
	if c.QuoteQuality.MaxSpreadPercent <= 0 {
		return fmt.Errorf("quote_quality.max_spread_percent must be positive")
	}
	return nil
}

// VenueFees flattens the per-venue fee tables into the shape the opportunity
// builders consume.
func (c *Config) VenueFees() model.VenueFees {
	out := make(model.VenueFees, len(c.Venues))
	for name, vc := range c.Venues {
		fees := make(map[string]model.FeeSchedule, len(vc.Fees))
		for pair, fs := range vc.Fees {
			fees[pair] = fs
		}
		out[name] = fees
	}
	return out
}

// HasTransferPath reports whether assets can move between two venues.
// Same-venue routes always pass.
func (c *Config) HasTransferPath(from, to string) bool {
	if from == to {
		return true
	}
	for _, t := range c.Transfers {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// FetchTimeout returns the per-fetch timeout as a duration.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Acquisition.TimeoutSeconds * float64(time.Second))
}

// Manager holds the live configuration and keeps the last-known-good copy
// across runtime reloads: a reload that fails validation is reported and the
// previous configuration stays in effect.
type Manager struct {
	mu   sync.RWMutex
	path string
	cur  *Config
}

// NewManager loads the initial configuration; errors here are fatal.
func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Manager{path: path, cur: cfg}, nil
}

// NewStaticManager wraps an already-built configuration. Reload is a no-op
// without a backing file; used by tests and embedded callers.
func NewStaticManager(cfg *Config) *Manager {
	return &Manager{cur: cfg}
}

// Current returns the active configuration.
func (m *Manager) Current() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cur
}

// Reload re-reads the file. On failure the previous configuration is
// retained and the error returned to the caller.
func (m *Manager) Reload() error {
	cfg, err := Load(m.path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.cur = cfg
	m.mu.Unlock()
	return nil
}
