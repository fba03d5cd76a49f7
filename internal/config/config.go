// Package config loads the HighTrade configuration: a YAML file for
// structure and thresholds, with secrets (API keys, webhook URLs) overlaid
// from the process environment or a .env file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration.
type Config struct {
	CycleIntervalSec int    `yaml:"cycle_interval_sec"`
	StateDir         string `yaml:"state_dir"`
	BrokerMode       string `yaml:"broker_mode"` // disabled | semi_auto | full_auto
	LogLevel         string `yaml:"log_level"`
	MetricsAddr      string `yaml:"metrics_addr"` // e.g. ":9090"; empty disables the endpoint

	Storage StorageConfig `yaml:"storage"`

	Dedup      DedupConfig                `yaml:"dedup"`
	RateLimits map[string]RateLimitConfig `yaml:"rate_limits"`
	Defcon     DefconConfig               `yaml:"defcon"`
	Exit       ExitConfig                 `yaml:"exit"`
	Sources    map[string]SourceConfig    `yaml:"sources"`
	Market     MarketConfig               `yaml:"market"`
	News       NewsConfig                 `yaml:"news"`
	Alerts     AlertsConfig               `yaml:"alerts"`
	Entries    EntriesConfig              `yaml:"entries"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver string `yaml:"driver"` // sqlite | postgres | memory
	Path   string `yaml:"path"`   // sqlite file path (relative to state_dir if not absolute)
	DSN    string `yaml:"dsn"`    // postgres DSN; HIGHTRADE_PG_DSN overrides
}

// DedupConfig controls phase-2 content deduplication.
type DedupConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

// RateLimitConfig is per-source pacing.
type RateLimitConfig struct {
	RPM   int `yaml:"rpm"`
	MinMS int `yaml:"min_ms"`
}

// DefconConfig carries sub-signal weight overrides.
type DefconConfig struct {
	Weights WeightsConfig `yaml:"weights"`
}

// WeightsConfig are the composite-score weights. They are renormalized at
// load time if they do not sum to 1. Sentiment defaults to 0: sentiment
// skew contributes only through news_score unless explicitly enabled.
type WeightsConfig struct {
	NewsScore      float64 `yaml:"news_score"`
	VIXComponent   float64 `yaml:"vix_component"`
	YieldComponent float64 `yaml:"yield_component"`
	SP500Drawdown  float64 `yaml:"sp500_drawdown"`
	BreakingBias   float64 `yaml:"breaking_bias"`
	Sentiment      float64 `yaml:"sentiment"`
}

// ExitConfig are the exit-strategy thresholds.
type ExitConfig struct {
	ProfitTarget   float64 `yaml:"profit_target"`    // +0.05
	StopLoss       float64 `yaml:"stop_loss"`        // -0.03
	TrailingStop   float64 `yaml:"trailing_stop"`    // 0.02 drawdown from peak
	MaxHoldHours   float64 `yaml:"max_hold_hours"`   // 72
	MinHoldMinutes float64 `yaml:"min_hold_minutes"` // 60
}

// SourceConfig describes one news source.
type SourceConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Kind           string `yaml:"kind"` // alpha_vantage | rss
	Endpoint       string `yaml:"endpoint"`
	APIKey         string `yaml:"api_key"` // usually from env
	APIKeyEnv      string `yaml:"api_key_env"`
	RateLimiterKey string `yaml:"rate_limiter_key"`
}

// MarketConfig configures the quotes/macro client.
type MarketConfig struct {
	Endpoint       string   `yaml:"endpoint"`
	APIKeyEnv      string   `yaml:"api_key_env"`
	RateLimiterKey string   `yaml:"rate_limiter_key"`
	Symbols        []string `yaml:"symbols"` // watchlist to mark each cycle
}

// NewsConfig holds the classification lexicons. Defaults are small and
// sane so the system runs out of the box; production deployments are
// expected to override them.
type NewsConfig struct {
	UrgencyKeywords   map[string][]string `yaml:"urgency_keywords"` // tier -> keywords
	RelevanceLexicon  []string            `yaml:"relevance_lexicon"`
	BearishKeywords   []string            `yaml:"bearish_keywords"`
	BullishKeywords   []string            `yaml:"bullish_keywords"`
	CrisisKeywords    map[string][]string `yaml:"crisis_keywords"` // crisis type -> keywords
	CacheTTLMinutes   int                 `yaml:"cache_ttl_minutes"`
	FetchTimeoutSec   int                 `yaml:"fetch_timeout_sec"`
	MaxFetchRetries   int                 `yaml:"max_fetch_retries"`
}

// AlertsConfig configures the two router channels.
type AlertsConfig struct {
	Urgent ChannelConfig `yaml:"urgent"`
	Silent ChannelConfig `yaml:"silent"`
}

// ChannelConfig is one notification sink. An empty Events list means all
// events for that channel.
type ChannelConfig struct {
	Endpoint    string   `yaml:"endpoint"`
	EndpointEnv string   `yaml:"endpoint_env"`
	Events      []string `yaml:"events"`
}

// EntriesConfig governs defensive entry proposals at low defcon levels.
type EntriesConfig struct {
	Watchlist      []string `yaml:"watchlist"`
	Qty            float64  `yaml:"qty"`
	MaxDefcon      int      `yaml:"max_defcon"` // propose entries only at defcon <= this
	DecisionTTLMin int      `yaml:"decision_ttl_min"`
}

// Load reads the YAML config at path, overlays .env / environment secrets,
// applies defaults, and validates. A missing file yields pure defaults.
func Load(path string) (*Config, error) {
	// .env is optional; environment wins over file values for secrets.
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyDefaults()
	cfg.overlayEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		CycleIntervalSec: 900,
		StateDir:         "state",
		BrokerMode:       "disabled",
		LogLevel:         "info",
		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   "hightrade.db",
		},
		Dedup: DedupConfig{SimilarityThreshold: 0.6},
		RateLimits: map[string]RateLimitConfig{
			"alpha_vantage": {RPM: 5, MinMS: 12000},
			"rss":           {RPM: 60, MinMS: 1000},
			"quotes":        {RPM: 5, MinMS: 12000},
		},
		Defcon: DefconConfig{
			Weights: WeightsConfig{
				NewsScore:      0.40,
				VIXComponent:   0.20,
				YieldComponent: 0.15,
				SP500Drawdown:  0.15,
				BreakingBias:   0.10,
				Sentiment:      0,
			},
		},
		Exit: ExitConfig{
			ProfitTarget:   0.05,
			StopLoss:       -0.03,
			TrailingStop:   0.02,
			MaxHoldHours:   72,
			MinHoldMinutes: 60,
		},
		Sources: map[string]SourceConfig{
			"alpha_vantage_news": {
				Enabled:        true,
				Kind:           "alpha_vantage",
				Endpoint:       "https://www.alphavantage.co/query",
				APIKeyEnv:      "ALPHA_VANTAGE_API_KEY",
				RateLimiterKey: "alpha_vantage",
			},
		},
		Market: MarketConfig{
			Endpoint:       "https://www.alphavantage.co/query",
			APIKeyEnv:      "ALPHA_VANTAGE_API_KEY",
			RateLimiterKey: "quotes",
			Symbols:        []string{"SPY", "GLD", "TLT"},
		},
		News: NewsConfig{
			UrgencyKeywords: map[string][]string{
				"breaking": {"breaking", "crash", "collapse", "emergency", "halt", "default"},
				"high":     {"plunge", "selloff", "surge", "fed", "inflation", "recession"},
			},
			RelevanceLexicon: []string{
				"market", "stocks", "bonds", "fed", "rates", "inflation",
				"recession", "crisis", "selloff", "volatility", "liquidity",
			},
			BearishKeywords: []string{
				"crash", "plunge", "selloff", "fear", "recession", "collapse", "losses", "default",
			},
			BullishKeywords: []string{
				"rally", "surge", "gains", "recovery", "optimism", "record high",
			},
			CrisisKeywords: map[string][]string{
				"market_correction": {"correction", "selloff", "drawdown", "bear market"},
				"inflation_rate":    {"inflation", "cpi", "rate hike", "hawkish"},
				"liquidity_credit":  {"liquidity", "credit", "default", "spread", "bank run"},
				"tech_crash":        {"tech", "nasdaq", "semiconductor", "ai bubble"},
				"geopolitical":      {"war", "sanctions", "invasion", "conflict", "tariff"},
				"systemic":          {"contagion", "systemic", "bailout", "crisis"},
			},
			CacheTTLMinutes: 15,
			FetchTimeoutSec: 5,
			MaxFetchRetries: 3,
		},
		Alerts: AlertsConfig{
			Urgent: ChannelConfig{EndpointEnv: "HIGHTRADE_URGENT_WEBHOOK"},
			Silent: ChannelConfig{EndpointEnv: "HIGHTRADE_SILENT_WEBHOOK"},
		},
		Entries: EntriesConfig{
			Watchlist:      []string{"GLD", "TLT"},
			Qty:            10,
			MaxDefcon:      2,
			DecisionTTLMin: 60,
		},
	}
}

// applyDefaults fills zero values the YAML left unset.
func (c *Config) applyDefaults() {
	d := Default()

	if c.CycleIntervalSec <= 0 {
		c.CycleIntervalSec = d.CycleIntervalSec
	}
	if c.StateDir == "" {
		c.StateDir = d.StateDir
	}
	if c.BrokerMode == "" {
		c.BrokerMode = d.BrokerMode
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = d.Storage.Driver
	}
	if c.Storage.Path == "" {
		c.Storage.Path = d.Storage.Path
	}
	if c.Dedup.SimilarityThreshold <= 0 {
		c.Dedup.SimilarityThreshold = d.Dedup.SimilarityThreshold
	}
	if len(c.RateLimits) == 0 {
		c.RateLimits = d.RateLimits
	}
	if c.Defcon.Weights == (WeightsConfig{}) {
		c.Defcon.Weights = d.Defcon.Weights
	}
	if c.Exit == (ExitConfig{}) {
		c.Exit = d.Exit
	}
	if len(c.Sources) == 0 {
		c.Sources = d.Sources
	}
	if c.Market.Endpoint == "" {
		c.Market = d.Market
	}
	if len(c.News.UrgencyKeywords) == 0 {
		c.News.UrgencyKeywords = d.News.UrgencyKeywords
	}
	if len(c.News.RelevanceLexicon) == 0 {
		c.News.RelevanceLexicon = d.News.RelevanceLexicon
	}
	if len(c.News.BearishKeywords) == 0 {
		c.News.BearishKeywords = d.News.BearishKeywords
	}
	if len(c.News.BullishKeywords) == 0 {
		c.News.BullishKeywords = d.News.BullishKeywords
	}
	if len(c.News.CrisisKeywords) == 0 {
		c.News.CrisisKeywords = d.News.CrisisKeywords
	}
	if c.News.CacheTTLMinutes <= 0 {
		c.News.CacheTTLMinutes = d.News.CacheTTLMinutes
	}
	if c.News.FetchTimeoutSec <= 0 {
		c.News.FetchTimeoutSec = d.News.FetchTimeoutSec
	}
	if c.News.MaxFetchRetries <= 0 {
		c.News.MaxFetchRetries = d.News.MaxFetchRetries
	}
	if len(c.Entries.Watchlist) == 0 {
		c.Entries = d.Entries
	}
	if c.Entries.DecisionTTLMin <= 0 {
		c.Entries.DecisionTTLMin = d.Entries.DecisionTTLMin
	}
	if c.Entries.MaxDefcon <= 0 {
		c.Entries.MaxDefcon = d.Entries.MaxDefcon
	}
}

// overlayEnv resolves secrets referenced via *_env keys.
func (c *Config) overlayEnv() {
	for name, src := range c.Sources {
		if src.APIKey == "" && src.APIKeyEnv != "" {
			src.APIKey = os.Getenv(src.APIKeyEnv)
			c.Sources[name] = src
		}
	}
	if c.Alerts.Urgent.Endpoint == "" && c.Alerts.Urgent.EndpointEnv != "" {
		c.Alerts.Urgent.Endpoint = os.Getenv(c.Alerts.Urgent.EndpointEnv)
	}
	if c.Alerts.Silent.Endpoint == "" && c.Alerts.Silent.EndpointEnv != "" {
		c.Alerts.Silent.Endpoint = os.Getenv(c.Alerts.Silent.EndpointEnv)
	}
	if dsn := os.Getenv("HIGHTRADE_PG_DSN"); dsn != "" {
		c.Storage.DSN = dsn
	}
}

// Validate rejects configurations the orchestrator cannot run with.
func (c *Config) Validate() error {
	switch c.BrokerMode {
	case "disabled", "semi_auto", "full_auto":
	default:
		return fmt.Errorf("invalid broker_mode %q", c.BrokerMode)
	}
	switch c.Storage.Driver {
	case "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("invalid storage driver %q", c.Storage.Driver)
	}
	if c.Dedup.SimilarityThreshold <= 0 || c.Dedup.SimilarityThreshold > 1 {
		return fmt.Errorf("dedup.similarity_threshold must be in (0,1], got %v", c.Dedup.SimilarityThreshold)
	}
	if c.Exit.StopLoss >= 0 {
		return fmt.Errorf("exit.stop_loss must be negative, got %v", c.Exit.StopLoss)
	}
	if c.Exit.ProfitTarget <= 0 {
		return fmt.Errorf("exit.profit_target must be positive, got %v", c.Exit.ProfitTarget)
	}
	for name, rl := range c.RateLimits {
		if rl.RPM <= 0 {
			return fmt.Errorf("rate_limits.%s.rpm must be positive", name)
		}
	}
	return nil
}

// CycleInterval returns the main loop period.
func (c *Config) CycleInterval() time.Duration {
	return time.Duration(c.CycleIntervalSec) * time.Second
}
