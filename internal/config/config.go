// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/eventbt/internal/alerting"
	"github.com/tathienbao/eventbt/internal/backtest"
	"github.com/tathienbao/eventbt/internal/broker/paper"
	"github.com/tathienbao/eventbt/internal/execution"
	"github.com/tathienbao/eventbt/internal/metrics"
	"github.com/tathienbao/eventbt/internal/observer"
	"github.com/tathienbao/eventbt/internal/portfolio"
	"github.com/tathienbao/eventbt/internal/risk"
	"github.com/tathienbao/eventbt/internal/strategy"
	"github.com/tathienbao/eventbt/internal/types"
	"gopkg.in/yaml.v3"
)

// DefaultStart dates the seed snapshot when account.start is empty.
var DefaultStart = time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)

// Config represents the full application configuration.
type Config struct {
	Account     AccountConfig     `yaml:"account"`
	Market      MarketConfig      `yaml:"market"`
	Engine      EngineConfig      `yaml:"engine"`
	Portfolio   PortfolioConfig   `yaml:"portfolio"`
	Data        DataConfig        `yaml:"data"`
	Strategy    StrategyConfig    `yaml:"strategy"`
	Execution   ExecutionConfig   `yaml:"execution"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Alerting    AlertingConfig    `yaml:"alerting"`
	Report      ReportConfig      `yaml:"report"`
}

// AccountConfig holds account-related settings.
type AccountConfig struct {
	InitialCapital float64 `yaml:"initial_capital"`
	Start          string  `yaml:"start"` // RFC3339 or YYYY-MM-DD
}

// MarketConfig lists the traded instruments.
type MarketConfig struct {
	Instruments []string `yaml:"instruments"`
}

// EngineConfig holds event loop settings.
type EngineConfig struct {
	Heartbeat      time.Duration `yaml:"heartbeat"`
	ProgressBuffer int           `yaml:"progress_buffer"`
}

// PortfolioConfig holds sizing and fill valuation settings.
type PortfolioConfig struct {
	LotSize         int64  `yaml:"lot_size"`
	ScaleByStrength *bool  `yaml:"scale_by_strength"` // nil means true
	AllowShort      bool   `yaml:"allow_short"`
	FillPricing     string `yaml:"fill_pricing"` // market | reported
}

// DataConfig selects and configures the bar source.
type DataConfig struct {
	Type        string        `yaml:"type"` // csv | sqlite | clickhouse | websocket
	Path        string        `yaml:"path"` // csv directory or sqlite file
	Table       string        `yaml:"table"`
	Addr        []string      `yaml:"addr"` // clickhouse hosts
	Database    string        `yaml:"database"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	URL         string        `yaml:"url"` // websocket endpoint
	Subscribe   string        `yaml:"subscribe"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	Start       string        `yaml:"start"`
	End         string        `yaml:"end"`
}

// StrategyConfig names the strategy and carries per-strategy parameters.
type StrategyConfig struct {
	Name     string         `yaml:"name"` // mac | breakout | meanrev
	MAC      MACConfig      `yaml:"mac"`
	Breakout BreakoutConfig `yaml:"breakout"`
	MeanRev  MeanRevConfig  `yaml:"meanrev"`
}

// MACConfig holds moving average crossover windows.
type MACConfig struct {
	ShortWindow int `yaml:"short_window"`
	LongWindow  int `yaml:"long_window"`
}

// BreakoutConfig holds breakout parameters.
type BreakoutConfig struct {
	LookbackBars   int     `yaml:"lookback_bars"`
	BreakoutBuffer float64 `yaml:"breakout_buffer"`
	AllowShort     bool    `yaml:"allow_short"`
}

// MeanRevConfig holds mean reversion parameters.
type MeanRevConfig struct {
	Period      int     `yaml:"period"`
	EntryStdDev float64 `yaml:"entry_std_dev"`
	MinStdDev   float64 `yaml:"min_std_dev"`
	AllowShort  bool    `yaml:"allow_short"`
}

// ExecutionConfig holds execution settings.
type ExecutionConfig struct {
	Type               string           `yaml:"type"` // simulated | paper
	Exchange           string           `yaml:"exchange"`
	ReportFillCost     bool             `yaml:"report_fill_cost"`
	Timeout            time.Duration    `yaml:"timeout"`
	MaxRetries         int              `yaml:"max_retries"`
	RetryDelay         time.Duration    `yaml:"retry_delay"`
	RateLimitPerSecond float64          `yaml:"rate_limit_per_second"`
	SlippageBps        float64          `yaml:"slippage_bps"`
	FillDelay          time.Duration    `yaml:"fill_delay"`
	Commission         CommissionConfig `yaml:"commission"`
}

// CommissionConfig holds the default fee schedule.
type CommissionConfig struct {
	PerShareMinimum *float64 `yaml:"per_share_minimum"`
	PercentageCap   *float64 `yaml:"percentage_cap"`
}

// PersistenceConfig holds run journal settings.
type PersistenceConfig struct {
	Enabled bool   `yaml:"enabled"`
	Type    string `yaml:"type"` // sqlite | postgres
	Path    string `yaml:"path"` // for sqlite
	DSN     string `yaml:"dsn"`  // for postgres
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// AlertingConfig holds alerting settings.
type AlertingConfig struct {
	Enabled     bool          `yaml:"enabled"`
	WebhookURL  string        `yaml:"webhook_url"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxDrawdown float64       `yaml:"max_drawdown"` // 0 disables the drawdown alert
}

// ReportConfig holds performance report settings.
type ReportConfig struct {
	Periods      int     `yaml:"periods"`
	RiskFreeRate float64 `yaml:"risk_free_rate"`
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes loads configuration from YAML bytes. Environment
// variables are expanded before parsing.
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Portfolio.LotSize == 0 {
		c.Portfolio.LotSize = risk.DefaultLotSize
	}
	if c.Portfolio.FillPricing == "" {
		c.Portfolio.FillPricing = "market"
	}
	if c.Engine.ProgressBuffer == 0 {
		c.Engine.ProgressBuffer = 64
	}
	if c.Data.Type == "" {
		c.Data.Type = "csv"
	}
	if c.Strategy.Name == "" {
		c.Strategy.Name = "mac"
	}
	if c.Execution.Type == "" {
		c.Execution.Type = "simulated"
	}
	if c.Execution.Timeout == 0 {
		c.Execution.Timeout = execution.DefaultLiveConfig().Timeout
	}
	if c.Execution.RetryDelay == 0 {
		c.Execution.RetryDelay = execution.DefaultLiveConfig().RetryDelay
	}
	if c.Metrics.Port == 0 {
		c.Metrics.Port = metrics.DefaultServerConfig().Port
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = metrics.DefaultServerConfig().MetricsPath
	}
	if c.Report.Periods == 0 {
		c.Report.Periods = backtest.DefaultPeriods
	}
}

// Validate validates the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Account validation
	if c.Account.InitialCapital <= 0 {
		errs = append(errs, "account.initial_capital must be positive")
	}
	if _, err := parseTime(c.Account.Start); err != nil {
		errs = append(errs, fmt.Sprintf("account.start: %v", err))
	}

	// Market validation
	if len(c.Market.Instruments) == 0 {
		errs = append(errs, "market.instruments must not be empty")
	}
	seen := make(map[string]bool, len(c.Market.Instruments))
	for _, sym := range c.Market.Instruments {
		if strings.TrimSpace(sym) == "" {
			errs = append(errs, "market.instruments contains an empty symbol")
			continue
		}
		if seen[sym] {
			errs = append(errs, fmt.Sprintf("market.instruments lists %s twice", sym))
		}
		seen[sym] = true
	}

	if c.Engine.Heartbeat < 0 {
		errs = append(errs, "engine.heartbeat must not be negative")
	}

	// Portfolio validation
	if c.Portfolio.LotSize <= 0 {
		errs = append(errs, "portfolio.lot_size must be positive")
	}
	if _, err := portfolio.ParseFillPricing(c.Portfolio.FillPricing); err != nil {
		errs = append(errs, "portfolio.fill_pricing must be 'market' or 'reported'")
	}

	errs = append(errs, c.validateData()...)
	errs = append(errs, c.validateStrategy()...)

	// Execution validation
	switch c.Execution.Type {
	case "simulated", "paper":
	default:
		errs = append(errs, "execution.type must be 'simulated' or 'paper'")
	}
	if c.Execution.MaxRetries < 0 {
		errs = append(errs, "execution.max_retries must not be negative")
	}
	if c.Execution.RateLimitPerSecond < 0 {
		errs = append(errs, "execution.rate_limit_per_second must not be negative")
	}
	if c.Execution.SlippageBps < 0 {
		errs = append(errs, "execution.slippage_bps must not be negative")
	}
	if v := c.Execution.Commission.PerShareMinimum; v != nil && *v < 0 {
		errs = append(errs, "execution.commission.per_share_minimum must not be negative")
	}
	if v := c.Execution.Commission.PercentageCap; v != nil && *v < 0 {
		errs = append(errs, "execution.commission.percentage_cap must not be negative")
	}

	// Persistence validation
	if c.Persistence.Enabled {
		if c.Persistence.Type != "sqlite" && c.Persistence.Type != "postgres" {
			errs = append(errs, "persistence.type must be 'sqlite' or 'postgres'")
		}
		if c.Persistence.Type == "sqlite" && c.Persistence.Path == "" {
			errs = append(errs, "persistence.path is required for sqlite")
		}
		if c.Persistence.Type == "postgres" && c.Persistence.DSN == "" {
			errs = append(errs, "persistence.dsn is required for postgres")
		}
	}

	if c.Metrics.Enabled && (c.Metrics.Port < 0 || c.Metrics.Port > 65535) {
		errs = append(errs, "metrics.port must be between 0 and 65535")
	}

	if c.Alerting.MaxDrawdown < 0 || c.Alerting.MaxDrawdown >= 1 {
		errs = append(errs, "alerting.max_drawdown must be between 0 and 1")
	}

	if c.Report.Periods <= 0 {
		errs = append(errs, "report.periods must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", types.ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateData() []string {
	var errs []string
	switch c.Data.Type {
	case "csv", "sqlite":
		if c.Data.Path == "" {
			errs = append(errs, fmt.Sprintf("data.path is required for %s", c.Data.Type))
		}
	case "clickhouse":
		if len(c.Data.Addr) == 0 {
			errs = append(errs, "data.addr is required for clickhouse")
		}
	case "websocket":
		if c.Data.URL == "" {
			errs = append(errs, "data.url is required for websocket")
		}
	default:
		errs = append(errs, "data.type must be one of csv, sqlite, clickhouse, websocket")
	}

	start, err := parseTime(c.Data.Start)
	if err != nil {
		errs = append(errs, fmt.Sprintf("data.start: %v", err))
	}
	end, err := parseTime(c.Data.End)
	if err != nil {
		errs = append(errs, fmt.Sprintf("data.end: %v", err))
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		errs = append(errs, "data.end must not be before data.start")
	}
	return errs
}

func (c *Config) validateStrategy() []string {
	var errs []string
	switch c.Strategy.Name {
	case "mac":
		if err := c.MACConfig().Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("strategy.mac: %v", err))
		}
	case "breakout":
		if c.Strategy.Breakout.LookbackBars < 0 {
			errs = append(errs, "strategy.breakout.lookback_bars must not be negative")
		}
	case "meanrev":
		if p := c.Strategy.MeanRev.Period; p != 0 && p < 2 {
			errs = append(errs, "strategy.meanrev.period must be at least 2")
		}
	default:
		errs = append(errs, "strategy.name must be one of mac, breakout, meanrev")
	}
	return errs
}

// parseTime accepts RFC3339 or a plain date. Empty gives the zero time.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither RFC3339 nor YYYY-MM-DD", s)
	}
	return t, nil
}

// InitialCapital returns the starting cash as decimal.
func (c *Config) InitialCapital() decimal.Decimal {
	return decimal.NewFromFloat(c.Account.InitialCapital)
}

// StartTime returns the date of the seed snapshot.
func (c *Config) StartTime() time.Time {
	t, _ := parseTime(c.Account.Start)
	if t.IsZero() {
		return DefaultStart
	}
	return t
}

// DataRange returns the inclusive bar window; zero bounds are open.
func (c *Config) DataRange() (start, end time.Time) {
	start, _ = parseTime(c.Data.Start)
	end, _ = parseTime(c.Data.End)
	return start, end
}

// SizingPolicy converts to risk.SizingPolicy.
func (c *Config) SizingPolicy() risk.SizingPolicy {
	scale := true
	if c.Portfolio.ScaleByStrength != nil {
		scale = *c.Portfolio.ScaleByStrength
	}
	return risk.SizingPolicy{
		LotSize:         c.Portfolio.LotSize,
		ScaleByStrength: scale,
		AllowShort:      c.Portfolio.AllowShort,
	}
}

// FillPricing returns the parsed fill valuation policy.
func (c *Config) FillPricing() portfolio.FillPricing {
	p, _ := portfolio.ParseFillPricing(c.Portfolio.FillPricing)
	return p
}

// BacktestConfig converts to backtest.Config.
func (c *Config) BacktestConfig() backtest.Config {
	return backtest.Config{
		InitialCapital: c.InitialCapital(),
		Start:          c.StartTime(),
		Heartbeat:      c.Engine.Heartbeat,
		Sizing:         c.SizingPolicy(),
		FillPricing:    c.FillPricing(),
		RiskFreeRate:   decimal.NewFromFloat(c.Report.RiskFreeRate),
		Periods:        c.Report.Periods,
	}
}

// CommissionSchedule returns the configured fee schedule, defaulting
// each rate that is not set.
func (c *Config) CommissionSchedule() types.CommissionSchedule {
	s := types.DefaultCommissionSchedule()
	if v := c.Execution.Commission.PerShareMinimum; v != nil {
		s.PerShareMinimum = decimal.NewFromFloat(*v)
	}
	if v := c.Execution.Commission.PercentageCap; v != nil {
		s.PercentageCap = decimal.NewFromFloat(*v)
	}
	return s
}

// SimulatedConfig converts to execution.SimulatedConfig.
func (c *Config) SimulatedConfig() execution.SimulatedConfig {
	cfg := execution.DefaultSimulatedConfig()
	if c.Execution.Exchange != "" {
		cfg.Exchange = c.Execution.Exchange
	}
	cfg.ReportFillCost = c.Execution.ReportFillCost
	cfg.Commission = c.CommissionSchedule()
	return cfg
}

// LiveConfig converts to execution.LiveConfig.
func (c *Config) LiveConfig() execution.LiveConfig {
	return execution.LiveConfig{
		Timeout:            c.Execution.Timeout,
		MaxRetries:         c.Execution.MaxRetries,
		RetryDelay:         c.Execution.RetryDelay,
		RateLimitPerSecond: c.Execution.RateLimitPerSecond,
		Commission:         c.CommissionSchedule(),
	}
}

// PaperConfig converts to paper.Config.
func (c *Config) PaperConfig() paper.Config {
	cfg := paper.DefaultConfig()
	if c.Execution.Exchange != "" {
		cfg.Exchange = c.Execution.Exchange
	}
	cfg.SlippageBps = decimal.NewFromFloat(c.Execution.SlippageBps)
	cfg.Commission = c.CommissionSchedule()
	if c.Execution.FillDelay > 0 {
		cfg.FillDelay = c.Execution.FillDelay
	}
	return cfg
}

// MACConfig converts to strategy.MACConfig, defaulting zero windows.
func (c *Config) MACConfig() strategy.MACConfig {
	cfg := strategy.DefaultMACConfig()
	if c.Strategy.MAC.ShortWindow > 0 {
		cfg.ShortWindow = c.Strategy.MAC.ShortWindow
	}
	if c.Strategy.MAC.LongWindow > 0 {
		cfg.LongWindow = c.Strategy.MAC.LongWindow
	}
	return cfg
}

// BreakoutConfig converts to strategy.BreakoutConfig.
func (c *Config) BreakoutConfig() strategy.BreakoutConfig {
	cfg := strategy.DefaultBreakoutConfig()
	if c.Strategy.Breakout.LookbackBars > 0 {
		cfg.LookbackBars = c.Strategy.Breakout.LookbackBars
	}
	if c.Strategy.Breakout.BreakoutBuffer > 0 {
		cfg.BreakoutBuffer = decimal.NewFromFloat(c.Strategy.Breakout.BreakoutBuffer)
	}
	cfg.AllowShort = c.Strategy.Breakout.AllowShort
	return cfg
}

// MeanRevConfig converts to strategy.MeanRevConfig.
func (c *Config) MeanRevConfig() strategy.MeanRevConfig {
	cfg := strategy.DefaultMeanRevConfig()
	if c.Strategy.MeanRev.Period > 0 {
		cfg.Period = c.Strategy.MeanRev.Period
	}
	if c.Strategy.MeanRev.EntryStdDev > 0 {
		cfg.EntryStdDev = decimal.NewFromFloat(c.Strategy.MeanRev.EntryStdDev)
	}
	if c.Strategy.MeanRev.MinStdDev > 0 {
		cfg.MinStdDev = decimal.NewFromFloat(c.Strategy.MeanRev.MinStdDev)
	}
	cfg.AllowShort = c.Strategy.MeanRev.AllowShort
	return cfg
}

// ClickHouseConfig converts to observer.ClickHouseConfig.
func (c *Config) ClickHouseConfig() observer.ClickHouseConfig {
	return observer.ClickHouseConfig{
		Addr:     c.Data.Addr,
		Database: c.Data.Database,
		Username: c.Data.Username,
		Password: c.Data.Password,
		Table:    c.Data.Table,
	}
}

// LiveSourceConfig converts to observer.LiveConfig.
func (c *Config) LiveSourceConfig() observer.LiveConfig {
	cfg := observer.LiveConfig{
		URL:         c.Data.URL,
		Symbols:     c.Market.Instruments,
		ReadTimeout: c.Data.ReadTimeout,
	}
	if c.Data.Subscribe != "" {
		cfg.Subscribe = []byte(c.Data.Subscribe)
	}
	return cfg
}

// PersistenceTarget returns the file path or connection string the run
// journal opens.
func (c *Config) PersistenceTarget() string {
	if c.Persistence.Type == "postgres" {
		return c.Persistence.DSN
	}
	return c.Persistence.Path
}

// ServerConfig converts to metrics.ServerConfig.
func (c *Config) ServerConfig() metrics.ServerConfig {
	cfg := metrics.DefaultServerConfig()
	cfg.Port = c.Metrics.Port
	cfg.MetricsPath = c.Metrics.Path
	return cfg
}

// DrawdownLimit returns the drawdown alert threshold, zero when unset.
func (c *Config) DrawdownLimit() decimal.Decimal {
	return decimal.NewFromFloat(c.Alerting.MaxDrawdown)
}

// WebhookConfig converts to alerting.WebhookConfig.
func (c *Config) WebhookConfig() alerting.WebhookConfig {
	return alerting.WebhookConfig{
		URL:     c.Alerting.WebhookURL,
		Timeout: c.Alerting.Timeout,
	}
}
