package store

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"llm-day-trader/internal/types"
)

type Config struct {
	Agents      []string `yaml:"agents"`
	Universe    []string `yaml:"universe"`
	InitialCash float64  `yaml:"initial_cash"`
	InitDate    string   `yaml:"init_date"`
	EndDate     string   `yaml:"end_date"`
	Holidays    []string `yaml:"holidays"`

	MaxSteps int `yaml:"max_steps"`
	// Pointers so an explicit 0 (retries disabled, no backoff delay) stays
	// distinguishable from an absent key.
	MaxRetries       *int     `yaml:"max_retries"`
	BaseDelaySeconds *float64 `yaml:"base_delay_seconds"`
	RetryJitter      bool    `yaml:"retry_jitter"`
	StopToken        string  `yaml:"stop_token"`

	DataDir string `yaml:"data_dir"`

	LLM struct {
		Provider    string  `yaml:"provider"`
		Model       string  `yaml:"model"`
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float32 `yaml:"temperature"`
	} `yaml:"llm"`

	Prices struct {
		Source     string         `yaml:"source"`
		BaseURL    string         `yaml:"base_url"`
		KiteTokens map[string]int `yaml:"kite_tokens"`
	} `yaml:"prices"`

	Search struct {
		Enabled        bool `yaml:"enabled"`
		MaxResults     int  `yaml:"max_results"`
		TimeoutSeconds int  `yaml:"timeout_seconds"`
	} `yaml:"search"`
}

func (c *Config) Validate() error {
	if len(c.Agents) == 0 {
		return errors.New("agents cannot be empty")
	}
	seen := map[string]bool{}
	for _, id := range c.Agents {
		if id == "" {
			return errors.New("agent identity cannot be blank")
		}
		if seen[id] {
			return fmt.Errorf("duplicate agent identity '%s'", id)
		}
		seen[id] = true
	}
	if len(c.Universe) == 0 {
		return errors.New("universe cannot be empty")
	}
	for _, sym := range c.Universe {
		if sym == types.CashSymbol {
			return fmt.Errorf("'%s' is reserved and cannot appear in the universe", types.CashSymbol)
		}
	}
	if c.InitialCash <= 0 {
		return fmt.Errorf("initial_cash must be positive, got %.2f", c.InitialCash)
	}
	init, err := types.ParseDate(c.InitDate)
	if err != nil {
		return fmt.Errorf("init_date: %w", err)
	}
	end, err := types.ParseDate(c.EndDate)
	if err != nil {
		return fmt.Errorf("end_date: %w", err)
	}
	if end.Before(init) {
		return fmt.Errorf("end_date %s is before init_date %s", c.EndDate, c.InitDate)
	}
	for _, h := range c.Holidays {
		if _, err := types.ParseDate(h); err != nil {
			return fmt.Errorf("holidays: %w", err)
		}
	}
	if c.MaxSteps <= 0 {
		return fmt.Errorf("max_steps must be positive, got %d", c.MaxSteps)
	}
	if c.MaxRetries != nil && *c.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", *c.MaxRetries)
	}
	if c.BaseDelaySeconds != nil && *c.BaseDelaySeconds < 0 {
		return fmt.Errorf("base_delay_seconds cannot be negative, got %.2f", *c.BaseDelaySeconds)
	}
	if c.StopToken == "" {
		return errors.New("stop_token cannot be empty")
	}
	switch c.Prices.Source {
	case "LOCAL", "HTTP", "YAHOO", "KITE":
	default:
		return fmt.Errorf("prices.source must be 'LOCAL', 'HTTP', 'YAHOO', or 'KITE', got '%s'", c.Prices.Source)
	}
	if c.Prices.Source == "HTTP" && c.Prices.BaseURL == "" {
		return errors.New("prices.base_url is required when prices.source is 'HTTP'")
	}
	if c.Prices.Source == "KITE" {
		for _, sym := range c.Universe {
			if _, ok := c.Prices.KiteTokens[sym]; !ok {
				return fmt.Errorf("prices.kite_tokens is missing an instrument token for '%s'", sym)
			}
		}
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	if c.MaxSteps == 0 {
		c.MaxSteps = 30
	}
	if c.StopToken == "" {
		c.StopToken = "TRADE_DAY_COMPLETE"
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.Prices.Source == "" {
		c.Prices.Source = "LOCAL"
	}
	if c.Search.MaxResults == 0 {
		c.Search.MaxResults = 5
	}
	if c.Search.TimeoutSeconds == 0 {
		c.Search.TimeoutSeconds = 10
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 1024
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &c, nil
}

// StartingCash returns the configured initial cash as an exact decimal.
func (c *Config) StartingCash() decimal.Decimal {
	return decimal.NewFromFloat(c.InitialCash)
}

// RetryLimit returns the retry attempt budget. A configured 0 disables
// retries; an absent key falls back to the default of 3.
func (c *Config) RetryLimit() int {
	if c.MaxRetries == nil {
		return 3
	}
	return *c.MaxRetries
}

// BaseDelay returns the retry base delay as a duration.
func (c *Config) BaseDelay() time.Duration {
	if c.BaseDelaySeconds == nil {
		return time.Second
	}
	return time.Duration(*c.BaseDelaySeconds * float64(time.Second))
}

// DateRange returns the configured init and end dates. Validate must have
// passed for the values to be meaningful.
func (c *Config) DateRange() (init, end time.Time) {
	init, _ = types.ParseDate(c.InitDate)
	end, _ = types.ParseDate(c.EndDate)
	return init, end
}

// SearchTimeout returns the news search timeout as a duration.
func (c *Config) SearchTimeout() time.Duration {
	return time.Duration(c.Search.TimeoutSeconds) * time.Second
}

// HolidayDates returns the parsed holiday list.
func (c *Config) HolidayDates() []time.Time {
	out := make([]time.Time, 0, len(c.Holidays))
	for _, h := range c.Holidays {
		if d, err := types.ParseDate(h); err == nil {
			out = append(out, d)
		}
	}
	return out
}
