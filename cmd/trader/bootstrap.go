package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"llm-day-trader/internal/calendar"
	"llm-day-trader/internal/dispatch"
	"llm-day-trader/internal/interfaces"
	"llm-day-trader/internal/ledger"
	"llm-day-trader/internal/llm/claude"
	"llm-day-trader/internal/llm/llmobs"
	"llm-day-trader/internal/llm/openai"
	"llm-day-trader/internal/llm/scripted"
	"llm-day-trader/internal/logger"
	"llm-day-trader/internal/marketdata/kite"
	"llm-day-trader/internal/marketdata/local"
	"llm-day-trader/internal/marketdata/pricehttp"
	"llm-day-trader/internal/marketdata/priceobs"
	"llm-day-trader/internal/marketdata/yahoo"
	"llm-day-trader/internal/prompt"
	"llm-day-trader/internal/retry"
	"llm-day-trader/internal/scheduler"
	"llm-day-trader/internal/search"
	"llm-day-trader/internal/session"
	"llm-day-trader/internal/store"
	"llm-day-trader/internal/trace"
	"llm-day-trader/internal/transcript"
)

// initializeSystem initializes environment, logger and tracer
func initializeSystem() error {
	// Load environment variables
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	return nil
}

// loadConfig loads and returns the configuration
func loadConfig(ctx context.Context, path string) (*store.Config, error) {
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err)
		return nil, err
	}
	return cfg, nil
}

// buildPriceSource initializes the configured price source with observability
func buildPriceSource(ctx context.Context, cfg *store.Config) (interfaces.PriceSource, error) {
	var src interfaces.PriceSource
	switch cfg.Prices.Source {
	case "HTTP":
		logger.Info(ctx, "Using HTTP price service", "base_url", cfg.Prices.BaseURL)
		src = pricehttp.NewSource(cfg.Prices.BaseURL, 30*time.Second)
	case "YAHOO":
		logger.Info(ctx, "Using Yahoo Finance daily bars")
		src = yahoo.NewSource()
	case "KITE":
		logger.Info(ctx, "Using Kite historical daily bars")
		ks, err := kite.NewSource()
		if err != nil {
			return nil, err
		}
		for sym, token := range cfg.Prices.KiteTokens {
			ks.Register(sym, token)
		}
		src = ks
	default:
		logger.Info(ctx, "Using local price files", "dir", cfg.DataDir)
		src = local.NewSource(cfg.DataDir)
	}

	// Wrap with observability middleware
	return priceobs.Wrap(src), nil
}

// buildDecider initializes the LLM decider with observability
func buildDecider(ctx context.Context, cfg *store.Config) interfaces.Decider {
	var decider interfaces.Decider
	switch cfg.LLM.Provider {
	case "OPENAI":
		decider = openai.NewDecider(cfg)
	case "CLAUDE":
		decider = claude.NewDecider(cfg)
	default:
		decider = scripted.NewIdle(cfg.StopToken)
		logger.Warn(ctx, "No LLM provider configured - sessions will end each day without trading")
	}

	// Wrap with observability middleware
	return llmobs.Wrap(decider)
}

// buildSearcher initializes the news search tool
func buildSearcher(ctx context.Context, cfg *store.Config) interfaces.Searcher {
	if !cfg.Search.Enabled {
		logger.Info(ctx, "News search disabled")
		return disabledSearch{}
	}
	return search.NewClient(cfg.SearchTimeout())
}

type disabledSearch struct{}

func (disabledSearch) Search(ctx context.Context, query string, maxResults int) (string, error) {
	return "News search is disabled in this configuration.", nil
}

// system bundles everything a command needs after wiring.
type system struct {
	cfg        *store.Config
	ledger     *ledger.Store
	transcript *transcript.Store
	scheduler  *scheduler.Scheduler
}

// buildSystem wires the full stack for the run command.
func buildSystem(ctx context.Context, cfg *store.Config) (*system, error) {
	led, err := ledger.NewStore(cfg.DataDir, cfg.StartingCash(), cfg.Universe)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	prices, err := buildPriceSource(ctx, cfg)
	if err != nil {
		led.Close()
		return nil, err
	}

	policy := retry.Policy{
		MaxRetries: cfg.RetryLimit(),
		BaseDelay:  cfg.BaseDelay(),
		Jitter:     cfg.RetryJitter,
	}

	cal := calendar.New(cfg.HolidayDates())
	ts := transcript.NewStore(cfg.DataDir)
	disp := dispatch.New(led, prices, buildSearcher(ctx, cfg), policy, cfg.Search.MaxResults)
	builder := prompt.NewBuilder(led, prices, cal, cfg.Universe, cfg.StopToken)
	runner := session.NewRunner(builder, ts, disp, buildDecider(ctx, cfg), policy, cfg.MaxSteps, cfg.StopToken)

	initDate, endDate := cfg.DateRange()
	return &system{
		cfg:        cfg,
		ledger:     led,
		transcript: ts,
		scheduler:  scheduler.New(runner, led, cal, initDate, endDate),
	}, nil
}

func (s *system) close() {
	s.transcript.Close()
	s.ledger.Close()
}
