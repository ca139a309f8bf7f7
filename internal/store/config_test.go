package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validConfig = `
agents: [alpha, beta]
universe: [AAPL, MSFT]
initial_cash: 10000
init_date: "2024-01-02"
end_date: "2024-01-31"
stop_token: TRADE_DAY_COMPLETE
`

func TestLoadValidConfigAppliesDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha", "beta"}, cfg.Agents)
	assert.Equal(t, 30, cfg.MaxSteps)
	assert.Equal(t, 3, cfg.RetryLimit())
	assert.Equal(t, "LOCAL", cfg.Prices.Source)
	assert.Equal(t, "data", cfg.DataDir)
	assert.True(t, cfg.StartingCash().IsPositive())

	init, end := cfg.DateRange()
	assert.True(t, init.Before(end))
}

func TestExplicitZeroRetrySettingsAreKept(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, validConfig+"max_retries: 0\nbase_delay_seconds: 0\n"))
	require.NoError(t, err)

	assert.Equal(t, 0, cfg.RetryLimit())
	assert.Equal(t, time.Duration(0), cfg.BaseDelay())
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			"no agents",
			`{universe: [AAPL], initial_cash: 100, init_date: "2024-01-02", end_date: "2024-01-03"}`,
			"agents cannot be empty",
		},
		{
			"duplicate agents",
			`{agents: [a, a], universe: [AAPL], initial_cash: 100, init_date: "2024-01-02", end_date: "2024-01-03"}`,
			"duplicate agent identity",
		},
		{
			"cash symbol in universe",
			`{agents: [a], universe: [CASH], initial_cash: 100, init_date: "2024-01-02", end_date: "2024-01-03"}`,
			"reserved",
		},
		{
			"inverted date range",
			`{agents: [a], universe: [AAPL], initial_cash: 100, init_date: "2024-01-31", end_date: "2024-01-02"}`,
			"before init_date",
		},
		{
			"negative cash",
			`{agents: [a], universe: [AAPL], initial_cash: -5, init_date: "2024-01-02", end_date: "2024-01-03"}`,
			"initial_cash must be positive",
		},
		{
			"unknown price source",
			`{agents: [a], universe: [AAPL], initial_cash: 100, init_date: "2024-01-02", end_date: "2024-01-03", prices: {source: CSV}}`,
			"prices.source",
		},
		{
			"http source without base url",
			`{agents: [a], universe: [AAPL], initial_cash: 100, init_date: "2024-01-02", end_date: "2024-01-03", prices: {source: HTTP}}`,
			"base_url",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tc.content))
			require.Error(t, err)
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}
