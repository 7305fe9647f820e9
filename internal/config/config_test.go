package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	c := Defaults()

	assert.Equal(t, 180*time.Second, c.Interval())
	assert.Equal(t, 15.0, c.MaxTradePct)
	assert.Equal(t, 3*time.Second, c.PollInterval())
	assert.Equal(t, 100, c.PollMaxAttempts)
	assert.Equal(t, "local", c.DecisionStrategy)
	assert.Equal(t, "USDC", c.BaseAsset)
	assert.Equal(t, []string{"USDC", "USDT", "DAI", "USD", "ETH", "WETH"}, c.SkipTokens)
	assert.Equal(t, "base", c.ChainName)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("interval_ms: 60000\nchain_name: ethereum\nskip_tokens: [USDC, DAI]\n"), 0o600))

	t.Setenv("AGENT_CONFIG_FILE", path)
	t.Setenv("CHAIN_NAME", "base")
	t.Setenv("BASE_ASSET", "usdc")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 60000, c.IntervalMS)
	assert.Equal(t, "base", c.ChainName)
	assert.Equal(t, []string{"USDC", "DAI"}, c.SkipTokens)
	assert.Equal(t, "USDC", c.BaseAsset)
}

func TestLoad_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("interval_ms: [not a number"), 0o600))
	t.Setenv("AGENT_CONFIG_FILE", path)

	_, err := Load()
	assert.Error(t, err)
}

func TestEnvList(t *testing.T) {
	t.Setenv("SKIP_TOKENS", " usdc, weth ,,dai")
	assert.Equal(t, []string{"USDC", "WETH", "DAI"}, envList("SKIP_TOKENS", nil))
	assert.Equal(t, []string{"X"}, envList("UNSET_LIST_KEY", []string{"X"}))
}

func TestValidate(t *testing.T) {
	c := Defaults()
	c.DecisionStrategy = "magic"
	c.StoreDriver = "memory"

	err := c.Validate(zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BANKR_API_KEY is required")
	assert.Contains(t, err.Error(), `DECISION_STRATEGY "magic"`)

	c.BankrAPIKey = "key"
	c.DecisionStrategy = "upstream"
	assert.NoError(t, c.Validate(zerolog.Nop()))

	c.StoreDriver = "postgres"
	assert.ErrorContains(t, c.Validate(zerolog.Nop()), "DB_USER")
}

func TestDSN(t *testing.T) {
	c := Defaults()
	c.DBUser = "agent"
	c.DBPassword = "pw"
	assert.Equal(t, "postgres://agent:pw@localhost:5432/trahn_agent?sslmode=disable", c.DSN())
}
