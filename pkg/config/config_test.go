package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Account = "0x1234"
	cfg.Chain.RPCURLs = []string{"https://arb1.example.com"}
	cfg.Endpoints.StreamURL = "wss://stream.example.com"
	cfg.Endpoints.GraphURL = "https://graph.example.com"
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, int64(42161), cfg.Chain.ChainID)
	assert.True(t, cfg.Trade.Leverage.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, 1, cfg.Poll.PositionsInterval)
	assert.Equal(t, 15, cfg.Poll.FundingInterval)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, validConfig().Validate())

	cfg := validConfig()
	cfg.Chain.RPCURLs = nil
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Endpoints.StreamURL = ""
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Endpoints.GraphURL = ""
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Trade.Leverage = decimal.Zero
	assert.Error(t, cfg.Validate())
}

func TestLoadFromFile_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
account: "0xabc"
chain:
  rpc_urls:
    - https://arb1.example.com
    - https://arb2.example.com
  explorer_url: https://arbiscan.io
endpoints:
  stream_url: wss://stream.example.com
  graph_url: https://graph.example.com
  history_url: https://history.example.com
trade:
  leverage: 20
  slippage_percent: 0.5
poll:
  positions_interval: 2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "0xabc", cfg.Account)
	assert.Len(t, cfg.Chain.RPCURLs, 2)
	assert.True(t, cfg.Trade.Leverage.Equal(decimal.NewFromInt(20)))
	assert.True(t, cfg.Trade.SlippagePercent.Equal(decimal.NewFromFloat(0.5)))
	assert.Equal(t, 2, cfg.Poll.PositionsInterval)
	// 未覆盖的字段保留默认值
	assert.Equal(t, int64(42161), cfg.Chain.ChainID)
	assert.Equal(t, 15, cfg.Poll.FundingInterval)
}

func TestLoadFromFile_InvalidFailsValidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("account: '0xabc'\n"), 0o644))

	_, err := LoadFromFile(path)
	assert.Error(t, err, "缺少必填字段应该校验失败")
}

func TestLoadFromFile_Missing(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := validConfig()

	t.Setenv("GOPERP_ACCOUNT", "0xenv")
	t.Setenv("GOPERP_RPC_URLS", "https://a.example.com,https://b.example.com")
	t.Setenv("GOPERP_CONTROL_LISTEN", "127.0.0.1:8723")

	cfg.ApplyEnv()
	assert.Equal(t, "0xenv", cfg.Account)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Chain.RPCURLs)
	assert.Equal(t, "127.0.0.1:8723", cfg.ControlListen)
}
