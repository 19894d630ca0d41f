package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ChainConfig 链与节点配置
type ChainConfig struct {
	ChainID     int64    `yaml:"chain_id" json:"chain_id"`         // 链 ID（默认 Arbitrum One: 42161）
	RPCURLs     []string `yaml:"rpc_urls" json:"rpc_urls"`         // 冗余 RPC 节点列表（轮询使用）
	ExplorerURL string   `yaml:"explorer_url" json:"explorer_url"` // 区块浏览器地址（用于生成交易链接）
}

// EndpointConfig 交易所端点配置
type EndpointConfig struct {
	StreamURL  string `yaml:"stream_url" json:"stream_url"`   // 价格流 WebSocket 地址
	GraphURL   string `yaml:"graph_url" json:"graph_url"`     // 仓位/挂单 GraphQL 地址
	HistoryURL string `yaml:"history_url" json:"history_url"` // K 线历史 REST 地址
}

// TradeDefaults 用户配置的交易默认值（下单流程只读消费）
type TradeDefaults struct {
	Leverage           decimal.Decimal   `yaml:"leverage" json:"leverage"`                         // 默认杠杆
	TakeProfitPercent  decimal.Decimal   `yaml:"take_profit_percent" json:"take_profit_percent"`   // 默认止盈百分比（0 表示不设置）
	StopLossPercent    decimal.Decimal   `yaml:"stop_loss_percent" json:"stop_loss_percent"`       // 默认止损百分比（0 表示不设置）
	SlippagePercent    decimal.Decimal   `yaml:"slippage_percent" json:"slippage_percent"`         // 滑点上限百分比
	TradeSizeTiers     []decimal.Decimal `yaml:"trade_size_tiers" json:"trade_size_tiers"`         // 交易规模档位（稳定币计价）
	ExecutionFeeEther  decimal.Decimal   `yaml:"execution_fee_ether" json:"execution_fee_ether"`   // 链上执行费（ETH）
	MinOrderSizeStable decimal.Decimal   `yaml:"min_order_size_stable" json:"min_order_size_stable"` // 最小下单规模（稳定币）
	MaxOrderSizeStable decimal.Decimal   `yaml:"max_order_size_stable" json:"max_order_size_stable"` // 最大下单规模（稳定币，0 表示不限制）
}

// PollConfig 轮询间隔配置（秒）
type PollConfig struct {
	PositionsInterval int `yaml:"positions_interval" json:"positions_interval"` // 仓位快照轮询间隔，默认 1
	OrdersInterval    int `yaml:"orders_interval" json:"orders_interval"`       // 挂单快照轮询间隔，默认 1
	FundingInterval   int `yaml:"funding_interval" json:"funding_interval"`     // 资金费率轮询间隔，默认 15
	BalanceInterval   int `yaml:"balance_interval" json:"balance_interval"`     // 稳定币余额轮询间隔，默认 10
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level" json:"level"`
	File       string `yaml:"file" json:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

// Config 应用配置
type Config struct {
	Account       string         `yaml:"account" json:"account"` // 账户地址（0x...）
	Chain         ChainConfig    `yaml:"chain" json:"chain"`
	Endpoints     EndpointConfig `yaml:"endpoints" json:"endpoints"`
	Trade         TradeDefaults  `yaml:"trade" json:"trade"`
	Poll          PollConfig     `yaml:"poll" json:"poll"`
	Log           LogConfig      `yaml:"log" json:"log"`
	ControlListen string         `yaml:"control_listen" json:"control_listen"` // 控制面监听地址（可选，如 127.0.0.1:8723）
	SecretDir     string         `yaml:"secret_dir" json:"secret_dir"`         // 凭据库目录
}

// Default 返回带默认值的配置
func Default() *Config {
	return &Config{
		Chain: ChainConfig{
			ChainID:     42161,
			ExplorerURL: "https://arbiscan.io",
		},
		Trade: TradeDefaults{
			Leverage:          decimal.NewFromInt(10),
			SlippagePercent:   decimal.NewFromFloat(0.3),
			ExecutionFeeEther: decimal.NewFromFloat(0.0003),
		},
		Poll: PollConfig{
			PositionsInterval: 1,
			OrdersInterval:    1,
			FundingInterval:   15,
			BalanceInterval:   10,
		},
		Log: LogConfig{
			Level:      "info",
			File:       "logs/connector.log",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 7,
			Compress:   true,
		},
		SecretDir: "data/secrets",
	}
}

// LoadFromFile 从 YAML/JSON 文件加载配置
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析JSON配置失败: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析YAML配置失败: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置完整性
func (c *Config) Validate() error {
	if len(c.Chain.RPCURLs) == 0 {
		return fmt.Errorf("配置缺少 RPC 节点列表 (chain.rpc_urls)")
	}
	if c.Endpoints.StreamURL == "" {
		return fmt.Errorf("配置缺少价格流地址 (endpoints.stream_url)")
	}
	if c.Endpoints.GraphURL == "" {
		return fmt.Errorf("配置缺少查询地址 (endpoints.graph_url)")
	}
	if c.Trade.Leverage.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("默认杠杆必须大于 0")
	}
	return nil
}

// ApplyEnv 用环境变量覆盖敏感/部署相关字段
func (c *Config) ApplyEnv() {
	if v := os.Getenv("GOPERP_ACCOUNT"); v != "" {
		c.Account = v
	}
	if v := os.Getenv("GOPERP_RPC_URLS"); v != "" {
		c.Chain.RPCURLs = strings.Split(v, ",")
	}
	if v := os.Getenv("GOPERP_CONTROL_LISTEN"); v != "" {
		c.ControlListen = v
	}
	if v := os.Getenv("GOPERP_SECRET_DIR"); v != "" {
		c.SecretDir = v
	}
}
