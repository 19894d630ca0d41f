package gmx

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/perpdesk/goperp/internal/domain"
)

// 合约常量（与链上 Vault 参数一致）
const (
	// BasisPointsDivisor 基点除数
	BasisPointsDivisor = 10000
	// MarginFeeBasisPoints 保证金费率（基点）
	MarginFeeBasisPoints = 10
	// FundingRatePrecision 资金费率精度
	FundingRatePrecision = 1000000
	// MaxLeverageDivisor 最大杠杆代理项除数（delta = size * BasisPointsDivisor / MaxLeverageDivisor）
	MaxLeverageDivisor = 1000000
)

// LiquidationFeeUSD 固定强平费（稳定币计价）
var LiquidationFeeUSD = decimal.NewFromInt(5)

// Market 单个可交易市场的静态参数
type Market struct {
	Pair       domain.Pair     // 规范化交易对
	FeedID     string          // 价格流 feed id
	IndexToken string          // 标的代币地址
	MinSize    decimal.Decimal // 最小下单规模（稳定币）
	MaxSize    decimal.Decimal // 最大下单规模（稳定币，零值表示不限制）
}

// Markets 市场注册表：交易对 <-> feed id / 标的代币 多向索引
type Markets struct {
	byPair  map[domain.Pair]Market
	byFeed  map[string]domain.Pair
	byToken map[string]domain.Pair // 标的代币地址（小写）-> 交易对
}

// NewMarkets 构建市场注册表
func NewMarkets(list []Market) *Markets {
	m := &Markets{
		byPair:  make(map[domain.Pair]Market, len(list)),
		byFeed:  make(map[string]domain.Pair, len(list)),
		byToken: make(map[string]domain.Pair, len(list)),
	}
	for _, mk := range list {
		m.byPair[mk.Pair] = mk
		m.byFeed[mk.FeedID] = mk.Pair
		m.byToken[strings.ToLower(mk.IndexToken)] = mk.Pair
	}
	return m
}

// PairByToken 按标的代币地址反查交易对
func (m *Markets) PairByToken(token string) (domain.Pair, bool) {
	p, ok := m.byToken[strings.ToLower(token)]
	return p, ok
}

// ByPair 按交易对查找市场
func (m *Markets) ByPair(pair domain.Pair) (Market, bool) {
	mk, ok := m.byPair[pair]
	return mk, ok
}

// PairByFeed 按 feed id 反查交易对
func (m *Markets) PairByFeed(feedID string) (domain.Pair, bool) {
	p, ok := m.byFeed[feedID]
	return p, ok
}

// Pairs 返回所有已注册交易对
func (m *Markets) Pairs() []domain.Pair {
	pairs := make([]domain.Pair, 0, len(m.byPair))
	for p := range m.byPair {
		pairs = append(pairs, p)
	}
	return pairs
}
