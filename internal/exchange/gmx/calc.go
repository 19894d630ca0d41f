package gmx

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/perpdesk/goperp/internal/domain"
)

// FundingRates 累计资金费率缓存（交易对 x 方向）
// 由资金费率轮询器独占写入，其他组件只读
type FundingRates struct {
	mu    sync.RWMutex
	rates map[domain.Pair]map[domain.Direction]decimal.Decimal
}

// NewFundingRates 创建资金费率缓存
func NewFundingRates() *FundingRates {
	return &FundingRates{
		rates: make(map[domain.Pair]map[domain.Direction]decimal.Decimal),
	}
}

// Get 读取累计资金费率
func (f *FundingRates) Get(pair domain.Pair, dir domain.Direction) (decimal.Decimal, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	byDir, ok := f.rates[pair]
	if !ok {
		return decimal.Zero, false
	}
	rate, ok := byDir[dir]
	return rate, ok
}

// Set 写入累计资金费率
func (f *FundingRates) Set(pair domain.Pair, dir domain.Direction, rate decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	byDir, ok := f.rates[pair]
	if !ok {
		byDir = make(map[domain.Direction]decimal.Decimal, 2)
		f.rates[pair] = byDir
	}
	byDir[dir] = rate
}

// Calculator 纯函数金融计算：保证金费、资金费、强平价、盈亏百分比
// 无状态；资金费率从缓存读入
type Calculator struct {
	marginFeeBasisPoints decimal.Decimal
	basisPointsDivisor   decimal.Decimal
	fundingRatePrecision decimal.Decimal
	maxLeverageDivisor   decimal.Decimal
	liquidationFee       decimal.Decimal
}

// NewCalculator 使用合约常量创建计算器
func NewCalculator() *Calculator {
	return &Calculator{
		marginFeeBasisPoints: decimal.NewFromInt(MarginFeeBasisPoints),
		basisPointsDivisor:   decimal.NewFromInt(BasisPointsDivisor),
		fundingRatePrecision: decimal.NewFromInt(FundingRatePrecision),
		maxLeverageDivisor:   decimal.NewFromInt(MaxLeverageDivisor),
		liquidationFee:       LiquidationFeeUSD,
	}
}

// MarginFee 保证金费 = size * marginFeeBasisPoints / basisPointsDivisor
func (c *Calculator) MarginFee(size decimal.Decimal) decimal.Decimal {
	return size.Mul(c.marginFeeBasisPoints).Div(c.basisPointsDivisor)
}

// FundingFee 资金费 = size * (累计费率 - 开仓费率) / fundingRatePrecision
// 仓位缺少开仓费率时资金费为 0
func (c *Calculator) FundingFee(pos domain.Position, rates *FundingRates) decimal.Decimal {
	if !pos.Extra.HasFundingRate {
		return decimal.Zero
	}
	cumulative, ok := rates.Get(pos.Pair, pos.Direction)
	if !ok {
		return decimal.Zero
	}
	return pos.Size.Mul(cumulative.Sub(pos.Extra.EntryFundingRate)).Div(c.fundingRatePrecision)
}

// priceFromFeeDelta 从费用差额推导候选强平价
// 费用超过抵押时仓位开仓即处于水下，位移方向翻转
func (c *Calculator) priceFromFeeDelta(delta, size, collateral, openPrice decimal.Decimal, dir domain.Direction) decimal.Decimal {
	if delta.GreaterThan(collateral) {
		offset := delta.Sub(collateral).Mul(openPrice).Div(size)
		if dir.IsLong() {
			return openPrice.Add(offset)
		}
		return openPrice.Sub(offset)
	}
	offset := collateral.Sub(delta).Mul(openPrice).Div(size)
	if dir.IsLong() {
		return openPrice.Sub(offset)
	}
	return openPrice.Add(offset)
}

// LiquidationPrice 强平价：两个候选价取对仓位更不利的一个
// 候选一用 delta = 总费用（资金费 + 保证金费 + 固定强平费）
// 候选二用 delta = size * basisPointsDivisor / maxLeverageDivisor（最大杠杆代理项）
// 做多取 max，做空取 min
func (c *Calculator) LiquidationPrice(pos domain.Position, rates *FundingRates) decimal.Decimal {
	if pos.Size.IsZero() {
		return decimal.Zero
	}

	totalFees := c.FundingFee(pos, rates).
		Add(c.MarginFee(pos.Size)).
		Add(c.liquidationFee)

	feeCandidate := c.priceFromFeeDelta(totalFees, pos.Size, pos.Collateral, pos.OpenPrice, pos.Direction)

	leverageDelta := pos.Size.Mul(c.basisPointsDivisor).Div(c.maxLeverageDivisor)
	leverageCandidate := c.priceFromFeeDelta(leverageDelta, pos.Size, pos.Collateral, pos.OpenPrice, pos.Direction)

	if pos.Direction.IsLong() {
		if feeCandidate.GreaterThan(leverageCandidate) {
			return feeCandidate
		}
		return leverageCandidate
	}
	if feeCandidate.LessThan(leverageCandidate) {
		return feeCandidate
	}
	return leverageCandidate
}

// PnlPercentBeforeFees 费前盈亏百分比 = ((现价/开仓价) - 1) * 100 * 杠杆 * 方向符号
func (c *Calculator) PnlPercentBeforeFees(pos domain.Position, currentPrice decimal.Decimal) decimal.Decimal {
	if pos.OpenPrice.IsZero() {
		return decimal.Zero
	}
	return currentPrice.Div(pos.OpenPrice).
		Sub(decimal.NewFromInt(1)).
		Mul(decimal.NewFromInt(100)).
		Mul(pos.Leverage).
		Mul(pos.Direction.Sign())
}
