package domain

import (
	"github.com/shopspring/decimal"
)

// Direction 仓位方向
type Direction string

const (
	DirectionLong  Direction = "LONG"  // 做多
	DirectionShort Direction = "SHORT" // 做空
)

// IsLong 是否做多
func (d Direction) IsLong() bool {
	return d == DirectionLong
}

// Sign 方向符号：做多 +1，做空 -1
func (d Direction) Sign() decimal.Decimal {
	if d.IsLong() {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(-1)
}

// PositionExtra 交易所相关的仓位附加数据
type PositionExtra struct {
	EntryFundingRate decimal.Decimal // 开仓时的累计资金费率（可能为零值，表示缺失）
	HasFundingRate   bool            // EntryFundingRate 是否有效
	IndexToken       string          // 标的代币地址
	CollateralToken  string          // 抵押代币地址
}

// Position 一个已开的杠杆仓位
// 每个轮询周期整体替换（不可变快照列表）；强平价在获取时按当前费用重新计算
type Position struct {
	Pair             Pair            // 交易对
	ID               string          // 仓位 ID
	Size             decimal.Decimal // 仓位规模（稳定币计价）
	Collateral       decimal.Decimal // 抵押金额
	OpenPrice        decimal.Decimal // 开仓价格
	Direction        Direction       // 方向
	Leverage         decimal.Decimal // 杠杆倍数
	LiquidationPrice decimal.Decimal // 强平价格（获取时计算，不单独持久化）
	Extra            PositionExtra   // 交易所附加数据
}
