package domain

import (
	"github.com/shopspring/decimal"
)

// OrderType 挂单类型
type OrderType string

const (
	OrderTypeLimit     OrderType = "LIMIT"      // 限价单
	OrderTypeTriggerTP OrderType = "TRIGGER_TP" // 止盈触发单
	OrderTypeTriggerSL OrderType = "TRIGGER_SL" // 止损触发单
)

// OrderExtra 交易所相关的挂单附加数据
type OrderExtra struct {
	ChainIndex            uint64 // 链上订单索引
	TriggerAboveThreshold bool   // 价格上穿触发标志
	Kind                  string // 链上订单种类：increase / decrease
}

// Order 一个待执行的限价/触发挂单
// 每个轮询周期整体替换
type Order struct {
	ID           string          // 挂单 ID
	Pair         Pair            // 交易对
	TriggerPrice decimal.Decimal // 触发价格
	Size         decimal.Decimal // 挂单规模（稳定币计价）
	Direction    Direction       // 方向
	Type         OrderType       // 挂单类型
	ReduceOnly   bool            // 是否只减仓
	Extra        OrderExtra      // 交易所附加数据
}

// ClassifyOrderType 根据方向和触发标志判定挂单类型
//
//	reduceOnly 且 triggerPrice>0：
//	  多头 + 上穿触发 -> TRIGGER_TP；多头 + 下穿触发 -> TRIGGER_SL
//	  空头 + 下穿触发 -> TRIGGER_TP；空头 + 上穿触发 -> TRIGGER_SL
//	其余情况 -> LIMIT
func ClassifyOrderType(reduceOnly bool, triggerPrice decimal.Decimal, isLong, triggerAboveThreshold bool) OrderType {
	if !reduceOnly || !triggerPrice.IsPositive() {
		return OrderTypeLimit
	}
	if isLong == triggerAboveThreshold {
		return OrderTypeTriggerTP
	}
	return OrderTypeTriggerSL
}
