package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceQuote 交易对的最新已知价格
// 订阅期间每个行情 tick 整体覆盖一次；完全退订时从缓存移除
type PriceQuote struct {
	Pair   Pair            // 交易对
	Price  decimal.Decimal // 价格（任意精度小数）
	Time   time.Time       // 行情发布时间
	Volume decimal.Decimal // 成交量（可选，feed 不提供时为零）
}

// Candle 历史价格 K 线
type Candle struct {
	Time   time.Time       // K 线起始时间
	Open   decimal.Decimal // 开盘价
	High   decimal.Decimal // 最高价
	Low    decimal.Decimal // 最低价
	Close  decimal.Decimal // 收盘价
	Volume decimal.Decimal // 成交量
}
