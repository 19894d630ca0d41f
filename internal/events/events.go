package events

import (
	"time"

	"github.com/perpdesk/goperp/internal/domain"
)

// QuoteEvent 价格行情事件
type QuoteEvent struct {
	Quote     domain.PriceQuote
	Timestamp time.Time
}

// PositionsEvent 仓位快照事件（整体替换后的新快照）
type PositionsEvent struct {
	Positions []domain.Position
	Timestamp time.Time
}

// OrdersEvent 挂单快照事件（整体替换后的新快照）
type OrdersEvent struct {
	Orders    []domain.Order
	Timestamp time.Time
}

// TxStatus 交易状态
type TxStatus string

const (
	TxStatusPending TxStatus = "pending" // 已提交待确认
	TxStatusSuccess TxStatus = "success" // 确认成功
	TxStatusFailed  TxStatus = "failed"  // 确认失败
)

// TxEvent 链上交易事件
type TxEvent struct {
	Hash      string   // 交易哈希
	Status    TxStatus // 交易状态
	Link      string   // 浏览器链接
	Timestamp time.Time
}
