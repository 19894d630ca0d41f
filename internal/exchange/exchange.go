// Package exchange 定义统一的交易所操作集
// 每个具体交易所（如 gmx）实现一套相同的接口；调用方不感知交易所差异
package exchange

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/perpdesk/goperp/internal/domain"
	"github.com/perpdesk/goperp/internal/events"
)

// OrderRequest 开仓/加仓请求
type OrderRequest struct {
	Pair              domain.Pair      // 交易对
	Direction         domain.Direction // 方向
	SizeStable        decimal.Decimal  // 仓位规模（稳定币计价）
	Leverage          decimal.Decimal  // 杠杆（零值使用默认配置）
	LimitPrice        decimal.Decimal  // 限价（零值表示市价单）
	TakeProfitPercent decimal.Decimal  // 止盈百分比（零值回落到默认配置；默认也为 0 时不设止盈）
	StopLossPercent   decimal.Decimal  // 止损百分比（同上）
}

// ReduceOrderRequest 减仓触发单请求
type ReduceOrderRequest struct {
	Position     domain.Position // 要减仓的仓位
	SizeStable   decimal.Decimal // 减仓规模（稳定币计价）
	TriggerPrice decimal.Decimal // 触发价格
}

// EditOrderRequest 修改挂单请求
type EditOrderRequest struct {
	TriggerPrice decimal.Decimal // 新触发价格（零值保持不变）
	SizeStable   decimal.Decimal // 新挂单规模（零值保持不变）
}

// Exchange 统一交易所接口
// 读路径（价格/仓位/挂单）由后台轮询器填充共享缓存，这里同步暴露
// 写路径（下单）经交易提交管线上链
type Exchange interface {
	// Name 交易所名称
	Name() string

	// Start 启动价格流与各轮询器；Stop 前必须先调用
	Start(ctx context.Context) error
	// Stop 停止所有后台任务并断开连接
	Stop()

	// Subscribe 订阅交易对实时价格（引用计数递增）
	Subscribe(pair domain.Pair) error
	// Unsubscribe 退订交易对实时价格（引用计数递减，归零时清除缓存）
	Unsubscribe(pair domain.Pair) error

	// Quote 读取交易对当前缓存行情
	Quote(pair domain.Pair) (domain.PriceQuote, bool)
	// FetchPriceHistory 拉取历史 K 线（有界重试，失败上抛）
	FetchPriceHistory(ctx context.Context, pair domain.Pair, resolution string, barCount int) ([]domain.Candle, error)

	// Positions 当前仓位快照（每个轮询周期整体替换）
	Positions() []domain.Position
	// Orders 当前挂单快照（每个轮询周期整体替换）
	Orders() []domain.Order

	// Bus 事件总线：行情推送、快照更新、交易状态
	Bus() *events.Bus

	// CreateOrder 开仓/加仓（市价或限价，可附带止盈止损）
	CreateOrder(ctx context.Context, req OrderRequest) error
	// CreateReduceOrder 创建减仓触发单
	CreateReduceOrder(ctx context.Context, req ReduceOrderRequest) error
	// EditOrder 修改挂单
	EditOrder(ctx context.Context, order domain.Order, req EditOrderRequest) error
	// CancelOrder 撤销挂单
	CancelOrder(ctx context.Context, order domain.Order) error
	// ClosePosition 市价平仓（sizeStable 为零时全平）
	ClosePosition(ctx context.Context, position domain.Position, sizeStable decimal.Decimal) error
}
