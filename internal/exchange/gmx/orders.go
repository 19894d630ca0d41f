package gmx

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/perpdesk/goperp/internal/domain"
	"github.com/perpdesk/goperp/internal/events"
	"github.com/perpdesk/goperp/pkg/logger"
)

// ordersQuerier 挂单快照查询（测试时用假实现替换 GraphClient）
type ordersQuerier interface {
	FetchOrders(ctx context.Context, account string) ([]rawOrder, error)
}

// OrderSource 挂单快照轮询器
// 每个周期拉取账户全部挂单；触发参数按单做一次链上调用解析，
// 再按方向与上穿标志判定挂单类型，整体替换缓存并发布
type OrderSource struct {
	graph    ordersQuerier
	reader   *ChainReader
	next     func() Backend
	markets  *Markets
	account  common.Address
	interval time.Duration

	cache snapshotCache[domain.Order]
	bus   *events.Bus
}

// NewOrderSource 创建挂单轮询器
func NewOrderSource(graph ordersQuerier, reader *ChainReader, next func() Backend, markets *Markets, account common.Address, interval time.Duration, bus *events.Bus) *OrderSource {
	if interval <= 0 {
		interval = time.Second
	}
	return &OrderSource{
		graph:    graph,
		reader:   reader,
		next:     next,
		markets:  markets,
		account:  account,
		interval: interval,
		bus:      bus,
	}
}

// Orders 当前挂单快照
func (os *OrderSource) Orders() []domain.Order {
	return os.cache.Get()
}

// Run 轮询循环：持续运行直到取消
func (os *OrderSource) Run(ctx context.Context) error {
	ticker := time.NewTicker(os.interval)
	defer ticker.Stop()

	for {
		if err := os.pollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warnf("[orders] 拉取挂单失败: %v", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// pollOnce 拉取一次挂单快照并替换缓存
func (os *OrderSource) pollOnce(ctx context.Context) error {
	raw, err := os.graph.FetchOrders(ctx, os.account.Hex())
	if err != nil {
		return err
	}

	orders := make([]domain.Order, 0, len(raw))
	for _, ro := range raw {
		order, err := os.resolve(ctx, ro)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warnf("[orders] 跳过无法解析的挂单 %s: %v", ro.ID, err)
			continue
		}
		orders = append(orders, order)
	}

	os.cache.Replace(orders)
	os.bus.PublishOrders(orders)
	return nil
}

// resolve 补全单笔挂单的链上触发参数并判定类型
func (os *OrderSource) resolve(ctx context.Context, ro rawOrder) (domain.Order, error) {
	extras, err := os.reader.ReadOrderExtras(ctx, os.next(), os.account, ro.Type, ro.Index)
	if err != nil {
		return domain.Order{}, err
	}

	pair, ok := os.markets.PairByToken(extras.IndexToken.Hex())
	if !ok {
		return domain.Order{}, fmt.Errorf("未注册的标的代币 %s", extras.IndexToken.Hex())
	}

	// decrease 挂单只减仓
	reduceOnly := ro.Type == "decrease"

	return domain.Order{
		ID:           ro.ID,
		Pair:         pair,
		TriggerPrice: extras.TriggerPrice,
		Size:         extras.SizeDelta,
		Direction:    domainDirection(extras.IsLong),
		Type:         domain.ClassifyOrderType(reduceOnly, extras.TriggerPrice, extras.IsLong, extras.TriggerAboveThreshold),
		ReduceOnly:   reduceOnly,
		Extra: domain.OrderExtra{
			ChainIndex:            ro.Index,
			TriggerAboveThreshold: extras.TriggerAboveThreshold,
			Kind:                  ro.Type,
		},
	}, nil
}
