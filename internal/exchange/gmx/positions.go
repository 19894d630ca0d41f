package gmx

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/perpdesk/goperp/internal/domain"
	"github.com/perpdesk/goperp/internal/events"
	"github.com/perpdesk/goperp/pkg/logger"
)

// positionsQuerier 仓位快照查询（测试时用假实现替换 GraphClient）
type positionsQuerier interface {
	FetchPositions(ctx context.Context, account string) ([]rawPosition, error)
}

// PositionSource 仓位快照轮询器
// 每个周期拉取账户全部仓位，按当前费用重算强平价，整体替换缓存并发布
// 拉取失败只记日志，下个周期重试；取消立即退出
type PositionSource struct {
	graph    positionsQuerier
	markets  *Markets
	calc     *Calculator
	rates    *FundingRates
	account  string
	interval time.Duration

	cache snapshotCache[domain.Position]
	bus   *events.Bus
}

// NewPositionSource 创建仓位轮询器
func NewPositionSource(graph positionsQuerier, markets *Markets, calc *Calculator, rates *FundingRates, account string, interval time.Duration, bus *events.Bus) *PositionSource {
	if interval <= 0 {
		interval = time.Second
	}
	return &PositionSource{
		graph:    graph,
		markets:  markets,
		calc:     calc,
		rates:    rates,
		account:  account,
		interval: interval,
		bus:      bus,
	}
}

// Positions 当前仓位快照
func (ps *PositionSource) Positions() []domain.Position {
	return ps.cache.Get()
}

// Run 轮询循环：持续运行直到取消
func (ps *PositionSource) Run(ctx context.Context) error {
	ticker := time.NewTicker(ps.interval)
	defer ticker.Stop()

	for {
		if err := ps.pollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warnf("[positions] 拉取仓位失败: %v", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// pollOnce 拉取一次仓位快照并替换缓存
func (ps *PositionSource) pollOnce(ctx context.Context) error {
	raw, err := ps.graph.FetchPositions(ctx, ps.account)
	if err != nil {
		return err
	}

	positions := make([]domain.Position, 0, len(raw))
	for _, rp := range raw {
		pos, err := ps.convert(rp)
		if err != nil {
			logger.Warnf("[positions] 跳过无效仓位 %s: %v", rp.ID, err)
			continue
		}
		positions = append(positions, pos)
	}

	ps.cache.Replace(positions)
	ps.bus.PublishPositions(positions)
	return nil
}

// convert 原始记录转领域仓位；强平价在此处按当前费用输入重算
func (ps *PositionSource) convert(rp rawPosition) (domain.Position, error) {
	pair, ok := ps.markets.PairByToken(rp.IndexToken)
	if !ok {
		return domain.Position{}, fmt.Errorf("未注册的标的代币 %s", rp.IndexToken)
	}

	size, err := fromChainUSD(rp.Size)
	if err != nil {
		return domain.Position{}, err
	}
	collateral, err := fromChainUSD(rp.Collateral)
	if err != nil {
		return domain.Position{}, err
	}
	openPrice, err := fromChainUSD(rp.AveragePrice)
	if err != nil {
		return domain.Position{}, err
	}

	pos := domain.Position{
		Pair:       pair,
		ID:         rp.ID,
		Size:       size,
		Collateral: collateral,
		OpenPrice:  openPrice,
		Direction:  domainDirection(rp.IsLong),
		Extra: domain.PositionExtra{
			IndexToken:      rp.IndexToken,
			CollateralToken: rp.CollateralToken,
		},
	}

	if rp.EntryFundingRate != "" {
		rate, err := decimal.NewFromString(rp.EntryFundingRate)
		if err != nil {
			return domain.Position{}, fmt.Errorf("无效开仓资金费率 %q: %w", rp.EntryFundingRate, err)
		}
		pos.Extra.EntryFundingRate = rate
		pos.Extra.HasFundingRate = true
	}

	if collateral.IsPositive() {
		pos.Leverage = size.Div(collateral).Round(2)
	}

	// 强平价永远在获取时重算，不独立持久化
	pos.LiquidationPrice = ps.calc.LiquidationPrice(pos, ps.rates)
	return pos, nil
}
