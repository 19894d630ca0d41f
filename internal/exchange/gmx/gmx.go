package gmx

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/perpdesk/goperp/internal/domain"
	"github.com/perpdesk/goperp/internal/events"
	"github.com/perpdesk/goperp/internal/exchange"
	"github.com/perpdesk/goperp/pkg/config"
	"github.com/perpdesk/goperp/pkg/logger"
	"github.com/perpdesk/goperp/pkg/retry"
	"github.com/perpdesk/goperp/pkg/syncgroup"
)

// Options 交易所构建参数
type Options struct {
	StreamURL  string // 价格流 WebSocket 地址
	GraphURL   string // 仓位/挂单 GraphQL 地址
	HistoryURL string // K 线历史 REST 地址

	Markets   []Market  // 可交易市场
	Contracts Contracts // 合约地址

	ChainID     int64
	ExplorerURL string
	PrivateKey  *ecdsa.PrivateKey

	Trade config.TradeDefaults

	PositionsInterval time.Duration
	OrdersInterval    time.Duration
	FundingInterval   time.Duration
	BalanceInterval   time.Duration

	Notifier events.Notifier
	Backends func() Backend // RPC 节点轮询
}

// Exchange gmx 交易所实现
// 读路径：价格流 + 仓位/挂单/资金费率/余额轮询器填充共享缓存
// 写路径：ABI 编码后经交易提交管线上链
type Exchange struct {
	opts    Options
	markets *Markets
	bus     *events.Bus

	feed      *PriceFeed
	graph     *GraphClient
	reader    *ChainReader
	calc      *Calculator
	rates     *FundingRates
	submitter *Submitter

	positions *PositionSource
	orders    *OrderSource
	funding   *FundingSource
	balance   *BalanceSource

	orderBook      abi.ABI
	positionRouter abi.ABI

	historyRetry retry.Policy

	mu      sync.Mutex
	group   *syncgroup.SyncGroup
	cancel  context.CancelFunc
	started bool
}

// New 创建 gmx 交易所
func New(opts Options) (*Exchange, error) {
	if opts.PrivateKey == nil {
		return nil, fmt.Errorf("缺少签名私钥")
	}
	if opts.Backends == nil {
		return nil, fmt.Errorf("缺少 RPC 后端")
	}
	if opts.Notifier == nil {
		opts.Notifier = events.NewLogNotifier()
	}
	if opts.Contracts.StableDecimals == 0 {
		opts.Contracts.StableDecimals = 6
	}

	reader, err := NewChainReader(opts.Contracts)
	if err != nil {
		return nil, err
	}
	ob, err := abi.JSON(strings.NewReader(orderBookABI))
	if err != nil {
		return nil, fmt.Errorf("解析订单簿ABI失败: %w", err)
	}
	pr, err := abi.JSON(strings.NewReader(positionRouterABI))
	if err != nil {
		return nil, fmt.Errorf("解析仓位路由ABI失败: %w", err)
	}

	markets := NewMarkets(opts.Markets)
	bus := events.NewBus()
	rates := NewFundingRates()
	calc := NewCalculator()

	submitter := NewSubmitter(opts.Backends, opts.PrivateKey, opts.ChainID, opts.ExplorerURL, opts.Notifier, bus)
	graph := NewGraphClient(opts.GraphURL, opts.HistoryURL)
	feed := NewPriceFeed(opts.StreamURL, markets, bus)

	account := submitter.From()

	e := &Exchange{
		opts:           opts,
		markets:        markets,
		bus:            bus,
		feed:           feed,
		graph:          graph,
		reader:         reader,
		calc:           calc,
		rates:          rates,
		submitter:      submitter,
		orderBook:      ob,
		positionRouter: pr,
		historyRetry:   retry.DefaultPolicy(),
	}
	e.positions = NewPositionSource(graph, markets, calc, rates, account.Hex(), opts.PositionsInterval, bus)
	e.orders = NewOrderSource(graph, reader, opts.Backends, markets, account, opts.OrdersInterval, bus)
	e.funding = NewFundingSource(reader, opts.Backends, markets, rates, opts.Contracts.StableToken, opts.FundingInterval)
	e.balance = NewBalanceSource(reader, opts.Backends, account, opts.BalanceInterval)
	return e, nil
}

// Name 交易所名称
func (e *Exchange) Name() string {
	return "gmx"
}

// Bus 事件总线
func (e *Exchange) Bus() *events.Bus {
	return e.bus
}

// Account 签名账户地址
func (e *Exchange) Account() common.Address {
	return e.submitter.From()
}

// StableBalance 最近一次读取的稳定币余额
func (e *Exchange) StableBalance() decimal.Decimal {
	return e.balance.Balance()
}

// Calculator 金融计算器（盈亏展示等外部用途）
func (e *Exchange) Calculator() *Calculator {
	return e.calc
}

// FundingRates 累计资金费率缓存
func (e *Exchange) FundingRates() *FundingRates {
	return e.rates
}

// Start 启动价格流与各轮询器
func (e *Exchange) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return fmt.Errorf("交易所已启动")
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.group = syncgroup.NewSyncGroup()
	e.started = true

	runners := []struct {
		name string
		run  func(context.Context) error
	}{
		{"pricefeed", e.feed.Run},
		{"positions", e.positions.Run},
		{"orders", e.orders.Run},
		{"funding", e.funding.Run},
		{"balance", e.balance.Run},
	}
	for _, r := range runners {
		r := r
		e.group.Go(func() {
			if err := r.run(runCtx); err != nil && runCtx.Err() == nil {
				logger.Errorf("[gmx] %s 循环退出: %v", r.name, err)
			}
		})
	}

	logger.Infof("[gmx] 已启动，账户 %s，市场 %d 个", e.submitter.From().Hex(), len(e.opts.Markets))
	return nil
}

// Stop 停止所有后台任务并断开连接
func (e *Exchange) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return
	}
	e.cancel()
	e.feed.Stop()
	e.group.Wait()
	e.started = false
	logger.Infof("[gmx] 已停止")
}

// Subscribe 订阅交易对实时价格
func (e *Exchange) Subscribe(pair domain.Pair) error {
	if _, ok := e.markets.ByPair(pair); !ok {
		return fmt.Errorf("未注册的交易对: %s", pair)
	}
	e.feed.Registry().Subscribe(pair, false)
	return nil
}

// Unsubscribe 退订交易对实时价格
func (e *Exchange) Unsubscribe(pair domain.Pair) error {
	if _, ok := e.markets.ByPair(pair); !ok {
		return fmt.Errorf("未注册的交易对: %s", pair)
	}
	e.feed.Registry().Unsubscribe(pair, false)
	return nil
}

// Quote 读取交易对当前缓存行情
func (e *Exchange) Quote(pair domain.Pair) (domain.PriceQuote, bool) {
	return e.feed.Quote(pair)
}

// FetchPriceHistory 拉取历史 K 线（有界重试）
func (e *Exchange) FetchPriceHistory(ctx context.Context, pair domain.Pair, resolution string, barCount int) ([]domain.Candle, error) {
	symbol := domain.DefaultPairFormat.Base(pair)
	return retry.DoValue(ctx, e.historyRetry, "gmx.history", func(ctx context.Context) ([]domain.Candle, error) {
		return e.graph.FetchCandles(ctx, symbol, resolution, barCount)
	})
}

// Positions 当前仓位快照
func (e *Exchange) Positions() []domain.Position {
	return e.positions.Positions()
}

// Orders 当前挂单快照
func (e *Exchange) Orders() []domain.Order {
	return e.orders.Orders()
}

// referencePrice 下单参考价：优先缓存行情，缺失时同步拉最近一根 K 线收盘价
func (e *Exchange) referencePrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error) {
	if quote, ok := e.feed.Quote(pair); ok && quote.Price.IsPositive() {
		return quote.Price, nil
	}
	candles, err := e.FetchPriceHistory(ctx, pair, "1", 1)
	if err != nil {
		return decimal.Zero, fmt.Errorf("获取 %s 参考价失败: %w", pair, err)
	}
	if len(candles) == 0 {
		return decimal.Zero, fmt.Errorf("获取 %s 参考价失败: 无K线数据", pair)
	}
	return candles[len(candles)-1].Close, nil
}

// slippageFraction 滑点上限（小数）
func (e *Exchange) slippageFraction() decimal.Decimal {
	return e.opts.Trade.SlippagePercent.Div(decimal.NewFromInt(100))
}

// acceptableEntryPrice 开仓可接受价：向不利方向放滑点（做多抬价，做空压价）
func (e *Exchange) acceptableEntryPrice(price decimal.Decimal, dir domain.Direction) decimal.Decimal {
	one := decimal.NewFromInt(1)
	if dir.IsLong() {
		return price.Mul(one.Add(e.slippageFraction()))
	}
	return price.Mul(one.Sub(e.slippageFraction()))
}

// acceptableExitPrice 平仓可接受价：与开仓方向相反
func (e *Exchange) acceptableExitPrice(price decimal.Decimal, dir domain.Direction) decimal.Decimal {
	one := decimal.NewFromInt(1)
	if dir.IsLong() {
		return price.Mul(one.Sub(e.slippageFraction()))
	}
	return price.Mul(one.Add(e.slippageFraction()))
}

// validateSize 校验下单规模在市场与配置限制内
func (e *Exchange) validateSize(market Market, sizeStable decimal.Decimal) error {
	min := market.MinSize
	if e.opts.Trade.MinOrderSizeStable.GreaterThan(min) {
		min = e.opts.Trade.MinOrderSizeStable
	}
	max := market.MaxSize
	if max.IsZero() || (e.opts.Trade.MaxOrderSizeStable.IsPositive() && e.opts.Trade.MaxOrderSizeStable.LessThan(max)) {
		max = e.opts.Trade.MaxOrderSizeStable
	}
	if sizeStable.LessThan(min) || (max.IsPositive() && sizeStable.GreaterThan(max)) {
		return &exchange.InvalidOrderSizeError{Size: sizeStable, Min: min, Max: max}
	}
	return nil
}

// executionFee 链上执行费（wei）
func (e *Exchange) executionFee() *big.Int {
	return e.opts.Trade.ExecutionFeeEther.Shift(18).BigInt()
}

// stableUnits 稳定币金额转链上最小单位
func (e *Exchange) stableUnits(amount decimal.Decimal) *big.Int {
	return amount.Shift(e.opts.Contracts.StableDecimals).BigInt()
}

// chainUSD 十进制金额转链上 30 位精度整数
func chainUSD(amount decimal.Decimal) *big.Int {
	return toChainUSD(amount).BigInt()
}

// CreateOrder 开仓/加仓
// 市价走仓位路由；限价走订单簿；可选地按百分比追加止盈/止损触发单
func (e *Exchange) CreateOrder(ctx context.Context, req exchange.OrderRequest) error {
	market, ok := e.markets.ByPair(req.Pair)
	if !ok {
		return fmt.Errorf("未注册的交易对: %s", req.Pair)
	}
	if err := e.validateSize(market, req.SizeStable); err != nil {
		return err
	}

	leverage := req.Leverage
	if leverage.LessThanOrEqual(decimal.Zero) {
		leverage = e.opts.Trade.Leverage
	}

	// 参考价：限价单用限价本身，市价单解析当前价
	refPrice := req.LimitPrice
	if refPrice.LessThanOrEqual(decimal.Zero) {
		var err error
		refPrice, err = e.referencePrice(ctx, req.Pair)
		if err != nil {
			return err
		}
	}

	indexToken := common.HexToAddress(market.IndexToken)
	isLong := req.Direction.IsLong()
	sizeDelta := chainUSD(req.SizeStable.Mul(leverage))
	amountIn := e.stableUnits(req.SizeStable)
	path := []common.Address{e.opts.Contracts.StableToken}

	if req.LimitPrice.IsPositive() {
		// 限价单：做多等价格跌到限价以下成交，做空反之
		data, err := e.orderBook.Pack("createIncreaseOrder",
			path, amountIn, indexToken, big.NewInt(0), sizeDelta,
			e.opts.Contracts.StableToken, isLong,
			chainUSD(req.LimitPrice), !isLong,
			e.executionFee(), false)
		if err != nil {
			return fmt.Errorf("打包createIncreaseOrder参数失败: %w", err)
		}
		if _, err := e.submitter.Submit(ctx, "createIncreaseOrder", e.opts.Contracts.OrderBook, data, e.executionFee()); err != nil {
			return err
		}
	} else {
		acceptable := e.acceptableEntryPrice(refPrice, req.Direction)
		data, err := e.positionRouter.Pack("createIncreasePosition",
			path, indexToken, amountIn, big.NewInt(0), sizeDelta, isLong,
			chainUSD(acceptable), e.executionFee(),
			[32]byte{}, common.Address{})
		if err != nil {
			return fmt.Errorf("打包createIncreasePosition参数失败: %w", err)
		}
		if _, err := e.submitter.Submit(ctx, "createIncreasePosition", e.opts.Contracts.PositionRouter, data, e.executionFee()); err != nil {
			return err
		}
	}

	// 止盈/止损：零值回落到默认配置，仍为零则不设置
	tpPercent := req.TakeProfitPercent
	if tpPercent.IsZero() {
		tpPercent = e.opts.Trade.TakeProfitPercent
	}
	slPercent := req.StopLossPercent
	if slPercent.IsZero() {
		slPercent = e.opts.Trade.StopLossPercent
	}

	if tpPercent.IsPositive() {
		trigger := triggerPriceFromPercent(refPrice, tpPercent, leverage, req.Direction, true)
		if err := e.submitDecreaseOrder(ctx, market, req.Direction, req.SizeStable.Mul(leverage), trigger, isLong); err != nil {
			return err
		}
	}
	if slPercent.IsPositive() {
		trigger := triggerPriceFromPercent(refPrice, slPercent, leverage, req.Direction, false)
		if err := e.submitDecreaseOrder(ctx, market, req.Direction, req.SizeStable.Mul(leverage), trigger, !isLong); err != nil {
			return err
		}
	}
	return nil
}

// triggerPriceFromPercent 按收益百分比反推触发价
// 收益百分比作用在保证金上，换算到价格位移要除以杠杆
func triggerPriceFromPercent(refPrice, percent, leverage decimal.Decimal, dir domain.Direction, takeProfit bool) decimal.Decimal {
	move := percent.Div(decimal.NewFromInt(100)).Div(leverage)
	sign := dir.Sign()
	if !takeProfit {
		sign = sign.Neg()
	}
	return refPrice.Mul(decimal.NewFromInt(1).Add(move.Mul(sign)))
}

// submitDecreaseOrder 提交一笔减仓触发单
func (e *Exchange) submitDecreaseOrder(ctx context.Context, market Market, dir domain.Direction, sizeUSD, triggerPrice decimal.Decimal, triggerAbove bool) error {
	data, err := e.orderBook.Pack("createDecreaseOrder",
		common.HexToAddress(market.IndexToken), chainUSD(sizeUSD),
		e.opts.Contracts.StableToken, big.NewInt(0),
		dir.IsLong(), chainUSD(triggerPrice), triggerAbove)
	if err != nil {
		return fmt.Errorf("打包createDecreaseOrder参数失败: %w", err)
	}
	_, err = e.submitter.Submit(ctx, "createDecreaseOrder", e.opts.Contracts.OrderBook, data, e.executionFee())
	return err
}

// CreateReduceOrder 创建减仓触发单
// 触发方向由触发价相对当前价的位置决定：高于当前价为上穿触发
func (e *Exchange) CreateReduceOrder(ctx context.Context, req exchange.ReduceOrderRequest) error {
	market, ok := e.markets.ByPair(req.Position.Pair)
	if !ok {
		return fmt.Errorf("未注册的交易对: %s", req.Position.Pair)
	}
	if req.TriggerPrice.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("触发价必须大于 0")
	}

	size := req.SizeStable
	if size.IsZero() {
		size = req.Position.Size
	}

	current := req.Position.OpenPrice
	if quote, ok := e.feed.Quote(req.Position.Pair); ok && quote.Price.IsPositive() {
		current = quote.Price
	}
	triggerAbove := req.TriggerPrice.GreaterThan(current)

	return e.submitDecreaseOrder(ctx, market, req.Position.Direction, size, req.TriggerPrice, triggerAbove)
}

// EditOrder 修改挂单；零值字段保持原值
func (e *Exchange) EditOrder(ctx context.Context, order domain.Order, req exchange.EditOrderRequest) error {
	triggerPrice := req.TriggerPrice
	if triggerPrice.IsZero() {
		triggerPrice = order.TriggerPrice
	}
	size := req.SizeStable
	if size.IsZero() {
		size = order.Size
	}
	index := new(big.Int).SetUint64(order.Extra.ChainIndex)

	var (
		method string
		data   []byte
		err    error
	)
	switch order.Extra.Kind {
	case "increase":
		method = "updateIncreaseOrder"
		data, err = e.orderBook.Pack(method, index, chainUSD(size), chainUSD(triggerPrice), order.Extra.TriggerAboveThreshold)
	case "decrease":
		method = "updateDecreaseOrder"
		data, err = e.orderBook.Pack(method, index, big.NewInt(0), chainUSD(size), chainUSD(triggerPrice), order.Extra.TriggerAboveThreshold)
	default:
		return fmt.Errorf("未知挂单种类: %q", order.Extra.Kind)
	}
	if err != nil {
		return fmt.Errorf("打包%s参数失败: %w", method, err)
	}
	_, err = e.submitter.Submit(ctx, method, e.opts.Contracts.OrderBook, data, nil)
	return err
}

// CancelOrder 撤销挂单
func (e *Exchange) CancelOrder(ctx context.Context, order domain.Order) error {
	index := new(big.Int).SetUint64(order.Extra.ChainIndex)

	var method string
	switch order.Extra.Kind {
	case "increase":
		method = "cancelIncreaseOrder"
	case "decrease":
		method = "cancelDecreaseOrder"
	default:
		return fmt.Errorf("未知挂单种类: %q", order.Extra.Kind)
	}
	data, err := e.orderBook.Pack(method, index)
	if err != nil {
		return fmt.Errorf("打包%s参数失败: %w", method, err)
	}
	_, err = e.submitter.Submit(ctx, method, e.opts.Contracts.OrderBook, data, nil)
	return err
}

// ClosePosition 市价平仓；sizeStable 为零时全平
func (e *Exchange) ClosePosition(ctx context.Context, position domain.Position, sizeStable decimal.Decimal) error {
	market, ok := e.markets.ByPair(position.Pair)
	if !ok {
		return fmt.Errorf("未注册的交易对: %s", position.Pair)
	}

	size := sizeStable
	collateralDelta := decimal.Zero
	if size.IsZero() || size.GreaterThanOrEqual(position.Size) {
		// 全平：抵押一并取回
		size = position.Size
		collateralDelta = position.Collateral
	}

	refPrice, err := e.referencePrice(ctx, position.Pair)
	if err != nil {
		return err
	}
	acceptable := e.acceptableExitPrice(refPrice, position.Direction)

	data, err := e.positionRouter.Pack("createDecreasePosition",
		[]common.Address{e.opts.Contracts.StableToken},
		common.HexToAddress(market.IndexToken),
		chainUSD(collateralDelta), chainUSD(size),
		position.Direction.IsLong(), e.submitter.From(),
		chainUSD(acceptable), big.NewInt(0),
		e.executionFee(), false, common.Address{})
	if err != nil {
		return fmt.Errorf("打包createDecreasePosition参数失败: %w", err)
	}
	_, err = e.submitter.Submit(ctx, "createDecreasePosition", e.opts.Contracts.PositionRouter, data, e.executionFee())
	return err
}
