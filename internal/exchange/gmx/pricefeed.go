package gmx

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/perpdesk/goperp/internal/domain"
	"github.com/perpdesk/goperp/internal/events"
	"github.com/perpdesk/goperp/pkg/cache"
	"github.com/perpdesk/goperp/pkg/logger"
	"github.com/perpdesk/goperp/pkg/retry"
)

// 连接状态
type connState int32

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
	stateReceiving
)

// wsConn 价格流连接的最小接口（测试时用假连接替换）
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteJSON(v interface{}) error
	Close() error
}

// dialFunc 建立价格流连接
type dialFunc func(ctx context.Context, url string) (wsConn, error)

// defaultDial 使用 gorilla/websocket 建立连接
func defaultDial(ctx context.Context, url string) (wsConn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("连接价格流失败: %w", err)
	}
	return conn, nil
}

// subscribeAction 线路层订阅/退订消息
// 协议：{"ids": [<feedId>], "type": "subscribe"|"unsubscribe"}
type subscribeAction struct {
	IDs  []string `json:"ids"`
	Type string   `json:"type"`
}

// tickMessage 入站行情消息：feed id、价格尾数+指数、发布时间（秒）
type tickMessage struct {
	Type      string `json:"type"`
	PriceFeed *struct {
		ID    string `json:"id"`
		Price struct {
			Price       string `json:"price"`
			Expo        int32  `json:"expo"`
			PublishTime int64  `json:"publish_time"`
		} `json:"price"`
	} `json:"price_feed"`
}

// PriceFeed 持久化价格流连接器
// 状态机：Disconnected -> Connecting -> Connected -> Receiving
// Receiving 中的任何 I/O 错误回到 Connecting（自动重连），重连成功后触发 ResubscribeAll
type PriceFeed struct {
	url     string
	markets *Markets
	bus     *events.Bus
	dial    dialFunc

	// quotes 共享行情缓存：只有本连接器写入，其他组件只读
	quotes *cache.InMemoryCache[domain.Pair, domain.PriceQuote]

	registry *SubscriptionRegistry

	conn   wsConn
	connMu sync.Mutex

	state   connState
	stateMu sync.Mutex

	backoff retry.Policy

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewPriceFeed 创建价格流连接器
func NewPriceFeed(url string, markets *Markets, bus *events.Bus) *PriceFeed {
	f := &PriceFeed{
		url:     url,
		markets: markets,
		bus:     bus,
		dial:    defaultDial,
		quotes:  cache.NewInMemoryCache[domain.Pair, domain.PriceQuote](0),
		backoff: retry.Policy{
			MinDelay: 400 * time.Millisecond,
			MaxDelay: 5 * time.Second,
		},
		stopCh: make(chan struct{}),
	}
	f.registry = NewSubscriptionRegistry(f, f)
	return f
}

// Registry 返回订阅注册表
func (f *PriceFeed) Registry() *SubscriptionRegistry {
	return f.registry
}

// Quote 读取交易对缓存行情
func (f *PriceFeed) Quote(pair domain.Pair) (domain.PriceQuote, bool) {
	return f.quotes.Get(pair)
}

// purgeQuote 实现 quotePurger：退订归零时精确清除缓存
func (f *PriceFeed) purgeQuote(pair domain.Pair) {
	f.quotes.Delete(pair)
}

// sendSubscribe 实现 wireSender
func (f *PriceFeed) sendSubscribe(pair domain.Pair) error {
	return f.sendAction(pair, "subscribe")
}

// sendUnsubscribe 实现 wireSender
func (f *PriceFeed) sendUnsubscribe(pair domain.Pair) error {
	return f.sendAction(pair, "unsubscribe")
}

func (f *PriceFeed) sendAction(pair domain.Pair, action string) error {
	market, ok := f.markets.ByPair(pair)
	if !ok {
		return fmt.Errorf("未注册的交易对: %s", pair)
	}

	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		// 未连接时静默丢弃：重连成功后 ResubscribeAll 会补发
		return nil
	}
	return f.conn.WriteJSON(subscribeAction{
		IDs:  []string{market.FeedID},
		Type: action,
	})
}

func (f *PriceFeed) setState(s connState) {
	f.stateMu.Lock()
	f.state = s
	f.stateMu.Unlock()
}

func (f *PriceFeed) getState() connState {
	f.stateMu.Lock()
	defer f.stateMu.Unlock()
	return f.state
}

// EnsureConnected 幂等连接：已连接时是空操作
// 建连错误按指数退避（约 0.4s 起、5s 封顶）无限重试，仅在取消时上抛
func (f *PriceFeed) EnsureConnected(ctx context.Context) error {
	if s := f.getState(); s == stateConnected || s == stateReceiving {
		return nil
	}
	f.setState(stateConnecting)

	err := f.backoff.Forever(ctx, "pricefeed.connect", func(ctx context.Context) error {
		conn, derr := f.dial(ctx, f.url)
		if derr != nil {
			return derr
		}
		f.connMu.Lock()
		if f.conn != nil {
			f.conn.Close()
		}
		f.conn = conn
		f.connMu.Unlock()
		return nil
	})
	if err != nil {
		// 仅取消会走到这里
		f.setState(stateDisconnected)
		return err
	}

	f.setState(stateConnected)
	logger.Infof("[pricefeed] 已连接 %s", f.url)

	// 新连接就绪后恢复所有活跃订阅
	f.registry.ResubscribeAll()
	return nil
}

// Run 接收循环：持续运行直到取消
// 连接断开 -> 自动重连后继续；单条坏消息 -> 记日志后继续，循环绝不因此退出
func (f *PriceFeed) Run(ctx context.Context) error {
	if err := f.EnsureConnected(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.stopCh:
			return nil
		default:
		}

		f.connMu.Lock()
		conn := f.conn
		f.connMu.Unlock()

		if conn == nil {
			if err := f.EnsureConnected(ctx); err != nil {
				return err
			}
			continue
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-f.stopCh:
				return nil
			default:
			}
			logger.Warnf("[pricefeed] 读取错误: %v, 重连中...", err)
			f.closeConn()
			f.setState(stateConnecting)
			if cerr := f.EnsureConnected(ctx); cerr != nil {
				return cerr
			}
			continue
		}

		f.setState(stateReceiving)
		f.handleTick(data)
	}
}

// Stop 停止接收循环并关闭连接
func (f *PriceFeed) Stop() {
	f.stopOnce.Do(func() {
		close(f.stopCh)
	})
	f.closeConn()
	f.setState(stateDisconnected)
}

func (f *PriceFeed) closeConn() {
	f.connMu.Lock()
	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
	f.connMu.Unlock()
}

// handleTick 解析单条行情消息并写入缓存
// 晚到的消息（交易对刚退订）是允许的：按键覆盖写，绝不假设缓存项存在
func (f *PriceFeed) handleTick(data []byte) {
	var msg tickMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		logger.Warnf("[pricefeed] 解析消息失败: %v", err)
		return
	}
	if msg.PriceFeed == nil {
		// 心跳或订阅确认
		return
	}

	pair, ok := f.markets.PairByFeed(msg.PriceFeed.ID)
	if !ok {
		logger.Debugf("[pricefeed] 未知 feed id: %s", msg.PriceFeed.ID)
		return
	}

	mantissa, err := decimal.NewFromString(msg.PriceFeed.Price.Price)
	if err != nil {
		logger.Warnf("[pricefeed] 无效价格尾数 %q: %v", msg.PriceFeed.Price.Price, err)
		return
	}

	quote := domain.PriceQuote{
		Pair:  pair,
		Price: mantissa.Shift(msg.PriceFeed.Price.Expo),
		Time:  time.Unix(msg.PriceFeed.Price.PublishTime, 0),
	}

	f.quotes.Set(pair, quote, 0)
	f.bus.PublishQuote(quote)
}
