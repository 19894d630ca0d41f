package events

import (
	"sync"
	"time"

	"github.com/perpdesk/goperp/internal/domain"
)

// QuoteHandler 行情事件处理器
type QuoteHandler func(QuoteEvent)

// PositionsHandler 仓位快照事件处理器
type PositionsHandler func(PositionsEvent)

// OrdersHandler 挂单快照事件处理器
type OrdersHandler func(OrdersEvent)

// TxHandler 链上交易事件处理器
type TxHandler func(TxEvent)

// Bus 进程内发布/订阅总线
// 取代 GUI 消息总线：连接器核心只需要「发布新快照」语义
// 回调在发布方 goroutine 内同步执行，处理器不应阻塞
type Bus struct {
	mu               sync.RWMutex
	quoteHandlers    []QuoteHandler
	positionHandlers []PositionsHandler
	orderHandlers    []OrdersHandler
	txHandlers       []TxHandler
}

// NewBus 创建新的事件总线
func NewBus() *Bus {
	return &Bus{}
}

// OnQuote 注册行情事件处理器
func (b *Bus) OnQuote(h QuoteHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.quoteHandlers = append(b.quoteHandlers, h)
}

// OnPositions 注册仓位快照事件处理器
func (b *Bus) OnPositions(h PositionsHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.positionHandlers = append(b.positionHandlers, h)
}

// OnOrders 注册挂单快照事件处理器
func (b *Bus) OnOrders(h OrdersHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orderHandlers = append(b.orderHandlers, h)
}

// OnTx 注册链上交易事件处理器
func (b *Bus) OnTx(h TxHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.txHandlers = append(b.txHandlers, h)
}

// PublishQuote 发布行情事件
func (b *Bus) PublishQuote(quote domain.PriceQuote) {
	b.mu.RLock()
	handlers := b.quoteHandlers
	b.mu.RUnlock()

	ev := QuoteEvent{Quote: quote, Timestamp: time.Now()}
	for _, h := range handlers {
		h(ev)
	}
}

// PublishPositions 发布仓位快照事件
func (b *Bus) PublishPositions(positions []domain.Position) {
	b.mu.RLock()
	handlers := b.positionHandlers
	b.mu.RUnlock()

	ev := PositionsEvent{Positions: positions, Timestamp: time.Now()}
	for _, h := range handlers {
		h(ev)
	}
}

// PublishOrders 发布挂单快照事件
func (b *Bus) PublishOrders(orders []domain.Order) {
	b.mu.RLock()
	handlers := b.orderHandlers
	b.mu.RUnlock()

	ev := OrdersEvent{Orders: orders, Timestamp: time.Now()}
	for _, h := range handlers {
		h(ev)
	}
}

// PublishTx 发布链上交易事件
func (b *Bus) PublishTx(ev TxEvent) {
	b.mu.RLock()
	handlers := b.txHandlers
	b.mu.RUnlock()

	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	for _, h := range handlers {
		h(ev)
	}
}
