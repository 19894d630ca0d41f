package events

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/perpdesk/goperp/internal/domain"
)

func TestBus_QuoteFanout(t *testing.T) {
	bus := NewBus()

	var got1, got2 []QuoteEvent
	bus.OnQuote(func(ev QuoteEvent) { got1 = append(got1, ev) })
	bus.OnQuote(func(ev QuoteEvent) { got2 = append(got2, ev) })

	quote := domain.PriceQuote{Pair: domain.Pair("BTC/USD"), Price: decimal.NewFromInt(65000)}
	bus.PublishQuote(quote)

	if len(got1) != 1 || len(got2) != 1 {
		t.Fatalf("两个处理器都应该收到事件，得到 %d/%d", len(got1), len(got2))
	}
	if got1[0].Quote.Pair != quote.Pair {
		t.Errorf("期望 %s，得到 %s", quote.Pair, got1[0].Quote.Pair)
	}
	if got1[0].Timestamp.IsZero() {
		t.Error("事件时间戳应该被填充")
	}
}

func TestBus_PositionsAndOrders(t *testing.T) {
	bus := NewBus()

	var positions []PositionsEvent
	var orders []OrdersEvent
	bus.OnPositions(func(ev PositionsEvent) { positions = append(positions, ev) })
	bus.OnOrders(func(ev OrdersEvent) { orders = append(orders, ev) })

	bus.PublishPositions([]domain.Position{{ID: "p1"}})
	bus.PublishOrders(nil)

	if len(positions) != 1 || len(positions[0].Positions) != 1 {
		t.Error("仓位快照事件未送达")
	}
	if len(orders) != 1 {
		t.Error("挂单快照事件未送达")
	}
}

func TestBus_TxEvents(t *testing.T) {
	bus := NewBus()

	var events []TxEvent
	bus.OnTx(func(ev TxEvent) { events = append(events, ev) })

	bus.PublishTx(TxEvent{Hash: "0xabc", Status: TxStatusPending})
	bus.PublishTx(TxEvent{Hash: "0xabc", Status: TxStatusSuccess})

	if len(events) != 2 {
		t.Fatalf("期望 2 条交易事件，得到 %d", len(events))
	}
	if events[0].Status != TxStatusPending || events[1].Status != TxStatusSuccess {
		t.Errorf("状态顺序不对: %v", events)
	}
	if events[0].Timestamp.IsZero() {
		t.Error("时间戳应该被填充")
	}
}

func TestBus_NoHandlers(t *testing.T) {
	bus := NewBus()
	// 无处理器时发布不应该崩溃
	bus.PublishQuote(domain.PriceQuote{})
	bus.PublishPositions(nil)
	bus.PublishOrders(nil)
	bus.PublishTx(TxEvent{})
}
