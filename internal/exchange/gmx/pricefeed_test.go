package gmx

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/perpdesk/goperp/internal/events"
)

const (
	testFeedID = "feed-btc"
	testToken  = "0x2f2a2543B76A4166549F7aaB2e75Bef0aefC5B0f"
)

func testMarkets() *Markets {
	return NewMarkets([]Market{
		{Pair: testPair, FeedID: testFeedID, IndexToken: testToken, MinSize: decimal.NewFromInt(10)},
	})
}

// fakeWSConn 假价格流连接：从通道读入站消息，记录出站动作
type fakeWSConn struct {
	incoming chan []byte

	mu      sync.Mutex
	written []subscribeAction
	closed  bool
}

func newFakeWSConn() *fakeWSConn {
	return &fakeWSConn{incoming: make(chan []byte, 16)}
}

func (c *fakeWSConn) ReadMessage() (int, []byte, error) {
	data, ok := <-c.incoming
	if !ok {
		return 0, nil, errors.New("连接已关闭")
	}
	return 1, data, nil
}

func (c *fakeWSConn) WriteJSON(v interface{}) error {
	action, ok := v.(subscribeAction)
	if !ok {
		return errors.New("非订阅消息")
	}
	c.mu.Lock()
	c.written = append(c.written, action)
	c.mu.Unlock()
	return nil
}

func (c *fakeWSConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.incoming)
	}
	return nil
}

func (c *fakeWSConn) actions() []subscribeAction {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]subscribeAction, len(c.written))
	copy(out, c.written)
	return out
}

func tickJSON(t *testing.T, feedID, mantissa string, expo int32) []byte {
	t.Helper()
	data, err := json.Marshal(map[string]interface{}{
		"type": "price_update",
		"price_feed": map[string]interface{}{
			"id": feedID,
			"price": map[string]interface{}{
				"price":        mantissa,
				"expo":         expo,
				"publish_time": 1700000000,
			},
		},
	})
	if err != nil {
		t.Fatalf("构造行情消息失败: %v", err)
	}
	return data
}

// TestPriceFeed_HandleTick 测试行情消息解析、缓存写入与事件发布
func TestPriceFeed_HandleTick(t *testing.T) {
	bus := events.NewBus()
	feed := NewPriceFeed("ws://test", testMarkets(), bus)

	var published []events.QuoteEvent
	bus.OnQuote(func(ev events.QuoteEvent) {
		published = append(published, ev)
	})

	// 价格 = 6512345 * 10^-2 = 65123.45
	feed.handleTick(tickJSON(t, testFeedID, "6512345", -2))

	quote, ok := feed.Quote(testPair)
	if !ok {
		t.Fatal("行情应该已写入缓存")
	}
	want := decimal.NewFromFloat(65123.45)
	if !quote.Price.Equal(want) {
		t.Errorf("期望价格 %s，得到 %s", want, quote.Price)
	}
	if quote.Time.Unix() != 1700000000 {
		t.Errorf("期望发布时间 1700000000，得到 %d", quote.Time.Unix())
	}
	if len(published) != 1 {
		t.Errorf("期望发布 1 条行情事件，得到 %d 条", len(published))
	}
}

// TestPriceFeed_HandleTickIgnoresBadMessages 测试坏消息只跳过不影响缓存
func TestPriceFeed_HandleTickIgnoresBadMessages(t *testing.T) {
	feed := NewPriceFeed("ws://test", testMarkets(), events.NewBus())

	feed.handleTick([]byte("not json"))
	feed.handleTick([]byte(`{"type":"heartbeat"}`))
	feed.handleTick(tickJSON(t, "unknown-feed", "100", 0))
	feed.handleTick(tickJSON(t, testFeedID, "not-a-number", 0))

	if _, ok := feed.Quote(testPair); ok {
		t.Error("坏消息不应该写入缓存")
	}
}

// TestPriceFeed_LateTickAfterUnsubscribe 测试退订后晚到的消息按键覆盖写，不报错
func TestPriceFeed_LateTickAfterUnsubscribe(t *testing.T) {
	feed := NewPriceFeed("ws://test", testMarkets(), events.NewBus())

	feed.handleTick(tickJSON(t, testFeedID, "100", 0))
	feed.Registry().Subscribe(testPair, false)
	feed.Registry().Unsubscribe(testPair, false)

	if _, ok := feed.Quote(testPair); ok {
		t.Fatal("退订归零后缓存行情应该被清除")
	}

	// 晚到消息重新写入（订阅确认可能在途）
	feed.handleTick(tickJSON(t, testFeedID, "200", 0))
	quote, ok := feed.Quote(testPair)
	if !ok {
		t.Fatal("晚到消息应该按键覆盖写入")
	}
	if !quote.Price.Equal(decimal.NewFromInt(200)) {
		t.Errorf("期望价格 200，得到 %s", quote.Price)
	}
}

// TestPriceFeed_SendActionWhileDisconnected 测试未连接时订阅动作静默丢弃
func TestPriceFeed_SendActionWhileDisconnected(t *testing.T) {
	feed := NewPriceFeed("ws://test", testMarkets(), events.NewBus())

	// 无连接：不应该报错（重连后 ResubscribeAll 会补发）
	feed.Registry().Subscribe(testPair, false)
	if feed.Registry().Count(testPair) != 1 {
		t.Errorf("期望引用计数为 1，得到 %d", feed.Registry().Count(testPair))
	}
}

// TestPriceFeed_ReconnectResubscribes 测试断线重连后自动恢复活跃订阅
func TestPriceFeed_ReconnectResubscribes(t *testing.T) {
	bus := events.NewBus()
	feed := NewPriceFeed("ws://test", testMarkets(), bus)
	feed.backoff.MinDelay = time.Millisecond
	feed.backoff.MaxDelay = time.Millisecond

	conn1 := newFakeWSConn()
	conn2 := newFakeWSConn()
	conns := make(chan *fakeWSConn, 2)
	conns <- conn1
	conns <- conn2
	feed.dial = func(ctx context.Context, url string) (wsConn, error) {
		select {
		case c := <-conns:
			return c, nil
		default:
			return nil, errors.New("无更多连接")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = feed.Run(ctx)
	}()

	// 等待首连建立后订阅
	waitFor(t, func() bool { return feed.getState() >= stateConnected })
	feed.Registry().Subscribe(testPair, false)
	waitFor(t, func() bool { return len(conn1.actions()) == 1 })

	quoteCh := make(chan struct{}, 4)
	bus.OnQuote(func(events.QuoteEvent) { quoteCh <- struct{}{} })

	// 断开首连：读取循环应该重连到第二条连接并补发订阅
	conn1.Close()
	waitFor(t, func() bool { return len(conn2.actions()) >= 1 })

	actions := conn2.actions()
	if actions[0].Type != "subscribe" || len(actions[0].IDs) != 1 || actions[0].IDs[0] != testFeedID {
		t.Errorf("重连后应该补发订阅，得到 %+v", actions[0])
	}

	// 新连接上的行情照常进入缓存
	conn2.incoming <- tickJSON(t, testFeedID, "300", 0)
	select {
	case <-quoteCh:
	case <-time.After(2 * time.Second):
		t.Fatal("重连后行情事件超时")
	}

	cancel()
	conn2.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("接收循环未随取消退出")
	}
}

// TestPriceFeed_StopTerminatesRun 测试 Stop 终止接收循环
func TestPriceFeed_StopTerminatesRun(t *testing.T) {
	feed := NewPriceFeed("ws://test", testMarkets(), events.NewBus())
	conn := newFakeWSConn()
	feed.dial = func(ctx context.Context, url string) (wsConn, error) {
		return conn, nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = feed.Run(context.Background())
	}()

	waitFor(t, func() bool { return feed.getState() >= stateConnected })
	feed.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop 后接收循环未退出")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("等待条件超时")
}
