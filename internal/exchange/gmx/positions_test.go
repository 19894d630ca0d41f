package gmx

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perpdesk/goperp/internal/domain"
	"github.com/perpdesk/goperp/internal/events"
)

// fakePositionsQuerier 可编排的仓位查询
type fakePositionsQuerier struct {
	positions []rawPosition
	err       error
	calls     int
}

func (q *fakePositionsQuerier) FetchPositions(ctx context.Context, account string) ([]rawPosition, error) {
	q.calls++
	if q.err != nil {
		return nil, q.err
	}
	return q.positions, nil
}

// chainUSDString 十进制金额转 30 位精度链上字符串
func chainUSDString(s string) string {
	return d(s).Shift(chainUSDDecimals).String()
}

func TestPositionSource_PollOnce(t *testing.T) {
	querier := &fakePositionsQuerier{
		positions: []rawPosition{
			{
				ID:               "pos-1",
				IndexToken:       testToken,
				CollateralToken:  "0xFF970A61A04b1cA14834A43f5dE4533eBDDB5CC8",
				IsLong:           true,
				Size:             chainUSDString("10000"),
				Collateral:       chainUSDString("1000"),
				AveragePrice:     chainUSDString("100"),
				EntryFundingRate: "1000",
			},
		},
	}

	rates := NewFundingRates()
	rates.Set(testPair, domain.DirectionLong, d("4500"))

	bus := events.NewBus()
	var published [][]domain.Position
	bus.OnPositions(func(ev events.PositionsEvent) {
		published = append(published, ev.Positions)
	})

	src := NewPositionSource(querier, testMarkets(), NewCalculator(), rates, "0xacc", time.Second, bus)
	require.NoError(t, src.pollOnce(context.Background()))

	positions := src.Positions()
	require.Len(t, positions, 1)
	pos := positions[0]

	assert.Equal(t, testPair, pos.Pair)
	assert.Equal(t, domain.DirectionLong, pos.Direction)
	assert.True(t, pos.Size.Equal(d("10000")))
	assert.True(t, pos.Collateral.Equal(d("1000")))
	assert.True(t, pos.OpenPrice.Equal(d("100")))
	assert.True(t, pos.Leverage.Equal(d("10")))
	// 强平价在获取时按当前费用重算（资金费 35 + 保证金费 10 + 强平费 5）
	assert.True(t, pos.LiquidationPrice.Equal(d("91")), "期望强平价 91，得到 %s", pos.LiquidationPrice)
	assert.True(t, pos.Extra.HasFundingRate)
	assert.True(t, pos.Extra.EntryFundingRate.Equal(d("1000")))

	require.Len(t, published, 1)
	assert.Len(t, published[0], 1)
}

func TestPositionSource_SkipsInvalidRecords(t *testing.T) {
	querier := &fakePositionsQuerier{
		positions: []rawPosition{
			{ID: "bad-token", IndexToken: "0x0000000000000000000000000000000000000bad", Size: chainUSDString("1")},
			{ID: "bad-size", IndexToken: testToken, Size: "not-a-number"},
			{
				ID:           "good",
				IndexToken:   testToken,
				IsLong:       false,
				Size:         chainUSDString("500"),
				Collateral:   chainUSDString("100"),
				AveragePrice: chainUSDString("60000"),
			},
		},
	}

	src := NewPositionSource(querier, testMarkets(), NewCalculator(), NewFundingRates(), "0xacc", time.Second, events.NewBus())
	require.NoError(t, src.pollOnce(context.Background()))

	positions := src.Positions()
	require.Len(t, positions, 1, "无效记录应该被跳过")
	assert.Equal(t, "good", positions[0].ID)
	assert.Equal(t, domain.DirectionShort, positions[0].Direction)
}

func TestPositionSource_ReplaceWholeSnapshot(t *testing.T) {
	querier := &fakePositionsQuerier{
		positions: []rawPosition{
			{ID: "pos-1", IndexToken: testToken, IsLong: true,
				Size: chainUSDString("100"), Collateral: chainUSDString("10"), AveragePrice: chainUSDString("50")},
		},
	}

	src := NewPositionSource(querier, testMarkets(), NewCalculator(), NewFundingRates(), "0xacc", time.Second, events.NewBus())
	require.NoError(t, src.pollOnce(context.Background()))
	require.Len(t, src.Positions(), 1)

	// 仓位全部平掉：快照整体替换为空
	querier.positions = nil
	require.NoError(t, src.pollOnce(context.Background()))
	assert.Empty(t, src.Positions())
}

func TestPositionSource_RunStopsOnCancel(t *testing.T) {
	querier := &fakePositionsQuerier{err: errors.New("graph down")}
	src := NewPositionSource(querier, testMarkets(), NewCalculator(), NewFundingRates(), "0xacc", time.Millisecond, events.NewBus())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx) }()

	// 拉取失败不终止循环
	time.Sleep(20 * time.Millisecond)
	select {
	case err := <-done:
		t.Fatalf("拉取失败不应该终止循环: %v", err)
	default:
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("取消后循环未退出")
	}
	assert.Greater(t, querier.calls, 1, "失败后应该在下个周期继续重试")
}
