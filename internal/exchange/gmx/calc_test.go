package gmx

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perpdesk/goperp/internal/domain"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestCalculator_MarginFee(t *testing.T) {
	calc := NewCalculator()

	// 10000 * 10 / 10000 = 10
	assert.True(t, calc.MarginFee(d("10000")).Equal(d("10")))
	assert.True(t, calc.MarginFee(d("0")).Equal(decimal.Zero))

	// 费率缩放不变式：MarginFee(k*size) == k*MarginFee(size)
	size := d("1234.56")
	k := d("7")
	assert.True(t, calc.MarginFee(size.Mul(k)).Equal(calc.MarginFee(size).Mul(k)))
}

func TestCalculator_FundingFee(t *testing.T) {
	calc := NewCalculator()
	rates := NewFundingRates()
	rates.Set(domain.Pair("BTC/USD"), domain.DirectionLong, d("4500"))

	pos := domain.Position{
		Pair:      domain.Pair("BTC/USD"),
		Size:      d("10000"),
		Direction: domain.DirectionLong,
		Extra: domain.PositionExtra{
			EntryFundingRate: d("1000"),
			HasFundingRate:   true,
		},
	}

	// 10000 * (4500 - 1000) / 1000000 = 35
	assert.True(t, calc.FundingFee(pos, rates).Equal(d("35")))

	// 缺少开仓费率 -> 资金费为 0
	pos.Extra.HasFundingRate = false
	assert.True(t, calc.FundingFee(pos, rates).Equal(decimal.Zero))

	// 缓存缺少该方向的累计费率 -> 资金费为 0
	pos.Extra.HasFundingRate = true
	pos.Direction = domain.DirectionShort
	assert.True(t, calc.FundingFee(pos, rates).Equal(decimal.Zero))
}

func TestCalculator_LiquidationPriceLong(t *testing.T) {
	calc := NewCalculator()
	rates := NewFundingRates()
	rates.Set(domain.Pair("BTC/USD"), domain.DirectionLong, d("4500"))

	// 总费用 = 资金费 35 + 保证金费 10 + 强平费 5 = 50
	// 费用候选: 100 - (1000-50)*100/10000 = 90.5
	// 杠杆候选: delta = 10000*10000/1000000 = 100 -> 100 - (1000-100)*100/10000 = 91
	// 做多取两者较大 -> 91
	pos := domain.Position{
		Pair:       domain.Pair("BTC/USD"),
		Size:       d("10000"),
		Collateral: d("1000"),
		OpenPrice:  d("100"),
		Direction:  domain.DirectionLong,
		Extra: domain.PositionExtra{
			EntryFundingRate: d("1000"),
			HasFundingRate:   true,
		},
	}

	price := calc.LiquidationPrice(pos, rates)
	require.True(t, price.Equal(d("91")), "期望 91，得到 %s", price)
}

func TestCalculator_LiquidationPriceShort(t *testing.T) {
	calc := NewCalculator()
	rates := NewFundingRates()

	// 无资金费：总费用 = 10 + 5 = 15
	// 费用候选: 100 + (1000-15)*100/10000 = 109.85
	// 杠杆候选: 100 + (1000-100)*100/10000 = 109
	// 做空取两者较小 -> 109
	pos := domain.Position{
		Pair:       domain.Pair("BTC/USD"),
		Size:       d("10000"),
		Collateral: d("1000"),
		OpenPrice:  d("100"),
		Direction:  domain.DirectionShort,
	}

	price := calc.LiquidationPrice(pos, rates)
	require.True(t, price.Equal(d("109")), "期望 109，得到 %s", price)
}

func TestCalculator_LiquidationPriceFeesExceedCollateral(t *testing.T) {
	calc := NewCalculator()
	rates := NewFundingRates()
	rates.Set(domain.Pair("BTC/USD"), domain.DirectionLong, d("500000"))

	// 资金费 = 10000 * 500000 / 1000000 = 5000 > 抵押 1000
	// 费用分支翻转：做多强平价高于开仓价
	pos := domain.Position{
		Pair:       domain.Pair("BTC/USD"),
		Size:       d("10000"),
		Collateral: d("1000"),
		OpenPrice:  d("100"),
		Direction:  domain.DirectionLong,
		Extra: domain.PositionExtra{
			EntryFundingRate: decimal.Zero,
			HasFundingRate:   true,
		},
	}

	price := calc.LiquidationPrice(pos, rates)
	assert.True(t, price.GreaterThan(pos.OpenPrice), "费用超过抵押时做多强平价应该高于开仓价，得到 %s", price)
}

func TestCalculator_LiquidationPriceZeroSize(t *testing.T) {
	calc := NewCalculator()
	pos := domain.Position{Size: decimal.Zero, Direction: domain.DirectionLong}
	assert.True(t, calc.LiquidationPrice(pos, NewFundingRates()).Equal(decimal.Zero))
}

func TestCalculator_PnlPercentBeforeFees(t *testing.T) {
	calc := NewCalculator()

	long := domain.Position{
		OpenPrice: d("100"),
		Leverage:  d("10"),
		Direction: domain.DirectionLong,
	}
	// ((110/100) - 1) * 100 * 10 = 100
	assert.True(t, calc.PnlPercentBeforeFees(long, d("110")).Equal(d("100")))

	short := domain.Position{
		OpenPrice: d("100"),
		Leverage:  d("10"),
		Direction: domain.DirectionShort,
	}
	// 做空方向符号取反 -> -100
	assert.True(t, calc.PnlPercentBeforeFees(short, d("110")).Equal(d("-100")))

	// 开仓价为 0 -> 0（避免除零）
	assert.True(t, calc.PnlPercentBeforeFees(domain.Position{}, d("110")).Equal(decimal.Zero))
}

func TestFundingRates_GetSet(t *testing.T) {
	rates := NewFundingRates()

	_, ok := rates.Get(domain.Pair("BTC/USD"), domain.DirectionLong)
	assert.False(t, ok)

	rates.Set(domain.Pair("BTC/USD"), domain.DirectionLong, d("123"))
	rates.Set(domain.Pair("BTC/USD"), domain.DirectionShort, d("456"))

	got, ok := rates.Get(domain.Pair("BTC/USD"), domain.DirectionLong)
	require.True(t, ok)
	assert.True(t, got.Equal(d("123")))

	got, ok = rates.Get(domain.Pair("BTC/USD"), domain.DirectionShort)
	require.True(t, ok)
	assert.True(t, got.Equal(d("456")))
}
