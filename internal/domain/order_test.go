package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestClassifyOrderType(t *testing.T) {
	trigger := decimal.NewFromInt(65000)

	cases := []struct {
		name         string
		reduceOnly   bool
		triggerPrice decimal.Decimal
		isLong       bool
		triggerAbove bool
		want         OrderType
	}{
		{"多头上穿止盈", true, trigger, true, true, OrderTypeTriggerTP},
		{"多头下穿止损", true, trigger, true, false, OrderTypeTriggerSL},
		{"空头下穿止盈", true, trigger, false, false, OrderTypeTriggerTP},
		{"空头上穿止损", true, trigger, false, true, OrderTypeTriggerSL},
		{"非减仓单为限价", false, trigger, true, true, OrderTypeLimit},
		{"无触发价为限价", true, decimal.Zero, true, true, OrderTypeLimit},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ClassifyOrderType(tc.reduceOnly, tc.triggerPrice, tc.isLong, tc.triggerAbove)
			if got != tc.want {
				t.Errorf("期望 %s，得到 %s", tc.want, got)
			}
		})
	}
}

func TestDirection(t *testing.T) {
	if !DirectionLong.IsLong() {
		t.Error("LONG 应该是做多")
	}
	if DirectionShort.IsLong() {
		t.Error("SHORT 不应该是做多")
	}
	if !DirectionLong.Sign().Equal(decimal.NewFromInt(1)) {
		t.Error("做多符号应该为 +1")
	}
	if !DirectionShort.Sign().Equal(decimal.NewFromInt(-1)) {
		t.Error("做空符号应该为 -1")
	}
}

func TestPairFormat(t *testing.T) {
	f := PairFormat{Separator: "/", Quote: "USD"}

	pair := f.Format("btc")
	if pair != Pair("BTC/USD") {
		t.Errorf("期望 BTC/USD，得到 %s", pair)
	}
	if f.Base(pair) != "BTC" {
		t.Errorf("期望还原出 BTC，得到 %s", f.Base(pair))
	}

	withSuffix := PairFormat{Separator: "/", Quote: "USD", Suffix: " [Arbitrum]"}
	pair = withSuffix.Format("ETH")
	if pair != Pair("ETH/USD [Arbitrum]") {
		t.Errorf("得到 %s", pair)
	}
	if withSuffix.Base(pair) != "ETH" {
		t.Errorf("期望还原出 ETH，得到 %s", withSuffix.Base(pair))
	}
}
