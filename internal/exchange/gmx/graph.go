package gmx

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/perpdesk/goperp/internal/domain"
	"github.com/perpdesk/goperp/pkg/retry"
)

// chainUSDDecimals 链上 USD 金额精度（30 位小数）
const chainUSDDecimals = 30

// rawPosition 查询返回的仓位记录（金额为链上 30 位精度的十进制字符串）
type rawPosition struct {
	ID               string `json:"id"`
	IndexToken       string `json:"indexToken"`
	CollateralToken  string `json:"collateralToken"`
	IsLong           bool   `json:"isLong"`
	Size             string `json:"size"`
	Collateral       string `json:"collateral"`
	AveragePrice     string `json:"averagePrice"`
	EntryFundingRate string `json:"entryFundingRate"`
}

// rawOrder 查询返回的挂单记录
// 触发价、触发方向、多空标志需要按 type 再做一次链上调用解析
type rawOrder struct {
	ID    string `json:"id"`
	Type  string `json:"type"` // increase / decrease
	Index uint64 `json:"index,string"`
}

const positionsQuery = `query ($account: String!) {
  positions(where: { account: $account, size_gt: 0 }) {
    id indexToken collateralToken isLong size collateral averagePrice entryFundingRate
  }
}`

const ordersQuery = `query ($account: String!) {
  orders(where: { account: $account, status: open }) {
    id type index
  }
}`

// graphRequest GraphQL 请求体
type graphRequest struct {
	Query     string            `json:"query"`
	Variables map[string]string `json:"variables"`
}

// GraphClient 仓位/挂单快照与历史 K 线的查询客户端
type GraphClient struct {
	http       *resty.Client
	graphURL   string
	historyURL string
}

// NewGraphClient 创建查询客户端
func NewGraphClient(graphURL, historyURL string) *GraphClient {
	client := resty.New().
		SetTimeout(30 * time.Second).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "goperp-connector/1.0")
	return &GraphClient{
		http:       client,
		graphURL:   graphURL,
		historyURL: historyURL,
	}
}

// post 发送 GraphQL 请求并解码 data 字段
func (c *GraphClient) post(ctx context.Context, query, account string, out interface{}) error {
	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(graphRequest{
			Query:     query,
			Variables: map[string]string{"account": account},
		}).
		SetResult(&envelope).
		Post(c.graphURL)
	if err != nil {
		return errors.Wrap(err, "GraphQL 请求失败")
	}
	if resp.StatusCode() >= 400 {
		return &retry.StatusError{Code: resp.StatusCode(), Status: resp.Status()}
	}
	if len(envelope.Errors) > 0 {
		return errors.Errorf("GraphQL 错误: %s", envelope.Errors[0].Message)
	}
	if out != nil && envelope.Data != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return errors.Wrap(err, "解析 GraphQL 响应失败")
		}
	}
	return nil
}

// FetchPositions 拉取账户当前仓位快照
func (c *GraphClient) FetchPositions(ctx context.Context, account string) ([]rawPosition, error) {
	var data struct {
		Positions []rawPosition `json:"positions"`
	}
	if err := c.post(ctx, positionsQuery, account, &data); err != nil {
		return nil, err
	}
	return data.Positions, nil
}

// FetchOrders 拉取账户当前挂单快照
func (c *GraphClient) FetchOrders(ctx context.Context, account string) ([]rawOrder, error) {
	var data struct {
		Orders []rawOrder `json:"orders"`
	}
	if err := c.post(ctx, ordersQuery, account, &data); err != nil {
		return nil, err
	}
	return data.Orders, nil
}

// rawCandle K 线记录：[time, open, high, low, close, volume]
type rawCandle [6]json.Number

// FetchCandles 拉取历史 K 线
func (c *GraphClient) FetchCandles(ctx context.Context, symbol, resolution string, barCount int) ([]domain.Candle, error) {
	var body struct {
		Candles []rawCandle `json:"candles"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol":     symbol,
			"resolution": resolution,
			"limit":      decimal.NewFromInt(int64(barCount)).String(),
		}).
		SetResult(&body).
		Get(c.historyURL)
	if err != nil {
		return nil, errors.Wrap(err, "拉取K线失败")
	}
	if resp.StatusCode() >= 400 {
		return nil, &retry.StatusError{Code: resp.StatusCode(), Status: resp.Status()}
	}

	candles := make([]domain.Candle, 0, len(body.Candles))
	for _, rc := range body.Candles {
		candle, err := parseCandle(rc)
		if err != nil {
			return nil, err
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

func parseCandle(rc rawCandle) (domain.Candle, error) {
	ts, err := rc[0].Int64()
	if err != nil {
		return domain.Candle{}, errors.Wrap(err, "无效K线时间戳")
	}
	fields := make([]decimal.Decimal, 5)
	for i := 1; i < 6; i++ {
		d, err := decimal.NewFromString(rc[i].String())
		if err != nil {
			return domain.Candle{}, errors.Wrapf(err, "无效K线字段 %d", i)
		}
		fields[i-1] = d
	}
	return domain.Candle{
		Time:   time.Unix(ts, 0),
		Open:   fields[0],
		High:   fields[1],
		Low:    fields[2],
		Close:  fields[3],
		Volume: fields[4],
	}, nil
}

// fromChainUSD 链上 30 位精度金额转十进制
func fromChainUSD(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "无效链上金额 %q", raw)
	}
	return d.Shift(-chainUSDDecimals), nil
}

// toChainUSD 十进制金额转链上 30 位精度整数
func toChainUSD(d decimal.Decimal) decimal.Decimal {
	return d.Shift(chainUSDDecimals)
}
