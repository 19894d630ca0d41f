package gmx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perpdesk/goperp/pkg/retry"
)

func TestFromChainUSD(t *testing.T) {
	// 100 美元 = 1e32（30 位小数）
	got, err := fromChainUSD(d("100").Shift(chainUSDDecimals).String())
	require.NoError(t, err)
	assert.True(t, got.Equal(d("100")))

	_, err = fromChainUSD("not-a-number")
	assert.Error(t, err)

	// 往返恒等
	v := d("1234.5678")
	back, err := fromChainUSD(toChainUSD(v).String())
	require.NoError(t, err)
	assert.True(t, back.Equal(v))
}

func TestGraphClient_FetchPositions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req graphRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "0xacc", req.Variables["account"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"positions":[
			{"id":"p1","indexToken":"0xaaa","isLong":true,"size":"100","collateral":"10","averagePrice":"50","entryFundingRate":"7"}
		]}}`))
	}))
	defer srv.Close()

	client := NewGraphClient(srv.URL, "")
	positions, err := client.FetchPositions(context.Background(), "0xacc")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "p1", positions[0].ID)
	assert.True(t, positions[0].IsLong)
	assert.Equal(t, "7", positions[0].EntryFundingRate)
}

func TestGraphClient_GraphQLErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"errors":[{"message":"rate limited"}]}`))
	}))
	defer srv.Close()

	client := NewGraphClient(srv.URL, "")
	_, err := client.FetchPositions(context.Background(), "0xacc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestGraphClient_HTTPErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewGraphClient(srv.URL, "")
	_, err := client.FetchOrders(context.Background(), "0xacc")
	require.Error(t, err)
	assert.True(t, retry.IsRetryable(err), "5xx 应该是可重试错误")
}

func TestGraphClient_FetchCandles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BTC", r.URL.Query().Get("symbol"))
		assert.Equal(t, "15", r.URL.Query().Get("resolution"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candles":[
			[1700000000, 100, 110, 95, 105, 1234.5],
			[1700000900, 105, 108, 101, 102, 987]
		]}`))
	}))
	defer srv.Close()

	client := NewGraphClient("", srv.URL)
	candles, err := client.FetchCandles(context.Background(), "BTC", "15", 2)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	assert.Equal(t, int64(1700000000), candles[0].Time.Unix())
	assert.True(t, candles[0].Open.Equal(d("100")))
	assert.True(t, candles[0].High.Equal(d("110")))
	assert.True(t, candles[0].Low.Equal(d("95")))
	assert.True(t, candles[0].Close.Equal(d("105")))
	assert.True(t, candles[0].Volume.Equal(d("1234.5")))
}

func TestRawOrder_IndexFromString(t *testing.T) {
	var order rawOrder
	require.NoError(t, json.Unmarshal([]byte(`{"id":"o1","type":"decrease","index":"42"}`), &order))
	assert.Equal(t, uint64(42), order.Index)
}
