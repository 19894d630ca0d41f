package gmx

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perpdesk/goperp/internal/domain"
)

func packFundingRate(t *testing.T, reader *ChainReader, rate int64) []byte {
	t.Helper()
	out, err := reader.vault.Methods["cumulativeFundingRates"].Outputs.Pack(big.NewInt(rate))
	require.NoError(t, err)
	return out
}

func TestFundingSource_PollOnce(t *testing.T) {
	reader, err := NewChainReader(testContracts())
	require.NoError(t, err)

	backend := newFakeBackend()
	backend.callResults[testContracts().Vault.Hex()] = packFundingRate(t, reader, 4500)

	rates := NewFundingRates()
	src := NewFundingSource(reader, func() Backend { return backend }, testMarkets(), rates,
		testContracts().StableToken, time.Second)

	require.NoError(t, src.pollOnce(context.Background()))

	long, ok := rates.Get(testPair, domain.DirectionLong)
	require.True(t, ok)
	assert.True(t, long.Equal(d("4500")))

	short, ok := rates.Get(testPair, domain.DirectionShort)
	require.True(t, ok)
	assert.True(t, short.Equal(d("4500")))
}

func TestBalanceSource_ReadsStableBalance(t *testing.T) {
	reader, err := NewChainReader(testContracts())
	require.NoError(t, err)

	backend := newFakeBackend()
	// 1234.56 USDC（6 位小数）
	raw, err := reader.erc20.Methods["balanceOf"].Outputs.Pack(big.NewInt(1234560000))
	require.NoError(t, err)
	backend.callResults[testContracts().StableToken.Hex()] = raw

	balance, err := reader.StableBalance(context.Background(), backend, common.HexToAddress("0xacc0000000000000000000000000000000000000"))
	require.NoError(t, err)
	assert.True(t, balance.Equal(d("1234.56")), "得到 %s", balance)
}
