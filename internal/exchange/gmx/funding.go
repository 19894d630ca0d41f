package gmx

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/perpdesk/goperp/internal/domain"
	"github.com/perpdesk/goperp/pkg/logger"
)

// FundingSource 资金费率轮询器
// 多头资金费率按标的代币累计，空头按稳定币累计；写入共享费率缓存
type FundingSource struct {
	reader   *ChainReader
	next     func() Backend
	markets  *Markets
	rates    *FundingRates
	stable   common.Address
	interval time.Duration
}

// NewFundingSource 创建资金费率轮询器
func NewFundingSource(reader *ChainReader, next func() Backend, markets *Markets, rates *FundingRates, stable common.Address, interval time.Duration) *FundingSource {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &FundingSource{
		reader:   reader,
		next:     next,
		markets:  markets,
		rates:    rates,
		stable:   stable,
		interval: interval,
	}
}

// Run 轮询循环：持续运行直到取消
func (fs *FundingSource) Run(ctx context.Context) error {
	ticker := time.NewTicker(fs.interval)
	defer ticker.Stop()

	for {
		if err := fs.pollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warnf("[funding] 拉取资金费率失败: %v", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// pollOnce 刷新一轮所有市场的累计资金费率
func (fs *FundingSource) pollOnce(ctx context.Context) error {
	// 空头侧按稳定币累计，所有市场共用一次读取
	shortRate, err := fs.reader.CumulativeFundingRate(ctx, fs.next(), fs.stable)
	if err != nil {
		return err
	}

	for _, pair := range fs.markets.Pairs() {
		market, _ := fs.markets.ByPair(pair)
		longRate, err := fs.reader.CumulativeFundingRate(ctx, fs.next(), common.HexToAddress(market.IndexToken))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warnf("[funding] 读取 %s 资金费率失败: %v", pair, err)
			continue
		}
		fs.rates.Set(pair, domain.DirectionLong, longRate)
		fs.rates.Set(pair, domain.DirectionShort, shortRate)
	}
	return nil
}

// BalanceSource 稳定币余额轮询器
type BalanceSource struct {
	reader   *ChainReader
	next     func() Backend
	account  common.Address
	interval time.Duration

	mu      sync.RWMutex
	balance decimal.Decimal
}

// NewBalanceSource 创建余额轮询器
func NewBalanceSource(reader *ChainReader, next func() Backend, account common.Address, interval time.Duration) *BalanceSource {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &BalanceSource{
		reader:   reader,
		next:     next,
		account:  account,
		interval: interval,
	}
}

// Balance 最近一次读取的稳定币余额
func (bs *BalanceSource) Balance() decimal.Decimal {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	return bs.balance
}

// Run 轮询循环：持续运行直到取消
func (bs *BalanceSource) Run(ctx context.Context) error {
	ticker := time.NewTicker(bs.interval)
	defer ticker.Stop()

	for {
		balance, err := bs.reader.StableBalance(ctx, bs.next(), bs.account)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warnf("[balance] 读取稳定币余额失败: %v", err)
		} else {
			bs.mu.Lock()
			bs.balance = balance
			bs.mu.Unlock()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
