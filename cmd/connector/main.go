package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/perpdesk/goperp/internal/controlplane"
	"github.com/perpdesk/goperp/internal/domain"
	"github.com/perpdesk/goperp/internal/exchange/gmx"
	"github.com/perpdesk/goperp/pkg/config"
	"github.com/perpdesk/goperp/pkg/logger"
	"github.com/perpdesk/goperp/pkg/rpcpool"
	"github.com/perpdesk/goperp/pkg/secretstore"
	"github.com/perpdesk/goperp/pkg/shutdown"
)

// defaultMarkets Arbitrum 上的默认可交易市场
// feed id 为价格流标识，token 为链上标的代币地址
func defaultMarkets() []gmx.Market {
	return []gmx.Market{
		{
			Pair:       domain.DefaultPairFormat.Format("BTC"),
			FeedID:     "e62df6c8b4a85fe1a67db44dc12de5db330f7ac66b72dc658afedf0f4a415b43",
			IndexToken: "0x2f2a2543B76A4166549F7aaB2e75Bef0aefC5B0f",
			MinSize:    decimal.NewFromInt(10),
		},
		{
			Pair:       domain.DefaultPairFormat.Format("ETH"),
			FeedID:     "ff61491a931112ddf1bd8147cd1b641375f79f5825126d665480874634fd0ace",
			IndexToken: "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1",
			MinSize:    decimal.NewFromInt(10),
		},
	}
}

// defaultContracts Arbitrum 上的 GMX V1 合约地址
func defaultContracts() gmx.Contracts {
	return gmx.Contracts{
		OrderBook:      common.HexToAddress("0x09f77E8A13De9a35a7231028187e9fD5DB8a2ACB"),
		PositionRouter: common.HexToAddress("0xb87a436B93fFE9D75c5cFA7bAcFff96430b09868"),
		Vault:          common.HexToAddress("0x489ee077994B6658eAfA855C308275EAd8097C4A"),
		StableToken:    common.HexToAddress("0xFF970A61A04b1cA14834A43f5dE4533eBDDB5CC8"),
		StableDecimals: 6,
	}
}

func run() error {
	configPath := flag.String("config", "config.yaml", "配置文件路径")
	flag.Parse()

	// .env 不存在时静默忽略
	_ = godotenv.Load()

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		return err
	}
	cfg.ApplyEnv()

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.File,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}

	// 凭据库：私钥只存这里，不进配置文件
	store, err := secretstore.Open(secretstore.OpenOptions{
		Path:          cfg.SecretDir,
		EncryptionKey: []byte(os.Getenv("GOPERP_SECRET_KEY")),
	})
	if err != nil {
		return fmt.Errorf("打开凭据库失败: %w", err)
	}
	defer store.Close()

	privateKey, err := store.SigningKey()
	if err != nil {
		return err
	}

	// 凭据库中的节点列表优先于配置文件
	rpcURLs := cfg.Chain.RPCURLs
	if stored, err := store.RPCURLs(); err == nil && len(stored) > 0 {
		rpcURLs = stored
	}
	pool, err := rpcpool.Dial(rpcURLs)
	if err != nil {
		return err
	}
	defer rpcpool.CloseAll(pool)
	logger.Infof("RPC 节点池就绪，共 %d 个节点", pool.Size())

	exch, err := gmx.New(gmx.Options{
		StreamURL:         cfg.Endpoints.StreamURL,
		GraphURL:          cfg.Endpoints.GraphURL,
		HistoryURL:        cfg.Endpoints.HistoryURL,
		Markets:           defaultMarkets(),
		Contracts:         defaultContracts(),
		ChainID:           cfg.Chain.ChainID,
		ExplorerURL:       cfg.Chain.ExplorerURL,
		PrivateKey:        privateKey,
		Trade:             cfg.Trade,
		PositionsInterval: time.Duration(cfg.Poll.PositionsInterval) * time.Second,
		OrdersInterval:    time.Duration(cfg.Poll.OrdersInterval) * time.Second,
		FundingInterval:   time.Duration(cfg.Poll.FundingInterval) * time.Second,
		BalanceInterval:   time.Duration(cfg.Poll.BalanceInterval) * time.Second,
		Backends:          func() gmx.Backend { return pool.Next() },
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := exch.Start(ctx); err != nil {
		return err
	}

	// 默认订阅所有已配置市场的实时价格
	for _, market := range defaultMarkets() {
		if err := exch.Subscribe(market.Pair); err != nil {
			logger.Warnf("订阅 %s 失败: %v", market.Pair, err)
		}
	}

	mgr := shutdown.NewManager()
	mgr.OnShutdown(func(context.Context) {
		exch.Stop()
	})

	// 控制面是可选的只读观察口
	if cfg.ControlListen != "" {
		cp := controlplane.New(exch)
		go func() {
			if err := cp.Start(cfg.ControlListen); err != nil {
				logger.Errorf("控制面服务退出: %v", err)
			}
		}()
		mgr.OnShutdown(func(ctx context.Context) {
			if err := cp.Shutdown(ctx); err != nil {
				logger.Warnf("控制面关闭失败: %v", err)
			}
		})
		logger.Infof("控制面监听 %s", cfg.ControlListen)
	}

	sig := shutdown.WaitForSignal()
	logger.Infof("收到信号 %v，开始关闭", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	mgr.Shutdown(shutdownCtx)
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
