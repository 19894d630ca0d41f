package gmx

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/perpdesk/goperp/internal/events"
	"github.com/perpdesk/goperp/internal/exchange"
	"github.com/perpdesk/goperp/pkg/logger"
)

// Backend 链上读写后端（*ethclient.Client 满足此接口；测试用假后端）
type Backend interface {
	caller
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
}

// Submitter 链上交易提交管线：构建、估算 gas、签名、发送、等待回执
// 构建/发送阶段的任何失败都归类为 TransactionFailed 并立即上抛——
// 链上写入不具备安全幂等性，绝不自动重试
type Submitter struct {
	next        func() Backend // RPC 节点轮询（每次外呼取下一个节点）
	privateKey  *ecdsa.PrivateKey
	from        common.Address
	chainID     *big.Int
	explorerURL string
	notifier    events.Notifier
	bus         *events.Bus

	receiptInterval time.Duration // 回执轮询间隔
	receiptTimeout  time.Duration // 回执等待上限
}

// NewSubmitter 创建交易提交管线
func NewSubmitter(next func() Backend, privateKey *ecdsa.PrivateKey, chainID int64, explorerURL string, notifier events.Notifier, bus *events.Bus) *Submitter {
	return &Submitter{
		next:            next,
		privateKey:      privateKey,
		from:            crypto.PubkeyToAddress(privateKey.PublicKey),
		chainID:         big.NewInt(chainID),
		explorerURL:     explorerURL,
		notifier:        notifier,
		bus:             bus,
		receiptInterval: 2 * time.Second,
		receiptTimeout:  3 * time.Minute,
	}
}

// From 签名账户地址
func (s *Submitter) From() common.Address {
	return s.from
}

// txLink 生成浏览器交易链接
func (s *Submitter) txLink(hash common.Hash) string {
	if s.explorerURL == "" {
		return hash.Hex()
	}
	return fmt.Sprintf("%s/tx/%s", s.explorerURL, hash.Hex())
}

// Submit 提交一笔合约调用并等待确认
// op 为操作名（合约入口），用于错误与通知文本
func (s *Submitter) Submit(ctx context.Context, op string, to common.Address, data []byte, value *big.Int) (*ethtypes.Receipt, error) {
	if value == nil {
		value = big.NewInt(0)
	}
	backend := s.next()

	// 获取 nonce
	nonce, err := backend.PendingNonceAt(ctx, s.from)
	if err != nil {
		return nil, &exchange.TransactionFailedError{Op: op, Err: fmt.Errorf("获取nonce失败: %w", err)}
	}

	// 费用估算：maxFee = 2*baseFee + priorityFee
	header, err := backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, &exchange.TransactionFailedError{Op: op, Err: fmt.Errorf("获取区块头失败: %w", err)}
	}
	tip, err := backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, &exchange.TransactionFailedError{Op: op, Err: fmt.Errorf("获取小费上限失败: %w", err)}
	}
	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(0)
	}
	maxFee := new(big.Int).Mul(baseFee, big.NewInt(2))
	maxFee.Add(maxFee, tip)

	// gas 上限 = 估算值 * 1.1
	estimated, err := backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  s.from,
		To:    &to,
		Data:  data,
		Value: value,
	})
	if err != nil {
		return nil, &exchange.TransactionFailedError{Op: op, Err: fmt.Errorf("估算gas失败: %w", err)}
	}
	gasLimit := estimated + estimated/10

	// 构建并签名
	tx := ethtypes.NewTx(&ethtypes.DynamicFeeTx{
		ChainID:   s.chainID,
		Nonce:     nonce,
		To:        &to,
		Value:     value,
		Gas:       gasLimit,
		GasTipCap: tip,
		GasFeeCap: maxFee,
		Data:      data,
	})
	signedTx, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(s.chainID), s.privateKey)
	if err != nil {
		return nil, &exchange.TransactionFailedError{Op: op, Err: fmt.Errorf("签名交易失败: %w", err)}
	}

	// 发送
	if err := backend.SendTransaction(ctx, signedTx); err != nil {
		return nil, &exchange.TransactionFailedError{Op: op, Err: fmt.Errorf("发送交易失败: %w", err)}
	}
	hash := signedTx.Hash()

	msgID := s.notifier.ShowMessage(fmt.Sprintf("交易已提交 %s: %s", op, s.txLink(hash)))
	s.bus.PublishTx(events.TxEvent{Hash: hash.Hex(), Status: events.TxStatusPending, Link: s.txLink(hash)})
	logger.Infof("[tx] %s 已发送: %s (nonce=%d gas=%d)", op, hash.Hex(), nonce, gasLimit)

	// 等待回执
	receipt, err := s.waitReceipt(ctx, hash)
	if err != nil {
		s.notifier.UpdateMessage(msgID, fmt.Sprintf("交易确认失败 %s: %v", op, err))
		s.bus.PublishTx(events.TxEvent{Hash: hash.Hex(), Status: events.TxStatusFailed, Link: s.txLink(hash)})
		return nil, &exchange.TransactionFailedError{Op: op, Hash: hash.Hex(), Err: err}
	}

	// 状态 1 为成功，其余均为失败
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		s.notifier.UpdateMessage(msgID, fmt.Sprintf("交易失败 %s: %s", op, s.txLink(hash)))
		s.bus.PublishTx(events.TxEvent{Hash: hash.Hex(), Status: events.TxStatusFailed, Link: s.txLink(hash)})
		return receipt, &exchange.TransactionFailedError{Op: op, Hash: hash.Hex(), Err: fmt.Errorf("回执状态 %d", receipt.Status)}
	}

	s.notifier.UpdateMessage(msgID, fmt.Sprintf("交易成功 %s: %s", op, s.txLink(hash)))
	s.bus.PublishTx(events.TxEvent{Hash: hash.Hex(), Status: events.TxStatusSuccess, Link: s.txLink(hash)})
	return receipt, nil
}

// waitReceipt 轮询交易回执直到上链、超时或取消
func (s *Submitter) waitReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	deadline := time.Now().Add(s.receiptTimeout)
	ticker := time.NewTicker(s.receiptInterval)
	defer ticker.Stop()

	for {
		receipt, err := s.next().TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && err != ethereum.NotFound {
			logger.Debugf("[tx] 查询回执失败 %s: %v", hash.Hex(), err)
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("等待回执超时: %s", hash.Hex())
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
