package exchange

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrOptionsNotAvailable 当前交易所不支持该功能
var ErrOptionsNotAvailable = errors.New("当前交易所不支持该操作")

// ErrNotConnected 尚未连接或账户未配置
var ErrNotConnected = errors.New("交易所未连接")

// TransactionFailedError 链上写入失败（构建/签名错误、余额不足、节点网络错误）
// 区块链写入不具备安全幂等性，此类错误一律立即上抛，绝不自动重试
type TransactionFailedError struct {
	Op   string // 失败的操作（如 createIncreaseOrder）
	Hash string // 交易哈希（发送前失败时为空）
	Err  error  // 底层错误
}

func (e *TransactionFailedError) Error() string {
	if e.Hash != "" {
		return fmt.Sprintf("交易失败 %s (tx=%s): %v", e.Op, e.Hash, e.Err)
	}
	return fmt.Sprintf("交易失败 %s: %v", e.Op, e.Err)
}

func (e *TransactionFailedError) Unwrap() error {
	return e.Err
}

// InvalidOrderSizeError 下单规模超出交易所声明的范围
type InvalidOrderSizeError struct {
	Size decimal.Decimal // 请求的规模
	Min  decimal.Decimal // 允许的最小规模
	Max  decimal.Decimal // 允许的最大规模（零值表示不限制）
}

func (e *InvalidOrderSizeError) Error() string {
	if e.Max.IsPositive() {
		return fmt.Sprintf("下单规模 %s 超出范围 [%s, %s]", e.Size, e.Min, e.Max)
	}
	return fmt.Sprintf("下单规模 %s 低于最小值 %s", e.Size, e.Min)
}
