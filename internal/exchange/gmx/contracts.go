package gmx

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/perpdesk/goperp/internal/domain"
)

// orderBookABI 订单簿合约 ABI（按名字调用的远端入口，不做合约设计）
const orderBookABI = `[
	{"name":"getIncreaseOrder","type":"function","stateMutability":"view",
	 "inputs":[{"name":"_account","type":"address"},{"name":"_orderIndex","type":"uint256"}],
	 "outputs":[{"name":"purchaseToken","type":"address"},{"name":"purchaseTokenAmount","type":"uint256"},
	   {"name":"collateralToken","type":"address"},{"name":"indexToken","type":"address"},
	   {"name":"sizeDelta","type":"uint256"},{"name":"isLong","type":"bool"},
	   {"name":"triggerPrice","type":"uint256"},{"name":"triggerAboveThreshold","type":"bool"},
	   {"name":"executionFee","type":"uint256"}]},
	{"name":"getDecreaseOrder","type":"function","stateMutability":"view",
	 "inputs":[{"name":"_account","type":"address"},{"name":"_orderIndex","type":"uint256"}],
	 "outputs":[{"name":"collateralToken","type":"address"},{"name":"collateralDelta","type":"uint256"},
	   {"name":"indexToken","type":"address"},{"name":"sizeDelta","type":"uint256"},
	   {"name":"isLong","type":"bool"},{"name":"triggerPrice","type":"uint256"},
	   {"name":"triggerAboveThreshold","type":"bool"},{"name":"executionFee","type":"uint256"}]},
	{"name":"createIncreaseOrder","type":"function","stateMutability":"payable",
	 "inputs":[{"name":"_path","type":"address[]"},{"name":"_amountIn","type":"uint256"},
	   {"name":"_indexToken","type":"address"},{"name":"_minOut","type":"uint256"},
	   {"name":"_sizeDelta","type":"uint256"},{"name":"_collateralToken","type":"address"},
	   {"name":"_isLong","type":"bool"},{"name":"_triggerPrice","type":"uint256"},
	   {"name":"_triggerAboveThreshold","type":"bool"},{"name":"_executionFee","type":"uint256"},
	   {"name":"_shouldWrap","type":"bool"}],"outputs":[]},
	{"name":"createDecreaseOrder","type":"function","stateMutability":"payable",
	 "inputs":[{"name":"_indexToken","type":"address"},{"name":"_sizeDelta","type":"uint256"},
	   {"name":"_collateralToken","type":"address"},{"name":"_collateralDelta","type":"uint256"},
	   {"name":"_isLong","type":"bool"},{"name":"_triggerPrice","type":"uint256"},
	   {"name":"_triggerAboveThreshold","type":"bool"}],"outputs":[]},
	{"name":"updateIncreaseOrder","type":"function","stateMutability":"nonpayable",
	 "inputs":[{"name":"_orderIndex","type":"uint256"},{"name":"_sizeDelta","type":"uint256"},
	   {"name":"_triggerPrice","type":"uint256"},{"name":"_triggerAboveThreshold","type":"bool"}],"outputs":[]},
	{"name":"updateDecreaseOrder","type":"function","stateMutability":"nonpayable",
	 "inputs":[{"name":"_orderIndex","type":"uint256"},{"name":"_collateralDelta","type":"uint256"},
	   {"name":"_sizeDelta","type":"uint256"},{"name":"_triggerPrice","type":"uint256"},
	   {"name":"_triggerAboveThreshold","type":"bool"}],"outputs":[]},
	{"name":"cancelIncreaseOrder","type":"function","stateMutability":"nonpayable",
	 "inputs":[{"name":"_orderIndex","type":"uint256"}],"outputs":[]},
	{"name":"cancelDecreaseOrder","type":"function","stateMutability":"nonpayable",
	 "inputs":[{"name":"_orderIndex","type":"uint256"}],"outputs":[]}
]`

// positionRouterABI 仓位路由合约 ABI（市价开平仓）
const positionRouterABI = `[
	{"name":"createIncreasePosition","type":"function","stateMutability":"payable",
	 "inputs":[{"name":"_path","type":"address[]"},{"name":"_indexToken","type":"address"},
	   {"name":"_amountIn","type":"uint256"},{"name":"_minOut","type":"uint256"},
	   {"name":"_sizeDelta","type":"uint256"},{"name":"_isLong","type":"bool"},
	   {"name":"_acceptablePrice","type":"uint256"},{"name":"_executionFee","type":"uint256"},
	   {"name":"_referralCode","type":"bytes32"},{"name":"_callbackTarget","type":"address"}],
	 "outputs":[{"name":"","type":"bytes32"}]},
	{"name":"createDecreasePosition","type":"function","stateMutability":"payable",
	 "inputs":[{"name":"_path","type":"address[]"},{"name":"_indexToken","type":"address"},
	   {"name":"_collateralDelta","type":"uint256"},{"name":"_sizeDelta","type":"uint256"},
	   {"name":"_isLong","type":"bool"},{"name":"_receiver","type":"address"},
	   {"name":"_acceptablePrice","type":"uint256"},{"name":"_minOut","type":"uint256"},
	   {"name":"_executionFee","type":"uint256"},{"name":"_withdrawETH","type":"bool"},
	   {"name":"_callbackTarget","type":"address"}],
	 "outputs":[{"name":"","type":"bytes32"}]}
]`

// vaultABI 金库合约 ABI（累计资金费率读取）
const vaultABI = `[
	{"name":"cumulativeFundingRates","type":"function","stateMutability":"view",
	 "inputs":[{"name":"_token","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]}
]`

// erc20ABI 稳定币余额读取
const erc20ABI = `[
	{"name":"balanceOf","type":"function","stateMutability":"view",
	 "inputs":[{"name":"account","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]}
]`

// Contracts 交易所合约地址
type Contracts struct {
	OrderBook      common.Address // 限价/触发单
	PositionRouter common.Address // 市价开平仓
	Vault          common.Address // 资金费率等市场参数
	StableToken    common.Address // 抵押稳定币
	StableDecimals int32          // 稳定币小数位（默认 6）
}

// caller 链上只读调用的最小接口
type caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ChainReader 链上只读访问：挂单参数、资金费率、稳定币余额
type ChainReader struct {
	contracts Contracts
	orderBook abi.ABI
	vault     abi.ABI
	erc20     abi.ABI
}

// NewChainReader 创建链上读取器
func NewChainReader(contracts Contracts) (*ChainReader, error) {
	ob, err := abi.JSON(strings.NewReader(orderBookABI))
	if err != nil {
		return nil, fmt.Errorf("解析订单簿ABI失败: %w", err)
	}
	vt, err := abi.JSON(strings.NewReader(vaultABI))
	if err != nil {
		return nil, fmt.Errorf("解析金库ABI失败: %w", err)
	}
	erc, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("解析ERC20 ABI失败: %w", err)
	}
	if contracts.StableDecimals == 0 {
		contracts.StableDecimals = 6
	}
	return &ChainReader{
		contracts: contracts,
		orderBook: ob,
		vault:     vt,
		erc20:     erc,
	}, nil
}

// orderExtras 链上挂单附加参数
type orderExtras struct {
	IndexToken            common.Address
	SizeDelta             decimal.Decimal
	IsLong                bool
	TriggerPrice          decimal.Decimal
	TriggerAboveThreshold bool
}

// getterNameForKind 按挂单种类推导读取函数名（首字母大写约定）
// increase -> getIncreaseOrder；decrease -> getDecreaseOrder
func getterNameForKind(kind string) (string, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind != "increase" && kind != "decrease" {
		return "", fmt.Errorf("未知挂单种类: %q", kind)
	}
	return "get" + strings.ToUpper(kind[:1]) + kind[1:] + "Order", nil
}

// ReadOrderExtras 按挂单种类读取链上触发参数（每单一次远端调用）
func (r *ChainReader) ReadOrderExtras(ctx context.Context, backend caller, account common.Address, kind string, index uint64) (orderExtras, error) {
	method, err := getterNameForKind(kind)
	if err != nil {
		return orderExtras{}, err
	}

	data, err := r.orderBook.Pack(method, account, new(big.Int).SetUint64(index))
	if err != nil {
		return orderExtras{}, fmt.Errorf("打包%s参数失败: %w", method, err)
	}

	result, err := backend.CallContract(ctx, ethereum.CallMsg{
		To:   &r.contracts.OrderBook,
		Data: data,
	}, nil)
	if err != nil {
		return orderExtras{}, fmt.Errorf("调用%s失败: %w", method, err)
	}

	values, err := r.orderBook.Unpack(method, result)
	if err != nil {
		return orderExtras{}, fmt.Errorf("解析%s结果失败: %w", method, err)
	}

	// 两种挂单的返回字段顺序不同
	var extras orderExtras
	switch method {
	case "getIncreaseOrder":
		extras.IndexToken = values[3].(common.Address)
		extras.SizeDelta = decimal.NewFromBigInt(values[4].(*big.Int), -chainUSDDecimals)
		extras.IsLong = values[5].(bool)
		extras.TriggerPrice = decimal.NewFromBigInt(values[6].(*big.Int), -chainUSDDecimals)
		extras.TriggerAboveThreshold = values[7].(bool)
	case "getDecreaseOrder":
		extras.IndexToken = values[2].(common.Address)
		extras.SizeDelta = decimal.NewFromBigInt(values[3].(*big.Int), -chainUSDDecimals)
		extras.IsLong = values[4].(bool)
		extras.TriggerPrice = decimal.NewFromBigInt(values[5].(*big.Int), -chainUSDDecimals)
		extras.TriggerAboveThreshold = values[6].(bool)
	}
	return extras, nil
}

// CumulativeFundingRate 读取代币的累计资金费率
func (r *ChainReader) CumulativeFundingRate(ctx context.Context, backend caller, token common.Address) (decimal.Decimal, error) {
	data, err := r.vault.Pack("cumulativeFundingRates", token)
	if err != nil {
		return decimal.Zero, fmt.Errorf("打包cumulativeFundingRates参数失败: %w", err)
	}
	result, err := backend.CallContract(ctx, ethereum.CallMsg{
		To:   &r.contracts.Vault,
		Data: data,
	}, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("调用cumulativeFundingRates失败: %w", err)
	}
	var rate *big.Int
	if err := r.vault.UnpackIntoInterface(&rate, "cumulativeFundingRates", result); err != nil {
		return decimal.Zero, fmt.Errorf("解析cumulativeFundingRates结果失败: %w", err)
	}
	return decimal.NewFromBigInt(rate, 0), nil
}

// StableBalance 读取账户稳定币余额（按稳定币小数位折算）
func (r *ChainReader) StableBalance(ctx context.Context, backend caller, account common.Address) (decimal.Decimal, error) {
	data, err := r.erc20.Pack("balanceOf", account)
	if err != nil {
		return decimal.Zero, fmt.Errorf("打包balanceOf参数失败: %w", err)
	}
	result, err := backend.CallContract(ctx, ethereum.CallMsg{
		To:   &r.contracts.StableToken,
		Data: data,
	}, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("调用balanceOf失败: %w", err)
	}
	var balance *big.Int
	if err := r.erc20.UnpackIntoInterface(&balance, "balanceOf", result); err != nil {
		return decimal.Zero, fmt.Errorf("解析balanceOf结果失败: %w", err)
	}
	return decimal.NewFromBigInt(balance, -r.contracts.StableDecimals), nil
}

// domainDirection 链上多空标志转方向枚举
func domainDirection(isLong bool) domain.Direction {
	if isLong {
		return domain.DirectionLong
	}
	return domain.DirectionShort
}
