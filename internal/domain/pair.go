package domain

import "strings"

// Pair 交易对标识（规范化后的字符串键）
type Pair string

func (p Pair) String() string {
	return string(p)
}

// PairFormat 交易对格式化规则（前缀/分隔符/后缀）
// 例如 Prefix=""、Separator="/"、Suffix=" [Arbitrum]" 时 BTC -> "BTC/USD [Arbitrum]"
type PairFormat struct {
	Prefix    string // 交易对前缀
	Separator string // 基础币与计价币之间的分隔符
	Suffix    string // 交易对后缀
	Quote     string // 计价币代码（默认 USD）
}

// DefaultPairFormat 默认格式：BASE/USD
var DefaultPairFormat = PairFormat{Separator: "/", Quote: "USD"}

// Format 从币种代码生成规范化交易对
func (f PairFormat) Format(coin string) Pair {
	quote := f.Quote
	if quote == "" {
		quote = "USD"
	}
	coin = strings.ToUpper(strings.TrimSpace(coin))
	return Pair(f.Prefix + coin + f.Separator + quote + f.Suffix)
}

// Base 从规范化交易对还原币种代码
func (f PairFormat) Base(pair Pair) string {
	s := string(pair)
	s = strings.TrimPrefix(s, f.Prefix)
	s = strings.TrimSuffix(s, f.Suffix)
	if f.Separator != "" {
		if i := strings.Index(s, f.Separator); i >= 0 {
			s = s[:i]
		}
	}
	return s
}
