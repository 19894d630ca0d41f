package gmx

import (
	"sync"

	"github.com/perpdesk/goperp/internal/domain"
	"github.com/perpdesk/goperp/pkg/logger"
)

// wireSender 订阅动作的线路层（由价格流连接器实现）
type wireSender interface {
	sendSubscribe(pair domain.Pair) error
	sendUnsubscribe(pair domain.Pair) error
}

// quotePurger 退订归零时清除交易对的缓存行情
type quotePurger interface {
	purgeQuote(pair domain.Pair)
}

// SubscriptionRegistry 按交易对引用计数的订阅簿记
// 计数永不为负；减到 0 以下属于调用方编程错误，收敛为 0 并记日志，不致命
type SubscriptionRegistry struct {
	counts map[domain.Pair]int
	mu     sync.Mutex

	sender wireSender
	purger quotePurger
}

// NewSubscriptionRegistry 创建订阅注册表
func NewSubscriptionRegistry(sender wireSender, purger quotePurger) *SubscriptionRegistry {
	return &SubscriptionRegistry{
		counts: make(map[domain.Pair]int),
		sender: sender,
		purger: purger,
	}
}

// Subscribe 订阅：计数加一；首个订阅者（或 force）触发线路层订阅动作
func (r *SubscriptionRegistry) Subscribe(pair domain.Pair, force bool) {
	r.mu.Lock()
	r.counts[pair]++
	count := r.counts[pair]
	r.mu.Unlock()

	if count == 1 || force {
		if err := r.sender.sendSubscribe(pair); err != nil {
			logger.Warnf("[subs] 发送订阅失败 %s: %v", pair, err)
		}
	}
}

// Unsubscribe 退订：计数减一；归零（或 force）时触发线路层退订并清除行情缓存
func (r *SubscriptionRegistry) Unsubscribe(pair domain.Pair, force bool) {
	r.mu.Lock()
	r.counts[pair]--
	count := r.counts[pair]
	if count < 0 {
		// 退订次数多于订阅次数：收敛为 0
		logger.Warnf("[subs] %s 引用计数为负 (%d)，重置为 0", pair, count)
		count = 0
	}
	if count == 0 || force {
		r.counts[pair] = 0
	} else {
		r.counts[pair] = count
	}
	r.mu.Unlock()

	if count <= 0 || force {
		if err := r.sender.sendUnsubscribe(pair); err != nil {
			logger.Warnf("[subs] 发送退订失败 %s: %v", pair, err)
		}
		r.purger.purgeQuote(pair)
	}
}

// ResubscribeAll 重连后恢复所有活跃订阅
// 对每个计数 >= 1 的交易对强制发送一次订阅，再把被强制递增的计数减回去
// 注意：这个补偿递减假设每个交易对只强制调用一次；重连前计数 > 1 的并发订阅
// 簿记是否仍然准确存疑（见回归测试），按现状保留，待产品澄清
func (r *SubscriptionRegistry) ResubscribeAll() {
	r.mu.Lock()
	pairs := make([]domain.Pair, 0, len(r.counts))
	for pair, count := range r.counts {
		if count >= 1 {
			pairs = append(pairs, pair)
		}
	}
	r.mu.Unlock()

	for _, pair := range pairs {
		r.Subscribe(pair, true)
		r.mu.Lock()
		r.counts[pair]--
		r.mu.Unlock()
	}
}

// Count 返回交易对当前引用计数
func (r *SubscriptionRegistry) Count(pair domain.Pair) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[pair]
}

// ActivePairs 返回所有计数 >= 1 的交易对
func (r *SubscriptionRegistry) ActivePairs() []domain.Pair {
	r.mu.Lock()
	defer r.mu.Unlock()
	pairs := make([]domain.Pair, 0, len(r.counts))
	for pair, count := range r.counts {
		if count >= 1 {
			pairs = append(pairs, pair)
		}
	}
	return pairs
}
