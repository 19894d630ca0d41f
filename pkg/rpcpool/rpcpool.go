package rpcpool

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/ethclient"
)

// Pool 循环节点池
// 按纯轮询方式在多个冗余节点之间分摊请求，规避单节点限流
// 不做健康检查：对坏节点的调用由上层重试策略重试，下一次尝试自然轮到下一个节点
type Pool[T any] struct {
	items []T
	next  int
	mu    sync.Mutex
}

// New 从已有条目创建节点池
func New[T any](items []T) (*Pool[T], error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("节点列表为空")
	}
	return &Pool[T]{items: items}, nil
}

// Next 返回下一个条目（纯轮询）
func (p *Pool[T]) Next() T {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.items) == 0 {
		var zero T
		return zero
	}
	item := p.items[p.next]
	p.next = (p.next + 1) % len(p.items)
	return item
}

// Size 返回节点数量
func (p *Pool[T]) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

// ClientPool 以太坊 RPC 客户端池
type ClientPool = Pool[*ethclient.Client]

// Dial 连接所有 RPC 节点并创建客户端池
func Dial(urls []string) (*ClientPool, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("节点列表为空")
	}

	clients := make([]*ethclient.Client, 0, len(urls))
	for _, u := range urls {
		client, err := ethclient.Dial(u)
		if err != nil {
			// 关闭已建立的连接
			for _, c := range clients {
				c.Close()
			}
			return nil, fmt.Errorf("连接RPC节点失败 %s: %w", u, err)
		}
		clients = append(clients, client)
	}

	return &Pool[*ethclient.Client]{items: clients}, nil
}

// CloseAll 关闭客户端池中所有连接
func CloseAll(p *ClientPool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.items {
		c.Close()
	}
	p.items = nil
}
