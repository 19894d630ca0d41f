package syncgroup

import (
	"sync"
)

// SyncGroup 是 sync.WaitGroup 的包装器，简化长循环 goroutine 的生命周期管理
// 自动配对 Add() 和 Done()，避免遗漏 Done() 导致 Wait() 挂起
type SyncGroup struct {
	wg sync.WaitGroup
}

// NewSyncGroup 创建新的 SyncGroup
func NewSyncGroup() *SyncGroup {
	return &SyncGroup{}
}

// Go 启动一个受管 goroutine
func (g *SyncGroup) Go(fn func()) {
	if fn == nil {
		return
	}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		fn()
	}()
}

// Wait 等待所有受管 goroutine 完成
func (g *SyncGroup) Wait() {
	g.wg.Wait()
}
