package gmx

import "sync"

// snapshotCache 整体替换式快照缓存
// 消费方永远看不到半新半旧的列表：Replace 整体换引用，Get 返回当前引用
// 快照约定为不可变——发布后任何一方都不得修改切片内容
type snapshotCache[T any] struct {
	mu    sync.RWMutex
	items []T
}

// Replace 原子替换整个快照
func (s *snapshotCache[T]) Replace(items []T) {
	s.mu.Lock()
	s.items = items
	s.mu.Unlock()
}

// Get 返回当前快照
func (s *snapshotCache[T]) Get() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.items
}
