package rpcpool

import (
	"testing"
)

func TestPool_RoundRobin(t *testing.T) {
	p, err := New([]int{1, 2, 3})
	if err != nil {
		t.Fatalf("创建节点池失败: %v", err)
	}

	want := []int{1, 2, 3, 1, 2, 3, 1}
	for i, w := range want {
		if got := p.Next(); got != w {
			t.Errorf("第 %d 次期望 %d，得到 %d", i, w, got)
		}
	}
}

func TestPool_Empty(t *testing.T) {
	if _, err := New[int](nil); err == nil {
		t.Error("空节点列表应该报错")
	}
}

func TestPool_Size(t *testing.T) {
	p, err := New([]string{"a", "b"})
	if err != nil {
		t.Fatalf("创建节点池失败: %v", err)
	}
	if p.Size() != 2 {
		t.Errorf("期望 2 个节点，得到 %d", p.Size())
	}
}

func TestDial_EmptyURLs(t *testing.T) {
	if _, err := Dial(nil); err == nil {
		t.Error("空节点列表应该报错")
	}
}
