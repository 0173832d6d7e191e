package events

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "events")

// Handler 事件处理器
type Handler interface {
	OnEvent(ctx context.Context, ev Event) error
}

// HandlerFunc 函数适配器
type HandlerFunc func(ctx context.Context, ev Event) error

func (f HandlerFunc) OnEvent(ctx context.Context, ev Event) error { return f(ctx, ev) }

// HandlerList 处理器列表
type HandlerList struct {
	handlers []Handler
	mu       sync.RWMutex
}

// NewHandlerList 创建新的处理器列表
func NewHandlerList() *HandlerList {
	return &HandlerList{
		handlers: make([]Handler, 0),
	}
}

// Add 添加处理器
func (h *HandlerList) Add(handler Handler) {
	if handler == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers = append(h.handlers, handler)
}

// Snapshot 返回处理器快照（用于在无锁状态下遍历，避免长时间持锁）
func (h *HandlerList) Snapshot() []Handler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Handler, len(h.handlers))
	copy(out, h.handlers)
	return out
}

// Emit 串行触发所有处理器；单个处理器出错或 panic 不影响其它处理器
func (h *HandlerList) Emit(ctx context.Context, ev Event) {
	for i, handler := range h.Snapshot() {
		func(idx int, hd Handler) {
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("事件处理器 %d panic: event=%s err=%v", idx, ev.Name(), r)
				}
			}()
			if err := hd.OnEvent(ctx, ev); err != nil {
				log.Errorf("事件处理器 %d 执行失败: event=%s err=%v", idx, ev.Name(), err)
			}
		}(i, handler)
	}
}

// Count 返回处理器数量
func (h *HandlerList) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.handlers)
}
