package shutdown

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/betbot/tradedash/pkg/logger"
)

// Handler 关闭回调；应在 ctx 到期前返回
type Handler func(ctx context.Context) error

type namedHandler struct {
	name string
	fn   Handler
}

// Manager 优雅关闭管理器
type Manager struct {
	mu        sync.Mutex
	callbacks []namedHandler
	done      bool
}

// NewManager 创建新的关闭管理器
func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown 注册关闭回调
func (m *Manager) OnShutdown(name string, handler Handler) {
	if handler == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, namedHandler{name: name, fn: handler})
}

// Shutdown 并发执行所有关闭回调，等待全部完成或 ctx 到期；只执行一次
//
// 返回第一个回调错误，超时返回 ctx.Err()。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return nil
	}
	m.done = true
	callbacks := m.callbacks
	m.mu.Unlock()

	if len(callbacks) == 0 {
		logger.Info("没有注册的关闭回调")
		return nil
	}
	logger.Infof("开始优雅关闭，共 %d 个回调", len(callbacks))

	var g errgroup.Group
	for _, cb := range callbacks {
		cb := cb
		g.Go(func() error {
			if err := cb.fn(ctx); err != nil {
				logger.Warnf("关闭回调失败: %s: %v", cb.name, err)
				return err
			}
			logger.Debugf("关闭回调完成: %s", cb.name)
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		logger.Info("所有关闭回调已完成")
		return err
	case <-ctx.Done():
		logger.Warnf("关闭超时: %v", ctx.Err())
		return ctx.Err()
	}
}
