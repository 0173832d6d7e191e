package syncgroup

import (
	"sync"
)

// SyncGroup 管理一组一起启动、一起等待的 goroutine
//
// Add 登记函数，Run 一次性启动已登记的函数；同一批次运行期间再次 Add/Run 会被忽略。
type SyncGroup struct {
	wg sync.WaitGroup

	mu      sync.Mutex
	pending []func()
	running int
}

// NewSyncGroup 创建新的 SyncGroup
func NewSyncGroup() *SyncGroup {
	return &SyncGroup{}
}

// Add 登记一个待启动的函数；当前批次仍在运行时返回 false
func (g *SyncGroup) Add(fn func()) bool {
	if fn == nil {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running > 0 {
		return false
	}
	g.pending = append(g.pending, fn)
	return true
}

// Run 启动所有已登记的函数
func (g *SyncGroup) Run() {
	g.mu.Lock()
	if g.running > 0 {
		g.mu.Unlock()
		return
	}
	fns := g.pending
	g.pending = nil
	g.running = len(fns)
	g.wg.Add(len(fns))
	g.mu.Unlock()

	for _, fn := range fns {
		go func(fn func()) {
			defer func() {
				g.mu.Lock()
				g.running--
				g.mu.Unlock()
				g.wg.Done()
			}()
			fn()
		}(fn)
	}
}

// Running 当前仍在运行的 goroutine 数量
func (g *SyncGroup) Running() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

// Wait 等待当前批次全部返回
func (g *SyncGroup) Wait() {
	g.wg.Wait()
}
