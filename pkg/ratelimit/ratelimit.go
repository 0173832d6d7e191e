package ratelimit

import (
	"sync"
	"time"
)

// SlidingWindow 滑动窗口速率限制器：任意 windowSize 时间内最多 limit 次
type SlidingWindow struct {
	limit      int
	windowSize time.Duration
	requests   []time.Time
}

func newSlidingWindow(limit int, windowSize time.Duration) *SlidingWindow {
	return &SlidingWindow{limit: limit, windowSize: windowSize}
}

func (w *SlidingWindow) prune(now time.Time) {
	cutoff := now.Add(-w.windowSize)
	i := 0
	for i < len(w.requests) && !w.requests[i].After(cutoff) {
		i++
	}
	w.requests = w.requests[i:]
}

func (w *SlidingWindow) allow(now time.Time) bool {
	w.prune(now)
	if len(w.requests) >= w.limit {
		return false
	}
	w.requests = append(w.requests, now)
	return true
}

// Keyed 按 key 独立计数的滑动窗口限制器（例如按用户名限制登录尝试）
type Keyed struct {
	mu         sync.Mutex
	limit      int
	windowSize time.Duration
	windows    map[string]*SlidingWindow
	now        func() time.Time
}

// NewKeyed limit <= 0 表示不限制
func NewKeyed(limit int, windowSize time.Duration) *Keyed {
	return &Keyed{
		limit:      limit,
		windowSize: windowSize,
		windows:    make(map[string]*SlidingWindow),
		now:        time.Now,
	}
}

// Allow 检查并记录一次请求
func (k *Keyed) Allow(key string) bool {
	if k.limit <= 0 {
		return true
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	w, ok := k.windows[key]
	if !ok {
		w = newSlidingWindow(k.limit, k.windowSize)
		k.windows[key] = w
	}
	allowed := w.allow(now)
	k.gc(now)
	return allowed
}

// Reset 清除 key 的计数（例如登录成功后）
func (k *Keyed) Reset(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.windows, key)
}

// gc 删除窗口内已无请求的 key
func (k *Keyed) gc(now time.Time) {
	for key, w := range k.windows {
		w.prune(now)
		if len(w.requests) == 0 {
			delete(k.windows, key)
		}
	}
}
