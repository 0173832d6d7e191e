package sigchan

import "context"

// Chan 合并信号的 channel：多次 Emit 在被消费前只保留一个
type Chan struct {
	c chan struct{}
}

// New 创建信号 channel；bufferSize 小于 1 时按 1 处理
func New(bufferSize int) *Chan {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Chan{c: make(chan struct{}, bufferSize)}
}

// Emit 发送信号（非阻塞，缓冲满时丢弃）
func (c *Chan) Emit() {
	select {
	case c.c <- struct{}{}:
	default:
	}
}

// C 返回内部的 channel（用于 select）
func (c *Chan) C() <-chan struct{} {
	return c.c
}

// Wait 阻塞直到收到信号或 ctx 取消；收到信号返回 true
func (c *Chan) Wait(ctx context.Context) bool {
	select {
	case <-c.c:
		return true
	case <-ctx.Done():
		return false
	}
}
