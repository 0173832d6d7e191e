package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyedSlidingWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	k := NewKeyed(3, time.Minute)
	k.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		assert.True(t, k.Allow("admin"))
		now = now.Add(10 * time.Second)
	}
	assert.False(t, k.Allow("admin"))
	assert.True(t, k.Allow("trader"), "不同 key 独立计数")

	// 第一次请求滑出窗口后恢复一个名额
	now = now.Add(31 * time.Second)
	assert.True(t, k.Allow("admin"))
	assert.False(t, k.Allow("admin"))

	k.Reset("admin")
	assert.True(t, k.Allow("admin"))
}

func TestKeyedUnlimited(t *testing.T) {
	k := NewKeyed(0, time.Minute)
	for i := 0; i < 100; i++ {
		assert.True(t, k.Allow("x"))
	}
}

func TestKeyedForgetsIdleKeys(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	k := NewKeyed(1, time.Second)
	k.now = func() time.Time { return now }

	k.Allow("a")
	k.Allow("b")
	now = now.Add(2 * time.Second)
	k.Allow("c")
	assert.Len(t, k.windows, 1)
}
