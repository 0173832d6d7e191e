package sigchan

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmitCoalesces(t *testing.T) {
	c := New(1)
	c.Emit()
	c.Emit()
	c.Emit()

	assert.True(t, c.Wait(context.Background()))
	select {
	case <-c.C():
		t.Fatal("信号应被合并")
	default:
	}
}

func TestWaitCancelled(t *testing.T) {
	c := New(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, c.Wait(ctx))
}
