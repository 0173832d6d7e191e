package shutdown

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownRunsAllCallbacksOnce(t *testing.T) {
	m := NewManager()
	var n atomic.Int32
	m.OnShutdown("a", func(context.Context) error { n.Add(1); return nil })
	m.OnShutdown("b", func(context.Context) error { n.Add(1); return nil })
	m.OnShutdown("nil", nil)

	require.NoError(t, m.Shutdown(context.Background()))
	require.NoError(t, m.Shutdown(context.Background()))
	assert.Equal(t, int32(2), n.Load())
}

func TestShutdownReturnsCallbackError(t *testing.T) {
	m := NewManager()
	boom := errors.New("boom")
	m.OnShutdown("ok", func(context.Context) error { return nil })
	m.OnShutdown("bad", func(context.Context) error { return boom })

	assert.ErrorIs(t, m.Shutdown(context.Background()), boom)
}

func TestShutdownTimeout(t *testing.T) {
	m := NewManager()
	release := make(chan struct{})
	defer close(release)
	m.OnShutdown("slow", func(context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.Shutdown(ctx), context.DeadlineExceeded)
}

func TestShutdownWithoutCallbacks(t *testing.T) {
	assert.NoError(t, NewManager().Shutdown(context.Background()))
}
