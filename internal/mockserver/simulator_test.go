package mockserver

import (
	"context"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatorTickBounds(t *testing.T) {
	sim := NewSimulator()
	two := decimal.NewFromInt(2)

	prev := make(map[string]decimal.Decimal)
	for _, p := range sim.Prices() {
		prev[p.Symbol] = p.Price
	}
	for i := 0; i < 200; i++ {
		for _, u := range sim.Tick() {
			assert.True(t, u.Price.GreaterThanOrEqual(minPrice), "%s price %s", u.Symbol, u.Price)
			assert.True(t, u.ChangePct.Abs().LessThanOrEqual(two), "%s pct %s", u.Symbol, u.ChangePct)
			assert.True(t, u.Change.Equal(u.Price.Sub(prev[u.Symbol])), "%s change %s", u.Symbol, u.Change)
			prev[u.Symbol] = u.Price
		}
	}
	for _, p := range sim.Prices() {
		assert.True(t, p.Price.Equal(prev[p.Symbol]))
	}
}

func TestSimulatorDropsForSlowSubscriber(t *testing.T) {
	sim := NewSimulator()
	ch := sim.Subscribe()

	for i := 0; i < 5; i++ {
		sim.Tick()
	}
	assert.Equal(t, subscriberSize, len(ch))

	sim.Unsubscribe(ch)
	for len(ch) > 0 {
		<-ch
	}
	sim.Tick()
	assert.Zero(t, len(ch))
}

func TestSimulatorRunStopsOnCancel(t *testing.T) {
	defer leaktest.Check(t)()

	sim := NewSimulator()
	ch := sim.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sim.Run(ctx, 5*time.Millisecond)
	}()

	select {
	case u := <-ch:
		_, ok := sim.Price(u.Symbol)
		require.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("no tick")
	}
	cancel()
	<-done
}

func TestSimulatorUnknownSymbol(t *testing.T) {
	_, ok := NewSimulator().Price("ACME")
	assert.False(t, ok)
}
