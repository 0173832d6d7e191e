package mockserver

import (
	"context"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// PriceUpdate 推送给客户端的行情
type PriceUpdate struct {
	Symbol    string
	Price     decimal.Decimal
	Change    decimal.Decimal
	ChangePct decimal.Decimal
}

var (
	minPrice       = decimal.RequireFromString("0.01")
	hundred        = decimal.NewFromInt(100)
	subscriberSize = 10
)

// Simulator 随机游走行情源，每个 tick 每个 symbol 变动 ±2%
type Simulator struct {
	mu      sync.RWMutex
	prices  map[string]decimal.Decimal
	clients map[chan PriceUpdate]struct{}
	rng     *rand.Rand
}

func NewSimulator() *Simulator {
	return &Simulator{
		prices: map[string]decimal.Decimal{
			"AAPL": decimal.RequireFromString("175.50"),
			"TSLA": decimal.RequireFromString("245.30"),
			"AMZN": decimal.RequireFromString("142.80"),
			"INFY": decimal.RequireFromString("18.25"),
			"TCS":  decimal.RequireFromString("3450.75"),
		},
		clients: make(map[chan PriceUpdate]struct{}),
		rng:     rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed)),
	}
}

// Prices 按 symbol 升序返回当前价格
func (s *Simulator) Prices() []PriceUpdate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]PriceUpdate, 0, len(s.prices))
	for symbol, price := range s.prices {
		out = append(out, PriceUpdate{Symbol: symbol, Price: price})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Price 查询单个 symbol；未知 symbol 返回 false
func (s *Simulator) Price(symbol string) (decimal.Decimal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prices[symbol]
	return p, ok
}

func (s *Simulator) Subscribe() chan PriceUpdate {
	ch := make(chan PriceUpdate, subscriberSize)
	s.mu.Lock()
	s.clients[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

func (s *Simulator) Unsubscribe(ch chan PriceUpdate) {
	s.mu.Lock()
	delete(s.clients, ch)
	s.mu.Unlock()
}

// Run 按 interval 推进行情直到 ctx 取消
func (s *Simulator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Tick 推进一步并广播；慢客户端的缓冲满时直接丢弃该条更新
func (s *Simulator) Tick() []PriceUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()

	symbols := make([]string, 0, len(s.prices))
	for symbol := range s.prices {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	updates := make([]PriceUpdate, 0, len(symbols))
	for _, symbol := range symbols {
		old := s.prices[symbol]
		pct := decimal.NewFromFloat((s.rng.Float64()*4 - 2) / 100).Round(6)
		next := old.Mul(decimal.NewFromInt(1).Add(pct)).Round(4)
		if next.LessThan(minPrice) {
			next = minPrice
		}
		s.prices[symbol] = next

		update := PriceUpdate{
			Symbol:    symbol,
			Price:     next,
			Change:    next.Sub(old),
			ChangePct: pct.Mul(hundred),
		}
		updates = append(updates, update)
		for ch := range s.clients {
			select {
			case ch <- update:
			default:
			}
		}
	}
	return updates
}
