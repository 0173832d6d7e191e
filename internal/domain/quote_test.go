package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestQuoteTableApply(t *testing.T) {
	table := NewQuoteTable(
		Quote{Symbol: "AAPL", LastPrice: decimal.RequireFromString("175.50")},
		Quote{Symbol: "TSLA", LastPrice: decimal.RequireFromString("245.30")},
	)
	table.Apply(Quote{Symbol: "AAPL", LastPrice: decimal.NewFromInt(180), AbsoluteChange: decimal.RequireFromString("4.5")})
	table.Apply(Quote{Symbol: "NEW", LastPrice: decimal.NewFromInt(1)})

	aapl, ok := table.Get("AAPL")
	require.True(t, ok)
	assert.True(t, aapl.LastPrice.Equal(decimal.NewFromInt(180)))
	assert.True(t, aapl.AbsoluteChange.Equal(decimal.RequireFromString("4.5")))

	tsla, _ := table.Get("TSLA")
	assert.True(t, tsla.LastPrice.Equal(decimal.RequireFromString("245.30")), "未提及的 symbol 不变")

	_, ok = table.Get("NEW")
	assert.True(t, ok, "未知 symbol 新增条目")

	sorted := table.Sorted()
	require.Len(t, sorted, 3)
	assert.Equal(t, []string{"AAPL", "NEW", "TSLA"}, []string{sorted[0].Symbol, sorted[1].Symbol, sorted[2].Symbol})
}

func TestQuoteTableCloneIsIndependent(t *testing.T) {
	table := NewQuoteTable(Quote{Symbol: "A", LastPrice: decimal.NewFromInt(1)})
	c := table.Clone()
	c.Apply(Quote{Symbol: "A", LastPrice: decimal.NewFromInt(2)})

	a, _ := table.Get("A")
	assert.True(t, a.LastPrice.Equal(decimal.NewFromInt(1)))
}

// 任意增量序列应用后，每个 symbol 的值等于序列中该 symbol 的最后一条
func TestQuoteTableLastWriteWins(t *testing.T) {
	symbols := []string{"AAPL", "TSLA", "AMZN", "INFY", "TCS"}
	quoteGen := rapid.Custom(func(t *rapid.T) Quote {
		return Quote{
			Symbol:         rapid.SampledFrom(symbols).Draw(t, "symbol"),
			LastPrice:      decimal.New(rapid.Int64Range(1, 1_000_000).Draw(t, "price"), -2),
			AbsoluteChange: decimal.New(rapid.Int64Range(-10_000, 10_000).Draw(t, "change"), -2),
			PercentChange:  decimal.New(rapid.Int64Range(-200, 200).Draw(t, "pct"), -2),
		}
	})

	rapid.Check(t, func(t *rapid.T) {
		initial := rapid.SliceOf(quoteGen).Draw(t, "snapshot")
		deltas := rapid.SliceOf(quoteGen).Draw(t, "deltas")

		table := NewQuoteTable(initial...)
		for _, d := range deltas {
			table.Apply(d)
		}

		expected := map[string]Quote{}
		for _, q := range initial {
			expected[q.Symbol] = q
		}
		for _, q := range deltas {
			expected[q.Symbol] = q
		}

		if len(table) != len(expected) {
			t.Fatalf("size mismatch: got %d want %d", len(table), len(expected))
		}
		for sym, want := range expected {
			got, ok := table.Get(sym)
			if !ok || !got.Equal(want) {
				t.Fatalf("%s: got %+v want %+v", sym, got, want)
			}
		}
	})
}
