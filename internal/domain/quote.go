package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Quote 单个标的的行情
type Quote struct {
	Symbol         string
	LastPrice      decimal.Decimal
	AbsoluteChange decimal.Decimal
	PercentChange  decimal.Decimal
}

// Equal 比较两个行情的所有字段（decimal 按数值比较）
func (q Quote) Equal(other Quote) bool {
	return q.Symbol == other.Symbol &&
		q.LastPrice.Equal(other.LastPrice) &&
		q.AbsoluteChange.Equal(other.AbsoluteChange) &&
		q.PercentChange.Equal(other.PercentChange)
}

// QuoteTable 以 symbol 为键的行情表；映射本身无序，展示顺序由 Sorted 派生
type QuoteTable map[string]Quote

// NewQuoteTable 用一组行情构建新表（重复 symbol 后者覆盖前者）
func NewQuoteTable(quotes ...Quote) QuoteTable {
	t := make(QuoteTable, len(quotes))
	for _, q := range quotes {
		t.Apply(q)
	}
	return t
}

// Apply 整条替换该 symbol 的行情，未提及的 symbol 保持不变；未知 symbol 会新增条目
func (t QuoteTable) Apply(q Quote) {
	t[q.Symbol] = q
}

// Get 获取单个 symbol 的行情
func (t QuoteTable) Get(symbol string) (Quote, bool) {
	q, ok := t[symbol]
	return q, ok
}

// Clone 返回独立副本
func (t QuoteTable) Clone() QuoteTable {
	out := make(QuoteTable, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Sorted 按 symbol 升序返回行情列表
func (t QuoteTable) Sorted() []Quote {
	out := make([]Quote, 0, len(t))
	for _, q := range t {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
