package api

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/tradedash/internal/domain"
)

// LoginRequest POST /login 请求体
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResult POST /login 响应
type LoginResult struct {
	Token string          `json:"token"`
	User  domain.Identity `json:"user"`
}

// PriceDTO GET /prices 列表项
type PriceDTO struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

// ToQuote 快照行情没有涨跌信息，change 字段置零
func (p PriceDTO) ToQuote() domain.Quote {
	return domain.Quote{
		Symbol:         strings.TrimSpace(p.Symbol),
		LastPrice:      p.Price,
		AbsoluteChange: decimal.Zero,
		PercentChange:  decimal.Zero,
	}
}

// OrderDTO 服务端返回的订单
type OrderDTO struct {
	ID        domain.OrderID  `json:"id"`
	Symbol    string          `json:"symbol"`
	Side      string          `json:"side"`
	Quantity  int64           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

// ToOrder 转换为领域订单
func (o OrderDTO) ToOrder() domain.Order {
	return domain.Order{
		ID:       o.ID,
		Symbol:   o.Symbol,
		Side:     domain.Side(strings.ToLower(o.Side)),
		Quantity: o.Quantity,
		Price:    o.Price,
		PlacedAt: o.Timestamp,
	}
}

// CreateOrderRequest POST /orders 请求体
//
// price 以 json.Number 发送，保留 decimal 的精确文本。
type CreateOrderRequest struct {
	Symbol   string      `json:"symbol"`
	Side     string      `json:"side"`
	Quantity int64       `json:"quantity"`
	Price    json.Number `json:"price"`
}

// NewCreateOrderRequest 由草稿生成请求体
func NewCreateOrderRequest(d domain.Draft) CreateOrderRequest {
	return CreateOrderRequest{
		Symbol:   d.Symbol,
		Side:     string(d.Side),
		Quantity: d.Quantity,
		Price:    json.Number(d.Price.String()),
	}
}
