package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Side 订单方向
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid 是否为已知方向
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// OrderID 服务端分配的订单 ID
//
// 后端可能返回整数或字符串，这里统一按字符串保存。
type OrderID string

// UnmarshalJSON 同时接受 JSON 字符串和数字
func (id *OrderID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = OrderID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("order id must be string or number: %w", err)
	}
	*id = OrderID(n.String())
	return nil
}

// Order 已被服务端确认的订单，创建后不可变
type Order struct {
	ID       OrderID
	Symbol   string
	Side     Side
	Quantity int64
	Price    decimal.Decimal
	PlacedAt time.Time
}

// Total 成交额 = 数量 × 价格
func (o Order) Total() decimal.Decimal {
	return o.Price.Mul(decimal.NewFromInt(o.Quantity))
}

// Equal 字段逐一比较（decimal 按数值，时间按瞬时）
func (o Order) Equal(other Order) bool {
	return o.ID == other.ID &&
		o.Symbol == other.Symbol &&
		o.Side == other.Side &&
		o.Quantity == other.Quantity &&
		o.Price.Equal(other.Price) &&
		o.PlacedAt.Equal(other.PlacedAt)
}

// OrderHistory 本地订单序列，新确认的订单插在最前面
type OrderHistory []Order

// Prepend 返回把 o 放在最前面的新序列（不修改原切片）
func (h OrderHistory) Prepend(o Order) OrderHistory {
	out := make(OrderHistory, 0, len(h)+1)
	out = append(out, o)
	return append(out, h...)
}

// Clone 返回独立副本
func (h OrderHistory) Clone() OrderHistory {
	out := make(OrderHistory, len(h))
	copy(out, h)
	return out
}

// Sorted 按下单时间倒序（最新在前），时间相同保持原有顺序
func (h OrderHistory) Sorted() []Order {
	out := make([]Order, len(h))
	copy(out, h)
	sort.SliceStable(out, func(i, j int) bool { return out[i].PlacedAt.After(out[j].PlacedAt) })
	return out
}

// Draft 用户填写、尚未提交的订单
type Draft struct {
	Symbol   string          `validate:"required"`
	Side     Side            `validate:"oneof=buy sell"`
	Quantity int64           `validate:"gte=1"`
	Price    decimal.Decimal `validate:"-"`
}

var draftValidator = validator.New()

// Validate 界面层的提交前检查：quantity >= 1, price > 0, symbol 非空
//
// 网关不会再次校验，服务端仍可能以业务理由拒绝。
func (d Draft) Validate() error {
	if err := draftValidator.Struct(d); err != nil {
		return err
	}
	if !d.Price.IsPositive() {
		return fmt.Errorf("price must be greater than 0")
	}
	return nil
}
