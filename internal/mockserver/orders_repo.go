package mockserver

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type orderRow struct {
	ID        int64
	UserID    string
	Symbol    string
	Side      string
	Quantity  int64
	Price     decimal.Decimal
	CreatedAt time.Time
}

func (s *Server) insertOrder(ctx context.Context, o orderRow) (orderRow, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO orders (user_id,symbol,side,quantity,price,created_at)
VALUES (?,?,?,?,?,?)
`, o.UserID, o.Symbol, o.Side, o.Quantity, o.Price.String(), o.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return orderRow{}, fmt.Errorf("insert order: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return orderRow{}, fmt.Errorf("order id: %w", err)
	}
	o.ID = id
	return o, nil
}

func (s *Server) listOrders(ctx context.Context, userID string) ([]orderRow, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id,user_id,symbol,side,quantity,price,created_at
FROM orders WHERE user_id=? ORDER BY id ASC
`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]orderRow, 0)
	for rows.Next() {
		var o orderRow
		var price, createdAt string
		if err := rows.Scan(&o.ID, &o.UserID, &o.Symbol, &o.Side, &o.Quantity, &price, &createdAt); err != nil {
			return nil, err
		}
		o.Price, err = decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("order %d price: %w", o.ID, err)
		}
		o.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, o)
	}
	return out, rows.Err()
}
