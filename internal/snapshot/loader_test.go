package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/tradedash/internal/api"
	"github.com/betbot/tradedash/internal/domain"
)

type fakeSource struct {
	prices    []api.PriceDTO
	pricesErr error
	orders    []api.OrderDTO
	ordersErr error
	gotToken  string
}

func (f *fakeSource) ListPrices(ctx context.Context) ([]api.PriceDTO, error) {
	return f.prices, f.pricesErr
}

func (f *fakeSource) ListOrders(ctx context.Context, token string) ([]api.OrderDTO, error) {
	f.gotToken = token
	return f.orders, f.ordersErr
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestLoadQuotes(t *testing.T) {
	src := &fakeSource{prices: []api.PriceDTO{
		{Symbol: "AAPL", Price: dec("175.50")},
		{Symbol: "TSLA", Price: dec("245.30")},
		{Symbol: "AAPL", Price: dec("176")},
		{Symbol: "", Price: dec("1")},
	}}

	table, err := NewLoader(src).LoadQuotes(context.Background())
	require.NoError(t, err)
	require.Len(t, table, 2)

	aapl, ok := table.Get("AAPL")
	require.True(t, ok)
	assert.True(t, aapl.LastPrice.Equal(dec("176")), "重复 symbol 以最后一条为准")
	assert.True(t, aapl.AbsoluteChange.IsZero())
	assert.True(t, aapl.PercentChange.IsZero())
}

func TestLoadQuotesTransportFailure(t *testing.T) {
	src := &fakeSource{pricesErr: &domain.TransportError{Op: "list prices", Err: errors.New("refused")}}
	table, err := NewLoader(src).LoadQuotes(context.Background())
	assert.Nil(t, table)
	assert.True(t, domain.IsTransport(err))
}

func TestLoadOrders(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	src := &fakeSource{orders: []api.OrderDTO{
		{ID: "7", Symbol: "TCS", Side: "SELL", Quantity: 3, Price: dec("3450.75"), Timestamp: ts},
	}}
	sess := &domain.Session{Credential: "tok", Identity: domain.Identity{ID: "1", Username: "admin"}}

	history, err := NewLoader(src).LoadOrders(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, "tok", src.gotToken)
	require.Len(t, history, 1)
	assert.Equal(t, domain.SideSell, history[0].Side)
	assert.True(t, history[0].Total().Equal(dec("10352.25")))
}

func TestLoadOrdersEmptyBody(t *testing.T) {
	history, err := NewLoader(&fakeSource{}).LoadOrders(context.Background(), &domain.Session{Credential: "tok"})
	require.NoError(t, err)
	assert.NotNil(t, history)
	assert.Empty(t, history)
}

func TestLoadOrdersErrorClassification(t *testing.T) {
	sess := &domain.Session{Credential: "tok"}

	_, err := NewLoader(&fakeSource{ordersErr: errors.Wrap(domain.ErrUnauthorized, "list orders")}).
		LoadOrders(context.Background(), sess)
	assert.True(t, domain.IsAuthFailure(err))

	_, err = NewLoader(&fakeSource{ordersErr: context.DeadlineExceeded}).
		LoadOrders(context.Background(), sess)
	assert.True(t, domain.IsTransport(err))
	assert.False(t, domain.IsAuthFailure(err))

	_, err = NewLoader(&fakeSource{}).LoadOrders(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrNoSession)
}
