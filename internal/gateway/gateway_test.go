package gateway

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/tradedash/internal/api"
	"github.com/betbot/tradedash/internal/domain"
)

type fakeAPI struct {
	echo  func(domain.Draft) api.OrderDTO
	err   error
	calls int
}

func (f *fakeAPI) CreateOrder(ctx context.Context, token string, draft domain.Draft) (api.OrderDTO, error) {
	f.calls++
	if f.err != nil {
		return api.OrderDTO{}, f.err
	}
	return f.echo(draft), nil
}

var sess = &domain.Session{Credential: "tok", Identity: domain.Identity{ID: "1", Username: "admin"}}

func TestSubmitReturnsServerEcho(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	f := &fakeAPI{echo: func(d domain.Draft) api.OrderDTO {
		return api.OrderDTO{ID: "o-1", Symbol: d.Symbol, Side: string(d.Side), Quantity: d.Quantity, Price: d.Price, Timestamp: ts}
	}}

	draft := domain.Draft{Symbol: "ACME", Side: domain.SideBuy, Quantity: 10, Price: decimal.RequireFromString("25.50")}
	order, err := New(f).Submit(context.Background(), sess, draft)
	require.NoError(t, err)

	assert.Equal(t, domain.OrderID("o-1"), order.ID)
	assert.Equal(t, "ACME", order.Symbol)
	assert.Equal(t, domain.SideBuy, order.Side)
	assert.Equal(t, int64(10), order.Quantity)
	assert.True(t, order.Price.Equal(decimal.RequireFromString("25.50")))
	assert.True(t, order.PlacedAt.Equal(ts))
}

func TestSubmitPassesErrorsThrough(t *testing.T) {
	draft := domain.Draft{Symbol: "ACME", Side: domain.SideBuy, Quantity: 1, Price: decimal.NewFromInt(1)}

	f := &fakeAPI{err: &domain.ValidationError{Status: http.StatusBadRequest, Message: "Invalid stock symbol"}}
	_, err := New(f).Submit(context.Background(), sess, draft)
	ve, ok := domain.IsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "Invalid stock symbol", ve.Message)
	assert.Equal(t, 1, f.calls, "不重试")

	f = &fakeAPI{err: errors.Wrap(domain.ErrUnauthorized, "create order")}
	_, err = New(f).Submit(context.Background(), sess, draft)
	assert.True(t, domain.IsAuthFailure(err))

	f = &fakeAPI{err: errors.New("connection reset")}
	_, err = New(f).Submit(context.Background(), sess, draft)
	assert.True(t, domain.IsTransport(err))
	assert.Equal(t, 1, f.calls)
}

func TestSubmitWithoutSession(t *testing.T) {
	f := &fakeAPI{}
	_, err := New(f).Submit(context.Background(), nil, domain.Draft{})
	assert.ErrorIs(t, err, domain.ErrNoSession)
	assert.Zero(t, f.calls)
}
