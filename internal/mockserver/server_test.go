package mockserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/tradedash/internal/api"
	"github.com/betbot/tradedash/internal/domain"
	"github.com/betbot/tradedash/internal/stream"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server, *api.Client) {
	t.Helper()
	srv, err := New(Config{DBPath: ":memory:", JWTSecret: "test-secret", TickInterval: time.Hour})
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return srv, ts, api.NewClient(ts.URL, 2*time.Second)
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func login(t *testing.T, client *api.Client, username, password string) api.LoginResult {
	t.Helper()
	res, err := client.Login(context.Background(), username, password)
	require.NoError(t, err)
	return res
}

func TestNewRequiresDBPath(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestLogin(t *testing.T) {
	_, ts, client := newTestServer(t)

	res := login(t, client, "trader", "trader123")
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, domain.Identity{ID: "2", Username: "trader"}, res.User)

	again := login(t, client, "trader", "trader123")
	assert.NotEqual(t, res.Token, again.Token)

	_, err := client.Login(context.Background(), "trader", "wrong")
	ve, ok := domain.IsValidation(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, http.StatusUnauthorized, ve.Status)
	assert.Equal(t, "Invalid credentials", ve.Message)

	resp, err := http.Post(ts.URL+"/login", "application/json", strings.NewReader(`{"username":"admin"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPrices(t *testing.T) {
	_, _, client := newTestServer(t)

	prices, err := client.ListPrices(context.Background())
	require.NoError(t, err)
	require.Len(t, prices, 5)

	symbols := make([]string, 0, len(prices))
	for _, p := range prices {
		symbols = append(symbols, p.Symbol)
	}
	assert.Equal(t, []string{"AAPL", "AMZN", "INFY", "TCS", "TSLA"}, symbols)
	assert.True(t, prices[0].Price.Equal(decimal.RequireFromString("175.50")))
}

func TestOrdersRequireToken(t *testing.T) {
	_, _, client := newTestServer(t)
	ctx := context.Background()

	_, err := client.ListOrders(ctx, "")
	assert.True(t, domain.IsAuthFailure(err), "got %v", err)

	_, err = client.ListOrders(ctx, "not-a-jwt")
	assert.True(t, domain.IsAuthFailure(err), "got %v", err)

	other, err := New(Config{DBPath: ":memory:", JWTSecret: "other-secret", TickInterval: time.Hour})
	require.NoError(t, err)
	defer other.Close()
	forged, err := other.auth.generateToken(user{ID: "1", Username: "admin"})
	require.NoError(t, err)
	_, err = client.ListOrders(ctx, forged)
	assert.True(t, domain.IsAuthFailure(err), "got %v", err)
}

func TestCreateAndListOrders(t *testing.T) {
	_, _, client := newTestServer(t)
	ctx := context.Background()
	trader := login(t, client, "trader", "trader123")
	admin := login(t, client, "admin", "admin123")

	draft := domain.Draft{Symbol: "AAPL", Side: domain.SideBuy, Quantity: 10, Price: decimal.RequireFromString("25.50")}
	created, err := client.CreateOrder(ctx, trader.Token, draft)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderID("1"), created.ID)
	assert.Equal(t, "AAPL", created.Symbol)
	assert.Equal(t, "buy", created.Side)
	assert.Equal(t, int64(10), created.Quantity)
	assert.True(t, created.Price.Equal(decimal.RequireFromString("25.5")))
	assert.WithinDuration(t, time.Now(), created.Timestamp, 5*time.Second)

	_, err = client.CreateOrder(ctx, trader.Token, domain.Draft{Symbol: "TSLA", Side: domain.SideSell, Quantity: 1, Price: decimal.NewFromInt(300)})
	require.NoError(t, err)

	orders, err := client.ListOrders(ctx, trader.Token)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, domain.OrderID("1"), orders[0].ID)
	assert.Equal(t, domain.OrderID("2"), orders[1].ID)

	orders, err = client.ListOrders(ctx, admin.Token)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestCreateOrderValidation(t *testing.T) {
	_, _, client := newTestServer(t)
	token := login(t, client, "trader", "trader123").Token

	cases := []struct {
		name  string
		draft domain.Draft
		msg   string
	}{
		{"side", domain.Draft{Symbol: "AAPL", Side: "hold", Quantity: 1, Price: decimal.NewFromInt(1)}, "side must be 'buy' or 'sell'"},
		{"quantity", domain.Draft{Symbol: "AAPL", Side: domain.SideBuy, Quantity: 0, Price: decimal.NewFromInt(1)}, "quantity must be greater than 0"},
		{"price", domain.Draft{Symbol: "AAPL", Side: domain.SideBuy, Quantity: 1, Price: decimal.Zero}, "price must be greater than 0"},
		{"symbol", domain.Draft{Symbol: "ACME", Side: domain.SideBuy, Quantity: 1, Price: decimal.NewFromInt(1)}, "invalid symbol"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := client.CreateOrder(context.Background(), token, tc.draft)
			ve, ok := domain.IsValidation(err)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, http.StatusBadRequest, ve.Status)
			assert.Equal(t, tc.msg, ve.Message)
		})
	}
}

func TestRevokeRejectsToken(t *testing.T) {
	srv, _, client := newTestServer(t)
	ctx := context.Background()
	res := login(t, client, "admin", "admin123")

	_, err := client.ListOrders(ctx, res.Token)
	require.NoError(t, err)

	srv.Revoke(res.Token)
	_, err = client.ListOrders(ctx, res.Token)
	assert.True(t, domain.IsAuthFailure(err), "got %v", err)

	_, err = client.CreateOrder(ctx, res.Token, domain.Draft{Symbol: "AAPL", Side: domain.SideBuy, Quantity: 1, Price: decimal.NewFromInt(1)})
	assert.True(t, domain.IsAuthFailure(err), "got %v", err)
}

func TestStreamRequiresToken(t *testing.T) {
	_, ts, _ := newTestServer(t)

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	if conn != nil {
		conn.Close()
	}
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func dialStream(t *testing.T, ts *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readQuote(t *testing.T, conn *websocket.Conn) domain.Quote {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	q, err := stream.DecodeQuote(data)
	require.NoError(t, err)
	return q
}

func TestStreamSendsInitialPricesThenTicks(t *testing.T) {
	srv, ts, client := newTestServer(t)
	conn := dialStream(t, ts, login(t, client, "trader", "trader123").Token)

	initial := make([]domain.Quote, 0, 5)
	for i := 0; i < 5; i++ {
		initial = append(initial, readQuote(t, conn))
	}
	assert.Equal(t, "AAPL", initial[0].Symbol)
	assert.True(t, initial[0].LastPrice.Equal(decimal.RequireFromString("175.50")))
	for _, q := range initial {
		assert.True(t, q.AbsoluteChange.IsZero())
		assert.True(t, q.PercentChange.IsZero())
	}

	updates := srv.Simulator().Tick()
	require.Len(t, updates, 5)
	for _, want := range updates {
		got := readQuote(t, conn)
		assert.Equal(t, want.Symbol, got.Symbol)
		assert.True(t, want.Price.Equal(got.LastPrice))
		assert.True(t, want.Change.Equal(got.AbsoluteChange))
		assert.True(t, want.ChangePct.Equal(got.PercentChange))
	}
}

func TestRevokeDropsStream(t *testing.T) {
	srv, ts, client := newTestServer(t)
	token := login(t, client, "trader", "trader123").Token
	conn := dialStream(t, ts, token)
	for i := 0; i < 5; i++ {
		readQuote(t, conn)
	}

	srv.Revoke(token)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts), http.Header{"Authorization": {"Bearer " + token}})
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLoginThrottle(t *testing.T) {
	srv, err := New(Config{DBPath: ":memory:", JWTSecret: "test-secret", TickInterval: time.Hour, LoginLimit: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	client := api.NewClient(ts.URL, 2*time.Second)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := client.Login(ctx, "admin", "wrong")
		ve, ok := domain.IsValidation(err)
		require.True(t, ok, "got %v", err)
		assert.Equal(t, http.StatusUnauthorized, ve.Status)
	}

	_, err = client.Login(ctx, "admin", "admin123")
	ve, ok := domain.IsValidation(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, http.StatusTooManyRequests, ve.Status)
	assert.Equal(t, "too many login attempts", ve.Message)

	// 其它用户名不受影响
	login(t, client, "trader", "trader123")
}
