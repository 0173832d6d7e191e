package services

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/tradedash/internal/api"
	"github.com/betbot/tradedash/internal/domain"
	"github.com/betbot/tradedash/internal/events"
	"github.com/betbot/tradedash/internal/gateway"
	"github.com/betbot/tradedash/internal/mockserver"
	"github.com/betbot/tradedash/internal/session"
	"github.com/betbot/tradedash/internal/snapshot"
	"github.com/betbot/tradedash/internal/stream"
)

type e2eEnv struct {
	t      *testing.T
	srv    *mockserver.Server
	c      *Coordinator
	creds  *session.MemoryCredentialStore
	events *eventRecorder
}

type eventRecorder struct {
	ch chan events.Event
}

func (r *eventRecorder) OnEvent(_ context.Context, ev events.Event) error {
	select {
	case r.ch <- ev:
	default:
	}
	return nil
}

func newE2E(t *testing.T) *e2eEnv {
	t.Helper()
	srv, err := mockserver.New(mockserver.Config{DBPath: ":memory:", JWTSecret: "e2e", TickInterval: time.Hour})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Router())

	client := api.NewClient(ts.URL, 2*time.Second)
	env := &e2eEnv{
		t:      t,
		srv:    srv,
		creds:  session.NewMemoryCredentialStore(),
		events: &eventRecorder{ch: make(chan events.Event, 256)},
	}
	hl := events.NewHandlerList()
	hl.Add(env.events)

	env.c = NewCoordinator(CoordinatorConfig{
		StreamURL: "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws",
	}, Deps{
		Sessions:  session.NewStore(env.creds),
		Auth:      client,
		Snapshots: snapshot.NewLoader(client),
		Orders:    gateway.New(client),
		Events:    hl,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go env.c.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-env.c.done
		ts.Close()
		_ = srv.Close()
	})
	return env
}

func (e *e2eEnv) eventually(cond func(View) bool, msg string) View {
	e.t.Helper()
	var last View
	require.Eventually(e.t, func() bool {
		v, err := e.c.View(context.Background())
		if err != nil {
			return false
		}
		last = v
		return cond(v)
	}, 5*time.Second, 10*time.Millisecond, msg)
	return last
}

func (e *e2eEnv) liveAndStreaming() View {
	return e.eventually(func(v View) bool {
		return v.State == StateLive && v.StreamState == stream.StateOpen && len(v.Quotes) == 5
	}, "应进入 Live 且推送连接打开")
}

func quoteOf(v View, symbol string) (domain.Quote, bool) {
	for _, q := range v.Quotes {
		if q.Symbol == symbol {
			return q, true
		}
	}
	return domain.Quote{}, false
}

func TestEndToEndSessionLifecycle(t *testing.T) {
	env := newE2E(t)
	ctx := context.Background()

	err := env.c.Login(ctx, "trader", "wrong")
	ve, ok := domain.IsValidation(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, "Invalid credentials", ve.Message)

	require.NoError(t, env.c.Login(ctx, "trader", "trader123"))
	v := env.liveAndStreaming()
	require.NotNil(t, v.Identity)
	assert.Equal(t, domain.Identity{ID: "2", Username: "trader"}, *v.Identity)
	assert.Empty(t, v.Orders)

	stored, ok, err := env.creds.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	o, err := env.c.SubmitOrder(ctx, domain.Draft{Symbol: "AAPL", Side: domain.SideBuy, Quantity: 10, Price: d("25.50")})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderID("1"), o.ID)
	assert.True(t, o.Total().Equal(d("255")))

	_, err = env.c.SubmitOrder(ctx, domain.Draft{Symbol: "ACME", Side: domain.SideBuy, Quantity: 1, Price: d("1")})
	ve, ok = domain.IsValidation(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, "invalid symbol", ve.Message)

	v = env.eventually(func(v View) bool { return len(v.Orders) == 1 }, "订单应出现在历史中")
	assert.Equal(t, domain.OrderID("1"), v.Orders[0].ID)

	updates := env.srv.Simulator().Tick()
	var tsla mockserver.PriceUpdate
	for _, u := range updates {
		if u.Symbol == "TSLA" {
			tsla = u
		}
	}
	env.eventually(func(v View) bool {
		q, ok := quoteOf(v, "TSLA")
		return ok && q.LastPrice.Equal(tsla.Price) && q.PercentChange.Equal(tsla.ChangePct)
	}, "推送行情应覆盖 TSLA")

	// 服务端作废 token：推送连接断开，下一次下单返回 401 并结束会话
	env.srv.Revoke(stored.Token)
	env.eventually(func(v View) bool { return v.StreamState == stream.StateClosed }, "推送连接应断开")

	_, err = env.c.SubmitOrder(ctx, domain.Draft{Symbol: "AAPL", Side: domain.SideSell, Quantity: 1, Price: d("1")})
	assert.True(t, domain.IsAuthFailure(err), "got %v", err)

	v = env.eventually(func(v View) bool { return v.State == StateLoggedOut }, "应回到 LoggedOut")
	assert.Nil(t, v.Identity)
	assert.Empty(t, v.Quotes)
	assert.Empty(t, v.Orders)
	_, ok, err = env.creds.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, env.c.Login(ctx, "trader", "trader123"))
	v = env.liveAndStreaming()
	require.Len(t, v.Orders, 1, "历史订单来自服务端快照")

	require.NoError(t, env.c.Logout(ctx))
	v = env.eventually(func(v View) bool { return v.State == StateLoggedOut }, "登出后应为 LoggedOut")
	assert.Equal(t, stream.StateAbsent, v.StreamState)

	var ended []events.SessionEndedEvent
	for {
		select {
		case ev := <-env.events.ch:
			if e, ok := ev.(events.SessionEndedEvent); ok {
				ended = append(ended, e)
			}
			continue
		default:
		}
		break
	}
	require.Len(t, ended, 2)
	assert.Equal(t, ReasonUnauthorized, ended[0].Reason)
	assert.Equal(t, ReasonLogout, ended[1].Reason)
}
