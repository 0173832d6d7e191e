package services

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/betbot/tradedash/internal/api"
	"github.com/betbot/tradedash/internal/domain"
)

var ioExecutorLog = logrus.WithField("component", "io_executor")

// Authenticator 登录接口（api.Client 实现）
type Authenticator interface {
	Login(ctx context.Context, username, password string) (api.LoginResult, error)
}

// SnapshotLoader 快照加载接口（snapshot.Loader 实现）
type SnapshotLoader interface {
	LoadQuotes(ctx context.Context) (domain.QuoteTable, error)
	LoadOrders(ctx context.Context, sess *domain.Session) (domain.OrderHistory, error)
}

// OrderSubmitter 下单接口（gateway.Gateway 实现）
type OrderSubmitter interface {
	Submit(ctx context.Context, sess *domain.Session, draft domain.Draft) (domain.Order, error)
}

// IOExecutor IO 操作执行器（异步执行，不阻塞协调器主循环）
//
// 每个操作在独立 goroutine 中执行，完成后调用 callback；callback 负责把结果作为命令送回主循环。
type IOExecutor struct {
	auth      Authenticator
	snapshots SnapshotLoader
	orders    OrderSubmitter
}

// NewIOExecutor 创建 IO 执行器
func NewIOExecutor(auth Authenticator, snapshots SnapshotLoader, orders OrderSubmitter) *IOExecutor {
	return &IOExecutor{
		auth:      auth,
		snapshots: snapshots,
		orders:    orders,
	}
}

// LoginAsync 异步登录
func (e *IOExecutor) LoginAsync(ctx context.Context, username, password string, callback func(api.LoginResult, error)) {
	go func() {
		res, err := e.auth.Login(ctx, username, password)
		if err != nil {
			ioExecutorLog.Warnf("登录失败: user=%s err=%v", username, err)
		}
		callback(res, err)
	}()
}

// LoadQuotesAsync 异步加载行情快照
func (e *IOExecutor) LoadQuotesAsync(ctx context.Context, callback func(domain.QuoteTable, error)) {
	go func() {
		table, err := e.snapshots.LoadQuotes(ctx)
		if err != nil {
			ioExecutorLog.Warnf("加载行情快照失败: %v", err)
		}
		callback(table, err)
	}()
}

// LoadOrdersAsync 异步加载订单历史
func (e *IOExecutor) LoadOrdersAsync(ctx context.Context, sess *domain.Session, callback func(domain.OrderHistory, error)) {
	go func() {
		history, err := e.snapshots.LoadOrders(ctx, sess)
		if err != nil {
			ioExecutorLog.Warnf("加载订单历史失败: %v", err)
		}
		callback(history, err)
	}()
}

// SubmitOrderAsync 异步下单
func (e *IOExecutor) SubmitOrderAsync(ctx context.Context, sess *domain.Session, draft domain.Draft, callback func(domain.Order, error)) {
	go func() {
		order, err := e.orders.Submit(ctx, sess, draft)
		if err != nil {
			ioExecutorLog.Warnf("❌ 下单失败: %s %s qty=%d err=%v", draft.Side, draft.Symbol, draft.Quantity, err)
		}
		callback(order, err)
	}()
}
