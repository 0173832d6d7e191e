// Package gateway 把订单草稿提交给后端并返回服务端确认的订单。
package gateway

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/betbot/tradedash/internal/api"
	"github.com/betbot/tradedash/internal/domain"
)

var log = logrus.WithField("component", "gateway")

// Submitter 下单接口（api.Client 实现）
type Submitter interface {
	CreateOrder(ctx context.Context, token string, draft domain.Draft) (api.OrderDTO, error)
}

// Gateway 订单网关
//
// 不重试，不重复校验草稿，不做乐观插入：只有服务端确认后才返回订单。
type Gateway struct {
	api Submitter
}

func New(api Submitter) *Gateway {
	return &Gateway{api: api}
}

// Submit 提交草稿
//
// 返回值恰好是以下之一：确认的订单、*ValidationError、ErrUnauthorized、*TransportError。
func (g *Gateway) Submit(ctx context.Context, sess *domain.Session, draft domain.Draft) (domain.Order, error) {
	if sess == nil {
		return domain.Order{}, domain.ErrNoSession
	}

	dto, err := g.api.CreateOrder(ctx, sess.Credential, draft)
	if err != nil {
		if _, ok := domain.IsValidation(err); ok || domain.IsAuthFailure(err) || domain.IsTransport(err) {
			return domain.Order{}, err
		}
		return domain.Order{}, &domain.TransportError{Op: "submit order", Err: err}
	}

	order := dto.ToOrder()
	log.Infof("✅ 订单已确认: id=%s %s %s qty=%d @ %s", order.ID, order.Side, order.Symbol, order.Quantity, order.Price)
	return order, nil
}
