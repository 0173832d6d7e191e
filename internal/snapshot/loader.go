// Package snapshot 拉取行情与订单的一次性快照。
package snapshot

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/betbot/tradedash/internal/api"
	"github.com/betbot/tradedash/internal/domain"
)

var log = logrus.WithField("component", "snapshot")

// Source 快照数据来源（api.Client 实现）
type Source interface {
	ListPrices(ctx context.Context) ([]api.PriceDTO, error)
	ListOrders(ctx context.Context, token string) ([]api.OrderDTO, error)
}

// Loader 快照加载器，无状态，可并发调用
type Loader struct {
	src Source
}

func NewLoader(src Source) *Loader {
	return &Loader{src: src}
}

// LoadQuotes 获取全部标的的当前价格
//
// 快照不带涨跌信息，change 字段为零；重复 symbol 以最后一条为准。
// 失败时原样返回错误，由调用方保留旧行情。
func (l *Loader) LoadQuotes(ctx context.Context) (domain.QuoteTable, error) {
	prices, err := l.src.ListPrices(ctx)
	if err != nil {
		return nil, err
	}
	table := make(domain.QuoteTable, len(prices))
	for _, p := range prices {
		q := p.ToQuote()
		if q.Symbol == "" {
			log.Warn("快照中存在空 symbol，已忽略")
			continue
		}
		table.Apply(q)
	}
	log.Debugf("行情快照: %d 个标的", len(table))
	return table, nil
}

// LoadOrders 获取当前会话的订单历史
//
// ErrUnauthorized 原样上抛（认证失败），其余均为 TransportError。
func (l *Loader) LoadOrders(ctx context.Context, sess *domain.Session) (domain.OrderHistory, error) {
	if sess == nil {
		return nil, domain.ErrNoSession
	}
	dtos, err := l.src.ListOrders(ctx, sess.Credential)
	if err != nil {
		if domain.IsAuthFailure(err) || domain.IsTransport(err) {
			return nil, err
		}
		return nil, &domain.TransportError{Op: "load orders", Err: err}
	}
	history := make(domain.OrderHistory, 0, len(dtos))
	for _, d := range dtos {
		history = append(history, d.ToOrder())
	}
	log.Debugf("订单快照: %d 条", len(history))
	return history, nil
}
