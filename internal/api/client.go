// Package api 消费 dashboard 后端的 REST 契约（/login, /prices, /orders）。
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/tradedash/internal/domain"
	sdkhttp "github.com/betbot/tradedash/pkg/sdk/http"
)

var log = logrus.WithField("component", "api")

const (
	pathLogin  = "/login"
	pathPrices = "/prices"
	pathOrders = "/orders"
)

// Client 后端 REST 客户端
type Client struct {
	http *sdkhttp.Client
}

// NewClient 创建客户端；timeout 为 0 表示只依赖 ctx 超时
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		http: sdkhttp.NewClient(baseURL, sdkhttp.Options{Timeout: timeout}),
	}
}

// Login 用户名密码换取 token
//
// 登录失败（4xx）是展示给用户的 ValidationError，不会触发会话销毁：此时还没有会话。
func (c *Client) Login(ctx context.Context, username, password string) (LoginResult, error) {
	const op = "login"
	resp, err := c.http.DoRequest(ctx, http.MethodPost, pathLogin, &sdkhttp.RequestOptions{
		Data: LoginRequest{Username: username, Password: password},
	})
	if err != nil {
		return LoginResult{}, &domain.TransportError{Op: op, Err: err}
	}
	if s := resp.StatusCode(); s >= 400 && s < 500 {
		return LoginResult{}, &domain.ValidationError{Status: s, Message: sdkhttp.ErrorMessage(resp)}
	}
	if err := expectSuccess(op, resp); err != nil {
		return LoginResult{}, err
	}

	var out LoginResult
	if err := sdkhttp.DecodeJSON(resp, &out); err != nil {
		return LoginResult{}, &domain.TransportError{Op: op, Err: err}
	}
	if out.Token == "" {
		return LoginResult{}, &domain.TransportError{Op: op, Err: errors.New("empty token in login response")}
	}
	return out, nil
}

// ListPrices 获取当前价格快照（无需认证）
func (c *Client) ListPrices(ctx context.Context) ([]PriceDTO, error) {
	const op = "list prices"
	resp, err := c.http.DoRequest(ctx, http.MethodGet, pathPrices, nil)
	if err != nil {
		return nil, &domain.TransportError{Op: op, Err: err}
	}
	if err := expectSuccess(op, resp); err != nil {
		return nil, err
	}
	var out []PriceDTO
	if err := sdkhttp.DecodeJSON(resp, &out); err != nil {
		return nil, &domain.TransportError{Op: op, Err: err}
	}
	return out, nil
}

// ListOrders 获取当前用户的订单历史；401 返回 ErrUnauthorized
func (c *Client) ListOrders(ctx context.Context, token string) ([]OrderDTO, error) {
	const op = "list orders"
	resp, err := c.http.DoRequest(ctx, http.MethodGet, pathOrders, &sdkhttp.RequestOptions{
		Headers: bearer(token),
	})
	if err != nil {
		return nil, &domain.TransportError{Op: op, Err: err}
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		return nil, errors.Wrap(domain.ErrUnauthorized, op)
	}
	if err := expectSuccess(op, resp); err != nil {
		return nil, err
	}
	var out []OrderDTO
	if err := sdkhttp.DecodeJSON(resp, &out); err != nil {
		return nil, &domain.TransportError{Op: op, Err: err}
	}
	return out, nil
}

// CreateOrder 提交订单
//
// 200/201 返回服务端回显的订单；401 -> ErrUnauthorized；其它 4xx -> ValidationError；
// 5xx、网络错误、无法解析的响应 -> TransportError。
func (c *Client) CreateOrder(ctx context.Context, token string, draft domain.Draft) (OrderDTO, error) {
	const op = "create order"
	resp, err := c.http.DoRequest(ctx, http.MethodPost, pathOrders, &sdkhttp.RequestOptions{
		Headers: bearer(token),
		Data:    NewCreateOrderRequest(draft),
	})
	if err != nil {
		return OrderDTO{}, &domain.TransportError{Op: op, Err: err}
	}

	switch s := resp.StatusCode(); {
	case s == http.StatusUnauthorized:
		return OrderDTO{}, errors.Wrap(domain.ErrUnauthorized, op)
	case s >= 400 && s < 500:
		msg := sdkhttp.ErrorMessage(resp)
		log.Infof("下单被拒绝: status=%d symbol=%s msg=%s", s, draft.Symbol, msg)
		return OrderDTO{}, &domain.ValidationError{Status: s, Message: msg}
	}
	if err := expectSuccess(op, resp); err != nil {
		return OrderDTO{}, err
	}

	var out OrderDTO
	if err := sdkhttp.DecodeJSON(resp, &out); err != nil {
		return OrderDTO{}, &domain.TransportError{Op: op, Err: err}
	}
	return out, nil
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// expectSuccess 非 2xx 统一视为传输层失败
func expectSuccess(op string, resp *resty.Response) error {
	if resp.IsSuccess() {
		return nil
	}
	return &domain.TransportError{
		Op:  op,
		Err: errors.Errorf("HTTP %d: %s", resp.StatusCode(), truncate(sdkhttp.ErrorMessage(resp), 200)),
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
