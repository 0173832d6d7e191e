package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// RequestIDHeader 每个请求携带的关联 ID
const RequestIDHeader = "X-Request-ID"

type Client struct {
	client *resty.Client
}

// Options 客户端选项
type Options struct {
	Timeout   time.Duration // 为 0 时不设超时
	UserAgent string
}

func NewClient(host string, opts Options) *Client {
	host = strings.TrimSuffix(host, "/")

	// 不做自动重试：请求失败直接上报，由调用方决定保留旧状态
	client := resty.New().
		SetBaseURL(host).
		SetRetryCount(0)
	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = "tradedash"
	}
	client.SetHeader("User-Agent", ua)

	return &Client{client: client}
}

type RequestOptions struct {
	Headers map[string]string
	Data    any
}

// 仅设置本次请求的默认 Header（不要再改 client 级 Header）
func (c *Client) newRequest(ctx context.Context) *resty.Request {
	r := c.client.R()
	if ctx != nil {
		r.SetContext(ctx)
	}
	r.SetHeader("Accept", "application/json")
	r.SetHeader(RequestIDHeader, uuid.NewString())
	return r
}

// DoRequest 执行请求；只在网络层失败时返回 error，非 2xx 由调用方按状态码解释
func (c *Client) DoRequest(ctx context.Context, method, endpoint string, opt *RequestOptions) (*resty.Response, error) {
	rc := c.newRequest(ctx)
	if opt != nil {
		for k, v := range opt.Headers {
			rc.SetHeader(k, v)
		}
		if opt.Data != nil {
			rc.SetHeader("Content-Type", "application/json")
			rc.SetBody(opt.Data)
		}
	}

	switch strings.ToUpper(method) {
	case http.MethodGet:
		return rc.Get(endpoint)
	case http.MethodPost:
		return rc.Post(endpoint)
	case http.MethodDelete:
		return rc.Delete(endpoint)
	case http.MethodPut:
		return rc.Put(endpoint)
	default:
		return nil, fmt.Errorf("unsupported method: %s", method)
	}
}

// ErrorMessage 提取 {"error": "..."} 响应体中的错误信息；不是该格式时返回原始文本
func ErrorMessage(resp *resty.Response) string {
	if resp == nil {
		return ""
	}
	b := resp.Body()
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(b, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(b))
}

// DecodeJSON 解析 2xx 响应体
func DecodeJSON(resp *resty.Response, out any) error {
	if resp == nil {
		return errors.New("nil response")
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return errors.Wrapf(err, "decode %s response (HTTP %d)", resp.Request.URL, resp.StatusCode())
	}
	return nil
}
