package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrUnauthorized 服务端拒绝当前凭证（AuthFailure）
//
// 无论由哪个组件报告，协调器都必须销毁会话。
var ErrUnauthorized = errors.New("credential rejected by server")

// ErrNoSession 没有有效会话时提交订单
var ErrNoSession = errors.New("no active session")

// IsAuthFailure 判断错误链中是否包含 ErrUnauthorized
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// ValidationError 请求格式正确但被服务端以业务理由拒绝，需要展示给用户
type ValidationError struct {
	Status  int
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request rejected (HTTP %d)", e.Status)
	}
	return e.Message
}

// IsValidation 判断是否为 ValidationError，并返回它
func IsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// TransportError 网络故障、5xx 或无法解析的响应；调用方保留旧状态，不终止会话
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport 判断是否为 TransportError
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// DecodeError 单条推送消息无法解析；只记录日志，不向上传播
type DecodeError struct {
	Raw string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode stream message: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
