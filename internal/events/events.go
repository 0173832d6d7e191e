package events

import (
	"time"

	"github.com/betbot/tradedash/internal/domain"
)

// Event 协调器发布的事件
type Event interface {
	Name() string
}

// SessionStartedEvent 会话开始（登录或启动时恢复）
type SessionStartedEvent struct {
	Identity  domain.Identity
	Restored  bool // 从持久化凭证恢复
	Epoch     uint64
	Timestamp time.Time
}

// SessionEndedEvent 会话结束
type SessionEndedEvent struct {
	Identity  domain.Identity
	Reason    string // "logout", "unauthorized", "replaced"
	Epoch     uint64
	Timestamp time.Time
}

// OrderConfirmedEvent 订单被服务端确认
type OrderConfirmedEvent struct {
	Order     domain.Order
	Timestamp time.Time
}

// OrderRejectedEvent 订单被拒绝或提交失败
type OrderRejectedEvent struct {
	Draft     domain.Draft
	Reason    string
	Timestamp time.Time
}

// StreamStateChangedEvent 推送连接状态变化
type StreamStateChangedEvent struct {
	Epoch     uint64
	State     string
	Err       error
	Timestamp time.Time
}

func (SessionStartedEvent) Name() string     { return "session_started" }
func (SessionEndedEvent) Name() string       { return "session_ended" }
func (OrderConfirmedEvent) Name() string     { return "order_confirmed" }
func (OrderRejectedEvent) Name() string      { return "order_rejected" }
func (StreamStateChangedEvent) Name() string { return "stream_state_changed" }
