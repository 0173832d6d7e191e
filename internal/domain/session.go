package domain

import "time"

// Identity 登录用户身份
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"` // 展示名
}

// Session 当前有效会话（凭证 + 身份）
//
// Epoch 由协调器在创建会话时分配，用于丢弃会话销毁后才返回的异步结果；不持久化。
type Session struct {
	Credential string
	Identity   Identity
	Epoch      uint64
	CreatedAt  time.Time
}
