// Package session 持有当前会话，并把凭证写入可跨重启的存储。
package session

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/tradedash/internal/domain"
)

var log = logrus.WithField("component", "session")

// Store 会话存储：内存中最多一个会话，并与 CredentialStore 保持一致
//
// 不校验凭证，由服务端决定是否有效。
type Store struct {
	creds CredentialStore
	now   func() time.Time

	mu      sync.RWMutex
	current *domain.Session
}

func NewStore(creds CredentialStore) *Store {
	if creds == nil {
		creds = NewMemoryCredentialStore()
	}
	return &Store{creds: creds, now: time.Now}
}

// Restore 读取一次持久化凭证
//
// 读取失败或记录不完整（只有 token 或只有 user）都当作不存在，并记录日志。
func (s *Store) Restore(ctx context.Context) (*domain.Session, bool) {
	cred, ok, err := s.creds.Load(ctx)
	if err != nil {
		log.WithError(err).Warn("读取已保存的凭证失败，按未登录处理")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	if !cred.complete() {
		log.Warn("已保存的凭证不完整，按未登录处理")
		return nil, false
	}

	sess := &domain.Session{
		Credential: cred.Token,
		Identity:   cred.User,
		CreatedAt:  s.now(),
	}
	s.mu.Lock()
	s.current = sess
	s.mu.Unlock()
	log.Infof("♻️ 恢复会话: user=%s", cred.User.Username)
	return sess, true
}

// Create 持久化并持有新会话，覆盖已有会话
//
// 持久化失败只记录日志：内存中的会话仍然生效，只是重启后无法恢复。
func (s *Store) Create(ctx context.Context, credential string, identity domain.Identity) *domain.Session {
	sess := &domain.Session{
		Credential: credential,
		Identity:   identity,
		CreatedAt:  s.now(),
	}
	if err := s.creds.Save(ctx, StoredCredential{Token: credential, User: identity}); err != nil {
		log.WithError(err).Warn("保存凭证失败，会话仅在本次运行有效")
	}

	s.mu.Lock()
	s.current = sess
	s.mu.Unlock()
	return sess
}

// Destroy 清除内存与持久化的会话；可重复调用
func (s *Store) Destroy(ctx context.Context) {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()

	if err := s.creds.Clear(ctx); err != nil {
		log.WithError(err).Error("清除已保存的凭证失败")
	}
}

// Current 返回当前会话
func (s *Store) Current() (*domain.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.current != nil
}
