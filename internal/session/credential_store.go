package session

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"

	"github.com/betbot/tradedash/internal/domain"
	"github.com/betbot/tradedash/pkg/persistence"
	"github.com/betbot/tradedash/pkg/secretstore"
)

// 持久化记录的两个键
const (
	keyToken = "token"
	keyUser  = "user"
)

// StoredCredential 持久化的凭证记录
type StoredCredential struct {
	Token string          `json:"token"`
	User  domain.Identity `json:"user"`
}

// complete 两个键都存在才算有效记录
func (c StoredCredential) complete() bool {
	return c.Token != "" && c.User.Username != ""
}

// CredentialStore 跨进程重启保存凭证的存储
type CredentialStore interface {
	// Load 返回 (记录, 是否存在, 错误)
	Load(ctx context.Context) (StoredCredential, bool, error)
	Save(ctx context.Context, cred StoredCredential) error
	// Clear 删除记录；不存在时也返回 nil
	Clear(ctx context.Context) error
}

// MemoryCredentialStore 仅在内存中保存凭证
type MemoryCredentialStore struct {
	mu    sync.Mutex
	cred  StoredCredential
	saved bool
}

func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{}
}

func (m *MemoryCredentialStore) Load(ctx context.Context) (StoredCredential, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cred, m.saved, nil
}

func (m *MemoryCredentialStore) Save(ctx context.Context, cred StoredCredential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cred = cred
	m.saved = true
	return nil
}

func (m *MemoryCredentialStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cred = StoredCredential{}
	m.saved = false
	return nil
}

// SecretCredentialStore 基于 Badger 的凭证存储（可加密落盘）
//
// token 和 user 分两个键保存，user 以 JSON 编码。
type SecretCredentialStore struct {
	store *secretstore.Store
}

func NewSecretCredentialStore(store *secretstore.Store) *SecretCredentialStore {
	return &SecretCredentialStore{store: store}
}

func (s *SecretCredentialStore) Load(ctx context.Context) (StoredCredential, bool, error) {
	token, hasToken, err := s.store.GetString(keyToken)
	if err != nil {
		return StoredCredential{}, false, errors.Wrap(err, "read token")
	}
	rawUser, hasUser, err := s.store.GetString(keyUser)
	if err != nil {
		return StoredCredential{}, false, errors.Wrap(err, "read user")
	}
	if !hasToken && !hasUser {
		return StoredCredential{}, false, nil
	}

	cred := StoredCredential{Token: token}
	if hasUser {
		if err := json.Unmarshal([]byte(rawUser), &cred.User); err != nil {
			return StoredCredential{}, false, errors.Wrap(err, "decode user")
		}
	}
	return cred, true, nil
}

func (s *SecretCredentialStore) Save(ctx context.Context, cred StoredCredential) error {
	user, err := json.Marshal(cred.User)
	if err != nil {
		return errors.Wrap(err, "encode user")
	}
	return s.store.SetStrings(map[string]string{
		keyToken: cred.Token,
		keyUser:  string(user),
	})
}

func (s *SecretCredentialStore) Clear(ctx context.Context) error {
	return s.store.Delete(keyToken, keyUser)
}

// FileCredentialStore 基于 JSON 文件的凭证存储
type FileCredentialStore struct {
	store persistence.Store
}

func NewFileCredentialStore(svc persistence.Service) *FileCredentialStore {
	return &FileCredentialStore{store: svc.NewStore("tradedash", "session", "credential")}
}

func (f *FileCredentialStore) Load(ctx context.Context) (StoredCredential, bool, error) {
	var cred StoredCredential
	if err := f.store.Load(&cred); err != nil {
		if errors.Is(err, persistence.ErrNotExists) {
			return StoredCredential{}, false, nil
		}
		return StoredCredential{}, false, err
	}
	return cred, true, nil
}

func (f *FileCredentialStore) Save(ctx context.Context, cred StoredCredential) error {
	return f.store.Save(cred)
}

func (f *FileCredentialStore) Clear(ctx context.Context) error {
	return f.store.Delete()
}
