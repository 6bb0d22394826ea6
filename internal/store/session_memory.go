package store

import (
	"sync"

	"kitabghar/internal/util"
)

// MemorySessionStore keeps session tokens in-process. Sessions are lost on
// restart, which matches the single-process deployment model.
type MemorySessionStore struct {
	mu   sync.RWMutex
	sess map[string]int // token -> user ID
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sess: make(map[string]int)}
}

func (m *MemorySessionStore) NewSession(userID int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token := util.NewToken()
	m.sess[token] = userID
	return token, nil
}

func (m *MemorySessionStore) GetUserIDByToken(token string) (int, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	uid, ok := m.sess[token]
	return uid, ok, nil
}

func (m *MemorySessionStore) DeleteSession(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sess, token)
	return nil
}
