package session

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is the single authoritative map of live sessions. Its lock guards the
// map only; session state is guarded by each session's own mutex.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Create allocates a session in waiting_for_sender with the given deadline.
func (st *Store) Create(now, expiresAt time.Time) (*Session, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate session key: %w", err)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	id := uuid.New().String()
	for {
		if _, taken := st.sessions[id]; !taken {
			break
		}
		id = uuid.New().String()
	}

	sess := newSession(id, now, expiresAt, key)
	st.sessions[id] = sess
	return sess, nil
}

func (st *Store) Get(id string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	sess, ok := st.sessions[id]
	return sess, ok
}

func (st *Store) Delete(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, id)
}

// Snapshot returns the sessions present at the time of the call.
func (st *Store) Snapshot() []*Session {
	st.mu.RLock()
	defer st.mu.RUnlock()

	out := make([]*Session, 0, len(st.sessions))
	for _, sess := range st.sessions {
		out = append(out, sess)
	}
	return out
}

func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
