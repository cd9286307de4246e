package session

import (
	"fmt"
	"sync"
	"time"
)

type Status string

const (
	StatusWaitingForSender     Status = "waiting_for_sender"
	StatusConnected            Status = "connected"
	StatusSenderDisconnected   Status = "sender_disconnected"
	StatusReceiverDisconnected Status = "receiver_disconnected"
)

type Role string

const (
	RoleReceiver Role = "receiver"
	RoleSender   Role = "sender"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleReceiver, RoleSender:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Image is one uploaded blob waiting for delivery. Path is owned by the
// session until the image is claimed or the session is evicted.
type Image struct {
	ID          string
	Name        string
	ContentType string
	Path        string
	Size        int64
	UploadedAt  time.Time
}

type Session struct {
	ID        string
	CreatedAt time.Time

	mu               sync.Mutex
	status           Status
	receiverLastSeen time.Time
	senderLastSeen   time.Time
	expiresAt        time.Time
	images           map[string]*Image
	pending          []string
	key              []byte
	deleted          bool
}

func newSession(id string, now, expiresAt time.Time, key []byte) *Session {
	return &Session{
		ID:               id,
		CreatedAt:        now,
		status:           StatusWaitingForSender,
		receiverLastSeen: now,
		expiresAt:        expiresAt,
		images:           make(map[string]*Image),
		key:              key,
	}
}

// Key returns the per-session key used to seal image files at rest.
func (s *Session) Key() []byte {
	return s.key
}

// Snapshot is a consistent copy of a session's mutable state.
type Snapshot struct {
	ID               string
	Status           Status
	ReceiverLastSeen time.Time
	SenderLastSeen   time.Time
	CreatedAt        time.Time
	ExpiresAt        time.Time
	Images           int
	Pending          int
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		ID:               s.ID,
		Status:           s.status,
		ReceiverLastSeen: s.receiverLastSeen,
		SenderLastSeen:   s.senderLastSeen,
		CreatedAt:        s.CreatedAt,
		ExpiresAt:        s.expiresAt,
		Images:           len(s.images),
		Pending:          len(s.pending),
	}
}

func (s *Session) lastSeen(r Role) time.Time {
	if r == RoleSender {
		return s.senderLastSeen
	}
	return s.receiverLastSeen
}

func (s *Session) touch(r Role, now time.Time) {
	if r == RoleSender {
		s.senderLastSeen = now
		return
	}
	s.receiverLastSeen = now
}

func (s *Session) drainPending() []string {
	ids := s.pending
	s.pending = nil
	if ids == nil {
		return []string{}
	}
	return ids
}

// takeImages empties the image map and the pending queue, returning what was held.
func (s *Session) takeImages() []*Image {
	out := make([]*Image, 0, len(s.images))
	for _, img := range s.images {
		out = append(out, img)
	}
	s.images = make(map[string]*Image)
	s.pending = nil
	return out
}

func other(r Role) Role {
	if r == RoleSender {
		return RoleReceiver
	}
	return RoleSender
}
