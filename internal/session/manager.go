package session

import (
	"time"

	"github.com/rs/zerolog/log"
)

// Reclaimer removes the backing files of an evicted session. It must treat
// files that are already gone as success.
type Reclaimer interface {
	Reclaim(sessionID string, paths []string)
}

type EvictReason string

const (
	EvictExpired      EvictReason = "expired"
	EvictReceiverGone EvictReason = "receiver_gone"
	EvictSwept        EvictReason = "swept"
	EvictShutdown     EvictReason = "shutdown"
)

type Options struct {
	Policy    Policy
	Reclaimer Reclaimer
	Now       func() time.Time
}

// Manager applies the session state machine to sessions held in a Store.
//
// Every operation looks the session up, takes its mutex and checks the
// deadline before anything else, so an expired session behaves as absent even
// when the sweeper has not reached it yet. Eviction marks the session deleted,
// reclaims its files and only then drops it from the Store.
type Manager struct {
	store   *Store
	policy  Policy
	reclaim Reclaimer
	now     func() time.Time
	onEvict func(id string, reason EvictReason)
}

func NewManager(store *Store, opts Options) *Manager {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		store:   store,
		policy:  opts.Policy,
		reclaim: opts.Reclaimer,
		now:     now,
	}
}

// OnEvict registers a callback fired after a session is removed. It runs while
// the evicted session's lock is held and must not call back into the Manager
// for that session.
func (m *Manager) OnEvict(fn func(id string, reason EvictReason)) {
	m.onEvict = fn
}

func (m *Manager) Store() *Store {
	return m.store
}

func (m *Manager) Policy() Policy {
	return m.policy
}

func (m *Manager) Now() time.Time {
	return m.now()
}

func (m *Manager) Create() (Snapshot, error) {
	now := m.now()
	sess, err := m.store.Create(now, m.policy.Deadline(now))
	if err != nil {
		return Snapshot{}, err
	}

	log.Info().
		Str("session_id", sess.ID).
		Time("expires_at", sess.expiresAt).
		Msg("Session created")

	return sess.Snapshot(), nil
}

// Lookup returns the current state of a live session.
func (m *Manager) Lookup(id string) (Snapshot, error) {
	sess, err := m.acquire(id, m.now())
	if err != nil {
		return Snapshot{}, err
	}
	sess.mu.Unlock()
	return sess.Snapshot(), nil
}

// Connect attaches the sender. It succeeds from waiting_for_sender, from
// sender_disconnected, and whenever the recorded sender has gone stale; a live
// sender makes it fail with ErrConflict and leaves the session untouched.
func (m *Manager) Connect(id string) error {
	now := m.now()
	sess, err := m.acquire(id, now)
	if err != nil {
		return err
	}
	defer sess.mu.Unlock()

	switch sess.status {
	case StatusWaitingForSender, StatusSenderDisconnected:
	default:
		if !m.policy.Stale(sess.senderLastSeen, now) {
			log.Warn().Str("session_id", id).Msg("Rejected second sender")
			return ErrConflict
		}
	}

	sess.status = StatusConnected
	sess.senderLastSeen = now
	sess.expiresAt = m.policy.Deadline(now)
	m.observe(sess, RoleSender, now)

	log.Info().
		Str("session_id", id).
		Str("status", string(sess.status)).
		Msg("Sender connected")
	return nil
}

type PollResult struct {
	Status           Status
	PartnerConnected bool
	Remaining        time.Duration
	NewImageIDs      []string
}

// Poll records a heartbeat from role and reports the session state. A
// receiver poll drains the pending image queue.
//
// Each side detects the other's silence on its own poll, so a disconnect is
// noticed at most one poll interval plus the liveness threshold after it
// happens. A side marked disconnected returns to connected only through its
// own poll or reconnect.
func (m *Manager) Poll(id string, role Role) (*PollResult, error) {
	now := m.now()
	sess, err := m.acquire(id, now)
	if err != nil {
		return nil, err
	}
	defer sess.mu.Unlock()

	sess.touch(role, now)
	if sess.status == disconnectedStatus(role) {
		sess.status = StatusConnected
		log.Info().Str("session_id", id).Str("role", string(role)).Msg("Client is back")
	}
	m.observe(sess, role, now)

	if sess.status == StatusConnected {
		sess.expiresAt = m.policy.Deadline(now)
	}

	res := &PollResult{
		Status:           sess.status,
		PartnerConnected: sess.status != StatusWaitingForSender && !m.policy.Stale(sess.lastSeen(other(role)), now),
		Remaining:        m.policy.Remaining(sess.expiresAt, now),
		NewImageIDs:      []string{},
	}
	if role == RoleReceiver {
		res.NewImageIDs = sess.drainPending()
	}
	return res, nil
}

// BeginUpload checks that id may accept an image right now and returns the
// session so the caller can seal the blob with its key. The blob itself is
// written without holding the session lock; Commit publishes it.
func (m *Manager) BeginUpload(id string) (*Session, error) {
	now := m.now()
	sess, err := m.acquire(id, now)
	if err != nil {
		return nil, err
	}
	defer sess.mu.Unlock()

	switch sess.status {
	case StatusConnected:
		if m.policy.Stale(sess.receiverLastSeen, now) {
			m.evictLocked(sess, EvictReceiverGone)
			return nil, ErrReceiverGone
		}
	case StatusReceiverDisconnected:
		m.evictLocked(sess, EvictReceiverGone)
		return nil, ErrReceiverGone
	default:
		return nil, ErrInvalidState
	}

	sess.senderLastSeen = now
	sess.expiresAt = m.policy.Deadline(now)
	return sess, nil
}

// Commit queues an uploaded image for the receiver. On error the caller still
// owns img.Path and must remove it.
func (m *Manager) Commit(id string, img *Image) error {
	now := m.now()
	sess, err := m.acquire(id, now)
	if err != nil {
		return err
	}
	defer sess.mu.Unlock()

	sess.images[img.ID] = img
	sess.pending = append(sess.pending, img.ID)
	sess.expiresAt = m.policy.Deadline(now)
	return nil
}

// Claim hands an image over to the caller exactly once, together with the key
// that sealed it. After a successful Claim the caller owns img.Path.
func (m *Manager) Claim(id, imageID string) (*Image, []byte, error) {
	sess, err := m.acquire(id, m.now())
	if err != nil {
		return nil, nil, err
	}
	defer sess.mu.Unlock()

	img, ok := sess.images[imageID]
	if !ok {
		return nil, nil, ErrNotFound
	}
	delete(sess.images, imageID)
	for i, pid := range sess.pending {
		if pid == imageID {
			sess.pending = append(sess.pending[:i], sess.pending[i+1:]...)
			break
		}
	}
	return img, sess.key, nil
}

// Restore gives a claimed image back to its session after a failed read. It
// reports false when the session is gone, in which case the caller still owns
// the file.
func (m *Manager) Restore(id string, img *Image) bool {
	sess, err := m.acquire(id, m.now())
	if err != nil {
		return false
	}
	defer sess.mu.Unlock()

	sess.images[img.ID] = img
	return true
}

// Sweep evicts every session whose deadline has passed and returns how many
// were removed.
func (m *Manager) Sweep() int {
	now := m.now()
	evicted := 0
	for _, sess := range m.store.Snapshot() {
		sess.mu.Lock()
		if !sess.deleted && m.policy.Expired(sess.expiresAt, now) {
			m.evictLocked(sess, EvictSwept)
			evicted++
		}
		sess.mu.Unlock()
	}
	return evicted
}

// EvictAll removes every session regardless of deadline.
func (m *Manager) EvictAll() int {
	evicted := 0
	for _, sess := range m.store.Snapshot() {
		sess.mu.Lock()
		if !sess.deleted {
			m.evictLocked(sess, EvictShutdown)
			evicted++
		}
		sess.mu.Unlock()
	}
	return evicted
}

// acquire returns the live session with its mutex held.
func (m *Manager) acquire(id string, now time.Time) (*Session, error) {
	sess, ok := m.store.Get(id)
	if !ok {
		return nil, ErrNotFound
	}

	sess.mu.Lock()
	if sess.deleted {
		sess.mu.Unlock()
		return nil, ErrNotFound
	}
	if m.policy.Expired(sess.expiresAt, now) {
		m.evictLocked(sess, EvictExpired)
		sess.mu.Unlock()
		return nil, ErrNotFound
	}
	return sess, nil
}

// observe applies partner staleness as seen by observer. Only a connected
// session changes state here.
func (m *Manager) observe(sess *Session, observer Role, now time.Time) {
	if sess.status != StatusConnected {
		return
	}
	partner := other(observer)
	if m.policy.Stale(sess.lastSeen(partner), now) {
		sess.status = disconnectedStatus(partner)
		log.Info().
			Str("session_id", sess.ID).
			Str("role", string(partner)).
			Msg("Client went silent")
	}
}

func (m *Manager) evictLocked(sess *Session, reason EvictReason) {
	sess.deleted = true

	images := sess.takeImages()
	paths := make([]string, 0, len(images))
	for _, img := range images {
		paths = append(paths, img.Path)
	}
	if m.reclaim != nil {
		m.reclaim.Reclaim(sess.ID, paths)
	}
	m.store.Delete(sess.ID)

	log.Info().
		Str("session_id", sess.ID).
		Str("reason", string(reason)).
		Int("images", len(paths)).
		Msg("🗑 Session evicted")

	if m.onEvict != nil {
		m.onEvict(sess.ID, reason)
	}
}

func disconnectedStatus(r Role) Status {
	if r == RoleSender {
		return StatusSenderDisconnected
	}
	return StatusReceiverDisconnected
}
