package session

import "time"

// Policy turns the configured durations into deadlines and liveness decisions.
// All methods are pure; callers supply the current time.
type Policy struct {
	SessionTimeout time.Duration
	Liveness       time.Duration
}

func (p Policy) Deadline(now time.Time) time.Time {
	return now.Add(p.SessionTimeout)
}

func (p Policy) Expired(expiresAt, now time.Time) bool {
	return now.After(expiresAt)
}

// Stale reports whether a client last seen at last has been silent longer than
// the liveness threshold. The zero time means the client was never seen.
func (p Policy) Stale(last, now time.Time) bool {
	if last.IsZero() {
		return true
	}
	return now.Sub(last) > p.Liveness
}

func (p Policy) Remaining(expiresAt, now time.Time) time.Duration {
	if d := expiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}
