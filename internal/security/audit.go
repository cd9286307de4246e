package security

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const maxAuditLogsPerMinute = 600

// AuditLogger records security relevant events as structured log lines with
// a per-minute cap so a flood cannot drown the log.
type AuditLogger struct {
	mu          sync.Mutex
	logger      zerolog.Logger
	logCount    int
	windowStart time.Time
	now         func() time.Time
}

func NewAuditLogger(logger zerolog.Logger) *AuditLogger {
	return &AuditLogger{
		logger:      logger.With().Str("component", "audit").Logger(),
		windowStart: time.Now(),
		now:         time.Now,
	}
}

// DefaultAuditLogger writes through the global logger.
func DefaultAuditLogger() *AuditLogger {
	return NewAuditLogger(log.Logger)
}

func (al *AuditLogger) log(level zerolog.Level, eventType, ip, sessionID, details string) {
	al.mu.Lock()
	now := al.now()
	if now.Sub(al.windowStart) > time.Minute {
		al.windowStart = now
		al.logCount = 0
	}
	if al.logCount >= maxAuditLogsPerMinute {
		al.mu.Unlock()
		return
	}
	al.logCount++
	al.mu.Unlock()

	ev := al.logger.WithLevel(level).
		Str("event_type", eventType).
		Str("ip", ip)
	if sessionID != "" {
		ev = ev.Str("session_id", sessionID)
	}
	ev.Msg(details)
}

func (al *AuditLogger) LogSessionCreated(ip, sessionID string) {
	al.log(zerolog.InfoLevel, "session_created", ip, sessionID, "Session created")
}

func (al *AuditLogger) LogSenderRejected(ip, sessionID string) {
	al.log(zerolog.WarnLevel, "sender_rejected", ip, sessionID, "Second sender rejected")
}

func (al *AuditLogger) LogRateLimit(ip string) {
	al.log(zerolog.WarnLevel, "rate_limit", ip, "", "Rate limit exceeded")
}

func (al *AuditLogger) LogUploadLimit(ip, sessionID string) {
	al.log(zerolog.WarnLevel, "upload_limit", ip, sessionID, "Concurrent upload limit exceeded")
}

func (al *AuditLogger) LogProbe(ip string, misses int) {
	al.log(zerolog.ErrorLevel, "session_probe", ip, "", fmt.Sprintf("Repeated unknown session lookups: %d", misses))
}

func (al *AuditLogger) LogInvalidRequest(ip, sessionID, path, reason string) {
	al.log(zerolog.WarnLevel, "invalid_request", ip, sessionID, fmt.Sprintf("Invalid request to %s: %s", path, reason))
}
