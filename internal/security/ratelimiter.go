package security

import (
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

// ConnectionLimiter caps concurrent in-flight work per client IP.
type ConnectionLimiter struct {
	mu          sync.RWMutex
	connections map[string]int
	maxConn     int
}

func NewConnectionLimiter(maxConn int) *ConnectionLimiter {
	return &ConnectionLimiter{
		connections: make(map[string]int),
		maxConn:     maxConn,
	}
}

func (cl *ConnectionLimiter) TryConnect(ip string) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.maxConn > 0 && cl.connections[ip] >= cl.maxConn {
		return false
	}
	cl.connections[ip]++
	return true
}

func (cl *ConnectionLimiter) Disconnect(ip string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.connections[ip] > 0 {
		cl.connections[ip]--
		if cl.connections[ip] == 0 {
			delete(cl.connections, ip)
		}
	}
}

func (cl *ConnectionLimiter) Active(ip string) int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return cl.connections[ip]
}

var (
	trustedProxies []*net.IPNet
	proxyOnce      sync.Once
)

func initTrustedProxies() {
	proxyOnce.Do(func() {
		defaultCIDRs := []string{"127.0.0.0/8", "::1/128", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"}
		if env := os.Getenv("QRELAY_TRUSTED_PROXIES"); env != "" {
			defaultCIDRs = strings.Split(env, ",")
		}
		for _, cidr := range defaultCIDRs {
			cidr = strings.TrimSpace(cidr)
			_, network, err := net.ParseCIDR(cidr)
			if err == nil {
				trustedProxies = append(trustedProxies, network)
			}
		}
	})
}

func isTrustedProxy(ip string) bool {
	initTrustedProxies()
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, network := range trustedProxies {
		if network.Contains(parsed) {
			return true
		}
	}
	return false
}

// GetClientIP extracts client IP, only trusting proxy headers from trusted sources.
func GetClientIP(r *http.Request) string {
	directIP, _, _ := net.SplitHostPort(r.RemoteAddr)
	if directIP == "" {
		directIP = r.RemoteAddr
	}

	if isTrustedProxy(directIP) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			clientIP := strings.TrimSpace(strings.Split(xff, ",")[0])
			if net.ParseIP(clientIP) != nil {
				return clientIP
			}
		}
		if xri := r.Header.Get("X-Real-Ip"); xri != "" {
			xri = strings.TrimSpace(xri)
			if net.ParseIP(xri) != nil {
				return xri
			}
		}
	}

	return directIP
}

// ProbeGuard blocks clients that keep asking for session ids that do not
// exist. Session ids are the only capability in the protocol, so repeated
// misses from one IP look like enumeration.
type ProbeGuard struct {
	mu            sync.Mutex
	attempts      map[string]*ipAttempts
	maxAttempts   int
	blockDuration time.Duration
	now           func() time.Time
	stop          chan struct{}
	stopOnce      sync.Once
}

type ipAttempts struct {
	count     int
	blockedAt *time.Time
}

func NewProbeGuard(maxAttempts int, blockDuration time.Duration) *ProbeGuard {
	pg := &ProbeGuard{
		attempts:      make(map[string]*ipAttempts),
		maxAttempts:   maxAttempts,
		blockDuration: blockDuration,
		now:           time.Now,
		stop:          make(chan struct{}),
	}
	go pg.cleanupLoop()
	return pg
}

// Check reports whether ip may proceed.
func (pg *ProbeGuard) Check(ip string) bool {
	if pg.maxAttempts <= 0 {
		return true
	}

	pg.mu.Lock()
	defer pg.mu.Unlock()

	attempts, exists := pg.attempts[ip]
	if !exists {
		return true
	}

	if attempts.blockedAt != nil {
		if pg.now().Sub(*attempts.blockedAt) < pg.blockDuration {
			return false
		}
		attempts.count = 0
		attempts.blockedAt = nil
	}

	return attempts.count < pg.maxAttempts
}

// RecordMiss counts a lookup of an unknown session and returns the running
// count for ip.
func (pg *ProbeGuard) RecordMiss(ip string) int {
	pg.mu.Lock()
	defer pg.mu.Unlock()

	attempts, exists := pg.attempts[ip]
	if !exists {
		attempts = &ipAttempts{}
		pg.attempts[ip] = attempts
	}

	attempts.count++
	if attempts.count >= pg.maxAttempts && attempts.blockedAt == nil {
		now := pg.now()
		attempts.blockedAt = &now
	}
	return attempts.count
}

func (pg *ProbeGuard) RecordHit(ip string) {
	pg.mu.Lock()
	defer pg.mu.Unlock()
	delete(pg.attempts, ip)
}

func (pg *ProbeGuard) Close() {
	pg.stopOnce.Do(func() { close(pg.stop) })
}

func (pg *ProbeGuard) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-pg.stop:
			return
		case <-ticker.C:
			pg.prune()
		}
	}
}

func (pg *ProbeGuard) prune() {
	pg.mu.Lock()
	defer pg.mu.Unlock()
	now := pg.now()
	for ip, attempts := range pg.attempts {
		if attempts.blockedAt != nil && now.Sub(*attempts.blockedAt) > pg.blockDuration {
			delete(pg.attempts, ip)
		}
	}
}
