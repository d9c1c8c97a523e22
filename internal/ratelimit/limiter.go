// Package ratelimit provides burst limiting for booking writes.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Clock interface for testing time-dependent behavior.
type Clock interface {
	Now() time.Time
}

// realClock implements Clock using the system time.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Config holds rate limit configuration.
type Config struct {
	Window       time.Duration // Sliding window length (default: 1m)
	MaxPerMember int           // Max booking writes per member per window (default: 30)
	MaxPerIP     int           // Max booking writes per IP per window (default: 60)
	TrustProxy   bool          // Honor X-Forwarded-For / X-Real-IP
	Clock        Clock         // Clock for testing (nil uses real time)
}

// DefaultConfig returns production-ready defaults. Generous enough for a
// front desk working a queue, tight enough to stop a runaway client.
func DefaultConfig() *Config {
	return &Config{
		Window:       time.Minute,
		MaxPerMember: 30,
		MaxPerIP:     60,
	}
}

// LimitResult contains the result of a rate limit check.
type LimitResult struct {
	Allowed    bool
	RetryAfter time.Duration
	Reason     string // For logging
}

// entry tracks request counts and timestamps.
type entry struct {
	count   int
	firstAt time.Time // First request in window
	lastAt  time.Time // Most recent request
}

// Limiter implements per-member and per-IP burst limiting for booking
// writes.
type Limiter struct {
	config *Config
	clock  Clock
	mu     sync.RWMutex
	// Keyed by hash of member id or IP
	byMember map[string]*entry
	byIP     map[string]*entry

	// Cleanup goroutine management
	cleanupCtx    context.Context
	cleanupCancel context.CancelFunc
	cleanupOnce   sync.Once
	cleanupWg     sync.WaitGroup
}

// New creates a new rate limiter with the given config.
func New(cfg *Config) *Limiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = realClock{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Limiter{
		config:        cfg,
		clock:         clock,
		byMember:      make(map[string]*entry),
		byIP:          make(map[string]*entry),
		cleanupCtx:    ctx,
		cleanupCancel: cancel,
	}
}

// Close stops the cleanup goroutine and releases resources.
func (l *Limiter) Close() {
	l.cleanupCancel()
	l.cleanupWg.Wait()
}

// Check reports whether a booking write from this member and IP is
// allowed. Does NOT record the attempt; call Record once the request is
// accepted for processing.
func (l *Limiter) Check(memberID int64, ip string) LimitResult {
	l.startCleanup()
	now := l.clock.Now()
	memberKey := l.hashKey("member:", strconv.FormatInt(memberID, 10))
	ipKey := l.hashKey("ip:", ip)

	l.mu.RLock()
	defer l.mu.RUnlock()

	if e := l.byMember[memberKey]; e != nil {
		if now.Sub(e.firstAt) < l.config.Window && e.count >= l.config.MaxPerMember {
			return LimitResult{
				Allowed:    false,
				RetryAfter: l.config.Window - now.Sub(e.firstAt),
				Reason:     "member_limit",
			}
		}
	}

	if e := l.byIP[ipKey]; e != nil {
		if now.Sub(e.firstAt) < l.config.Window && e.count >= l.config.MaxPerIP {
			return LimitResult{
				Allowed:    false,
				RetryAfter: l.config.Window - now.Sub(e.firstAt),
				Reason:     "ip_limit",
			}
		}
	}

	return LimitResult{Allowed: true}
}

// Record counts one accepted booking write against both keys.
func (l *Limiter) Record(memberID int64, ip string) {
	now := l.clock.Now()
	memberKey := l.hashKey("member:", strconv.FormatInt(memberID, 10))
	ipKey := l.hashKey("ip:", ip)

	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.byMember[memberKey]
	if e == nil || now.Sub(e.firstAt) >= l.config.Window {
		l.byMember[memberKey] = &entry{count: 1, firstAt: now, lastAt: now}
	} else {
		e.count++
		e.lastAt = now
	}

	e = l.byIP[ipKey]
	if e == nil || now.Sub(e.firstAt) >= l.config.Window {
		l.byIP[ipKey] = &entry{count: 1, firstAt: now, lastAt: now}
	} else {
		e.count++
		e.lastAt = now
	}
}

func (l *Limiter) hashKey(prefix, value string) string {
	hash := sha256.Sum256([]byte(value))
	return prefix + hex.EncodeToString(hash[:8])
}

func (l *Limiter) startCleanup() {
	l.cleanupOnce.Do(func() {
		l.cleanupWg.Add(1)
		go func() {
			defer l.cleanupWg.Done()
			ticker := time.NewTicker(5 * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-l.cleanupCtx.Done():
					return
				case <-ticker.C:
					l.cleanup()
				}
			}
		}()
	})
}

func (l *Limiter) cleanup() {
	now := l.clock.Now()
	maxAge := l.config.Window + time.Hour

	l.mu.Lock()
	defer l.mu.Unlock()

	for k, e := range l.byMember {
		if now.Sub(e.lastAt) > maxAge {
			delete(l.byMember, k)
		}
	}
	for k, e := range l.byIP {
		if now.Sub(e.lastAt) > maxAge {
			delete(l.byIP, k)
		}
	}
}

// GetClientIP extracts the client IP from a request.
// When trustProxy is true, uses the rightmost IP from X-Forwarded-For (added by your proxy).
// When trustProxy is false, ignores X-Forwarded-For entirely (prevents spoofing).
func GetClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			// Use RIGHTMOST IP - this is the one your proxy added, not user-supplied
			parts := strings.Split(xff, ",")
			for i := len(parts) - 1; i >= 0; i-- {
				ip := strings.TrimSpace(parts[i])
				// Skip private/internal IPs to find the real client
				if ip != "" && !isPrivateIP(ip) {
					return ip
				}
			}
			// All IPs are private, use the last one
			return strings.TrimSpace(parts[len(parts)-1])
		}

		// Check X-Real-IP (set by nginx)
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}

	// Fall back to RemoteAddr (direct connection or untrusted proxy)
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr might not have a port (e.g., Unix socket or malformed)
		// Try to parse as IP directly, otherwise return as-is
		if parsed := net.ParseIP(r.RemoteAddr); parsed != nil {
			return r.RemoteAddr
		}
		// Last resort: strip anything after last colon that looks like a port
		if idx := strings.LastIndex(r.RemoteAddr, ":"); idx != -1 {
			candidate := r.RemoteAddr[:idx]
			if net.ParseIP(candidate) != nil {
				return candidate
			}
		}
		return r.RemoteAddr
	}
	return ip
}

// privateNetworks holds parsed CIDR ranges for private/reserved IPs.
// Parsed once at package init for efficiency.
var privateNetworks []*net.IPNet

func init() {
	privateRanges := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		"::1/128",
		"fc00::/7",
		"fe80::/10", // Link-local
	}
	for _, cidr := range privateRanges {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic("invalid private CIDR: " + cidr)
		}
		privateNetworks = append(privateNetworks, network)
	}
}

// isPrivateIP checks if an IP is in a private/reserved range.
// Handles both IPv4 and IPv4-mapped IPv6 addresses (e.g., ::ffff:192.168.1.1).
func isPrivateIP(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}

	// Convert IPv4-mapped IPv6 to IPv4 for consistent matching
	// e.g., ::ffff:192.168.1.1 -> 192.168.1.1
	if ipv4 := ip.To4(); ipv4 != nil {
		ip = ipv4
	}

	for _, network := range privateNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// LogRateLimitExceeded logs a rate limit event.
func LogRateLimitExceeded(memberID int64, ip, reason string) {
	log.Warn().
		Str("event", "rate_limit_exceeded").
		Int64("member_id", memberID).
		Str("ip", ip).
		Str("reason", reason).
		Msg("Booking rate limit exceeded")
}
