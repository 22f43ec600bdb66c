package httpapi

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const stationHeader = "X-Station-ID"

type RateLimitConfig struct {
	IPPerMinute      int
	IPBurst          int
	StationPerMinute int
	StationBurst     int
	// Exempt lists path prefixes that are never limited, such as the
	// realtime stream whose polling transports reconnect continuously.
	Exempt []string
}

// RateLimiter applies token buckets per client IP and, when the request
// names one, per kitchen station.
type RateLimiter struct {
	ipLimiter      *tokenLimiter
	stationLimiter *tokenLimiter
	exempt         []string
}

func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		ipLimiter:      newTokenLimiter(cfg.IPPerMinute, cfg.IPBurst),
		stationLimiter: newTokenLimiter(cfg.StationPerMinute, cfg.StationBurst),
		exempt:         cfg.Exempt,
	}
}

func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.isExempt(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		if ip := clientIP(r); ip != "" {
			if wait, ok := l.ipLimiter.allow(ip); !ok {
				rejectLimited(w, r, wait)
				return
			}
		}
		if station := strings.TrimSpace(r.Header.Get(stationHeader)); station != "" {
			if wait, ok := l.stationLimiter.allow(station); !ok {
				rejectLimited(w, r, wait)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) isExempt(path string) bool {
	for _, prefix := range l.exempt {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func rejectLimited(w http.ResponseWriter, r *http.Request, wait time.Duration) {
	seconds := max(int(math.Ceil(wait.Seconds())), 1)
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	writeError(w, requestID(r), http.StatusTooManyRequests, "rate_limited", "too many requests")
}

type tokenLimiter struct {
	mu     sync.Mutex
	rate   float64
	burst  float64
	bucket map[string]*bucket
	now    func() time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

func newTokenLimiter(perMinute, burst int) *tokenLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	if burst <= 0 {
		burst = 20
	}
	return &tokenLimiter{
		rate:   float64(perMinute) / 60.0,
		burst:  float64(burst),
		bucket: make(map[string]*bucket),
		now:    time.Now,
	}
}

// allow takes one token for key. When none is left it reports how long
// until the next one refills.
func (l *tokenLimiter) allow(key string) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.bucket[key]
	if !ok {
		l.bucket[key] = &bucket{tokens: l.burst - 1, last: now}
		return 0, true
	}
	elapsed := now.Sub(b.last).Seconds()
	b.tokens = min(l.burst, b.tokens+elapsed*l.rate)
	b.last = now
	if b.tokens < 1 {
		return time.Duration((1 - b.tokens) / l.rate * float64(time.Second)), false
	}
	b.tokens -= 1
	return 0, true
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
