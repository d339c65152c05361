package middleware

import (
	"math/rand"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	domainerrors "github.com/pylon-apis/pylon/internal/domain/errors"
	"github.com/pylon-apis/pylon/internal/interfaces/http/response"
)

// Per-client request allowance.
const (
	rateLimitRequests = 60
	rateLimitWindow   = time.Minute
)

// Probes and scrapes are never throttled.
var rateLimitExempt = map[string]struct{}{
	"/health":  {},
	"/status":  {},
	"/metrics": {},
}

type bucket struct {
	tokens   float64
	lastFill time.Time
}

// RateLimiter is a per-client-IP token bucket. Stale buckets are swept
// opportunistically, on roughly one request in a hundred.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

// NewRateLimiter creates a rate limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow takes one token for the client, reporting false when the bucket is
// empty.
func (rl *RateLimiter) Allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[clientIP]
	if !ok {
		b = &bucket{tokens: rateLimitRequests, lastFill: now}
		rl.buckets[clientIP] = b
	}

	refill := now.Sub(b.lastFill).Seconds() * rateLimitRequests / rateLimitWindow.Seconds()
	b.tokens += refill
	if b.tokens > rateLimitRequests {
		b.tokens = rateLimitRequests
	}
	b.lastFill = now

	if rand.Intn(100) == 0 {
		rl.sweepLocked(now)
	}

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// sweepLocked drops buckets idle for a full window; they would refill to
// capacity anyway.
func (rl *RateLimiter) sweepLocked(now time.Time) {
	for ip, b := range rl.buckets {
		if now.Sub(b.lastFill) > rateLimitWindow {
			delete(rl.buckets, ip)
		}
	}
}

// Middleware applies the limiter to every non-exempt route.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exempt := rateLimitExempt[c.Request.URL.Path]; exempt {
			c.Next()
			return
		}
		if !rl.Allow(ClientIP(c)) {
			response.Error(c, domainerrors.RateLimited())
			c.Abort()
			return
		}
		c.Next()
	}
}

// ClientIP identifies the caller for throttling: the left-most
// X-Forwarded-For entry when present, the socket address otherwise. The
// forwarded header is client-controlled, so this value must never feed a
// trust decision; use PeerIP for those.
func ClientIP(c *gin.Context) string {
	if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if first != "" {
			return first
		}
	}
	return PeerIP(c)
}

// PeerIP is the socket peer's address. Trust checks (test bypass,
// unrestricted usage queries) rely on it because, unlike forwarded headers,
// the peer address cannot be set by the client.
func PeerIP(c *gin.Context) string {
	host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
	if err != nil {
		return c.Request.RemoteAddr
	}
	return host
}
