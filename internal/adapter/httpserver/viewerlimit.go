package httpserver

import (
	"sync"

	"github.com/labstack/echo/v4"
	apperrors "github.com/pscheid92/streamrelay/internal/platform/errors"
)

// viewerLimiter caps concurrent viewer streams per client IP. The
// instance-wide cap lives in the subscriber registry.
type viewerLimiter struct {
	mu     sync.Mutex
	ips    map[string]int
	maxPer int
}

// newViewerLimiter returns a limiter allowing maxPer streams per IP; zero
// disables the limit.
func newViewerLimiter(maxPer int) *viewerLimiter {
	return &viewerLimiter{
		ips:    make(map[string]int),
		maxPer: maxPer,
	}
}

func (l *viewerLimiter) acquire(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ips[ip] >= l.maxPer {
		return false
	}
	l.ips[ip]++
	return true
}

func (l *viewerLimiter) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if count := l.ips[ip]; count > 1 {
		l.ips[ip] = count - 1
	} else {
		delete(l.ips, ip)
	}
}

func (l *viewerLimiter) count(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ips[ip]
}

// middleware holds a slot for as long as the stream handler runs.
func (l *viewerLimiter) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if l.maxPer <= 0 {
			return next
		}
		return func(c echo.Context) error {
			ip := c.RealIP()
			if !l.acquire(ip) {
				return apperrors.RateLimitedError("too many viewer connections").WithField("client", ip)
			}
			defer l.release(ip)
			return next(c)
		}
	}
}
