package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Decision is the outcome of a rate-limit check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// Limiter decides whether one more request for projectID fits its budget.
type Limiter interface {
	Allow(ctx context.Context, projectID uuid.UUID) (Decision, error)
}

const window = time.Minute

// WindowLimiter counts requests per project in fixed one-minute windows held
// in a shared Cache, so every server instance sees the same budget.
type WindowLimiter struct {
	cache   Cache
	perMin  int
	nowFunc func() time.Time
}

func NewWindowLimiter(c Cache, perMinute int) *WindowLimiter {
	return &WindowLimiter{cache: c, perMin: perMinute, nowFunc: time.Now}
}

func (l *WindowLimiter) Allow(ctx context.Context, projectID uuid.UUID) (Decision, error) {
	count, ttl, err := l.cache.IncrWithExpiry(ctx, RateLimitKey(projectID), window)
	if err != nil {
		return Decision{}, err
	}
	// The window ends when the counter expires.
	if ttl <= 0 || ttl > window {
		ttl = window
	}
	return Decision{
		Allowed:   count <= int64(l.perMin),
		Limit:     l.perMin,
		Remaining: max(l.perMin-int(count), 0),
		Reset:     l.nowFunc().Add(ttl),
	}, nil
}

// LocalLimiter is a per-process token bucket per project, used when no Redis
// is configured.
type LocalLimiter struct {
	perMin int

	mu       sync.Mutex
	limiters map[uuid.UUID]*rate.Limiter
}

func NewLocalLimiter(perMinute int) *LocalLimiter {
	return &LocalLimiter{perMin: perMinute, limiters: make(map[uuid.UUID]*rate.Limiter)}
}

func (l *LocalLimiter) Allow(_ context.Context, projectID uuid.UUID) (Decision, error) {
	l.mu.Lock()
	lim, ok := l.limiters[projectID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(window/time.Duration(l.perMin)), l.perMin)
		l.limiters[projectID] = lim
	}
	l.mu.Unlock()

	now := time.Now()
	allowed := lim.AllowN(now, 1)
	remaining := int(lim.TokensAt(now))
	return Decision{
		Allowed:   allowed,
		Limit:     l.perMin,
		Remaining: max(remaining, 0),
		Reset:     now.Add(window),
	}, nil
}

var (
	_ Limiter = (*WindowLimiter)(nil)
	_ Limiter = (*LocalLimiter)(nil)
)
