package httpapi

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiterIdleTTL is the refill window of a bucket. A limiter idle that long
// is back at full burst and can be dropped.
const limiterIdleTTL = time.Minute

type principalLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// submitLimiter keeps one token bucket per active principal.
type submitLimiter struct {
	mu          sync.Mutex
	perMinute   int
	now         func() time.Time
	lastSweep   time.Time
	byPrincipal map[int64]*principalLimiter
}

// newSubmitLimiter returns nil when perMinute disables limiting.
func newSubmitLimiter(perMinute int) *submitLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &submitLimiter{
		perMinute:   perMinute,
		now:         time.Now,
		byPrincipal: make(map[int64]*principalLimiter),
	}
}

func (l *submitLimiter) Allow(principalID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)
	entry := l.byPrincipal[principalID]
	if entry == nil {
		entry = &principalLimiter{
			limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMinute)), l.perMinute),
		}
		l.byPrincipal[principalID] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// sweep evicts idle limiters, at most once per idle window.
func (l *submitLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < limiterIdleTTL {
		return
	}
	l.lastSweep = now
	for id, entry := range l.byPrincipal {
		if now.Sub(entry.lastSeen) >= limiterIdleTTL {
			delete(l.byPrincipal, id)
		}
	}
}
