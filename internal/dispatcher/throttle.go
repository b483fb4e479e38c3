package dispatcher

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultThrottleIdle is how long a limiter may sit unused before Sweep drops it.
const DefaultThrottleIdle = 10 * time.Minute

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Throttle is a per-user token bucket. A nil Throttle allows everything.
type Throttle struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	clock    Clock
	limiters map[int64]*userLimiter
}

// NewThrottle allows perMinute events per user with an equal burst. It
// returns nil when perMinute is not positive, which disables throttling.
func NewThrottle(perMinute int, clock Clock) *Throttle {
	if perMinute <= 0 {
		return nil
	}
	if clock == nil {
		clock = RealClock{}
	}

	return &Throttle{
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
		clock:    clock,
		limiters: make(map[int64]*userLimiter),
	}
}

// Allow consumes one token for userID.
func (t *Throttle) Allow(userID int64) bool {
	if t == nil {
		return true
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	ul, ok := t.limiters[userID]
	if !ok {
		ul = &userLimiter{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.limiters[userID] = ul
	}
	ul.lastSeen = now

	return ul.limiter.AllowN(now, 1)
}

// Sweep drops limiters idle for longer than idle and returns the count.
func (t *Throttle) Sweep(idle time.Duration) int {
	if t == nil {
		return 0
	}
	if idle <= 0 {
		idle = DefaultThrottleIdle
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.clock.Now().Add(-idle)
	removed := 0
	for id, ul := range t.limiters {
		if ul.lastSeen.Before(cutoff) {
			delete(t.limiters, id)
			removed++
		}
	}

	return removed
}

// tracked reports the number of tracked users.
func (t *Throttle) tracked() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.limiters)
}
