package handler

import (
	"context"
	"net/http"
	"strangerchat/backend/internal/api/errcode"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket per actor.
type RateLimiter struct {
	limiters sync.Map // actor id -> *limiterEntry
	r        rate.Limit
	burst    int
	idle     time.Duration
}

type limiterEntry struct {
	limiter  *rate.Limiter
	mu       sync.Mutex
	lastSeen time.Time
}

// NewRateLimiter allows perSecond requests per actor with the given burst.
// perSecond <= 0 disables limiting.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{r: rate.Limit(perSecond), burst: burst, idle: 10 * time.Minute}
}

func (rl *RateLimiter) Allow(key string) bool {
	if rl == nil || rl.r <= 0 {
		return true
	}
	entry := rl.getOrCreate(key)
	entry.mu.Lock()
	entry.lastSeen = time.Now()
	entry.mu.Unlock()
	return entry.limiter.Allow()
}

func (rl *RateLimiter) getOrCreate(key string) *limiterEntry {
	if v, ok := rl.limiters.Load(key); ok {
		return v.(*limiterEntry)
	}
	entry := &limiterEntry{limiter: rate.NewLimiter(rl.r, rl.burst), lastSeen: time.Now()}
	actual, _ := rl.limiters.LoadOrStore(key, entry)
	return actual.(*limiterEntry)
}

// Run drops buckets of actors that went quiet until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.cleanup(time.Now().Add(-rl.idle))
		}
	}
}

func (rl *RateLimiter) cleanup(cutoff time.Time) {
	rl.limiters.Range(func(key, value any) bool {
		entry := value.(*limiterEntry)
		entry.mu.Lock()
		stale := entry.lastSeen.Before(cutoff)
		entry.mu.Unlock()
		if stale {
			rl.limiters.Delete(key)
		}
		return true
	})
}

// LimitJoins rejects join bursts from one actor with 429.
func (h *Handler) LimitJoins(c *gin.Context) {
	actor := actorFrom(c)
	if !h.Limiter.Allow(actor.ID) {
		log.Warnf("Join rate limit hit by %s", actor.ID)
		abort(c, http.StatusTooManyRequests, errcode.RateLimited, "Too many join requests", true)
		return
	}
	c.Next()
}
