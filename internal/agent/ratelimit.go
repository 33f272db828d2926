package agent

import (
	"context"
	"sync"
	"time"
)

const (
	defaultBurst         = 10
	defaultRatePerMinute = 30
)

// RateLimiterConfig sizes the model-call budget shared by every phase
// (models.burst and models.ratePerMinute).
type RateLimiterConfig struct {
	Burst         int
	RatePerMinute float64
	Now           func() time.Time
}

// RateLimiter is a token bucket over model calls. A caller reserves its
// token up front; an empty bucket goes into debt and the caller sleeps until
// its token has accrued, so waiters are served in arrival order.
type RateLimiter struct {
	mu     sync.Mutex
	now    func() time.Time
	burst  float64
	perSec float64
	tokens float64
	last   time.Time
}

func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.Burst <= 0 {
		cfg.Burst = defaultBurst
	}
	if cfg.RatePerMinute <= 0 {
		cfg.RatePerMinute = defaultRatePerMinute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &RateLimiter{
		now:    cfg.Now,
		burst:  float64(cfg.Burst),
		perSec: cfg.RatePerMinute / 60,
		tokens: float64(cfg.Burst),
		last:   cfg.Now(),
	}
}

// reserve takes one token and returns how long the caller must wait for it.
func (rl *RateLimiter) reserve() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	rl.tokens = min(rl.burst, rl.tokens+now.Sub(rl.last).Seconds()*rl.perSec)
	rl.last = now
	rl.tokens--
	if rl.tokens >= 0 {
		return 0
	}
	return time.Duration(-rl.tokens / rl.perSec * float64(time.Second))
}

// release hands back a reserved token whose caller gave up.
func (rl *RateLimiter) release() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.tokens = min(rl.burst, rl.tokens+1)
}

// Wait blocks until a model call may proceed and returns how long the call
// was held back.
func (rl *RateLimiter) Wait(ctx context.Context) (time.Duration, error) {
	delay := rl.reserve()
	if delay <= 0 {
		return 0, nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		rl.release()
		return 0, ctx.Err()
	case <-timer.C:
		return delay, nil
	}
}
