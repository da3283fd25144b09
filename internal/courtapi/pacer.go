package courtapi

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ErlanBelekov/court-capture/internal/domain"
	"golang.org/x/time/rate"
)

// Pacer sleeps between consecutive page requests.
type Pacer interface {
	Pause(ctx context.Context, d time.Duration) error
}

// TimerPacer waits d or until ctx is done.
type TimerPacer struct{}

func (TimerPacer) Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// LimiterPool hands out one request limiter per court so that concurrent jobs
// against the same court share its budget.
type LimiterPool struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewLimiterPool() *LimiterPool {
	return &LimiterPool{limiters: make(map[string]*rate.Limiter)}
}

// For returns nil when the court declares no requests_per_second.
func (p *LimiterPool) For(court domain.CourtConfig) *rate.Limiter {
	if court.RequestsPerSecond <= 0 {
		return nil
	}
	key := strings.ToUpper(court.Code)

	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.limiters[key]; ok {
		return l
	}
	burst := int(court.RequestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	l := rate.NewLimiter(rate.Limit(court.RequestsPerSecond), burst)
	p.limiters[key] = l
	return l
}
