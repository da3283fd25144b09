package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/court-capture/internal/metrics"
	"github.com/ErlanBelekov/court-capture/internal/repository"
)

// Messages stored on jobs failed by the reaper.
const (
	ExecutorLostMessage   = "executor lost"
	NeverClaimedMessage   = "task never picked up by a worker"
	defaultQueueAbandonAt = 24 * time.Hour
)

// Reaper fails claimed jobs whose executor stopped sending heartbeats, and
// jobs whose task sat in the queue past queueTimeout. It is the only writer
// besides the owning executor.
type Reaper struct {
	repo             repository.JobRepository
	logger           *slog.Logger
	interval         time.Duration
	heartbeatTimeout time.Duration
	queueTimeout     time.Duration
}

func NewReaper(repo repository.JobRepository, logger *slog.Logger, interval, heartbeatTimeout, queueTimeout time.Duration) *Reaper {
	if queueTimeout <= 0 {
		queueTimeout = defaultQueueAbandonAt
	}
	return &Reaper{
		repo:             repo,
		logger:           logger.With("component", "reaper"),
		interval:         interval,
		heartbeatTimeout: heartbeatTimeout,
		queueTimeout:     queueTimeout,
	}
}

func (r *Reaper) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reaper started", "interval", r.interval, "heartbeat_timeout", r.heartbeatTimeout, "queue_timeout", r.queueTimeout)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper shut down")
			return
		case <-ticker.C:
			r.Reap(ctx)
		}
	}
}

// Reap runs one cycle and returns how many jobs it failed.
func (r *Reaper) Reap(ctx context.Context) int {
	start := time.Now()
	defer func() { metrics.ReaperCycleDuration.Observe(time.Since(start).Seconds()) }()

	var total int
	stale, err := r.repo.FailStale(ctx, start.Add(-r.heartbeatTimeout), ExecutorLostMessage, 100)
	if err != nil {
		r.logger.Error("fail stale jobs", "error", err)
	} else if stale > 0 {
		metrics.ReaperRescuedTotal.WithLabelValues("failed").Add(float64(stale))
		r.logger.Warn("failed stale jobs", "count", stale)
		total += stale
	}

	lost, err := r.repo.FailUnclaimed(ctx, start.Add(-r.queueTimeout), NeverClaimedMessage, 100)
	if err != nil {
		r.logger.Error("fail unclaimed jobs", "error", err)
	} else if lost > 0 {
		metrics.ReaperRescuedTotal.WithLabelValues("unclaimed").Add(float64(lost))
		r.logger.Warn("failed jobs never picked up", "count", lost)
		total += lost
	}
	return total
}
