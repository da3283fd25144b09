package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const readinessTimeout = 2 * time.Second

// Pinger is satisfied by *pgxpool.Pool and by the redis queue.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CheckResult is the outcome of pinging one dependency.
type CheckResult struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// HealthResult is the top-level health response.
type HealthResult struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

type dependency struct {
	name string
	p    Pinger
}

// Checker verifies that all dependencies are reachable.
type Checker struct {
	deps   []dependency
	logger *slog.Logger
	gauge  *prometheus.GaugeVec
}

// NewChecker creates a health checker for postgres and registers its
// Prometheus gauge. More dependencies are added with With.
func NewChecker(db Pinger, logger *slog.Logger, reg prometheus.Registerer) *Checker {
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "capture",
		Name:      "health_check_up",
		Help:      "Whether a dependency is reachable. 1 = up, 0 = down.",
	}, []string{"dependency"})
	reg.MustRegister(gauge)

	return &Checker{
		deps:   []dependency{{name: "postgres", p: db}},
		logger: logger.With("component", "health"),
		gauge:  gauge,
	}
}

// With adds a named dependency to the readiness check.
func (c *Checker) With(name string, p Pinger) *Checker {
	c.deps = append(c.deps, dependency{name: name, p: p})
	return c
}

// Liveness returns a simple "up" response if the process is running.
func (c *Checker) Liveness(_ context.Context) HealthResult {
	return HealthResult{Status: "up"}
}

// Readiness pings every dependency in parallel under one shared deadline.
// Any dependency down makes the whole result down.
func (c *Checker) Readiness(ctx context.Context) HealthResult {
	checkCtx, cancel := context.WithTimeout(ctx, readinessTimeout)
	defer cancel()

	results := make([]CheckResult, len(c.deps))
	var wg sync.WaitGroup
	for i, d := range c.deps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.ping(checkCtx, d)
		}()
	}
	wg.Wait()

	out := HealthResult{Status: "up", Checks: make(map[string]CheckResult, len(c.deps))}
	for i, d := range c.deps {
		out.Checks[d.name] = results[i]
		if results[i].Status != "up" {
			out.Status = "down"
		}
	}
	return out
}

func (c *Checker) ping(ctx context.Context, d dependency) CheckResult {
	start := time.Now()
	err := d.p.Ping(ctx)
	res := CheckResult{Status: "up", LatencyMS: time.Since(start).Milliseconds()}
	if err != nil {
		c.logger.WarnContext(ctx, "health check failed", "dependency", d.name, "error", err)
		res.Status = "down"
		res.Error = err.Error()
		c.gauge.WithLabelValues(d.name).Set(0)
		return res
	}
	c.gauge.WithLabelValues(d.name).Set(1)
	return res
}
