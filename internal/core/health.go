package core

import (
	"context"
	"sync"
	"time"

	"github.com/coregx/dbfactory/internal/logger"
)

// healthChecker pings every cached handle at a fixed interval and evicts the
// ones that fail, so the next Get reconnects instead of handing out a dead
// connection.
type healthChecker struct {
	registry *Registry
	logger   logger.Logger
	interval time.Duration
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.RWMutex
	lastErr  error
	lastPing time.Time
}

func newHealthChecker(r *Registry, log logger.Logger, interval time.Duration) *healthChecker {
	return &healthChecker{
		registry: r,
		logger:   log,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// start begins the health check loop in a background goroutine.
func (h *healthChecker) start() {
	h.wg.Add(1)
	go h.run()
}

func (h *healthChecker) run() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.check()
		case <-h.stop:
			return
		}
	}
}

// check pings each handle once and evicts the ones whose ping shows the
// connection is lost. Other ping failures are logged and mark the round
// unhealthy. A round is skipped while the registry is busy, e.g. blocked in
// a reconnect loop.
func (h *healthChecker) check() {
	handles, ok := h.registry.snapshot()
	if !ok {
		h.logger.Debug("health check skipped, registry busy")
		return
	}

	var failed error
	for _, handle := range handles {
		if err := h.ping(handle); err != nil {
			failed = err
			h.logger.Warn("database health check failed",
				"alias", handle.Alias(),
				"error", err,
				"interval", h.interval,
			)
			if !handle.Dialect().IsConnectionLost(err) {
				continue
			}
			if h.registry.mu.TryLock() {
				h.registry.evictLocked(handle)
				h.registry.mu.Unlock()
			}
			continue
		}
		h.logger.Debug("database health check passed", "alias", handle.Alias())
	}

	h.mu.Lock()
	h.lastErr = failed
	h.lastPing = time.Now()
	h.mu.Unlock()
}

func (h *healthChecker) ping(handle *Handle) error {
	if handle.IsClosed() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), healthPingTimeout)
	defer cancel()
	return handle.DB().PingContext(ctx)
}

// shutdown halts the health checker and waits for it to finish.
func (h *healthChecker) shutdown() {
	h.stopOnce.Do(func() { close(h.stop) })
	h.wg.Wait()
}

// isHealthy returns true if the last round found no failing handle.
func (h *healthChecker) isHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastErr == nil
}

// lastCheck returns the time of the most recent round.
func (h *healthChecker) lastCheck() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastPing
}
