// Package core provides the connection registry and the query facade built
// on top of it.
package core

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-multierror"

	"github.com/coregx/dbfactory/internal/config"
	"github.com/coregx/dbfactory/internal/dialects"
	"github.com/coregx/dbfactory/internal/logger"
	"github.com/coregx/dbfactory/internal/retry"
	"github.com/coregx/dbfactory/internal/tracer"
)

// DefaultWaitTimeout is the idle time after which a cached connection is
// replaced on the next Get. It matches MySQL's default wait_timeout.
const DefaultWaitTimeout = 28800 * time.Second

const healthPingTimeout = 5 * time.Second

// Opener opens and verifies one connection for cfg.
type Opener func(ctx context.Context, cfg config.Config, d dialects.Dialect) (*sql.DB, error)

// Handle is the live connection cached for one alias.
// Callers must not keep a Handle beyond a single operation: the registry may
// replace it on a later Get.
type Handle struct {
	alias   string
	db      *sql.DB
	dialect dialects.Dialect

	mu         sync.Mutex
	lastActive time.Time
	closed     bool
	closes     int
}

// Alias returns the alias the handle was created for.
func (h *Handle) Alias() string { return h.alias }

// DB returns the underlying connection.
func (h *Handle) DB() *sql.DB { return h.db }

// Dialect returns the dialect of the handle's driver.
func (h *Handle) Dialect() dialects.Dialect { return h.dialect }

// LastActive returns when the handle was last handed out.
func (h *Handle) LastActive() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastActive
}

// IsClosed reports whether the handle has been closed.
func (h *Handle) IsClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *Handle) touch(now time.Time) {
	h.mu.Lock()
	h.lastActive = now
	h.mu.Unlock()
}

// close closes the connection once. Later calls return nil.
func (h *Handle) close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.closes++
	h.mu.Unlock()

	return h.db.Close()
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithWaitTimeout sets the idle time after which a handle is replaced.
func WithWaitTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		r.waitTimeout = d
	}
}

// WithRetryInterval makes reconnect attempts wait a fixed interval instead
// of escalating. The interval is never shorter than retry.MinDelay.
func WithRetryInterval(d time.Duration) RegistryOption {
	return func(r *Registry) {
		r.scheduler.SetInterval(d)
	}
}

// WithScheduler replaces the reconnect scheduler.
func WithScheduler(s *retry.Scheduler) RegistryOption {
	return func(r *Registry) {
		if s != nil {
			r.scheduler = s
		}
	}
}

// WithOpener replaces the function that opens connections.
func WithOpener(open Opener) RegistryOption {
	return func(r *Registry) {
		if open != nil {
			r.open = open
		}
	}
}

// WithClock replaces the time source used for idle tracking.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithTimer supplies the timer used to wait between reconnect attempts.
func WithTimer(newTimer func() backoff.Timer) RegistryOption {
	return func(r *Registry) {
		r.newTimer = newTimer
	}
}

// WithRegistryLogger sets the logger for connection lifecycle events.
func WithRegistryLogger(l logger.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRegistryTracer sets the tracer for connect spans.
func WithRegistryTracer(t tracer.Tracer) RegistryOption {
	return func(r *Registry) {
		if t != nil {
			r.tracer = t
		}
	}
}

// WithHealthCheck pings every cached handle at the given interval and
// evicts the ones that fail. Zero disables it.
func WithHealthCheck(interval time.Duration) RegistryOption {
	return func(r *Registry) {
		r.healthInterval = interval
	}
}

// Registry caches one connection per alias and recreates it when it is
// closed or has been idle longer than the wait timeout.
//
// Get, Close and CloseAll are serialized by one registry-wide lock, so two
// callers never create duplicate handles for the same alias.
type Registry struct {
	mu      sync.Mutex
	source  config.Source
	handles map[string]*Handle
	closed  bool

	scheduler      *retry.Scheduler
	waitTimeout    time.Duration
	open           Opener
	now            func() time.Time
	newTimer       func() backoff.Timer
	logger         logger.Logger
	tracer         tracer.Tracer
	healthInterval time.Duration
	health         *healthChecker
}

// NewRegistry creates a registry resolving aliases through source.
func NewRegistry(source config.Source, opts ...RegistryOption) *Registry {
	r := &Registry{
		source:      source,
		handles:     make(map[string]*Handle),
		scheduler:   retry.NewScheduler(0),
		waitTimeout: DefaultWaitTimeout,
		open:        OpenConnection,
		now:         time.Now,
		logger:      logger.Default(),
		tracer:      &tracer.NoopTracer{},
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.healthInterval > 0 {
		r.health = newHealthChecker(r, r.logger, r.healthInterval)
		r.health.start()
	}
	return r
}

// OpenConnection is the default Opener. It opens the configured driver and
// pings it. The open connection count is left uncapped: a RowSet holds its
// connection until it is closed, and other statements on the alias must
// still run meanwhile.
func OpenConnection(ctx context.Context, cfg config.Config, d dialects.Dialect) (*sql.DB, error) {
	dsn, err := d.DataSourceName(cfg.Endpoint, cfg.User, cfg.Secret)
	if err != nil {
		return nil, WrapError(err, "invalid endpoint")
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Get returns the live handle for alias, creating or replacing it as
// needed. An empty alias means the default alias. When the database is
// unreachable Get keeps retrying until ctx is done; it fails only for an
// unknown alias, a cancelled context or a shut down registry.
func (r *Registry) Get(ctx context.Context, alias string) (*Handle, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}

	key := r.resolve(alias)
	cfg, err := r.source.Lookup(key)
	if err != nil {
		return nil, err
	}

	now := r.now()
	if h, ok := r.handles[key]; ok {
		idle := now.Sub(h.LastActive())
		if !h.IsClosed() && idle <= r.waitTimeout {
			h.touch(now)
			return h, nil
		}

		r.logger.Info("replacing stale connection",
			"alias", key,
			"closed", h.IsClosed(),
			"idle", idle,
		)
		r.discard(key, h)
	}

	h, err := r.create(ctx, key, cfg)
	if err != nil {
		return nil, err
	}
	h.touch(r.now())
	r.handles[key] = h
	return h, nil
}

// create opens a connection for cfg, retrying with the scheduler's delays
// until it succeeds or ctx is done. The caller holds r.mu.
func (r *Registry) create(ctx context.Context, alias string, cfg config.Config) (*Handle, error) {
	ctx, span := r.tracer.StartSpan(ctx, tracer.SpanConnect)
	defer span.End()

	d := dialects.GetDialect(cfg.Driver)
	start := time.Now()

	var (
		db       *sql.DB
		attempts int
	)
	operation := func() error {
		attempts++
		var err error
		db, err = r.open(ctx, cfg, d)
		return err
	}
	notify := func(err error, wait time.Duration) {
		r.logger.Error("database connect failed",
			"alias", alias,
			"target", logger.MaskSecret(cfg.String(), cfg.Secret),
			"attempt", attempts,
			"retry_in", wait,
			"error", logger.MaskSecret(err.Error(), cfg.Secret),
		)
	}

	var timer backoff.Timer
	if r.newTimer != nil {
		timer = r.newTimer()
	}
	policy := backoff.WithContext(retryPolicy{r.scheduler}, ctx)

	err := backoff.RetryNotifyWithTimer(operation, policy, notify, timer)
	tracer.AddQueryAttributes(span, &tracer.QueryMetadata{
		Alias:     alias,
		Database:  d.Name(),
		Operation: "CONNECT",
		Duration:  time.Since(start),
		Error:     err,
	})
	if err != nil {
		r.logger.Error("database connect abandoned",
			"alias", alias,
			"attempts", attempts,
			"error", logger.MaskSecret(err.Error(), cfg.Secret),
		)
		return nil, WrapError(err, fmt.Sprintf("connect %q", alias))
	}

	r.scheduler.Reset()
	r.logger.Info("database connected",
		"alias", alias,
		"target", cfg.String(),
		"attempts", attempts,
	)
	return &Handle{alias: alias, db: db, dialect: d}, nil
}

// Close closes and evicts the handle for alias. A close failure is logged;
// the entry is evicted regardless.
func (r *Registry) Close(alias string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := r.resolve(alias)
	if h, ok := r.handles[key]; ok {
		r.discard(key, h)
	}
}

// CloseAll closes and evicts every handle. Every handle is closed even if
// some fail; the failures are returned together.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeAllLocked()
}

func (r *Registry) closeAllLocked() error {
	var result *multierror.Error
	for key, h := range r.handles {
		if err := h.close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close %q: %w", key, err))
		}
		delete(r.handles, key)
	}
	return result.ErrorOrNil()
}

// Shutdown stops the health checker, closes every handle and makes later
// Get calls fail with ErrRegistryClosed. No handle created concurrently
// with Shutdown survives it.
func (r *Registry) Shutdown() error {
	if r.health != nil {
		r.health.shutdown()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return r.closeAllLocked()
}

// SaveAliasAs registers the configuration of src under dst. No connection
// is copied; the next Get(dst) opens its own.
func (r *Registry) SaveAliasAs(src, dst string) error {
	if src == dst {
		return nil
	}
	cfg, err := r.source.Lookup(src)
	if err != nil {
		return err
	}
	cfg.Alias = dst
	r.source.Save(cfg)
	return nil
}

// Len returns the number of cached handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// RegistryStats describes the registry state.
type RegistryStats struct {
	Handles         int
	Healthy         bool
	LastHealthCheck time.Time
}

// Stats returns a snapshot of the registry state. Without a health checker
// the registry reports healthy.
func (r *Registry) Stats() RegistryStats {
	stats := RegistryStats{Handles: r.Len(), Healthy: true}
	if r.health != nil {
		stats.Healthy = r.health.isHealthy()
		stats.LastHealthCheck = r.health.lastCheck()
	}
	return stats
}

// evict drops h if it is still the cached handle for its alias, and closes
// it either way.
func (r *Registry) evict(h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictLocked(h)
}

func (r *Registry) evictLocked(h *Handle) {
	if cur, ok := r.handles[h.alias]; ok && cur == h {
		r.discard(h.alias, h)
		return
	}
	if err := h.close(); err != nil {
		r.logger.Warn("closing evicted connection failed", "alias", h.alias, "error", err)
	}
}

// discard closes h and removes key. The caller holds r.mu.
func (r *Registry) discard(key string, h *Handle) {
	if err := h.close(); err != nil {
		r.logger.Warn("closing connection failed", "alias", key, "error", err)
	}
	delete(r.handles, key)
	r.logger.Debug("connection evicted", "alias", key)
}

// snapshot returns the cached handles, or false if the registry lock is busy.
func (r *Registry) snapshot() ([]*Handle, bool) {
	if !r.mu.TryLock() {
		return nil, false
	}
	defer r.mu.Unlock()

	out := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		out = append(out, h)
	}
	return out, true
}

func (r *Registry) resolve(alias string) string {
	if alias == "" {
		return r.source.DefaultAlias()
	}
	return alias
}

// retryPolicy drives backoff's retry loop from a shared scheduler. The
// loop resets its policy on entry; the scheduler must only be reset after a
// successful connect, so Reset is a no-op here.
type retryPolicy struct {
	s *retry.Scheduler
}

func (p retryPolicy) NextBackOff() time.Duration { return p.s.NextDelay() }

func (p retryPolicy) Reset() {}
