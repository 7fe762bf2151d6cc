package core

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/dbfactory/internal/logger"
)

func TestHealthChecker_KeepsLiveHandle(t *testing.T) {
	// An hour-long interval keeps the loop idle; rounds are driven by hand.
	r := newTestRegistry(t, WithHealthCheck(time.Hour))

	h, err := r.Get(context.Background(), "main")
	require.NoError(t, err)

	r.health.check()

	assert.Equal(t, 1, r.Len())
	assert.False(t, h.IsClosed())
	stats := r.Stats()
	assert.True(t, stats.Healthy)
	assert.False(t, stats.LastHealthCheck.IsZero())
}

// failingConnector hands out no connections; every attempt fails with err.
type failingConnector struct {
	err error
}

func (c failingConnector) Connect(context.Context) (driver.Conn, error) { return nil, c.err }

func (c failingConnector) Driver() driver.Driver { return nil }

// breakHandle swaps the connection behind h for one whose every use fails
// with err.
func breakHandle(t *testing.T, h *Handle, err error) {
	t.Helper()
	require.NoError(t, h.db.Close())
	h.db = sql.OpenDB(failingConnector{err: err})
}

func TestHealthChecker_EvictsLostHandle(t *testing.T) {
	r := newTestRegistry(t, WithHealthCheck(time.Hour))

	h, err := r.Get(context.Background(), "main")
	require.NoError(t, err)

	breakHandle(t, h, driver.ErrBadConn)

	r.health.check()

	assert.Equal(t, 0, r.Len())
	assert.True(t, h.IsClosed())
	assert.False(t, r.Stats().Healthy)

	h2, err := r.Get(context.Background(), "main")
	require.NoError(t, err)
	assert.NotSame(t, h, h2)
	assert.NoError(t, h2.DB().Ping())
}

func TestHealthChecker_KeepsHandleOnOrdinaryPingFailure(t *testing.T) {
	r := newTestRegistry(t, WithHealthCheck(time.Hour))

	h, err := r.Get(context.Background(), "main")
	require.NoError(t, err)

	breakHandle(t, h, errors.New("too many connections"))

	r.health.check()

	assert.Equal(t, 1, r.Len(), "only a lost connection is evicted")
	assert.False(t, h.IsClosed())
	assert.False(t, r.Stats().Healthy)

	h2, err := r.Get(context.Background(), "main")
	require.NoError(t, err)
	assert.Same(t, h, h2)
}

func TestHealthChecker_SkipsWhenBusy(t *testing.T) {
	r := newTestRegistry(t, WithHealthCheck(time.Hour))

	_, err := r.Get(context.Background(), "main")
	require.NoError(t, err)

	r.mu.Lock()
	r.health.check()
	r.mu.Unlock()

	assert.True(t, r.health.lastCheck().IsZero(), "a busy registry skips the round")
	assert.Equal(t, 1, r.Len())
}

func TestHealthChecker_Loop(t *testing.T) {
	r := newTestRegistry(t, WithHealthCheck(20*time.Millisecond))

	_, err := r.Get(context.Background(), "main")
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)

	assert.False(t, r.Stats().LastHealthCheck.IsZero())
	assert.True(t, r.Stats().Healthy)
}

func TestHealthChecker_Shutdown(t *testing.T) {
	r := NewRegistry(sqliteStore(),
		WithRegistryLogger(&logger.NoopLogger{}),
		WithHealthCheck(10*time.Millisecond),
	)

	time.Sleep(30 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		_ = r.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("Shutdown took too long")
	}
}
