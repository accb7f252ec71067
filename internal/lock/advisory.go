// Package lock serializes batch application per collection, across processes via a
// MySQL advisory lock or within one process via LocalLock.
package lock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ErrLockTimeout is returned when another run holds the lock.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// Timeouts for GET_LOCK, in seconds.
const (
	// TimeoutImmediate fails at once if the lock is taken.
	TimeoutImmediate = 0
	// TimeoutShort is suitable for fast-failing duplicate run detection.
	TimeoutShort = 1
	// TimeoutInfinite waits until the lock is acquired. MySQL treats negative values as infinite.
	TimeoutInfinite = -1
)

// Locker is held for the duration of one batch.
type Locker interface {
	Acquire(ctx context.Context) error
	Release(ctx context.Context) error
	Name() string
}

// CollectionLockName returns the lock name for a collection. Characters outside
// [A-Za-z0-9_-] are replaced so names stay stable and readable in performance_schema.
func CollectionLockName(collection string) string {
	sanitized := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, collection)
	return "contentsync:collection:" + sanitized
}

// NewCollectionLock returns an advisory lock when db is set and a LocalLock otherwise.
func NewCollectionLock(db *sql.DB, collection string) Locker {
	name := CollectionLockName(collection)
	if db == nil {
		return NewLocalLock(name)
	}
	return NewAdvisoryLock(db, name, TimeoutShort)
}

// WithLock runs fn while holding l. The lock is released even if fn panics.
func WithLock(ctx context.Context, l Locker, fn func() error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = l.Release(releaseCtx)
	}()
	return fn()
}

// AdvisoryLock is a MySQL GET_LOCK lock. GET_LOCK is scoped to a session, so the
// lock pins one pooled connection from Acquire until Release.
type AdvisoryLock struct {
	db      *sql.DB
	name    string
	timeout int

	mu   sync.Mutex
	conn *sql.Conn
}

// NewAdvisoryLock creates a lock. Nothing is acquired until Acquire is called.
func NewAdvisoryLock(db *sql.DB, name string, timeoutSeconds int) *AdvisoryLock {
	return &AdvisoryLock{db: db, name: name, timeout: timeoutSeconds}
}

func (a *AdvisoryLock) Name() string {
	return a.name
}

// IsHeld reports whether this instance holds the lock.
func (a *AdvisoryLock) IsHeld() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn != nil
}

// Acquire takes the lock or returns ErrLockTimeout.
//
// GET_LOCK returns 1 when obtained, 0 on timeout and NULL on error.
func (a *AdvisoryLock) Acquire(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn != nil {
		return nil
	}
	if a.db == nil {
		return fmt.Errorf("lock %q has no database", a.name)
	}

	conn, err := a.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to reserve connection for lock %q: %w", a.name, err)
	}

	var result sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", a.name, a.timeout).Scan(&result); err != nil {
		conn.Close()
		return fmt.Errorf("failed to execute GET_LOCK: %w", err)
	}
	if !result.Valid {
		conn.Close()
		return fmt.Errorf("GET_LOCK returned NULL for lock %q", a.name)
	}

	switch result.Int64 {
	case 1:
		a.conn = conn
		return nil
	case 0:
		conn.Close()
		return fmt.Errorf("%w: lock %q is held by another run", ErrLockTimeout, a.name)
	default:
		conn.Close()
		return fmt.Errorf("unexpected GET_LOCK return value: %d", result.Int64)
	}
}

// Release frees the lock and returns the pinned connection to the pool. Releasing a
// lock that is not held is a no-op.
//
// RELEASE_LOCK returns 1 when released, 0 when held by another session and NULL when
// the lock did not exist.
func (a *AdvisoryLock) Release(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn == nil {
		return nil
	}
	conn := a.conn
	a.conn = nil
	defer conn.Close()

	var result sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT RELEASE_LOCK(?)", a.name).Scan(&result); err != nil {
		return fmt.Errorf("failed to execute RELEASE_LOCK: %w", err)
	}
	if !result.Valid || result.Int64 != 1 {
		return fmt.Errorf("lock %q was not held by this session", a.name)
	}
	return nil
}
