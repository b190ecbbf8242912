package medinventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/medkit/medinventory/internal/metrics"
	"github.com/medkit/medinventory/pkg/connection"
	"github.com/medkit/medinventory/pkg/constants"
	"github.com/medkit/medinventory/pkg/logger"
)

// DB is a handle to the remote store. It is safe for concurrent use and is
// meant to be created once and shared.
type DB struct {
	conn         connection.Connection
	session      *SessionCache
	logger       logger.Logger
	metrics      *metrics.Collector
	queryTimeout time.Duration
	now          func() time.Time
	parallel     bool
}

// New creates a handle over an already connected connection.
func New(conn connection.Connection, opts ...Option) (*DB, error) {
	if conn == nil {
		return nil, errors.New("medinventory: nil connection")
	}

	db := &DB{
		conn:         conn,
		logger:       logger.Nop(),
		queryTimeout: constants.DefaultQueryTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		if err := opt(db); err != nil {
			return nil, err
		}
	}
	db.session = newSessionCache(conn, db.logger, db.queryTimeout)

	return db, nil
}

// FromConnection connects conn and creates a handle over it.
func FromConnection(ctx context.Context, conn connection.Connection, opts ...Option) (*DB, error) {
	if conn == nil {
		return nil, errors.New("medinventory: nil connection")
	}
	if err := conn.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	db, err := New(conn, opts...)
	if err != nil {
		_ = conn.Close(ctx)
		return nil, err
	}
	return db, nil
}

// Close closes the underlying connection.
func (db *DB) Close(ctx context.Context) error {
	return db.conn.Close(ctx)
}

// Connection returns the underlying connection.
func (db *DB) Connection() connection.Connection {
	return db.conn
}

// Session returns the session cache of the handle.
func (db *DB) Session() *SessionCache {
	return db.session
}

// SessionStatus reports whether a user is signed in and who.
func (db *DB) SessionStatus(ctx context.Context) SessionStatus {
	return db.session.Status(ctx)
}

// withTimeout bounds ctx by the query timeout unless ctx already ends sooner.
func (db *DB) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return boundContext(ctx, db.queryTimeout)
}

func boundContext(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= d {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// observe records the outcome of one operation and wraps a failure.
func (db *DB) observe(op, table string, began time.Time, err error) error {
	db.metrics.Observe(table, op, began, err)
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, constants.ErrTimeout) {
		err = fmt.Errorf("%w: %w", constants.ErrTimeout, err)
	}
	db.logger.Error("operation failed", "op", op, "table", table, "error", err)

	return &QueryError{Op: op, Table: table, Err: err}
}

// Migrate creates the schema on connections that can, such as direct
// Postgres connections.
func (db *DB) Migrate(ctx context.Context) error {
	m, ok := db.conn.(connection.Migrator)
	if !ok {
		return db.observe("migrate", "schema", time.Now(), constants.ErrMethodNotAvailable)
	}

	began := time.Now()
	return db.observe("migrate", "schema", began, m.Migrate(ctx))
}
