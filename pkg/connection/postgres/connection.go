// Package postgres talks to the store directly over SQL through GORM. It has
// no auth service, so the session identity is fixed by configuration.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/medkit/medinventory/internal/codec"
	"github.com/medkit/medinventory/pkg/connection"
	"github.com/medkit/medinventory/pkg/constants"
	"github.com/medkit/medinventory/pkg/logger"
	"github.com/medkit/medinventory/pkg/models"
	"github.com/medkit/medinventory/pkg/query"
)

//go:embed schema.sql
var schemaSQL string

// statementSeparator splits schema.sql into statements the extended protocol
// accepts one at a time.
const statementSeparator = "-- statement"

type Connection struct {
	connection.BaseConnection

	dsn      string
	identity models.Identity
	logger   logger.Logger
	db       *gorm.DB
}

var (
	_ connection.Connection = (*Connection)(nil)
	_ connection.Migrator   = (*Connection)(nil)
)

func New(p *connection.Config) *Connection {
	con := Connection{
		BaseConnection: connection.BaseConnection{
			Marshaler:   p.Marshaler,
			Unmarshaler: p.Unmarshaler,
		},
		dsn:      p.URL.String(),
		identity: p.Identity,
		logger:   p.Logger,
	}
	if con.logger == nil {
		con.logger = logger.Nop()
	}
	return &con
}

// NewWithDB wraps an already opened database.
func NewWithDB(db *gorm.DB, p *connection.Config) *Connection {
	con := New(p)
	con.db = db
	return con
}

func (c *Connection) Connect(ctx context.Context) error {
	if err := c.PreConnectionChecks(); err != nil {
		return err
	}

	if c.db == nil {
		if c.dsn == "" {
			return constants.ErrNoBaseURL
		}
		db, err := gorm.Open(postgres.Open(c.dsn), &gorm.Config{
			Logger: gormlogger.Discard,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		c.db = db
	}

	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return convertError(sqlDB.PingContext(ctx))
}

func (c *Connection) Close(ctx context.Context) error {
	if c.db == nil {
		return nil
	}
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (c *Connection) GetUnmarshaler() codec.Unmarshaler {
	return c.Unmarshaler
}

// Migrate creates the tables and the adjust_stock function when missing.
func (c *Connection) Migrate(ctx context.Context) error {
	if c.db == nil {
		return constants.ErrMethodNotAvailable
	}
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, stmt := range strings.Split(schemaSQL, statementSeparator) {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			if err := tx.Exec(stmt).Error; err != nil {
				return convertError(err)
			}
		}
		return nil
	})
}

// Select reads the page and the count inside one read-only snapshot.
func (c *Connection) Select(ctx context.Context, q *query.SelectQuery) (*connection.SelectResult, error) {
	selectSQL, selectArgs, err := q.Build()
	if err != nil {
		return nil, err
	}
	countSQL, countArgs, err := q.BuildCount()
	if err != nil {
		return nil, err
	}
	if c.db == nil {
		return nil, constants.ErrMethodNotAvailable
	}

	rows := make([]map[string]any, 0)
	var count int64
	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Raw(selectSQL, selectArgs...).Scan(&rows).Error; err != nil {
			return err
		}
		return tx.Raw(countSQL, countArgs...).Scan(&count).Error
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, convertError(err)
	}

	data, err := c.Marshaler.Marshal(rows)
	if err != nil {
		return nil, err
	}
	return &connection.SelectResult{Rows: data, Count: count}, nil
}

// Insert ignores nested objects: embedded resources are read-only.
func (c *Connection) Insert(ctx context.Context, table string, record any) ([]byte, error) {
	row, err := c.toRow(record)
	if err != nil {
		return nil, err
	}
	return c.exec(ctx, query.Insert(table, row))
}

func (c *Connection) Update(ctx context.Context, table string, id int64, patch any) ([]byte, error) {
	row, err := c.toRow(patch)
	if err != nil {
		return nil, err
	}
	delete(row, constants.IDColumn)
	return c.exec(ctx, query.Update(table, id, row))
}

func (c *Connection) Upsert(ctx context.Context, table string, record any) ([]byte, error) {
	row, err := c.toRow(record)
	if err != nil {
		return nil, err
	}
	return c.exec(ctx, query.Upsert(table, row))
}

// Call runs fn with named arguments and returns its result as JSON.
func (c *Connection) Call(ctx context.Context, fn string, args map[string]any) ([]byte, error) {
	stmt, vars, err := query.Call(fn, args).Build()
	if err != nil {
		return nil, err
	}
	if c.db == nil {
		return nil, constants.ErrMethodNotAvailable
	}

	var rows []map[string]any
	if err := c.db.WithContext(ctx).Raw(stmt, vars...).Scan(&rows).Error; err != nil {
		return nil, convertError(err)
	}
	if len(rows) == 0 {
		return []byte("null"), nil
	}
	return c.Marshaler.Marshal(rows[0]["result"])
}

// Session returns the configured identity. There is no session without one.
func (c *Connection) Session(ctx context.Context) (*connection.Session, error) {
	if c.identity.IsZero() {
		return nil, nil
	}
	return &connection.Session{Identity: c.identity}, nil
}

func (c *Connection) exec(ctx context.Context, q query.Query) ([]byte, error) {
	stmt, vars, err := q.Build()
	if err != nil {
		return nil, err
	}
	if c.db == nil {
		return nil, constants.ErrMethodNotAvailable
	}

	rows := make([]map[string]any, 0, 1)
	if err := c.db.WithContext(ctx).Raw(stmt, vars...).Scan(&rows).Error; err != nil {
		return nil, convertError(err)
	}
	return c.Marshaler.Marshal(rows)
}

func (c *Connection) toRow(v any) (query.Row, error) {
	row, err := connection.ToRow(c.Marshaler, c.Unmarshaler, v)
	if err != nil {
		return nil, err
	}
	return normalizeRow(row), nil
}

// normalizeRow drops nested objects and turns whole JSON numbers back into
// integers so they bind to bigint and integer columns.
func normalizeRow(row query.Row) query.Row {
	out := make(query.Row, len(row))
	for k, v := range row {
		switch val := v.(type) {
		case map[string]any, []any:
			continue
		case float64:
			if val == math.Trunc(val) && math.Abs(val) < 1<<53 {
				out[k] = int64(val)
				continue
			}
		}
		out[k] = v
	}
	return out
}

// convertError turns a Postgres error into a *connection.RemoteError keeping
// the server's message.
func convertError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &connection.RemoteError{
			Code:    pgErr.Code,
			Message: pgErr.Message,
			Details: pgErr.Detail,
			Hint:    pgErr.Hint,
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", constants.ErrTimeout, err)
	}
	return err
}
