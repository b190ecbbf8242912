package postgres

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medkit/medinventory/pkg/connection"
	"github.com/medkit/medinventory/pkg/constants"
	"github.com/medkit/medinventory/pkg/models"
	"github.com/medkit/medinventory/pkg/query"
)

func newTestConnection(t *testing.T, dsn string) *Connection {
	t.Helper()
	u, err := url.Parse(dsn)
	require.NoError(t, err)
	cfg := connection.NewConfig(u)
	cfg.Identity = "6ba7b810-9dad-11d1-80b4-00c04fd430c8"
	return New(cfg)
}

func TestConvertError(t *testing.T) {
	err := convertError(fmt.Errorf("exec: %w", &pgconn.PgError{
		Code:    "P0001",
		Message: "insufficient stock for inventory row 3",
		Hint:    "",
	}))

	var remote *connection.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "P0001", remote.Code)
	assert.Equal(t, "insufficient stock for inventory row 3", err.Error())

	assert.NoError(t, convertError(nil))
	assert.ErrorIs(t, convertError(context.DeadlineExceeded), constants.ErrTimeout)

	plain := errors.New("connection refused")
	assert.Same(t, plain, convertError(plain))
}

func TestNormalizeRow(t *testing.T) {
	row := normalizeRow(query.Row{
		"id":         float64(4),
		"quantity":   float64(-2),
		"ratio":      0.5,
		"name":       "Gauze",
		"supplies":   map[string]any{"name": "Gauze"},
		"is_deleted": false,
		"expiry":     nil,
	})

	assert.Equal(t, query.Row{
		"id":         int64(4),
		"quantity":   int64(-2),
		"ratio":      0.5,
		"name":       "Gauze",
		"is_deleted": false,
		"expiry":     nil,
	}, row)
}

func TestSchemaStatements(t *testing.T) {
	var stmts []string
	for _, s := range strings.Split(schemaSQL, statementSeparator) {
		if strings.TrimSpace(s) != "" {
			stmts = append(stmts, s)
		}
	}
	require.Len(t, stmts, 7)
	assert.Contains(t, stmts[len(stmts)-1], "FUNCTION adjust_stock(p_inventory_id bigint, p_delta integer, p_user_id uuid)")
	assert.Contains(t, stmts[len(stmts)-1], "quantity + p_delta >= 0")
}

func TestSession_fixedIdentity(t *testing.T) {
	c := newTestConnection(t, "postgres://localhost:5432/medinv")

	s, err := c.Session(context.Background())
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, models.Identity("6ba7b810-9dad-11d1-80b4-00c04fd430c8"), s.Identity)

	c.identity = ""
	s, err = c.Session(context.Background())
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestNotConnected(t *testing.T) {
	ctx := context.Background()
	c := newTestConnection(t, "postgres://localhost:5432/medinv")

	_, err := c.Select(ctx, query.Select().From("supplies"))
	require.ErrorIs(t, err, constants.ErrMethodNotAvailable)

	_, err = c.Select(ctx, query.Select("supplies(name)").From("inventory"))
	require.ErrorIs(t, err, constants.ErrUnsupportedProjection)

	_, err = c.Update(ctx, "supplies", 1, map[string]any{"id": 1})
	require.ErrorIs(t, err, constants.ErrEmptyPatch)

	require.ErrorIs(t, c.Migrate(ctx), constants.ErrMethodNotAvailable)
	require.NoError(t, c.Close(ctx))
}
