package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medkit/medinventory/pkg/constants"
)

func TestSelect(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name     string
		query    *SelectQuery
		wantSQL  string
		wantArgs []any
	}{
		{
			name:    "select all",
			query:   Select().From("supplies"),
			wantSQL: `SELECT * FROM "supplies"`,
		},
		{
			name:    "select star",
			query:   Select("*").From("supplies"),
			wantSQL: `SELECT * FROM "supplies"`,
		},
		{
			name:    "select columns",
			query:   Select("id", "quantity").From("inventory"),
			wantSQL: `SELECT "id", "quantity" FROM "inventory"`,
		},
		{
			name:     "select with where equals",
			query:    Select().From("logs").Where(Where().Eq("is_deleted", false).Eq("user_id", "u1")),
			wantSQL:  `SELECT * FROM "logs" WHERE "is_deleted" = ? AND "user_id" = ?`,
			wantArgs: []any{false, "u1"},
		},
		{
			name:     "select page ordered by id",
			query:    Select().From("supplies").OrderBy("id").Range(20, 29),
			wantSQL:  `SELECT * FROM "supplies" ORDER BY "id" ASC LIMIT 10 OFFSET 20`,
			wantArgs: nil,
		},
		{
			name:     "expiry partition",
			query:    Select().From("inventory").Where(Where().Eq("is_deleted", false).Lt("expiry_date", now)).OrderBy("id"),
			wantSQL:  `SELECT * FROM "inventory" WHERE "is_deleted" = ? AND "expiry_date" < ? ORDER BY "id" ASC`,
			wantArgs: []any{false, now},
		},
		{
			name:    "null checks",
			query:   Select().From("inventory").Where(Where().IsNull("expiry_date").NotNull("supply_id")),
			wantSQL: `SELECT * FROM "inventory" WHERE "expiry_date" IS NULL AND "supply_id" IS NOT NULL`,
		},
		{
			name:     "in list",
			query:    Select().From("inventory").Where(Where().In("id", int64(1), int64(2))),
			wantSQL:  `SELECT * FROM "inventory" WHERE "id" IN (?, ?)`,
			wantArgs: []any{int64(1), int64(2)},
		},
		{
			name:    "empty in list",
			query:   Select().From("inventory").Where(Where().In("id")),
			wantSQL: `SELECT * FROM "inventory" WHERE FALSE`,
		},
		{
			name:     "between and desc",
			query:    Select().From("logs").Where(Where().Between("quantity", -5, 5)).OrderByDesc("created_at"),
			wantSQL:  `SELECT * FROM "logs" WHERE "quantity" >= ? AND "quantity" <= ? ORDER BY "created_at" DESC`,
			wantArgs: []any{-5, 5},
		},
		{
			name:     "where calls are anded",
			query:    Select().From("supplies").Where(Where().Neq("type", "pill")).Where(nil).Where(Where().Gt("quantity_in_pack", 1)),
			wantSQL:  `SELECT * FROM "supplies" WHERE "type" <> ? AND "quantity_in_pack" > ?`,
			wantArgs: []any{"pill", 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := tt.query.Build()
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestSelect_BuildCount(t *testing.T) {
	q := Select("id").From("inventory").Where(Where().Eq("is_deleted", false)).OrderBy("id").Range(0, 9)

	sql, args, err := q.BuildCount()
	require.NoError(t, err)
	assert.Equal(t, `SELECT count(*) FROM "inventory" WHERE "is_deleted" = ?`, sql)
	assert.Equal(t, []any{false}, args)
}

func TestSelect_safety(t *testing.T) {
	tests := []struct {
		name  string
		query *SelectQuery
	}{
		{name: "table injection", query: Select().From(`supplies"; DROP TABLE logs; --`)},
		{name: "column injection", query: Select("id, secret").From("supplies")},
		{name: "filter column", query: Select().From("supplies").Where(Where().Eq("1=1 OR id", 1))},
		{name: "order column", query: Select().From("supplies").OrderBy("id desc")},
		{name: "upper case", query: Select().From("Supplies")},
		{name: "empty table", query: Select()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := tt.query.Build()
			require.ErrorIs(t, err, constants.ErrInvalidIdentifier)

			_, err = tt.query.Values()
			require.ErrorIs(t, err, constants.ErrInvalidIdentifier)
		})
	}

	_, _, err := Select().From("supplies").Range(5, 2).Build()
	require.Error(t, err)
}

func TestSelect_embedOnlyOverREST(t *testing.T) {
	q := Select("quantity", "supplies(name)").From("inventory")

	_, _, err := q.Build()
	require.ErrorIs(t, err, constants.ErrUnsupportedProjection)

	v, err := q.Values()
	require.NoError(t, err)
	assert.Equal(t, "quantity,supplies(name)", v.Get("select"))
}

func TestParseEmbed(t *testing.T) {
	e, ok := ParseEmbed("supplies(name,location)")
	require.True(t, ok)
	assert.Equal(t, Embed{Table: "supplies", Columns: []string{"name", "location"}}, e)

	e, ok = ParseEmbed("supplies(*)")
	require.True(t, ok)
	assert.Equal(t, []string{"*"}, e.Columns)

	for _, bad := range []string{"supplies", "supplies()", "supplies(name", "s(a b)"} {
		_, ok := ParseEmbed(bad)
		assert.False(t, ok, bad)
	}
}

func TestFilter_And(t *testing.T) {
	var nilFilter *Filter
	assert.True(t, nilFilter.Empty())
	assert.Nil(t, nilFilter.Conditions())

	a := Where().Eq("is_deleted", false)
	b := Where().Eq("user_id", "u1")
	both := a.And(b)
	assert.Len(t, both.Conditions(), 2)
	assert.Len(t, a.Conditions(), 1)
	assert.Len(t, nilFilter.And(b).Conditions(), 1)
}
