package medinventory

import (
	"context"
	"slices"
	"time"

	"github.com/medkit/medinventory/pkg/constants"
	"github.com/medkit/medinventory/pkg/query"
)

// FetchRow reads the row of table with the given id, soft-deleted or not.
// It returns nil and no error when there is no such row.
func FetchRow[T any](ctx context.Context, db *DB, table Table[T], id int64) (*T, error) {
	q := query.Select(table.describe().projection...).
		From(table.Name()).
		Where(query.Where().Eq(constants.IDColumn, id)).
		Range(0, 0)

	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	began := time.Now()
	res, err := db.conn.Select(ctx, q)
	if err != nil {
		return nil, db.observe("select_row", table.Name(), began, err)
	}

	rows, err := decodeRows[T](db, res.Rows)
	if err = db.observe("select_row", table.Name(), began, err); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// FetchRows reads the rows of table whose idColumn holds one of ids, in
// ascending id order. columns restricts the columns read, so fields of T
// outside it stay zero.
func FetchRows[T any](ctx context.Context, db *DB, table Table[T], idColumn string, ids []int64, columns ...string) ([]T, error) {
	if len(ids) == 0 {
		return []T{}, nil
	}
	if len(columns) == 0 {
		columns = table.describe().projection
	}

	values := make([]any, 0, len(ids))
	for _, id := range slices.Compact(slices.Sorted(slices.Values(ids))) {
		values = append(values, id)
	}

	q := query.Select(columns...).
		From(table.Name()).
		Where(query.Where().In(idColumn, values...)).
		OrderBy(constants.IDColumn)

	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	began := time.Now()
	res, err := db.conn.Select(ctx, q)
	if err != nil {
		return nil, db.observe("select_rows", table.Name(), began, err)
	}

	rows, err := decodeRows[T](db, res.Rows)
	if err = db.observe("select_rows", table.Name(), began, err); err != nil {
		return nil, err
	}
	return rows, nil
}
