package medinventory

import (
	"context"
	"fmt"
	"time"

	"github.com/medkit/medinventory/pkg/constants"
	"github.com/medkit/medinventory/pkg/models"
	"github.com/medkit/medinventory/pkg/query"
)

// PartitionResult is one page of a partition. Count is the number of rows the
// partition holds in total, independent of the page size.
type PartitionResult[T any] struct {
	Data  []T   `json:"data"`
	Count int64 `json:"count"`
}

func emptyResult[T any]() PartitionResult[T] {
	return PartitionResult[T]{Data: []T{}}
}

// FetchPage reads one page of table ordered by ascending id.
//
// projection lists the columns to read, nil reads all of them. predicate may be
// nil. Rows matching nothing give an empty result, not an error. The keywords
// of opts are not applied. Invalid opts fail with constants.ErrInvalidOptions
// before anything is sent, not with a QueryError.
func FetchPage[T any](
	ctx context.Context,
	db *DB,
	table Table[T],
	opts models.DataFetchOptions,
	projection []string,
	predicate *query.Filter,
) (PartitionResult[T], error) {
	if err := opts.Validate(); err != nil {
		return emptyResult[T](), err
	}

	start, end := opts.Range()
	q := query.Select(projection...).
		From(table.Name()).
		Where(predicate).
		OrderBy(constants.IDColumn).
		Range(start, end)

	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	began := time.Now()
	res, err := db.conn.Select(ctx, q)
	if err != nil {
		return emptyResult[T](), db.observe("select", table.Name(), began, err)
	}

	data, err := decodeRows[T](db, res.Rows)
	if err != nil {
		return emptyResult[T](), db.observe("select", table.Name(), began, err)
	}

	db.logger.Debug("page fetched", "table", table.Name(), "start", start, "end", end, "rows", len(data), "count", res.Count)
	_ = db.observe("select", table.Name(), began, nil)

	return PartitionResult[T]{Data: data, Count: res.Count}, nil
}

func decodeRows[T any](db *DB, raw []byte) ([]T, error) {
	rows := []T{}
	if len(raw) == 0 {
		return rows, nil
	}
	if err := db.conn.GetUnmarshaler().Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("%w: %w", constants.ErrInvalidResponse, err)
	}
	if rows == nil {
		rows = []T{}
	}
	return rows, nil
}
