package medinventory

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/medkit/medinventory/pkg/models"
	"github.com/medkit/medinventory/pkg/query"
)

// State is shared by every partition of one read. Err is the failure of the
// first partition that failed, nil when all succeeded. Loading is true only
// while the read is in flight, so it is always false on a returned state.
type State struct {
	Loading bool  `json:"loading"`
	Err     error `json:"-"`
}

// Message returns the failure message, or "" when the read succeeded.
func (s State) Message() string {
	if s.Err == nil {
		return ""
	}
	return s.Err.Error()
}

// EntityState is the result of reading a plain table.
type EntityState[T any] struct {
	State
	Active PartitionResult[T] `json:"active"`
}

// OwnedEntityState is the result of reading an owned table. Personal holds the
// rows owned by the session identity and is empty without a session.
type OwnedEntityState[T any] struct {
	State
	Active   PartitionResult[T] `json:"active"`
	Personal PartitionResult[T] `json:"personal"`
}

// ExpirableEntityState is the result of reading an expirable table. Active
// rows expire at or after the time of the read, Expired rows before it, and
// Undated rows have no expiry date.
type ExpirableEntityState[T any] struct {
	State
	Active  PartitionResult[T] `json:"active"`
	Expired PartitionResult[T] `json:"expired"`
	Undated PartitionResult[T] `json:"undated"`
}

// partition is one predicate of a read. A skipped partition keeps its empty
// result and sends nothing.
type partition struct {
	name   string
	filter *query.Filter
	skip   bool
}

// FetchPlain reads the active rows of table.
func FetchPlain[T any](ctx context.Context, db *DB, table PlainTable[T], opts models.DataFetchOptions) *EntityState[T] {
	state := &EntityState[T]{State: State{Loading: true}}

	results, err := fetchPartitions[T](ctx, db, table, opts, []partition{
		{name: "active", filter: baseFilter(table.d)},
	})

	state.Active = results[0]
	state.Err = err
	state.Loading = false
	return state
}

// FetchOwned reads the active rows of table and the rows owned by the session
// identity.
func FetchOwned[T any](ctx context.Context, db *DB, table OwnedTable[T], opts models.DataFetchOptions) *OwnedEntityState[T] {
	state := &OwnedEntityState[T]{State: State{Loading: true}}

	identity, ok := db.session.CurrentIdentity(ctx)
	results, err := fetchPartitions[T](ctx, db, table, opts, []partition{
		{name: "active", filter: baseFilter(table.d)},
		{name: "personal", filter: baseFilter(table.d).Eq(table.d.owner, identity.String()), skip: !ok},
	})

	state.Active, state.Personal = results[0], results[1]
	state.Err = err
	state.Loading = false
	return state
}

// FetchExpirable reads table split by expiry date against a single now taken
// from the clock of db.
func FetchExpirable[T any](ctx context.Context, db *DB, table ExpirableTable[T], opts models.DataFetchOptions) *ExpirableEntityState[T] {
	state := &ExpirableEntityState[T]{State: State{Loading: true}}

	now := db.now().UTC()
	results, err := fetchPartitions[T](ctx, db, table, opts, []partition{
		{name: "active", filter: baseFilter(table.d).Gte(table.d.expiry, now)},
		{name: "expired", filter: baseFilter(table.d).Lt(table.d.expiry, now)},
		{name: "undated", filter: baseFilter(table.d).IsNull(table.d.expiry)},
	})

	state.Active, state.Expired, state.Undated = results[0], results[1], results[2]
	state.Err = err
	state.Loading = false
	return state
}

// baseFilter hides soft-deleted rows on tables that have the flag.
func baseFilter(d descriptor) *query.Filter {
	f := query.Where()
	if d.softDelete != "" {
		f = f.Eq(d.softDelete, false)
	}
	return f
}

// fetchPartitions returns one result per partition and the failure of the
// first partition that failed. That partition and every later one keep the
// empty result.
func fetchPartitions[T any](ctx context.Context, db *DB, table Table[T], opts models.DataFetchOptions, parts []partition) ([]PartitionResult[T], error) {
	results := make([]PartitionResult[T], len(parts))
	for i := range results {
		results[i] = emptyResult[T]()
	}

	if db.parallel && len(parts) > 1 {
		return fetchPartitionsParallel(ctx, db, table, opts, parts, results)
	}

	projection := table.describe().projection
	for i, p := range parts {
		if p.skip {
			continue
		}
		res, err := FetchPage(ctx, db, table, opts, projection, p.filter)
		if err != nil {
			db.logger.Debug("partition failed, skipping the rest", "table", table.Name(), "partition", p.name)
			return results, err
		}
		results[i] = res
	}
	return results, nil
}

func fetchPartitionsParallel[T any](ctx context.Context, db *DB, table Table[T], opts models.DataFetchOptions, parts []partition, results []PartitionResult[T]) ([]PartitionResult[T], error) {
	projection := table.describe().projection
	fetched := make([]PartitionResult[T], len(parts))
	errs := make([]error, len(parts))

	began := time.Now()
	var g errgroup.Group
	for i, p := range parts {
		if p.skip {
			continue
		}
		g.Go(func() error {
			fetched[i], errs[i] = FetchPage(ctx, db, table, opts, projection, p.filter)
			return errs[i]
		})
	}

	if err := g.Wait(); err == nil {
		for i, p := range parts {
			if !p.skip {
				results[i] = fetched[i]
			}
		}
		return results, nil
	}

	for i, err := range errs {
		if err != nil {
			db.logger.Debug("partition failed", "table", table.Name(), "partition", parts[i].name, "elapsed", time.Since(began))
			return results, err
		}
		if !parts[i].skip {
			results[i] = fetched[i]
		}
	}
	return results, nil
}
