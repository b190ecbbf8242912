package medinventory

import (
	"context"
	"fmt"
	"time"

	"github.com/medkit/medinventory/pkg/constants"
	"github.com/medkit/medinventory/pkg/models"
	"github.com/medkit/medinventory/pkg/query"
)

type idRow struct {
	ID int64 `json:"id"`
}

// Insert writes record into table and returns the id the store assigned.
// Equal records are not deduplicated.
func Insert[T any](ctx context.Context, db *DB, table Table[T], record T) (int64, error) {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	began := time.Now()
	data, err := db.conn.Insert(ctx, table.Name(), record)
	if err != nil {
		return 0, db.observe("insert", table.Name(), began, err)
	}

	id, err := firstID(db, data, constants.ErrNoInsertedRow)
	return id, db.observe("insert", table.Name(), began, err)
}

// UpdateExisting applies patch to the row of table with the given id. The row
// must exist. patch is a query.Row or map for a partial update; a struct
// writes every column it encodes.
func UpdateExisting[T any](ctx context.Context, db *DB, table Table[T], id int64, patch any) error {
	return update(ctx, db, "update", table, id, patch)
}

// UpsertRecord writes record into table, replacing the row with the same id
// when there is one, and returns the id of the written row.
func UpsertRecord[T any](ctx context.Context, db *DB, table Table[T], record T) (int64, error) {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	began := time.Now()
	data, err := db.conn.Upsert(ctx, table.Name(), record)
	if err != nil {
		return 0, db.observe("upsert", table.Name(), began, err)
	}

	id, err := firstID(db, data, constants.ErrNoInsertedRow)
	return id, db.observe("upsert", table.Name(), began, err)
}

// SoftDelete flags the row of table as deleted. Deleting a row twice succeeds.
func (db *DB) SoftDelete(ctx context.Context, table TableRef, id int64) error {
	d := table.describe()
	if d.softDelete == "" {
		return db.observe("soft_delete", table.Name(), time.Now(), constants.ErrNotSoftDeletable)
	}
	return update(ctx, db, "soft_delete", table, id, query.Row{d.softDelete: true})
}

// AdjustStock changes the quantity of an inventory row by delta on behalf of
// the signed in user, recording the change in the usage log. The session is
// re-read once when it has no identity.
func (db *DB) AdjustStock(ctx context.Context, inventoryID int64, delta int) error {
	identity, ok := db.session.requireIdentity(ctx)
	if !ok {
		return db.observe("adjust_stock", Inventory.Name(), time.Now(), constants.ErrNoSession)
	}
	return db.AdjustStockAs(ctx, inventoryID, delta, identity)
}

// AdjustStockAs is AdjustStock for an explicit identity. The store checks that
// the row exists and that its quantity stays non-negative, and writes the
// quantity and the usage log row together.
func (db *DB) AdjustStockAs(ctx context.Context, inventoryID int64, delta int, identity models.Identity) error {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	began := time.Now()
	_, err := db.conn.Call(ctx, constants.AdjustStockFunction, map[string]any{
		constants.AdjustStockInventoryParam: inventoryID,
		constants.AdjustStockDeltaParam:     delta,
		constants.AdjustStockIdentityParam:  identity.String(),
	})
	if err == nil {
		db.logger.Info("stock adjusted", "inventory_id", inventoryID, "delta", delta, "user_id", identity)
	}
	return db.observe("adjust_stock", Inventory.Name(), began, err)
}

func update(ctx context.Context, db *DB, op string, table TableRef, id int64, patch any) error {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	began := time.Now()
	data, err := db.conn.Update(ctx, table.Name(), id, patch)
	if err != nil {
		return db.observe(op, table.Name(), began, err)
	}

	_, err = firstID(db, data, fmt.Errorf("%w: %s id %d", constants.ErrNoRow, table.Name(), id))
	return db.observe(op, table.Name(), began, err)
}

// firstID returns the id of the first row in data, or errNone when data holds
// no row.
func firstID(db *DB, data []byte, errNone error) (int64, error) {
	rows := []idRow{}
	if len(data) > 0 {
		if err := db.conn.GetUnmarshaler().Unmarshal(data, &rows); err != nil {
			return 0, fmt.Errorf("%w: %w", constants.ErrInvalidResponse, err)
		}
	}
	if len(rows) == 0 {
		return 0, errNone
	}
	return rows[0].ID, nil
}
