// Package fakedb provides an in-memory store implementing connection.Connection
// for tests.
//
// It evaluates filters, ordering, windows and embedded projections the way
// PostgREST does, runs adjust_stock atomically, and can be told to fail or
// delay chosen requests through stub responses.
package fakedb

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/medkit/medinventory/internal/codec"
	"github.com/medkit/medinventory/pkg/connection"
	"github.com/medkit/medinventory/pkg/constants"
	"github.com/medkit/medinventory/pkg/models"
	"github.com/medkit/medinventory/pkg/query"
)

// Row is one stored record.
type Row = map[string]any

// DefaultTables are created by New.
var DefaultTables = []string{"supplies", "inventory", "logs", "crew"}

// defaultRelations maps an embeddable table to the foreign key column that
// references it.
var defaultRelations = map[string]string{
	"supplies":  "supply_id",
	"inventory": "inventory_id",
}

type table struct {
	rows   []Row
	nextID int64
}

// DB is an in-memory connection.Connection.
type DB struct {
	mu         sync.Mutex
	tables     map[string]*table
	relations  map[string]string
	session    *connection.Session
	sessionErr error
	stubs      []*stubState
	requests   []Request
	now        func() time.Time
	codec      codec.Codec
}

var _ connection.Connection = (*DB)(nil)

// New creates a store holding the given tables, or DefaultTables when none are named.
func New(tables ...string) *DB {
	if len(tables) == 0 {
		tables = DefaultTables
	}
	d := &DB{
		tables:    make(map[string]*table, len(tables)),
		relations: defaultRelations,
		now:       time.Now,
		codec:     codec.NewJSON(),
	}
	for _, t := range tables {
		d.tables[t] = &table{nextID: 1}
	}
	return d
}

// SetClock sets the clock used for created_at and log rows.
func (d *DB) SetClock(now func() time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.now = now
}

// SetSession sets the session reported by Session. Nil means signed out.
func (d *DB) SetSession(s *connection.Session) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.session = s
	d.sessionErr = nil
}

// SetSessionError makes Session fail with err.
func (d *DB) SetSessionError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sessionErr = err
}

// Seed inserts rows directly and returns their ids.
func (d *DB) Seed(tableName string, rows ...Row) []int64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	t := d.tables[tableName]
	if t == nil {
		t = &table{nextID: 1}
		d.tables[tableName] = t
	}

	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, d.insertLocked(t, normalizeRow(r)))
	}
	return ids
}

// Row returns a copy of the stored row with the given id.
func (d *DB) Row(tableName string, id int64) (Row, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	t := d.tables[tableName]
	if t == nil {
		return nil, false
	}
	if r := t.find(id); r != nil {
		return copyRow(r), true
	}
	return nil, false
}

// Rows returns copies of every stored row of a table in insertion order.
func (d *DB) Rows(tableName string) []Row {
	d.mu.Lock()
	defer d.mu.Unlock()

	t := d.tables[tableName]
	if t == nil {
		return nil
	}
	out := make([]Row, len(t.rows))
	for i, r := range t.rows {
		out[i] = copyRow(r)
	}
	return out
}

// Requests returns every request seen so far.
func (d *DB) Requests() []Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Request(nil), d.requests...)
}

// RequestCount counts the requests of one method.
func (d *DB) RequestCount(method Method) int {
	n := 0
	for _, r := range d.Requests() {
		if r.Method == method {
			n++
		}
	}
	return n
}

func (d *DB) Connect(ctx context.Context) error {
	return ctx.Err()
}

func (d *DB) Close(ctx context.Context) error {
	return nil
}

func (d *DB) GetUnmarshaler() codec.Unmarshaler {
	return d.codec
}

func (d *DB) Select(ctx context.Context, q *query.SelectQuery) (*connection.SelectResult, error) {
	if err := d.intercept(ctx, Request{Method: MethodSelect, Table: q.Table(), Query: q}); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	t, err := d.table(q.Table())
	if err != nil {
		return nil, err
	}

	conds := q.Filter().Conditions()
	matched := make([]Row, 0, len(t.rows))
	for _, r := range t.rows {
		if matchesAll(r, conds) {
			matched = append(matched, r)
		}
	}

	cols, desc := q.Ordering()
	if len(cols) > 0 {
		slices.SortStableFunc(matched, func(a, b Row) int {
			for i, c := range cols {
				cmp, _ := compare(a[c], b[c])
				if desc[i] {
					cmp = -cmp
				}
				if cmp != 0 {
					return cmp
				}
			}
			return 0
		})
	}

	count := int64(len(matched))
	if w, ok := q.Window(); ok {
		switch {
		case w.Start >= len(matched):
			matched = nil
		case w.End >= len(matched):
			matched = matched[w.Start:]
		default:
			matched = matched[w.Start : w.End+1]
		}
	}

	out := make([]Row, 0, len(matched))
	for _, r := range matched {
		out = append(out, d.project(r, q.Columns()))
	}

	data, err := d.codec.Marshal(out)
	if err != nil {
		return nil, err
	}
	return &connection.SelectResult{Rows: data, Count: count}, nil
}

func (d *DB) Insert(ctx context.Context, tableName string, record any) ([]byte, error) {
	if err := d.intercept(ctx, Request{Method: MethodInsert, Table: tableName}); err != nil {
		return nil, err
	}
	row, err := connection.ToRow(d.codec, d.codec, record)
	if err != nil {
		return nil, err
	}
	row = normalizeRow(row)

	d.mu.Lock()
	defer d.mu.Unlock()

	t, err := d.table(tableName)
	if err != nil {
		return nil, err
	}
	if id, ok := toInt(row[constants.IDColumn]); ok && t.find(id) != nil {
		return nil, duplicateKey(tableName, id)
	}

	id := d.insertLocked(t, row)
	return d.codec.Marshal([]Row{t.find(id)})
}

func (d *DB) Update(ctx context.Context, tableName string, id int64, patch any) ([]byte, error) {
	if err := d.intercept(ctx, Request{Method: MethodUpdate, Table: tableName, ID: id}); err != nil {
		return nil, err
	}
	set, err := connection.ToRow(d.codec, d.codec, patch)
	if err != nil {
		return nil, err
	}
	if len(set) == 0 {
		return nil, constants.ErrEmptyPatch
	}
	set = normalizeRow(set)

	d.mu.Lock()
	defer d.mu.Unlock()

	t, err := d.table(tableName)
	if err != nil {
		return nil, err
	}
	r := t.find(id)
	if r == nil {
		return []byte("[]"), nil
	}
	for k, v := range set {
		if k == constants.IDColumn {
			continue
		}
		r[k] = v
	}
	return d.codec.Marshal([]Row{r})
}

func (d *DB) Upsert(ctx context.Context, tableName string, record any) ([]byte, error) {
	if err := d.intercept(ctx, Request{Method: MethodUpsert, Table: tableName}); err != nil {
		return nil, err
	}
	row, err := connection.ToRow(d.codec, d.codec, record)
	if err != nil {
		return nil, err
	}
	row = normalizeRow(row)

	d.mu.Lock()
	defer d.mu.Unlock()

	t, err := d.table(tableName)
	if err != nil {
		return nil, err
	}
	if id, ok := toInt(row[constants.IDColumn]); ok {
		if r := t.find(id); r != nil {
			for k, v := range row {
				r[k] = v
			}
			return d.codec.Marshal([]Row{r})
		}
	}

	id := d.insertLocked(t, row)
	return d.codec.Marshal([]Row{t.find(id)})
}

// Call runs a server-side function. Only adjust_stock exists.
func (d *DB) Call(ctx context.Context, fn string, args map[string]any) ([]byte, error) {
	if err := d.intercept(ctx, Request{Method: MethodCall, Table: fn, Args: args}); err != nil {
		return nil, err
	}
	if fn != constants.AdjustStockFunction {
		return nil, &connection.RemoteError{
			Code:    "PGRST202",
			Message: fmt.Sprintf("Could not find the function public.%s in the schema cache", fn),
			Status:  404,
		}
	}

	inventoryID, ok := toInt(args[constants.AdjustStockInventoryParam])
	if !ok {
		return nil, invalidArgument(constants.AdjustStockInventoryParam, args)
	}
	delta, ok := toInt(args[constants.AdjustStockDeltaParam])
	if !ok {
		return nil, invalidArgument(constants.AdjustStockDeltaParam, args)
	}
	user := fmt.Sprint(normalize(args[constants.AdjustStockIdentityParam]))

	d.mu.Lock()
	defer d.mu.Unlock()

	inv, err := d.table("inventory")
	if err != nil {
		return nil, err
	}
	r := inv.find(inventoryID)
	if r == nil {
		return nil, raise(fmt.Sprintf("inventory row %d not found", inventoryID))
	}
	qty, _ := toInt(r["quantity"])
	if qty+delta < 0 {
		return nil, raise(fmt.Sprintf("insufficient stock for inventory row %d", inventoryID))
	}
	r["quantity"] = qty + delta

	logs, err := d.table("logs")
	if err != nil {
		return nil, err
	}
	d.insertLocked(logs, Row{
		"inventory_id": inventoryID,
		"user_id":      user,
		"quantity":     delta,
		"is_deleted":   false,
	})

	return []byte(strconv.FormatInt(qty+delta, 10)), nil
}

func (d *DB) Session(ctx context.Context) (*connection.Session, error) {
	if err := d.intercept(ctx, Request{Method: MethodSession}); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.sessionErr != nil {
		return nil, d.sessionErr
	}
	if d.session == nil {
		return nil, nil
	}
	s := *d.session
	return &s, nil
}

func (d *DB) table(name string) (*table, error) {
	t := d.tables[name]
	if t == nil {
		return nil, &connection.RemoteError{
			Code:    "42P01",
			Message: fmt.Sprintf(`relation "public.%s" does not exist`, name),
			Status:  404,
		}
	}
	return t, nil
}

// insertLocked stores row, filling id and created_at, and returns the id.
func (d *DB) insertLocked(t *table, row Row) int64 {
	id, ok := toInt(row[constants.IDColumn])
	if !ok || id == 0 {
		id = t.nextID
	}
	if id >= t.nextID {
		t.nextID = id + 1
	}
	row[constants.IDColumn] = id
	if row[constants.CreatedAtColumn] == nil {
		row[constants.CreatedAtColumn] = d.now().UTC()
	}
	t.rows = append(t.rows, row)
	return id
}

func (t *table) find(id int64) Row {
	for _, r := range t.rows {
		if rid, ok := toInt(r[constants.IDColumn]); ok && rid == id {
			return r
		}
	}
	return nil
}

// project keeps the requested columns and resolves embedded resources.
func (d *DB) project(r Row, columns []string) Row {
	if len(columns) == 0 {
		return copyRow(r)
	}

	out := make(Row, len(columns))
	for _, c := range columns {
		if c == query.AllColumns {
			for k, v := range r {
				out[k] = v
			}
			continue
		}
		e, ok := query.ParseEmbed(c)
		if !ok {
			out[c] = r[c]
			continue
		}

		out[e.Table] = nil
		fk, ok := d.relations[e.Table]
		if !ok {
			continue
		}
		id, ok := toInt(r[fk])
		if !ok {
			continue
		}
		if t := d.tables[e.Table]; t != nil {
			if related := t.find(id); related != nil {
				if len(e.Columns) == 1 && e.Columns[0] == "*" {
					out[e.Table] = copyRow(related)
				} else {
					out[e.Table] = d.project(related, e.Columns)
				}
			}
		}
	}
	return out
}

func matchesAll(r Row, conds []query.Condition) bool {
	for _, c := range conds {
		if !matches(r, c) {
			return false
		}
	}
	return true
}

func matches(r Row, c query.Condition) bool {
	v := r[c.Column]

	var ok bool
	switch c.Op {
	case query.OpIs:
		ok = v == nil
	case query.OpIn:
		values, _ := c.Value.([]any)
		for _, want := range values {
			if cmp, comparable := compare(v, want); comparable && cmp == 0 {
				ok = true
				break
			}
		}
	default:
		if v == nil {
			return false
		}
		cmp, comparable := compare(v, c.Value)
		if !comparable {
			return false
		}
		switch c.Op {
		case query.OpEq:
			ok = cmp == 0
		case query.OpNeq:
			ok = cmp != 0
		case query.OpGt:
			ok = cmp > 0
		case query.OpGte:
			ok = cmp >= 0
		case query.OpLt:
			ok = cmp < 0
		case query.OpLte:
			ok = cmp <= 0
		}
	}

	if c.Not {
		return !ok
	}
	return ok
}

// compare orders two stored or filter values. Numbers, timestamps and booleans
// compare by value even when one side is the string PostgREST sent.
func compare(a, b any) (int, bool) {
	a, b = normalize(a), normalize(b)
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0, true
		case a == nil:
			return -1, false
		default:
			return 1, false
		}
	}

	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			}
			return 0, true
		}
	}

	if at, ok := toTime(a); ok {
		if bt, ok := toTime(b); ok {
			// a date column casts the other side to a date
			if isDate(a) || isDate(b) {
				at, bt = truncateDay(at), truncateDay(bt)
			}
			return at.Compare(bt), true
		}
	}

	if ab, ok := toBool(a); ok {
		if bb, ok := toBool(b); ok {
			switch {
			case ab == bb:
				return 0, true
			case !ab:
				return -1, true
			}
			return 1, true
		}
	}

	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b)), true
}

func normalize(v any) any {
	switch val := v.(type) {
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1<<53 {
			return int64(val)
		}
		return val
	case time.Time:
		return val.UTC()
	case models.Timestamp:
		return val.UTC()
	case *models.Timestamp:
		if val == nil {
			return nil
		}
		return val.UTC()
	case models.Identity:
		return string(val)
	}
	return v
}

func normalizeRow(r Row) Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = normalize(v)
	}
	return out
}

func copyRow(r Row) Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func toInt(v any) (int64, bool) {
	switch val := normalize(v).(type) {
	case int64:
		return val, true
	case string:
		n, err := strconv.ParseInt(val, 10, 64)
		return n, err == nil
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case int64:
		return float64(val), true
	case float64:
		return val, true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	}
	return 0, false
}

func toTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, true
	case string:
		ts, err := models.ParseTimestamp(val)
		return ts.Time, err == nil
	}
	return time.Time{}, false
}

// isDate reports whether v is a date without a time of day, as a date column
// stores it.
func isDate(v any) bool {
	str, ok := v.(string)
	if !ok {
		return false
	}
	_, err := time.Parse(time.DateOnly, str)
	return err == nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func toBool(v any) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case string:
		b, err := strconv.ParseBool(val)
		return b, err == nil
	}
	return false, false
}

func raise(message string) *connection.RemoteError {
	return &connection.RemoteError{Code: "P0001", Message: message, Status: 400}
}

func duplicateKey(tableName string, id int64) *connection.RemoteError {
	return &connection.RemoteError{
		Code:    "23505",
		Message: fmt.Sprintf(`duplicate key value violates unique constraint "%s_pkey"`, tableName),
		Details: fmt.Sprintf("Key (id)=(%d) already exists.", id),
		Status:  409,
	}
}

func invalidArgument(name string, args map[string]any) *connection.RemoteError {
	return &connection.RemoteError{
		Code:    "22023",
		Message: fmt.Sprintf("invalid value for %s: %v", name, args[name]),
		Status:  400,
	}
}
