package query

import (
	"fmt"
	"slices"
	"strings"

	"github.com/medkit/medinventory/pkg/constants"
)

// Row is a record flattened to its columns.
type Row map[string]any

// sortedColumns returns the columns of r in lexical order so the generated
// SQL is stable.
func (r Row) sortedColumns() ([]string, error) {
	cols := make([]string, 0, len(r))
	for c := range r {
		if err := checkIdent("column", c); err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	slices.Sort(cols)
	return cols, nil
}

// InsertQuery inserts one row and returns it.
type InsertQuery struct {
	table      string
	row        Row
	onConflict string
}

// Insert creates an INSERT of row into table.
func Insert(table string, row Row) *InsertQuery {
	return &InsertQuery{table: table, row: row}
}

// Upsert creates an INSERT that replaces the columns of an existing row with
// the same id.
func Upsert(table string, row Row) *InsertQuery {
	return &InsertQuery{table: table, row: row, onConflict: constants.IDColumn}
}

// Build returns the SQL and arguments for the query.
func (q *InsertQuery) Build() (string, []any, error) {
	if err := checkIdent("table", q.table); err != nil {
		return "", nil, err
	}
	cols, err := q.row.sortedColumns()
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s", QuoteIdent(q.table))
	if len(cols) == 0 {
		b.WriteString(" DEFAULT VALUES RETURNING *")
		return b.String(), nil, nil
	}

	args := make([]any, 0, len(cols))
	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = QuoteIdent(c)
		marks[i] = "?"
		args = append(args, SQLValue(q.row[c]))
	}
	fmt.Fprintf(&b, " (%s) VALUES (%s)", strings.Join(quoted, ", "), strings.Join(marks, ", "))

	if q.onConflict != "" {
		if _, ok := q.row[q.onConflict]; ok {
			fmt.Fprintf(&b, " ON CONFLICT (%s) DO UPDATE SET ", QuoteIdent(q.onConflict))
			n := 0
			for _, c := range cols {
				if c == q.onConflict {
					continue
				}
				if n > 0 {
					b.WriteString(", ")
				}
				fmt.Fprintf(&b, "%s = EXCLUDED.%s", QuoteIdent(c), QuoteIdent(c))
				n++
			}
			if n == 0 {
				fmt.Fprintf(&b, "%s = EXCLUDED.%s", QuoteIdent(q.onConflict), QuoteIdent(q.onConflict))
			}
		}
	}

	b.WriteString(" RETURNING *")
	return b.String(), args, nil
}

func (q *InsertQuery) String() string {
	return buildString(q)
}

// UpdateQuery updates the columns of the row with the given id.
type UpdateQuery struct {
	table string
	id    int64
	set   Row
}

// Update creates an UPDATE of row id in table.
func Update(table string, id int64, set Row) *UpdateQuery {
	return &UpdateQuery{table: table, id: id, set: set}
}

// Build returns the SQL and arguments for the query.
func (q *UpdateQuery) Build() (string, []any, error) {
	if err := checkIdent("table", q.table); err != nil {
		return "", nil, err
	}
	cols, err := q.set.sortedColumns()
	if err != nil {
		return "", nil, err
	}
	if len(cols) == 0 {
		return "", nil, constants.ErrEmptyPatch
	}

	var b strings.Builder
	fmt.Fprintf(&b, "UPDATE %s SET ", QuoteIdent(q.table))
	args := make([]any, 0, len(cols)+1)
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s = ?", QuoteIdent(c))
		args = append(args, SQLValue(q.set[c]))
	}
	fmt.Fprintf(&b, " WHERE %s = ? RETURNING *", QuoteIdent(constants.IDColumn))
	args = append(args, q.id)
	return b.String(), args, nil
}

func (q *UpdateQuery) String() string {
	return buildString(q)
}

// CallQuery invokes a server-side function with named arguments.
type CallQuery struct {
	fn   string
	args Row
}

// Call creates a call of fn.
func Call(fn string, args Row) *CallQuery {
	return &CallQuery{fn: fn, args: args}
}

// Build returns the SQL and arguments for the query. The function result is
// returned in a column named result.
func (q *CallQuery) Build() (string, []any, error) {
	if err := checkIdent("function", q.fn); err != nil {
		return "", nil, err
	}
	names, err := q.args.sortedColumns()
	if err != nil {
		return "", nil, err
	}

	params := make([]string, len(names))
	args := make([]any, len(names))
	for i, n := range names {
		params[i] = fmt.Sprintf("%s => ?", n)
		args[i] = SQLValue(q.args[n])
	}
	return fmt.Sprintf("SELECT %s(%s) AS result", QuoteIdent(q.fn), strings.Join(params, ", ")), args, nil
}

func (q *CallQuery) String() string {
	return buildString(q)
}
