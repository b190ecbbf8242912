package query

import (
	"fmt"
	"strings"

	"github.com/medkit/medinventory/pkg/constants"
)

// SelectQuery represents a paged read of one table.
type SelectQuery struct {
	table   string
	columns []string
	where   *Filter
	orderBy []orderByClause
	rng     *Range
}

// orderByClause represents an ORDER BY clause
type orderByClause struct {
	column string
	desc   bool
}

// Range is an inclusive, zero-based row window.
type Range struct {
	Start int
	End   int
}

// Limit returns the number of rows the window spans.
func (r Range) Limit() int {
	return r.End - r.Start + 1
}

// Select creates a new read of the given columns. No columns means all of them.
// A column may also be an embedded resource such as `supplies(name)`.
func Select(columns ...string) *SelectQuery {
	return &SelectQuery{columns: append([]string(nil), columns...)}
}

// From sets the table to read.
func (q *SelectQuery) From(table string) *SelectQuery {
	q.table = table
	return q
}

// Where ANDs f into the query's filter. A nil filter is ignored.
func (q *SelectQuery) Where(f *Filter) *SelectQuery {
	if f.Empty() {
		return q
	}
	q.where = q.where.And(f)
	return q
}

// OrderBy adds an ascending ORDER BY clause
func (q *SelectQuery) OrderBy(column string) *SelectQuery {
	q.orderBy = append(q.orderBy, orderByClause{column: column})
	return q
}

// OrderByDesc adds an ORDER BY DESC clause
func (q *SelectQuery) OrderByDesc(column string) *SelectQuery {
	q.orderBy = append(q.orderBy, orderByClause{column: column, desc: true})
	return q
}

// Range restricts the read to rows start through end inclusive.
func (q *SelectQuery) Range(start, end int) *SelectQuery {
	q.rng = &Range{Start: start, End: end}
	return q
}

func (q *SelectQuery) Table() string {
	return q.table
}

// Columns returns the projection, or nil for all columns.
func (q *SelectQuery) Columns() []string {
	if len(q.columns) == 1 && q.columns[0] == AllColumns {
		return nil
	}
	return append([]string(nil), q.columns...)
}

func (q *SelectQuery) Filter() *Filter {
	return q.where
}

// Window returns the row window, if one was set.
func (q *SelectQuery) Window() (Range, bool) {
	if q.rng == nil {
		return Range{}, false
	}
	return *q.rng, true
}

// Ordering returns the ORDER BY columns and whether each is descending.
func (q *SelectQuery) Ordering() (columns []string, desc []bool) {
	for _, o := range q.orderBy {
		columns = append(columns, o.column)
		desc = append(desc, o.desc)
	}
	return columns, desc
}

// Validate checks identifiers, the filter and the window. Embedded resources
// are accepted here; Build rejects them.
func (q *SelectQuery) Validate() error {
	if err := checkIdent("table", q.table); err != nil {
		return err
	}
	for _, c := range q.Columns() {
		if _, ok := ParseEmbed(c); ok || c == AllColumns {
			continue
		}
		if err := checkIdent("column", c); err != nil {
			return err
		}
	}
	for _, o := range q.orderBy {
		if err := checkIdent("column", o.column); err != nil {
			return err
		}
	}
	if q.rng != nil && (q.rng.Start < 0 || q.rng.End < q.rng.Start) {
		return fmt.Errorf("invalid range %d-%d", q.rng.Start, q.rng.End)
	}
	return q.where.validate()
}

func (q *SelectQuery) buildFromWhere(b *strings.Builder) []any {
	fmt.Fprintf(b, " FROM %s", QuoteIdent(q.table))
	if q.where.Empty() {
		return nil
	}
	b.WriteString(" WHERE ")
	return q.where.buildSQL(b, nil)
}

// Build returns the SQL for the read.
func (q *SelectQuery) Build() (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	cols := q.Columns()
	if len(cols) == 0 {
		b.WriteString("*")
	}
	for i, c := range cols {
		if _, ok := ParseEmbed(c); ok {
			return "", nil, fmt.Errorf("%w: %s", constants.ErrUnsupportedProjection, c)
		}
		if i > 0 {
			b.WriteString(", ")
		}
		if c == AllColumns {
			b.WriteString(AllColumns)
			continue
		}
		b.WriteString(QuoteIdent(c))
	}

	args := q.buildFromWhere(&b)

	for i, o := range q.orderBy {
		if i == 0 {
			b.WriteString(" ORDER BY ")
		} else {
			b.WriteString(", ")
		}
		b.WriteString(QuoteIdent(o.column))
		if o.desc {
			b.WriteString(" DESC")
		} else {
			b.WriteString(" ASC")
		}
	}

	if q.rng != nil {
		fmt.Fprintf(&b, " LIMIT %d OFFSET %d", q.rng.Limit(), q.rng.Start)
	}

	return b.String(), args, nil
}

// BuildCount returns the SQL counting every row the filter matches, ignoring
// the window.
func (q *SelectQuery) BuildCount() (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}

	var b strings.Builder
	b.WriteString("SELECT count(*)")
	args := q.buildFromWhere(&b)
	return b.String(), args, nil
}

func (q *SelectQuery) String() string {
	return buildString(q)
}
