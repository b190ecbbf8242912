package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/medkit/medinventory/pkg/constants"
)

// Values renders the read as a PostgREST query string. The window is not part
// of it; send RangeHeader in the Range header instead.
func (q *SelectQuery) Values() (url.Values, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	v := url.Values{}
	cols := q.Columns()
	if len(cols) == 0 {
		v.Set("select", "*")
	} else {
		v.Set("select", strings.Join(cols, ","))
	}

	for _, c := range q.where.Conditions() {
		v.Add(c.Column, formatCondition(c))
	}

	if len(q.orderBy) > 0 {
		parts := make([]string, len(q.orderBy))
		for i, o := range q.orderBy {
			dir := "asc"
			if o.desc {
				dir = "desc"
			}
			parts[i] = o.column + "." + dir
		}
		v.Set("order", strings.Join(parts, ","))
	}

	return v, nil
}

// RangeHeader returns the Range header value, or "" when the read has no window.
func (q *SelectQuery) RangeHeader() string {
	if q.rng == nil {
		return ""
	}
	return fmt.Sprintf("%d-%d", q.rng.Start, q.rng.End)
}

func formatCondition(c Condition) string {
	var b strings.Builder
	if c.Not {
		b.WriteString("not.")
	}
	b.WriteString(string(c.Op))
	b.WriteString(".")
	switch c.Op {
	case OpIs:
		b.WriteString("null")
	case OpIn:
		values, _ := c.Value.([]any)
		parts := make([]string, len(values))
		for i, v := range values {
			parts[i] = quoteListItem(FormatValue(v))
		}
		b.WriteString("(" + strings.Join(parts, ",") + ")")
	default:
		b.WriteString(FormatValue(c.Value))
	}
	return b.String()
}

func quoteListItem(s string) string {
	if !strings.ContainsAny(s, `,()" `) {
		return s
	}
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}

// ParseValues is the inverse of Values: it reads a PostgREST query string and
// Range header back into a SelectQuery. Filter values stay strings.
func ParseValues(table string, v url.Values, rangeHeader string) (*SelectQuery, error) {
	q := Select().From(table)

	if sel := v.Get("select"); sel != "" && sel != "*" {
		q.columns = splitTopLevel(sel)
	}

	if order := v.Get("order"); order != "" {
		for _, part := range strings.Split(order, ",") {
			col, dir, _ := strings.Cut(part, ".")
			q.orderBy = append(q.orderBy, orderByClause{column: col, desc: dir == "desc"})
		}
	}

	f := Where()
	for key, values := range v {
		if key == "select" || key == "order" {
			continue
		}
		for _, raw := range values {
			c, err := parseCondition(key, raw)
			if err != nil {
				return nil, err
			}
			f.add(c)
		}
	}
	q.Where(f)

	if rangeHeader != "" {
		start, end, err := ParseRange(rangeHeader)
		if err != nil {
			return nil, err
		}
		q.Range(start, end)
	}

	return q, q.Validate()
}

func parseCondition(column, raw string) (Condition, error) {
	c := Condition{Column: column}
	if rest, ok := strings.CutPrefix(raw, "not."); ok {
		c.Not = true
		raw = rest
	}

	op, value, ok := strings.Cut(raw, ".")
	if !ok {
		return c, fmt.Errorf("malformed filter %s=%s", column, raw)
	}
	c.Op = Operator(op)

	switch c.Op {
	case OpIs:
		if value != "null" {
			return c, fmt.Errorf("unsupported is value %q", value)
		}
	case OpIn:
		inner, ok := strings.CutPrefix(value, "(")
		if ok {
			inner, ok = strings.CutSuffix(inner, ")")
		}
		if !ok {
			return c, fmt.Errorf("malformed list %q", value)
		}
		var items []any
		if inner != "" {
			for _, item := range splitList(inner) {
				items = append(items, item)
			}
		}
		c.Value = items
	case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte:
		c.Value = value
	default:
		return c, fmt.Errorf("unsupported operator %q", op)
	}
	return c, nil
}

// splitTopLevel splits a select list on commas outside parentheses.
func splitTopLevel(s string) []string {
	var (
		out   []string
		depth int
		start int
	)
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	return append(out, s[start:])
}

// splitList splits an in.(...) list, honouring double-quoted items.
func splitList(s string) []string {
	var (
		out     []string
		b       strings.Builder
		quoted  bool
		escaped bool
	)
	for _, r := range s {
		switch {
		case escaped:
			b.WriteRune(r)
			escaped = false
		case quoted && r == '\\':
			escaped = true
		case r == '"':
			quoted = !quoted
		case r == ',' && !quoted:
			out = append(out, b.String())
			b.Reset()
		default:
			b.WriteRune(r)
		}
	}
	return append(out, b.String())
}

// ParseRange parses a Range header value of the form start-end.
func ParseRange(s string) (start, end int, err error) {
	a, b, ok := strings.Cut(s, "-")
	if !ok {
		return 0, 0, fmt.Errorf("malformed range %q", s)
	}
	if start, err = strconv.Atoi(a); err != nil {
		return 0, 0, fmt.Errorf("malformed range %q: %w", s, err)
	}
	if end, err = strconv.Atoi(b); err != nil {
		return 0, 0, fmt.Errorf("malformed range %q: %w", s, err)
	}
	return start, end, nil
}

// ContentRange renders a Content-Range header for rows start through
// start+n-1 out of total.
func ContentRange(start, n int, total int64) string {
	if n == 0 {
		return fmt.Sprintf("*/%d", total)
	}
	return fmt.Sprintf("%d-%d/%d", start, start+n-1, total)
}

// ParseContentRange returns the total of a Content-Range header such as
// `0-9/42` or `*/0`. A `*` total, sent when counting was not requested, is an
// error.
func ParseContentRange(s string) (int64, error) {
	_, total, ok := strings.Cut(s, "/")
	if !ok || total == "*" {
		return 0, fmt.Errorf("%w: content-range %q", constants.ErrInvalidResponse, s)
	}
	n, err := strconv.ParseInt(total, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: content-range %q", constants.ErrInvalidResponse, s)
	}
	return n, nil
}
