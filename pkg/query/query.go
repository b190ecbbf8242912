package query

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/medkit/medinventory/pkg/constants"
)

// Query is implemented by every builder in this package.
type Query interface {
	// Build returns the SQL string and its positional arguments.
	Build() (string, []any, error)

	// String returns the SQL string, or the build error text.
	String() string
}

var (
	identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)
	embedPattern = regexp.MustCompile(`^([a-z_][a-z0-9_]*)\((\*|[a-z_][a-z0-9_]*(?:,[a-z_][a-z0-9_]*)*)\)$`)
)

// AllColumns selects every column of the table. It can be combined with
// embedded resources, as in `*, supplies(name)`.
const AllColumns = "*"

// ValidIdent reports whether name can be used as a table or column name.
func ValidIdent(name string) bool {
	return identPattern.MatchString(name)
}

// Embed is a resource embedded into a read, written `table(col,...)`.
type Embed struct {
	Table   string
	Columns []string
}

// ParseEmbed parses a projection entry of the form `table(col,...)`.
func ParseEmbed(column string) (Embed, bool) {
	m := embedPattern.FindStringSubmatch(column)
	if m == nil {
		return Embed{}, false
	}
	return Embed{Table: m[1], Columns: strings.Split(m[2], ",")}, true
}

func checkIdent(kind, name string) error {
	if !ValidIdent(name) {
		return fmt.Errorf("%w: %s %q", constants.ErrInvalidIdentifier, kind, name)
	}
	return nil
}

// QuoteIdent quotes a validated identifier for Postgres.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// FormatValue renders a filter value the way PostgREST expects it in a query
// string.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// SQLValue converts v into something the Postgres driver can bind.
func SQLValue(v any) any {
	if s, ok := v.(fmt.Stringer); ok {
		if _, isTime := v.(time.Time); !isTime {
			return s.String()
		}
	}
	return v
}

func buildString(q Query) string {
	sql, _, err := q.Build()
	if err != nil {
		return err.Error()
	}
	return sql
}
