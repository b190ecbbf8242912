// Package query builds the reads and writes issued against the inventory store.
//
// One builder serves both backends: Build renders Postgres SQL with `?`
// placeholders for the direct connection, while Values and RangeHeader render
// the PostgREST query string and headers for the REST connection.
//
//	q := query.Select("id", "quantity").
//	    From("inventory").
//	    Where(query.Where().Eq("is_deleted", false).Gte("expiry_date", now)).
//	    OrderBy("id").
//	    Range(0, 9)
//
// Identifiers are never quoted from user input without validation: table and
// column names must be lower-case snake case, and values always travel as
// parameters.
package query
