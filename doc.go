// The [medinventory] package is the data access core of the medical supply
// inventory client.
//
// # Connections
//
// A [DB] handle wraps a [connection.Connection]. Two backends are provided:
// [github.com/medkit/medinventory/pkg/connection/rest] talks to a PostgREST
// endpoint (Supabase), and [github.com/medkit/medinventory/pkg/connection/postgres]
// talks SQL to the database directly. [Connect] picks one from a [Config].
//
// # Reads
//
// Listings are split into partitions. Which partitions a table has is fixed by
// its descriptor type:
//
//   - [PlainTable] tables are read with [FetchPlain] into one active partition.
//   - [OwnedTable] tables are read with [FetchOwned] into active rows and rows
//     owned by the session identity.
//   - [ExpirableTable] tables are read with [FetchExpirable] into active,
//     expired and undated rows.
//
// Partitions are fetched one after another and the first failure stops the
// rest. The failure is reported on the returned state, never as a panic.
// [WithParallelPartitions] fetches them concurrently with the same observable
// result.
//
// [FetchPage] runs a single page read, [FetchRow] and [FetchRows] read rows by id.
//
// # Mutations
//
// [Insert], [UpdateExisting] and [UpsertRecord] write typed records.
// [DB.SoftDelete] flags a row as deleted. [DB.AdjustStock] changes an inventory
// quantity and writes the usage log in one server-side call.
//
// [connection.Connection]: https://pkg.go.dev/github.com/medkit/medinventory/pkg/connection#Connection
package medinventory
