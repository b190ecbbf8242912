package constants

import "errors"

var (
	ErrNoBaseURL          = errors.New("base url not set")
	ErrNoMarshaler        = errors.New("marshaler is not set")
	ErrNoUnmarshaler      = errors.New("unmarshaler is not set")
	ErrUnsupportedScheme  = errors.New("unsupported connection scheme")
	ErrMethodNotAvailable = errors.New("method not available on this connection")
	ErrTimeout            = errors.New("timeout")
)

var (
	// ErrNoRow is returned when an operation needs an existing row and none matched.
	ErrNoRow = errors.New("no row matched")
	// ErrNoInsertedRow is returned when an insert succeeds remotely but echoes no row.
	ErrNoInsertedRow = errors.New("no data returned from insert operation")
	// ErrNoSession is returned when an operation needs an identity and the session has none.
	ErrNoSession = errors.New("no active session")
	// ErrInvalidOptions is returned for page or page-size values below one.
	ErrInvalidOptions = errors.New("invalid data fetch options")
	// ErrInvalidIdentifier is returned for table or column names the query builder refuses.
	ErrInvalidIdentifier = errors.New("invalid identifier")
	// ErrUnsupportedProjection is returned when a backend cannot express a projection.
	ErrUnsupportedProjection = errors.New("projection not supported by this connection")
	// ErrInvalidResponse is returned when the remote store answers with something unparseable.
	ErrInvalidResponse = errors.New("invalid response from remote store")
)

var (
	// ErrNotSoftDeletable is returned when soft-deleting on a table without a soft-delete column.
	ErrNotSoftDeletable = errors.New("table has no soft-delete column")
	// ErrEmptyPatch is returned when an update carries no columns.
	ErrEmptyPatch = errors.New("update carries no columns")
)
