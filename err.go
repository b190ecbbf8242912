package medinventory

import (
	"errors"

	"github.com/medkit/medinventory/pkg/connection"
)

// QueryError is returned by every read and mutation of a DB handle. Its message
// is the message of the underlying failure, unchanged, so that a remote error
// reaches the caller verbatim.
type QueryError struct {
	Op    string
	Table string
	Err   error
}

func (e *QueryError) Error() string {
	return e.Err.Error()
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// RemoteError returns the error reported by the remote store, if err carries one.
func RemoteError(err error) (*connection.RemoteError, bool) {
	var re *connection.RemoteError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
