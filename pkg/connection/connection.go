package connection

import (
	"context"

	"github.com/medkit/medinventory/internal/codec"
	"github.com/medkit/medinventory/pkg/constants"
	"github.com/medkit/medinventory/pkg/models"
	"github.com/medkit/medinventory/pkg/query"
)

// Connection is the boundary to the remote store. Every method is safe for
// concurrent use. Failures reported by the store come back as *RemoteError.
type Connection interface {
	Connect(ctx context.Context) error
	Close(ctx context.Context) error

	// Select runs a read and returns the matching rows of the window together
	// with the exact number of rows the filter matches.
	Select(ctx context.Context, q *query.SelectQuery) (*SelectResult, error)

	// Insert, Update and Upsert return the affected rows as a JSON array.
	// Update returns an empty array when no row has the id.
	Insert(ctx context.Context, table string, record any) ([]byte, error)
	Update(ctx context.Context, table string, id int64, patch any) ([]byte, error)
	Upsert(ctx context.Context, table string, record any) ([]byte, error)

	// Call runs a server-side function and returns its JSON result.
	Call(ctx context.Context, fn string, args map[string]any) ([]byte, error)

	// Session returns the session the connection acts under, or nil when it
	// has none.
	Session(ctx context.Context) (*Session, error)

	GetUnmarshaler() codec.Unmarshaler
}

// SelectResult is one page of rows. Rows is a JSON array.
type SelectResult struct {
	Rows  []byte
	Count int64
}

// Session is the authenticated user a connection acts for.
type Session struct {
	Identity models.Identity
	Email    string
}

// Migrator is implemented by connections that can create the schema.
type Migrator interface {
	Migrate(ctx context.Context) error
}

// Authenticator is implemented by connections backed by an auth service.
type Authenticator interface {
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context) error
}

// BaseConnection holds what every backend needs before it can connect.
type BaseConnection struct {
	Marshaler   codec.Marshaler
	Unmarshaler codec.Unmarshaler
}

func (bc *BaseConnection) PreConnectionChecks() error {
	if bc.Marshaler == nil {
		return constants.ErrNoMarshaler
	}

	if bc.Unmarshaler == nil {
		return constants.ErrNoUnmarshaler
	}

	return nil
}

// ToRow flattens a record or patch into its columns using m.
func ToRow(m codec.Marshaler, u codec.Unmarshaler, v any) (query.Row, error) {
	if row, ok := v.(query.Row); ok {
		return row, nil
	}
	if row, ok := v.(map[string]any); ok {
		return row, nil
	}

	data, err := m.Marshal(v)
	if err != nil {
		return nil, err
	}
	var row query.Row
	if err := u.Unmarshal(data, &row); err != nil {
		return nil, err
	}
	return row, nil
}
