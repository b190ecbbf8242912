package connection

import "fmt"

// RemoteError is a failure reported by the remote store. Error returns the
// store's message unchanged.
type RemoteError struct {
	// Code is the store's error code: a SQLSTATE or a PostgREST code.
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
	// Status is the HTTP status, zero for direct connections.
	Status int `json:"-"`
}

func (e *RemoteError) Error() string {
	return e.Message
}

func (e *RemoteError) Is(target error) bool {
	if target == nil {
		return e == nil
	}

	_, ok := target.(*RemoteError)
	return ok
}

// Detail renders every field, for logs.
func (e *RemoteError) Detail() string {
	s := e.Message
	if e.Code != "" {
		s = fmt.Sprintf("%s (code %s)", s, e.Code)
	}
	if e.Details != "" {
		s += ": " + e.Details
	}
	if e.Hint != "" {
		s += " hint: " + e.Hint
	}
	return s
}
