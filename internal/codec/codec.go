// Package codec abstracts the wire encoding used for row payloads and request bodies.
package codec

import "io"

type Encoder interface {
	Encode(v any) error
}

type Decoder interface {
	Decode(v any) error
}

type Marshaler interface {
	Marshal(v any) ([]byte, error)
	NewEncoder(w io.Writer) Encoder
}

type Unmarshaler interface {
	Unmarshal(data []byte, dst any) error
	NewDecoder(r io.Reader) Decoder
}

// Codec is both halves of a wire encoding.
type Codec interface {
	Marshaler
	Unmarshaler
}

// Default is the codec used when a connection is configured without one.
var Default Codec = NewJSON()
