// Package codec serializes persisted cache records to bytes.
package codec

// Codec encodes and decodes values for storage.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
}
