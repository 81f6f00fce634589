// Package codec defines the encoder/decoder SPI consumed by the core.
// Concrete, production-grade codecs (compressed, binary, columnar) are
// external collaborators; this package carries only the interfaces plus
// two minimal reference implementations used by the framework's own
// tests and CLI demos (codec/gobcodec, codec/linecodec).
package codec

import "io"

// Encoder writes values of type T to an io.Writer in a stream-friendly
// form, one value per call.
type Encoder[T any] interface {
	Encode(w io.Writer, v T) error
}

// Decoder reads values of type T from an io.Reader, one value per call. It
// returns io.EOF (unwrapped) when the underlying stream is exhausted
// cleanly between records.
type Decoder[T any] interface {
	Decode(r io.Reader) (T, error)
}

// Factory binds an Encoder and Decoder for a single record type, the unit
// sharders and external sort pass around so they never need to know the
// wire format of the records flowing through them.
type Factory[T any] interface {
	Encoder() Encoder[T]
	Decoder() Decoder[T]
}

// factory is the straightforward Factory built from a matched pair.
type factory[T any] struct {
	enc Encoder[T]
	dec Decoder[T]
}

// NewFactory pairs an encoder and decoder into a Factory.
func NewFactory[T any](enc Encoder[T], dec Decoder[T]) Factory[T] {
	return &factory[T]{enc: enc, dec: dec}
}

func (f *factory[T]) Encoder() Encoder[T] { return f.enc }
func (f *factory[T]) Decoder() Decoder[T] { return f.dec }
