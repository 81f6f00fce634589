// Package gobcodec is pipecraft's reference binary codec, built on
// encoding/gob. It is deliberately minimal, treating production binary
// codecs as an external collaborator, but it gives the framework's own
// tests and CLI demos something concrete to run external sort, sharders,
// and disk-backed joins against without depending on an object-store or
// a compression library for record encoding.
package gobcodec

import (
	"encoding/gob"
	"io"
	"sync"

	"github.com/gosuda/pipecraft/codec"
)

// encoder and decoder remember the gob.Encoder/gob.Decoder they last built
// for a given stream and reuse it as long as the caller keeps passing the
// same io.Writer/io.Reader. gob's wire format is stateful per stream (type
// descriptors are sent once, and gob.Decoder buffers read-ahead bytes
// internally), so constructing a fresh encoder or decoder on every call
// would either resend type info needlessly or, on the read side, silently
// drop bytes buffered by the previous Decoder — losing every record past
// the first in a multi-record stream. A single cached pair is enough
// because every caller in this package drives one stream at a time; a
// switch to a different stream (e.g. the next run file) simply misses and
// rebuilds, at the same one-time cost the old per-call version always paid.
type encoder[T any] struct {
	mu     sync.Mutex
	lastW  io.Writer
	lastGE *gob.Encoder
}

func (e *encoder[T]) Encode(w io.Writer, v T) error {
	e.mu.Lock()
	if e.lastW != w {
		e.lastW = w
		e.lastGE = gob.NewEncoder(w)
	}
	ge := e.lastGE
	e.mu.Unlock()
	return ge.Encode(v)
}

type decoder[T any] struct {
	mu     sync.Mutex
	lastR  io.Reader
	lastGD *gob.Decoder
}

func (d *decoder[T]) Decode(r io.Reader) (T, error) {
	d.mu.Lock()
	if d.lastR != r {
		d.lastR = r
		d.lastGD = gob.NewDecoder(r)
	}
	gd := d.lastGD
	d.mu.Unlock()
	var v T
	err := gd.Decode(&v)
	return v, err
}

// New returns a codec.Factory[T] backed by encoding/gob. T must be a type
// gob can encode (exported fields, registered concrete types for
// interface-typed fields).
func New[T any]() codec.Factory[T] {
	return codec.NewFactory[T](&encoder[T]{}, &decoder[T]{})
}
