package shard

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cockroachdb/pebble"

	"github.com/gosuda/pipecraft/codec"
)

// RunWriter accepts already-sorted items for a single external-sort run and
// finalizes into a RunReader once the run is complete.
type RunWriter[T any] interface {
	Write(v T) error
	Close() (RunReader[T], error)
}

// RunReader streams a finalized run back in sorted order.
type RunReader[T any] interface {
	Next() (T, bool, error)
	Close() error
}

// Engine is the pluggable on-disk representation for external-sort runs.
// Only the contract matters (sorted, merged, temp files removed on close);
// pipecraft ships two: a flat codec-encoded file (FileEngine) and a
// pebble-backed one (PebbleEngine).
type Engine[T any] interface {
	// NewRunWriter opens run number `index` inside dir.
	NewRunWriter(dir string, index int) (RunWriter[T], error)
}

// --- FileEngine: one flat codec-encoded file per run ---

type fileEngine[T any] struct {
	factory codec.Factory[T]
}

// FileEngine returns an Engine that writes each run as a single codec-
// encoded file, the same flat layout the sharders use.
func FileEngine[T any](factory codec.Factory[T]) Engine[T] {
	return &fileEngine[T]{factory: factory}
}

func (e *fileEngine[T]) NewRunWriter(dir string, index int) (RunWriter[T], error) {
	path := filepath.Join(dir, runFileName(index))
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &fileRunWriter[T]{f: f, path: path, enc: e.factory.Encoder(), dec: e.factory.Decoder()}, nil
}

func runFileName(index int) string { return "run-" + strconv.Itoa(index) }

type fileRunWriter[T any] struct {
	f    *os.File
	path string
	enc  codec.Encoder[T]
	dec  codec.Decoder[T]
}

func (w *fileRunWriter[T]) Write(v T) error {
	return w.enc.Encode(w.f, v)
}

func (w *fileRunWriter[T]) Close() (RunReader[T], error) {
	if err := w.f.Close(); err != nil {
		return nil, err
	}
	f, err := os.Open(w.path)
	if err != nil {
		return nil, err
	}
	return &fileRunReader[T]{f: f, dec: w.dec}, nil
}

type fileRunReader[T any] struct {
	f   *os.File
	dec codec.Decoder[T]
}

func (r *fileRunReader[T]) Next() (T, bool, error) {
	v, err := r.dec.Decode(r.f)
	if err == io.EOF {
		var zero T
		return zero, false, nil
	}
	if err != nil {
		var zero T
		return zero, false, err
	}
	return v, true, nil
}

func (r *fileRunReader[T]) Close() error { return r.f.Close() }

// --- PebbleEngine: each run is its own embedded pebble.DB ---

// PebbleEngine stores each run as a standalone pebble database keyed by
// keyFunc(v), iterated back in key order. It is the idiomatic fit for
// "write a sorted run, stream it back in key order": that's the native
// operation of an LSM engine.
type PebbleEngine[T any] struct {
	factory codec.Factory[T]
	keyFunc func(T) []byte
}

// NewPebbleEngine builds a PebbleEngine. keyFunc must produce byte
// encodings whose lexicographic order matches the comparator the caller
// sorts runs with in memory (e.g. a fixed-width big-endian encoding for
// integer keys, or the raw UTF-8 bytes for string keys).
func NewPebbleEngine[T any](factory codec.Factory[T], keyFunc func(T) []byte) *PebbleEngine[T] {
	return &PebbleEngine[T]{factory: factory, keyFunc: keyFunc}
}

func (e *PebbleEngine[T]) NewRunWriter(dir string, index int) (RunWriter[T], error) {
	path := filepath.Join(dir, "run-"+strconv.Itoa(index)+".pebble")
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &pebbleRunWriter[T]{db: db, factory: e.factory, keyFunc: e.keyFunc, seq: 0}, nil
}

type pebbleRunWriter[T any] struct {
	db      *pebble.DB
	factory codec.Factory[T]
	keyFunc func(T) []byte
	seq     uint64
}

func (w *pebbleRunWriter[T]) Write(v T) error {
	var buf bytes.Buffer
	if err := w.factory.Encoder().Encode(&buf, v); err != nil {
		return err
	}
	// Suffix the key with a monotonically increasing sequence number so
	// duplicate sort keys don't collide/overwrite each other in the LSM.
	key := appendSeq(w.keyFunc(v), w.seq)
	w.seq++
	return w.db.Set(key, buf.Bytes(), pebble.NoSync)
}

func (w *pebbleRunWriter[T]) Close() (RunReader[T], error) {
	if err := w.db.Flush(); err != nil {
		return nil, err
	}
	it, err := w.db.NewIter(nil)
	if err != nil {
		return nil, err
	}
	it.First()
	return &pebbleRunReader[T]{db: w.db, it: it, dec: w.factory.Decoder(), started: true}, nil
}

type pebbleRunReader[T any] struct {
	db      *pebble.DB
	it      *pebble.Iterator
	dec     codec.Decoder[T]
	started bool
}

func (r *pebbleRunReader[T]) Next() (T, bool, error) {
	var zero T
	if !r.it.Valid() {
		return zero, false, nil
	}
	val, err := r.it.ValueAndErr()
	if err != nil {
		return zero, false, err
	}
	v, err := r.dec.Decode(bytes.NewReader(val))
	if err != nil && err != io.EOF {
		return zero, false, err
	}
	r.it.Next()
	return v, true, nil
}

func (r *pebbleRunReader[T]) Close() error {
	err := r.it.Close()
	if cerr := r.db.Close(); err == nil {
		err = cerr
	}
	return err
}

// appendSeq appends an 8-byte big-endian sequence number to key so entries
// with equal sort keys remain distinct and insertion-ordered within a run.
func appendSeq(key []byte, seq uint64) []byte {
	out := make([]byte, len(key)+8)
	copy(out, key)
	for i := 0; i < 8; i++ {
		out[len(key)+i] = byte(seq >> (56 - 8*i))
	}
	return out
}
