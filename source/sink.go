package source

import (
	"fmt"
	"os"

	"github.com/gosuda/pipecraft/codec"
)

// ConsumerSink drains a Pull[T] by calling onItem for each item and, if
// set, onDone once after the last item.
type ConsumerSink[T any] struct {
	OnItem func(T)
	OnDone func()
}

// Drain runs p to completion, invoking s.OnItem per item and s.OnDone once
// the source is exhausted. The caller is responsible for Start/Close.
func (s ConsumerSink[T]) Drain(next func() (T, bool, error)) error {
	for {
		v, ok, err := next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		s.OnItem(v)
	}
	if s.OnDone != nil {
		s.OnDone()
	}
	return nil
}

// CollectionSink accumulates every item into a slice.
type CollectionSink[T any] struct {
	Items []T
}

func (s *CollectionSink[T]) OnItem(v T) { s.Items = append(s.Items, v) }

// MapSink accumulates items into a map keyed by keyOf(item); a key
// collision keeps the most recently seen value (last-wins).
type MapSink[K comparable, T any] struct {
	keyOf func(T) K
	m     map[K]T
}

// NewMapSink builds a MapSink keying each item via keyOf.
func NewMapSink[K comparable, T any](keyOf func(T) K) *MapSink[K, T] {
	return &MapSink[K, T]{keyOf: keyOf, m: map[K]T{}}
}

func (s *MapSink[K, T]) OnItem(v T) { s.m[s.keyOf(v)] = v }

// Map returns the accumulated key/value map. Safe to call once draining
// has finished.
func (s *MapSink[K, T]) Map() map[K]T { return s.m }

// QueueItemKind tags a QueueSink entry.
type QueueItemKind int

const (
	QueueValue QueueItemKind = iota
	QueueEnd
	QueueError
)

// QueueItem is the tagged union QueueSink passes across its bounded
// channel: exactly one of Value (when Kind == QueueValue) or Err
// (when Kind == QueueError) is meaningful.
type QueueItem[T any] struct {
	Kind  QueueItemKind
	Value T
	Err   error
}

// QueueSink wraps a bounded channel of QueueItem[T], blocking on Put when
// full. End and Error are terminal: both close the channel after sending
// their sentinel.
type QueueSink[T any] struct {
	ch chan QueueItem[T]
}

// NewQueueSink builds a QueueSink with the given buffer capacity.
func NewQueueSink[T any](capacity int) *QueueSink[T] {
	return &QueueSink[T]{ch: make(chan QueueItem[T], capacity)}
}

// Chan exposes the underlying channel for a consumer to range over.
func (s *QueueSink[T]) Chan() <-chan QueueItem[T] { return s.ch }

// Put blocks until the value is enqueued.
func (s *QueueSink[T]) Put(v T) { s.ch <- QueueItem[T]{Kind: QueueValue, Value: v} }

// End enqueues the terminal end marker and closes the channel.
func (s *QueueSink[T]) End() {
	s.ch <- QueueItem[T]{Kind: QueueEnd}
	close(s.ch)
}

// Error enqueues the terminal error marker and closes the channel.
func (s *QueueSink[T]) Error(err error) {
	s.ch <- QueueItem[T]{Kind: QueueError, Err: err}
	close(s.ch)
}

// FileWriterSink encodes every item via factory's Encoder to a file at
// path, created fresh (truncated if it already exists).
type FileWriterSink[T any] struct {
	path    string
	factory codec.Factory[T]
	f       *os.File
}

// NewFileWriterSink builds a FileWriterSink targeting path, using factory
// for the wire format (gobcodec, linecodec, or any other codec.Factory).
func NewFileWriterSink[T any](path string, factory codec.Factory[T]) *FileWriterSink[T] {
	return &FileWriterSink[T]{path: path, factory: factory}
}

func (s *FileWriterSink[T]) Start() error {
	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("filewritersink: create %s: %w", s.path, err)
	}
	s.f = f
	return nil
}

// Write encodes v to the file.
func (s *FileWriterSink[T]) Write(v T) error {
	return s.factory.Encoder().Encode(s.f, v)
}

func (s *FileWriterSink[T]) Close() error {
	if s.f == nil {
		return nil
	}
	return s.f.Close()
}
