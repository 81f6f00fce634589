package shard

import (
	"os"
	"path/filepath"

	"github.com/gosuda/pipecraft/codec"
)

// ShardFile describes one output file of a sharder's temp folder: one
// file per shard key, named by the classifier's (or shard index's) output.
type ShardFile struct {
	Key  string
	Path string
}

// fileRouter owns the open-file bookkeeping shared by SharderBySeq,
// SharderByItem, and SharderByHash: a temp directory, a codec, and a
// running per-key item count.
type fileRouter[T any] struct {
	dir     string
	factory codec.Factory[T]
	counts  Counts
	order   []string // first-seen order of shard keys, for Shards()
	files   map[string]string
}

func newFileRouter[T any](dir string, factory codec.Factory[T]) *fileRouter[T] {
	return &fileRouter[T]{dir: dir, factory: factory, counts: Counts{}, files: map[string]string{}}
}

func (r *fileRouter[T]) pathFor(key string) string {
	if p, ok := r.files[key]; ok {
		return p
	}
	p := filepath.Join(r.dir, key)
	r.files[key] = p
	r.order = append(r.order, key)
	return p
}

func (r *fileRouter[T]) shards() []ShardFile {
	out := make([]ShardFile, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, ShardFile{Key: k, Path: r.files[k]})
	}
	return out
}

// seqRouter re-uses the currently open writer until the classifier output
// changes: a streaming router that assumes runs of equal keys are
// contiguous in the upstream.
type seqRouter[T any] struct {
	*fileRouter[T]
	classify func(T) string
	curKey   string
	curFile  *os.File
	hasCur   bool
}

func newSeqRouter[T any](dir string, factory codec.Factory[T], classify func(T) string) *seqRouter[T] {
	return &seqRouter[T]{fileRouter: newFileRouter[T](dir, factory), classify: classify}
}

// route writes v to the shard file for its classifier key. Under the
// contiguous-only contract, revisiting a key after the classifier has
// moved on truncates and restarts that shard's file — SharderBySeq
// assumes it will never happen and does not guard against it.
func (r *seqRouter[T]) route(v T) error {
	key := r.classify(v)
	if !r.hasCur || key != r.curKey {
		if r.hasCur {
			if err := r.curFile.Close(); err != nil {
				return err
			}
		}
		path := r.pathFor(key)
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		r.curFile = f
		r.curKey = key
		r.hasCur = true
	}
	if err := r.factory.Encoder().Encode(r.curFile, v); err != nil {
		return err
	}
	r.counts[key]++
	return nil
}

func (r *seqRouter[T]) close() error {
	if r.hasCur {
		r.hasCur = false
		return r.curFile.Close()
	}
	return nil
}

// itemRouter keeps one writer per shard key open for the whole pass,
// allowing an unbounded, non-contiguous key set.
type itemRouter[T any] struct {
	*fileRouter[T]
	classify func(T) string
	open     map[string]*os.File
}

func newItemRouter[T any](dir string, factory codec.Factory[T], classify func(T) string) *itemRouter[T] {
	return &itemRouter[T]{fileRouter: newFileRouter[T](dir, factory), classify: classify, open: map[string]*os.File{}}
}

func (r *itemRouter[T]) route(v T) error {
	key := r.classify(v)
	f, ok := r.open[key]
	if !ok {
		path := r.pathFor(key)
		var err error
		f, err = os.Create(path)
		if err != nil {
			return err
		}
		r.open[key] = f
	}
	if err := r.factory.Encoder().Encode(f, v); err != nil {
		return err
	}
	r.counts[key]++
	return nil
}

func (r *itemRouter[T]) close() error {
	var last error
	for _, f := range r.open {
		if err := f.Close(); err != nil {
			last = err
		}
	}
	r.open = map[string]*os.File{}
	return last
}
