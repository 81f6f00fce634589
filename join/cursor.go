package join

import (
	"errors"

	"github.com/gosuda/pipecraft/pipe"
)

// cursor wraps a pull pipe with a key extractor, tracking whether it has
// more items and enforcing that the keys it yields are non-decreasing.
type cursor[K, V any] struct {
	pull  pipe.Pull[V]
	keyOf func(V) K
	cmp   func(a, b K) int

	active     bool
	peekedKey  K
	hasPrevKey bool
	prevKey    K
}

func newCursor[K, V any](pull pipe.Pull[V], keyOf func(V) K, cmp func(a, b K) int) *cursor[K, V] {
	return &cursor[K, V]{pull: pull, keyOf: keyOf, cmp: cmp}
}

// refresh ensures c.active/c.peekedKey reflect the current head of the
// underlying pipe; idempotent until the next consuming Next call.
func (c *cursor[K, V]) refresh() error {
	v, ok, err := c.pull.Peek()
	if err != nil {
		return err
	}
	if !ok {
		c.active = false
		return nil
	}
	key := c.keyOf(v)
	if c.hasPrevKey && c.cmp(key, c.prevKey) < 0 {
		return pipe.ErrOutOfOrder
	}
	c.peekedKey = key
	c.active = true
	return nil
}

// takeMatching consumes every item whose key equals key (the cursor must
// already be positioned there) and returns them in stream order.
func (c *cursor[K, V]) takeMatching(key K) ([]V, error) {
	var out []V
	for {
		if err := c.refresh(); err != nil {
			return out, err
		}
		if !c.active || c.cmp(c.peekedKey, key) != 0 {
			break
		}
		v, ok, err := c.pull.Next()
		if err != nil {
			return out, err
		}
		if !ok {
			c.active = false
			break
		}
		out = append(out, v)
		c.prevKey = c.peekedKey
		c.hasPrevKey = true
	}
	return out, nil
}

func wrapCursorErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pipe.ErrOutOfOrder) {
		return pipe.NewError(pipe.KindOutOfOrder, op, err)
	}
	return pipe.NewError(pipe.KindIO, op, err)
}
