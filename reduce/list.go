package reduce

import (
	"fmt"

	"github.com/gosuda/pipecraft/pipe"
)

func errGroupSizeFor(key string) error {
	return fmt.Errorf("%w: key %q", pipe.ErrExcessiveGroupSize, key)
}

// SizePolicy governs what ListReductor does once a group exceeds its
// configured limit.
type SizePolicy int

const (
	// Truncate silently drops items beyond the limit.
	Truncate SizePolicy = iota
	// Fail raises ErrExcessiveGroupSize, wrapped with the offending key's
	// string form, once the limit is exceeded.
	Fail
)

// ListReductor assumes equal keys are contiguous in the upstream (it is
// typically fed by a Grouper), collects each group into a list bounded by
// limit, and applies finalize to the completed list.
type ListReductor[T, K comparable, O any] struct {
	upstream      pipe.Pull[T]
	discriminator func(T) K
	finalize      func(K, []T) O
	limit         int
	policy        SizePolicy
	keyString     func(K) string

	hasCur  bool
	curKey  K
	curList []T

	pending []O
	done    bool
	cache   pipe.PeekCache[O]
	closer  pipe.CloseOnce
	prog    pipe.AtomicProgress
}

// NewListReductor builds a ListReductor. keyString is used only to
// annotate the error raised in Fail mode.
func NewListReductor[T, K comparable, O any](upstream pipe.Pull[T], discriminator func(T) K, finalize func(K, []T) O, limit int, policy SizePolicy, keyString func(K) string) *ListReductor[T, K, O] {
	return &ListReductor[T, K, O]{upstream: upstream, discriminator: discriminator, finalize: finalize, limit: limit, policy: policy, keyString: keyString}
}

func (l *ListReductor[T, K, O]) Start() error {
	if err := l.upstream.Start(); err != nil {
		return pipe.NewError(pipe.KindIO, "listreductor.Start", err)
	}
	return nil
}

func (l *ListReductor[T, K, O]) closeGroup() O {
	out := l.finalize(l.curKey, l.curList)
	l.curList = nil
	l.hasCur = false
	return out
}

func (l *ListReductor[T, K, O]) rawNext() (O, bool, error) {
	for {
		if len(l.pending) > 0 {
			out := l.pending[0]
			l.pending = l.pending[1:]
			return out, true, nil
		}
		if l.done {
			var zero O
			return zero, false, nil
		}
		v, ok, err := l.upstream.Next()
		if err != nil {
			var zero O
			return zero, false, pipe.NewError(pipe.KindIO, "listreductor.Next", err)
		}
		if !ok {
			l.done = true
			if l.hasCur {
				l.pending = append(l.pending, l.closeGroup())
			}
			l.prog.Set(1)
			continue
		}
		key := l.discriminator(v)
		if !l.hasCur {
			l.curKey = key
			l.curList = nil
			l.hasCur = true
		} else if key != l.curKey {
			l.pending = append(l.pending, l.closeGroup())
			l.curKey = key
			l.curList = nil
			l.hasCur = true
		}
		if len(l.curList) < l.limit {
			l.curList = append(l.curList, v)
		} else if l.policy == Fail {
			var zero O
			return zero, false, pipe.NewError(pipe.KindExcessiveResources, "listreductor.Next", errGroupSizeFor(l.keyString(key)))
		}
		// Truncate: silently drop items beyond the limit.
	}
}

func (l *ListReductor[T, K, O]) Next() (O, bool, error) { return l.cache.Next(l.rawNext) }
func (l *ListReductor[T, K, O]) Peek() (O, bool, error) { return l.cache.Peek(l.rawNext) }

func (l *ListReductor[T, K, O]) Progress() float64 { return l.prog.Get() }

func (l *ListReductor[T, K, O]) Close() error {
	return l.closer.Do(func() error {
		if err := l.upstream.Close(); err != nil {
			return pipe.NewError(pipe.KindIO, "listreductor.Close", err)
		}
		return nil
	})
}
