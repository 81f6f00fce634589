package join

import (
	"github.com/gosuda/pipecraft/pipe"
)

// rightBucket is the in-memory accumulator LookupJoin keeps per key: the
// matches from each right pipe, indexed by pipe position.
type rightBucket[R any] struct {
	matches map[int][]R
	visited bool
}

// LookupJoin buffers every right pipe fully into memory at Start, then
// iterates the left pipe once. Left keys are assumed unique; a
// duplicated left key keeps only the most recently seen item (the
// earlier one is silently overwritten, not aggregated). In Outer mode,
// once the left pipe is exhausted, right-only keys are emitted afterward
// in the bucket map's iteration order.
type LookupJoin[K comparable, L, R any] struct {
	leftPull   pipe.Pull[L]
	rightPulls []pipe.Pull[R]
	leftKey    func(L) K
	rightKey   func(R) K
	mode       Mode

	buckets   map[K]*rightBucket[R]
	leftItems map[K]L
	leftOrder []K

	pending      []Record[K, L, R]
	leftOrderPos int
	stage        int // 0 = emitting left-driven records, 1 = emitting right-only (Outer), 2 = done

	cache  pipe.PeekCache[Record[K, L, R]]
	closer pipe.CloseOnce
	prog   pipe.AtomicProgress
}

func NewLookupJoin[K comparable, L, R any](left pipe.Pull[L], rights []pipe.Pull[R], leftKey func(L) K, rightKey func(R) K, mode Mode) *LookupJoin[K, L, R] {
	return &LookupJoin[K, L, R]{
		leftPull:   left,
		rightPulls: rights,
		leftKey:    leftKey,
		rightKey:   rightKey,
		mode:       mode,
	}
}

func (j *LookupJoin[K, L, R]) Start() error {
	j.buckets = map[K]*rightBucket[R]{}
	j.leftItems = map[K]L{}

	for idx, rp := range j.rightPulls {
		if err := rp.Start(); err != nil {
			return pipe.NewError(pipe.KindIO, "lookupjoin.Start", err)
		}
		for {
			v, ok, err := rp.Next()
			if err != nil {
				return pipe.NewError(pipe.KindIO, "lookupjoin.Start", err)
			}
			if !ok {
				break
			}
			key := j.rightKey(v)
			b, exists := j.buckets[key]
			if !exists {
				b = &rightBucket[R]{matches: map[int][]R{}}
				j.buckets[key] = b
			}
			b.matches[idx] = append(b.matches[idx], v)
		}
	}

	if err := j.leftPull.Start(); err != nil {
		return pipe.NewError(pipe.KindIO, "lookupjoin.Start", err)
	}
	for {
		v, ok, err := j.leftPull.Next()
		if err != nil {
			return pipe.NewError(pipe.KindIO, "lookupjoin.Start", err)
		}
		if !ok {
			break
		}
		key := j.leftKey(v)
		if _, seen := j.leftItems[key]; !seen {
			j.leftOrder = append(j.leftOrder, key)
		}
		j.leftItems[key] = v
	}
	return nil
}

func (j *LookupJoin[K, L, R]) rawNext() (Record[K, L, R], bool, error) {
	var zero Record[K, L, R]
	for {
		if j.stage == 0 {
			if j.leftOrderPos >= len(j.leftOrder) {
				j.stage = 1
				continue
			}
			key := j.leftOrder[j.leftOrderPos]
			j.leftOrderPos++
			rec := Record[K, L, R]{Key: key, Left: []L{j.leftItems[key]}, Right: map[int][]R{}}
			if b, ok := j.buckets[key]; ok {
				b.visited = true
				for idx, items := range b.matches {
					rec.Right[idx] = items
				}
			}
			if shouldOutput(j.mode, rec, len(j.rightPulls)) {
				return rec, true, nil
			}
			continue
		}
		if j.stage == 1 {
			if j.mode != Outer {
				j.stage = 2
				j.prog.Set(1)
				continue
			}
			if j.pending == nil {
				for key, b := range j.buckets {
					if b.visited {
						continue
					}
					rec := Record[K, L, R]{Key: key, Right: map[int][]R{}}
					for idx, items := range b.matches {
						rec.Right[idx] = items
					}
					j.pending = append(j.pending, rec)
				}
				if j.pending == nil {
					j.pending = []Record[K, L, R]{}
				}
			}
			if len(j.pending) == 0 {
				j.stage = 2
				j.prog.Set(1)
				continue
			}
			rec := j.pending[0]
			j.pending = j.pending[1:]
			return rec, true, nil
		}
		return zero, false, nil
	}
}

func (j *LookupJoin[K, L, R]) Next() (Record[K, L, R], bool, error) { return j.cache.Next(j.rawNext) }
func (j *LookupJoin[K, L, R]) Peek() (Record[K, L, R], bool, error) { return j.cache.Peek(j.rawNext) }

func (j *LookupJoin[K, L, R]) Progress() float64 { return j.prog.Get() }

func (j *LookupJoin[K, L, R]) Close() error {
	return j.closer.Do(func() error {
		closers := make([]pipe.Pipe, 0, 1+len(j.rightPulls))
		closers = append(closers, j.leftPull)
		for _, r := range j.rightPulls {
			closers = append(closers, r)
		}
		return pipe.CloseAll("lookupjoin.Close", closers...)
	})
}
