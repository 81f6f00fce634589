package join

import (
	"github.com/gosuda/pipecraft/pipe"
)

// SortedJoin performs an N-way ordered join of one left pipe against
// len(rights) right pipes, all non-decreasing in cmp over their
// extracted keys. It holds no more than the current key's matches in
// memory at a time.
type SortedJoin[K, L, R any] struct {
	left    *cursor[K, L]
	rights  []*cursor[K, R]
	cmp     func(a, b K) int
	mode    Mode
	started bool

	leftPull   pipe.Pull[L]
	rightPulls []pipe.Pull[R]

	cache  pipe.PeekCache[Record[K, L, R]]
	closer pipe.CloseOnce
	prog   pipe.AtomicProgress
}

// NewSortedJoin builds a SortedJoin. leftKey/rightKey extract the join
// key from each side; cmp orders keys; mode selects which keys survive.
func NewSortedJoin[K, L, R any](left pipe.Pull[L], rights []pipe.Pull[R], leftKey func(L) K, rightKey func(R) K, cmp func(a, b K) int, mode Mode) *SortedJoin[K, L, R] {
	rcs := make([]*cursor[K, R], len(rights))
	for i, r := range rights {
		rcs[i] = newCursor(r, rightKey, cmp)
	}
	return &SortedJoin[K, L, R]{
		left:       newCursor(left, leftKey, cmp),
		rights:     rcs,
		cmp:        cmp,
		mode:       mode,
		leftPull:   left,
		rightPulls: rights,
	}
}

func (j *SortedJoin[K, L, R]) Start() error {
	if err := j.leftPull.Start(); err != nil {
		return wrapCursorErr("sortedjoin.Start", err)
	}
	for _, r := range j.rightPulls {
		if err := r.Start(); err != nil {
			return wrapCursorErr("sortedjoin.Start", err)
		}
	}
	j.started = true
	return nil
}

func (j *SortedJoin[K, L, R]) rawNext() (Record[K, L, R], bool, error) {
	var zero Record[K, L, R]
	for {
		if err := j.left.refresh(); err != nil {
			return zero, false, wrapCursorErr("sortedjoin.Next", err)
		}
		rightActive := make([]bool, len(j.rights))
		for i, rc := range j.rights {
			if err := rc.refresh(); err != nil {
				return zero, false, wrapCursorErr("sortedjoin.Next", err)
			}
			rightActive[i] = rc.active
		}

		if canEarlyExit(j.mode, j.left.active, rightActive) {
			j.prog.Set(1)
			return zero, false, nil
		}

		hasMin := false
		var minKey K
		if j.left.active {
			minKey = j.left.peekedKey
			hasMin = true
		}
		for i, rc := range j.rights {
			if !rightActive[i] {
				continue
			}
			if !hasMin || j.cmp(rc.peekedKey, minKey) < 0 {
				minKey = rc.peekedKey
				hasMin = true
			}
		}
		if !hasMin {
			j.prog.Set(1)
			return zero, false, nil
		}

		rec := Record[K, L, R]{Key: minKey, Right: map[int][]R{}}
		if j.left.active && j.cmp(j.left.peekedKey, minKey) == 0 {
			items, err := j.left.takeMatching(minKey)
			if err != nil {
				return zero, false, wrapCursorErr("sortedjoin.Next", err)
			}
			rec.Left = items
		}
		for i, rc := range j.rights {
			if !rightActive[i] || j.cmp(rc.peekedKey, minKey) != 0 {
				continue
			}
			items, err := rc.takeMatching(minKey)
			if err != nil {
				return zero, false, wrapCursorErr("sortedjoin.Next", err)
			}
			if len(items) > 0 {
				rec.Right[i] = items
			}
		}

		if shouldOutput(j.mode, rec, len(j.rights)) {
			return rec, true, nil
		}
	}
}

func (j *SortedJoin[K, L, R]) Next() (Record[K, L, R], bool, error) { return j.cache.Next(j.rawNext) }
func (j *SortedJoin[K, L, R]) Peek() (Record[K, L, R], bool, error) { return j.cache.Peek(j.rawNext) }

func (j *SortedJoin[K, L, R]) Progress() float64 { return j.prog.Get() }

func (j *SortedJoin[K, L, R]) Close() error {
	return j.closer.Do(func() error {
		closers := make([]pipe.Pipe, 0, 1+len(j.rightPulls))
		closers = append(closers, j.leftPull)
		for _, r := range j.rightPulls {
			closers = append(closers, r)
		}
		return pipe.CloseAll("sortedjoin.Close", closers...)
	})
}
