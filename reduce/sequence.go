package reduce

import (
	"github.com/gosuda/pipecraft/pipe"
)

// SequenceReductor assumes equal keys are contiguous in the upstream and
// emits Finalize(acc) exactly when the key changes or the upstream ends,
// holding at most one accumulator at a time.
type SequenceReductor[T, K comparable, A, O any] struct {
	upstream pipe.Pull[T]
	cfg      Config[T, K, A, O]

	hasCur bool
	curKey K
	curAcc A

	pending []O
	done    bool
	cache   pipe.PeekCache[O]
	closer  pipe.CloseOnce
	prog    pipe.AtomicProgress
}

func NewSequenceReductor[T, K comparable, A, O any](upstream pipe.Pull[T], cfg Config[T, K, A, O]) *SequenceReductor[T, K, A, O] {
	return &SequenceReductor[T, K, A, O]{upstream: upstream, cfg: cfg}
}

func (s *SequenceReductor[T, K, A, O]) Start() error {
	if err := s.upstream.Start(); err != nil {
		return pipe.NewError(pipe.KindIO, "sequencereductor.Start", err)
	}
	return nil
}

// rawNext pulls from upstream until a group closes, returning its
// finalized output. One upstream item can close the previous group and
// open a new one in the same call; that item is folded into the new group
// at once, and the new group is only finalized when a later item or
// upstream exhaustion closes it.
func (s *SequenceReductor[T, K, A, O]) rawNext() (O, bool, error) {
	for {
		if len(s.pending) > 0 {
			out := s.pending[0]
			s.pending = s.pending[1:]
			return out, true, nil
		}
		if s.done {
			var zero O
			return zero, false, nil
		}
		v, ok, err := s.upstream.Next()
		if err != nil {
			var zero O
			return zero, false, pipe.NewError(pipe.KindIO, "sequencereductor.Next", err)
		}
		if !ok {
			s.done = true
			if s.hasCur {
				s.pending = append(s.pending, s.cfg.Finalize(s.curKey, s.curAcc))
				s.hasCur = false
			}
			s.prog.Set(1)
			continue
		}
		key := s.cfg.Discriminator(v)
		if !s.hasCur {
			s.curKey = key
			s.curAcc = s.cfg.Init(key)
			s.hasCur = true
		} else if key != s.curKey {
			s.pending = append(s.pending, s.cfg.Finalize(s.curKey, s.curAcc))
			s.curKey = key
			s.curAcc = s.cfg.Init(key)
		}
		s.curAcc = s.cfg.Fold(s.curAcc, v)
	}
}

func (s *SequenceReductor[T, K, A, O]) Next() (O, bool, error) { return s.cache.Next(s.rawNext) }
func (s *SequenceReductor[T, K, A, O]) Peek() (O, bool, error) { return s.cache.Peek(s.rawNext) }

func (s *SequenceReductor[T, K, A, O]) Progress() float64 { return s.prog.Get() }

func (s *SequenceReductor[T, K, A, O]) Close() error {
	return s.closer.Do(func() error {
		if err := s.upstream.Close(); err != nil {
			return pipe.NewError(pipe.KindIO, "sequencereductor.Close", err)
		}
		return nil
	})
}
