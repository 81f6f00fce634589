// Package join implements the three join operators: SortedJoin (N-way
// ordered merge), LookupJoin (in-memory right side), and HashJoin
// (disk-backed, partitioned into LookupJoin-sized buckets).
package join

// Record is the output of every join operator: the shared key, every
// left-side match for it, and every right-side match grouped by the
// index of the right pipe that produced it. A right pipe index absent
// from Right means that pipe had no match for this key.
type Record[K, L, R any] struct {
	Key   K
	Left  []L
	Right map[int][]R
}

// Mode selects which keys a join emits.
type Mode int

const (
	// Left emits every key the left side has, regardless of right matches.
	Left Mode = iota
	// Inner emits keys present on the left with at least one right match.
	Inner
	// FullInner emits keys present on the left with a match from every
	// right pipe.
	FullInner
	// Outer emits every key seen on any side, left or right.
	Outer
)

func shouldOutput[K, L, R any](m Mode, rec Record[K, L, R], rightN int) bool {
	switch m {
	case Left:
		return len(rec.Left) > 0
	case Inner:
		return len(rec.Left) > 0 && len(rec.Right) > 0
	case FullInner:
		return len(rec.Left) > 0 && len(rec.Right) == rightN
	case Outer:
		return true
	default:
		return false
	}
}

// canEarlyExit decides, from which streams are still active, whether a
// sorted merge can stop without discovering further output. leftActive
// and the entries of rightActive are each the cursor's "has more items"
// state.
func canEarlyExit(m Mode, leftActive bool, rightActive []bool) bool {
	switch m {
	case Left:
		return !leftActive
	case Inner:
		if !leftActive {
			return true
		}
		for _, a := range rightActive {
			if a {
				return false
			}
		}
		return true
	case FullInner:
		if !leftActive {
			return true
		}
		for _, a := range rightActive {
			if !a {
				return true
			}
		}
		return false
	case Outer:
		if leftActive {
			return false
		}
		for _, a := range rightActive {
			if a {
				return false
			}
		}
		return true
	default:
		return true
	}
}
