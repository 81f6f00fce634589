// Package reduce implements the streaming and disk-backed grouping
// operators: SequenceReductor, HashReductor, Grouper, ListReductor, and
// Dedup.
package reduce

// Config parameterizes every reductor: items are grouped by
// Discriminator, an accumulator is seeded by Init on first sight of a
// key, folded by Fold for every subsequent item with that key, and
// converted to an output value by Finalize once the group is complete.
type Config[T any, K comparable, A, O any] struct {
	Discriminator func(T) K
	Init          func(K) A
	Fold          func(A, T) A
	Finalize      func(K, A) O
}
