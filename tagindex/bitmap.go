package tagindex

import (
	"fmt"
	"math/bits"
)

// Bitmap is a fixed-size set of small integers.
type Bitmap struct {
	words []uint64
	size  int
}

// NewBitmap returns an empty bitmap holding positions [0, size).
func NewBitmap(size int) *Bitmap {
	return &Bitmap{words: make([]uint64, (size+63)/64), size: size}
}

// Len returns the number of positions.
func (b *Bitmap) Len() int { return b.size }

func (b *Bitmap) check(i int) {
	if i < 0 || i >= b.size {
		panic(fmt.Sprintf("tagindex: bit %d out of range [0,%d)", i, b.size))
	}
}

// Set marks position i. It panics if i is out of range.
func (b *Bitmap) Set(i int) {
	b.check(i)
	b.words[i/64] |= 1 << (uint(i) % 64)
}

// Unset clears position i. It panics if i is out of range.
func (b *Bitmap) Unset(i int) {
	b.check(i)
	b.words[i/64] &^= 1 << (uint(i) % 64)
}

// IsSet reports whether position i is marked. It panics if i is out of range.
func (b *Bitmap) IsSet(i int) bool {
	b.check(i)
	return b.words[i/64]&(1<<(uint(i)%64)) != 0
}

// Intersects reports whether b and o share a marked position.
func (b *Bitmap) Intersects(o *Bitmap) bool {
	n := min(len(b.words), len(o.words))
	for i := range n {
		if b.words[i]&o.words[i] != 0 {
			return true
		}
	}
	return false
}

// Count returns the number of marked positions.
func (b *Bitmap) Count() int {
	n := 0
	for _, w := range b.words {
		n += bits.OnesCount64(w)
	}
	return n
}
