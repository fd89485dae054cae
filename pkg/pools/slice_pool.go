package pools

import (
	"sync"
)

var sliceClasses = [4]int{16, 64, 512, 4096}

// SlicePool pools slices of T in a few capacity classes
type SlicePool[T any] struct {
	classes [4]sync.Pool
}

// NewSlicePool creates a new slice pool
func NewSlicePool[T any]() *SlicePool[T] {
	p := &SlicePool[T]{}
	for i, size := range sliceClasses {
		p.classes[i].New = func() any {
			s := make([]T, 0, size)
			return &s
		}
	}
	return p
}

// Get returns a slice with at least the requested capacity and length 0
func (p *SlicePool[T]) Get(size int) []T {
	i := classFor(sliceClasses[:], size)
	if i < 0 {
		return make([]T, 0, size)
	}

	sp, ok := p.classes[i].Get().(*[]T)
	if !ok || cap(*sp) < size {
		return make([]T, 0, size)
	}
	return (*sp)[:0]
}

// Put returns a slice to the pool
func (p *SlicePool[T]) Put(s []T) {
	c := cap(s)
	if c < sliceClasses[0] || c > sliceClasses[len(sliceClasses)-1] {
		return
	}

	i := len(sliceClasses) - 1
	for i > 0 && sliceClasses[i] > c {
		i--
	}
	s = s[:0]
	p.classes[i].Put(&s)
}
