package pools

import (
	"sync"
)

// maxPooledMapLen bounds the maps kept for reuse
const maxPooledMapLen = 4096

// MapPool pools scratch maps
type MapPool[K comparable, V any] struct {
	pool sync.Pool
}

// NewMapPool creates a new map pool
func NewMapPool[K comparable, V any]() *MapPool[K, V] {
	return &MapPool[K, V]{
		pool: sync.Pool{
			New: func() any {
				return make(map[K]V, 16)
			},
		},
	}
}

// Get returns an empty map from the pool.
func (p *MapPool[K, V]) Get() map[K]V {
	m, ok := p.pool.Get().(map[K]V)
	if !ok {
		return make(map[K]V, 16)
	}
	clear(m)
	return m
}

// Put returns a map to the pool.
func (p *MapPool[K, V]) Put(m map[K]V) {
	if m == nil || len(m) > maxPooledMapLen {
		return
	}
	p.pool.Put(m)
}
