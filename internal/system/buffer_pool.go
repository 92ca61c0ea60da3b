package system

import (
	"strconv"
	"sync"
)

// PlanePool reuses float32 scratch planes across mask workers to keep the
// Garbage Collector quiet. Upsampled planes at full input resolution are the
// hot allocation of a run, one per selected channel per pass.
type PlanePool struct {
	pools map[string]*sync.Pool
	mu    sync.RWMutex
}

var globalPlanes = &PlanePool{
	pools: make(map[string]*sync.Pool),
}

// GetPlane returns a zeroed float32 slice of length n from the pool.
func GetPlane(n int) []float32 {
	return globalPlanes.Get(n)
}

// PutPlane returns a slice to the pool for reuse.
func PutPlane(p []float32) {
	globalPlanes.Put(p)
}

func (p *PlanePool) Get(n int) []float32 {
	key := strconv.Itoa(n)
	p.mu.RLock()
	pool, exists := p.pools[key]
	p.mu.RUnlock()

	if !exists {
		p.mu.Lock()
		// Double check
		pool, exists = p.pools[key]
		if !exists {
			pool = &sync.Pool{
				New: func() interface{} {
					return make([]float32, n)
				},
			}
			p.pools[key] = pool
		}
		p.mu.Unlock()
	}

	plane := pool.Get().([]float32)
	for i := range plane {
		plane[i] = 0
	}
	return plane
}

func (p *PlanePool) Put(plane []float32) {
	if plane == nil {
		return
	}
	key := strconv.Itoa(len(plane))
	p.mu.RLock()
	pool, exists := p.pools[key]
	p.mu.RUnlock()

	if exists {
		pool.Put(plane)
	}
}
