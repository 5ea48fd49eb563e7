// Package pool wraps sync.Pool with creation metrics.
package pool

import (
	"sync"

	"github.com/linchenxuan/lobbyd/metrics"
)

// Pool is a sync.Pool that counts allocations made because it was empty.
type Pool struct {
	Name string
	Pool *sync.Pool
}

// NewPool creates an instrumented pool; name is the metric dimension.
func NewPool(name string, newFunc func() any) *Pool {
	p := &Pool{
		Name: name,
	}

	p.Pool = &sync.Pool{
		New: func() any {
			metrics.IncrCounterWithDimGroup(metrics.NamePoolCreateTotal, metrics.GroupLobbyd, 1, metrics.Dimension{
				metrics.DimPoolName: name,
			})
			return newFunc()
		},
	}
	return p
}

// Put adds x back to the pool for reuse.
func (p *Pool) Put(x any) {
	p.Pool.Put(x)
}

// Get retrieves an item from the pool.
func (p *Pool) Get() any {
	return p.Pool.Get()
}

// BytePool hands out fixed-size byte slices, used for connection read chunks.
type BytePool struct {
	p    *Pool
	size int
}

// NewBytePool creates a pool of size-byte slices.
func NewBytePool(name string, size int) *BytePool {
	return &BytePool{
		size: size,
		p: NewPool(name, func() any {
			b := make([]byte, size)
			return &b
		}),
	}
}

// Get returns a slice of the pool's size.
func (bp *BytePool) Get() *[]byte {
	b := bp.p.Get().(*[]byte)
	*b = (*b)[:bp.size]
	return b
}

// Put returns a slice obtained from Get.
func (bp *BytePool) Put(b *[]byte) {
	if b == nil || cap(*b) < bp.size {
		return
	}
	bp.p.Put(b)
}

// Size returns the slice length handed out by Get.
func (bp *BytePool) Size() int {
	return bp.size
}
