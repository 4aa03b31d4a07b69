package stream

import "sync"

// scratchPool recycles per-cycle scratch buffers. The size is decided by the
// caller on every cycle; only the backing memory is reused.
type scratchPool struct {
	pool sync.Pool
}

func newScratchPool() *scratchPool {
	return &scratchPool{
		pool: sync.Pool{
			New: func() any {
				b := make([]byte, 0, 4096)
				return &b
			},
		},
	}
}

// get returns a zeroed buffer of exactly n bytes.
func (p *scratchPool) get(n int) *[]byte {
	bp := p.pool.Get().(*[]byte)
	if cap(*bp) < n {
		*bp = make([]byte, n)
	} else {
		*bp = (*bp)[:n]
		clear(*bp)
	}
	return bp
}

func (p *scratchPool) put(bp *[]byte) {
	p.pool.Put(bp)
}
