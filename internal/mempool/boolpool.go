// Package mempool keeps sized pools of scratch buffers for per-frame hot paths.
package mempool

import (
	"sync"
)

var boolPools sync.Map // key: size class (int), value: *sync.Pool

const classStep = 256

// sizeClass rounds n up to the next multiple of classStep. Codewords are a
// few hundred bits, so classes stay few.
func sizeClass(n int) int {
	if n <= classStep {
		return classStep
	}
	r := (n + classStep - 1) / classStep
	return r * classStep
}

func boolPool(cls int) *sync.Pool {
	pAny, _ := boolPools.LoadOrStore(cls, &sync.Pool{New: func() any { return make([]bool, cls) }})
	p, ok := pAny.(*sync.Pool)
	if !ok {
		return nil
	}
	return p
}

// GetBool retrieves a zeroed []bool of length n.
// The caller must return it via PutBool when done.
func GetBool(n int) []bool {
	cls := sizeClass(n)
	p := boolPool(cls)
	if p == nil {
		return make([]bool, n)
	}
	buf, ok := p.Get().([]bool)
	if !ok || cap(buf) < cls {
		buf = make([]bool, cls)
	}
	buf = buf[:n]
	clear(buf)
	return buf
}

// PutBool returns a buffer to the pool. It is safe to pass a nil slice.
func PutBool(buf []bool) {
	if buf == nil {
		return
	}
	// only whole classes go back so Get never sees a short buffer
	cls := cap(buf)
	if cls%classStep != 0 {
		return
	}
	if p := boolPool(cls); p != nil {
		p.Put(buf[:cls]) //nolint:staticcheck
	}
}
