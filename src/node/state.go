package node

import (
	"sync"
	"sync/atomic"
)

// WGLIMIT is the maximum number of goroutines that can be launched through
// goFunc
const WGLIMIT = 20

// routines limits the number of goroutines launched by the node, and waits for
// all of them to complete on shutdown.
type routines struct {
	wg      sync.WaitGroup
	wgCount int32
}

// goFunc starts f in a goroutine if there are currently less than WGLIMIT
// running. It reports whether f was started.
func (b *routines) goFunc(f func()) bool {
	if atomic.AddInt32(&b.wgCount, 1) > WGLIMIT {
		atomic.AddInt32(&b.wgCount, -1)
		return false
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer atomic.AddInt32(&b.wgCount, -1)
		f()
	}()
	return true
}

func (b *routines) running() int {
	return int(atomic.LoadInt32(&b.wgCount))
}

func (b *routines) waitRoutines() {
	b.wg.Wait()
}
