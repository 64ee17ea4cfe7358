// Package parallel runs compute workgroups on a pool of goroutines.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Pool is a fixed set of worker goroutines with per-worker queues.
//
// Workers pull from their own queue first and steal from the others when it
// is empty, which keeps uneven workgroups from idling the pool.
//
// Pool is safe for concurrent use.
type Pool struct {
	workers int
	queues  []chan func()
	done    chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool
}

// NewPool starts a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	queueSize := max(workers*4, 8)

	p := &Pool{
		workers: workers,
		queues:  make([]chan func(), workers),
		done:    make(chan struct{}),
	}
	for i := range workers {
		p.queues[i] = make(chan func(), queueSize)
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	own := p.queues[id]

	for {
		select {
		case <-p.done:
			p.drain(own)
			return
		case fn := <-own:
			fn()
			continue
		default:
		}

		if fn := p.steal(id); fn != nil {
			fn()
			continue
		}

		select {
		case <-p.done:
			p.drain(own)
			return
		case fn := <-own:
			fn()
		}
	}
}

func (p *Pool) drain(q chan func()) {
	for {
		select {
		case fn := <-q:
			fn()
		default:
			return
		}
	}
}

func (p *Pool) steal(id int) func() {
	for i := range p.workers {
		if i == id {
			continue
		}
		select {
		case fn := <-p.queues[i]:
			return fn
		default:
		}
	}
	return nil
}

// Range calls fn(i) for every i in [0, n) and waits for all calls.
// Indices are handed out in contiguous chunks, several per worker.
// On a closed pool Range runs fn on the calling goroutine.
func (p *Pool) Range(n int, fn func(i int)) {
	if n <= 0 {
		return
	}
	if !p.running.Load() || p.workers == 1 || n == 1 {
		for i := range n {
			fn(i)
		}
		return
	}

	chunk := max(n/(p.workers*4), 1)
	var wg sync.WaitGroup
	q := 0
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		wg.Add(1)
		task := func() {
			defer wg.Done()
			for i := start; i < end; i++ {
				fn(i)
			}
		}
		select {
		case p.queues[q%p.workers] <- task:
		case <-p.done:
			task()
		}
		q++
	}
	wg.Wait()
}

// Dispatch calls fn once per workgroup of an (x, y, z) grid and waits.
func (p *Pool) Dispatch(x, y, z uint32, fn func(gx, gy, gz uint32)) {
	total := int(uint64(x) * uint64(y) * uint64(z))
	if total == 0 {
		return
	}
	p.Range(total, func(i int) {
		gx := uint32(i) % x
		gy := (uint32(i) / x) % y
		gz := uint32(i) / (x * y)
		fn(gx, gy, gz)
	})
}

// Close stops the pool after queued work has run.
// Close is safe to call multiple times.
func (p *Pool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

// Workers returns the number of workers.
func (p *Pool) Workers() int { return p.workers }

// IsRunning reports whether the pool accepts work.
func (p *Pool) IsRunning() bool { return p.running.Load() }
