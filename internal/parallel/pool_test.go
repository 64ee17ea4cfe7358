package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
)

// =============================================================================
// Pool Creation Tests
// =============================================================================

func TestPool_Create(t *testing.T) {
	pool := NewPool(4)
	defer pool.Close()

	if pool.Workers() != 4 {
		t.Errorf("Workers() = %d, want 4", pool.Workers())
	}
	if !pool.IsRunning() {
		t.Error("Pool should be running after creation")
	}
}

func TestPool_CreateDefaultWorkers(t *testing.T) {
	for _, n := range []int{0, -3} {
		pool := NewPool(n)
		if pool.Workers() != runtime.GOMAXPROCS(0) {
			t.Errorf("NewPool(%d).Workers() = %d, want GOMAXPROCS", n, pool.Workers())
		}
		pool.Close()
	}
}

// =============================================================================
// Range Tests
// =============================================================================

func TestPool_RangeVisitsEveryIndexOnce(t *testing.T) {
	pool := NewPool(4)
	defer pool.Close()

	for _, n := range []int{1, 3, 16, 1000, 1023} {
		hits := make([]atomic.Int32, n)
		pool.Range(n, func(i int) { hits[i].Add(1) })
		for i := range hits {
			if got := hits[i].Load(); got != 1 {
				t.Fatalf("n=%d: index %d visited %d times", n, i, got)
			}
		}
	}
}

func TestPool_RangeEmpty(t *testing.T) {
	pool := NewPool(2)
	defer pool.Close()

	called := false
	pool.Range(0, func(int) { called = true })
	if called {
		t.Error("Range(0) must not call fn")
	}
}

func TestPool_RangeAfterClose(t *testing.T) {
	pool := NewPool(2)
	pool.Close()

	var sum int
	pool.Range(4, func(i int) { sum += i })
	if sum != 6 {
		t.Errorf("sum = %d, want 6 (inline execution after Close)", sum)
	}
}

func TestPool_ConcurrentRange(t *testing.T) {
	pool := NewPool(4)
	defer pool.Close()

	var total atomic.Int64
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.Range(100, func(int) { total.Add(1) })
		}()
	}
	wg.Wait()
	if total.Load() != 800 {
		t.Errorf("total = %d, want 800", total.Load())
	}
}

// =============================================================================
// Dispatch Tests
// =============================================================================

func TestPool_DispatchCoversGrid(t *testing.T) {
	pool := NewPool(3)
	defer pool.Close()

	var mu sync.Mutex
	seen := make(map[[3]uint32]int)
	pool.Dispatch(3, 4, 2, func(gx, gy, gz uint32) {
		mu.Lock()
		seen[[3]uint32{gx, gy, gz}]++
		mu.Unlock()
	})

	if len(seen) != 24 {
		t.Fatalf("visited %d groups, want 24", len(seen))
	}
	for g, n := range seen {
		if n != 1 || g[0] >= 3 || g[1] >= 4 || g[2] >= 2 {
			t.Errorf("group %v visited %d times", g, n)
		}
	}
}

func TestPool_DispatchZeroGroups(t *testing.T) {
	pool := NewPool(2)
	defer pool.Close()

	pool.Dispatch(0, 5, 1, func(uint32, uint32, uint32) {
		t.Error("zero-sized dispatch ran a group")
	})
}

func TestPool_CloseIdempotent(t *testing.T) {
	pool := NewPool(2)
	pool.Close()
	pool.Close()
	if pool.IsRunning() {
		t.Error("closed pool reports running")
	}
}
