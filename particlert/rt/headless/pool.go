package headless

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool runs thread groups of a dispatch on a fixed set of goroutines.
//
// Each worker owns a queue; Run hands out contiguous group ranges round-robin and
// blocks until all of them finished. WorkerPool is safe for concurrent use but the
// device only ever runs one dispatch at a time.
type WorkerPool struct {
	workers    int
	workQueues []chan func()
	done       chan struct{}
	wg         sync.WaitGroup
	running    atomic.Bool
}

// NewWorkerPool starts workers goroutines. workers <= 0 means GOMAXPROCS.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	queueSize := workers * 4
	if queueSize < 8 {
		queueSize = 8
	}

	p := &WorkerPool{
		workers:    workers,
		workQueues: make([]chan func(), workers),
		done:       make(chan struct{}),
	}
	for i := range workers {
		p.workQueues[i] = make(chan func(), queueSize)
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *WorkerPool) Workers() int { return p.workers }

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	queue := p.workQueues[id]
	for {
		select {
		case <-p.done:
			for {
				select {
				case work := <-queue:
					work()
				default:
					return
				}
			}
		case work := <-queue:
			work()
		}
	}
}

// Run calls fn(g) for every g in [0, groups) and waits for all calls. A panicking
// fn does not take the pool down; the first panic is returned as an error.
func (p *WorkerPool) Run(groups uint32, fn func(group uint32)) error {
	if groups == 0 {
		return nil
	}
	if !p.running.Load() {
		return fmt.Errorf("worker pool closed")
	}

	chunks := uint32(p.workers * 4)
	if chunks > groups {
		chunks = groups
	}
	per := (groups + chunks - 1) / chunks

	var (
		wg       sync.WaitGroup
		panicMu  sync.Mutex
		panicErr error
	)
	for c := uint32(0); c < chunks; c++ {
		lo := c * per
		if lo >= groups {
			break
		}
		hi := lo + per
		if hi > groups {
			hi = groups
		}
		wg.Add(1)
		work := func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					panicMu.Lock()
					if panicErr == nil {
						panicErr = fmt.Errorf("kernel panic in groups [%d,%d): %v", lo, hi, r)
					}
					panicMu.Unlock()
				}
			}()
			for g := lo; g < hi; g++ {
				fn(g)
			}
		}
		select {
		case p.workQueues[int(c)%p.workers] <- work:
		case <-p.done:
			wg.Done()
		}
	}
	wg.Wait()
	return panicErr
}

// Close stops the workers after draining queued work. Close is idempotent.
func (p *WorkerPool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}
