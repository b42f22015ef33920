package peertest

import "sync"

// dispatcher runs posted jobs one at a time, in order, on its own goroutine.
// The queue is unbounded so posting never blocks the caller.
type dispatcher struct {
	mu     sync.Mutex
	cond   *sync.Cond
	jobs   []func()
	closed bool
}

func newDispatcher() *dispatcher {
	d := &dispatcher{}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

func (d *dispatcher) post(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.jobs = append(d.jobs, fn)
	d.cond.Signal()
}

// close lets already queued jobs finish and then stops the goroutine.
func (d *dispatcher) close() {
	d.mu.Lock()
	d.closed = true
	d.cond.Signal()
	d.mu.Unlock()
}

func (d *dispatcher) run() {
	for {
		d.mu.Lock()
		for len(d.jobs) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.jobs) == 0 {
			d.mu.Unlock()
			return
		}
		fn := d.jobs[0]
		d.jobs = d.jobs[1:]
		d.mu.Unlock()

		fn()
	}
}
