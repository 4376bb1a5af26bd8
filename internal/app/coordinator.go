package app

import "sync"

// Coordinator serializes all mutations of one conversation onto a single
// owner goroutine, the in-process equivalent of a UI thread. Session events,
// text sends and post-session memory generation are all posted here, so no
// two transcript mutations for the same conversation ever run concurrently.
type Coordinator struct {
	mu     sync.Mutex
	ops    chan func()
	closed bool

	done chan struct{}
}

const coordinatorQueueDepth = 64

func NewCoordinator() *Coordinator {
	c := &Coordinator{
		ops:  make(chan func(), coordinatorQueueDepth),
		done: make(chan struct{}),
	}
	go c.run()
	return c
}

func (c *Coordinator) run() {
	defer close(c.done)
	for fn := range c.ops {
		fn()
	}
}

// Post enqueues fn for execution on the owner goroutine. Calls made after
// Close are dropped.
func (c *Coordinator) Post(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.ops <- fn
}

// PostWait runs fn on the owner goroutine and blocks until it completes.
func (c *Coordinator) PostWait(fn func()) {
	ch := make(chan struct{})
	c.Post(func() {
		defer close(ch)
		fn()
	})
	select {
	case <-ch:
	case <-c.done:
	}
}

// Close stops accepting work and waits for queued operations, including any
// scheduled memory generation, to drain.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.ops)
	}
	c.mu.Unlock()
	<-c.done
}
