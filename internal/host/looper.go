package host

import (
	"sync"
)

const defaultQueueSize = 64

// Looper is an Activity backed by a dedicated goroutine that runs posted
// tasks one at a time, in posting order.
type Looper struct {
	name  string
	tasks chan func()

	mu      sync.Mutex
	running bool
	quit    chan struct{}
	wg      sync.WaitGroup
}

// NewLooper creates a stopped looper. queueSize <= 0 selects the default.
func NewLooper(name string, queueSize int) *Looper {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Looper{
		name:  name,
		tasks: make(chan func(), queueSize),
	}
}

// Name implements Activity.
func (l *Looper) Name() string {
	return l.name
}

// Start launches the UI goroutine. Starting a running looper is a no-op.
func (l *Looper) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return
	}
	l.running = true
	l.quit = make(chan struct{})
	l.wg.Add(1)
	go l.loop(l.quit)
}

func (l *Looper) loop(quit chan struct{}) {
	defer l.wg.Done()
	for {
		select {
		case fn := <-l.tasks:
			fn()
		case <-quit:
			// drain what was accepted before Stop
			for {
				select {
				case fn := <-l.tasks:
					fn()
				default:
					return
				}
			}
		}
	}
}

// Stop runs any queued tasks, then stops the UI goroutine and waits for it.
func (l *Looper) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	close(l.quit)
	l.mu.Unlock()
	l.wg.Wait()
}

// Post queues fn for the UI goroutine. It never blocks: a full queue returns
// ErrQueueFull, so a task running on the UI goroutine may post safely.
func (l *Looper) Post(fn func()) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running {
		return ErrLooperStopped
	}
	select {
	case l.tasks <- fn:
		return nil
	default:
		return ErrQueueFull
	}
}

// RunOnUIThread implements Activity. It returns false when the looper is
// stopped or its queue is full.
func (l *Looper) RunOnUIThread(fn func()) bool {
	return l.Post(fn) == nil
}
