// Package host models the host runtime's UI-capable execution context.
//
// Card reader flows are launched from the foreground activity and must run on
// its UI thread. A Looper provides that thread: a single goroutine draining a
// queue of tasks in order. Foreground tracks which activity, if any, is
// currently attached.
package host

import (
	"errors"
	"sync"
)

// ErrLooperStopped is returned when posting to a looper that is not running.
var ErrLooperStopped = errors.New("host: looper is not running")

// ErrQueueFull is returned when a looper's task queue has no free slot.
var ErrQueueFull = errors.New("host: looper queue is full")

// Activity is the foreground UI surface SDK flows are launched from.
type Activity interface {
	// Name identifies the activity in logs.
	Name() string
	// RunOnUIThread queues fn on the activity's UI thread. It returns false
	// if the thread is not accepting work.
	RunOnUIThread(fn func()) bool
}

// Host exposes the currently attached activity. Activity returns nil when the
// host has no foreground activity.
type Host interface {
	Activity() Activity
}

// RunOnMainThread runs fn on the UI thread of h's current activity. When no
// activity is attached, or the activity refuses the task, fn runs directly on
// the calling goroutine with whatever activity was found (possibly nil).
func RunOnMainThread(h Host, fn func(Activity)) {
	var act Activity
	if h != nil {
		act = h.Activity()
	}
	if act != nil && act.RunOnUIThread(func() { fn(act) }) {
		return
	}
	fn(act)
}

// Foreground is a Host whose activity is attached and detached by the
// runtime as activities come and go.
type Foreground struct {
	mu  sync.RWMutex
	act Activity
}

// NewForeground creates a Foreground with act attached. act may be nil.
func NewForeground(act Activity) *Foreground {
	return &Foreground{act: act}
}

// Attach makes act the current activity.
func (f *Foreground) Attach(act Activity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.act = act
}

// Detach clears the current activity.
func (f *Foreground) Detach() {
	f.Attach(nil)
}

// Activity implements Host.
func (f *Foreground) Activity() Activity {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.act
}
