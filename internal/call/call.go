// Package call models an inbound bridge request whose result may be
// delivered long after the method that accepted it has returned.
//
// A Call is settled exactly once, either resolved with a payload or rejected
// with an *Error. Settlement never blocks; callers that need the outcome
// synchronously use Wait.
package call

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ResultOK is the code carried by acknowledgement payloads.
const ResultOK = 1

// Ack is the generic acknowledgement payload.
type Ack struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// OK builds a successful acknowledgement.
func OK(message string) Ack {
	return Ack{Code: ResultOK, Message: message}
}

// Outcome is either a success payload or a rejection. Exactly one of Payload
// and Err is meaningful: Err != nil marks a failure.
type Outcome struct {
	Payload any
	Err     *Error
}

// Succeeded reports whether the outcome is a success.
func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

// Option configures a Call.
type Option func(*Call)

// OnSettle registers fn to run after the call is settled. Observers run on
// the goroutine that settled the call.
func OnSettle(fn func(*Call)) Option {
	return func(c *Call) {
		c.observers = append(c.observers, fn)
	}
}

// Call is the pending-result handle of one inbound request.
type Call struct {
	ID        string
	Method    string
	CreatedAt time.Time

	once      sync.Once
	done      chan struct{}
	outcome   Outcome
	observers []func(*Call)
}

// New creates an unsettled call for the named method.
func New(method string, opts ...Option) *Call {
	c := &Call{
		ID:        uuid.NewString(),
		Method:    method,
		CreatedAt: time.Now(),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve settles the call successfully. It returns false if the call was
// already settled, in which case payload is discarded.
func (c *Call) Resolve(payload any) bool {
	return c.settle(Outcome{Payload: payload})
}

// Reject settles the call with err. It returns false if the call was already
// settled.
func (c *Call) Reject(err *Error) bool {
	if err == nil {
		err = NewError(CodeInvalidRequest, "rejected without reason")
	}
	return c.settle(Outcome{Err: err})
}

func (c *Call) settle(o Outcome) bool {
	settled := false
	c.once.Do(func() {
		c.outcome = o
		close(c.done)
		settled = true
	})
	if settled {
		for _, fn := range c.observers {
			fn(c)
		}
	}
	return settled
}

// Done is closed once the call is settled.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Settled reports whether the call has been resolved or rejected.
func (c *Call) Settled() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Outcome returns the settled outcome. ok is false while the call is pending.
func (c *Call) Outcome() (Outcome, bool) {
	if !c.Settled() {
		return Outcome{}, false
	}
	return c.outcome, true
}

// Wait blocks until the call is settled or ctx is done. Giving up on the wait
// does not cancel the call; it stays pending until its result arrives.
func (c *Call) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-c.done:
		return c.outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}
