// Package registry holds the calls waiting for an activity result.
//
// Each launching operation owns one Slot. A slot holds at most one pending
// call: the call is stored right before the SDK flow is launched and removed
// exactly once, by Claim, when the flow's result arrives.
package registry

import (
	"sync"

	"github.com/yourorg/reader-bridge/internal/call"
	"github.com/yourorg/reader-bridge/internal/telemetry"
)

// Slot identifies one of the launching operations.
type Slot int

const (
	SlotLogin Slot = iota
	SlotCheckout
	SlotReaderSetup

	slotCount
)

// Request codes handed to the SDK at launch and echoed back with the result.
const (
	RequestCodeLogin       = 10001
	RequestCodeCheckout    = 10002
	RequestCodeReaderSetup = 10003
)

// Slots lists every slot in declaration order.
func Slots() []Slot {
	return []Slot{SlotLogin, SlotCheckout, SlotReaderSetup}
}

func (s Slot) String() string {
	switch s {
	case SlotLogin:
		return "login"
	case SlotCheckout:
		return "checkout"
	case SlotReaderSetup:
		return "reader_setup"
	default:
		return "unknown"
	}
}

// RequestCode returns the SDK request code for s.
func (s Slot) RequestCode() int {
	switch s {
	case SlotLogin:
		return RequestCodeLogin
	case SlotCheckout:
		return RequestCodeCheckout
	case SlotReaderSetup:
		return RequestCodeReaderSetup
	default:
		return 0
	}
}

// SlotForRequestCode maps an activity result's request code back to a slot.
func SlotForRequestCode(code int) (Slot, bool) {
	switch code {
	case RequestCodeLogin:
		return SlotLogin, true
	case RequestCodeCheckout:
		return SlotCheckout, true
	case RequestCodeReaderSetup:
		return SlotReaderSetup, true
	default:
		return 0, false
	}
}

func (s Slot) valid() bool {
	return s >= 0 && s < slotCount
}

// Registry maps slots to their pending call. The zero value is not usable;
// create one with New.
type Registry struct {
	mu      sync.Mutex
	pending [slotCount]*call.Call
	metrics *telemetry.Metrics
}

// New creates an empty registry. metrics may be nil.
func New(metrics *telemetry.Metrics) *Registry {
	r := &Registry{metrics: metrics}
	for _, s := range Slots() {
		metrics.SetPending(s.String(), false)
	}
	return r
}

// Register stores c under slot and returns the call it displaced, if any.
// Displacement is not an error: the previous call is simply never settled.
// Registering on an unknown slot is a no-op returning nil.
func (r *Registry) Register(slot Slot, c *call.Call) (displaced *call.Call) {
	if !slot.valid() {
		return nil
	}
	r.mu.Lock()
	displaced = r.pending[slot]
	r.pending[slot] = c
	r.mu.Unlock()

	r.metrics.SetPending(slot.String(), c != nil)
	if displaced != nil && displaced != c {
		r.metrics.Orphaned(slot.String())
	}
	return displaced
}

// Claim removes and returns the call pending in slot, or nil if the slot is
// empty. At most one Claim observes a given registration.
func (r *Registry) Claim(slot Slot) *call.Call {
	if !slot.valid() {
		return nil
	}
	r.mu.Lock()
	c := r.pending[slot]
	r.pending[slot] = nil
	r.mu.Unlock()

	if c != nil {
		r.metrics.SetPending(slot.String(), false)
	}
	return c
}

// Pending reports whether slot currently holds a call.
func (r *Registry) Pending(slot Slot) bool {
	if !slot.valid() {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending[slot] != nil
}

// Snapshot returns the id of the pending call per slot, for diagnostics.
func (r *Registry) Snapshot() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, slotCount)
	for _, s := range Slots() {
		if c := r.pending[s]; c != nil {
			out[s.String()] = c.ID
		}
	}
	return out
}
