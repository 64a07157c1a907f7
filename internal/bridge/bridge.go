// Package bridge is the entry point host runtimes talk to. It creates a call
// per inbound operation, hands it to the dispatcher and feeds activity
// results back through the router.
//
// A Bridge built without a terminal runs in unavailable mode: every
// operation resolves with an acknowledgement carrying UnavailableCode, and
// checkout rejects with UNAVAILABLE.
package bridge

import (
	"context"

	"go.uber.org/zap"

	"github.com/yourorg/reader-bridge/internal/call"
	"github.com/yourorg/reader-bridge/internal/dispatcher"
	"github.com/yourorg/reader-bridge/internal/host"
	"github.com/yourorg/reader-bridge/internal/policy"
	"github.com/yourorg/reader-bridge/internal/registry"
	"github.com/yourorg/reader-bridge/internal/reporting"
	"github.com/yourorg/reader-bridge/internal/router"
	"github.com/yourorg/reader-bridge/internal/sdk"
	"github.com/yourorg/reader-bridge/internal/telemetry"
)

// Unavailable-mode acknowledgement.
const (
	UnavailableCode    = -1
	UnavailableMessage = "card reader not available"
)

// Options configures a Bridge. Every field is optional.
type Options struct {
	Host    host.Host
	Policy  *policy.CheckoutPolicy
	Logger  *zap.Logger
	Metrics *telemetry.Metrics
	Ledger  *reporting.Ledger

	// Observers run after every call settles, after the ledger records it.
	Observers []func(*call.Call)
}

// Bridge wires the registry, dispatcher, router and ledger together.
type Bridge struct {
	registry   *registry.Registry
	dispatcher *dispatcher.Dispatcher
	router     *router.Router
	ledger     *reporting.Ledger
	metrics    *telemetry.Metrics
	logger     *zap.Logger
	observers  []func(*call.Call)
}

// New creates a Bridge around terminal. A nil terminal selects unavailable
// mode.
func New(terminal sdk.Terminal, opts Options) *Bridge {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ledger := opts.Ledger
	if ledger == nil {
		ledger = reporting.NewLedger(0)
	}
	reg := registry.New(opts.Metrics)
	b := &Bridge{
		registry:  reg,
		router:    router.NewRouter(reg, logger.Named("router"), opts.Metrics),
		ledger:    ledger,
		metrics:   opts.Metrics,
		logger:    logger,
		observers: opts.Observers,
	}
	if terminal != nil {
		b.dispatcher = dispatcher.NewDispatcher(terminal, opts.Host, reg, opts.Policy, logger.Named("dispatcher"), opts.Metrics)
	} else {
		logger.Warn("no card reader terminal configured, running in unavailable mode")
	}
	return b
}

// Available reports whether a terminal is attached.
func (b *Bridge) Available() bool {
	return b.dispatcher != nil
}

func (b *Bridge) newCall(op string) *call.Call {
	return call.New(op, call.OnSettle(b.settled))
}

func (b *Bridge) settled(c *call.Call) {
	out, _ := c.Outcome()
	b.metrics.Settled(c.Method, out.Succeeded())
	b.ledger.Record(c)
	for _, fn := range b.observers {
		fn(c)
	}
}

// unavailable settles c when no terminal is attached and reports whether it
// did.
func (b *Bridge) unavailable(c *call.Call) bool {
	if b.Available() {
		return false
	}
	b.metrics.Dispatched(c.Method)
	c.Resolve(call.Ack{Code: UnavailableCode, Message: UnavailableMessage})
	return true
}

// Setup initialises the SDK.
func (b *Bridge) Setup(ctx context.Context) *call.Call {
	c := b.newCall(dispatcher.OpSetup)
	if !b.unavailable(c) {
		b.dispatcher.Setup(ctx, c)
	}
	return c
}

// Login starts the merchant login flow.
func (b *Bridge) Login(ctx context.Context, opts dispatcher.LoginOptions) *call.Call {
	c := b.newCall(dispatcher.OpLogin)
	if !b.unavailable(c) {
		b.dispatcher.Login(ctx, c, opts)
	}
	return c
}

// Logout ends the merchant session.
func (b *Bridge) Logout(ctx context.Context) *call.Call {
	c := b.newCall(dispatcher.OpLogout)
	if !b.unavailable(c) {
		b.dispatcher.Logout(ctx, c)
	}
	return c
}

// IsLoggedIn reports the session state.
func (b *Bridge) IsLoggedIn(ctx context.Context) *call.Call {
	c := b.newCall(dispatcher.OpIsLoggedIn)
	if !b.unavailable(c) {
		b.dispatcher.IsLoggedIn(ctx, c)
	}
	return c
}

// OpenCardReaderPage starts the reader pairing flow.
func (b *Bridge) OpenCardReaderPage(ctx context.Context) *call.Call {
	c := b.newCall(dispatcher.OpOpenCardReaderPage)
	if !b.unavailable(c) {
		b.dispatcher.OpenCardReaderPage(ctx, c)
	}
	return c
}

// PrepareForCheckout wakes the reader.
func (b *Bridge) PrepareForCheckout(ctx context.Context) *call.Call {
	c := b.newCall(dispatcher.OpPrepareForCheckout)
	if !b.unavailable(c) {
		b.dispatcher.PrepareForCheckout(ctx, c)
	}
	return c
}

// Checkout starts a payment.
func (b *Bridge) Checkout(ctx context.Context, opts dispatcher.CheckoutOptions) *call.Call {
	c := b.newCall(dispatcher.OpCheckout)
	if b.Available() {
		b.dispatcher.Checkout(ctx, c, opts)
		return c
	}
	b.metrics.Dispatched(c.Method)
	c.Reject(call.NewError(call.CodeUnavailable, UnavailableMessage))
	return c
}

// CloseConnection disconnects the reader.
func (b *Bridge) CloseConnection(ctx context.Context) *call.Call {
	c := b.newCall(dispatcher.OpCloseConnection)
	if !b.unavailable(c) {
		b.dispatcher.CloseConnection(ctx, c)
	}
	return c
}

// HandleActivityResult routes an activity result to the call waiting on
// requestCode. Results for request codes the bridge never issued are
// ignored. It reports whether a call was settled.
func (b *Bridge) HandleActivityResult(ctx context.Context, requestCode, resultCode int, env *sdk.Envelope) bool {
	slot, ok := registry.SlotForRequestCode(requestCode)
	if !ok {
		b.metrics.Dropped(telemetry.DropUnknownRequestCode)
		b.logger.Debug("ignoring activity result for foreign request code", zap.Int("request_code", requestCode))
		return false
	}
	return b.router.OnExternalResult(ctx, slot, resultCode, env)
}

// Pending returns the id of the call waiting in each occupied slot.
func (b *Bridge) Pending() map[string]string {
	return b.registry.Snapshot()
}

// Report summarises recently settled calls.
func (b *Bridge) Report() *reporting.RetrospectiveReport {
	return b.ledger.Report()
}
