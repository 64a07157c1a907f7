// Package dispatcher accepts bridge operations, validates their inputs and
// drives the SDK.
//
// Synchronous operations settle their call before returning or from the UI
// thread shortly after. Launching operations (login, card reader page,
// checkout) park their call in the registry under the operation's slot and
// hand the SDK a request code; the call is settled later by the router when
// the activity result for that request code arrives.
package dispatcher

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/yourorg/reader-bridge/internal/call"
	"github.com/yourorg/reader-bridge/internal/host"
	"github.com/yourorg/reader-bridge/internal/policy"
	"github.com/yourorg/reader-bridge/internal/registry"
	"github.com/yourorg/reader-bridge/internal/sdk"
	"github.com/yourorg/reader-bridge/internal/telemetry"
)

// Operation names, also used as call methods and metric labels.
const (
	OpSetup              = "setup"
	OpLogin              = "login"
	OpLogout             = "logout"
	OpIsLoggedIn         = "isLoggedIn"
	OpOpenCardReaderPage = "openCardReaderPage"
	OpPrepareForCheckout = "prepareForCheckout"
	OpCheckout           = "checkout"
	OpCloseConnection    = "closeConnection"
)

// Acknowledgement messages.
const (
	MsgInitialised      = "SDK initialised"
	MsgSessionClosed    = "session closed"
	MsgReaderPrepared   = "card reader prepared"
	MsgConnectionClosed = "connection closed"
)

// LoginStatus is the payload of IsLoggedIn.
type LoginStatus struct {
	Code       int  `json:"code"`
	IsLoggedIn bool `json:"isLoggedIn"`
}

// Dispatcher validates operations and invokes the SDK.
type Dispatcher struct {
	terminal sdk.Terminal
	host     host.Host
	registry *registry.Registry
	policy   *policy.CheckoutPolicy
	logger   *zap.Logger
	metrics  *telemetry.Metrics
	tracer   trace.Tracer

	// newForeignID generates foreign transaction ids for checkouts that
	// do not bring one.
	newForeignID func() string
}

// NewDispatcher creates a Dispatcher. terminal and reg are required; a nil
// checkout policy selects policy.DefaultRules, and logger and metrics may be
// nil.
func NewDispatcher(
	terminal sdk.Terminal,
	h host.Host,
	reg *registry.Registry,
	pol *policy.CheckoutPolicy,
	logger *zap.Logger,
	metrics *telemetry.Metrics,
) *Dispatcher {
	if terminal == nil {
		panic("terminal cannot be nil")
	}
	if reg == nil {
		panic("registry cannot be nil")
	}
	if pol == nil {
		var err error
		if pol, err = policy.NewCheckoutPolicy(nil); err != nil {
			panic(err)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		terminal:     terminal,
		host:         h,
		registry:     reg,
		policy:       pol,
		logger:       logger,
		metrics:      metrics,
		tracer:       otel.Tracer("dispatcher"),
		newForeignID: uuid.NewString,
	}
}

func (d *Dispatcher) start(ctx context.Context, op string, c *call.Call) (context.Context, trace.Span) {
	d.metrics.Dispatched(op)
	d.logger.Debug("dispatching operation", zap.String("operation", op), zap.String("call_id", c.ID))
	return d.tracer.Start(ctx, "Dispatcher."+op, trace.WithAttributes(
		attribute.String("call.id", c.ID),
		attribute.String("call.operation", op),
	))
}

func (d *Dispatcher) reject(span trace.Span, c *call.Call, err *call.Error) {
	span.SetStatus(codes.Error, err.Message)
	d.logger.Info("operation rejected",
		zap.String("operation", c.Method),
		zap.String("call_id", c.ID),
		zap.String("code", err.Code),
		zap.String("message", err.Message),
	)
	c.Reject(err)
}

// park stores c in slot ahead of a launch.
func (d *Dispatcher) park(span trace.Span, slot registry.Slot, c *call.Call) {
	if displaced := d.registry.Register(slot, c); displaced != nil && displaced != c {
		// The SDK runs one flow per slot; the displaced caller will never
		// hear back.
		d.logger.Warn("pending call displaced before its result arrived",
			zap.String("slot", slot.String()),
			zap.String("displaced_call_id", displaced.ID),
			zap.String("call_id", c.ID),
		)
	}
	span.SetAttributes(
		attribute.String("registry.slot", slot.String()),
		attribute.Int("sdk.request_code", slot.RequestCode()),
	)
}

// Setup initialises the SDK on the UI thread. Operations that settle on the
// UI thread end their span there.
func (d *Dispatcher) Setup(ctx context.Context, c *call.Call) {
	_, span := d.start(ctx, OpSetup, c)

	host.RunOnMainThread(d.host, func(act host.Activity) {
		defer span.End()
		if err := d.terminal.Init(act); err != nil {
			d.reject(span, c, call.WrapError(call.CodeSetupError, "failed to initialise SDK", err))
			return
		}
		c.Resolve(call.OK(MsgInitialised))
	})
}

// LoginOptions are the inputs of Login.
type LoginOptions struct {
	AffiliateKey string `json:"affiliateKey"`
	AccessToken  string `json:"accessToken"`
}

// Login launches the SDK login flow. The call settles when the login
// activity result is routed back.
func (d *Dispatcher) Login(ctx context.Context, c *call.Call, opts LoginOptions) {
	_, span := d.start(ctx, OpLogin, c)
	defer span.End()

	if opts.AffiliateKey == "" {
		d.reject(span, c, call.NewError(call.CodeMissingCredential, "affiliateKey is required"))
		return
	}
	req := sdk.LoginRequest{AffiliateKey: opts.AffiliateKey, AccessToken: opts.AccessToken}

	d.park(span, registry.SlotLogin, c)
	host.RunOnMainThread(d.host, func(act host.Activity) {
		d.terminal.OpenLoginActivity(act, req, registry.RequestCodeLogin)
	})
}

// Logout ends the merchant session. The SDK reports no failure for this
// call, so it always resolves.
func (d *Dispatcher) Logout(ctx context.Context, c *call.Call) {
	_, span := d.start(ctx, OpLogout, c)

	host.RunOnMainThread(d.host, func(host.Activity) {
		defer span.End()
		if err := d.terminal.Logout(); err != nil {
			d.logger.Warn("logout reported an error", zap.String("call_id", c.ID), zap.Error(err))
		}
		c.Resolve(call.OK(MsgSessionClosed))
	})
}

// IsLoggedIn reports the SDK session state.
func (d *Dispatcher) IsLoggedIn(ctx context.Context, c *call.Call) {
	_, span := d.start(ctx, OpIsLoggedIn, c)
	defer span.End()

	c.Resolve(LoginStatus{Code: call.ResultOK, IsLoggedIn: d.terminal.IsLoggedIn()})
}

// OpenCardReaderPage launches the reader pairing flow. It always resolves
// once the flow closes, whatever its result.
func (d *Dispatcher) OpenCardReaderPage(ctx context.Context, c *call.Call) {
	_, span := d.start(ctx, OpOpenCardReaderPage, c)
	defer span.End()

	d.park(span, registry.SlotReaderSetup, c)
	host.RunOnMainThread(d.host, func(act host.Activity) {
		d.terminal.OpenCardReaderPage(act, registry.RequestCodeReaderSetup)
	})
}

// PrepareForCheckout wakes the reader ahead of a checkout.
func (d *Dispatcher) PrepareForCheckout(ctx context.Context, c *call.Call) {
	_, span := d.start(ctx, OpPrepareForCheckout, c)

	host.RunOnMainThread(d.host, func(host.Activity) {
		defer span.End()
		if err := d.terminal.PrepareForCheckout(); err != nil {
			d.reject(span, c, call.WrapError(call.CodePrepareError, "failed to prepare card reader", err))
			return
		}
		c.Resolve(call.OK(MsgReaderPrepared))
	})
}

// CloseConnection disconnects the reader. The SDK has no dedicated
// primitive; logging out is what releases the reader.
func (d *Dispatcher) CloseConnection(ctx context.Context, c *call.Call) {
	_, span := d.start(ctx, OpCloseConnection, c)

	host.RunOnMainThread(d.host, func(host.Activity) {
		defer span.End()
		if err := d.terminal.Logout(); err != nil {
			d.reject(span, c, call.WrapError(call.CodeCloseError, "failed to close connection", err))
			return
		}
		c.Resolve(call.OK(MsgConnectionClosed))
	})
}
