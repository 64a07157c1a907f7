// Package router settles pending calls from the SDK's activity results.
//
// A result is routed by slot: the pending call is claimed first, so a
// replayed or unsolicited result finds the slot empty and is dropped.
package router

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/yourorg/reader-bridge/internal/call"
	"github.com/yourorg/reader-bridge/internal/decoder"
	"github.com/yourorg/reader-bridge/internal/registry"
	"github.com/yourorg/reader-bridge/internal/sdk"
	"github.com/yourorg/reader-bridge/internal/telemetry"
)

// Messages used when the SDK sends no message of its own.
const (
	MsgLoginSucceeded    = "login succeeded"
	MsgLoginFailed       = "login failed"
	MsgLoginCancelled    = "login cancelled"
	MsgPaymentFailed     = "payment failed"
	MsgCheckoutNoData    = "checkout returned no data"
	MsgReaderSetupClosed = "card reader setup closed"
)

// Claimer hands out the call pending in a slot. *registry.Registry
// implements it.
type Claimer interface {
	Claim(slot registry.Slot) *call.Call
}

// Router maps activity results to call outcomes.
type Router struct {
	pending Claimer
	logger  *zap.Logger
	metrics *telemetry.Metrics
	tracer  trace.Tracer
}

// NewRouter creates a Router. pending is required; logger and metrics may be
// nil.
func NewRouter(pending Claimer, logger *zap.Logger, metrics *telemetry.Metrics) *Router {
	if pending == nil {
		panic("pending registry cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		pending: pending,
		logger:  logger,
		metrics: metrics,
		tracer:  otel.Tracer("router"),
	}
}

// OnExternalResult settles the call pending in slot with the outcome derived
// from resultCode and env. A nil env means the flow returned no data. It
// reports whether a call was settled.
func (r *Router) OnExternalResult(ctx context.Context, slot registry.Slot, resultCode int, env *sdk.Envelope) bool {
	_, span := r.tracer.Start(ctx, "Router.OnExternalResult", trace.WithAttributes(
		attribute.String("registry.slot", slot.String()),
		attribute.Int("sdk.activity_result_code", resultCode),
		attribute.Bool("sdk.has_data", env != nil),
	))
	defer span.End()

	c := r.pending.Claim(slot)
	if c == nil {
		r.metrics.Dropped(telemetry.DropNoPendingCaller)
		r.logger.Warn("activity result with no pending caller",
			zap.String("slot", slot.String()),
			zap.Int("result_code", resultCode),
		)
		span.SetAttributes(attribute.Bool("router.dropped", true))
		return false
	}
	span.SetAttributes(attribute.String("call.id", c.ID))

	var out call.Outcome
	switch slot {
	case registry.SlotLogin:
		out = loginOutcome(env)
	case registry.SlotCheckout:
		out = checkoutOutcome(env)
	default:
		out = call.Outcome{Payload: call.OK(MsgReaderSetupClosed)}
	}

	if out.Err != nil {
		span.SetStatus(codes.Error, out.Err.Message)
		r.logger.Info("activity result rejected call",
			zap.String("slot", slot.String()),
			zap.String("call_id", c.ID),
			zap.String("code", out.Err.Code),
			zap.String("message", out.Err.Message),
		)
		return c.Reject(out.Err)
	}
	r.logger.Debug("activity result resolved call",
		zap.String("slot", slot.String()),
		zap.String("call_id", c.ID),
	)
	return c.Resolve(out.Payload)
}

func loginOutcome(env *sdk.Envelope) call.Outcome {
	if env == nil {
		return call.Outcome{Err: call.NewError(call.CodeLoginCancelled, MsgLoginCancelled)}
	}
	st := decoder.ReadStatus(env)
	if st.Succeeded() {
		return call.Outcome{Payload: call.OK(st.MessageOr(MsgLoginSucceeded))}
	}
	return call.Outcome{Err: call.NewError(call.SDKCode(st.Code), st.MessageOr(MsgLoginFailed))}
}

func checkoutOutcome(env *sdk.Envelope) call.Outcome {
	if env == nil {
		return call.Outcome{Err: call.NewError(call.CodeCheckoutNoData, MsgCheckoutNoData)}
	}
	st := decoder.ReadStatus(env)
	if !st.Succeeded() {
		return call.Outcome{Err: call.NewError(call.SDKCode(st.Code), st.MessageOr(MsgPaymentFailed))}
	}
	return call.Outcome{Payload: decoder.DecodeCheckout(env)}
}
