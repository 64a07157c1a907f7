package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"

	"github.com/yourorg/reader-bridge/internal/bridge"
	"github.com/yourorg/reader-bridge/internal/call"
	"github.com/yourorg/reader-bridge/internal/dispatcher"
	"github.com/yourorg/reader-bridge/internal/monitor"
	"github.com/yourorg/reader-bridge/internal/sdk"
)

// codeTimeout is returned when the wait for a call ends before it settles.
const codeTimeout = "TIMEOUT"

type server struct {
	bridge      *bridge.Bridge
	contracts   monitor.Contracts
	callTimeout time.Duration
	logger      *zap.Logger
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	CallID  string `json:"callId,omitempty"`
}

type activityResultRequest struct {
	RequestCode int             `json:"requestCode"`
	ResultCode  int             `json:"resultCode"`
	Data        json.RawMessage `json:"data"`
}

type activityResultResponse struct {
	Settled bool `json:"settled"`
}

// statusFor maps a rejection to an HTTP status.
func statusFor(err *call.Error) int {
	switch {
	case err.IsValidation():
		return http.StatusBadRequest
	case err.Code == call.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusUnprocessableEntity
	}
}

// respond waits for c to settle and writes its outcome. If the wait ends
// first the call stays pending and the client gets 504 with the call id.
func (s *server) respond(ctx *gin.Context, c *call.Call) {
	waitCtx, cancel := context.WithTimeout(ctx.Request.Context(), s.callTimeout)
	defer cancel()

	out, err := c.Wait(waitCtx)
	if err != nil {
		s.logger.Info("stopped waiting for call",
			zap.String("operation", c.Method),
			zap.String("call_id", c.ID),
			zap.Error(err),
		)
		ctx.JSON(http.StatusGatewayTimeout, errorResponse{
			Code:    codeTimeout,
			Message: "operation still pending",
			CallID:  c.ID,
		})
		return
	}
	if out.Err != nil {
		ctx.JSON(statusFor(out.Err), errorResponse{Code: out.Err.Code, Message: out.Err.Message, CallID: c.ID})
		return
	}
	ctx.JSON(http.StatusOK, out.Payload)
}

// bind checks the raw body against the named contract and decodes it into
// dst. An empty body decodes as {}.
func (s *server) bind(ctx *gin.Context, contract string, dst any) bool {
	raw, err := ctx.GetRawData()
	if err != nil {
		s.badRequest(ctx, err)
		return false
	}
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	if err := s.contracts.Check(contract, raw); err != nil {
		s.badRequest(ctx, err)
		return false
	}
	if err := binding.JSON.BindBody(raw, dst); err != nil {
		s.badRequest(ctx, err)
		return false
	}
	return true
}

func (s *server) badRequest(ctx *gin.Context, err error) {
	ctx.JSON(http.StatusBadRequest, errorResponse{
		Code:    call.CodeInvalidRequest,
		Message: "invalid request: " + err.Error(),
	})
}

// operation adapts a parameterless bridge operation to a handler.
func (s *server) operation(op func(context.Context) *call.Call) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		s.respond(ctx, op(ctx.Request.Context()))
	}
}

func (s *server) login(ctx *gin.Context) {
	var opts dispatcher.LoginOptions
	if !s.bind(ctx, monitor.ContractLogin, &opts) {
		return
	}
	s.respond(ctx, s.bridge.Login(ctx.Request.Context(), opts))
}

func (s *server) checkout(ctx *gin.Context) {
	var opts dispatcher.CheckoutOptions
	if !s.bind(ctx, monitor.ContractCheckout, &opts) {
		return
	}
	s.respond(ctx, s.bridge.Checkout(ctx.Request.Context(), opts))
}

// activityResult is where the host runtime posts a finished UI flow.
func (s *server) activityResult(ctx *gin.Context) {
	var req activityResultRequest
	if !s.bind(ctx, monitor.ContractActivityResult, &req) {
		return
	}
	env, err := sdk.ParseEnvelope(req.Data)
	if err != nil {
		s.badRequest(ctx, err)
		return
	}
	settled := s.bridge.HandleActivityResult(ctx.Request.Context(), req.RequestCode, req.ResultCode, env)
	ctx.JSON(http.StatusOK, activityResultResponse{Settled: settled})
}

func (s *server) report(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"summary": s.bridge.Report(),
		"pending": s.bridge.Pending(),
	})
}

// accessLog logs one line per request through zap.
func (s *server) accessLog() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()
		s.logger.Debug("request",
			zap.String("method", ctx.Request.Method),
			zap.String("path", ctx.FullPath()),
			zap.Int("status", ctx.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
