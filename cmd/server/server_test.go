package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourorg/reader-bridge/internal/bridge"
	"github.com/yourorg/reader-bridge/internal/call"
	"github.com/yourorg/reader-bridge/internal/monitor"
	"github.com/yourorg/reader-bridge/internal/registry"
	"github.com/yourorg/reader-bridge/internal/sdk"
	"github.com/yourorg/reader-bridge/internal/sdk/mock"
	"github.com/yourorg/reader-bridge/internal/telemetry"
)

type testServer struct {
	router   *gin.Engine
	bridge   *bridge.Bridge
	terminal *mock.Terminal
}

// setupTestRouter builds the router around a mock terminal. A nil terminal
// starts the bridge in unavailable mode.
func setupTestRouter(t *testing.T, terminal *mock.Terminal, callTimeout time.Duration) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	contracts, err := monitor.LoadContracts()
	require.NoError(t, err)

	promRegistry := prometheus.NewRegistry()
	opts := bridge.Options{Metrics: telemetry.NewMetrics(promRegistry)}
	var term sdk.Terminal
	if terminal != nil {
		opts.Observers = append(opts.Observers, trackSession(terminal))
		term = terminal
	}
	b := bridge.New(term, opts)
	s := &server{
		bridge:      b,
		contracts:   contracts,
		callTimeout: callTimeout,
		logger:      zap.NewNop(),
	}
	return &testServer{router: setupRouter(s, promRegistry), bridge: b, terminal: terminal}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequest(method, path, bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

// doAsync issues a request whose call settles later, once an activity result
// has been posted.
func (ts *testServer) doAsync(t *testing.T, method, path, body string) <-chan *httptest.ResponseRecorder {
	t.Helper()
	done := make(chan *httptest.ResponseRecorder, 1)
	go func() { done <- ts.do(t, method, path, body) }()
	return done
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (ts *testServer) waitPending(t *testing.T, slot registry.Slot) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, ok := ts.bridge.Pending()[slot.String()]
		return ok
	}, time.Second, 5*time.Millisecond)
}

func receive(t *testing.T, done <-chan *httptest.ResponseRecorder) *httptest.ResponseRecorder {
	t.Helper()
	select {
	case w := <-done:
		return w
	case <-time.After(2 * time.Second):
		t.Fatal("request never completed")
		return nil
	}
}

func TestSetup(t *testing.T) {
	ts := setupTestRouter(t, mock.NewTerminal(), time.Second)
	w := ts.do(t, http.MethodPost, "/v1/reader/setup", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"code":1,"message":"SDK initialised"}`, w.Body.String())
}

func TestLogin_MissingAffiliateKey(t *testing.T) {
	ts := setupTestRouter(t, mock.NewTerminal(), time.Second)
	w := ts.do(t, http.MethodPost, "/v1/reader/login", `{"accessToken":"tok"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, call.CodeMissingCredential, body["code"])
	assert.Empty(t, ts.terminal.Launches())
}

func TestLogin_RoundTrip(t *testing.T) {
	ts := setupTestRouter(t, mock.NewTerminal(), 2*time.Second)
	done := ts.doAsync(t, http.MethodPost, "/v1/reader/login", `{"affiliateKey":"AK1"}`)
	ts.waitPending(t, registry.SlotLogin)

	w := ts.do(t, http.MethodPost, "/v1/reader/activity-result",
		`{"requestCode":10001,"resultCode":-1,"data":{"result-code":1,"message":"OK"}}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"settled":true}`, w.Body.String())

	res := receive(t, done)
	assert.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `{"code":1,"message":"OK"}`, res.Body.String())

	w = ts.do(t, http.MethodGet, "/v1/reader/session", "")
	assert.JSONEq(t, `{"code":1,"isLoggedIn":true}`, w.Body.String())
}

func TestLogin_Cancelled(t *testing.T) {
	ts := setupTestRouter(t, mock.NewTerminal(), 2*time.Second)
	done := ts.doAsync(t, http.MethodPost, "/v1/reader/login", `{"affiliateKey":"AK1"}`)
	ts.waitPending(t, registry.SlotLogin)

	ts.do(t, http.MethodPost, "/v1/reader/activity-result", `{"requestCode":10001,"resultCode":0,"data":null}`)

	res := receive(t, done)
	assert.Equal(t, http.StatusUnprocessableEntity, res.Code)
	assert.Equal(t, call.CodeLoginCancelled, decode(t, res)["code"])

	w := ts.do(t, http.MethodGet, "/v1/reader/session", "")
	assert.JSONEq(t, `{"code":1,"isLoggedIn":false}`, w.Body.String())
}

func TestCheckout_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		code string
	}{
		{name: "AmountTooSmall", body: `{"amount":0.5}`, code: call.CodeInvalidAmount},
		{name: "AmountMissing", body: `{}`, code: call.CodeInvalidAmount},
		{name: "UnknownCurrency", body: `{"amount":5,"currencyCode":"XXX"}`, code: call.CodeInvalidCurrency},
		{name: "AmountNotANumber", body: `{"amount":"five"}`, code: call.CodeInvalidRequest},
		{name: "NotJSON", body: `this is not json`, code: call.CodeInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := setupTestRouter(t, mock.NewTerminal(), time.Second)
			w := ts.do(t, http.MethodPost, "/v1/reader/checkout", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.code, decode(t, w)["code"])
			assert.Empty(t, ts.terminal.Launches())
		})
	}
}

func TestCheckout_RoundTrip(t *testing.T) {
	ts := setupTestRouter(t, mock.NewTerminal(), 2*time.Second)
	done := ts.doAsync(t, http.MethodPost, "/v1/reader/checkout", `{"amount":10.00,"currencyCode":"EUR","tip":1.5}`)
	ts.waitPending(t, registry.SlotCheckout)

	launch, ok := ts.terminal.LastLaunch()
	require.True(t, ok)
	assert.Equal(t, sdk.CurrencyEUR, launch.Payment.Currency)
	assert.Equal(t, sdk.TipFixed, launch.Payment.TipMode)

	ts.do(t, http.MethodPost, "/v1/reader/activity-result", `{
		"requestCode": 10002,
		"resultCode": -1,
		"data": {
			"result-code": 1,
			"message": "Transaction successful",
			"tx-info": {
				"transaction_code": "TX1",
				"amount": 10.00,
				"tip_amount": 1.50,
				"vat_amount": 0.83,
				"currency": "EUR",
				"status": "SUCCESSFUL"
			},
			"receipt-sent": true
		}
	}`)

	res := receive(t, done)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	body := decode(t, res)
	assert.Equal(t, "TX1", body["transaction_code"])
	assert.Equal(t, 10.0, body["amount"])
	assert.Equal(t, 1.5, body["tip_amount"])
	assert.Equal(t, "", body["card_type"])
	assert.Equal(t, "", body["last_4_digits"])
	assert.Equal(t, true, body["receipt_sent"])
}

func TestCheckout_Declined(t *testing.T) {
	ts := setupTestRouter(t, mock.NewTerminal(), 2*time.Second)
	done := ts.doAsync(t, http.MethodPost, "/v1/reader/checkout", `{"amount":5}`)
	ts.waitPending(t, registry.SlotCheckout)

	ts.do(t, http.MethodPost, "/v1/reader/activity-result",
		`{"requestCode":10002,"resultCode":-1,"data":{"result-code":2,"message":"Declined"}}`)

	res := receive(t, done)
	assert.Equal(t, http.StatusUnprocessableEntity, res.Code)
	body := decode(t, res)
	assert.Equal(t, "2", body["code"])
	assert.Equal(t, "Declined", body["message"])
}

func TestWaitTimeoutLeavesCallPending(t *testing.T) {
	ts := setupTestRouter(t, mock.NewTerminal(), 20*time.Millisecond)
	w := ts.do(t, http.MethodPost, "/v1/reader/card-reader-page", "")

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	body := decode(t, w)
	assert.Equal(t, codeTimeout, body["code"])
	assert.Equal(t, ts.bridge.Pending()["reader_setup"], body["callId"])
}

func TestActivityResult(t *testing.T) {
	ts := setupTestRouter(t, mock.NewTerminal(), time.Second)

	w := ts.do(t, http.MethodPost, "/v1/reader/activity-result", `{"requestCode":99,"resultCode":0}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"settled":false}`, w.Body.String())

	w = ts.do(t, http.MethodPost, "/v1/reader/activity-result", `{"requestCode":10002}`)
	assert.JSONEq(t, `{"settled":false}`, w.Body.String(), "no caller waiting")

	w = ts.do(t, http.MethodPost, "/v1/reader/activity-result", `{"resultCode":0}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "requestCode is required")
}

func TestSession(t *testing.T) {
	term := mock.NewTerminal()
	term.SetLoggedIn(true)
	ts := setupTestRouter(t, term, time.Second)

	w := ts.do(t, http.MethodGet, "/v1/reader/session", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"code":1,"isLoggedIn":true}`, w.Body.String())
}

func TestUnavailableMode(t *testing.T) {
	ts := setupTestRouter(t, nil, time.Second)

	w := ts.do(t, http.MethodPost, "/v1/reader/setup", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"code":-1,"message":"card reader not available"}`, w.Body.String())

	w = ts.do(t, http.MethodPost, "/v1/reader/checkout", `{"amount":5}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, call.CodeUnavailable, decode(t, w)["code"])
}

func TestReportAndMetrics(t *testing.T) {
	ts := setupTestRouter(t, mock.NewTerminal(), time.Second)
	ts.do(t, http.MethodPost, "/v1/reader/setup", "")
	ts.do(t, http.MethodPost, "/v1/reader/checkout", `{"amount":0.2}`)

	w := ts.do(t, http.MethodGet, "/v1/reader/report", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	summary, ok := body["summary"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 2.0, summary["total_calls"])
	assert.Equal(t, 1.0, summary["failed"])
	assert.Equal(t, map[string]any{call.CodeInvalidAmount: 1.0}, summary["error_breakdown"])

	w = ts.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `reader_bridge_operations_dispatched_total{operation="setup"} 1`)
	assert.Contains(t, w.Body.String(), `reader_bridge_operations_settled_total{operation="checkout",outcome="rejected"} 1`)
}
