package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/reader-bridge/internal/call"
	"github.com/yourorg/reader-bridge/internal/decoder"
	"github.com/yourorg/reader-bridge/internal/dispatcher"
	"github.com/yourorg/reader-bridge/internal/registry"
	"github.com/yourorg/reader-bridge/internal/reporting"
	"github.com/yourorg/reader-bridge/internal/sdk"
	"github.com/yourorg/reader-bridge/internal/sdk/mock"
	"github.com/yourorg/reader-bridge/internal/telemetry"
)

func newBridge(t *testing.T) (*Bridge, *mock.Terminal, *telemetry.Metrics) {
	t.Helper()
	term := mock.NewTerminal()
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	return New(term, Options{Metrics: metrics}), term, metrics
}

func wait(t *testing.T, c *call.Call) call.Outcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	out, err := c.Wait(ctx)
	require.NoError(t, err, "call %s never settled", c.Method)
	return out
}

func envelope(t *testing.T, fields map[string]any) *sdk.Envelope {
	t.Helper()
	env, err := sdk.NewEnvelope(fields)
	require.NoError(t, err)
	return env
}

func TestBridge_LoginRoundTrip(t *testing.T) {
	b, term, _ := newBridge(t)
	ctx := context.Background()

	c := b.Login(ctx, dispatcher.LoginOptions{AffiliateKey: "AK1"})
	assert.False(t, c.Settled())
	assert.Equal(t, map[string]string{"login": c.ID}, b.Pending())

	launch, ok := term.LastLaunch()
	require.True(t, ok)
	require.True(t, b.HandleActivityResult(ctx, launch.RequestCode, -1,
		envelope(t, map[string]any{sdk.KeyResultCode: 1, sdk.KeyMessage: "OK"})))

	out := wait(t, c)
	assert.Equal(t, call.Ack{Code: 1, Message: "OK"}, out.Payload)
	assert.Empty(t, b.Pending())
}

func TestBridge_CheckoutRoundTrip(t *testing.T) {
	b, term, metrics := newBridge(t)
	ctx := context.Background()

	c := b.Checkout(ctx, dispatcher.CheckoutOptions{
		Amount:       decimal.NewNullDecimal(decimal.RequireFromString("10.00")),
		CurrencyCode: "EUR",
	})
	launch, ok := term.LastLaunch()
	require.True(t, ok)
	assert.Equal(t, registry.RequestCodeCheckout, launch.RequestCode)

	env := envelope(t, map[string]any{
		sdk.KeyResultCode: 1,
		sdk.KeyTxInfo: map[string]any{
			"transaction_code": "TX9",
			"amount":           10.00,
			"currency":         "EUR",
			"status":           "SUCCESSFUL",
		},
		sdk.KeyReceiptSent: false,
	})
	require.True(t, b.HandleActivityResult(ctx, registry.RequestCodeCheckout, -1, env))
	require.False(t, b.HandleActivityResult(ctx, registry.RequestCodeCheckout, -1, env), "replay is a no-op")

	out := wait(t, c)
	require.True(t, out.Succeeded())
	res := out.Payload.(decoder.CheckoutResult)
	assert.Equal(t, "TX9", res.TransactionCode)

	report := b.Report()
	assert.Equal(t, 1, report.Succeeded)
	assert.True(t, report.AmountByCurrency["EUR"].Equal(decimal.NewFromInt(10)))

	_, settled, _, _, dropped := metrics.Collectors()
	assert.Equal(t, float64(1), testutil.ToFloat64(settled.WithLabelValues(dispatcher.OpCheckout, telemetry.OutcomeResolved)))
	assert.Equal(t, float64(1), testutil.ToFloat64(dropped.WithLabelValues(telemetry.DropNoPendingCaller)))
}

func TestBridge_UnknownRequestCodeIgnored(t *testing.T) {
	b, _, metrics := newBridge(t)
	ctx := context.Background()
	c := b.OpenCardReaderPage(ctx)

	assert.False(t, b.HandleActivityResult(ctx, 42, 0, nil))
	assert.False(t, c.Settled())

	_, _, _, _, dropped := metrics.Collectors()
	assert.Equal(t, float64(1), testutil.ToFloat64(dropped.WithLabelValues(telemetry.DropUnknownRequestCode)))

	require.True(t, b.HandleActivityResult(ctx, registry.RequestCodeReaderSetup, 0, nil))
	assert.Equal(t, call.OK("card reader setup closed"), wait(t, c).Payload)
}

func TestBridge_RecordsRejections(t *testing.T) {
	b, term, metrics := newBridge(t)
	ctx := context.Background()

	out := wait(t, b.Checkout(ctx, dispatcher.CheckoutOptions{Amount: decimal.NewNullDecimal(decimal.RequireFromString("0.5"))}))
	require.NotNil(t, out.Err)
	assert.Equal(t, call.CodeInvalidAmount, out.Err.Code)
	assert.Empty(t, term.Launches())

	report := b.Report()
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, map[string]int{call.CodeInvalidAmount: 1}, report.ErrorBreakdown)

	dispatched, settled, _, _, _ := metrics.Collectors()
	assert.Equal(t, float64(1), testutil.ToFloat64(dispatched.WithLabelValues(dispatcher.OpCheckout)))
	assert.Equal(t, float64(1), testutil.ToFloat64(settled.WithLabelValues(dispatcher.OpCheckout, telemetry.OutcomeRejected)))
}

func TestBridge_SynchronousOperations(t *testing.T) {
	b, term, _ := newBridge(t)
	ctx := context.Background()
	term.SetLoggedIn(true)

	assert.Equal(t, call.OK(dispatcher.MsgInitialised), wait(t, b.Setup(ctx)).Payload)
	assert.Equal(t, dispatcher.LoginStatus{Code: 1, IsLoggedIn: true}, wait(t, b.IsLoggedIn(ctx)).Payload)
	assert.Equal(t, call.OK(dispatcher.MsgReaderPrepared), wait(t, b.PrepareForCheckout(ctx)).Payload)
	assert.Equal(t, call.OK(dispatcher.MsgSessionClosed), wait(t, b.Logout(ctx)).Payload)
	assert.Equal(t, dispatcher.LoginStatus{Code: 1, IsLoggedIn: false}, wait(t, b.IsLoggedIn(ctx)).Payload)
	assert.Equal(t, call.OK(dispatcher.MsgConnectionClosed), wait(t, b.CloseConnection(ctx)).Payload)

	assert.Equal(t, 6, b.Report().Succeeded)
}

func TestBridge_UnavailableMode(t *testing.T) {
	b := New(nil, Options{})
	ctx := context.Background()
	assert.False(t, b.Available())

	unavailable := call.Ack{Code: UnavailableCode, Message: UnavailableMessage}
	for name, c := range map[string]*call.Call{
		"setup":   b.Setup(ctx),
		"login":   b.Login(ctx, dispatcher.LoginOptions{AffiliateKey: "AK1"}),
		"logout":  b.Logout(ctx),
		"session": b.IsLoggedIn(ctx),
		"reader":  b.OpenCardReaderPage(ctx),
		"prepare": b.PrepareForCheckout(ctx),
		"close":   b.CloseConnection(ctx),
	} {
		assert.Equal(t, unavailable, wait(t, c).Payload, name)
	}

	out := wait(t, b.Checkout(ctx, dispatcher.CheckoutOptions{Amount: decimal.NewNullDecimal(decimal.NewFromInt(5))}))
	require.NotNil(t, out.Err)
	assert.Equal(t, call.CodeUnavailable, out.Err.Code)
	assert.Empty(t, b.Pending())
}

func TestBridge_ObserversSeeSettledCalls(t *testing.T) {
	var seen []string
	ledger := reporting.NewLedger(0)
	observe := func(c *call.Call) {
		_, ok := c.Outcome()
		require.True(t, ok)
		assert.Len(t, ledger.Entries(), len(seen)+1, "ledger records before observers run")
		seen = append(seen, c.Method)
	}
	b := New(mock.NewTerminal(), Options{
		Ledger:    ledger,
		Observers: []func(*call.Call){observe},
	})
	ctx := context.Background()

	b.Setup(ctx)
	login := b.Login(ctx, dispatcher.LoginOptions{AffiliateKey: "AK1"})
	assert.Equal(t, []string{dispatcher.OpSetup}, seen)

	b.HandleActivityResult(ctx, registry.RequestCodeLogin, -1, nil)
	wait(t, login)
	assert.Equal(t, []string{dispatcher.OpSetup, dispatcher.OpLogin}, seen)
}
