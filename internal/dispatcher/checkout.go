package dispatcher

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/yourorg/reader-bridge/internal/call"
	"github.com/yourorg/reader-bridge/internal/host"
	"github.com/yourorg/reader-bridge/internal/policy"
	"github.com/yourorg/reader-bridge/internal/registry"
	"github.com/yourorg/reader-bridge/internal/sdk"
)

// MaxForeignTransactionIDLength is the longest foreign id the SDK accepts.
const MaxForeignTransactionIDLength = 128

const msgInvalidAmount = "amount is required and must be at least 1.00"

// minimumAmount is checked on the exact amount; rule expressions only see
// a float64 approximation of it.
var minimumAmount = decimal.NewFromFloat(policy.MinimumAmount)

// CheckoutOptions are the inputs of Checkout. Amount is required.
type CheckoutOptions struct {
	Amount               decimal.NullDecimal `json:"amount"`
	Title                string              `json:"title"`
	CurrencyCode         string              `json:"currencyCode"`
	TipOnCardReader      bool                `json:"tipOnCardReader"`
	Tip                  decimal.NullDecimal `json:"tip"`
	SkipSuccessScreen    bool                `json:"skipSuccessScreen"`
	SkipFailedScreen     bool                `json:"skipFailedScreen"`
	ForeignTransactionID string              `json:"foreignTransactionId"`
}

// Checkout validates opts, builds the payment request and launches the SDK
// checkout flow. Invalid input rejects the call before the SDK is touched.
func (d *Dispatcher) Checkout(ctx context.Context, c *call.Call, opts CheckoutOptions) {
	_, span := d.start(ctx, OpCheckout, c)
	defer span.End()

	req, rej := d.buildPayment(opts)
	if rej != nil {
		d.reject(span, c, rej)
		return
	}
	span.SetAttributes(
		attribute.String("payment.total", req.Total.String()),
		attribute.String("payment.currency", string(req.Currency)),
		attribute.String("payment.tip_mode", req.TipMode.String()),
		attribute.String("payment.foreign_transaction_id", req.ForeignTransactionID),
	)
	d.logger.Debug("launching checkout",
		zap.String("call_id", c.ID),
		zap.String("total", req.Total.String()),
		zap.String("currency", string(req.Currency)),
		zap.Stringer("tip_mode", req.TipMode),
		zap.String("foreign_transaction_id", req.ForeignTransactionID),
	)

	d.park(span, registry.SlotCheckout, c)
	host.RunOnMainThread(d.host, func(act host.Activity) {
		d.terminal.Checkout(act, req, registry.RequestCodeCheckout)
	})
}

func (d *Dispatcher) buildPayment(opts CheckoutOptions) (sdk.PaymentRequest, *call.Error) {
	if !opts.Amount.Valid || opts.Amount.Decimal.LessThan(minimumAmount) {
		return sdk.PaymentRequest{}, call.NewError(call.CodeInvalidAmount, msgInvalidAmount)
	}
	amount := opts.Amount.Decimal
	tip := decimal.Zero
	if opts.Tip.Valid {
		tip = opts.Tip.Decimal
	}

	if rej := d.policy.Evaluate(policy.CheckoutParams{
		Amount:      amount.InexactFloat64(),
		Tip:         tip.InexactFloat64(),
		TipOnReader: opts.TipOnCardReader,
		Currency:    opts.CurrencyCode,
	}); rej != nil {
		return sdk.PaymentRequest{}, rej
	}

	b := sdk.NewPaymentBuilder(amount).Title(opts.Title)

	if opts.CurrencyCode != "" {
		cur, err := sdk.ParseCurrency(opts.CurrencyCode)
		if err != nil {
			return sdk.PaymentRequest{}, call.NewError(call.CodeInvalidCurrency,
				fmt.Sprintf("invalid currency code: %s", opts.CurrencyCode))
		}
		b.Currency(cur)
	}

	if len(opts.ForeignTransactionID) > MaxForeignTransactionIDLength {
		return sdk.PaymentRequest{}, call.NewError(call.CodeInvalidRequest,
			fmt.Sprintf("foreignTransactionId must be at most %d characters", MaxForeignTransactionIDLength))
	}

	switch {
	case opts.TipOnCardReader && d.terminal.IsTipOnCardReaderAvailable():
		b.TipOnCardReader()
	case tip.IsPositive():
		b.Tip(tip)
	}

	if opts.SkipSuccessScreen {
		b.SkipSuccessScreen()
	}
	if opts.SkipFailedScreen {
		b.SkipFailedScreen()
	}

	foreignID := opts.ForeignTransactionID
	if foreignID == "" {
		foreignID = d.newForeignID()
	}
	b.ForeignTransactionID(foreignID)

	return b.Build(), nil
}
