package sdk

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Currency is an ISO 4217 code accepted by the SDK. The zero value lets the
// SDK use the merchant's account currency.
type Currency string

const (
	CurrencyMerchantDefault Currency = ""

	CurrencyBGN Currency = "BGN"
	CurrencyBRL Currency = "BRL"
	CurrencyCHF Currency = "CHF"
	CurrencyCLP Currency = "CLP"
	CurrencyCOP Currency = "COP"
	CurrencyCZK Currency = "CZK"
	CurrencyDKK Currency = "DKK"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
	CurrencyHUF Currency = "HUF"
	CurrencyNOK Currency = "NOK"
	CurrencyPLN Currency = "PLN"
	CurrencyRON Currency = "RON"
	CurrencySEK Currency = "SEK"
	CurrencyUSD Currency = "USD"
)

var knownCurrencies = map[Currency]struct{}{
	CurrencyBGN: {}, CurrencyBRL: {}, CurrencyCHF: {}, CurrencyCLP: {}, CurrencyCOP: {},
	CurrencyCZK: {}, CurrencyDKK: {}, CurrencyEUR: {}, CurrencyGBP: {}, CurrencyHUF: {},
	CurrencyNOK: {}, CurrencyPLN: {}, CurrencyRON: {}, CurrencySEK: {}, CurrencyUSD: {},
}

// ParseCurrency returns the Currency for code. Matching is exact: "eur" is
// not EUR.
func ParseCurrency(code string) (Currency, error) {
	c := Currency(code)
	if _, ok := knownCurrencies[c]; !ok {
		return CurrencyMerchantDefault, fmt.Errorf("sdk: unknown currency %q", code)
	}
	return c, nil
}

// TipMode selects how a tip is collected during checkout.
type TipMode int

const (
	TipNone TipMode = iota
	// TipOnCardReader lets the cardholder enter a tip on the reader.
	TipOnCardReader
	// TipFixed adds PaymentRequest.Tip to the total.
	TipFixed
)

func (m TipMode) String() string {
	switch m {
	case TipOnCardReader:
		return "on_card_reader"
	case TipFixed:
		return "fixed"
	default:
		return "none"
	}
}

// PaymentRequest is the checkout request handed to Terminal.Checkout. Build
// it with NewPaymentBuilder.
type PaymentRequest struct {
	Total                decimal.Decimal
	Title                string
	Currency             Currency
	TipMode              TipMode
	Tip                  decimal.Decimal
	SkipSuccessScreen    bool
	SkipFailedScreen     bool
	ForeignTransactionID string
}

// PaymentBuilder assembles a PaymentRequest.
type PaymentBuilder struct {
	req PaymentRequest
}

// NewPaymentBuilder starts a request for total.
func NewPaymentBuilder(total decimal.Decimal) *PaymentBuilder {
	return &PaymentBuilder{req: PaymentRequest{Total: total}}
}

func (b *PaymentBuilder) Title(title string) *PaymentBuilder {
	b.req.Title = title
	return b
}

func (b *PaymentBuilder) Currency(c Currency) *PaymentBuilder {
	b.req.Currency = c
	return b
}

// TipOnCardReader asks the reader to prompt for a tip. It replaces any fixed
// tip set earlier.
func (b *PaymentBuilder) TipOnCardReader() *PaymentBuilder {
	b.req.TipMode = TipOnCardReader
	b.req.Tip = decimal.Zero
	return b
}

// Tip adds a fixed tip. It replaces an earlier TipOnCardReader.
func (b *PaymentBuilder) Tip(tip decimal.Decimal) *PaymentBuilder {
	b.req.TipMode = TipFixed
	b.req.Tip = tip
	return b
}

func (b *PaymentBuilder) SkipSuccessScreen() *PaymentBuilder {
	b.req.SkipSuccessScreen = true
	return b
}

func (b *PaymentBuilder) SkipFailedScreen() *PaymentBuilder {
	b.req.SkipFailedScreen = true
	return b
}

func (b *PaymentBuilder) ForeignTransactionID(id string) *PaymentBuilder {
	b.req.ForeignTransactionID = id
	return b
}

// Build returns the assembled request.
func (b *PaymentBuilder) Build() PaymentRequest {
	return b.req
}
