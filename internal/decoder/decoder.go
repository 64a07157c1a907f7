// Package decoder turns the SDK's result envelope into typed payloads.
//
// Decoding never fails on missing optional fields: absent text becomes "",
// absent amounts become zero. Whether an envelope exists at all is decided by
// the caller before decoding.
package decoder

import (
	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/yourorg/reader-bridge/internal/sdk"
)

// Status is the result-code/message pair every envelope carries.
type Status struct {
	Code int
	// Message is empty when HasMessage is false.
	Message    string
	HasMessage bool
}

// Succeeded reports whether the SDK flagged the flow as successful.
func (s Status) Succeeded() bool {
	return s.Code == sdk.ResultSuccessful
}

// MessageOr returns the message, or def when the SDK sent none.
func (s Status) MessageOr(def string) string {
	if !s.HasMessage {
		return def
	}
	return s.Message
}

// ReadStatus extracts the status pair. A missing result code reads as 0.
func ReadStatus(env *sdk.Envelope) Status {
	msg, ok := env.String(sdk.KeyMessage)
	return Status{
		Code:       env.Int(sdk.KeyResultCode, 0),
		Message:    msg,
		HasMessage: ok,
	}
}

// TransactionRecord is the projection of a completed payment.
type TransactionRecord struct {
	TransactionCode string          `json:"transaction_code"`
	MerchantCode    string          `json:"merchant_code"`
	Amount          decimal.Decimal `json:"amount"`
	TipAmount       decimal.Decimal `json:"tip_amount"`
	VATAmount       decimal.Decimal `json:"vat_amount"`
	Currency        string          `json:"currency"`
	Status          string          `json:"status"`
	PaymentType     string          `json:"payment_type"`
	EntryMode       string          `json:"entry_mode"`
	Installments    int             `json:"installments"`
	CardType        string          `json:"card_type"`
	LastFourDigits  string          `json:"last_4_digits"`
}

// CheckoutResult is the payload of a successful checkout. The transaction
// fields are omitted when the SDK returned no transaction record.
type CheckoutResult struct {
	*TransactionRecord
	ReceiptSent bool `json:"receipt_sent"`
}

// DecodeCheckout extracts the transaction record and receipt flag.
func DecodeCheckout(env *sdk.Envelope) CheckoutResult {
	return CheckoutResult{
		TransactionRecord: DecodeTransaction(env.Object(sdk.KeyTxInfo)),
		ReceiptSent:       env.Bool(sdk.KeyReceiptSent, false),
	}
}

// DecodeTransaction projects a tx-info object. It returns nil only when tx
// itself is nil.
func DecodeTransaction(tx *structpb.Struct) *TransactionRecord {
	if tx == nil {
		return nil
	}
	f := tx.GetFields()
	rec := &TransactionRecord{
		TransactionCode: text(f["transaction_code"]),
		MerchantCode:    text(f["merchant_code"]),
		Amount:          amount(f["amount"]),
		TipAmount:       amount(f["tip_amount"]),
		VATAmount:       amount(f["vat_amount"]),
		Currency:        text(f["currency"]),
		Status:          text(f["status"]),
		PaymentType:     text(f["payment_type"]),
		EntryMode:       text(f["entry_mode"]),
		Installments:    int(number(f["installments"])),
	}
	if card := f["card"].GetStructValue(); card != nil {
		cf := card.GetFields()
		rec.CardType = text(cf["type"])
		rec.LastFourDigits = text(cf["last_4_digits"])
	}
	return rec
}

// text renders scalars the way the SDK's toString would; anything else is "".
func text(v *structpb.Value) string {
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return k.StringValue
	case *structpb.Value_NumberValue:
		return decimal.NewFromFloat(k.NumberValue).String()
	case *structpb.Value_BoolValue:
		if k.BoolValue {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

func number(v *structpb.Value) float64 {
	if n, ok := v.GetKind().(*structpb.Value_NumberValue); ok {
		return n.NumberValue
	}
	return 0
}

// amount accepts numbers and numeric strings. Anything else is zero.
func amount(v *structpb.Value) decimal.Decimal {
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		return decimal.NewFromFloat(k.NumberValue)
	case *structpb.Value_StringValue:
		d, err := decimal.NewFromString(k.StringValue)
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		return decimal.Zero
	}
}
