// Package sdk describes the card reader SDK the bridge drives.
//
// The SDK is a black box: its launch entry points start a foreground flow and
// return immediately. The flow's result is delivered later by the host
// runtime as an "activity finished" notification carrying the request code
// passed at launch and an Envelope of result extras.
package sdk

import (
	"github.com/yourorg/reader-bridge/internal/host"
)

// Result extras keys written by the SDK into the Envelope.
const (
	KeyResultCode  = "result-code"
	KeyMessage     = "message"
	KeyTxCode      = "tx-code"
	KeyTxInfo      = "tx-info"
	KeyReceiptSent = "receipt-sent"
)

// ResultSuccessful is the result code the SDK reports for a successful flow.
const ResultSuccessful = 1

// Terminal is the set of SDK primitives consumed by the bridge. Launch methods
// return immediately; their outcome arrives out of band keyed by requestCode.
type Terminal interface {
	// Init initialises SDK state. It must run on the UI thread.
	Init(act host.Activity) error
	// OpenLoginActivity starts the merchant login flow.
	OpenLoginActivity(act host.Activity, req LoginRequest, requestCode int)
	// Logout ends the merchant session and disconnects the reader.
	Logout() error
	// IsLoggedIn reports whether a merchant session is active.
	IsLoggedIn() bool
	// OpenCardReaderPage starts the reader pairing/settings flow.
	OpenCardReaderPage(act host.Activity, requestCode int)
	// PrepareForCheckout wakes the paired reader ahead of a checkout.
	PrepareForCheckout() error
	// IsTipOnCardReaderAvailable reports whether the paired reader can
	// prompt for a tip itself.
	IsTipOnCardReaderAvailable() bool
	// Checkout starts the payment flow.
	Checkout(act host.Activity, req PaymentRequest, requestCode int)
}

// LoginRequest carries the merchant credentials for OpenLoginActivity.
type LoginRequest struct {
	AffiliateKey string
	// AccessToken skips the interactive login screen when set.
	AccessToken string
}
