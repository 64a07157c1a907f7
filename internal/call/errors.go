package call

import (
	"fmt"
	"strconv"
)

// Discriminator codes carried by rejected calls. Numeric SDK result codes are
// carried as their decimal string (see SDKCode).
const (
	CodeSetupError        = "SETUP_ERROR"
	CodeMissingCredential = "NO_AFFILIATE_KEY"
	CodeLoginCancelled    = "LOGIN_CANCELLED"
	CodePrepareError      = "PREPARE_ERROR"
	CodeInvalidAmount     = "INVALID_AMOUNT"
	CodeInvalidCurrency   = "INVALID_CURRENCY"
	CodeCheckoutNoData    = "CHECKOUT_NO_DATA"
	CodeCloseError        = "CLOSE_ERROR"
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeUnavailable       = "UNAVAILABLE"
)

// Error is the rejection delivered to a caller: a human readable message plus
// a discriminator code.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

// NewError creates a rejection with the given discriminator.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError creates a rejection for an error raised by the SDK. The message
// is prefix followed by the underlying error text.
func WrapError(code, prefix string, cause error) *Error {
	msg := prefix
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", prefix, cause)
	}
	return &Error{Code: code, Message: msg, Cause: cause}
}

// SDKCode renders a numeric SDK result code as a discriminator.
func SDKCode(code int) string {
	return strconv.Itoa(code)
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsValidation reports whether the rejection was raised before any SDK call
// because of bad caller input.
func (e *Error) IsValidation() bool {
	switch e.Code {
	case CodeMissingCredential, CodeInvalidAmount, CodeInvalidCurrency, CodeInvalidRequest:
		return true
	}
	return false
}
