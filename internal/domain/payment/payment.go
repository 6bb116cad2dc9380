package payment

import (
	"errors"
	"strings"
)

// ErrorCode classifies errors reported by the payment confirmation SDK.
type ErrorCode string

const (
	ErrorCodeCanceled ErrorCode = "Canceled"
	ErrorCodeFailed   ErrorCode = "Failed"
	ErrorCodeTimeout  ErrorCode = "Timeout"
)

// SheetError is returned by a payment sheet's Initialize or Present call.
// Message is human readable and is shown to the user verbatim.
type SheetError struct {
	Code    ErrorCode
	Message string
}

func (e *SheetError) Error() string {
	if e.Message == "" {
		return "payment: " + string(e.Code)
	}
	return e.Message
}

func IsCanceled(err error) bool {
	var se *SheetError
	return errors.As(err, &se) && se.Code == ErrorCodeCanceled
}

const clientSecretMarker = "_secret_"

// ReferenceFromClientSecret derives the payment intent id from a client secret of the
// form "<intent id>_secret_<nonce>". Secrets without the marker are returned unchanged.
func ReferenceFromClientSecret(clientSecret string) string {
	if i := strings.Index(clientSecret, clientSecretMarker); i > 0 {
		return clientSecret[:i]
	}
	return clientSecret
}
