package daraja

import (
	"errors"
	"fmt"
)

// ValidationError reports input rejected before any request is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// AuthenticationError surfaces a failed credential exchange with Daraja.
type AuthenticationError struct {
	StatusCode int
	Body       string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("daraja auth error: status=%d body=%s", e.StatusCode, e.Body)
}

// GatewayError surfaces a request the Daraja gateway rejected or failed.
// Description carries the provider's own wording untouched.
type GatewayError struct {
	StatusCode  int
	Code        string
	Description string

	// Processing marks Daraja's "transaction is being processed" state:
	// the outcome is not yet known and the query should be repeated.
	Processing bool
}

func (e *GatewayError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("daraja gateway error: status=%d code=%s desc=%s", e.StatusCode, e.Code, e.Description)
	}
	return fmt.Sprintf("daraja gateway error: status=%d desc=%s", e.StatusCode, e.Description)
}

// IsValidation reports whether err is an input validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsAuthentication reports whether err is a token exchange failure.
func IsAuthentication(err error) bool {
	var ae *AuthenticationError
	return errors.As(err, &ae)
}

// IsGateway reports whether err is an upstream gateway rejection.
func IsGateway(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge)
}

// IsProcessing reports whether err marks a transaction Daraja is still
// processing, meaning the status is not yet known rather than failed.
func IsProcessing(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge) && ge.Processing
}
