package auth

import "net/http"

// AuthError is a rejection produced while validating a request signature.
// Code is an S3 error code and maps to the HTTP status of the response.
type AuthError struct {
	Code    string
	Message string
}

// NewAuthError creates an AuthError with the given code and message.
func NewAuthError(code, message string) *AuthError {
	return &AuthError{Code: code, Message: message}
}

func (e *AuthError) Error() string {
	return e.Code + ": " + e.Message
}

// StatusCode maps the error code to its HTTP status. Malformed requests
// get 400, every other rejection is a 403.
func (e *AuthError) StatusCode() int {
	if e.Code == "InvalidRequest" {
		return http.StatusBadRequest
	}
	return http.StatusForbidden
}

var (
	errMissingAuth       = NewAuthError("AccessDenied", "Missing Authorization header")
	errMalformedAuth     = NewAuthError("InvalidRequest", "Malformed Authorization header")
	errMalformedScope    = NewAuthError("InvalidRequest", "Malformed credential scope")
	errMissingDate       = NewAuthError("InvalidRequest", "Missing request date")
	errMissingContentSha = NewAuthError("InvalidRequest", "Missing x-amz-content-sha256 header")
	errMalformedDate     = NewAuthError("InvalidRequest", "Malformed request date")
	errRequestTimeSkewed = NewAuthError("InvalidRequest", "The difference between the request time and the server's time is too large")
	errUnknownAccessKey  = NewAuthError("AccessDenied", "The AWS access key ID you provided does not exist in our records")
	errSignatureMismatch = NewAuthError("SignatureDoesNotMatch", "The request signature we calculated does not match the signature you provided")
)
