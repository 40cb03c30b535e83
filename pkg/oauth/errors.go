package oauth

import "fmt"

// RFC 6749 error codes.
const (
	ErrCodeInvalidRequest          = "invalid_request"
	ErrCodeInvalidClient           = "invalid_client"
	ErrCodeInvalidGrant            = "invalid_grant"
	ErrCodeUnauthorizedClient      = "unauthorized_client"
	ErrCodeAccessDenied            = "access_denied"
	ErrCodeUnsupportedResponseType = "unsupported_response_type"
	ErrCodeUnsupportedGrantType    = "unsupported_grant_type"
	ErrCodeInvalidScope            = "invalid_scope"
	ErrCodeServerError             = "server_error"
)

// Error is an OAuth2 protocol error carrying an RFC 6749 error code.
//
// Redirectable reports whether the error may be delivered to the client's
// redirect URI. Errors raised before the client and redirect URI have been
// validated must never redirect.
type Error struct {
	Code         string
	Description  string
	Redirectable bool
}

func (e *Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func protocolErr(code, description string) *Error {
	return &Error{Code: code, Description: description, Redirectable: true}
}

// directErr is for failures detected before the redirect URI is trusted.
func directErr(code, description string) *Error {
	return &Error{Code: code, Description: description, Redirectable: false}
}
