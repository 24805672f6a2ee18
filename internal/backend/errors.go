package backend

import (
	"errors"
	"fmt"

	"signin-service/internal/auth"
)

// ErrorCode identifies a federated backend fault.
type ErrorCode string

const (
	CodeUnknown                ErrorCode = "unknown"
	CodeCredentialAlreadyInUse ErrorCode = "credential_already_in_use"
	CodeEmailAlreadyInUse      ErrorCode = "email_already_in_use"
	CodeRequiresRecentLogin    ErrorCode = "requires_recent_login"
	CodeInvalidCredential      ErrorCode = "invalid_credential"
	CodeUserTokenExpired       ErrorCode = "user_token_expired"
	CodeNoSignedInUser         ErrorCode = "no_signed_in_user"
	CodeNetwork                ErrorCode = "network"
)

// AuthError is a fault reported by the federated backend.
type AuthError struct {
	Code    ErrorCode
	Message string
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend: %s", e.Code)
	}
	return fmt.Sprintf("backend: %s: %s", e.Code, e.Message)
}

// FaultKind lets auth.Classify see through backend faults.
func (e *AuthError) FaultKind() auth.FaultKind {
	switch e.Code {
	case CodeCredentialAlreadyInUse, CodeEmailAlreadyInUse:
		return auth.FaultCredentialConflict
	case CodeRequiresRecentLogin:
		return auth.FaultRequiresRecentLogin
	default:
		return auth.FaultUnknown
	}
}

// CodeOf returns the backend code carried by err, or CodeUnknown.
func CodeOf(err error) ErrorCode {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeUnknown
}

// LinkErrorFor maps a link-credential fault to the reported login error.
func LinkErrorFor(err error) auth.LoginError {
	switch auth.Classify(err) {
	case auth.FaultCredentialConflict:
		return auth.ErrorAccountAlreadyLinked
	case auth.FaultRequiresRecentLogin:
		return auth.ErrorAccountNeedsRecentLogin
	default:
		return auth.ErrorUnknown
	}
}
