package auth

import (
	"context"
	"errors"
	"fmt"
)

// ErrCancelled reports that a sign-in step was cancelled, either by the user
// or by the collaborator that ran it.
var ErrCancelled = errors.New("auth: cancelled")

// ErrLinkIneligible reports that the account may not receive another provider.
var ErrLinkIneligible = errors.New("auth: account cannot be linked")

// ProviderError is a fault raised by the identity provider during sign-in.
type ProviderError struct {
	Status  string
	Message string
}

func (e *ProviderError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("provider: %s", e.Status)
	}
	return fmt.Sprintf("provider: %s: %s", e.Status, e.Message)
}

// FaultKind classifies errors observed from collaborators.
type FaultKind int

const (
	FaultUnknown FaultKind = iota
	FaultUserCancelled
	FaultProvider
	FaultLinkIneligible
	FaultCredentialConflict
	FaultRequiresRecentLogin
)

func (k FaultKind) String() string {
	switch k {
	case FaultUserCancelled:
		return "user_cancelled"
	case FaultProvider:
		return "provider_fault"
	case FaultLinkIneligible:
		return "link_ineligible"
	case FaultCredentialConflict:
		return "credential_conflict"
	case FaultRequiresRecentLogin:
		return "requires_recent_login"
	default:
		return "unknown_fault"
	}
}

// Classifier lets collaborator-specific error types report their own kind.
type Classifier interface {
	FaultKind() FaultKind
}

// IsCancelled reports whether err represents a cancelled step. A step whose
// context ran out of time counts as cancelled.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Classify maps an error to its fault kind. Unrecognized errors are FaultUnknown.
func Classify(err error) FaultKind {
	if err == nil {
		return FaultUnknown
	}
	if IsCancelled(err) {
		return FaultUserCancelled
	}
	if errors.Is(err, ErrLinkIneligible) {
		return FaultLinkIneligible
	}

	var c Classifier
	if errors.As(err, &c) {
		return c.FaultKind()
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		return FaultProvider
	}
	return FaultUnknown
}

// Flatten returns the leaf errors of err, expanding errors.Join trees.
func Flatten(err error) []error {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []error
		for _, e := range joined.Unwrap() {
			out = append(out, Flatten(e)...)
		}
		return out
	}
	return []error{err}
}
