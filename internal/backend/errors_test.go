package backend

import (
	"errors"
	"fmt"
	"testing"

	"signin-service/internal/auth"

	"github.com/stretchr/testify/assert"
)

func TestLinkErrorFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want auth.LoginError
	}{
		{"credential in use", &AuthError{Code: CodeCredentialAlreadyInUse}, auth.ErrorAccountAlreadyLinked},
		{"email in use", &AuthError{Code: CodeEmailAlreadyInUse}, auth.ErrorAccountAlreadyLinked},
		{"wrapped email in use", fmt.Errorf("link: %w", &AuthError{Code: CodeEmailAlreadyInUse}), auth.ErrorAccountAlreadyLinked},
		{"recent login", &AuthError{Code: CodeRequiresRecentLogin}, auth.ErrorAccountNeedsRecentLogin},
		{"invalid credential", &AuthError{Code: CodeInvalidCredential}, auth.ErrorUnknown},
		{"foreign error", errors.New("socket closed"), auth.ErrorUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LinkErrorFor(tt.err))
		})
	}
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeNetwork, CodeOf(fmt.Errorf("x: %w", &AuthError{Code: CodeNetwork})))
	assert.Equal(t, CodeUnknown, CodeOf(errors.New("x")))
}
