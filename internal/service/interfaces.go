package service

import (
	"context"

	"github.com/chatforge/authcore/internal/domain"
)

// CredentialVerifier resolves an email/password pair to a user account.
// The built-in implementation checks the local user directory; hosts
// embedding the engine can plug in their own directory instead.
type CredentialVerifier interface {
	Verify(ctx context.Context, email, password string) (*domain.User, error)
}
