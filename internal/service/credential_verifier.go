package service

import (
	"context"
	"errors"

	"github.com/chatforge/authcore/internal/domain"
	"github.com/chatforge/authcore/internal/repository"
	"github.com/chatforge/authcore/internal/security"
)

// DirectoryCredentialVerifier checks credentials against the local user
// table using Argon2id hashes.
type DirectoryCredentialVerifier struct {
	users repository.UserRepository
}

func NewDirectoryCredentialVerifier(users repository.UserRepository) *DirectoryCredentialVerifier {
	return &DirectoryCredentialVerifier{users: users}
}

func (v *DirectoryCredentialVerifier) Verify(ctx context.Context, email, password string) (*domain.User, error) {
	user, err := v.users.FindByEmail(email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			// Burn a hash comparison so a missing account costs the
			// same as a wrong password.
			_, _ = security.VerifyPassword(password, dummyArgonHash)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	ok, err := security.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// Precomputed hash of an unguessable value, used only for timing parity.
const dummyArgonHash = "$argon2id$v=19$m=65536,t=2,p=2$AAAAAAAAAAAAAAAAAAAAAA$buRVzxs1U4IPavGF5H0dktPZbbljRk2AguRgyBlLqwc"
