package auth

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/troopledger/troopledger/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	tokens *TokenStore
}

// NewService constructs a new Service.
func NewService(repo Repository, tokens *TokenStore) *Service {
	return &Service{repo: repo, tokens: tokens}
}

// Login validates username/password credentials and issues a bearer token.
func (s *Service) Login(ctx context.Context, username, password string) (string, shared.Principal, error) {
	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		return "", shared.Principal{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", shared.Principal{}, shared.ErrInvalidCredentials
	}
	principal := user.Principal()
	token, err := s.tokens.Issue(ctx, principal)
	if err != nil {
		return "", shared.Principal{}, err
	}
	return token, principal, nil
}

// Resolve maps a bearer token back to its principal.
func (s *Service) Resolve(ctx context.Context, token string) (shared.Principal, error) {
	return s.tokens.Resolve(ctx, token)
}

// Logout revokes the bearer token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.tokens.Revoke(ctx, token)
}
