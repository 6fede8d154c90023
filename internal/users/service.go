package users

import (
	"context"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/troopledger/troopledger/internal/shared"
)

// RepositoryPort abstracts user persistence.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]User, error)
	InsertUser(ctx context.Context, username, passwordHash string, role shared.Role) (User, error)
	DeleteUser(ctx context.Context, userID int64) error
	GetPasswordHash(ctx context.Context, userID int64) (string, error)
	UpdatePasswordHash(ctx context.Context, userID int64, passwordHash string) error
}

// AuditPort records admin-sensitive mutations.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service wraps user administration rules. User create/delete and password
// changes are the admin-sensitive mutations that feed the audit trail.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the user management service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

const minPasswordLength = 8

// ListUsers returns all users; admin only.
func (s *Service) ListUsers(ctx context.Context, p shared.Principal) ([]User, error) {
	if !p.IsAdmin() {
		return nil, ErrAdminRequired
	}
	return s.repo.ListUsers(ctx)
}

// CreateUser provisions a login with the given role; admin only.
func (s *Service) CreateUser(ctx context.Context, p shared.Principal, username, password string, role shared.Role) (User, error) {
	if !p.IsAdmin() {
		return User{}, ErrAdminRequired
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return User{}, ErrUsernameRequired
	}
	if len(password) < minPasswordLength {
		return User{}, ErrPasswordTooShort
	}
	if !shared.ValidRole(role) {
		return User{}, ErrUnknownRole
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	user, err := s.repo.InsertUser(ctx, username, string(hash), role)
	if err != nil {
		return User{}, err
	}
	s.record(ctx, p, "user.create", user.ID, map[string]any{"username": user.Username, "role": string(user.Role)})
	return user, nil
}

// DeleteUser removes a login; admin only, never your own.
func (s *Service) DeleteUser(ctx context.Context, p shared.Principal, userID int64) error {
	if !p.IsAdmin() {
		return ErrAdminRequired
	}
	if userID == p.ID {
		return ErrSelfDelete
	}
	if err := s.repo.DeleteUser(ctx, userID); err != nil {
		return err
	}
	s.record(ctx, p, "user.delete", userID, nil)
	return nil
}

// ChangePassword lets any authenticated principal rotate their own password
// after proving the current one.
func (s *Service) ChangePassword(ctx context.Context, p shared.Principal, currentPassword, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return ErrPasswordTooShort
	}
	hash, err := s.repo.GetPasswordHash(ctx, p.ID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(currentPassword)); err != nil {
		return ErrWrongPassword
	}
	newHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePasswordHash(ctx, p.ID, string(newHash)); err != nil {
		return err
	}
	s.record(ctx, p, "user.password_change", p.ID, nil)
	return nil
}

func (s *Service) record(ctx context.Context, p shared.Principal, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  p.ID,
		Action:   action,
		Entity:   "user",
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
		At:       s.now(),
	})
}
