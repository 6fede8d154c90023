package users

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/troopledger/troopledger/internal/shared"
	_ "github.com/troopledger/troopledger/testing"
)

type fakeRepo struct {
	users  map[int64]User
	hashes map[int64]string
	nextID int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{users: map[int64]User{}, hashes: map[int64]string{}, nextID: 3}
}

func (r *fakeRepo) ListUsers(ctx context.Context) ([]User, error) {
	out := make([]User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	return out, nil
}

func (r *fakeRepo) InsertUser(ctx context.Context, username, passwordHash string, role shared.Role) (User, error) {
	for _, u := range r.users {
		if u.Username == username {
			return User{}, ErrUsernameTaken
		}
	}
	user := User{ID: r.nextID, Username: username, Role: role, CreatedAt: time.Now()}
	r.nextID++
	r.users[user.ID] = user
	r.hashes[user.ID] = passwordHash
	return user, nil
}

func (r *fakeRepo) DeleteUser(ctx context.Context, userID int64) error {
	if _, ok := r.users[userID]; !ok {
		return ErrUserNotFound
	}
	delete(r.users, userID)
	delete(r.hashes, userID)
	return nil
}

func (r *fakeRepo) GetPasswordHash(ctx context.Context, userID int64) (string, error) {
	hash, ok := r.hashes[userID]
	if !ok {
		return "", ErrUserNotFound
	}
	return hash, nil
}

func (r *fakeRepo) UpdatePasswordHash(ctx context.Context, userID int64, passwordHash string) error {
	if _, ok := r.hashes[userID]; !ok {
		return ErrUserNotFound
	}
	r.hashes[userID] = passwordHash
	return nil
}

type auditRecorder struct {
	logs []shared.AuditLog
}

func (a *auditRecorder) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

var (
	admin  = shared.Principal{ID: 1, Username: "alice", Role: shared.RoleAdmin}
	editor = shared.Principal{ID: 2, Username: "bob", Role: shared.RoleEditor}
)

func newTestService() (*Service, *fakeRepo, *auditRecorder) {
	repo := newFakeRepo()
	audit := &auditRecorder{}
	return NewService(repo, audit), repo, audit
}

func TestCreateUser(t *testing.T) {
	svc, repo, audit := newTestService()
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, admin, "dana", "correcthorse", shared.RoleViewer)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if user.Username != "dana" || user.Role != shared.RoleViewer {
		t.Fatalf("unexpected user: %+v", user)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(repo.hashes[user.ID]), []byte("correcthorse")); err != nil {
		t.Fatalf("stored hash does not match password: %v", err)
	}
	if len(audit.logs) != 1 || audit.logs[0].Action != "user.create" {
		t.Fatalf("audit trail: %+v", audit.logs)
	}

	if _, err := svc.CreateUser(ctx, admin, "dana", "correcthorse", shared.RoleViewer); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("duplicate username: got %v", err)
	}
}

func TestCreateUserValidation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	cases := []struct {
		name     string
		p        shared.Principal
		username string
		password string
		role     shared.Role
		want     error
	}{
		{"non-admin", editor, "dana", "correcthorse", shared.RoleViewer, ErrAdminRequired},
		{"blank username", admin, "  ", "correcthorse", shared.RoleViewer, ErrUsernameRequired},
		{"short password", admin, "dana", "hunter2", shared.RoleViewer, ErrPasswordTooShort},
		{"bad role", admin, "dana", "correcthorse", "owner", ErrUnknownRole},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateUser(ctx, tc.p, tc.username, tc.password, tc.role)
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestListUsersAdminOnly(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.ListUsers(ctx, editor); !errors.Is(err, shared.ErrForbidden) {
		t.Fatalf("list as editor: %v", err)
	}
	if _, err := svc.ListUsers(ctx, admin); err != nil {
		t.Fatalf("list as admin: %v", err)
	}
}

func TestDeleteUser(t *testing.T) {
	svc, repo, audit := newTestService()
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, admin, "dana", "correcthorse", shared.RoleViewer)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.DeleteUser(ctx, editor, user.ID); !errors.Is(err, ErrAdminRequired) {
		t.Fatalf("delete as editor: %v", err)
	}
	if err := svc.DeleteUser(ctx, admin, admin.ID); !errors.Is(err, ErrSelfDelete) {
		t.Fatalf("self delete: %v", err)
	}
	if err := svc.DeleteUser(ctx, admin, user.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := repo.users[user.ID]; ok {
		t.Fatal("user still present after delete")
	}
	if err := svc.DeleteUser(ctx, admin, user.ID); !errors.Is(err, shared.ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
	last := audit.logs[len(audit.logs)-1]
	if last.Action != "user.delete" {
		t.Fatalf("audit action = %q", last.Action)
	}
}

func TestChangePassword(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, admin, "dana", "correcthorse", shared.RoleViewer)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	dana := shared.Principal{ID: user.ID, Username: user.Username, Role: user.Role}

	if err := svc.ChangePassword(ctx, dana, "correcthorse", "short"); !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("short new password: %v", err)
	}
	if err := svc.ChangePassword(ctx, dana, "wrongpass", "batterystaple"); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("wrong current password: %v", err)
	}
	if err := svc.ChangePassword(ctx, dana, "correcthorse", "batterystaple"); err != nil {
		t.Fatalf("change: %v", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(repo.hashes[user.ID]), []byte("batterystaple")); err != nil {
		t.Fatalf("new password not stored: %v", err)
	}
}
