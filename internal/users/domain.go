package users

import (
	"fmt"
	"time"

	"github.com/troopledger/troopledger/internal/shared"
)

// User is the administrative view of an account holder login.
type User struct {
	ID        int64
	Username  string
	Role      shared.Role
	CreatedAt time.Time
}

var (
	ErrAdminRequired    = fmt.Errorf("%w: admin role required", shared.ErrForbidden)
	ErrUsernameRequired = fmt.Errorf("%w: username required", shared.ErrValidation)
	ErrPasswordTooShort = fmt.Errorf("%w: password must be at least 8 characters", shared.ErrValidation)
	ErrUnknownRole      = fmt.Errorf("%w: role must be admin, editor or viewer", shared.ErrValidation)
	ErrUsernameTaken    = fmt.Errorf("%w: username already exists", shared.ErrValidation)
	ErrUserNotFound     = fmt.Errorf("%w: user", shared.ErrNotFound)
	ErrSelfDelete       = fmt.Errorf("%w: cannot delete your own user", shared.ErrValidation)
	ErrWrongPassword    = fmt.Errorf("%w: current password does not match", shared.ErrValidation)
)
