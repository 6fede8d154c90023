package auth

import (
	"time"

	"github.com/troopledger/troopledger/internal/shared"
)

// User is a stored credential record.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         shared.Role
	CreatedAt    time.Time
}

// Principal converts the stored user into the resolved caller identity.
func (u User) Principal() shared.Principal {
	return shared.Principal{ID: u.ID, Username: u.Username, Role: u.Role}
}
