package domain

import (
	"errors"
	"time"
)

var ErrUserNotFound = errors.New("user not found")

// User is the owner of credentials, schedules and capture jobs. The ID is the
// subject of the identity provider's token.
type User struct {
	ID        string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}
