package user

import (
	"time"

	"github.com/google/uuid"
)

/* User credentials. The password is only ever kept as a bcrypt hash. */
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}
