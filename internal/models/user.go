package models

import (
	"time"
)

// User represents an audit platform account. Mutating endpoints (ingest,
// audit runs, cache management) require an authenticated user.
type User struct {
	ID           string    `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Organisation string    `json:"organisation" db:"organisation"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// UserResponse is the API-facing view of a user, without credentials.
type UserResponse struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Organisation string    `json:"organisation"`
	CreatedAt    time.Time `json:"created_at"`
}

// Response converts a stored user into its API representation.
func (u User) Response() UserResponse {
	return UserResponse{
		ID:           u.ID,
		Email:        u.Email,
		Organisation: u.Organisation,
		CreatedAt:    u.CreatedAt,
	}
}
