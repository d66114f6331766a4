package models

import "time"

// User is an account record. PasswordHash and RefreshToken never leave
// the server.
type User struct {
	ID           int       `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	AvatarID     int       `db:"avatar_id" json:"avatar_id"`
	About        string    `db:"about" json:"about,omitempty"`
	RefreshToken string    `db:"refresh_token" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
