package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"logitalk/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository abstracts account persistence.
type UserRepository interface {
	Create(ctx context.Context, name, email, passwordHash string) (models.User, error)
	GetByID(ctx context.Context, userID int) (models.User, error)
	GetByEmail(ctx context.Context, email string) (models.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	SearchByName(ctx context.Context, query string) ([]models.User, error)
	SetAvatar(ctx context.Context, userID, avatarID int) error
	SetRefreshToken(ctx context.Context, userID int, token string) error
	Delete(ctx context.Context, userID int) error
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

const userColumns = `id, name, email, password_hash, avatar_id, about, refresh_token, created_at`

// Create inserts a verified account.
func (r *UserRepo) Create(ctx context.Context, name, email, passwordHash string) (models.User, error) {
	var user models.User
	err := r.db.QueryRowxContext(ctx, `INSERT INTO users (name, email, password_hash) VALUES ($1, $2, $3) RETURNING `+userColumns, name, email, passwordHash).
		StructScan(&user)
	return user, err
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, userID int) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// GetByEmail fetches a user by email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE email=$1`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// EmailExists reports whether an account with the email already exists.
func (r *UserRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM users WHERE email=$1)`, email)
	return exists, err
}

// SearchByName returns users whose name matches the query, case-insensitive.
func (r *UserRepo) SearchByName(ctx context.Context, query string) ([]models.User, error) {
	var users []models.User
	err := r.db.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users WHERE name ILIKE '%' || $1 || '%' ORDER BY name ASC`, query)
	return users, err
}

// SetAvatar stores the chosen avatar id.
func (r *UserRepo) SetAvatar(ctx context.Context, userID, avatarID int) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET avatar_id=$2 WHERE id=$1`, userID, avatarID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetRefreshToken replaces the stored refresh token; the old one is
// revoked the moment this commits.
func (r *UserRepo) SetRefreshToken(ctx context.Context, userID int, token string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET refresh_token=$2 WHERE id=$1`, userID, token)
	return err
}

// Delete removes the account and, via cascade, its messages.
func (r *UserRepo) Delete(ctx context.Context, userID int) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id=$1`, userID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrUserNotFound
	}
	return nil
}
