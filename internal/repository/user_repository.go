package repository

import (
	"context"
	"database/sql"
	"errors"
)

// User mirrors the 'users' table as far as this service needs it.
// Accounts and credentials are managed by the identity service; rows here
// only let payouts and coupon assignment check that a user exists.
type User struct {
	ID   string
	Role string
}

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id string) (User, error) {
	var u User
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,role FROM users WHERE id=? LIMIT 1", id).Scan(&u.ID, &u.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

// UserExists reports whether a user row exists for id.
func (r *UserRepo) UserExists(ctx context.Context, id string) (bool, error) {
	_, err := r.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
