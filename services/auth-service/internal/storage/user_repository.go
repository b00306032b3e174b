package storage

import (
	"context"
	"errors"

	"github.com/digos-health/himsog/libs/db"
	"github.com/jackc/pgx/v5"
)

type User struct {
	ID           string
	ProviderID   string
	Email        string
	FullName     string
	PasswordHash string
	Role         string
}

// userColumns keeps the SELECT list in one place. provider_id is NULL
// for patient accounts, so it round-trips as an empty string.
const userColumns = `id, COALESCE(provider_id::text, ''), email, full_name, password_hash, role`

type UserRepository struct {
	pool *db.Pool
}

func NewUserRepository(pool *db.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// CreateTx inserts the user inside the caller's transaction so the row
// commits atomically with the staged outbox event.
func (r *UserRepository) CreateTx(ctx context.Context, tx pgx.Tx, user User) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO users (id, provider_id, email, full_name, password_hash, role)
		VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5, $6)
	`, user.ID, user.ProviderID, user.Email, user.FullName, user.PasswordHash, user.Role)
	return err
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (User, error) {
	return r.getWhere(ctx, "email = $1", email)
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (User, error) {
	return r.getWhere(ctx, "id = $1", id)
}

func (r *UserRepository) getWhere(ctx context.Context, where string, arg any) (User, error) {
	var user User
	err := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+where, arg,
	).Scan(&user.ID, &user.ProviderID, &user.Email, &user.FullName, &user.PasswordHash, &user.Role)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
