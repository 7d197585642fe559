package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/salonbookhq/salonbook/libs/db"
)

const (
	RoleOwner        = "owner"
	RoleReceptionist = "receptionist"
	RoleStylist      = "stylist"
)

type User struct {
	ID           string    `json:"id"`
	SalonID      string    `json:"salon_id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

type UserRepository struct {
	pool *db.Pool
}

func NewUserRepository(pool *db.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsDuplicate reports a unique violation, used to map a taken email to 409.
func IsDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *UserRepository) Create(ctx context.Context, u User) (User, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (salon_id, email, password_hash, role)
		VALUES ($1, lower($2), $3, $4)
		RETURNING id::text, created_at
	`, u.SalonID, u.Email, u.PasswordHash, u.Role).Scan(&u.ID, &u.CreatedAt)
	return u, err
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, salon_id::text, email, password_hash, role, created_at
		FROM users WHERE email = lower($1)
	`, email).Scan(&u.ID, &u.SalonID, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt)
	return u, err
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (User, error) {
	var u User
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, salon_id::text, email, password_hash, role, created_at
		FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.SalonID, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt)
	return u, err
}

func (r *UserRepository) ListForSalon(ctx context.Context, salonID string) ([]User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, salon_id::text, email, password_hash, role, created_at
		FROM users WHERE salon_id = $1 ORDER BY created_at
	`, salonID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.SalonID, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
