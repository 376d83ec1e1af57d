package identity

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrUserNotFound occurs when no user matches the lookup.
	ErrUserNotFound = errors.New("user not found")

	// ErrPhoneTaken occurs when registering an already-registered phone.
	ErrPhoneTaken = errors.New("phone already registered")
)

// Repository persists registered users.
type Repository interface {
	Create(ctx context.Context, user User) error
	FindByID(ctx context.Context, id string) (User, error)
	FindByPhone(ctx context.Context, phone string) (User, error)
}

// PostgresRepository stores users in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a user record.
func (r *PostgresRepository) Create(ctx context.Context, user User) error {
	tag, err := r.db.Exec(ctx, `INSERT INTO users (id, phone, first_name, last_name, pin_hash, created_at)
        VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (phone) DO NOTHING`,
		user.ID, user.Phone, user.FirstName, user.LastName, user.PINHash, user.CreatedAt.UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPhoneTaken
	}
	return nil
}

// FindByID fetches a user by identifier.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (User, error) {
	return r.scanOne(r.db.QueryRow(ctx, `SELECT id, phone, first_name, last_name, pin_hash, created_at
        FROM users WHERE id = $1`, id))
}

// FindByPhone fetches a user by phone number.
func (r *PostgresRepository) FindByPhone(ctx context.Context, phone string) (User, error) {
	return r.scanOne(r.db.QueryRow(ctx, `SELECT id, phone, first_name, last_name, pin_hash, created_at
        FROM users WHERE phone = $1`, phone))
}

func (r *PostgresRepository) scanOne(row pgx.Row) (User, error) {
	var (
		u         User
		createdAt time.Time
	)
	if err := row.Scan(&u.ID, &u.Phone, &u.FirstName, &u.LastName, &u.PINHash, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	u.CreatedAt = createdAt.UTC()
	return u, nil
}
