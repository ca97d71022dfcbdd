package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/authhub/internal/domain/user"
	"github.com/geocoder89/authhub/internal/observability"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const userColumns = `id, name, email, password_hash, created_at, updated_at`

type UsersRepo struct {
	db   DBTX
	prom *observability.Prom
}

func NewUsersRepo(db DBTX, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{db: db, prom: prom}
}

func (r *UsersRepo) Create(ctx context.Context, name, email, passwordHash string) (user.User, error) {
	now := time.Now().UTC()

	u := user.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := r.prom.ObserveDB("users_create", func() error {
		_, err := r.db.Exec(ctx,
			`INSERT INTO users (id, name, email, password_hash, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			u.ID, u.Name, u.Email, u.PasswordHash, u.CreatedAt, u.UpdatedAt,
		)
		return err
	})

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return user.User{}, user.ErrEmailAlreadyUsed
		}

		return user.User{}, err
	}

	return u, nil
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	return r.getOne(ctx, "users_get_by_email", `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	return r.getOne(ctx, "users_get_by_id", `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *UsersRepo) getOne(ctx context.Context, op, query string, arg string) (user.User, error) {
	var u user.User

	err := r.prom.ObserveDB(op, func() error {
		return r.db.QueryRow(ctx, query, arg).Scan(
			&u.ID,
			&u.Name,
			&u.Email,
			&u.PasswordHash,
			&u.CreatedAt,
			&u.UpdatedAt,
		)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrUserNotFound
		}

		return user.User{}, err
	}
	return u, nil
}

// UpdatePassword replaces the hash for the account with this email.
func (r *UsersRepo) UpdatePassword(ctx context.Context, email, passwordHash string) error {
	var tag pgconn.CommandTag

	err := r.prom.ObserveDB("users_update_password", func() error {
		var err error
		tag, err = r.db.Exec(ctx, `
			UPDATE users
			SET password_hash = $2, updated_at = NOW()
			WHERE email = $1
		`, email, passwordHash)
		return err
	})

	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return user.ErrUserNotFound
	}

	return nil
}
