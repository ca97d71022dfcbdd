package postgres

import (
	"context"
	"fmt"

	"github.com/geocoder89/authhub/internal/observability"
	"github.com/jackc/pgx/v5"
)

// TxBeginner is satisfied by *pgxpool.Pool and pgxmock pools.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PasswordResetsRepo commits the last step of a password reset: the new hash
// and the removal of the email's OTPs land together or not at all.
type PasswordResetsRepo struct {
	db   TxBeginner
	prom *observability.Prom
}

func NewPasswordResetsRepo(db TxBeginner, prom *observability.Prom) *PasswordResetsRepo {
	return &PasswordResetsRepo{db: db, prom: prom}
}

// FinalizePasswordReset returns user.ErrUserNotFound, with nothing changed,
// when no account has this email.
func (r *PasswordResetsRepo) FinalizePasswordReset(ctx context.Context, email, passwordHash string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	// no-op once committed
	defer func() { _ = tx.Rollback(ctx) }()

	if err := NewUsersRepo(tx, r.prom).UpdatePassword(ctx, email, passwordHash); err != nil {
		return err
	}

	if _, err := NewPasswordResetOTPsRepo(tx, r.prom).DeleteAllForEmail(ctx, email); err != nil {
		return fmt.Errorf("delete otps: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}
