package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/authhub/internal/domain/otp"
	"github.com/geocoder89/authhub/internal/observability"
	"github.com/jackc/pgx/v5"
)

type PasswordResetOTPsRepo struct {
	db   DBTX
	prom *observability.Prom
}

func NewPasswordResetOTPsRepo(db DBTX, prom *observability.Prom) *PasswordResetOTPsRepo {
	return &PasswordResetOTPsRepo{db: db, prom: prom}
}

func (r *PasswordResetOTPsRepo) Create(ctx context.Context, req otp.CreateRequest) (otp.PasswordResetOTP, error) {
	row := otp.PasswordResetOTP{
		Email:     req.Email,
		OTPHash:   req.OTPHash,
		ExpiresAt: req.ExpiresAt,
		CreatedAt: req.CreatedAt,
		UpdatedAt: req.CreatedAt,
	}

	err := r.prom.ObserveDB("otps_create", func() error {
		return r.db.QueryRow(ctx, `
			INSERT INTO password_reset_otps (email, otp_hash, expires_at, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5)
			RETURNING id
		`, row.Email, row.OTPHash, row.ExpiresAt, row.CreatedAt, row.UpdatedAt).Scan(&row.ID)
	})

	if err != nil {
		return otp.PasswordResetOTP{}, err
	}

	return row, nil
}

// LatestActive returns the newest row for email that expires after now. The
// serial id breaks created_at ties so the pick is deterministic.
func (r *PasswordResetOTPsRepo) LatestActive(ctx context.Context, email string, now time.Time) (otp.PasswordResetOTP, error) {
	var row otp.PasswordResetOTP

	err := r.prom.ObserveDB("otps_latest_active", func() error {
		return r.db.QueryRow(ctx, `
			SELECT id, email, otp_hash, expires_at, created_at, updated_at
			FROM password_reset_otps
			WHERE email = $1 AND expires_at > $2
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		`, email, now).Scan(
			&row.ID,
			&row.Email,
			&row.OTPHash,
			&row.ExpiresAt,
			&row.CreatedAt,
			&row.UpdatedAt,
		)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return otp.PasswordResetOTP{}, otp.ErrOTPNotFound
		}
		return otp.PasswordResetOTP{}, err
	}

	return row, nil
}

// DeleteAllForEmail removes every outstanding code for the address.
func (r *PasswordResetOTPsRepo) DeleteAllForEmail(ctx context.Context, email string) (int64, error) {
	var deleted int64

	err := r.prom.ObserveDB("otps_delete_for_email", func() error {
		tag, err := r.db.Exec(ctx, `DELETE FROM password_reset_otps WHERE email = $1`, email)
		if err != nil {
			return err
		}
		deleted = tag.RowsAffected()
		return nil
	})

	return deleted, err
}

func (r *PasswordResetOTPsRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var deleted int64

	err := r.prom.ObserveDB("otps_delete_expired", func() error {
		tag, err := r.db.Exec(ctx, `DELETE FROM password_reset_otps WHERE expires_at <= $1`, now)
		if err != nil {
			return err
		}
		deleted = tag.RowsAffected()
		return nil
	})

	return deleted, err
}
