package memory

import (
	"context"
	"sync"
	"time"

	"github.com/geocoder89/authhub/internal/domain/otp"
)

type PasswordResetOTPsRepo struct {
	mu     sync.RWMutex
	nextID int64
	rows   []otp.PasswordResetOTP
}

func NewPasswordResetOTPsRepo() *PasswordResetOTPsRepo {
	return &PasswordResetOTPsRepo{}
}

func (r *PasswordResetOTPsRepo) Create(_ context.Context, req otp.CreateRequest) (otp.PasswordResetOTP, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	row := otp.PasswordResetOTP{
		ID:        r.nextID,
		Email:     req.Email,
		OTPHash:   req.OTPHash,
		ExpiresAt: req.ExpiresAt,
		CreatedAt: req.CreatedAt,
		UpdatedAt: req.CreatedAt,
	}
	r.rows = append(r.rows, row)

	return row, nil
}

func (r *PasswordResetOTPsRepo) LatestActive(_ context.Context, email string, now time.Time) (otp.PasswordResetOTP, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		best  otp.PasswordResetOTP
		found bool
	)

	for _, row := range r.rows {
		if row.Email != email || row.IsExpired(now) {
			continue
		}

		// same ordering as postgres: created_at desc, id desc
		if !found || row.CreatedAt.After(best.CreatedAt) ||
			(row.CreatedAt.Equal(best.CreatedAt) && row.ID > best.ID) {
			best = row
			found = true
		}
	}

	if !found {
		return otp.PasswordResetOTP{}, otp.ErrOTPNotFound
	}

	return best, nil
}

func (r *PasswordResetOTPsRepo) DeleteAllForEmail(_ context.Context, email string) (int64, error) {
	return r.deleteWhere(func(row otp.PasswordResetOTP) bool { return row.Email == email }), nil
}

func (r *PasswordResetOTPsRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	return r.deleteWhere(func(row otp.PasswordResetOTP) bool { return row.IsExpired(now) }), nil
}

// Count is a test helper.
func (r *PasswordResetOTPsRepo) Count(email string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, row := range r.rows {
		if row.Email == email {
			n++
		}
	}
	return n
}

func (r *PasswordResetOTPsRepo) deleteWhere(match func(otp.PasswordResetOTP) bool) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.rows[:0]
	var deleted int64

	for _, row := range r.rows {
		if match(row) {
			deleted++
			continue
		}
		kept = append(kept, row)
	}
	r.rows = kept

	return deleted
}
