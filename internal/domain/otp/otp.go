package otp

import (
	"errors"
	"time"
)

var ErrOTPNotFound = errors.New("password reset otp not found")

// PasswordResetOTP is one issued reset code. Several may be live for the same
// email; only the newest unexpired one is ever checked.
type PasswordResetOTP struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	OTPHash   string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CreateRequest struct {
	Email     string
	OTPHash   string
	ExpiresAt time.Time
	CreatedAt time.Time
}

func (o PasswordResetOTP) IsExpired(now time.Time) bool {
	return !o.ExpiresAt.After(now)
}
