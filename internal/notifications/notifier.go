package notifications

import (
	"context"
	"strconv"
	"time"
)

type SendPasswordResetOTPInput struct {
	Email     string
	OTP       string
	ExpiresIn time.Duration
}

type Notifier interface {
	SendPasswordResetOTP(ctx context.Context, input SendPasswordResetOTPInput) error
}

const passwordResetSubject = "Password Reset OTP"

func passwordResetBody(in SendPasswordResetOTPInput) string {
	minutes := int(in.ExpiresIn / time.Minute)
	if minutes <= 0 {
		minutes = 15
	}

	return "Your password reset OTP is: " + in.OTP + "\n\nThis OTP will expire in " + strconv.Itoa(minutes) + " minutes."
}

