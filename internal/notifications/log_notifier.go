package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// LogNotifier writes reset codes to the log instead of sending mail. The code
// itself is only logged when revealCode is set (dev).
type LogNotifier struct {
	logger     *slog.Logger
	revealCode bool
}

func NewLogNotifier(logger *slog.Logger, revealCode bool) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger, revealCode: revealCode}
}

func (n *LogNotifier) SendPasswordResetOTP(ctx context.Context, in SendPasswordResetOTPInput) error {
	// Optional: simulate slow provider
	if msStr := os.Getenv("NOTIFIER_SLEEP_MS"); msStr != "" {
		ms, _ := strconv.Atoi(msStr)
		if ms > 0 {
			select {
			case <-time.After(time.Duration(ms) * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	// Optional: simulate provider outage
	if os.Getenv("NOTIFIER_FAIL") == "1" {
		return fmt.Errorf("provider down (simulated)")
	}

	attrs := []any{
		"email", in.Email,
		"expires_in", in.ExpiresIn.String(),
	}
	if n.revealCode {
		attrs = append(attrs, "otp", in.OTP)
	}

	n.logger.InfoContext(ctx, "notification.password_reset_otp", attrs...)
	return nil
}
