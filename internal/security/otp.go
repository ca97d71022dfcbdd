package security

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const OTPDigits = 6

var otpSpace = big.NewInt(1_000_000)

// GenerateOTP returns a uniformly random 6 digit code in 000000-999999.
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, otpSpace)

	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}

	return fmt.Sprintf("%0*d", OTPDigits, n.Int64()), nil
}
