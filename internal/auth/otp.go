package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	DefaultOTPDigits = 6
	maxOTPDigits     = 10
)

// GenerateOTP produces a numeric one-time code of the given digit count,
// leading zeros preserved. Digit counts outside 4..10 fall back to the
// default.
func GenerateOTP(digits int) (string, error) {
	if digits < 4 || digits > maxOTPDigits {
		digits = DefaultOTPDigits
	}
	max := big.NewInt(1)
	for i := 0; i < digits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", digits, n), nil
}
