package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const verificationTokenBytes = 32

// GenerateVerificationToken returns a 256-bit random token, hex-encoded.
// The token identifies one in-flight verification session.
func GenerateVerificationToken() (string, error) {
	token, err := GenerateSecureToken(verificationTokenBytes)
	if err != nil {
		return "", fmt.Errorf("generate verification token: %w", err)
	}
	return token, nil
}

// GenerateSecureToken returns a hex-encoded random string using the
// specified number of random bytes.
func GenerateSecureToken(byteLength int) (string, error) {
	if byteLength <= 0 {
		return "", fmt.Errorf("length must be positive")
	}

	buf := make([]byte, byteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	return hex.EncodeToString(buf), nil
}
