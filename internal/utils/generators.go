package utils

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateUUID creates a random UUID v4
func GenerateUUID() string {
	return uuid.New().String()
}

// GenerateBookingReference → TB-YYMMDD-XXXXXXXX, readable over the phone.
func GenerateBookingReference(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("TB-%s-%s", now.UTC().Format("060102"), strings.ToUpper(suffix))
}

// GenerateVoucherToken returns 32 random bytes, base64url without padding.
func GenerateVoucherToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("voucher token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
