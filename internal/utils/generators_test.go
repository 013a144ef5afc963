package utils

import (
	"encoding/base64"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateBookingReference(t *testing.T) {
	now := time.Date(2026, 3, 9, 23, 0, 0, 0, time.UTC)
	pattern := regexp.MustCompile(`^TB-260309-[0-9A-F]{8}$`)

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		ref := GenerateBookingReference(now)
		require.Regexp(t, pattern, ref)
		assert.False(t, seen[ref], "duplicate reference %s", ref)
		seen[ref] = true
	}
}

func TestGenerateVoucherToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		token, err := GenerateVoucherToken()
		require.NoError(t, err)

		raw, err := base64.RawURLEncoding.DecodeString(token)
		require.NoError(t, err)
		assert.Len(t, raw, 32)
		assert.False(t, seen[token])
		seen[token] = true
	}
}
