package app

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const (
	codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength  = 6

	// MaxCodeAttempts bounds collision retries when allocating a code.
	MaxCodeAttempts = 16
)

// GenerateCode returns a random session code.
func GenerateCode() (string, error) {
	code := make([]byte, codeLength)
	limit := big.NewInt(int64(len(codeCharset)))
	for i := range code {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		code[i] = codeCharset[n.Int64()]
	}
	return string(code), nil
}

// NormalizeCode upper-cases and trims a code typed by a user.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
