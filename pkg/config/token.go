package config

import (
	"crypto/rand"
	"math/big"

	"github.com/core-tools/hsu-launcher/pkg/errors"
)

const tokenAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// DefaultTokenLength matches the access token length the servers expect
const DefaultTokenLength = 20

// GenerateToken produces a random alphanumeric access secret
func GenerateToken(length int) (string, error) {
	if length <= 0 {
		length = DefaultTokenLength
	}

	token := make([]byte, length)
	max := big.NewInt(int64(len(tokenAlphabet)))
	for i := range token {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", errors.NewInternalError("failed to generate access token", err)
		}
		token[i] = tokenAlphabet[n.Int64()]
	}
	return string(token), nil
}
