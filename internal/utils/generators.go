package utils

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
)

const referenceAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateReference returns prefix followed by length random uppercase alphanumerics.
func GenerateReference(prefix string, length int) (string, error) {
	if length <= 0 {
		return "", errors.New("reference length must be positive")
	}
	var sb strings.Builder
	sb.Grow(len(prefix) + length)
	sb.WriteString(prefix)
	max := big.NewInt(int64(len(referenceAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		sb.WriteByte(referenceAlphabet[n.Int64()])
	}
	return sb.String(), nil
}
