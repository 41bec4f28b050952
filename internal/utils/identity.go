package utils

import (
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

// Display ids avoid 0/O and 1/I so they can be typed from a printed badge.
const displayAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const displayBlockLen = 4

// NewDisplayID returns prefix followed by two random uppercase
// alphanumeric blocks, e.g. CONF-7KQ2-M9XA.  Uniqueness is not assumed;
// the registry retries on a duplicate key.
func NewDisplayID(prefix string) (string, error) {
	a, err := randomBlock(displayBlockLen)
	if err != nil {
		return "", err
	}
	b, err := randomBlock(displayBlockLen)
	if err != nil {
		return "", err
	}
	return strings.ToUpper(prefix) + "-" + a + "-" + b, nil
}

// NewVerificationToken returns a random UUIDv4 string.
func NewVerificationToken() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// LooksLikeDisplayID reports whether code carries the display id prefix,
// ignoring case and surrounding spaces.
func LooksLikeDisplayID(code, prefix string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(code)), strings.ToUpper(prefix)+"-")
}

func randomBlock(n int) (string, error) {
	var sb strings.Builder
	max := big.NewInt(int64(len(displayAlphabet)))
	for i := 0; i < n; i++ {
		k, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		sb.WriteByte(displayAlphabet[k.Int64()])
	}
	return sb.String(), nil
}
