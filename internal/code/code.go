package code

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// Alphabet excludes ambiguous characters: 0, O, 1, I, L
const alphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const Length = 6

// Generate returns a random room code. Uniqueness against live rooms is the
// directory's problem, not ours.
func Generate() (string, error) {
	b := make([]byte, Length)
	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		if err != nil {
			return "", err
		}
		b[i] = alphabet[n.Int64()]
	}
	return string(b), nil
}

// Normalize upper-cases a code so lookups are case-insensitive.
func Normalize(c string) string {
	return strings.ToUpper(strings.TrimSpace(c))
}

// IsWellFormed checks length and alphabet membership after normalizing.
// It does not consult the directory.
func IsWellFormed(c string) bool {
	c = Normalize(c)
	if len(c) != Length {
		return false
	}
	for i := 0; i < len(c); i++ {
		if !strings.ContainsRune(alphabet, rune(c[i])) {
			return false
		}
	}
	return true
}
