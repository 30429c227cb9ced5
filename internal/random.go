package internal

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

// DefaultCodeAlphabet is the 62-character alphabet verification codes are drawn from.
const DefaultCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

const sessionIDLength = 36

// NewSessionID returns a random (version 4) UUID in canonical form.
func NewSessionID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// ValidSessionID reports whether id is a canonical lowercase version 4 UUID.
func ValidSessionID(id string) bool {
	if len(id) != sessionIDLength || strings.ToLower(id) != id {
		return false
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return false
	}
	return parsed.Version() == 4 && parsed.Variant() == uuid.RFC4122
}

// NewCode draws length characters uniformly from alphabet using crypto/rand.
func NewCode(length int, alphabet string) (string, error) {
	if length < 6 || length > 10 {
		return "", errors.New("invalid code length")
	}
	if len(alphabet) < 2 {
		return "", errors.New("code alphabet too small")
	}

	var b strings.Builder
	b.Grow(length)

	max := big.NewInt(int64(len(alphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(alphabet[n.Int64()])
	}
	return b.String(), nil
}

// ValidCodeShape reports whether code has the configured length and only
// uses characters from alphabet.
func ValidCodeShape(code string, length int, alphabet string) bool {
	if len(code) != length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(alphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}
