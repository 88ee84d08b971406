package topics

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	shareCodeLength   = 8
	shareCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// ShareCode is the 8-character address and credential of a topic.
type ShareCode string

// ParseShareCode normalizes raw input. Anything outside the alphabet is
// reported as ErrNotFound so malformed and unknown codes look the same.
func ParseShareCode(rawInput string) (ShareCode, error) {
	normalized := strings.ToUpper(strings.TrimSpace(rawInput))
	if len(normalized) != shareCodeLength {
		return "", fmt.Errorf("%w: invalid share code", ErrNotFound)
	}
	for _, character := range normalized {
		if !strings.ContainsRune(shareCodeAlphabet, character) {
			return "", fmt.Errorf("%w: invalid share code", ErrNotFound)
		}
	}
	return ShareCode(normalized), nil
}

// String returns the share code text.
func (code ShareCode) String() string {
	return string(code)
}

// ShareCodeGenerator issues candidate share codes. Uniqueness is enforced by storage.
type ShareCodeGenerator interface {
	NewShareCode() (ShareCode, error)
}

type randomShareCodeGenerator struct{}

// NewRandomShareCodeGenerator returns a crypto/rand backed generator.
func NewRandomShareCodeGenerator() ShareCodeGenerator {
	return randomShareCodeGenerator{}
}

func (randomShareCodeGenerator) NewShareCode() (ShareCode, error) {
	alphabetSize := big.NewInt(int64(len(shareCodeAlphabet)))
	var builder strings.Builder
	builder.Grow(shareCodeLength)
	for index := 0; index < shareCodeLength; index++ {
		position, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", fmt.Errorf("generate share code: %w", err)
		}
		builder.WriteByte(shareCodeAlphabet[position.Int64()])
	}
	return ShareCode(builder.String()), nil
}
