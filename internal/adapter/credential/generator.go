package credential

import (
	"crypto/rand"
	"fmt"
	"io"
)

const (
	// Alphabet is the set of characters a credential is drawn from.
	Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// DefaultLength is the length of the key issued on every form claim.
	DefaultLength = 20

	// Bytes at or above this value are rejected so that every character of
	// Alphabet is equally likely.
	rejectThreshold = 256 - (256 % len(Alphabet))
)

// Generator produces random alphanumeric bearer secrets.
type Generator struct {
	source io.Reader
}

// NewGenerator creates a Generator reading from source. A nil source uses
// crypto/rand.
func NewGenerator(source io.Reader) *Generator {
	if source == nil {
		source = rand.Reader
	}
	return &Generator{source: source}
}

// Generate returns a string of exactly length characters from Alphabet.
func (g *Generator) Generate(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("credential length must be positive, got %d", length)
	}

	out := make([]byte, 0, length)
	buf := make([]byte, length+length/4+1)
	for len(out) < length {
		if _, err := io.ReadFull(g.source, buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= rejectThreshold {
				continue
			}
			out = append(out, Alphabet[int(b)%len(Alphabet)])
			if len(out) == length {
				break
			}
		}
	}

	return string(out), nil
}
