// Package password generates cryptographically secure random passwords.
package password

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Character sets
const (
	charsetLowercase = "abcdefghijklmnopqrstuvwxyz"
	charsetUppercase = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	charsetDigits    = "0123456789"
	charsetSymbols   = "!@#$%^&*()_+-=[]{}|;:,.<>?"
)

// Length bounds
const (
	MinLength     = 8
	MaxLength     = 256
	DefaultLength = 24
)

var (
	ErrLengthOutOfRange = errors.New("password: length out of range")
	ErrEmptyCharset     = errors.New("password: character set is empty")
)

// Options selects the character classes to draw from. The zero value
// enables every class.
type Options struct {
	NoLowercase bool
	NoUppercase bool
	NoDigits    bool
	NoSymbols   bool

	// Exclude lists individual characters to remove from the set, for
	// example ambiguous ones like "0O1lI".
	Exclude string
}

// classes returns the enabled character classes.
func (o Options) classes() []string {
	var out []string
	if !o.NoLowercase {
		out = append(out, charsetLowercase)
	}
	if !o.NoUppercase {
		out = append(out, charsetUppercase)
	}
	if !o.NoDigits {
		out = append(out, charsetDigits)
	}
	if !o.NoSymbols {
		out = append(out, charsetSymbols)
	}
	if o.Exclude == "" {
		return out
	}
	filtered := out[:0]
	for _, class := range out {
		if class = removeChars(class, o.Exclude); class != "" {
			filtered = append(filtered, class)
		}
	}
	return filtered
}

// Generate returns a random password of the given length. Each enabled
// character class contributes at least one character when the length
// allows, so a generated password never fails a complexity check by
// chance.
func Generate(length int, opts Options) (string, error) {
	if length < MinLength || length > MaxLength {
		return "", fmt.Errorf("%w: %d (want %d-%d)", ErrLengthOutOfRange, length, MinLength, MaxLength)
	}

	classes := opts.classes()
	if len(classes) == 0 {
		return "", ErrEmptyCharset
	}
	full := strings.Join(classes, "")

	password := make([]byte, 0, length)

	// One pick per class first, the rest from the full set.
	for _, class := range classes {
		if len(password) == length {
			break
		}
		c, err := pick(class)
		if err != nil {
			return "", err
		}
		password = append(password, c)
	}
	for len(password) < length {
		c, err := pick(full)
		if err != nil {
			return "", err
		}
		password = append(password, c)
	}

	if err := shuffle(password); err != nil {
		return "", err
	}
	return string(password), nil
}

// pick draws one character from the set with uniform probability.
func pick(charset string) (byte, error) {
	idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
	if err != nil {
		return 0, fmt.Errorf("password: failed to read random source: %w", err)
	}
	return charset[idx.Int64()], nil
}

// shuffle randomizes the order so the per-class picks are not predictable
// prefix positions.
func shuffle(b []byte) error {
	for i := len(b) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return fmt.Errorf("password: failed to read random source: %w", err)
		}
		b[i], b[j.Int64()] = b[j.Int64()], b[i]
	}
	return nil
}

func removeChars(s, chars string) string {
	exclude := make(map[rune]bool, len(chars))
	for _, c := range chars {
		exclude[c] = true
	}
	var out strings.Builder
	for _, c := range s {
		if !exclude[c] {
			out.WriteRune(c)
		}
	}
	return out.String()
}
