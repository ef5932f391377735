// Package secrets generates and verifies registration codes. A code is handed
// to the citizen once at registration and only its bcrypt hash is stored.
package secrets

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	dErrors "impfportal/pkg/domain-errors"
)

// codeAlphabet excludes ambiguous characters (0/O, 1/I/L) so codes survive
// being read over the phone.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// GenerateCode creates a registration code in the form XXXX-XXXX using a
// cryptographically secure source.
func GenerateCode() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("could not generate registration code: %w", err)
	}
	var b strings.Builder
	for i, v := range buf {
		if i == 4 {
			b.WriteByte('-')
		}
		b.WriteByte(codeAlphabet[int(v)%len(codeAlphabet)])
	}
	return b.String(), nil
}

// Hash creates a bcrypt hash of the provided code for storage.
func Hash(code string) (string, error) {
	if code == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "registration code cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(normalize(code)), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "registration code is too long")
		}
		return "", fmt.Errorf("could not hash registration code: %w", err)
	}
	return string(hashed), nil
}

// Verify checks a plaintext registration code against a stored bcrypt hash.
// Codes are compared case-insensitively with the separator stripped.
func Verify(code, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(normalize(code))); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return dErrors.New(dErrors.CodeInvalidInput, "invalid registration code")
		}
		return fmt.Errorf("could not verify registration code: %w", err)
	}
	return nil
}

func normalize(code string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(code), "-", ""))
}
