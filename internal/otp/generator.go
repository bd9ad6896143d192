package otp

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

var ten = big.NewInt(10)

// Generator produces numeric one-time codes and their digests. The
// plaintext code is handed to the mail collaborator and never persisted;
// only the digest reaches the session store.
type Generator struct {
	length int
}

func NewGenerator(length int) *Generator {
	if length <= 0 {
		length = 6
	}
	return &Generator{length: length}
}

// Generate draws each digit independently from the system CSPRNG. Drawing
// per digit keeps the code uniform over 10^n without modulo bias.
func (g *Generator) Generate() (code string, digest string, err error) {
	var b strings.Builder
	b.Grow(g.length)
	for i := 0; i < g.length; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", "", fmt.Errorf("failed to draw otp digit: %w", err)
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	code = b.String()
	return code, Digest(code), nil
}

// Digest returns the hex-encoded SHA-256 digest of a code.
func Digest(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// VerifyDigest digests the candidate and compares it to the stored digest
// in constant time.
func VerifyDigest(candidate, storedDigest string) bool {
	computed := Digest(candidate)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedDigest)) == 1
}
