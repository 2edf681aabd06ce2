package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2Params holds the tuning parameters for argon2id derivation. The
// defaults follow the RFC 9106 low-memory profile: slow enough to make an
// offline sweep of the 10^6 PIN space expensive, cheap enough to run on every
// verification.
type Argon2Params struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Params returns the production derivation parameters.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// TestArgon2Params returns deliberately weak parameters for fast tests.
// Never use these outside of _test files.
func TestArgon2Params() Argon2Params {
	return Argon2Params{Memory: 8, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

// GenerateSalt returns n bytes from crypto/rand.
func GenerateSalt(n uint32) ([]byte, error) {
	salt := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// HashSecret derives an argon2id verifier for the secret over the given salt
// and encodes it as "$argon2id$v=19$m=...,t=...,p=...$salt$hash". The encoded
// string is self-describing so parameters can be tuned without invalidating
// stored verifiers.
func HashSecret(secret string, salt []byte, p Argon2Params) string {
	hash := argon2.IDKey([]byte(secret), salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		p.Memory,
		p.Iterations,
		p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	)
}

// VerifySecret recomputes the verifier from the supplied secret and the
// parameters and salt embedded in encoded, and compares in constant time.
// The comparison never short-circuits on the first differing byte, so timing
// does not reveal how close a guess was.
func VerifySecret(secret, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return false, fmt.Errorf("verify secret: invalid verifier format")
	}
	if parts[1] != "argon2id" {
		return false, fmt.Errorf("verify secret: unknown algorithm %q", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, fmt.Errorf("verify secret: invalid version: %w", err)
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false, fmt.Errorf("verify secret: invalid parameters: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("verify secret: invalid salt: %w", err)
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, fmt.Errorf("verify secret: invalid hash: %w", err)
	}

	got := argon2.IDKey([]byte(secret), salt, iterations, memory, parallelism, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// DecodeVerifier extracts the derivation parameters and salt embedded in an
// encoded verifier, so the wrapping key can be re-derived with exactly the
// parameters that were in force when the verifier was written.
func DecodeVerifier(encoded string) (Argon2Params, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return Argon2Params{}, nil, fmt.Errorf("decode verifier: invalid format")
	}

	var p Argon2Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Iterations, &p.Parallelism); err != nil {
		return Argon2Params{}, nil, fmt.Errorf("decode verifier: invalid parameters: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return Argon2Params{}, nil, fmt.Errorf("decode verifier: invalid salt: %w", err)
	}
	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return Argon2Params{}, nil, fmt.Errorf("decode verifier: invalid hash: %w", err)
	}
	p.SaltLength = uint32(len(salt))
	p.KeyLength = uint32(len(hash))
	return p, salt, nil
}

// DeriveKey derives a symmetric key of p.KeyLength bytes from the secret and
// salt. Used for the PIN-derived wrapping key; the same (secret, salt) pair
// always yields the same key.
func DeriveKey(secret string, salt []byte, p Argon2Params) []byte {
	return argon2.IDKey([]byte(secret), salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)
}
