// Package pkce provides PKCE (Proof Key for Code Exchange) utilities
// for OAuth 2.0 authorization code flows as specified in RFC 7636.
package pkce

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"hash"
	"io"
)

const (
	// MinVerifierLength is the shortest code verifier RFC 7636 allows.
	MinVerifierLength = 43
	// MaxVerifierLength is the longest code verifier RFC 7636 allows.
	MaxVerifierLength = 128
	// MethodS256 is the only challenge method this package produces.
	MethodS256 = "S256"

	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	// maxByte is the largest multiple of len(alphabet) that fits in a byte.
	// Bytes at or above it are rejected so every character is equally likely.
	maxByte = 256 - (256 % len(alphabet))
)

var (
	ErrInvalidLength = errors.New("invalid length")
	ErrEmptyVerifier = errors.New("verifier cannot be empty")
)

// Generator produces code verifiers, state tokens and code challenges.
// The random source and hash are injectable so tests can observe or replace them.
type Generator struct {
	random io.Reader
	hash   func() hash.Hash
}

// Option configures a Generator.
type Option func(*Generator)

// WithRandom sets the random-bytes provider.
func WithRandom(r io.Reader) Option {
	return func(g *Generator) { g.random = r }
}

// WithHash sets the hash provider used to derive challenges.
func WithHash(h func() hash.Hash) Option {
	return func(g *Generator) { g.hash = h }
}

// NewGenerator creates a Generator backed by crypto/rand and SHA-256.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		random: rand.Reader,
		hash:   sha256.New,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GenerateVerifier creates a code verifier of exactly length characters
// drawn from [A-Za-z0-9]. length must lie in [43,128].
func (g *Generator) GenerateVerifier(length int) (string, error) {
	if length < MinVerifierLength || length > MaxVerifierLength {
		return "", fmt.Errorf("%w: verifier length %d outside [%d,%d]",
			ErrInvalidLength, length, MinVerifierLength, MaxVerifierLength)
	}
	return g.randomString(length)
}

// GenerateState creates a random state token for CSRF protection.
func (g *Generator) GenerateState(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("%w: state length must be positive", ErrInvalidLength)
	}
	return g.randomString(length)
}

func (g *Generator) randomString(length int) (string, error) {
	out := make([]byte, 0, length)
	buf := make([]byte, length+length/4)
	for len(out) < length {
		if _, err := io.ReadFull(g.random, buf); err != nil {
			return "", fmt.Errorf("failed to generate random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= maxByte {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}

// DeriveChallenge computes the S256 code challenge for verifier:
// BASE64URL-NOPAD(SHA256(verifier)). It is pure and never consumes randomness.
func (g *Generator) DeriveChallenge(ctx context.Context, verifier string) (string, error) {
	if verifier == "" {
		return "", ErrEmptyVerifier
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	h := g.hash()
	if _, err := h.Write([]byte(verifier)); err != nil {
		return "", fmt.Errorf("failed to hash verifier: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil)), nil
}

// ValidateChallenge reports whether challenge was derived from verifier.
func (g *Generator) ValidateChallenge(challenge, verifier string) bool {
	if challenge == "" || verifier == "" {
		return false
	}
	expected, err := g.DeriveChallenge(context.Background(), verifier)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(challenge)) == 1
}
