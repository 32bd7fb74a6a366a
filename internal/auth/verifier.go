// Package auth provides the token verification consumed by the WebSocket
// gateway. Token issuance is an external concern; this core only answers
// "is this token valid".
package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Verifier answers whether a presented token is valid.
type Verifier interface {
	Verify(ctx context.Context, token string) bool
}

// Config holds gateway authentication settings. Tokens may be listed either
// as bcrypt hashes (preferred; survives a leaked config file) or, for
// development, as plain strings.
type Config struct {
	Enabled     bool     `yaml:"enabled"`
	TokenHashes []string `yaml:"token_hashes"`
	Tokens      []string `yaml:"tokens"`
}

// DefaultConfig returns the default auth configuration.
func DefaultConfig() Config {
	return Config{
		Enabled: true,
	}
}

// Validate validates the auth configuration.
func (c Config) Validate() error {
	if c.Enabled && len(c.TokenHashes) == 0 && len(c.Tokens) == 0 {
		return fmt.Errorf("auth: enabled but no tokens configured")
	}
	for _, h := range c.TokenHashes {
		if !strings.HasPrefix(h, "$2") {
			return fmt.Errorf("auth: token hash %q is not a bcrypt hash", truncate(h, 12))
		}
	}
	return nil
}

// StaticVerifier verifies tokens against the configured list.
type StaticVerifier struct {
	hashes [][]byte
	plain  []string
}

// NewStaticVerifier creates a verifier from configuration.
func NewStaticVerifier(cfg Config) (*StaticVerifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	v := &StaticVerifier{plain: cfg.Tokens}
	for _, h := range cfg.TokenHashes {
		v.hashes = append(v.hashes, []byte(h))
	}
	return v, nil
}

// Verify reports whether the token matches any configured credential.
func (v *StaticVerifier) Verify(_ context.Context, token string) bool {
	if token == "" {
		return false
	}

	for _, plain := range v.plain {
		if subtle.ConstantTimeCompare([]byte(plain), []byte(token)) == 1 {
			return true
		}
	}

	for _, hash := range v.hashes {
		if bcrypt.CompareHashAndPassword(hash, []byte(token)) == nil {
			return true
		}
	}

	return false
}

// HashToken produces a bcrypt hash suitable for the token_hashes config list.
func HashToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash token: %w", err)
	}
	return string(hash), nil
}

// AllowAll accepts every token. Used when gateway authentication is disabled
// in configuration; the handshake frame is still required.
type AllowAll struct{}

// Verify implements Verifier.
func (AllowAll) Verify(context.Context, string) bool { return true }

// MockVerifier is a test verifier with a fixed accept set.
type MockVerifier struct {
	Accept map[string]bool
}

// NewMockVerifier creates a verifier accepting exactly the given tokens.
func NewMockVerifier(tokens ...string) *MockVerifier {
	accept := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		accept[t] = true
	}
	return &MockVerifier{Accept: accept}
}

// Verify implements Verifier.
func (m *MockVerifier) Verify(_ context.Context, token string) bool {
	return m.Accept[token]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
