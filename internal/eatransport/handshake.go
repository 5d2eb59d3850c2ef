package eatransport

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"genx-signal-engine/internal/errs"
)

// EAInfo is the payload of the EA_INFO handshake message an expert
// advisor sends on connect, identifying itself and its broker account.
type EAInfo struct {
	AccountID string `json:"account_id"`
	Broker    string `json:"broker"`
	Build     string `json:"build"`
	Token     string `json:"token"`
}

// TokenSigner signs and verifies EA_INFO handshake tokens with an
// HMAC-SHA256 keyed on a shared secret, grounded on internal/auth's
// golang.org/x/crypto usage (adapted from bcrypt password hashing to
// keyed message authentication, since the handshake needs a
// deterministic, verifiable token rather than a salted hash).
type TokenSigner struct {
	secret []byte
}

// NewTokenSigner builds a signer around secret.
func NewTokenSigner(secret []byte) *TokenSigner {
	return &TokenSigner{secret: secret}
}

// Sign produces a hex-encoded HMAC over accountID, for the EA to embed
// as its handshake token.
func (s *TokenSigner) Sign(accountID string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(accountID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks that token is the expected signature for accountID.
func (s *TokenSigner) Verify(accountID, token string) error {
	expected := s.Sign(accountID)
	decoded, err := hex.DecodeString(token)
	if err != nil {
		return errs.New(errs.ProtocolViolation, "eatransport: malformed handshake token")
	}
	expectedBytes, err := hex.DecodeString(expected)
	if err != nil {
		return errs.New(errs.Fatal, "eatransport: signer produced invalid hex")
	}
	if !hmac.Equal(decoded, expectedBytes) {
		return errs.New(errs.ProtocolViolation, "eatransport: handshake token mismatch")
	}
	return nil
}
