package eatransport

import "testing"

func TestTokenSignerVerify(t *testing.T) {
	signer := NewTokenSigner([]byte("test-secret"))
	token := signer.Sign("ACC-1")
	if err := signer.Verify("ACC-1", token); err != nil {
		t.Fatalf("expected valid token to verify, got %v", err)
	}
}

func TestTokenSignerRejectsTamperedToken(t *testing.T) {
	signer := NewTokenSigner([]byte("test-secret"))
	token := signer.Sign("ACC-1")
	if err := signer.Verify("ACC-2", token); err == nil {
		t.Fatal("expected verification failure for mismatched account")
	}
}

func TestTokenSignerRejectsMalformedToken(t *testing.T) {
	signer := NewTokenSigner([]byte("test-secret"))
	if err := signer.Verify("ACC-1", "not-hex!!"); err == nil {
		t.Fatal("expected verification failure for malformed token")
	}
}
