package security

import "testing"

func TestGenerateVerificationToken(t *testing.T) {
	token, err := GenerateVerificationToken()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(token) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(token))
	}

	other, err := GenerateVerificationToken()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token == other {
		t.Fatal("expected distinct tokens across calls")
	}
}

func TestGenerateSecureToken_RejectsNonPositiveLength(t *testing.T) {
	if _, err := GenerateSecureToken(0); err == nil {
		t.Fatal("expected error for zero length")
	}
	if _, err := GenerateSecureToken(-3); err == nil {
		t.Fatal("expected error for negative length")
	}
}

func TestGenerateSecureToken_Length(t *testing.T) {
	token, err := GenerateSecureToken(16)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(token) != 32 {
		t.Fatalf("expected 32 hex chars for 16 bytes, got %d", len(token))
	}
}
