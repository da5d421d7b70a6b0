package remote

import (
	"testing"
	"time"
)

func TestTokenParser_Unverified_ReadsClaims(t *testing.T) {
	issued := time.Now().Add(-time.Minute).Truncate(time.Second)
	token := signTestToken(t, "some-secret", issued, issued.Add(time.Hour))

	claims, err := NewTokenParser("").Parse(token)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if claims.Subject != testUserID {
		t.Errorf("Subject = %q, want %q", claims.Subject, testUserID)
	}
	if claims.Email != "student@example.com" {
		t.Errorf("Email = %q, want %q", claims.Email, "student@example.com")
	}
	if !claims.IssuedAt.Time.Equal(issued) {
		t.Errorf("IssuedAt = %v, want %v", claims.IssuedAt.Time, issued)
	}
}

func TestTokenParser_Verified(t *testing.T) {
	now := time.Now()
	token := signTestToken(t, "right-secret", now, now.Add(time.Hour))

	if _, err := NewTokenParser("right-secret").Parse(token); err != nil {
		t.Errorf("Parse() with correct secret error = %v", err)
	}
	if _, err := NewTokenParser("wrong-secret").Parse(token); err == nil {
		t.Error("Parse() with wrong secret should fail")
	}
}

func TestTokenParser_Verified_RejectsExpired(t *testing.T) {
	now := time.Now()
	token := signTestToken(t, "secret", now.Add(-2*time.Hour), now.Add(-time.Hour))

	if _, err := NewTokenParser("secret").Parse(token); err == nil {
		t.Error("Parse() should reject an expired token when verifying")
	}
}

func TestTokenParser_Garbage(t *testing.T) {
	if _, err := NewTokenParser("").Parse("not-a-jwt"); err == nil {
		t.Error("Parse() should fail for a malformed token")
	}
}

func TestTokenParser_VerifySignature_IgnoresExpiry(t *testing.T) {
	now := time.Now()
	expired := signTestToken(t, "secret", now.Add(-2*time.Hour), now.Add(-time.Hour))

	if err := NewTokenParser("secret").VerifySignature(expired); err != nil {
		t.Errorf("VerifySignature() error = %v, want nil for an expired but valid token", err)
	}
	if err := NewTokenParser("other").VerifySignature(expired); err == nil {
		t.Error("VerifySignature() should fail with the wrong secret")
	}
	if err := NewTokenParser("").VerifySignature("not-a-jwt"); err != nil {
		t.Errorf("VerifySignature() without secret error = %v, want nil", err)
	}
}
